package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orchestra-mcp/notify-harness/src/client"
	"github.com/orchestra-mcp/notify-harness/src/harness"
	"github.com/orchestra-mcp/notify-harness/src/types"
	"github.com/orchestra-mcp/notify-harness/src/waiter"
	"github.com/rs/zerolog"
)

// Scenario is one end-to-end contract check against a live server.
type Scenario struct {
	Name string
	Run  func(ctx context.Context, f *harness.Fixture) error
}

// Result is the outcome of one scenario.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Passed reports whether the scenario succeeded.
func (r Result) Passed() bool { return r.Err == nil }

// Scenarios returns the full suite in a fixed order.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "category-lifecycle", Run: CategoryLifecycle},
		{Name: "statement-lifecycle", Run: StatementLifecycle},
		{Name: "isolation", Run: Isolation},
		{Name: "cross-owner-rejected", Run: CrossOwnerRejected},
		{Name: "no-cascade-delete", Run: NoCascadeDelete},
	}
}

// Run executes scenarios in order, each with its own fixture, and
// returns one result per scenario. A failing scenario does not stop the
// suite.
func Run(ctx context.Context, newFixture func() (*harness.Fixture, error), scenarios []Scenario, logger zerolog.Logger) []Result {
	results := make([]Result, 0, len(scenarios))
	for _, sc := range scenarios {
		start := time.Now()
		err := runOne(ctx, newFixture, sc)
		res := Result{Name: sc.Name, Err: err, Duration: time.Since(start)}
		results = append(results, res)

		ev := logger.Info()
		if err != nil {
			ev = logger.Error().Err(err)
		}
		ev.Str("scenario", sc.Name).Dur("duration", res.Duration).Bool("passed", res.Passed()).Msg("scenario finished")
	}
	return results
}

func runOne(ctx context.Context, newFixture func() (*harness.Fixture, error), sc Scenario) (err error) {
	f, err := newFixture()
	if err != nil {
		return fmt.Errorf("fixture: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return sc.Run(ctx, f)
}

// expect waits on id's log for an envelope appended at or after mark.
func expect(ctx context.Context, f *harness.Fixture, id *harness.Identity, check string, typ types.MessageType, pred waiter.Predicate, mark uint64) (types.Envelope, error) {
	timeout := f.Config().WaitTimeout
	env, err := id.Conn.WaitFor(ctx, typ, pred, timeout, waiter.After(mark))
	if err != nil {
		return types.Envelope{}, &Violation{
			Check:  check,
			Detail: fmt.Sprintf("no matching %s within %s", typ, timeout),
			Err:    err,
		}
	}
	return env, nil
}

// expectNone fails if id receives a matching envelope at or after mark
// within the negative wait window.
func expectNone(ctx context.Context, f *harness.Fixture, id *harness.Identity, check string, typ types.MessageType, pred waiter.Predicate, mark uint64) error {
	err := waiter.ExpectNone(ctx, id.Conn.Log(), typ, pred, f.Config().NegativeWait, waiter.After(mark))
	if errors.Is(err, waiter.ErrUnexpectedEnvelope) {
		return &Violation{Check: check, Detail: "envelope delivered", Err: err}
	}
	return err
}

// CategoryLifecycle creates, renames and deletes a category and checks
// the three notifications.
func CategoryLifecycle(ctx context.Context, f *harness.Fixture) error {
	u, err := f.NewIdentity(ctx)
	if err != nil {
		return err
	}

	mark := u.Conn.Log().Mark()
	cat, err := u.API.CreateCategory(ctx, "Work")
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	env, err := expect(ctx, f, u, "category created", types.CategoryUpdate,
		waiter.And(waiter.HasAction(types.ActionCreated), waiter.ResourceID(cat.ID)), mark)
	if err != nil {
		return err
	}
	if err := CheckCategory(env, types.ActionCreated, *cat); err != nil {
		return err
	}

	mark = u.Conn.Log().Mark()
	updated, err := u.API.UpdateCategory(ctx, cat.ID, "Work Projects")
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	env, err = expect(ctx, f, u, "category updated", types.CategoryUpdate,
		waiter.And(waiter.HasAction(types.ActionUpdated), waiter.ResourceID(cat.ID)), mark)
	if err != nil {
		return err
	}
	if err := CheckCategory(env, types.ActionUpdated, *updated); err != nil {
		return err
	}

	mark = u.Conn.Log().Mark()
	if err := u.API.DeleteCategory(ctx, cat.ID); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	env, err = expect(ctx, f, u, "category deleted", types.CategoryUpdate,
		waiter.And(waiter.HasAction(types.ActionDeleted), waiter.ResourceID(cat.ID)), mark)
	if err != nil {
		return err
	}
	return CheckCategoryDeleted(env, u.User.ID, cat.ID)
}

// StatementLifecycle creates a statement, edits it while moving it to
// another category, then deletes it.
func StatementLifecycle(ctx context.Context, f *harness.Fixture) error {
	u, err := f.NewIdentity(ctx)
	if err != nil {
		return err
	}
	first, err := u.API.CreateCategory(ctx, "Inbox")
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	second, err := u.API.CreateCategory(ctx, "Archive")
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}

	mark := u.Conn.Log().Mark()
	st, err := u.API.CreateStatement(ctx, "Call the bank", first.ID)
	if err != nil {
		return fmt.Errorf("create statement: %w", err)
	}
	env, err := expect(ctx, f, u, "statement created", types.StatementUpdate,
		waiter.And(waiter.HasAction(types.ActionCreated), waiter.ResourceID(st.ID)), mark)
	if err != nil {
		return err
	}
	if err := CheckStatement(env, types.ActionCreated, *st); err != nil {
		return err
	}

	mark = u.Conn.Log().Mark()
	moved, err := u.API.UpdateStatement(ctx, st.ID, "Call the bank tomorrow", second.ID)
	if err != nil {
		return fmt.Errorf("update statement: %w", err)
	}
	env, err = expect(ctx, f, u, "statement updated", types.StatementUpdate,
		waiter.And(waiter.HasAction(types.ActionUpdated), waiter.ResourceID(st.ID)), mark)
	if err != nil {
		return err
	}
	if err := CheckStatement(env, types.ActionUpdated, *moved); err != nil {
		return err
	}

	mark = u.Conn.Log().Mark()
	if err := u.API.DeleteStatement(ctx, st.ID); err != nil {
		return fmt.Errorf("delete statement: %w", err)
	}
	env, err = expect(ctx, f, u, "statement deleted", types.StatementUpdate,
		waiter.And(waiter.HasAction(types.ActionDeleted), waiter.ResourceID(st.ID)), mark)
	if err != nil {
		return err
	}
	return CheckStatementDeleted(env, u.User.ID, st.ID)
}

// Isolation checks that one user's changes never reach another user.
func Isolation(ctx context.Context, f *harness.Fixture) error {
	owner, err := f.NewIdentity(ctx)
	if err != nil {
		return err
	}
	other, err := f.NewIdentity(ctx)
	if err != nil {
		return err
	}

	otherMark := other.Conn.Log().Mark()
	mark := owner.Conn.Log().Mark()
	cat, err := owner.API.CreateCategory(ctx, "Private")
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	st, err := owner.API.CreateStatement(ctx, "Secret", cat.ID)
	if err != nil {
		return fmt.Errorf("create statement: %w", err)
	}

	// The owner sees both, so the server has delivered them.
	if _, err := expect(ctx, f, owner, "owner category", types.CategoryUpdate, waiter.ResourceID(cat.ID), mark); err != nil {
		return err
	}
	if _, err := expect(ctx, f, owner, "owner statement", types.StatementUpdate, waiter.ResourceID(st.ID), mark); err != nil {
		return err
	}

	if err := expectNone(ctx, f, other, "isolation category", types.CategoryUpdate, waiter.Any(), otherMark); err != nil {
		return err
	}
	return expectNone(ctx, f, other, "isolation statement", types.StatementUpdate, waiter.Any(), otherMark)
}

// CrossOwnerRejected checks that a rejected mutation by another user is
// refused by the API and produces no notification for the owner.
func CrossOwnerRejected(ctx context.Context, f *harness.Fixture) error {
	owner, err := f.NewIdentity(ctx)
	if err != nil {
		return err
	}
	intruder, err := f.NewUser(ctx)
	if err != nil {
		return err
	}

	cat, err := owner.API.CreateCategory(ctx, "Mine")
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	mark := owner.Conn.Log().Mark()

	_, err = intruder.API.UpdateCategory(ctx, cat.ID, "Hijacked")
	if !client.IsForbidden(err) {
		return violation("cross-owner update", nil, "got %v, want 403", err)
	}
	if err := intruder.API.DeleteCategory(ctx, cat.ID); !client.IsForbidden(err) {
		return violation("cross-owner delete", nil, "got %v, want 403", err)
	}
	return expectNone(ctx, f, owner, "rejected mutation", types.CategoryUpdate, waiter.ResourceID(cat.ID), mark)
}

// NoCascadeDelete deletes a category that still has statements and
// checks that exactly one category notification follows and no
// statement notifications.
func NoCascadeDelete(ctx context.Context, f *harness.Fixture) error {
	u, err := f.NewIdentity(ctx)
	if err != nil {
		return err
	}
	cat, err := u.API.CreateCategory(ctx, "Doomed")
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	st, err := u.API.CreateStatement(ctx, "Still here", cat.ID)
	if err != nil {
		return fmt.Errorf("create statement: %w", err)
	}
	if _, err := expect(ctx, f, u, "statement created", types.StatementUpdate, waiter.ResourceID(st.ID), 0); err != nil {
		return err
	}

	mark := u.Conn.Log().Mark()
	if err := u.API.DeleteCategory(ctx, cat.ID); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	env, err := expect(ctx, f, u, "category deleted", types.CategoryUpdate, waiter.HasAction(types.ActionDeleted), mark)
	if err != nil {
		return err
	}
	if err := CheckCategoryDeleted(env, u.User.ID, cat.ID); err != nil {
		return err
	}

	if err := expectNone(ctx, f, u, "no cascade", types.StatementUpdate, waiter.Any(), mark); err != nil {
		return err
	}
	n := 0
	for _, e := range u.Conn.Log().Snapshot() {
		if e.Seq >= mark && e.Envelope.Type == types.CategoryUpdate {
			n++
		}
	}
	if n != 1 {
		return violation("no cascade", nil, "%d category notifications after delete, want 1", n)
	}
	return nil
}
