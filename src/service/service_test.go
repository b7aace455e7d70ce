package service

import (
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/notify-harness/src/auth"
	"github.com/orchestra-mcp/notify-harness/src/store"
	"github.com/orchestra-mcp/notify-harness/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type sent struct {
	userID string
	env    types.Envelope
}

// recorder captures notifications instead of pushing them.
type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) SendToUser(userID string, env types.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{userID, env})
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

func newTestService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	svc := New(store.New(bcrypt.MinCost), auth.NewIssuer("test-secret", time.Hour), rec, zerolog.Nop())
	return svc, rec
}

func TestRegisterLoginAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)

	tok, u, err := svc.Register("a@example.com", "Password123!")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	id, err := svc.Authenticate(tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)

	tok2, u2, err := svc.Login("a@example.com", "Password123!")
	require.NoError(t, err)
	assert.Equal(t, u.ID, u2.ID)
	assert.NotEmpty(t, tok2)

	_, _, err = svc.Login("a@example.com", "wrong")
	assert.ErrorIs(t, err, store.ErrBadPassword)

	_, err = svc.Authenticate("garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestAuthenticateRejectsTokenForUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	other := auth.NewIssuer("test-secret", time.Hour)
	tok, err := other.Issue(types.User{ID: "ghost", Email: "ghost@example.com"})
	require.NoError(t, err)

	_, err = svc.Authenticate(tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestCategoryMutationsNotifyOwner(t *testing.T) {
	svc, rec := newTestService(t)

	c, err := svc.CreateCategory("u1", "Work")
	require.NoError(t, err)
	_, err = svc.UpdateCategory("u1", c.ID, "Work Projects")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteCategory("u1", c.ID))

	got := rec.all()
	require.Len(t, got, 3)
	for _, s := range got {
		assert.Equal(t, "u1", s.userID)
		assert.Equal(t, types.CategoryUpdate, s.env.Type)
		assert.Equal(t, c.ID, s.env.ResourceID())
	}
	assert.Equal(t, types.ActionCreated, got[0].env.Payload.Action)
	assert.Equal(t, "Work", got[0].env.Payload.Category.Title)
	assert.Equal(t, types.ActionUpdated, got[1].env.Payload.Action)
	assert.Equal(t, "Work Projects", got[1].env.Payload.Category.Title)
	assert.Equal(t, types.ActionDeleted, got[2].env.Payload.Action)
	assert.Nil(t, got[2].env.Payload.Category)
}

func TestFailedMutationsDoNotNotify(t *testing.T) {
	svc, rec := newTestService(t)
	c, err := svc.CreateCategory("u1", "Mine")
	require.NoError(t, err)

	_, err = svc.CreateCategory("u1", "")
	assert.ErrorIs(t, err, store.ErrInvalid)
	_, err = svc.UpdateCategory("u2", c.ID, "stolen")
	assert.ErrorIs(t, err, store.ErrForbidden)
	assert.ErrorIs(t, svc.DeleteCategory("u2", c.ID), store.ErrForbidden)
	_, err = svc.CreateStatement("u2", "text", c.ID)
	assert.ErrorIs(t, err, store.ErrForbidden)
	assert.ErrorIs(t, svc.DeleteStatement("u1", "missing"), store.ErrNotFound)

	assert.Len(t, rec.all(), 1)
}

func TestStatementLifecycleNotifies(t *testing.T) {
	svc, rec := newTestService(t)
	first, err := svc.CreateCategory("u1", "First")
	require.NoError(t, err)
	second, err := svc.CreateCategory("u1", "Second")
	require.NoError(t, err)

	st, err := svc.CreateStatement("u1", "hello", first.ID)
	require.NoError(t, err)
	moved, err := svc.UpdateStatement("u1", st.ID, "hello again", second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, moved.CategoryID)
	require.NoError(t, svc.DeleteStatement("u1", st.ID))

	got := rec.all()[2:]
	require.Len(t, got, 3)
	assert.Equal(t, types.StatementUpdate, got[0].env.Type)
	assert.Equal(t, first.ID, got[0].env.Payload.Statement.CategoryID)
	assert.Equal(t, second.ID, got[1].env.Payload.Statement.CategoryID)
	assert.Equal(t, "hello again", got[1].env.Payload.Statement.Text)
	assert.Equal(t, st.ID, got[2].env.Payload.StatementID)
}

func TestDeleteCategoryEmitsNoStatementEvents(t *testing.T) {
	svc, rec := newTestService(t)
	c, err := svc.CreateCategory("u1", "Doomed")
	require.NoError(t, err)
	_, err = svc.CreateStatement("u1", "survivor", c.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCategory("u1", c.ID))

	got := rec.all()
	require.Len(t, got, 3)
	assert.Equal(t, types.CategoryUpdate, got[2].env.Type)
	assert.Len(t, svc.Statements("u1"), 1)
}
