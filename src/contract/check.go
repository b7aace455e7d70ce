// Package contract verifies the notification contract of a server: one
// envelope per successful mutation, carrying the full post-change
// representation for created/updated and only the identity for deleted,
// delivered only to the owner.
package contract

import (
	"fmt"

	"github.com/orchestra-mcp/notify-harness/src/types"
)

// Violation is a failed contract check.
type Violation struct {
	Check    string
	Detail   string
	Envelope *types.Envelope
	Err      error
}

func (v *Violation) Error() string {
	msg := v.Check + ": " + v.Detail
	if v.Err != nil {
		msg += ": " + v.Err.Error()
	}
	return msg
}

func (v *Violation) Unwrap() error { return v.Err }

func violation(check string, env *types.Envelope, format string, args ...any) *Violation {
	var cp *types.Envelope
	if env != nil {
		e := env.Clone()
		cp = &e
	}
	return &Violation{Check: check, Detail: fmt.Sprintf(format, args...), Envelope: cp}
}

func checkHeader(check string, env types.Envelope, typ types.MessageType, action types.Action, ownerID string) error {
	if env.Type != typ {
		return violation(check, &env, "type is %q, want %q", env.Type, typ)
	}
	if env.Payload.Action != action {
		return violation(check, &env, "action is %q, want %q", env.Payload.Action, action)
	}
	// The delivery stamp is optional, but when present it names the owner.
	if env.UserID != "" && env.UserID != ownerID {
		return violation(check, &env, "user_id is %q, want %q", env.UserID, ownerID)
	}
	return nil
}

// CheckCategory verifies a created or updated category notification
// against the representation the REST API returned.
func CheckCategory(env types.Envelope, action types.Action, want types.Category) error {
	check := "category " + string(action)
	if err := checkHeader(check, env, types.CategoryUpdate, action, want.UserID); err != nil {
		return err
	}
	got := env.Payload.Category
	switch {
	case got == nil:
		return violation(check, &env, "payload carries no category representation")
	case got.ID != want.ID:
		return violation(check, &env, "category id is %q, want %q", got.ID, want.ID)
	case got.Title != want.Title:
		return violation(check, &env, "category title is %q, want %q", got.Title, want.Title)
	case got.UserID != want.UserID:
		return violation(check, &env, "category owner is %q, want %q", got.UserID, want.UserID)
	}
	return nil
}

// CheckCategoryDeleted verifies a category deletion notification.
func CheckCategoryDeleted(env types.Envelope, ownerID, id string) error {
	check := "category deleted"
	if err := checkHeader(check, env, types.CategoryUpdate, types.ActionDeleted, ownerID); err != nil {
		return err
	}
	if env.Payload.Category != nil {
		return violation(check, &env, "deletion carries a full representation")
	}
	if env.Payload.CategoryID != id {
		return violation(check, &env, "deleted id is %q, want %q", env.Payload.CategoryID, id)
	}
	return nil
}

// CheckStatement verifies a created or updated statement notification
// against the representation the REST API returned, including its
// category reference.
func CheckStatement(env types.Envelope, action types.Action, want types.Statement) error {
	check := "statement " + string(action)
	if err := checkHeader(check, env, types.StatementUpdate, action, want.UserID); err != nil {
		return err
	}
	got := env.Payload.Statement
	switch {
	case got == nil:
		return violation(check, &env, "payload carries no statement representation")
	case got.ID != want.ID:
		return violation(check, &env, "statement id is %q, want %q", got.ID, want.ID)
	case got.Text != want.Text:
		return violation(check, &env, "statement text is %q, want %q", got.Text, want.Text)
	case got.CategoryID != want.CategoryID:
		return violation(check, &env, "statement category is %q, want %q", got.CategoryID, want.CategoryID)
	case got.UserID != want.UserID:
		return violation(check, &env, "statement owner is %q, want %q", got.UserID, want.UserID)
	}
	return nil
}

// CheckStatementDeleted verifies a statement deletion notification.
func CheckStatementDeleted(env types.Envelope, ownerID, id string) error {
	check := "statement deleted"
	if err := checkHeader(check, env, types.StatementUpdate, types.ActionDeleted, ownerID); err != nil {
		return err
	}
	if env.Payload.Statement != nil {
		return violation(check, &env, "deletion carries a full representation")
	}
	if env.Payload.StatementID != id {
		return violation(check, &env, "deleted id is %q, want %q", env.Payload.StatementID, id)
	}
	return nil
}
