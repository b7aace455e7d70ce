package waiter

import "github.com/orchestra-mcp/notify-harness/src/types"

// Predicate reports whether an envelope satisfies a wait.
type Predicate func(types.Envelope) bool

// Any matches every envelope.
func Any() Predicate {
	return func(types.Envelope) bool { return true }
}

// HasAction matches payload.action.
func HasAction(action types.Action) Predicate {
	return func(e types.Envelope) bool { return e.Payload.Action == action }
}

// ResourceID matches the id of the described resource, whether the
// payload carries the full representation or only the deleted id.
func ResourceID(id string) Predicate {
	return func(e types.Envelope) bool { return e.ResourceID() == id }
}

// CategoryTitle matches category payloads with the given title.
func CategoryTitle(title string) Predicate {
	return func(e types.Envelope) bool {
		return e.Payload.Category != nil && e.Payload.Category.Title == title
	}
}

// StatementText matches statement payloads with the given text.
func StatementText(text string) Predicate {
	return func(e types.Envelope) bool {
		return e.Payload.Statement != nil && e.Payload.Statement.Text == text
	}
}

// StatementCategory matches statement payloads referencing categoryID.
func StatementCategory(categoryID string) Predicate {
	return func(e types.Envelope) bool {
		return e.Payload.Statement != nil && e.Payload.Statement.CategoryID == categoryID
	}
}

// OwnedBy matches envelopes whose resource or delivery names userID.
func OwnedBy(userID string) Predicate {
	return func(e types.Envelope) bool { return e.OwnerID() == userID }
}

// And matches when every predicate matches. An empty And matches all.
func And(preds ...Predicate) Predicate {
	return func(e types.Envelope) bool {
		for _, p := range preds {
			if !p(e) {
				return false
			}
		}
		return true
	}
}

// Or matches when at least one predicate matches.
func Or(preds ...Predicate) Predicate {
	return func(e types.Envelope) bool {
		for _, p := range preds {
			if p(e) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(e types.Envelope) bool { return !p(e) }
}
