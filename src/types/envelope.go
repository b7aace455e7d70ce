package types

import "encoding/json"

// Payload is the body of a resource notification. Which fields are set
// depends on the envelope type and the action:
//
//	category_update  created|updated -> Category
//	category_update  deleted         -> CategoryID
//	statement_update created|updated -> Statement
//	statement_update deleted         -> StatementID
type Payload struct {
	Action      Action     `json:"action"`
	Category    *Category  `json:"category,omitempty"`
	Statement   *Statement `json:"statement,omitempty"`
	CategoryID  string     `json:"categoryId,omitempty"`
	StatementID string     `json:"statementId,omitempty"`
}

// Envelope is one unit delivered over the push connection.
type Envelope struct {
	Type    MessageType `json:"type"`
	Payload Payload     `json:"payload"`
	UserID  string      `json:"user_id,omitempty"`

	// Raw holds the undecoded payload for types without a resource body
	// (ack, connected).
	Raw json.RawMessage `json:"-"`
}

// ResourceID returns the id of the resource the envelope describes, for
// both full representations and deletions.
func (e Envelope) ResourceID() string {
	switch {
	case e.Payload.Category != nil:
		return e.Payload.Category.ID
	case e.Payload.Statement != nil:
		return e.Payload.Statement.ID
	case e.Payload.CategoryID != "":
		return e.Payload.CategoryID
	default:
		return e.Payload.StatementID
	}
}

// OwnerID returns the owning user named by the envelope, preferring the
// resource body over the delivery stamp.
func (e Envelope) OwnerID() string {
	switch {
	case e.Payload.Category != nil:
		return e.Payload.Category.UserID
	case e.Payload.Statement != nil:
		return e.Payload.Statement.UserID
	default:
		return e.UserID
	}
}

// Clone returns a deep copy so callers cannot mutate logged envelopes.
func (e Envelope) Clone() Envelope {
	out := e
	if e.Payload.Category != nil {
		c := *e.Payload.Category
		out.Payload.Category = &c
	}
	if e.Payload.Statement != nil {
		s := *e.Payload.Statement
		out.Payload.Statement = &s
	}
	if e.Raw != nil {
		out.Raw = append(json.RawMessage(nil), e.Raw...)
	}
	return out
}

// CategoryEnvelope builds a created/updated category notification.
func CategoryEnvelope(action Action, c Category) Envelope {
	return Envelope{
		Type:    CategoryUpdate,
		UserID:  c.UserID,
		Payload: Payload{Action: action, Category: &c},
	}
}

// CategoryDeletedEnvelope builds a category deletion notification.
func CategoryDeletedEnvelope(userID, categoryID string) Envelope {
	return Envelope{
		Type:    CategoryUpdate,
		UserID:  userID,
		Payload: Payload{Action: ActionDeleted, CategoryID: categoryID},
	}
}

// StatementEnvelope builds a created/updated statement notification.
func StatementEnvelope(action Action, s Statement) Envelope {
	return Envelope{
		Type:    StatementUpdate,
		UserID:  s.UserID,
		Payload: Payload{Action: action, Statement: &s},
	}
}

// StatementDeletedEnvelope builds a statement deletion notification.
func StatementDeletedEnvelope(userID, statementID string) Envelope {
	return Envelope{
		Type:    StatementUpdate,
		UserID:  userID,
		Payload: Payload{Action: ActionDeleted, StatementID: statementID},
	}
}

// Frame is the server-side wire form of an envelope. Payload is any so
// that ack and connected frames can carry their own bodies.
type Frame struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
	UserID  string      `json:"user_id,omitempty"`
}

// Frame converts a resource envelope to its wire form.
func (e Envelope) Frame() Frame {
	if e.Raw != nil {
		return Frame{Type: e.Type, Payload: e.Raw, UserID: e.UserID}
	}
	return Frame{Type: e.Type, Payload: e.Payload, UserID: e.UserID}
}
