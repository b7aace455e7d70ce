package types

import "time"

// MessageType tags an envelope. The payload shape depends on it.
type MessageType string

const (
	CategoryUpdate  MessageType = "category_update"
	StatementUpdate MessageType = "statement_update"
	Ack             MessageType = "ack"
	Connected       MessageType = "connected"
)

// Action is the lifecycle step a resource notification describes.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Category is the wire representation of a category.
type Category struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UserID    string `json:"userId"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Statement is the wire representation of a statement.
type Statement struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	UserID     string `json:"userId"`
	CategoryID string `json:"categoryId"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// User is the public part of an account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Conn abstracts a server-side WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// ClientInfo holds metadata about a connected push client.
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Delivery is a frame addressed to every connection of one user.
type Delivery struct {
	UserID string `json:"user_id"`
	Frame  Frame  `json:"frame"`
}
