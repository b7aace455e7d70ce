// Package service implements the resource operations of the reference
// server. Every successful mutation pushes one notification to the
// owner's connections.
package service

import (
	"fmt"

	"github.com/orchestra-mcp/notify-harness/src/auth"
	"github.com/orchestra-mcp/notify-harness/src/store"
	"github.com/orchestra-mcp/notify-harness/src/types"
	"github.com/rs/zerolog"
)

// Notifier delivers an envelope to every connection of a user.
type Notifier interface {
	SendToUser(userID string, env types.Envelope)
}

// Service wires the store, the token issuer and the push hub.
type Service struct {
	store    *store.Store
	issuer   *auth.Issuer
	notifier Notifier
	logger   zerolog.Logger
}

// New creates a service.
func New(st *store.Store, issuer *auth.Issuer, n Notifier, logger zerolog.Logger) *Service {
	return &Service{
		store:    st,
		issuer:   issuer,
		notifier: n,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// Register creates an account and returns a token for it.
func (s *Service) Register(email, password string) (string, types.User, error) {
	u, err := s.store.CreateUser(email, password)
	if err != nil {
		return "", types.User{}, err
	}
	s.logger.Info().Str("user_id", u.ID).Msg("user registered")
	return s.token(u)
}

// Login authenticates an account and returns a fresh token.
func (s *Service) Login(email, password string) (string, types.User, error) {
	u, err := s.store.Authenticate(email, password)
	if err != nil {
		return "", types.User{}, err
	}
	return s.token(u)
}

func (s *Service) token(u types.User) (string, types.User, error) {
	tok, err := s.issuer.Issue(u)
	if err != nil {
		return "", types.User{}, fmt.Errorf("issue token for %s: %w", u.ID, err)
	}
	return tok, u, nil
}

// Authenticate resolves a bearer token to its user id.
func (s *Service) Authenticate(token string) (string, error) {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return "", err
	}
	if _, err := s.store.User(claims.Subject); err != nil {
		return "", fmt.Errorf("%w: unknown user", auth.ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Profile returns the account of userID.
func (s *Service) Profile(userID string) (types.User, error) {
	return s.store.User(userID)
}

func (s *Service) notify(userID string, env types.Envelope) {
	s.logger.Debug().
		Str("user_id", userID).
		Str("type", string(env.Type)).
		Str("action", string(env.Payload.Action)).
		Str("resource_id", env.ResourceID()).
		Msg("notify")
	s.notifier.SendToUser(userID, env)
}

// Categories lists the caller's categories.
func (s *Service) Categories(userID string) []types.Category {
	return s.store.Categories(userID)
}

// Category returns one of the caller's categories.
func (s *Service) Category(userID, id string) (types.Category, error) {
	return s.store.Category(userID, id)
}

// CreateCategory stores a category and emits category_update/created.
func (s *Service) CreateCategory(userID, title string) (types.Category, error) {
	c, err := s.store.CreateCategory(userID, title)
	if err != nil {
		return types.Category{}, err
	}
	s.notify(userID, types.CategoryEnvelope(types.ActionCreated, c))
	return c, nil
}

// UpdateCategory renames a category and emits category_update/updated.
func (s *Service) UpdateCategory(userID, id, title string) (types.Category, error) {
	c, err := s.store.UpdateCategory(userID, id, title)
	if err != nil {
		return types.Category{}, err
	}
	s.notify(userID, types.CategoryEnvelope(types.ActionUpdated, c))
	return c, nil
}

// DeleteCategory removes a category and emits category_update/deleted.
// Statements referencing it are left untouched and produce no events.
func (s *Service) DeleteCategory(userID, id string) error {
	if err := s.store.DeleteCategory(userID, id); err != nil {
		return err
	}
	s.notify(userID, types.CategoryDeletedEnvelope(userID, id))
	return nil
}

// Statements lists the caller's statements.
func (s *Service) Statements(userID string) []types.Statement {
	return s.store.Statements(userID)
}

// Statement returns one of the caller's statements.
func (s *Service) Statement(userID, id string) (types.Statement, error) {
	return s.store.Statement(userID, id)
}

// CreateStatement stores a statement and emits statement_update/created.
func (s *Service) CreateStatement(userID, text, categoryID string) (types.Statement, error) {
	st, err := s.store.CreateStatement(userID, text, categoryID)
	if err != nil {
		return types.Statement{}, err
	}
	s.notify(userID, types.StatementEnvelope(types.ActionCreated, st))
	return st, nil
}

// UpdateStatement edits a statement and emits statement_update/updated.
func (s *Service) UpdateStatement(userID, id, text, categoryID string) (types.Statement, error) {
	st, err := s.store.UpdateStatement(userID, id, text, categoryID)
	if err != nil {
		return types.Statement{}, err
	}
	s.notify(userID, types.StatementEnvelope(types.ActionUpdated, st))
	return st, nil
}

// DeleteStatement removes a statement and emits statement_update/deleted.
func (s *Service) DeleteStatement(userID, id string) error {
	if err := s.store.DeleteStatement(userID, id); err != nil {
		return err
	}
	s.notify(userID, types.StatementDeletedEnvelope(userID, id))
	return nil
}
