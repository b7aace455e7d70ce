// Package store is the in-memory resource store of the reference server.
// Every read and write is scoped to the calling user.
package store

import (
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/notify-harness/src/auth"
	"github.com/orchestra-mcp/notify-harness/src/types"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("access denied")
	ErrInvalid     = errors.New("invalid input")
	ErrConflict    = errors.New("already exists")
	ErrBadPassword = errors.New("invalid email or password")
)

const minPasswordSize = 6

type userRecord struct {
	user types.User
	hash string
}

// Store holds users, categories and statements.
type Store struct {
	mu         sync.RWMutex
	users      map[string]userRecord
	byEmail    map[string]string
	categories map[string]types.Category
	statements map[string]types.Statement
	bcryptCost int
}

// New creates an empty store hashing passwords at bcryptCost.
func New(bcryptCost int) *Store {
	return &Store{
		users:      make(map[string]userRecord),
		byEmail:    make(map[string]string),
		categories: make(map[string]types.Category),
		statements: make(map[string]types.Statement),
		bcryptCost: bcryptCost,
	}
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// CreateUser registers an account.
func (s *Store) CreateUser(email, password string) (types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return types.User{}, fmt.Errorf("%w: email", ErrInvalid)
	}
	if len(password) < minPasswordSize {
		return types.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, minPasswordSize)
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return types.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return types.User{}, fmt.Errorf("%w: %s", ErrConflict, email)
	}
	u := types.User{ID: uuid.NewString(), Email: email}
	s.users[u.ID] = userRecord{user: u, hash: hash}
	s.byEmail[email] = u.ID
	return u, nil
}

// Authenticate checks credentials.
func (s *Store) Authenticate(email, password string) (types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	rec, ok := s.users[s.byEmail[email]]
	s.mu.RUnlock()
	if !ok || !auth.CheckPassword(rec.hash, password) {
		return types.User{}, ErrBadPassword
	}
	return rec.user, nil
}

// User returns the account with id.
func (s *Store) User(id string) (types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return types.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return rec.user, nil
}

// Categories lists userID's categories in creation order.
func (s *Store) Categories(userID string) []types.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Category, 0)
	for _, c := range s.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Category returns one of userID's categories.
func (s *Store) Category(userID, id string) (types.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoryLocked(userID, id)
}

func (s *Store) categoryLocked(userID, id string) (types.Category, error) {
	c, ok := s.categories[id]
	if !ok {
		return types.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if c.UserID != userID {
		return types.Category{}, fmt.Errorf("category %s: %w", id, ErrForbidden)
	}
	return c, nil
}

func (s *Store) CreateCategory(userID, title string) (types.Category, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return types.Category{}, fmt.Errorf("%w: title cannot be empty", ErrInvalid)
	}
	ts := now()
	c := types.Category{ID: uuid.NewString(), Title: title, UserID: userID, CreatedAt: ts, UpdatedAt: ts}

	s.mu.Lock()
	s.categories[c.ID] = c
	s.mu.Unlock()
	return c, nil
}

func (s *Store) UpdateCategory(userID, id, title string) (types.Category, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return types.Category{}, fmt.Errorf("%w: title cannot be empty", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.categoryLocked(userID, id)
	if err != nil {
		return types.Category{}, err
	}
	c.Title = title
	c.UpdatedAt = now()
	s.categories[id] = c
	return c, nil
}

// DeleteCategory removes a category. Statements referencing it are left
// untouched and keep the dangling reference.
func (s *Store) DeleteCategory(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.categoryLocked(userID, id); err != nil {
		return err
	}
	delete(s.categories, id)
	return nil
}

// Statements lists userID's statements in creation order.
func (s *Store) Statements(userID string) []types.Statement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Statement, 0)
	for _, st := range s.statements {
		if st.UserID == userID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Statement returns one of userID's statements.
func (s *Store) Statement(userID, id string) (types.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statementLocked(userID, id)
}

func (s *Store) statementLocked(userID, id string) (types.Statement, error) {
	st, ok := s.statements[id]
	if !ok {
		return types.Statement{}, fmt.Errorf("statement %s: %w", id, ErrNotFound)
	}
	if st.UserID != userID {
		return types.Statement{}, fmt.Errorf("statement %s: %w", id, ErrForbidden)
	}
	return st, nil
}

func validateStatement(text, categoryID string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: text cannot be empty", ErrInvalid)
	}
	if strings.TrimSpace(categoryID) == "" {
		return "", fmt.Errorf("%w: category ID cannot be empty", ErrInvalid)
	}
	return text, nil
}

// CreateStatement requires categoryID to name a category owned by userID.
func (s *Store) CreateStatement(userID, text, categoryID string) (types.Statement, error) {
	text, err := validateStatement(text, categoryID)
	if err != nil {
		return types.Statement{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.categoryLocked(userID, categoryID); err != nil {
		return types.Statement{}, err
	}
	ts := now()
	st := types.Statement{
		ID:         uuid.NewString(),
		Text:       text,
		UserID:     userID,
		CategoryID: categoryID,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	s.statements[st.ID] = st
	return st, nil
}

// UpdateStatement replaces text and category reference; the new
// reference must name a category owned by userID.
func (s *Store) UpdateStatement(userID, id, text, categoryID string) (types.Statement, error) {
	text, err := validateStatement(text, categoryID)
	if err != nil {
		return types.Statement{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.statementLocked(userID, id)
	if err != nil {
		return types.Statement{}, err
	}
	if _, err := s.categoryLocked(userID, categoryID); err != nil {
		return types.Statement{}, err
	}
	st.Text = text
	st.CategoryID = categoryID
	st.UpdatedAt = now()
	s.statements[id] = st
	return st, nil
}

func (s *Store) DeleteStatement(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.statementLocked(userID, id); err != nil {
		return err
	}
	delete(s.statements, id)
	return nil
}
