package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Manager layers session lifecycle rules over a Store.
type Manager struct {
	store Store
	now   func() time.Time
	newID func() string
}

func NewManager(store Store) *Manager {
	if store == nil {
		panic("session: store cannot be nil")
	}
	return &Manager{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

// CreateOrGet resolves id to a session. A blank id mints a new one; an
// unknown id starts a fresh session under that id. The bool reports whether
// the session is new. New sessions are not persisted until Save.
func (m *Manager) CreateOrGet(ctx context.Context, id string) (*Session, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return New(m.newID(), m.now()), true, nil
	}
	sess, err := m.store.Get(ctx, id)
	switch {
	case err == nil:
		return sess, false, nil
	case errors.Is(err, ErrNotFound):
		return New(id, m.now()), true, nil
	default:
		return nil, false, err
	}
}

// Get returns a stored session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrMissingSessionID
	}
	return m.store.Get(ctx, id)
}

// Reset empties the context stored under id. A blank id is a caller error;
// an unknown id is stored as a fresh empty session.
func (m *Manager) Reset(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrMissingSessionID
	}
	sess, _, err := m.CreateOrGet(ctx, id)
	if err != nil {
		return err
	}
	sess.ResetContext()
	return m.Save(ctx, sess)
}

// Save stamps UpdatedAt and persists sess.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session: cannot save nil session")
	}
	sess.UpdatedAt = m.now()
	return m.store.Save(ctx, sess)
}

// ResolveID returns the trimmed id, or a newly minted one when id is blank.
func (m *Manager) ResolveID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return m.newID()
}
