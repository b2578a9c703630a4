package session

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/intake-agent/internal/appointment"
)

var (
	// ErrMissingSessionID is a caller-input error: the operation needs an id.
	ErrMissingSessionID = errors.New("session: session_id is required")
	// ErrNotFound is returned by stores for unknown or expired ids.
	ErrNotFound = errors.New("session: not found")
	// ErrBusy means the context ended while waiting for another turn on the
	// same session to finish.
	ErrBusy = errors.New("session: another turn is in progress")
)

// Phase is where a session sits in the booking flow.
type Phase string

const (
	// PhaseCollecting: required fields are still being gathered.
	PhaseCollecting Phase = "collecting"
	// PhaseAwaitingSymptoms: required fields are complete and the next
	// message is read as optional extra symptoms or a completion token.
	PhaseAwaitingSymptoms Phase = "awaiting_symptoms"
)

// Session is one conversation's state.
type Session struct {
	ID        string              `json:"id"`
	Context   appointment.Context `json:"context"`
	Phase     Phase               `json:"phase"`
	Turns     int                 `json:"turns"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// New returns an empty session in the collecting phase.
func New(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Phase:     PhaseCollecting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Context = s.Context.Clone()
	return &out
}

// ResetContext empties the collected fields and returns to collecting.
func (s *Session) ResetContext() {
	s.Context = appointment.Context{}
	s.Phase = PhaseCollecting
}

// Store persists sessions by id. Implementations must not hand out aliases
// of stored values: callers mutate what Get returns and call Save.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
