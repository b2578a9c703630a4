package conversation

import (
	"errors"
	"strings"

	"github.com/wolfman30/intake-agent/internal/appointment"
	"github.com/wolfman30/intake-agent/internal/bookings"
	"github.com/wolfman30/intake-agent/internal/extraction"
)

// ErrEmptyMessage is returned for blank turns.
var ErrEmptyMessage = errors.New("conversation: message is required")

// Status tags the outcome of a turn.
type Status string

const (
	StatusCollectingInfo Status = "collecting_info"
	StatusAskSymptoms    Status = "ask_symptoms"
	StatusCompleted      Status = "completed"
	StatusError          Status = "error"
)

// TurnRequest is one user message. A blank SessionID starts a new session.
type TurnRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// TurnResult describes what a turn did. It always carries a snapshot of the
// session's context: the finalized details for completed turns and the
// untouched prior context for failed ones.
type TurnResult struct {
	Status        Status              `json:"status"`
	SessionID     string              `json:"session_id"`
	Message       string              `json:"message"`
	CollectedInfo map[string]string   `json:"collected_info"`
	MissingFields []appointment.Field `json:"missing_fields"`
	Questions     string              `json:"questions,omitempty"`
	ExtractedInfo appointment.Context `json:"extracted_info"`
	Extraction    extraction.Status   `json:"extraction,omitempty"`
	Booking       *bookings.Booking   `json:"booking,omitempty"`
	Error         string              `json:"error,omitempty"`

	err error
}

// Err returns the error behind a StatusError result.
func (r *TurnResult) Err() error {
	if r == nil {
		return nil
	}
	return r.err
}

// Messages the flow sends verbatim.
const (
	askSymptomsMessage = "Great! I have all the required information.\n\n" +
		"Do you have any additional symptoms or concerns you'd like to mention? (Type 'done' if nothing more to add)"
	moreSymptomsMessage = "Got it! Any other symptoms or concerns? (Type 'done' if nothing more to add)"
	finalizedHeadline   = "✅ APPOINTMENT DETAILS FINALIZED!"
	allFilledHeadline   = "✅ ALL APPOINTMENT DETAILS FILLED!"
)

// IsCompletionToken reports whether text ends the symptom follow-up.
func IsCompletionToken(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "done", "no":
		return true
	}
	return false
}
