package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/intake-agent/internal/appointment"
	"github.com/wolfman30/intake-agent/internal/bookings"
	"github.com/wolfman30/intake-agent/internal/extraction"
	"github.com/wolfman30/intake-agent/internal/observability/metrics"
	"github.com/wolfman30/intake-agent/internal/session"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

// Extractor pulls appointment fields out of a user message.
type Extractor interface {
	Extract(ctx context.Context, utterance string) extraction.Result
}

// Writer generates the prose around a booking. Methods return "" on failure.
type Writer interface {
	Questions(ctx context.Context, missing []appointment.Field) string
	Summary(ctx context.Context, c appointment.Context) string
	Confirmation(ctx context.Context, summary string) string
}

// Service drives the slot-filling flow for every session.
type Service struct {
	sessions     *session.Manager
	locker       *session.Locker
	extractor    Extractor
	writer       Writer
	sink         bookings.Sink
	metrics      *metrics.IntakeMetrics
	logger       *logging.Logger
	now          func() time.Time
	confirmation bool
}

// Option configures a Service.
type Option func(*Service)

// WithSink delivers finalized bookings. Sink failures are logged only.
func WithSink(sink bookings.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithMetrics(m *metrics.IntakeMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithConfirmation toggles generating a summary and confirmation message on
// finalization.
func WithConfirmation(enabled bool) Option {
	return func(s *Service) { s.confirmation = enabled }
}

// WithLocker shares a turn locker between services.
func WithLocker(l *session.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(sessions *session.Manager, extractor Extractor, writer Writer, logger *logging.Logger, opts ...Option) *Service {
	if sessions == nil {
		panic("conversation: session manager cannot be nil")
	}
	if extractor == nil {
		panic("conversation: extractor cannot be nil")
	}
	if writer == nil {
		panic("conversation: writer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		sessions:     sessions,
		locker:       session.NewLocker(),
		extractor:    extractor,
		writer:       writer,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		confirmation: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleTurn processes one message. It never returns nil; failures come back
// as StatusError results and leave the stored session untouched.
func (s *Service) HandleTurn(ctx context.Context, req TurnRequest) (result *TurnResult) {
	id := s.sessions.ResolveID(req.SessionID)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("turn panicked", "session_id", id, "panic", r)
			result = errorResult(id, appointment.Context{}, fmt.Errorf("conversation: turn failed: %v", r))
		}
		s.metrics.ObserveTurn(string(result.Status))
	}()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return errorResult(id, appointment.Context{}, ErrEmptyMessage)
	}

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		s.logger.Warn("turn rejected", "session_id", id, "error", err)
		return errorResult(id, appointment.Context{}, err)
	}
	defer unlock()

	stored, _, err := s.sessions.CreateOrGet(ctx, id)
	if err != nil {
		s.logger.Error("failed to load session", "session_id", id, "error", err)
		return errorResult(id, appointment.Context{}, err)
	}

	// Work on a copy so a failed save leaves the stored context as it was.
	sess := stored.Clone()
	sess.Turns++

	switch sess.Phase {
	case session.PhaseAwaitingSymptoms:
		result, err = s.symptomsTurn(ctx, sess, message)
	default:
		result, err = s.collectingTurn(ctx, sess, message)
	}
	if err != nil {
		s.logger.Error("turn failed", "session_id", id, "error", err)
		return errorResult(id, stored.Context, err)
	}
	return result
}

func (s *Service) collectingTurn(ctx context.Context, sess *session.Session, message string) (*TurnResult, error) {
	extracted := s.extractor.Extract(ctx, message)
	appointment.Merge(&sess.Context, extracted.Fields)

	missing := appointment.MissingRequired(sess.Context)
	if len(missing) > 0 {
		questions := s.writer.Questions(ctx, missing)
		if err := s.sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
		res := snapshotResult(sess, StatusCollectingInfo, collectingMessage(sess.Context, missing, questions))
		res.Questions = questions
		res.Extraction = extracted.Status
		return res, nil
	}

	sess.Phase = session.PhaseAwaitingSymptoms
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	res := snapshotResult(sess, StatusAskSymptoms, askSymptomsMessage)
	res.Extraction = extracted.Status
	return res, nil
}

func (s *Service) symptomsTurn(ctx context.Context, sess *session.Session, message string) (*TurnResult, error) {
	if IsCompletionToken(message) {
		return s.finalize(ctx, sess, bookings.TriggerDone)
	}

	extracted := s.extractor.Extract(ctx, message)
	fields := extracted.Fields
	symptoms := fields.Symptoms
	fields.Symptoms = nil
	appointment.Merge(&sess.Context, fields)
	appointment.AppendSymptoms(&sess.Context, symptoms)

	if appointment.AllFilled(sess.Context) {
		res, err := s.finalize(ctx, sess, bookings.TriggerAllFields)
		if res != nil {
			res.Extraction = extracted.Status
		}
		return res, err
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	res := snapshotResult(sess, StatusAskSymptoms, moreSymptomsMessage)
	res.Extraction = extracted.Status
	return res, nil
}

// finalize hands the booking to the sink and empties the session's context
// for reuse under the same id.
func (s *Service) finalize(ctx context.Context, sess *session.Session, trigger bookings.Trigger) (*TurnResult, error) {
	booking := bookings.Booking{
		ID:          uuid.New(),
		SessionID:   sess.ID,
		Details:     sess.Context.Clone(),
		Trigger:     trigger,
		CompletedAt: s.now(),
	}
	if s.confirmation {
		booking.Summary = s.writer.Summary(ctx, booking.Details)
		if booking.Summary != "" {
			booking.Confirmation = s.writer.Confirmation(ctx, booking.Summary)
		}
	}

	sess.ResetContext()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.metrics.ObserveBooking(string(trigger))
	s.logger.Info("booking finalized", "session_id", sess.ID, "booking_id", booking.ID.String(), "trigger", string(trigger))
	if s.sink != nil {
		if err := s.sink.Record(ctx, booking); err != nil {
			s.logger.Error("failed to deliver booking", "session_id", sess.ID, "booking_id", booking.ID.String(), "error", err)
		}
	}

	return &TurnResult{
		Status:        StatusCompleted,
		SessionID:     sess.ID,
		Message:       finalizedMessage(booking),
		CollectedInfo: booking.Details.CollectedMap(),
		MissingFields: nonNil(appointment.MissingRequired(booking.Details)),
		ExtractedInfo: booking.Details,
		Booking:       &booking,
	}, nil
}

// Reset empties a session's context. A blank id is a caller error.
func (s *Service) Reset(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return session.ErrMissingSessionID
	}
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	if err := s.sessions.Reset(ctx, id); err != nil {
		return fmt.Errorf("conversation: reset %s: %w", id, err)
	}
	s.logger.Info("session reset", "session_id", id)
	return nil
}

// Snapshot returns the stored session without advancing it.
func (s *Service) Snapshot(ctx context.Context, id string) (*session.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, session.ErrMissingSessionID
	}
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.sessions.Get(ctx, id)
}

func snapshotResult(sess *session.Session, status Status, message string) *TurnResult {
	return &TurnResult{
		Status:        status,
		SessionID:     sess.ID,
		Message:       message,
		CollectedInfo: sess.Context.CollectedMap(),
		MissingFields: nonNil(appointment.MissingRequired(sess.Context)),
		ExtractedInfo: sess.Context.Clone(),
	}
}

func errorResult(id string, c appointment.Context, err error) *TurnResult {
	return &TurnResult{
		Status:        StatusError,
		SessionID:     id,
		Message:       err.Error(),
		CollectedInfo: c.CollectedMap(),
		MissingFields: nonNil(appointment.MissingRequired(c)),
		ExtractedInfo: c.Clone(),
		Error:         err.Error(),
		err:           err,
	}
}

func nonNil(fields []appointment.Field) []appointment.Field {
	if fields == nil {
		return []appointment.Field{}
	}
	return fields
}
