package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/intake-agent/internal/appointment"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

var bookingsTracer = otel.Tracer("intake.internal.bookings")

// Trigger records what ended a conversation.
type Trigger string

const (
	// TriggerDone means the patient typed a completion token.
	TriggerDone Trigger = "done"
	// TriggerAllFields means every field in the schema was filled.
	TriggerAllFields Trigger = "all_fields"
)

// Booking is the payload handed off once a conversation is finalized.
type Booking struct {
	ID           uuid.UUID           `json:"id"`
	SessionID    string              `json:"session_id"`
	Details      appointment.Context `json:"details"`
	Summary      string              `json:"summary,omitempty"`
	Confirmation string              `json:"confirmation,omitempty"`
	Trigger      Trigger             `json:"trigger"`
	CompletedAt  time.Time           `json:"completed_at"`
}

// Sink receives finalized bookings.
type Sink interface {
	Record(ctx context.Context, b Booking) error
}

// LogSink writes bookings to the structured log. It is the default when no
// other sink is configured.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, b Booking) error {
	s.logger.Info("booking finalized",
		"booking_id", b.ID.String(),
		"session_id", b.SessionID,
		"trigger", string(b.Trigger),
		"doctor_specialty", b.Details.DoctorSpecialty,
		"preferred_date", b.Details.PreferredDate,
		"preferred_time", b.Details.PreferredTime,
	)
	return nil
}

// Multi fans a booking out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Sink

func (m Multi) Record(ctx context.Context, b Booking) error {
	ctx, span := bookingsTracer.Start(ctx, "bookings.record")
	defer span.End()
	span.SetAttributes(
		attribute.String("intake.booking_id", b.ID.String()),
		attribute.String("intake.session_id", b.SessionID),
	)

	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
	}
	return err
}
