package bookings

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/intake-agent/internal/appointment"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

type mailer interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailConfig holds the SendGrid settings for staff notifications.
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	To        string
}

// EmailSink notifies front-desk staff of each finalized booking via SendGrid.
type EmailSink struct {
	client    mailer
	fromEmail string
	fromName  string
	to        string
	logger    *logging.Logger
}

// NewEmailSink returns nil when the API key or recipient is missing.
func NewEmailSink(cfg EmailConfig, logger *logging.Logger) *EmailSink {
	if cfg.APIKey == "" || cfg.To == "" {
		return nil
	}
	return newEmailSink(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newEmailSink(client mailer, cfg EmailConfig, logger *logging.Logger) *EmailSink {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Intake Agent"
	}
	return &EmailSink{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		to:        cfg.To,
		logger:    logger,
	}
}

func (s *EmailSink) Record(ctx context.Context, b Booking) error {
	if s.client == nil {
		return fmt.Errorf("bookings: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("", s.to)
	subject := emailSubject(b)
	body := emailBody(b)
	message := mail.NewSingleEmail(from, subject, to, body, body)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "booking_id", b.ID.String())
		return fmt.Errorf("bookings: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "booking_id", b.ID.String())
		return fmt.Errorf("bookings: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("booking email sent", "booking_id", b.ID.String(), "status", response.StatusCode)
	return nil
}

func emailSubject(b Booking) string {
	name := b.Details.PatientName
	if name == "" {
		name = "unnamed patient"
	}
	return fmt.Sprintf("New appointment request: %s", name)
}

func emailBody(b Booking) string {
	var sb strings.Builder
	for _, fv := range b.Details.Collected() {
		fmt.Fprintf(&sb, "%s: %s\n", fv.Field.Label(), fv.Value)
	}
	if missing := appointment.MissingRequired(b.Details); len(missing) > 0 {
		fmt.Fprintf(&sb, "\nNot provided: %s\n", appointment.Phrases(missing))
	}
	if b.Summary != "" {
		sb.WriteString("\nSummary:\n")
		sb.WriteString(b.Summary)
		sb.WriteString("\n")
	}
	if b.Confirmation != "" {
		sb.WriteString("\nSent to patient:\n")
		sb.WriteString(b.Confirmation)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nSession: %s\nBooking: %s\n", b.SessionID, b.ID)
	return sb.String()
}
