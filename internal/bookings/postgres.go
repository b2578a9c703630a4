package bookings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink archives bookings in the intake_bookings table.
type PostgresSink struct {
	db execer
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresSink{db: pool}
}

func newPostgresSinkWithExec(db execer) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Record(ctx context.Context, b Booking) error {
	details, err := json.Marshal(b.Details)
	if err != nil {
		return fmt.Errorf("bookings: marshal details: %w", err)
	}
	query := `
		INSERT INTO intake_bookings (id, session_id, patient_name, doctor_specialty, details, summary, confirmation, trigger, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query,
		b.ID,
		b.SessionID,
		b.Details.PatientName,
		b.Details.DoctorSpecialty,
		details,
		b.Summary,
		b.Confirmation,
		string(b.Trigger),
		b.CompletedAt,
	); err != nil {
		return fmt.Errorf("bookings: insert booking: %w", err)
	}
	return nil
}
