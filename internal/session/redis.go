package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/intake-agent/internal/appointment"
)

// RedisStore persists sessions as JSON with a sliding TTL.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("intake.internal.session"),
	}
}

// record is the storage shape. Symptoms stay a list so appends survive a
// round trip without being re-split.
type record struct {
	ID        string            `json:"id"`
	Fields    map[string]string `json:"fields"`
	Symptoms  []string          `json:"symptoms,omitempty"`
	Phase     Phase             `json:"phase"`
	Turns     int               `json:"turns"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func toRecord(s *Session) record {
	fields := make(map[string]string)
	for _, fv := range s.Context.Collected() {
		if fv.Field == appointment.FieldSymptoms {
			continue
		}
		fields[string(fv.Field)] = fv.Value
	}
	return record{
		ID:        s.ID,
		Fields:    fields,
		Symptoms:  append([]string(nil), s.Context.Symptoms...),
		Phase:     s.Phase,
		Turns:     s.Turns,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromRecord(r record) (*Session, error) {
	raw := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		raw[k] = v
	}
	if len(r.Symptoms) > 0 {
		raw[string(appointment.FieldSymptoms)] = r.Symptoms
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var c appointment.Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	phase := r.Phase
	if phase == "" {
		phase = PhaseCollecting
	}
	return &Session{
		ID:        r.ID,
		Context:   c,
		Phase:     phase,
		Turns:     r.Turns,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.load")
	defer span.End()
	span.SetAttributes(attribute.String("intake.session_id", id))

	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load session: %w", err)
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode session: %w", err)
	}
	sess, err := fromRecord(r)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode context: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "session.save")
	defer span.End()

	if sess == nil {
		return errors.New("session: cannot save nil session")
	}
	if sess.ID == "" {
		return ErrMissingSessionID
	}
	span.SetAttributes(attribute.String("intake.session_id", sess.ID))

	data, err := json.Marshal(toRecord(sess))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sess.ID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(id)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete session: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("intake:session:%s", id)
}
