package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/intake-agent/internal/appointment"
	"github.com/wolfman30/intake-agent/internal/observability/metrics"
)

func sampleSession(id string) *Session {
	s := New(id, time.Date(2026, 1, 4, 10, 0, 0, 0, time.UTC))
	s.Context = appointment.Context{
		PatientName: "Asha",
		Reason:      "cough, fever",
		Symptoms:    []string{"cough", "fever"},
	}
	s.Phase = PhaseAwaitingSymptoms
	s.Turns = 3
	return s
}

func TestMemoryStoreRoundTripDoesNotAlias(t *testing.T) {
	store := NewMemoryStore(10, time.Hour, nil)
	ctx := context.Background()
	orig := sampleSession("s1")
	if err := store.Save(ctx, orig); err != nil {
		t.Fatalf("Save: %v", err)
	}
	orig.Context.Symptoms[0] = "mutated"

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Context.Symptoms[0] != "cough" {
		t.Fatalf("store aliased caller slice: %v", got.Context.Symptoms)
	}
	got.Context.PatientName = "changed"
	again, _ := store.Get(ctx, "s1")
	if again.Context.PatientName != "Asha" {
		t.Fatalf("store aliased returned session")
	}
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	store := NewMemoryStore(2, time.Hour, nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := store.Save(ctx, New(id, time.Now())); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	if _, err := store.Get(ctx, "a"); err != nil {
		t.Fatalf("Get a: %v", err)
	}
	if err := store.Save(ctx, New("c", time.Now())); err != nil {
		t.Fatalf("Save c: %v", err)
	}

	if _, err := store.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected b to be evicted, got %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", store.Len())
	}
}

func TestMemoryStoreExpiresIdleSessions(t *testing.T) {
	store := NewMemoryStore(10, 50*time.Millisecond, nil)
	ctx := context.Background()
	if err := store.Save(ctx, New("short", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if _, err := store.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func activeSessionsGauge(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "intake_sessions_active" {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("intake_sessions_active not registered")
	return 0
}

func waitForGauge(t *testing.T, reg *prometheus.Registry, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if activeSessionsGauge(t, reg) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sessions_active = %v, want %v", activeSessionsGauge(t, reg), want)
}

func TestMemoryStoreGaugeFollowsExpiry(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := NewMemoryStore(10, 50*time.Millisecond, metrics.NewIntakeMetrics(reg))
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := store.Save(ctx, New(id, time.Now())); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	if got := activeSessionsGauge(t, reg); got != 2 {
		t.Fatalf("sessions_active = %v, want 2", got)
	}

	waitForGauge(t, reg, 0)
}

func TestMemoryStoreGaugeFollowsCapacityEviction(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := NewMemoryStore(1, time.Hour, metrics.NewIntakeMetrics(reg))
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, New(id, time.Now())); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	waitForGauge(t, reg, 1)
	if err := store.Delete(ctx, "c"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	waitForGauge(t, reg, 0)
}

func TestMemoryStoreRejectsMissingID(t *testing.T) {
	store := NewMemoryStore(0, 0, nil)
	if err := store.Save(context.Background(), &Session{}); !errors.Is(err, ErrMissingSessionID) {
		t.Fatalf("expected ErrMissingSessionID, got %v", err)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, 30*time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSession("abc")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL(sessionKey("abc")); ttl != 30*time.Minute {
		t.Fatalf("expected 30m ttl, got %s", ttl)
	}

	got, err := store.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Context.PatientName != "Asha" || got.Phase != PhaseAwaitingSymptoms || got.Turns != 3 {
		t.Fatalf("unexpected session %#v", got)
	}
	if len(got.Context.Symptoms) != 2 || got.Context.Symptoms[1] != "fever" {
		t.Fatalf("symptom list not preserved: %#v", got.Context.Symptoms)
	}

	if err := store.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisStoreReportsBackendErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, time.Minute)

	mr.SetError("READONLY You can't write against a read only replica.")
	err := store.Save(context.Background(), sampleSession("x"))
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestRedisStoreCorruptPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, time.Minute)
	if err := mr.Set(sessionKey("bad"), "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(context.Background(), "bad"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestManagerCreateOrGet(t *testing.T) {
	store := NewMemoryStore(10, time.Hour, nil)
	m := NewManager(store)
	ctx := context.Background()

	fresh, created, err := m.CreateOrGet(ctx, "")
	if err != nil || !created || fresh.ID == "" {
		t.Fatalf("expected minted session, got %#v created=%v err=%v", fresh, created, err)
	}
	if fresh.Phase != PhaseCollecting || len(fresh.Context.Collected()) != 0 {
		t.Fatalf("new session should be empty and collecting")
	}

	unknown, created, err := m.CreateOrGet(ctx, "client-chosen")
	if err != nil || !created || unknown.ID != "client-chosen" {
		t.Fatalf("expected fresh session under supplied id, got %#v created=%v err=%v", unknown, created, err)
	}

	unknown.Context.PatientName = "Asha"
	if err := m.Save(ctx, unknown); err != nil {
		t.Fatalf("Save: %v", err)
	}
	known, created, err := m.CreateOrGet(ctx, "client-chosen")
	if err != nil || created || known.Context.PatientName != "Asha" {
		t.Fatalf("expected stored session, got %#v created=%v err=%v", known, created, err)
	}
}

func TestManagerResetRequiresID(t *testing.T) {
	store := NewMemoryStore(10, time.Hour, nil)
	m := NewManager(store)
	ctx := context.Background()
	if err := store.Save(ctx, sampleSession("keep")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := m.Reset(ctx, "  "); !errors.Is(err, ErrMissingSessionID) {
		t.Fatalf("expected ErrMissingSessionID, got %v", err)
	}
	kept, err := store.Get(ctx, "keep")
	if err != nil || kept.Context.PatientName != "Asha" {
		t.Fatalf("existing session should be untouched, got %#v err=%v", kept, err)
	}
}

func TestManagerResetEmptiesContext(t *testing.T) {
	store := NewMemoryStore(10, time.Hour, nil)
	m := NewManager(store)
	ctx := context.Background()
	if err := store.Save(ctx, sampleSession("s")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := m.Reset(ctx, "s"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	got, err := store.Get(ctx, "s")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Context.Collected()) != 0 || got.Phase != PhaseCollecting {
		t.Fatalf("expected empty collecting session, got %#v", got)
	}

	if err := m.Reset(ctx, "never-seen"); err != nil {
		t.Fatalf("Reset unknown: %v", err)
	}
	if _, err := store.Get(ctx, "never-seen"); err != nil {
		t.Fatalf("unknown id should now exist: %v", err)
	}
}

func TestLockerSerializesSameID(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "same")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxInside)
	}
	if l.held() != 0 {
		t.Fatalf("expected lock table to be empty, got %d", l.held())
	}
}

func TestLockerTimesOutWithErrBusy(t *testing.T) {
	l := NewLocker()
	unlock, err := l.Lock(context.Background(), "s")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "s"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	other, err := l.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("different ids must not block: %v", err)
	}
	other()
	other()
}

func TestManagerResolveID(t *testing.T) {
	m := NewManager(NewMemoryStore(10, time.Hour, nil))
	m.newID = func() string { return "minted" }

	if got := m.ResolveID("  abc "); got != "abc" {
		t.Fatalf("expected trimmed id, got %q", got)
	}
	if got := m.ResolveID(" "); got != "minted" {
		t.Fatalf("expected minted id, got %q", got)
	}
}
