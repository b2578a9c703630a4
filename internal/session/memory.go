package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wolfman30/intake-agent/internal/observability/metrics"
)

const (
	defaultCapacity = 10000
	defaultTTL      = 24 * time.Hour
)

// MemoryStore keeps sessions in process, bounded by capacity (least recently
// used is evicted first) and by an idle TTL.
type MemoryStore struct {
	cache   *expirable.LRU[string, *Session]
	metrics *metrics.IntakeMetrics

	// gaugeMu orders Len-then-Set so the last refresh always wins.
	gaugeMu sync.Mutex
	// refreshPending coalesces gauge refreshes after evictions.
	refreshPending atomic.Bool
}

func NewMemoryStore(capacity int, ttl time.Duration, m *metrics.IntakeMetrics) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s := &MemoryStore{metrics: m}
	s.cache = expirable.NewLRU[string, *Session](capacity, s.onEvict, ttl)
	return s
}

// onEvict runs with the cache lock held, so the gauge is refreshed from a
// separate goroutine once the lock is released.
func (s *MemoryStore) onEvict(string, *Session) {
	if s.metrics == nil || !s.refreshPending.CompareAndSwap(false, true) {
		return
	}
	go func() {
		s.refreshPending.Store(false)
		s.refreshGauge()
	}()
}

func (s *MemoryStore) refreshGauge() {
	if s.metrics == nil {
		return
	}
	s.gaugeMu.Lock()
	defer s.gaugeMu.Unlock()
	s.metrics.SetActiveSessions(s.cache.Len())
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("session: cannot save nil session")
	}
	if sess.ID == "" {
		return ErrMissingSessionID
	}
	s.cache.Add(sess.ID, sess.Clone())
	s.refreshGauge()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Remove(id)
	s.refreshGauge()
	return nil
}

// Len reports how many sessions are held.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
