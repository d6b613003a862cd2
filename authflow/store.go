package authflow

import (
	"sync"
	"time"

	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
)

type entry[T any] struct {
	value     T
	createdAt time.Time
}

// TTLStore is a keyed store of short-lived, single-use state. Take and Sweep share
// one mutex so a sweep can never interleave with a take.
type TTLStore[T any] struct {
	mu      sync.Mutex
	name    string
	ttl     time.Duration
	nowTime func() time.Time
	entries map[string]*entry[T]
}

type StoreOption func(*storeOptions)

type storeOptions struct {
	nowTime func() time.Time
}

// WithNowTime injects the clock used for createdAt and lazy expiry checks.
func WithNowTime(nowTime func() time.Time) StoreOption {
	return func(o *storeOptions) {
		o.nowTime = nowTime
	}
}

func NewTTLStore[T any](name string, ttl time.Duration, opts ...StoreOption) *TTLStore[T] {
	o := storeOptions{nowTime: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLStore[T]{
		name:    name,
		ttl:     ttl,
		nowTime: o.nowTime,
		entries: make(map[string]*entry[T]),
	}
}

func (s *TTLStore[T]) Name() string {
	return s.name
}

func (s *TTLStore[T]) TTL() time.Duration {
	return s.ttl
}

// Put stores value under id. Ids are generated by the caller and never reused.
func (s *TTLStore[T]) Put(id string, value T) error {
	if id == "" {
		return autherrors.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; exists {
		return autherrors.ErrAlreadyExists
	}
	s.entries[id] = &entry[T]{value: value, createdAt: s.nowTime()}
	return nil
}

// Take removes and returns the entry. A second Take of the same id always misses.
// Entries past their TTL are removed and reported as ErrExpired even if no sweep has run.
func (s *TTLStore[T]) Take(id string) (T, error) {
	var zero T
	if id == "" {
		return zero, autherrors.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return zero, autherrors.ErrNotFound
	}
	delete(s.entries, id)
	if s.expired(e, s.nowTime()) {
		return zero, autherrors.ErrExpired
	}
	return e.value, nil
}

// Sweep deletes every entry with createdAt + TTL < now and returns how many it removed.
func (s *TTLStore[T]) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *TTLStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *TTLStore[T]) expired(e *entry[T], now time.Time) bool {
	return e.createdAt.Add(s.ttl).Before(now)
}
