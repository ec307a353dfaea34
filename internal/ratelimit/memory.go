package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps every bucket in a mutex-guarded map. It is only shared within one process.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string][]time.Time)}
}

func (s *MemoryStore) Attempt(_ context.Context, key string, now time.Time, rule Rule) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := prune(s.buckets[key], now.Add(-rule.Window))

	allowed := len(bucket) < rule.MaxAttempts
	if allowed {
		bucket = append(bucket, now)
	}
	s.buckets[key] = bucket

	s.sweep(now)
	return allowed, nil
}

func (s *MemoryStore) Count(_ context.Context, key string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	n := 0
	for _, t := range s.buckets[key] {
		if t.After(cutoff) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of non-empty buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// sweep drops stale timestamps from every bucket and removes the buckets left empty.
// Callers hold s.mu.
func (s *MemoryStore) sweep(now time.Time) {
	cutoff := now.Add(-housekeepingAge)
	for key, bucket := range s.buckets {
		bucket = prune(bucket, cutoff)
		if len(bucket) == 0 {
			delete(s.buckets, key)
			continue
		}
		s.buckets[key] = bucket
	}
}
