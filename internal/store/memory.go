package store

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"webpush-demo-backend/internal/model"
)

// memoryStore keeps subscriptions for the lifetime of the process.
type memoryStore struct {
	mu     sync.RWMutex
	policy DuplicatePolicy
	subs   []model.PushSubscription
	now    func() time.Time
}

// NewMemoryStore creates an empty in-process registry.
func NewMemoryStore(policy DuplicatePolicy) Registry {
	return &memoryStore{policy: policy, now: time.Now}
}

func (s *memoryStore) Add(_ context.Context, sub model.PushSubscription) (Snapshot, error) {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.policy == PolicyReplace {
		s.subs = slices.DeleteFunc(s.subs, func(existing model.PushSubscription) bool {
			return existing.Endpoint == sub.Endpoint
		})
	}
	s.subs = append(s.subs, sub)
	return Snapshot{Subscriptions: cloneSubs(s.subs)}, nil
}

func (s *memoryStore) ListAll(_ context.Context) (iter.Seq[model.PushSubscription], error) {
	s.mu.RLock()
	subs := cloneSubs(s.subs)
	s.mu.RUnlock()
	return slices.Values(subs), nil
}

func (s *memoryStore) Latest(_ context.Context) (model.PushSubscription, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.subs) == 0 {
		return model.PushSubscription{}, false, nil
	}
	return s.subs[len(s.subs)-1], true, nil
}

func (s *memoryStore) Remove(_ context.Context, endpoint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.subs)
	s.subs = slices.DeleteFunc(s.subs, func(existing model.PushSubscription) bool {
		return existing.Endpoint == endpoint
	})
	return len(s.subs) != before, nil
}

func (s *memoryStore) Snapshot(_ context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Subscriptions: cloneSubs(s.subs)}, nil
}

// cloneSubs copies subs into a non-nil slice so snapshots encode as [].
func cloneSubs(subs []model.PushSubscription) []model.PushSubscription {
	return append(make([]model.PushSubscription, 0, len(subs)), subs...)
}
