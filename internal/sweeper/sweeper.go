package sweeper

import (
	"context"
	"log"
	"time"

	"webpush-demo-backend/internal/store"
)

// Service periodically removes subscriptions whose expirationTime has passed.
type Service struct {
	registry store.Registry
	interval time.Duration
	now      func() time.Time
}

// NewService creates a sweeper over registry. A non-positive interval
// disables Run.
func NewService(registry store.Registry, interval time.Duration) *Service {
	return &Service{
		registry: registry,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if s.interval <= 0 {
		log.Println("Subscription sweeper is disabled. Not starting.")
		return
	}
	log.Printf("Starting subscription sweeper (interval %s)...", s.interval)

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Subscription sweeper shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// SweepOnce removes every expired subscription and returns their endpoints.
func (s *Service) SweepOnce(ctx context.Context) []string {
	subs, err := s.registry.ListAll(ctx)
	if err != nil {
		log.Printf("Error listing subscriptions: %v", err)
		return nil
	}

	now := s.now()
	var removed []string
	for sub := range subs {
		if !sub.ExpiredAt(now) {
			continue
		}
		ok, err := s.registry.Remove(ctx, sub.Endpoint)
		if err != nil {
			log.Printf("Error removing expired subscription %s: %v", sub.Endpoint, err)
			continue
		}
		if ok {
			removed = append(removed, sub.Endpoint)
		}
	}

	if len(removed) > 0 {
		log.Printf("Sweep finished: removed %d expired subscriptions", len(removed))
	}
	return removed
}
