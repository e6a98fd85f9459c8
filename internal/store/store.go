package store

import (
	"context"
	"iter"
	"slices"

	"webpush-demo-backend/internal/model"
)

// Registry defines the operations on the set of active push subscriptions.
type Registry interface {
	// Add stores sub and returns the updated collection.
	Add(ctx context.Context, sub model.PushSubscription) (Snapshot, error)
	// ListAll returns every stored subscription in insertion order. The
	// sequence is resolved from a copy taken at call time; call again for
	// fresh data.
	ListAll(ctx context.Context) (iter.Seq[model.PushSubscription], error)
	// Latest returns the most recently added subscription, if any.
	Latest(ctx context.Context) (model.PushSubscription, bool, error)
	// Remove deletes every entry for endpoint and reports whether one existed.
	Remove(ctx context.Context, endpoint string) (bool, error)
	// Snapshot returns the full registry contents.
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Collect drains a ListAll sequence into a slice.
func Collect(ctx context.Context, r Registry) ([]model.PushSubscription, error) {
	seq, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}
