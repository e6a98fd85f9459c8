package store

import (
	"fmt"

	"webpush-demo-backend/internal/model"
)

// DuplicatePolicy decides what Add does with an endpoint that is already stored.
type DuplicatePolicy string

const (
	// PolicyReplace keys the registry by endpoint. The old entry is dropped
	// and the new one becomes the latest.
	PolicyReplace DuplicatePolicy = "replace"
	// PolicyAppend stores every Add as a new entry, even for a known endpoint.
	PolicyAppend DuplicatePolicy = "append"
)

// ParseDuplicatePolicy maps a config value to a policy. Empty means replace.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case "", PolicyReplace:
		return PolicyReplace, nil
	case PolicyAppend:
		return PolicyAppend, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// Snapshot is a point-in-time copy of the registry, in insertion order.
type Snapshot struct {
	Subscriptions []model.PushSubscription `json:"subscriptions"`
}

// Len returns the number of stored subscriptions.
func (s Snapshot) Len() int { return len(s.Subscriptions) }

// Latest returns the most recently added subscription.
func (s Snapshot) Latest() (model.PushSubscription, bool) {
	if len(s.Subscriptions) == 0 {
		return model.PushSubscription{}, false
	}
	return s.Subscriptions[len(s.Subscriptions)-1], true
}
