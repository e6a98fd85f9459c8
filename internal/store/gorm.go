package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"gorm.io/gorm"

	"webpush-demo-backend/internal/model"
)

// gormStore implements the Registry interface using GORM.
type gormStore struct {
	db     *gorm.DB
	policy DuplicatePolicy
}

// NewGormStore creates a new GORM-backed registry. The push_subscriptions
// table must already be migrated.
func NewGormStore(db *gorm.DB, policy DuplicatePolicy) Registry {
	return &gormStore{db: db, policy: policy}
}

// Add inserts the subscription, first removing older rows for the same
// endpoint when the replace policy is active. The returned snapshot is read
// inside the same transaction and always contains the inserted row.
func (s *gormStore) Add(ctx context.Context, sub model.PushSubscription) (Snapshot, error) {
	sub.ID = 0
	subs := make([]model.PushSubscription, 0)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.policy == PolicyReplace {
			if err := tx.Where("endpoint = ?", sub.Endpoint).Delete(&model.PushSubscription{}).Error; err != nil {
				return fmt.Errorf("failed to replace subscription %s: %w", sub.Endpoint, err)
			}
		}
		if err := tx.Create(&sub).Error; err != nil {
			return fmt.Errorf("failed to insert subscription %s: %w", sub.Endpoint, err)
		}
		if err := tx.Order("id").Find(&subs).Error; err != nil {
			return fmt.Errorf("failed to fetch subscriptions: %w", err)
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Subscriptions: subs}, nil
}

func (s *gormStore) ListAll(ctx context.Context) (iter.Seq[model.PushSubscription], error) {
	subs, err := s.fetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Values(subs), nil
}

func (s *gormStore) Latest(ctx context.Context) (model.PushSubscription, bool, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).Order("id DESC").First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PushSubscription{}, false, nil
	}
	if err != nil {
		return model.PushSubscription{}, false, fmt.Errorf("failed to fetch latest subscription: %w", err)
	}
	return sub, true, nil
}

func (s *gormStore) Remove(ctx context.Context, endpoint string) (bool, error) {
	res := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&model.PushSubscription{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete subscription %s: %w", endpoint, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) Snapshot(ctx context.Context) (Snapshot, error) {
	subs, err := s.fetchAll(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Subscriptions: subs}, nil
}

func (s *gormStore) fetchAll(ctx context.Context) ([]model.PushSubscription, error) {
	subs := make([]model.PushSubscription, 0)
	if err := s.db.WithContext(ctx).Order("id").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions: %w", err)
	}
	return subs, nil
}
