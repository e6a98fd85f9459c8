package model

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
)

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	ID             int64            `gorm:"primaryKey;autoIncrement" json:"-"`
	Endpoint       string           `gorm:"index;not null" json:"endpoint" binding:"required"`
	ExpirationTime *int64           `json:"expirationTime,omitempty"`
	Keys           SubscriptionKeys `gorm:"embedded" json:"keys"`
	CreatedAt      time.Time        `gorm:"not null" json:"createdAt"`
}

// SubscriptionKeys is the encryption material issued by the push service.
// The values are passed through to the push transport untouched.
type SubscriptionKeys struct {
	P256DH string `gorm:"column:p256dh;not null" json:"p256dh" binding:"required"`
	Auth   string `gorm:"not null" json:"auth" binding:"required"`
}

// WebPush converts the subscription into the form expected by webpush-go.
func (s PushSubscription) WebPush() *webpush.Subscription {
	return &webpush.Subscription{
		Endpoint: s.Endpoint,
		Keys: webpush.Keys{
			P256dh: s.Keys.P256DH,
			Auth:   s.Keys.Auth,
		},
	}
}

// ExpiredAt reports whether the push service's advertised expiration
// (milliseconds since the epoch) is at or before now. Subscriptions without
// an expiration never expire.
func (s PushSubscription) ExpiredAt(now time.Time) bool {
	if s.ExpirationTime == nil {
		return false
	}
	return !now.Before(time.UnixMilli(*s.ExpirationTime))
}
