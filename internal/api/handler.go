package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"webpush-demo-backend/internal/model"
	"webpush-demo-backend/internal/notification"
	"webpush-demo-backend/internal/store"
)

// Broadcaster queues a payload for every given subscription.
type Broadcaster interface {
	Broadcast(subs []model.PushSubscription, payload model.Payload) (*notification.Batch, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	registry   store.Registry
	dispatcher Broadcaster
	webpush    *webpush.Options
	payload    model.Payload
}

// NewHandler creates a new API handler. payload is the fixed message sent
// by every broadcast.
func NewHandler(r store.Registry, d Broadcaster, webpushOptions *webpush.Options, payload model.Payload) *Handler {
	return &Handler{
		registry:   r,
		dispatcher: d,
		webpush:    webpushOptions,
		payload:    payload,
	}
}
