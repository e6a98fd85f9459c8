package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"webpush-demo-backend/internal/model"
	"webpush-demo-backend/internal/vapid"
)

// DefaultIcon is shown on every notification the worker displays.
const DefaultIcon = "/icons/icon-192.png"

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Icon string
	// EagerSubscribe makes HandleActivate subscribe and forward on its own.
	EagerSubscribe  bool
	ServerPublicKey string
}

// Worker handles the events delivered to a background worker.
type Worker struct {
	registration Registration
	forwarder    Forwarder
	cfg          WorkerConfig
}

// NewWorker creates a Worker bound to reg.
func NewWorker(reg Registration, forwarder Forwarder, cfg WorkerConfig) *Worker {
	if cfg.Icon == "" {
		cfg.Icon = DefaultIcon
	}
	return &Worker{registration: reg, forwarder: forwarder, cfg: cfg}
}

// HandlePush shows the notification carried by a push message. Messages
// without data are ignored.
func (w *Worker) HandlePush(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		log.Println("Push event but no data")
		return nil
	}

	var msg model.Payload
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode push message: %w", err)
	}

	icon := w.cfg.Icon
	if msg.Icon != "" {
		icon = msg.Icon
	}
	return w.registration.ShowNotification(ctx, msg.Title, NotificationOptions{
		Body: msg.Body,
		Icon: icon,
	})
}

// HandleActivate runs when the worker becomes active. With EagerSubscribe
// set it subscribes and forwards the subscription without the host page.
func (w *Worker) HandleActivate(ctx context.Context) error {
	if !w.cfg.EagerSubscribe {
		return nil
	}

	key, err := vapid.DecodeKey(w.cfg.ServerPublicKey)
	if err != nil {
		return err
	}
	sub, err := w.registration.Subscribe(ctx, SubscribeOptions{ApplicationServerKey: key, UserVisibleOnly: true})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := w.forwarder.Forward(ctx, sub); err != nil {
		return fmt.Errorf("forward subscription: %w", err)
	}
	return nil
}
