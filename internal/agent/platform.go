package agent

import (
	"context"

	"webpush-demo-backend/internal/model"
)

// Permission mirrors the browser's notification permission.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Capabilities lists the host features push notifications depend on.
type Capabilities struct {
	Notifications    bool
	BackgroundWorker bool
	PushManager      bool
}

// Supported reports whether every required feature is present.
func (c Capabilities) Supported() bool {
	return c.Notifications && c.BackgroundWorker && c.PushManager
}

// SubscribeOptions are passed to the push manager.
type SubscribeOptions struct {
	ApplicationServerKey []byte
	UserVisibleOnly      bool
}

// NotificationOptions describe a locally displayed notification.
type NotificationOptions struct {
	Body string
	Icon string
}

// Registration is one registered background worker.
type Registration interface {
	Subscribe(ctx context.Context, opts SubscribeOptions) (model.PushSubscription, error)
	Unsubscribe(ctx context.Context) error
	Unregister(ctx context.Context) error
	ShowNotification(ctx context.Context, title string, opts NotificationOptions) error
}

// Platform is the host environment the agent runs in.
type Platform interface {
	Capabilities() Capabilities
	Permission() Permission
	// RequestPermission prompts the user and blocks until they answer.
	RequestPermission(ctx context.Context) (Permission, error)
	RegisterWorker(ctx context.Context, scriptURL string) (Registration, error)
	Registrations(ctx context.Context) ([]Registration, error)
}

// Forwarder tells the server about subscription changes.
type Forwarder interface {
	Forward(ctx context.Context, sub model.PushSubscription) error
	Withdraw(ctx context.Context, endpoint string) error
}
