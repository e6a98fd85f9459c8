package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"webpush-demo-backend/internal/model"
	"webpush-demo-backend/internal/vapid"
)

// State is the agent's position in the subscription lifecycle.
type State int

const (
	StateUnregistered State = iota
	StateRegistering
	StateSubscribing
	StateSubscribed
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistering:
		return "registering"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateResetting:
		return "resetting"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// User-visible notices.
const (
	NoticeUnsupported      = "Push notifications need this web app to be installed to your home screen."
	NoticePermissionDenied = "Notifications are blocked. Allow them in your browser settings and try again."
	NoticeSetupFailed      = "Push notification setup failed."
)

// DefaultWorkerScript is the background worker registered by Setup.
const DefaultWorkerScript = "/service.js"

// ErrPermissionDenied is returned when the user does not grant permission.
var ErrPermissionDenied = errors.New("notification permission not granted")

// Config holds the agent's settings.
type Config struct {
	// ServerPublicKey is the server's URL-safe base64 VAPID public key.
	ServerPublicKey   string
	WorkerScript      string
	PermissionTimeout time.Duration
	ForwardTimeout    time.Duration
}

// Agent drives a device through the subscription lifecycle.
type Agent struct {
	platform  Platform
	forwarder Forwarder
	cfg       Config

	// op serializes transitions; mu guards the observable fields.
	op sync.Mutex
	mu sync.RWMutex

	state        State
	permission   Permission
	notice       string
	registration Registration
	subscription *model.PushSubscription
}

// New creates an agent in the Unregistered state.
func New(platform Platform, forwarder Forwarder, cfg Config) *Agent {
	if cfg.WorkerScript == "" {
		cfg.WorkerScript = DefaultWorkerScript
	}
	if cfg.PermissionTimeout <= 0 {
		cfg.PermissionTimeout = time.Minute
	}
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = 10 * time.Second
	}
	return &Agent{
		platform:   platform,
		forwarder:  forwarder,
		cfg:        cfg,
		state:      StateUnregistered,
		permission: platform.Permission(),
	}
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Permission returns the last observed notification permission.
func (a *Agent) Permission() Permission {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.permission
}

// Notice returns the message to show the user, if any.
func (a *Agent) Notice() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.notice
}

// Subscription returns the active subscription.
func (a *Agent) Subscription() (model.PushSubscription, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.subscription == nil {
		return model.PushSubscription{}, false
	}
	return *a.subscription, true
}

func (a *Agent) set(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn()
}

func (a *Agent) setState(s State) {
	a.set(func() { a.state = s })
}

// fail moves back to Unregistered and shows notice.
func (a *Agent) fail(notice string) {
	a.set(func() {
		a.state = StateUnregistered
		a.notice = notice
	})
}

// gate reports whether the host supports push. When it does not, the
// static install notice is shown and no transition happens.
func (a *Agent) gate() bool {
	if a.platform.Capabilities().Supported() {
		return true
	}
	a.set(func() { a.notice = NoticeUnsupported })
	return false
}

// Setup registers the background worker, obtains permission, subscribes
// and forwards the new subscription to the server. An unsupported host is
// not an error: the agent stays Unregistered and Notice explains why.
func (a *Agent) Setup(ctx context.Context) error {
	a.op.Lock()
	defer a.op.Unlock()

	if !a.gate() {
		return nil
	}

	a.set(func() {
		a.state = StateRegistering
		a.notice = ""
	})
	reg, err := a.platform.RegisterWorker(ctx, a.cfg.WorkerScript)
	if err != nil {
		log.Printf("Background worker registration failed: %v", err)
		a.fail(NoticeSetupFailed)
		return fmt.Errorf("register worker: %w", err)
	}
	a.set(func() { a.registration = reg })

	if err := a.ensurePermission(ctx); err != nil {
		return err
	}
	return a.subscribe(ctx, reg)
}

// ensurePermission prompts the user unless permission is already granted.
func (a *Agent) ensurePermission(ctx context.Context) error {
	current := a.platform.Permission()
	a.set(func() { a.permission = current })
	if current == PermissionGranted {
		return nil
	}

	p, err := a.requestPermission(ctx)
	if err != nil {
		log.Printf("Notification permission request failed: %v", err)
		a.fail(NoticeSetupFailed)
		return fmt.Errorf("request permission: %w", err)
	}
	if p != PermissionGranted {
		a.fail(NoticePermissionDenied)
		return ErrPermissionDenied
	}
	return nil
}

func (a *Agent) requestPermission(ctx context.Context) (Permission, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.PermissionTimeout)
	defer cancel()

	p, err := a.platform.RequestPermission(ctx)
	if err != nil {
		return a.Permission(), err
	}
	a.set(func() { a.permission = p })
	return p, nil
}

// subscribe decodes the server key, subscribes through reg and forwards
// the result. A forwarding failure is logged but does not undo the
// subscription.
func (a *Agent) subscribe(ctx context.Context, reg Registration) error {
	a.setState(StateSubscribing)

	key, err := vapid.DecodeKey(a.cfg.ServerPublicKey)
	if err != nil {
		log.Printf("Invalid server public key: %v", err)
		a.fail(NoticeSetupFailed)
		return err
	}

	sub, err := reg.Subscribe(ctx, SubscribeOptions{ApplicationServerKey: key, UserVisibleOnly: true})
	if err != nil {
		log.Printf("Push subscription failed: %v", err)
		a.fail(NoticeSetupFailed)
		return fmt.Errorf("subscribe: %w", err)
	}

	a.set(func() {
		a.state = StateSubscribed
		a.subscription = &sub
		a.notice = ""
	})

	fctx, cancel := context.WithTimeout(ctx, a.cfg.ForwardTimeout)
	defer cancel()
	if err := a.forwarder.Forward(fctx, sub); err != nil {
		log.Printf("Failed to forward subscription %s: %v", sub.Endpoint, err)
	}
	return nil
}

// RequestPermission prompts the user. When permission becomes granted and
// a worker is registered without a subscription, the subscribe step runs.
func (a *Agent) RequestPermission(ctx context.Context) (Permission, error) {
	a.op.Lock()
	defer a.op.Unlock()

	if !a.gate() {
		return a.Permission(), nil
	}

	p, err := a.requestPermission(ctx)
	if err != nil {
		return p, fmt.Errorf("request permission: %w", err)
	}
	if p != PermissionGranted {
		a.set(func() { a.notice = NoticePermissionDenied })
		return p, nil
	}

	a.mu.RLock()
	reg, subscribed := a.registration, a.state == StateSubscribed
	a.mu.RUnlock()
	if reg == nil || subscribed {
		return p, nil
	}
	return p, a.subscribe(ctx, reg)
}

// Reset unregisters every background worker and registers a fresh one.
// It does not subscribe again.
func (a *Agent) Reset(ctx context.Context) error {
	a.op.Lock()
	defer a.op.Unlock()

	if !a.gate() {
		return nil
	}

	a.setState(StateResetting)
	unregErr := a.unregisterAll(ctx)

	reg, err := a.platform.RegisterWorker(ctx, a.cfg.WorkerScript)
	a.set(func() {
		a.state = StateUnregistered
		a.registration = reg
	})
	if err != nil {
		return errors.Join(unregErr, fmt.Errorf("register worker: %w", err))
	}
	return unregErr
}

// Remove unregisters every background worker without registering a new one.
func (a *Agent) Remove(ctx context.Context) error {
	a.op.Lock()
	defer a.op.Unlock()

	if !a.gate() {
		return nil
	}

	err := a.unregisterAll(ctx)
	a.setState(StateUnregistered)
	return err
}

// Unsubscribe drops the push subscription, tells the server and
// unregisters the worker.
func (a *Agent) Unsubscribe(ctx context.Context) error {
	a.op.Lock()
	defer a.op.Unlock()

	a.mu.RLock()
	reg, sub := a.registration, a.subscription
	a.mu.RUnlock()
	if reg == nil || sub == nil {
		return nil
	}

	if err := reg.Unsubscribe(ctx); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	a.set(func() { a.subscription = nil })

	fctx, cancel := context.WithTimeout(ctx, a.cfg.ForwardTimeout)
	defer cancel()
	if err := a.forwarder.Withdraw(fctx, sub.Endpoint); err != nil {
		log.Printf("Failed to withdraw subscription %s: %v", sub.Endpoint, err)
	}

	err := reg.Unregister(ctx)
	a.set(func() {
		a.registration = nil
		a.state = StateUnregistered
	})
	if err != nil {
		return fmt.Errorf("unregister worker: %w", err)
	}
	return nil
}

// unregisterAll unregisters every worker the platform knows about, even
// when some of them fail.
func (a *Agent) unregisterAll(ctx context.Context) error {
	regs, err := a.platform.Registrations(ctx)
	if err != nil {
		return fmt.Errorf("list registrations: %w", err)
	}

	var errs []error
	for _, reg := range regs {
		if err := reg.Unregister(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.set(func() {
		a.registration = nil
		a.subscription = nil
	})
	return errors.Join(errs...)
}
