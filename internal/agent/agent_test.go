package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpush-demo-backend/internal/model"
	"webpush-demo-backend/internal/vapid"
)

const testServerKey = "BJ5IxJBWdeqFDJTvrZ4wNRu7UY2XigDXjgiUBYEYVXDudxhEs0ReOJRBcBHsPYgZ5dyV8VjyqzbQKS8V7bUAglk"

type fakeRegistration struct {
	mu            sync.Mutex
	endpoint      string
	subscribeErr  error
	subscribeOpts []SubscribeOptions
	unsubscribed  bool
	unregistered  bool
	notifications []string
	options       []NotificationOptions
}

func (r *fakeRegistration) Subscribe(_ context.Context, opts SubscribeOptions) (model.PushSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribeOpts = append(r.subscribeOpts, opts)
	if r.subscribeErr != nil {
		return model.PushSubscription{}, r.subscribeErr
	}
	return model.PushSubscription{
		Endpoint: r.endpoint,
		Keys:     model.SubscriptionKeys{P256DH: "p256dh-key", Auth: "auth-secret"},
	}, nil
}

func (r *fakeRegistration) Unsubscribe(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribed = true
	return nil
}

func (r *fakeRegistration) Unregister(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregistered = true
	return nil
}

func (r *fakeRegistration) ShowNotification(_ context.Context, title string, opts NotificationOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, title)
	r.options = append(r.options, opts)
	return nil
}

type fakePlatform struct {
	mu           sync.Mutex
	caps         Capabilities
	permission   Permission
	answer       Permission
	block        bool
	registerErr  error
	registered   []*fakeRegistration
	active       []*fakeRegistration
	permRequests int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		caps:       Capabilities{Notifications: true, BackgroundWorker: true, PushManager: true},
		permission: PermissionDefault,
		answer:     PermissionGranted,
	}
}

func (p *fakePlatform) Capabilities() Capabilities { return p.caps }

func (p *fakePlatform) Permission() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

func (p *fakePlatform) RequestPermission(ctx context.Context) (Permission, error) {
	p.mu.Lock()
	p.permRequests++
	block := p.block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return PermissionDefault, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.permission = p.answer
	return p.answer, nil
}

func (p *fakePlatform) RegisterWorker(_ context.Context, _ string) (Registration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.registerErr != nil {
		return nil, p.registerErr
	}
	reg := &fakeRegistration{endpoint: "https://push.example.com/sub/" + string(rune('a'+len(p.registered)))}
	p.registered = append(p.registered, reg)
	p.active = append(p.active, reg)
	return reg, nil
}

func (p *fakePlatform) Registrations(context.Context) ([]Registration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Registration, 0, len(p.active))
	for _, r := range p.active {
		out = append(out, r)
	}
	p.active = nil
	return out, nil
}

func (p *fakePlatform) registerCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.registered)
}

type fakeForwarder struct {
	mu        sync.Mutex
	forwarded []model.PushSubscription
	withdrawn []string
	err       error
}

func (f *fakeForwarder) Forward(_ context.Context, sub model.PushSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwarded = append(f.forwarded, sub)
	return f.err
}

func (f *fakeForwarder) Withdraw(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawn = append(f.withdrawn, endpoint)
	return f.err
}

func newTestAgent(p *fakePlatform, f *fakeForwarder) *Agent {
	return New(p, f, Config{
		ServerPublicKey:   testServerKey,
		PermissionTimeout: time.Second,
		ForwardTimeout:    time.Second,
	})
}

func TestSetup_Subscribes(t *testing.T) {
	p := newFakePlatform()
	f := &fakeForwarder{}
	a := newTestAgent(p, f)

	require.NoError(t, a.Setup(context.Background()))

	assert.Equal(t, StateSubscribed, a.State())
	assert.Equal(t, PermissionGranted, a.Permission())
	assert.Empty(t, a.Notice())
	assert.Equal(t, 1, p.permRequests)

	sub, ok := a.Subscription()
	require.True(t, ok)
	require.Len(t, f.forwarded, 1)
	assert.Equal(t, sub.Endpoint, f.forwarded[0].Endpoint)

	reg := p.registered[0]
	require.Len(t, reg.subscribeOpts, 1)
	assert.True(t, reg.subscribeOpts[0].UserVisibleOnly)
	assert.Len(t, reg.subscribeOpts[0].ApplicationServerKey, 65)
}

func TestSetup_SkipsPromptWhenAlreadyGranted(t *testing.T) {
	p := newFakePlatform()
	p.permission = PermissionGranted
	a := newTestAgent(p, &fakeForwarder{})

	require.NoError(t, a.Setup(context.Background()))

	assert.Equal(t, StateSubscribed, a.State())
	assert.Zero(t, p.permRequests)
}

func TestSetup_UnsupportedHost(t *testing.T) {
	cases := map[string]Capabilities{
		"no notifications":     {BackgroundWorker: true, PushManager: true},
		"no background worker": {Notifications: true, PushManager: true},
		"no push manager":      {Notifications: true, BackgroundWorker: true},
		"nothing supported":    {},
	}
	for name, caps := range cases {
		t.Run(name, func(t *testing.T) {
			p := newFakePlatform()
			p.caps = caps
			f := &fakeForwarder{}
			a := newTestAgent(p, f)

			require.NoError(t, a.Setup(context.Background()))

			assert.Equal(t, StateUnregistered, a.State())
			assert.Equal(t, NoticeUnsupported, a.Notice())
			assert.Zero(t, p.registerCalls())
			assert.Zero(t, p.permRequests)
			assert.Empty(t, f.forwarded)
		})
	}
}

func TestSetup_PermissionDenied(t *testing.T) {
	p := newFakePlatform()
	p.answer = PermissionDenied
	f := &fakeForwarder{}
	a := newTestAgent(p, f)

	err := a.Setup(context.Background())

	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, StateUnregistered, a.State())
	assert.Equal(t, PermissionDenied, a.Permission())
	assert.Equal(t, NoticePermissionDenied, a.Notice())
	assert.Empty(t, p.registered[0].subscribeOpts)
	assert.Empty(t, f.forwarded)
}

func TestSetup_PermissionTimeout(t *testing.T) {
	p := newFakePlatform()
	p.block = true
	a := New(p, &fakeForwarder{}, Config{
		ServerPublicKey:   testServerKey,
		PermissionTimeout: 20 * time.Millisecond,
	})

	err := a.Setup(context.Background())

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateUnregistered, a.State())
	assert.Equal(t, NoticeSetupFailed, a.Notice())
}

func TestSetup_InvalidServerKey(t *testing.T) {
	p := newFakePlatform()
	f := &fakeForwarder{}
	a := New(p, f, Config{ServerPublicKey: "A"})

	err := a.Setup(context.Background())

	require.ErrorIs(t, err, vapid.ErrDecode)
	var decodeErr *vapid.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, StateUnregistered, a.State())
	assert.Equal(t, NoticeSetupFailed, a.Notice())
	assert.Empty(t, f.forwarded)
}

func TestSetup_RegisterFailure(t *testing.T) {
	p := newFakePlatform()
	p.registerErr = errors.New("script not found")
	a := newTestAgent(p, &fakeForwarder{})

	err := a.Setup(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "script not found")
	assert.Equal(t, StateUnregistered, a.State())
	assert.Zero(t, p.permRequests)
}

func TestSetup_SubscribeFailure(t *testing.T) {
	p := newFakePlatform()
	p.permission = PermissionGranted
	a := newTestAgent(p, &fakeForwarder{})

	reg, err := p.RegisterWorker(context.Background(), DefaultWorkerScript)
	require.NoError(t, err)
	reg.(*fakeRegistration).subscribeErr = errors.New("push service unavailable")

	require.Error(t, a.subscribe(context.Background(), reg))
	assert.Equal(t, StateUnregistered, a.State())
	assert.Equal(t, NoticeSetupFailed, a.Notice())
}

func TestSetup_ForwardFailureKeepsSubscription(t *testing.T) {
	p := newFakePlatform()
	f := &fakeForwarder{err: errors.New("connection refused")}
	a := newTestAgent(p, f)

	require.NoError(t, a.Setup(context.Background()))

	assert.Equal(t, StateSubscribed, a.State())
	_, ok := a.Subscription()
	assert.True(t, ok)
	assert.Len(t, f.forwarded, 1)
}

func TestReset(t *testing.T) {
	p := newFakePlatform()
	f := &fakeForwarder{}
	a := newTestAgent(p, f)
	require.NoError(t, a.Setup(context.Background()))
	first := p.registered[0]

	require.NoError(t, a.Reset(context.Background()))

	assert.True(t, first.unregistered)
	assert.Equal(t, StateUnregistered, a.State())
	assert.Equal(t, 2, p.registerCalls())
	_, ok := a.Subscription()
	assert.False(t, ok)
	// No automatic re-subscribe.
	assert.Len(t, f.forwarded, 1)
	assert.Empty(t, p.registered[1].subscribeOpts)
}

func TestRemove(t *testing.T) {
	p := newFakePlatform()
	a := newTestAgent(p, &fakeForwarder{})
	require.NoError(t, a.Setup(context.Background()))

	require.NoError(t, a.Remove(context.Background()))

	assert.True(t, p.registered[0].unregistered)
	assert.Equal(t, 1, p.registerCalls())
	assert.Equal(t, StateUnregistered, a.State())
}

func TestRequestPermission_SubscribesRegisteredWorker(t *testing.T) {
	p := newFakePlatform()
	p.answer = PermissionDenied
	f := &fakeForwarder{}
	a := newTestAgent(p, f)
	require.ErrorIs(t, a.Setup(context.Background()), ErrPermissionDenied)

	// The user changes their mind and presses the button.
	p.answer = PermissionGranted
	perm, err := a.RequestPermission(context.Background())

	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, perm)
	assert.Equal(t, StateSubscribed, a.State())
	assert.Len(t, f.forwarded, 1)
}

func TestRequestPermission_Denied(t *testing.T) {
	p := newFakePlatform()
	p.answer = PermissionDenied
	a := newTestAgent(p, &fakeForwarder{})

	perm, err := a.RequestPermission(context.Background())

	require.NoError(t, err)
	assert.Equal(t, PermissionDenied, perm)
	assert.Equal(t, NoticePermissionDenied, a.Notice())
	assert.Equal(t, StateUnregistered, a.State())
}

func TestUnsubscribe(t *testing.T) {
	p := newFakePlatform()
	f := &fakeForwarder{}
	a := newTestAgent(p, f)
	require.NoError(t, a.Setup(context.Background()))
	sub, _ := a.Subscription()

	require.NoError(t, a.Unsubscribe(context.Background()))

	reg := p.registered[0]
	assert.True(t, reg.unsubscribed)
	assert.True(t, reg.unregistered)
	assert.Equal(t, []string{sub.Endpoint}, f.withdrawn)
	assert.Equal(t, StateUnregistered, a.State())
	_, ok := a.Subscription()
	assert.False(t, ok)
}

func TestUnsubscribe_NothingToDo(t *testing.T) {
	f := &fakeForwarder{}
	a := newTestAgent(newFakePlatform(), f)

	require.NoError(t, a.Unsubscribe(context.Background()))
	assert.Empty(t, f.withdrawn)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "subscribed", StateSubscribed.String())
	assert.Equal(t, "resetting", StateResetting.String())
	assert.Equal(t, "State(42)", State(42).String())
}
