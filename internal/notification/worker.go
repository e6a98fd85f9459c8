package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"webpush-demo-backend/internal/model"
)

// defaultSendTimeout bounds a single push service call.
const defaultSendTimeout = 30 * time.Second

// Pruner removes subscriptions the push service reported as gone.
type Pruner interface {
	Remove(ctx context.Context, endpoint string) (bool, error)
}

// job is one delivery of a broadcast.
type job struct {
	batch   *Batch
	sub     model.PushSubscription
	payload []byte
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

// WithSender replaces the webpush sender, mainly for tests.
func WithSender(s NotificationSender) Option {
	return func(wp *WorkerPool) { wp.sender = s }
}

// WithSendTimeout bounds each push service call.
func WithSendTimeout(d time.Duration) Option {
	return func(wp *WorkerPool) {
		if d > 0 {
			wp.sendTimeout = d
		}
	}
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size        int
	jobs        chan job
	webpush     *webpush.Options
	sender      NotificationSender
	pruner      Pruner
	sendTimeout time.Duration

	mu     sync.RWMutex
	runCtx context.Context
}

// NewWorkerPool creates a new worker pool. pruner may be nil, in which case
// expired subscriptions are only reported.
func NewWorkerPool(size int, webpushOptions *webpush.Options, pruner Pruner, opts ...Option) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	wp := &WorkerPool{
		size:        size,
		jobs:        make(chan job, size), // Buffered channel
		webpush:     webpushOptions,
		sender:      &WebPushSender{}, // Use the real sender by default
		pruner:      pruner,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(wp)
	}
	return wp
}

// Start launches the worker goroutines. They stop when ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.mu.Lock()
	wp.runCtx = ctx
	wp.mu.Unlock()

	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case j := <-wp.jobs:
			wp.process(ctx, j)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			wp.drain(ctx.Err())
			return
		}
	}
}

// drain records every job still buffered as failed with err, so no batch is
// left waiting on deliveries that will never run.
func (wp *WorkerPool) drain(err error) {
	for {
		select {
		case j := <-wp.jobs:
			j.batch.record(Result{Endpoint: j.sub.Endpoint, Err: &Failure{Endpoint: j.sub.Endpoint, Err: err}})
		default:
			return
		}
	}
}

// Broadcast queues one independent delivery per subscription and returns
// without waiting for any of them. The returned Batch collects the results.
func (wp *WorkerPool) Broadcast(subs []model.PushSubscription, payload model.Payload) (*Batch, error) {
	wp.mu.RLock()
	ctx := wp.runCtx
	wp.mu.RUnlock()
	if ctx == nil {
		return nil, ErrNotStarted
	}

	body, err := payload.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	batch := newBatch(len(subs))
	log.Printf("Broadcast %s: sending %d notifications", batch.ID(), len(subs))

	queued := append([]model.PushSubscription(nil), subs...)
	go func() {
		for _, sub := range queued {
			if err := ctx.Err(); err != nil {
				batch.record(Result{Endpoint: sub.Endpoint, Err: &Failure{Endpoint: sub.Endpoint, Err: err}})
				continue
			}
			select {
			case wp.jobs <- job{batch: batch, sub: sub, payload: body}:
			case <-ctx.Done():
				batch.record(Result{Endpoint: sub.Endpoint, Err: &Failure{Endpoint: sub.Endpoint, Err: ctx.Err()}})
			}
		}
		// A send that raced with shutdown may have landed after the workers
		// drained the queue.
		if err := ctx.Err(); err != nil {
			wp.drain(err)
		}
	}()
	go wp.logWhenDone(batch)

	return batch, nil
}

func (wp *WorkerPool) logWhenDone(batch *Batch) {
	<-batch.Done()
	r := batch.Report()
	log.Printf("Broadcast %s finished: %d targeted, %d delivered, %d failed, %d pruned",
		r.ID, r.Targeted, r.Delivered, r.Failed, len(r.Expired))
}

// process sends one job, prunes the subscription if it expired and records
// the outcome on the batch.
func (wp *WorkerPool) process(ctx context.Context, j job) {
	res := wp.sendRaw(ctx, j.sub, j.payload)
	if !res.Delivered() {
		log.Printf("Error sending notification to %s: %v", j.sub.Endpoint, res.Err)
	}
	if res.Expired() && wp.pruner != nil {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", j.sub.Endpoint)
		if _, err := wp.pruner.Remove(ctx, j.sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", j.sub.Endpoint, err)
		}
	}
	j.batch.record(res)
}

// Send delivers payload to a single subscription and waits for the push
// service's answer.
func (wp *WorkerPool) Send(ctx context.Context, sub model.PushSubscription, payload model.Payload) Result {
	body, err := payload.Bytes()
	if err != nil {
		return Result{Endpoint: sub.Endpoint, Err: &Failure{Endpoint: sub.Endpoint, Err: err}}
	}
	return wp.sendRaw(ctx, sub, body)
}

func (wp *WorkerPool) sendRaw(ctx context.Context, sub model.PushSubscription, body []byte) Result {
	ctx, cancel := context.WithTimeout(ctx, wp.sendTimeout)
	defer cancel()

	resp, err := wp.sender.Send(ctx, body, sub.WebPush(), wp.webpush)
	if err != nil {
		return Result{Endpoint: sub.Endpoint, Err: &Failure{Endpoint: sub.Endpoint, Err: err}}
	}
	defer resp.Body.Close()

	res := classify(sub.Endpoint, resp.StatusCode)
	if f, ok := res.Err.(*Failure); ok {
		if msg := readReason(resp.Body); msg != "" {
			f.Err = fmt.Errorf("%w: %s", f.Err, msg)
		}
	}
	return res
}

// readReason returns a short prefix of the push service's error body.
func readReason(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
