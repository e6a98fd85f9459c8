package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrExpired means the push service no longer knows the subscription.
	ErrExpired = errors.New("subscription expired")
	// ErrRejected means the push service refused the message.
	ErrRejected = errors.New("push service rejected message")
	// ErrNotStarted is returned by Broadcast before Start has been called.
	ErrNotStarted = errors.New("dispatcher not started")
)

// Failure describes one delivery that did not succeed.
type Failure struct {
	Endpoint   string `json:"endpoint"`
	StatusCode int    `json:"statusCode,omitempty"`
	Err        error  `json:"-"`
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("dispatch to %s failed with status %d: %v", f.Endpoint, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("dispatch to %s failed: %v", f.Endpoint, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Result is the outcome of a single send.
type Result struct {
	Endpoint   string
	StatusCode int
	Err        error
}

// Delivered reports whether the push service accepted the message.
func (r Result) Delivered() bool { return r.Err == nil }

// Expired reports whether the subscription should be pruned.
func (r Result) Expired() bool { return errors.Is(r.Err, ErrExpired) }

// classify turns a push service status code into a Result.
func classify(endpoint string, status int) Result {
	res := Result{Endpoint: endpoint, StatusCode: status}
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		res.Err = &Failure{Endpoint: endpoint, StatusCode: status, Err: ErrExpired}
	case status >= 400:
		res.Err = &Failure{Endpoint: endpoint, StatusCode: status, Err: ErrRejected}
	}
	return res
}

// Report aggregates the results of one broadcast.
type Report struct {
	ID        uuid.UUID `json:"id"`
	Targeted  int       `json:"targeted"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	Expired   []string  `json:"expired,omitempty"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Batch tracks the in-flight deliveries of one broadcast.
type Batch struct {
	mu      sync.Mutex
	report  Report
	pending int
	done    chan struct{}
}

func newBatch(targeted int) *Batch {
	b := &Batch{
		report:  Report{ID: uuid.New(), Targeted: targeted},
		pending: targeted,
		done:    make(chan struct{}),
	}
	if targeted == 0 {
		close(b.done)
	}
	return b
}

// ID identifies the broadcast in logs and responses.
func (b *Batch) ID() uuid.UUID { return b.report.ID }

// Targeted is the number of subscriptions the broadcast was sent to.
func (b *Batch) Targeted() int { return b.report.Targeted }

// Done is closed once every delivery has reported.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Wait blocks until every delivery has reported or ctx ends.
func (b *Batch) Wait(ctx context.Context) (Report, error) {
	select {
	case <-b.done:
		return b.Report(), nil
	case <-ctx.Done():
		return b.Report(), ctx.Err()
	}
}

// Report returns a copy of the results recorded so far.
func (b *Batch) Report() Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.report
	r.Expired = append([]string(nil), b.report.Expired...)
	r.Failures = append([]Failure(nil), b.report.Failures...)
	return r
}

func (b *Batch) record(res Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == 0 {
		return
	}

	if res.Delivered() {
		b.report.Delivered++
	} else {
		b.report.Failed++
		var f *Failure
		if !errors.As(res.Err, &f) {
			f = &Failure{Endpoint: res.Endpoint, StatusCode: res.StatusCode, Err: res.Err}
		}
		b.report.Failures = append(b.report.Failures, *f)
		if res.Expired() {
			b.report.Expired = append(b.report.Expired, res.Endpoint)
		}
	}

	b.pending--
	if b.pending == 0 {
		close(b.done)
	}
}
