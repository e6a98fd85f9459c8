package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"webpush-demo-backend/config"
	"webpush-demo-backend/internal/model"
)

const (
	pushPath           = "/api/push"
	defaultBackoff     = 200 * time.Millisecond
	maxErrorBodyLength = 512
)

// HTTPError is a non-2xx response from the server.
type HTTPError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, pushPath, e.StatusCode, e.Body)
}

// Temporary reports whether retrying may succeed.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// HTTPForwarder sends subscription changes to the server's /api/push route.
type HTTPForwarder struct {
	httpClient *http.Client
	baseURL    string
	retries    int
	backoff    time.Duration
}

// NewHTTPForwarder creates a forwarder for the server at baseURL. Transport
// errors and 5xx responses are retried up to retries times.
func NewHTTPForwarder(baseURL string, timeout time.Duration, retries int) *HTTPForwarder {
	if retries < 0 {
		retries = 0
	}
	return &HTTPForwarder{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		retries:    retries,
		backoff:    defaultBackoff,
	}
}

// NewFromConfig builds an agent whose forwarder posts to cfg.ServerURL with
// the configured timeouts and retry count.
func NewFromConfig(platform Platform, cfg config.AgentConfig, serverPublicKey string) *Agent {
	forwarder := NewHTTPForwarder(cfg.ServerURL, cfg.ForwardTimeout(), cfg.ForwardRetries)
	return New(platform, forwarder, Config{
		ServerPublicKey:   serverPublicKey,
		PermissionTimeout: cfg.PermissionTimeout(),
		ForwardTimeout:    cfg.ForwardTimeout(),
	})
}

// Forward posts sub to the server.
func (f *HTTPForwarder) Forward(ctx context.Context, sub model.PushSubscription) error {
	return f.doJSON(ctx, http.MethodPost, sub)
}

// Withdraw asks the server to forget endpoint.
func (f *HTTPForwarder) Withdraw(ctx context.Context, endpoint string) error {
	return f.doJSON(ctx, http.MethodDelete, map[string]string{"endpoint": endpoint})
}

func (f *HTTPForwarder) doJSON(ctx context.Context, method string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			wait := f.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			case <-time.After(wait):
			}
		}

		lastErr = f.do(ctx, method, payload)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		var httpErr *HTTPError
		if errors.As(lastErr, &httpErr) && !httpErr.Temporary() {
			return lastErr
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", f.retries+1, lastErr)
}

func (f *HTTPForwarder) do(ctx context.Context, method string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+pushPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		return &HTTPError{Method: method, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
