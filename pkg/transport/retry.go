// Package transport provides the HTTP plumbing shared by the upstream clients:
// a fixed-delay network retry with an explicit per-call budget, and the
// classification of transport faults as transient or not.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/posbridge/posbridge/pkg/apierrors"
)

const (
	// DefaultRetryDelay is the fixed pause before the single network retry.
	DefaultRetryDelay = 2 * time.Second

	// DefaultTimeout is the per-request network timeout.
	DefaultTimeout = 30 * time.Second

	// maxBodySize caps how much of a response body is read into memory.
	maxBodySize = 32 << 20
)

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestBuilder creates a fresh request for each attempt, so bodies can be replayed.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Budget counts the network retries still available to one logical call.
// It is shared across every attempt of that call, including auth replays.
type Budget struct {
	remaining int
}

// NewBudget creates a budget allowing the given number of retries.
func NewBudget(retries int) *Budget {
	if retries < 0 {
		retries = 0
	}
	return &Budget{remaining: retries}
}

// Remaining returns the retries left.
func (b *Budget) Remaining() int {
	return b.remaining
}

func (b *Budget) take() bool {
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Retrier sends requests and retries once after a fixed delay on transient faults.
type Retrier struct {
	client  Doer
	delay   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(err error)
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithDelay overrides the retry delay.
func WithDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d >= 0 {
			r.delay = d
		}
	}
}

// WithSleep overrides how the retrier waits between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Retrier) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithRetryHook registers a callback invoked before each retry.
func WithRetryHook(hook func(err error)) Option {
	return func(r *Retrier) {
		r.onRetry = hook
	}
}

// NewRetrier creates a retrier around the given client.
// A nil client gets an *http.Client with DefaultTimeout.
func NewRetrier(client Doer, opts ...Option) *Retrier {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	r := &Retrier{
		client: client,
		delay:  DefaultRetryDelay,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewHTTPClient returns an *http.Client with the given overall request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Do sends the request built by build. A transient transport fault consumes one
// retry from budget; once the budget is spent the fault surfaces as a network error.
func (r *Retrier) Do(ctx context.Context, budget *Budget, build RequestBuilder) (*http.Response, error) {
	if budget == nil {
		budget = NewBudget(1)
	}

	for attempt := 1; ; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := r.client.Do(req)
		if err == nil {
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, apierrors.NewNetworkError("request cancelled", ctx.Err()).
				WithEndpoint(req.URL.Path)
		}

		if !IsTransient(err) || !budget.take() {
			return nil, apierrors.NewNetworkError(
				fmt.Sprintf("request failed after %d attempt(s)", attempt), err).
				WithEndpoint(req.URL.Path)
		}

		if r.onRetry != nil {
			r.onRetry(err)
		}

		if err := r.sleep(ctx, r.delay); err != nil {
			return nil, apierrors.NewNetworkError("request cancelled during retry delay", err).
				WithEndpoint(req.URL.Path)
		}
	}
}

// IsTransient reports whether a transport error is worth one retry:
// timeouts, resets, refused connections and connections closed mid-response.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	return false
}

// ReadBody reads and closes a response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, apierrors.NewNetworkError("failed to read response body", err)
	}
	return body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
