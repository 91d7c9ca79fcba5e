// Package provider implements clients for external text-to-image services.
// Every client returns raw image bytes and treats them as an opaque blob.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client generates an image for a prompt.
type Client interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// Kind classifies a provider failure.
type Kind string

// Failure kinds.
const (
	KindTimeout           Kind = "timeout"
	KindAuthentication    Kind = "authentication"
	KindQuota             Kind = "quota"
	KindMalformedResponse Kind = "malformed_response"
	KindUpstream          Kind = "upstream"
	KindTransport         Kind = "transport"
)

// ErrProvider matches any *Error with errors.Is.
var ErrProvider = errors.New("image provider error")

// Error describes a failed provider call.
type Error struct {
	Provider   string
	Kind       Kind
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is ErrProvider or an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if target == ErrProvider {
		return true
	}
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// KindOf returns the failure kind of err, or "" if err is not a provider error.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// kindForStatus maps a non-2xx HTTP status onto a failure kind.
func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthentication
	case http.StatusPaymentRequired, http.StatusTooManyRequests:
		return KindQuota
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindUpstream
	}
}

// transportError classifies an error returned before any response arrived.
func transportError(providerName string, err error) *Error {
	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Provider: providerName, Kind: kind, Err: err}
}

// Options are shared by all provider clients.
type Options struct {
	// Timeout bounds a single generation call, including limiter wait.
	Timeout time.Duration
	// RequestsPerSecond throttles outbound calls from this process. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	// HTTPClient overrides the default outbound client.
	HTTPClient *http.Client
}

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

func (o Options) limiter() *rate.Limiter {
	if o.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := o.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.RequestsPerSecond), burst)
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return NewHTTPClient(o.timeout())
}

// NewHTTPClient creates an HTTP client for provider calls.
// Redirects are not followed.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   20,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// wait blocks on the limiter, reporting a timeout if ctx expires first.
func wait(ctx context.Context, providerName string, limiter *rate.Limiter) error {
	if err := limiter.Wait(ctx); err != nil {
		return &Error{Provider: providerName, Kind: KindTimeout, Err: fmt.Errorf("rate limiter: %w", err)}
	}
	return nil
}
