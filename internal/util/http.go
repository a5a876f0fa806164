package util

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// NewHTTPClient returns a client with pooled keep-alive connections and the
// given overall request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// ErrRetryExhausted is returned by Retry when fn never ran to completion.
var ErrRetryExhausted = errors.New("retry: exhausted")

// Retry calls fn up to attempts times, doubling the pause between attempts
// from initial up to max. It returns fn's last error, or ctx.Err() when the
// context ends while waiting.
func Retry(ctx context.Context, attempts int, initial, max time.Duration, fn func() error) error {
	if attempts <= 1 {
		return fn()
	}
	d := initial
	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if err := fn(); err != nil {
			if i == attempts-1 {
				return err
			}
			if d < max {
				d *= 2
				if d > max {
					d = max
				}
			}
			continue
		}
		return nil
	}
	return ErrRetryExhausted
}
