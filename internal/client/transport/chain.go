// Package transport is the authenticated request pipeline: a chain of
// http.RoundTripper stages that tag requests, attach the bearer token,
// refresh-and-retry once on 401 and retry transient failures.
//
// Stages read credentials from the credential store on every attempt, never
// from the session manager, so refreshes done anywhere in the process are
// picked up.
package transport

import (
	"net/http"
	"time"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/logging"
)

// Stage decorates a RoundTripper.
type Stage func(next http.RoundTripper) http.RoundTripper

// RoundTripFunc adapts a function to http.RoundTripper.
type RoundTripFunc func(*http.Request) (*http.Response, error)

func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain wraps base with stages. The first stage sees the request first.
func Chain(base http.RoundTripper, stages ...Stage) http.RoundTripper {
	rt := base
	for i := len(stages) - 1; i >= 0; i-- {
		rt = stages[i](rt)
	}
	return rt
}

type Options struct {
	// Timeout bounds a whole call including a refresh and the retried request.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts for transient failures of
	// idempotent requests.
	MaxRetries uint64
	// RetryBase is the first backoff delay; later ones grow exponentially.
	RetryBase time.Duration
	// Base is the underlying transport; nil means a clone of http.DefaultTransport.
	Base http.RoundTripper
}

// NewClient builds the pipeline:
//
//	RequestID -> RefreshOnUnauthorized -> AttachCredential -> Retry -> Base
func NewClient(opts Options, tokens TokenSource, refresher Refresher, log logging.Logger) *http.Client {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	retryBase := opts.RetryBase
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}
	log = log.With("component", "transport")

	return &http.Client{
		Timeout: opts.Timeout,
		Transport: Chain(base,
			RequestID(log),
			RefreshOnUnauthorized(tokens, refresher, log),
			AttachCredential(tokens),
			Retry(opts.MaxRetries, retryBase, log),
		),
	}
}
