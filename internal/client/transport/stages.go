package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/models"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/common"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/logging"
	"github.com/sethvargo/go-retry"
)

// TokenSource returns the current token pair, or nil when signed out.
type TokenSource interface {
	Tokens(ctx context.Context) *models.TokenPair
}

// Refresher exchanges a refresh token for a new pair and persists it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
}

type attemptKey struct{}

// attempt travels in the request context between RefreshOnUnauthorized and
// AttachCredential.
type attempt struct {
	retried     bool
	accessToken string // what AttachCredential sent, "" for none
}

func attemptFrom(ctx context.Context) *attempt {
	a, _ := ctx.Value(attemptKey{}).(*attempt)
	return a
}

// Retried reports whether req is the re-issue of a request that got a 401.
func Retried(req *http.Request) bool {
	a := attemptFrom(req.Context())
	return a != nil && a.retried
}

// RequestID sets X-Request-ID when the caller did not, and logs the outcome.
func RequestID(log logging.Logger) Stage {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			id := req.Header.Get(common.RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
				req = req.Clone(req.Context())
				req.Header.Set(common.RequestIDHeader, id)
			}

			start := time.Now()
			resp, err := next.RoundTrip(req)
			if err != nil {
				log.Debug(req.Context(), "request failed", "request_id", id, "method", req.Method, "path", req.URL.Path, "error", err)
				return nil, err
			}
			log.Debug(req.Context(), "request done", "request_id", id, "method", req.Method, "path", req.URL.Path,
				"status", resp.StatusCode, "elapsed", time.Since(start))
			return resp, nil
		})
	}
}

// AttachCredential reads the token pair for every attempt and sends the access
// token as a bearer credential. Without a token the request goes out as is.
func AttachCredential(tokens TokenSource) Stage {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			access := ""
			if tp := tokens.Tokens(req.Context()); tp != nil {
				access = tp.AccessToken
			}
			if a := attemptFrom(req.Context()); a != nil {
				a.accessToken = access
			}

			req = req.Clone(req.Context())
			req.Header.Del(common.AuthorizationHeader)
			if access != "" {
				req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+access)
			}
			return next.RoundTrip(req)
		})
	}
}

// RefreshOnUnauthorized re-issues a request once after a 401. If the stored
// access token already differs from the one that was rejected, somebody else
// refreshed and the request is simply re-sent; otherwise the stored refresh
// token is exchanged first. When there is no refresh token, or the refresh
// fails, the original 401 response is returned.
func RefreshOnUnauthorized(tokens TokenSource, refresher Refresher, log logging.Logger) Stage {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if Retried(req) {
				return next.RoundTrip(req)
			}

			req, err := rewindable(req)
			if err != nil {
				return nil, err
			}

			first := &attempt{}
			resp, err := next.RoundTrip(req.WithContext(context.WithValue(req.Context(), attemptKey{}, first)))
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}

			ctx := req.Context()
			current := tokens.Tokens(ctx)
			if current == nil || current.RefreshToken == "" {
				return resp, nil
			}

			if current.AccessToken == first.accessToken {
				if _, err := refresher.Refresh(ctx, current.RefreshToken); err != nil {
					log.Warn(ctx, "refresh after 401 failed", "path", req.URL.Path, "error", err)
					return resp, nil
				}
			} else {
				log.Debug(ctx, "token changed while request was in flight, re-sending", "path", req.URL.Path)
			}

			again, err := replay(context.WithValue(ctx, attemptKey{}, &attempt{retried: true}), req)
			if err != nil {
				log.Warn(ctx, "cannot re-send request body", "path", req.URL.Path, "error", err)
				return resp, nil
			}
			drain(resp)
			return next.RoundTrip(again)
		})
	}
}

// Retry re-sends idempotent requests that failed at the network level or got
// 502, 503 or 504, at most maxRetries times with exponential backoff. The last
// response is returned as is.
func Retry(maxRetries uint64, base time.Duration, log logging.Logger) Stage {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if maxRetries == 0 || !idempotent(req.Method) || !canReplay(req) {
				return next.RoundTrip(req)
			}

			backoff := retry.WithMaxRetries(maxRetries, retry.WithCappedDuration(2*time.Second, retry.NewExponential(base)))

			var (
				resp *http.Response
				n    uint64
			)
			err := retry.Do(req.Context(), backoff, func(ctx context.Context) error {
				r := req
				if n > 0 {
					var err error
					if r, err = replay(ctx, req); err != nil {
						return err
					}
				}
				n++

				var err error
				resp, err = next.RoundTrip(r)
				if err != nil {
					if ctx.Err() != nil {
						return err
					}
					log.Debug(ctx, "transient transport error", "attempt", n, "error", err)
					return retry.RetryableError(err)
				}
				if code := resp.StatusCode; retryableStatus(code) && n <= maxRetries {
					log.Debug(ctx, "transient status", "attempt", n, "status", code)
					drain(resp)
					resp = nil
					return retry.RetryableError(fmt.Errorf("status %d", code))
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			return resp, nil
		})
	}
}

// rewindable makes sure req.GetBody is set so the body can be sent again.
func rewindable(req *http.Request) (*http.Request, error) {
	if canReplay(req) {
		return req, nil
	}

	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}

	req = req.Clone(req.Context())
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return req, nil
}

func canReplay(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// replay clones req under ctx with a fresh copy of the body.
func replay(ctx context.Context, req *http.Request) (*http.Request, error) {
	out := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be re-read")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
