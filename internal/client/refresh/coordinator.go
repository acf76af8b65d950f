// Package refresh makes sure at most one token refresh is in flight per
// session. The session manager and the request pipeline both go through the
// same Coordinator, so a burst of expired requests costs one /auth/refresh
// call and every caller observes its single outcome.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/credentials"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/models"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/logging"
	"golang.org/x/sync/singleflight"
)

// storeTimeout bounds the store writes that settle a refresh outcome.
const storeTimeout = 5 * time.Second

var (
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrWaitTimeout    = errors.New("timed out waiting for token refresh")
)

// Refresher is the part of the Auth API the coordinator needs.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error)
}

// Listener is told about every outcome of a refresh that touched the store.
// prev is the refresh token the refresh started from. Callbacks run on the
// refresh goroutine and must not call back into the Coordinator.
type Listener interface {
	TokensRefreshed(ctx context.Context, prev string, tokens *models.TokenPair)
	CredentialsCleared(ctx context.Context, prev string, cause error)
}

type Coordinator struct {
	store       *credentials.Store
	api         Refresher
	callTimeout time.Duration
	waitTimeout time.Duration
	log         logging.Logger

	group singleflight.Group

	mu        sync.Mutex
	listeners []Listener
}

// New builds a Coordinator. callTimeout bounds the remote refresh call and
// waitTimeout bounds how long a caller waits for it; zero disables either.
func New(store *credentials.Store, api Refresher, callTimeout, waitTimeout time.Duration, log logging.Logger) *Coordinator {
	return &Coordinator{
		store:       store,
		api:         api,
		callTimeout: callTimeout,
		waitTimeout: waitTimeout,
		log:         log.With("component", "refresh"),
	}
}

func (c *Coordinator) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Refresh exchanges refreshToken for a new pair. Concurrent calls with the
// same token share one remote call. The call itself is detached from ctx, so
// a caller giving up never aborts the refresh for the others.
//
// On success the new pair is persisted before Refresh returns. On any failure
// the session that refreshToken belongs to is cleared and the error returned.
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	ch := c.group.DoChan(refreshToken, func() (any, error) {
		return c.run(refreshToken)
	})

	var timeout <-chan time.Time
	if c.waitTimeout > 0 {
		t := time.NewTimer(c.waitTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res := <-ch:
		if res.Shared {
			c.log.Debug(ctx, "joined in-flight refresh")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		tokens := *res.Val.(*models.TokenPair)
		return &tokens, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, ErrWaitTimeout
	}
}

func (c *Coordinator) run(refreshToken string) (*models.TokenPair, error) {
	tokens, err := c.call(context.Background(), refreshToken)

	// the outcome is written under a fresh deadline, a timed out call must
	// not keep it from reaching the store
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err != nil {
		c.log.Warn(ctx, "token refresh failed", "error", err)
		c.clear(ctx, refreshToken, err)
		return nil, err
	}

	err = c.store.SaveTokens(ctx, refreshToken, tokens)
	switch {
	case errors.Is(err, credentials.ErrNoSession), errors.Is(err, credentials.ErrSessionChanged):
		c.log.Info(ctx, "session changed during refresh, discarding new tokens")
		return nil, err
	case err != nil:
		// the old refresh token is spent, so without the new pair on disk
		// the session cannot continue
		c.log.Error(ctx, "failed to persist refreshed tokens", "error", err)
		c.clear(ctx, refreshToken, err)
		return nil, err
	}

	c.log.Debug(ctx, "tokens refreshed", "expires_in", tokens.ExpiresIn)
	for _, l := range c.snapshot() {
		l.TokensRefreshed(ctx, refreshToken, tokens)
	}
	return tokens, nil
}

// call performs the remote refresh bounded by callTimeout.
func (c *Coordinator) call(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	return c.api.RefreshToken(ctx, refreshToken)
}

// clear ends the session the failed refresh belonged to. Listeners hear about
// it only when the store was actually cleared, so memory never runs ahead of
// disk.
func (c *Coordinator) clear(ctx context.Context, refreshToken string, cause error) {
	cleared, err := c.store.ClearIfCurrent(ctx, refreshToken)
	if err != nil {
		c.log.Error(ctx, "failed to clear credentials", "error", err)
		return
	}
	if !cleared {
		return
	}
	for _, l := range c.snapshot() {
		l.CredentialsCleared(ctx, refreshToken, cause)
	}
}

func (c *Coordinator) snapshot() []Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Listener(nil), c.listeners...)
}
