// Package session holds the in-memory authentication state of the client and
// keeps it in lock-step with the credential store.
//
// State moves uninitialized -> hydrating -> authenticated | unauthenticated.
// Every change is persisted before (or together with) the in-memory update
// and is published to subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/api"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/credentials"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/models"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/refresh"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/logging"
)

// clearTimeout bounds the local credential wipe on logout.
const clearTimeout = 5 * time.Second

var (
	ErrNoRefreshToken = refresh.ErrNoRefreshToken
	ErrNotStarted     = errors.New("session manager not started")
)

type Manager struct {
	store   *credentials.Store
	authAPI api.AuthAPI
	coord   *refresh.Coordinator
	log     logging.Logger

	// opMu serialises the public operations. mu guards the fields below and
	// is held across each store write and the matching in-memory update.
	opMu sync.Mutex
	mu   sync.Mutex

	state   models.AuthState
	started bool
	subs    map[int]chan models.AuthState
	nextSub int
}

func New(store *credentials.Store, authAPI api.AuthAPI, coord *refresh.Coordinator, log logging.Logger) *Manager {
	m := &Manager{
		store:   store,
		authAPI: authAPI,
		coord:   coord,
		log:     log.With("component", "session"),
		state:   models.AuthState{Phase: models.PhaseUninitialized},
		subs:    map[int]chan models.AuthState{},
	}
	coord.Subscribe(coordinatorListener{m})
	return m
}

// Start restores the stored session. It makes no network calls and only runs
// once; later calls return immediately.
func (m *Manager) Start(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.setLocked(models.AuthState{Phase: models.PhaseHydrating})

	user, tokens := m.store.Load(ctx)
	if user == nil {
		m.log.Debug(ctx, "no stored session")
		m.setLocked(models.AuthState{Phase: models.PhaseUnauthenticated})
		return
	}

	m.log.Info(ctx, "session restored", "user_id", user.ID)
	m.setLocked(models.AuthState{Phase: models.PhaseAuthenticated, User: user, Tokens: tokens})
}

// State returns a copy of the current state.
func (m *Manager) State() models.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Login authenticates with the server and adopts the returned session. On
// failure the state is left as it was.
func (m *Manager) Login(ctx context.Context, email, password string) (*models.User, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.isStarted() {
		return nil, ErrNotStarted
	}

	resp, err := m.authAPI.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := m.adopt(ctx, resp); err != nil {
		return nil, err
	}

	m.log.Info(ctx, "logged in", "user_id", resp.User.ID)
	return resp.User, nil
}

// Register creates an account and adopts the returned session, with the same
// failure handling as Login.
func (m *Manager) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.isStarted() {
		return nil, ErrNotStarted
	}

	resp, err := m.authAPI.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := m.adopt(ctx, resp); err != nil {
		return nil, err
	}

	m.log.Info(ctx, "registered", "user_id", resp.User.ID)
	return resp.User, nil
}

// Logout tells the server to revoke the refresh token and always ends the
// local session, whatever the server says. The only error returned is a
// failure to clear the credential store.
func (m *Manager) Logout(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	refreshToken := m.currentRefreshToken(ctx)
	if refreshToken != "" {
		if err := m.authAPI.Logout(ctx, refreshToken); err != nil {
			m.log.Warn(ctx, "remote logout failed, clearing local session anyway", "error", err)
		}
	}

	// the remote call may have used up the caller's deadline, the local
	// clear must still happen
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearTimeout)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.store.Clear(clearCtx)
	m.setLocked(models.AuthState{Phase: models.PhaseUnauthenticated})
	if err != nil {
		m.log.Error(ctx, "failed to clear credentials on logout", "error", err)
		return err
	}

	m.log.Info(ctx, "logged out")
	return nil
}

// RefreshTokens exchanges the held refresh token for a new pair. The user is
// left untouched. If the server rejects the refresh, the session is cleared
// and the error returned.
func (m *Manager) RefreshTokens(ctx context.Context) (*models.TokenPair, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	started, tokens := m.started, m.state.Tokens
	m.mu.Unlock()

	if !started {
		return nil, ErrNotStarted
	}
	if tokens == nil || tokens.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	// memory is updated by the coordinator listener before Refresh returns
	fresh, err := m.coord.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh tokens: %w", err)
	}
	return fresh, nil
}

// Subscribe returns a channel that receives the current state and then every
// change. Only the newest state is kept for a slow reader. The returned func
// unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan models.AuthState, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan models.AuthState, 1)
	ch <- m.state.Clone()
	m.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// adopt persists resp and then switches to it. Nothing changes if the write fails.
func (m *Manager) adopt(ctx context.Context, resp *models.AuthResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SaveSession(ctx, resp.User, resp.Tokens); err != nil {
		m.log.Error(ctx, "failed to persist session", "error", err)
		return err
	}
	m.setLocked(models.AuthState{Phase: models.PhaseAuthenticated, User: resp.User, Tokens: resp.Tokens})
	return nil
}

func (m *Manager) isStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// currentRefreshToken prefers memory and falls back to the store, so logout
// before Start still revokes a persisted session.
func (m *Manager) currentRefreshToken(ctx context.Context) string {
	m.mu.Lock()
	tokens := m.state.Tokens
	m.mu.Unlock()

	if tokens == nil {
		tokens = m.store.Tokens(ctx)
	}
	if tokens == nil {
		return ""
	}
	return tokens.RefreshToken
}

func (m *Manager) setLocked(st models.AuthState) {
	m.state = st.Clone()
	for _, ch := range m.subs {
		publish(ch, m.state.Clone())
	}
}

// publish replaces whatever the subscriber has not read yet with st.
func publish(ch chan models.AuthState, st models.AuthState) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- st
}

// coordinatorListener mirrors refreshes done outside the manager, e.g. by the
// request pipeline. Updates are ignored unless they belong to the session
// currently held in memory.
type coordinatorListener struct{ m *Manager }

func (l coordinatorListener) TokensRefreshed(ctx context.Context, prev string, tokens *models.TokenPair) {
	m := l.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Tokens == nil || m.state.Tokens.RefreshToken != prev {
		return
	}
	m.setLocked(models.AuthState{Phase: models.PhaseAuthenticated, User: m.state.User, Tokens: tokens})
}

func (l coordinatorListener) CredentialsCleared(ctx context.Context, prev string, cause error) {
	m := l.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Tokens == nil || m.state.Tokens.RefreshToken != prev {
		return
	}
	m.log.Info(ctx, "session ended after failed refresh", "cause", cause)
	m.setLocked(models.AuthState{Phase: models.PhaseUnauthenticated})
}
