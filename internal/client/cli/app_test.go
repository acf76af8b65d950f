package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/config"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/logging"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/testutil/fakeapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// stubInputs answers text prompts in order and always returns password.
func stubInputs(t *testing.T, password string, answers ...string) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})

	getSimpleText = func(_ *bufio.Reader, prompt string, _ io.Writer) (string, error) {
		require.NotEmpty(t, answers, "unexpected prompt %q", prompt)
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
	getPassword = func(_ io.Writer) ([]byte, error) { return []byte(password), nil }
}

func testConfig(srv *fakeapi.Server, dataDir string) *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ServerBaseURL = srv.BaseURL()
	cfg.DataDir = dataDir
	cfg.MaxTransportRetries = 0
	cfg.AuthCallTimeout = 2 * time.Second
	return cfg
}

func newTestApp(t *testing.T, srv *fakeapi.Server, dataDir string) (*App, *lockedBuffer) {
	t.Helper()
	a, err := NewApp(context.Background(), testConfig(srv, dataDir), logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.db.Close() })

	out := &lockedBuffer{}
	a.out = out
	a.reader = bufio.NewReader(strings.NewReader(""))
	a.session.Start(context.Background())
	return a, out
}

func newServer(t *testing.T) *fakeapi.Server {
	t.Helper()
	srv := fakeapi.New()
	t.Cleanup(srv.Close)
	srv.Seed("ann@example.org", "pw", "Ann")
	return srv
}

func TestApp_LoginWhoAmIGetLogout(t *testing.T) {
	srv := newServer(t)
	a, out := newTestApp(t, srv, t.TempDir())
	ctx := context.Background()

	stubInputs(t, "pw", "ann@example.org")
	require.NoError(t, a.Login(ctx))
	assert.Contains(t, out.String(), "Welcome back, Ann!")
	assert.True(t, a.isLoggedIn())
	assert.Equal(t, "ann@example.org", a.getStatus())

	require.NoError(t, a.WhoAmI(ctx))
	assert.Contains(t, out.String(), "Ann <ann@example.org>")
	assert.Contains(t, out.String(), "token:    expires")

	require.NoError(t, a.Get(ctx, "/me"))
	assert.Contains(t, out.String(), "200 OK")

	srv.ExpireAccessTokens()
	require.NoError(t, a.Get(ctx, "/me"))
	assert.Equal(t, 1, srv.Hits(http.MethodPost, "/api/auth/refresh"))
	assert.True(t, a.isLoggedIn(), "pipeline refresh keeps the session")

	require.NoError(t, a.Logout(ctx))
	assert.Contains(t, out.String(), "Logged out")
	assert.False(t, a.isLoggedIn())
	assert.Equal(t, "guest", a.getStatus())
}

func TestApp_LoginWrongPassword(t *testing.T) {
	srv := newServer(t)
	a, out := newTestApp(t, srv, t.TempDir())

	stubInputs(t, "nope", "ann@example.org")
	require.Error(t, a.Login(context.Background()))
	assert.Contains(t, out.String(), "Login failed: Invalid credentials")
	assert.False(t, a.isLoggedIn())
}

func TestApp_Register(t *testing.T) {
	srv := newServer(t)
	a, out := newTestApp(t, srv, t.TempDir())

	stubInputs(t, "pw", "new@example.org", "Neo", "")
	require.NoError(t, a.Register(context.Background()))
	assert.Contains(t, out.String(), "Welcome, Neo!")
	assert.True(t, a.isLoggedIn())
}

func TestApp_Register_UnknownTimezone(t *testing.T) {
	srv := newServer(t)
	a, out := newTestApp(t, srv, t.TempDir())

	stubInputs(t, "pw", "new@example.org", "Neo", "Mars/Olympus")
	require.Error(t, a.Register(context.Background()))
	assert.Contains(t, out.String(), `Unknown timezone "Mars/Olympus"`)
	assert.Equal(t, 0, srv.Hits(http.MethodPost, "/api/auth/register"))
}

func TestApp_RefreshWithoutSession(t *testing.T) {
	srv := newServer(t)
	a, out := newTestApp(t, srv, t.TempDir())

	require.Error(t, a.Refresh(context.Background()))
	assert.Contains(t, out.String(), "Refresh failed: not logged in")
	assert.Equal(t, 0, srv.TotalHits())
}

func TestApp_SessionSurvivesRestart(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	ctx := context.Background()

	first, _ := newTestApp(t, srv, dir)
	stubInputs(t, "pw", "ann@example.org")
	require.NoError(t, first.Login(ctx))
	require.NoError(t, first.db.Close())

	hits := srv.TotalHits()
	second, _ := newTestApp(t, srv, dir)
	assert.True(t, second.isLoggedIn())
	assert.Equal(t, hits, srv.TotalHits(), "hydration makes no network calls")
}

func TestApp_WatcherReportsExpiredSession(t *testing.T) {
	srv := newServer(t)
	a, out := newTestApp(t, srv, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, unsubscribe := a.session.Subscribe()
	defer unsubscribe()
	go a.watchSession(ctx, updates)

	stubInputs(t, "pw", "ann@example.org")
	require.NoError(t, a.Login(ctx))
	// let the watcher see the authenticated state before it is replaced
	time.Sleep(50 * time.Millisecond)

	srv.ExpireAccessTokens()
	srv.RevokeRefreshTokens()
	require.NoError(t, a.Get(ctx, "/me"))
	assert.Contains(t, out.String(), "401 Unauthorized")

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Session expired, please log in again")
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, a.isLoggedIn())
}

func TestApp_WatcherQuietOnLogout(t *testing.T) {
	srv := newServer(t)
	a, out := newTestApp(t, srv, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, unsubscribe := a.session.Subscribe()
	defer unsubscribe()
	go a.watchSession(ctx, updates)

	stubInputs(t, "pw", "ann@example.org")
	require.NoError(t, a.Login(ctx))
	require.NoError(t, a.Logout(ctx))

	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, out.String(), "Session expired")
}
