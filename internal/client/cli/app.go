package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/api"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/config"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/credentials"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/devicekey"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/models"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/refresh"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/repositories/securestore"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/session"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/transport"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/filex"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/logging"
)

type App struct {
	config  *config.Config
	log     logging.Logger
	db      *sql.DB
	session *session.Manager
	api     *api.Client
	reader  *bufio.Reader
	out     io.Writer

	// quietDrop is set by Logout so the watcher does not report the
	// resulting state change as an expired session.
	quietDrop atomic.Bool
}

// NewApp wires the client: data directory, encrypted credential store, auth
// API, refresh coordinator, session manager and the authenticated pipeline.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	dir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	c.DataDir = dir

	db, err := securestore.OpenDB(ctx, c.DBPath())
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	key, err := devicekey.Load(ctx, db, c.DeviceKeyPath())
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := credentials.NewStore(securestore.NewSQLiteRepository(db, key), log)
	authAPI := api.NewHTTPAuthAPI(c.ServerBaseURL, &http.Client{}, c.AuthCallTimeout, log)
	coord := refresh.New(store, authAPI, c.AuthCallTimeout, c.RefreshWaitTimeout, log)
	httpClient := transport.NewClient(transport.Options{
		Timeout:    c.RequestTimeout,
		MaxRetries: uint64(c.MaxTransportRetries),
	}, store, coord, log)

	return &App{
		config:  c,
		log:     log,
		db:      db,
		session: session.New(store, authAPI, coord, log),
		api:     api.NewClient(c.ServerBaseURL, httpClient),
		reader:  bufio.NewReader(os.Stdin),
		out:     &syncWriter{w: os.Stdout},
	}, nil
}

// Run restores the stored session, starts the session watcher and blocks in
// the REPL until the user exits or stdin ends.
func (a *App) Run(ctx context.Context) {
	defer a.db.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.session.Start(ctx)

	updates, unsubscribe := a.session.Subscribe()
	defer unsubscribe()
	go a.watchSession(ctx, updates)

	fmt.Fprintln(a.out, "Welcome to StudySync CLI (type 'help' for commands)")
	if st := a.session.State(); st.IsAuthenticated() {
		fmt.Fprintf(a.out, "Signed in as %s\n", st.User.Email)
	}

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader), a.out)
}

func (a *App) isLoggedIn() bool {
	return a.session.State().IsAuthenticated()
}

func (a *App) getStatus() string {
	st := a.session.State()
	if !st.IsAuthenticated() {
		return "guest"
	}
	return st.User.Email
}

// watchSession tells the user when the session ends on its own, e.g. after a
// refresh was rejected by the server.
func (a *App) watchSession(ctx context.Context, updates <-chan models.AuthState) {
	wasAuthenticated := false
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if wasAuthenticated && st.Phase == models.PhaseUnauthenticated {
				if !a.quietDrop.CompareAndSwap(true, false) {
					fmt.Fprintln(a.out, "Session expired, please log in again")
				}
			}
			wasAuthenticated = st.IsAuthenticated()
		}
	}
}

// syncWriter serialises writes from the REPL and the session watcher.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
