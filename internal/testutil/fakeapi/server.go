// Package fakeapi is an in-process StudySync backend for tests. It implements
// the /auth contract with rotating, single-use refresh tokens and a couple of
// bearer-protected endpoints, and counts calls so tests can assert on traffic.
package fakeapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/models"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/common"
)

type account struct {
	user     models.User
	password string
}

type Server struct {
	*httptest.Server

	secret    []byte
	accessTTL time.Duration

	mu       sync.Mutex
	accounts map[string]*account // by email
	refresh  map[string]string   // refresh token -> user id
	access   map[string]bool     // live access token ids
	hits     map[string]int      // "METHOD /path" -> count

	refreshDelay  time.Duration
	refreshStatus int
	logoutStatus  int
	flakyFailures int
	alwaysReject  bool
}

func New() *Server {
	s := &Server{
		secret:    []byte("fakeapi-secret"),
		accessTTL: 15 * time.Minute,
		accounts:  map[string]*account{},
		refresh:   map[string]string{},
		access:    map[string]bool{},
		hits:      map[string]int{},
	}

	r := mux.NewRouter()
	r.Use(s.count)
	a := r.PathPrefix("/api").Subrouter()
	a.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	a.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	a.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	a.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	a.Handle("/me", s.requireBearer(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
	a.Handle("/sessions", s.requireBearer(http.HandlerFunc(s.handleEcho))).Methods(http.MethodPost)
	a.Handle("/flaky", s.requireBearer(http.HandlerFunc(s.handleFlaky))).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the API root to configure clients with.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// Seed registers an account directly and returns its user record.
func (s *Server) Seed(email, password, displayName string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := models.User{ID: uuid.NewString(), Email: email, DisplayName: displayName, Timezone: "UTC"}
	s.accounts[email] = &account{user: u, password: password}
	return u
}

// IssueFor mints a token pair for a seeded account, as a login would.
func (s *Server) IssueFor(email string) *models.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(s.accounts[email].user.ID)
}

// ExpireAccessTokens makes every access token issued so far answer 401.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = map[string]bool{}
}

// RevokeRefreshTokens makes every outstanding refresh token invalid.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = map[string]string{}
}

// RejectAllAccessTokens makes protected endpoints answer 401 even for fresh tokens.
func (s *Server) RejectAllAccessTokens(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alwaysReject = on
}

func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// SetRefreshStatus forces /auth/refresh to answer code (0 restores normal behaviour).
func (s *Server) SetRefreshStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = code
}

// SetLogoutStatus forces /auth/logout to answer code (0 restores normal behaviour).
func (s *Server) SetLogoutStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutStatus = code
}

// SetFlakyFailures makes the next n calls to /flaky answer 503.
func (s *Server) SetFlakyFailures(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flakyFailures = n
}

// Hits returns how many times "METHOD /api/path" was requested.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// TotalHits is the number of requests of any kind.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.hits {
		n += v
	}
	return n
}

// RefreshTokenValid reports whether rt would still be accepted.
func (s *Server) RefreshTokenValid(rt string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.refresh[rt]
	return ok
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[req.Email]; exists {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}
	u := models.User{ID: uuid.NewString(), Email: req.Email, DisplayName: req.DisplayName, Timezone: req.Timezone}
	s.accounts[req.Email] = &account{user: u, password: req.Password}

	writeJSON(w, http.StatusCreated, models.AuthResponse{User: &u, Tokens: s.issueLocked(u.ID)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[req.Email]
	if !ok || acc.password != req.Password {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	u := acc.user
	writeJSON(w, http.StatusOK, models.AuthResponse{User: &u, Tokens: s.issueLocked(u.ID)})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	rt := r.Header.Get(common.RefreshTokenHeader)
	if r.Header.Get(common.AuthorizationHeader) != "" {
		writeError(w, http.StatusBadRequest, "refresh must not carry a bearer token")
		return
	}

	s.mu.Lock()
	delay, forced := s.refreshDelay, s.refreshStatus
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if forced != 0 {
		writeError(w, forced, "refresh disabled")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.refresh[rt]
	if !ok || rt == "" {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	delete(s.refresh, rt) // single use
	writeJSON(w, http.StatusOK, s.issueLocked(userID))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logoutStatus != 0 {
		writeError(w, s.logoutStatus, "logout failed")
		return
	}
	delete(s.refresh, r.Header.Get(common.RefreshTokenHeader))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.user.ID == userID {
			writeJSON(w, http.StatusOK, acc.user)
			return
		}
	}
	writeError(w, http.StatusNotFound, "user not found")
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (s *Server) handleFlaky(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fail := s.flakyFailures > 0
	if fail {
		s.flakyFailures--
	}
	s.mu.Unlock()

	if fail {
		writeError(w, http.StatusServiceUnavailable, "try again")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireBearer validates the access token and passes the user id on in X-User-ID.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get(common.AuthorizationHeader)
		if !strings.HasPrefix(h, common.BearerPrefix) {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		userID, err := s.verify(strings.TrimPrefix(h, common.BearerPrefix))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "token expired")
			return
		}
		r.Header.Set("X-User-ID", userID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) verify(token string) (string, error) {
	claims, err := parseAccessToken(token, s.secret)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alwaysReject || !s.access[claims.ID] {
		return "", errors.New("revoked")
	}
	return claims.Subject, nil
}

func (s *Server) issueLocked(userID string) *models.TokenPair {
	jti := uuid.NewString()
	access, err := generateAccessToken(userID, jti, s.secret, s.accessTTL)
	if err != nil {
		panic(err)
	}
	rt := uuid.NewString()

	s.access[jti] = true
	s.refresh[rt] = userID

	return &models.TokenPair{AccessToken: access, RefreshToken: rt, ExpiresIn: int64(s.accessTTL.Seconds())}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
