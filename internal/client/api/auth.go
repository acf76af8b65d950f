// Package api talks to the StudySync backend.
//
// HTTPAuthAPI covers the four /auth endpoints and is deliberately built on a
// plain *http.Client: the authenticated request pipeline calls it to refresh
// tokens, so it must not go through that pipeline itself. Client is the thin
// helper for every other endpoint and is given the pipeline's client.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/models"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/common"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/logging"
)

// AuthAPI is the remote contract the session layer depends on.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*models.AuthResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error)
}

type HTTPAuthAPI struct {
	baseURL     string
	httpClient  *http.Client
	callTimeout time.Duration
	log         logging.Logger
}

var _ AuthAPI = (*HTTPAuthAPI)(nil)

// NewHTTPAuthAPI returns an AuthAPI for baseURL (e.g. "http://host/api").
// Each call is bounded by callTimeout when it is positive. If httpClient is
// nil, http.DefaultClient is used.
func NewHTTPAuthAPI(baseURL string, httpClient *http.Client, callTimeout time.Duration, log logging.Logger) *HTTPAuthAPI {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPAuthAPI{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		callTimeout: callTimeout,
		log:         log.With("component", "auth_api"),
	}
}

func (a *HTTPAuthAPI) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	return a.authenticate(ctx, "/auth/login", models.LoginRequest{Email: email, Password: password})
}

func (a *HTTPAuthAPI) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	return a.authenticate(ctx, "/auth/register", req)
}

func (a *HTTPAuthAPI) Logout(ctx context.Context, refreshToken string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	resp, err := a.send(ctx, "/auth/logout", nil, refreshToken)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return NewStatusError(resp)
	}
	drain(resp)
	return nil
}

func (a *HTTPAuthAPI) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	resp, err := a.send(ctx, "/auth/refresh", nil, refreshToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, NewStatusError(resp)
	}

	var tokens models.TokenPair
	if err := decodeBody(resp, &tokens); err != nil {
		return nil, err
	}
	if !tokens.Valid() {
		return nil, fmt.Errorf("%w: refresh returned an incomplete token pair", ErrMalformedResponse)
	}
	return &tokens, nil
}

func (a *HTTPAuthAPI) authenticate(ctx context.Context, path string, payload any) (*models.AuthResponse, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	resp, err := a.send(ctx, path, payload, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, NewStatusError(resp)
	}

	var out models.AuthResponse
	if err := decodeBody(resp, &out); err != nil {
		return nil, err
	}
	if out.RequiresTwoFactor {
		return nil, ErrTwoFactorRequired
	}
	if out.User == nil || !out.Tokens.Valid() {
		return nil, fmt.Errorf("%w: user and tokens expected", ErrMalformedResponse)
	}
	return &out, nil
}

// send POSTs payload as JSON; refreshToken, when set, goes in its own header.
func (a *HTTPAuthAPI) send(ctx context.Context, path string, payload any, refreshToken string) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if refreshToken != "" {
		req.Header.Set(common.RefreshTokenHeader, refreshToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.log.Warn(ctx, "auth call failed", "path", path, "error", err)
		return nil, mapTransportError(err)
	}
	a.log.Debug(ctx, "auth call", "path", path, "status", resp.StatusCode)
	return resp, nil
}

func (a *HTTPAuthAPI) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.callTimeout)
}

func decodeBody(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
