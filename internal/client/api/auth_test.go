package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/models"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/logging"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/testutil/fakeapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthAPI(t *testing.T) (*HTTPAuthAPI, *fakeapi.Server) {
	t.Helper()
	srv := fakeapi.New()
	t.Cleanup(srv.Close)
	return NewHTTPAuthAPI(srv.BaseURL(), srv.Client(), 5*time.Second, logging.NewNopLogger()), srv
}

func TestLogin_Success(t *testing.T) {
	a, srv := newAuthAPI(t)
	seeded := srv.Seed("a@b.com", "pw", "Ann")

	resp, err := a.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, seeded, *resp.User)
	assert.True(t, resp.Tokens.Valid())
}

func TestLogin_WrongPassword_Unauthorized(t *testing.T) {
	a, srv := newAuthAPI(t)
	srv.Seed("a@b.com", "pw", "Ann")

	_, err := a.Login(context.Background(), "a@b.com", "nope")
	require.ErrorIs(t, err, ErrUnauthorized)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "Invalid credentials", se.Message)
}

func TestRegister_CreatedAndDuplicate(t *testing.T) {
	a, _ := newAuthAPI(t)
	ctx := context.Background()
	req := models.RegisterRequest{Email: "n@b.com", Password: "pw", DisplayName: "New", Timezone: "Europe/Riga"}

	resp, err := a.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "New", resp.User.DisplayName)
	assert.Equal(t, "Europe/Riga", resp.User.Timezone)

	_, err = a.Register(ctx, req)
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "Email already registered")
}

func TestRefreshToken_RotatesAndRejectsReuse(t *testing.T) {
	a, srv := newAuthAPI(t)
	srv.Seed("a@b.com", "pw", "Ann")
	first := srv.IssueFor("a@b.com")
	ctx := context.Background()

	next, err := a.RefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, next.RefreshToken)

	_, err = a.RefreshToken(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogout_InvalidatesRefreshToken(t *testing.T) {
	a, srv := newAuthAPI(t)
	srv.Seed("a@b.com", "pw", "Ann")
	pair := srv.IssueFor("a@b.com")

	require.NoError(t, a.Logout(context.Background(), pair.RefreshToken))
	assert.False(t, srv.RefreshTokenValid(pair.RefreshToken))
}

func TestLogout_ServerError_Unavailable(t *testing.T) {
	a, srv := newAuthAPI(t)
	srv.SetLogoutStatus(http.StatusServiceUnavailable)

	err := a.Logout(context.Background(), "rt")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCallTimeout_MapsToUnavailable(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.SetRefreshDelay(time.Second)

	a := NewHTTPAuthAPI(srv.BaseURL(), srv.Client(), 50*time.Millisecond, logging.NewNopLogger())

	start := time.Now()
	_, err := a.RefreshToken(context.Background(), "rt")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestCallerCancellation_IsNotMasked(t *testing.T) {
	a, srv := newAuthAPI(t)
	srv.SetRefreshDelay(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.RefreshToken(ctx, "rt")
	require.ErrorIs(t, err, context.Canceled)
}

func TestUnreachableServer_Unavailable(t *testing.T) {
	srv := fakeapi.New()
	base := srv.BaseURL()
	srv.Close()

	a := NewHTTPAuthAPI(base, nil, time.Second, logging.NewNopLogger())
	_, err := a.Login(context.Background(), "a@b.com", "pw")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestMalformedAndTwoFactorResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "not json", body: `<html>`, want: ErrMalformedResponse},
		{name: "missing tokens", body: `{"user":{"id":"u1"}}`, want: ErrMalformedResponse},
		{name: "two factor", body: `{"requiresTwoFactor":true}`, want: ErrTwoFactorRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewHTTPAuthAPI(srv.URL, srv.Client(), time.Second, logging.NewNopLogger())
			_, err := a.Login(context.Background(), "a@b.com", "pw")
			require.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestStatusError_Kinds(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusBadRequest, ErrRejected},
		{http.StatusConflict, ErrRejected},
		{http.StatusTooManyRequests, ErrUnavailable},
		{http.StatusBadGateway, ErrUnavailable},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, kindForStatus(tt.code), tt.want, "status %d", tt.code)
	}
}

func TestServerMessage(t *testing.T) {
	assert.Equal(t, "m", serverMessage([]byte(`{"message":"m","error":"e"}`)))
	assert.Equal(t, "e", serverMessage([]byte(`{"error":"e"}`)))
	assert.Equal(t, "plain text", serverMessage([]byte(" plain text\n")))
}
