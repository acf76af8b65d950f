package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/api"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/models"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/session"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for the account details and creates the account. On
// success the new session is active straight away.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	displayName, err := getSimpleText(a.reader, "Enter display name", a.out)
	if err != nil {
		return err
	}
	tzInput, err := getSimpleText(a.reader, "Enter timezone (IANA name, empty for "+DefaultTimezone+")", a.out)
	if err != nil {
		return err
	}
	timezone, err := ParseTimezone(tzInput)
	if err != nil {
		fmt.Fprintf(a.out, "Unknown timezone %q\n", strings.TrimSpace(tzInput))
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	user, err := a.session.Register(ctx, models.RegisterRequest{
		Email:       email,
		Password:    string(password),
		DisplayName: displayName,
		Timezone:    timezone,
	})
	if err != nil {
		a.report(ctx, "Registration failed", err)
		return err
	}

	a.quietDrop.Store(false)
	fmt.Fprintf(a.out, "Welcome, %s!\n", user.DisplayName)
	return nil
}

// Login prompts for credentials and signs in.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	user, err := a.session.Login(ctx, email, string(password))
	if err != nil {
		a.report(ctx, "Login failed", err)
		return err
	}

	a.quietDrop.Store(false)
	fmt.Fprintf(a.out, "Welcome back, %s!\n", user.DisplayName)
	return nil
}

// Logout ends the session locally and, when reachable, on the server.
func (a *App) Logout(ctx context.Context) error {
	if a.isLoggedIn() {
		a.quietDrop.Store(true)
	}
	if err := a.session.Logout(ctx); err != nil {
		a.report(ctx, "Logout failed", err)
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// Refresh exchanges the refresh token for a new pair on demand.
func (a *App) Refresh(ctx context.Context) error {
	tokens, err := a.session.RefreshTokens(ctx)
	if err != nil {
		a.report(ctx, "Refresh failed", err)
		return err
	}
	fmt.Fprintf(a.out, "Tokens refreshed (access token valid for %ds)\n", tokens.ExpiresIn)
	return nil
}

// WhoAmI prints the signed-in user and what the access token says about itself.
func (a *App) WhoAmI(ctx context.Context) error {
	st := a.session.State()
	if !st.IsAuthenticated() {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}

	u := st.User
	fmt.Fprintf(a.out, "%s <%s>\n", u.DisplayName, u.Email)
	fmt.Fprintf(a.out, "  id:       %s\n", u.ID)
	if u.Timezone != "" {
		fmt.Fprintf(a.out, "  timezone: %s\n", u.Timezone)
	}

	claims, err := models.ParseAccessClaims(st.Tokens.AccessToken)
	if err != nil {
		a.log.Debug(ctx, "access token is not a JWT", "error", err)
		fmt.Fprintln(a.out, "  token:    opaque")
		return nil
	}
	if !claims.ExpiresAt.IsZero() {
		fmt.Fprintf(a.out, "  token:    expires %s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

// report prints a short, user-facing explanation of err.
func (a *App) report(ctx context.Context, what string, err error) {
	a.log.Debug(ctx, what, "error", err)

	var se *api.StatusError
	switch {
	case errors.Is(err, session.ErrNoRefreshToken):
		fmt.Fprintf(a.out, "%s: not logged in\n", what)
	case errors.Is(err, api.ErrTwoFactorRequired):
		fmt.Fprintf(a.out, "%s: two-factor authentication is not supported by this client\n", what)
	case errors.Is(err, api.ErrUnavailable):
		fmt.Fprintf(a.out, "%s: server unavailable, try again later\n", what)
	case errors.As(err, &se) && se.Message != "":
		fmt.Fprintf(a.out, "%s: %s\n", what, se.Message)
	default:
		fmt.Fprintf(a.out, "%s: %v\n", what, err)
	}
}
