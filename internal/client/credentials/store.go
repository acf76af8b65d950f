// Package credentials is the typed credential store: it keeps the signed-in
// user and the token pair in the encrypted secure store and guarantees that
// the two are written and removed together.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/models"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/repositories/securestore"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/logging"
)

const (
	KeyTokens = "tokens"
	KeyUser   = "user"

	envelopeVersion = 1
)

var (
	// ErrNoSession is returned by SaveTokens when no user is stored, i.e. the
	// session was cleared while a refresh was in flight.
	ErrNoSession = errors.New("no stored session")

	// ErrSessionChanged is returned by SaveTokens when the stored session is
	// no longer the one the refresh started from.
	ErrSessionChanged = errors.New("stored session changed")

	ErrInvalidSession = errors.New("user and a complete token pair are required")

	errUnsupportedVersion = errors.New("unsupported entry version")
)

// envelope tags every stored record with a schema version.
type envelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

type Store struct {
	repo securestore.Repository
	log  logging.Logger
}

func NewStore(repo securestore.Repository, log logging.Logger) *Store {
	return &Store{repo: repo, log: log.With("component", "credentials")}
}

// Load returns the stored session. It never fails: unreadable, corrupt or
// half-present data is reported as no session, and leftovers are purged so the
// store holds both entries or neither.
func (s *Store) Load(ctx context.Context) (*models.User, *models.TokenPair) {
	rawTokens, errT := s.repo.Get(ctx, KeyTokens)
	rawUser, errU := s.repo.Get(ctx, KeyUser)
	if err := errors.Join(errT, errU); err != nil {
		s.log.Warn(ctx, "stored credentials unreadable", "error", err)
		s.purgeIf(ctx, errors.Is(err, securestore.ErrCorrupted))
		return nil, nil
	}

	if rawTokens == nil && rawUser == nil {
		return nil, nil
	}
	if rawTokens == nil || rawUser == nil {
		s.log.Warn(ctx, "partial credentials found", "has_tokens", rawTokens != nil, "has_user", rawUser != nil)
		s.purgeIf(ctx, true)
		return nil, nil
	}

	var (
		tokens models.TokenPair
		user   models.User
	)
	if err := decode(rawTokens, &tokens); err != nil || !tokens.Valid() {
		s.log.Warn(ctx, "stored tokens malformed", "error", err)
		s.purgeIf(ctx, true)
		return nil, nil
	}
	if err := decode(rawUser, &user); err != nil {
		s.log.Warn(ctx, "stored user malformed", "error", err)
		s.purgeIf(ctx, true)
		return nil, nil
	}

	return &user, &tokens
}

// Tokens returns the stored token pair, or nil when there is none or it
// cannot be read.
func (s *Store) Tokens(ctx context.Context) *models.TokenPair {
	raw, err := s.repo.Get(ctx, KeyTokens)
	if err != nil {
		s.log.Warn(ctx, "stored tokens unreadable", "error", err)
		return nil
	}
	if raw == nil {
		return nil
	}

	var tokens models.TokenPair
	if err := decode(raw, &tokens); err != nil {
		s.log.Warn(ctx, "stored tokens malformed", "error", err)
		return nil
	}
	return &tokens
}

// SaveSession persists user and tokens in one transaction.
func (s *Store) SaveSession(ctx context.Context, user *models.User, tokens *models.TokenPair) error {
	if user == nil || !tokens.Valid() {
		return ErrInvalidSession
	}

	rawUser, err := encode(user)
	if err != nil {
		return err
	}
	rawTokens, err := encode(tokens)
	if err != nil {
		return err
	}

	if err := s.repo.SetMany(ctx, map[string][]byte{KeyUser: rawUser, KeyTokens: rawTokens}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SaveTokens replaces the token pair of the stored session and leaves the
// user untouched. The write only happens if the stored refresh token is still
// prevRefreshToken; otherwise the session was cleared (ErrNoSession) or
// replaced (ErrSessionChanged) while the refresh was in flight.
func (s *Store) SaveTokens(ctx context.Context, prevRefreshToken string, tokens *models.TokenPair) error {
	if !tokens.Valid() {
		return ErrInvalidSession
	}
	rawTokens, err := encode(tokens)
	if err != nil {
		return err
	}

	return s.repo.Update(ctx, func(ctx context.Context, tx securestore.Tx) error {
		rawUser, err := tx.Get(ctx, KeyUser)
		if err != nil {
			return fmt.Errorf("save tokens: %w", err)
		}
		current, err := currentRefreshToken(ctx, tx)
		if err != nil {
			return fmt.Errorf("save tokens: %w", err)
		}
		if rawUser == nil || current == "" {
			return ErrNoSession
		}
		if current != prevRefreshToken {
			return ErrSessionChanged
		}
		if err := tx.Set(ctx, KeyTokens, rawTokens); err != nil {
			return fmt.Errorf("save tokens: %w", err)
		}
		return nil
	})
}

// ClearIfCurrent removes the session only if its refresh token is still
// refreshToken, so a failed refresh of an old session cannot wipe a newer one.
// It reports whether anything was removed.
func (s *Store) ClearIfCurrent(ctx context.Context, refreshToken string) (bool, error) {
	cleared := false
	err := s.repo.Update(ctx, func(ctx context.Context, tx securestore.Tx) error {
		current, err := currentRefreshToken(ctx, tx)
		if err != nil && !errors.Is(err, securestore.ErrCorrupted) {
			return err
		}
		if err == nil && current != refreshToken {
			return nil
		}
		for _, k := range []string{KeyTokens, KeyUser} {
			if err := tx.Delete(ctx, k); err != nil {
				return err
			}
		}
		cleared = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("clear credentials: %w", err)
	}
	return cleared, nil
}

// Clear removes both entries in one transaction.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.repo.DeleteMany(ctx, KeyTokens, KeyUser); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (s *Store) purgeIf(ctx context.Context, cond bool) {
	if !cond {
		return
	}
	if err := s.Clear(ctx); err != nil {
		s.log.Warn(ctx, "failed to purge stale credentials", "error", err)
	}
}

// currentRefreshToken reads the stored refresh token inside tx; "" when absent.
func currentRefreshToken(ctx context.Context, tx securestore.Tx) (string, error) {
	raw, err := tx.Get(ctx, KeyTokens)
	if err != nil || raw == nil {
		return "", err
	}
	var tokens models.TokenPair
	if err := decode(raw, &tokens); err != nil {
		return "", fmt.Errorf("%w: %v", securestore.ErrCorrupted, err)
	}
	return tokens.RefreshToken, nil
}

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return json.Marshal(envelope{V: envelopeVersion, Data: data})
}

func decode(raw []byte, v any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.V != envelopeVersion {
		return fmt.Errorf("%w: %d", errUnsupportedVersion, env.V)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
