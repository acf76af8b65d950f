// Package devicekey provides the key that encrypts the credential store.
//
// The key is derived with argon2id from a random device secret, kept in a file
// only the current user can read, and a random salt stored alongside the
// encrypted entries. Losing the secret file makes existing entries unreadable,
// which the credential store treats as "not signed in".
package devicekey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/cryptox"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/dbx"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/filex"
)

const (
	secretSize = 32
	saltSize   = 16
	saltName   = "salt"
)

// Load returns the store key, creating the device secret and salt on first use.
func Load(ctx context.Context, db dbx.DBTX, secretPath string) ([]byte, error) {
	secret, err := loadSecret(secretPath)
	if err != nil {
		return nil, err
	}

	salt, err := loadSalt(ctx, db)
	if err != nil {
		return nil, err
	}

	return cryptox.DeriveKey(secret, salt), nil
}

func loadSecret(path string) ([]byte, error) {
	secret, err := os.ReadFile(path)
	if err == nil {
		if len(secret) != secretSize {
			return nil, fmt.Errorf("device secret %s: unexpected length %d", path, len(secret))
		}
		return secret, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read device secret: %w", err)
	}

	secret, err = cryptox.RandomBytes(secretSize)
	if err != nil {
		return nil, err
	}
	if err := filex.WriteFileAtomic(path, secret, 0o600); err != nil {
		return nil, fmt.Errorf("write device secret: %w", err)
	}
	return secret, nil
}

func loadSalt(ctx context.Context, db dbx.DBTX) ([]byte, error) {
	fresh, err := cryptox.RandomBytes(saltSize)
	if err != nil {
		return nil, err
	}

	// first writer wins, everybody reads the stored value back
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO keyinfo (name, value) VALUES (?, ?)`, saltName, fresh); err != nil {
		return nil, fmt.Errorf("store salt: %w", err)
	}

	var salt []byte
	err = db.QueryRowContext(ctx, `SELECT value FROM keyinfo WHERE name = ?`, saltName).Scan(&salt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("salt missing after insert")
	}
	if err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	return salt, nil
}
