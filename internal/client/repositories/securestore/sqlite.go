package securestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/cryptox"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/dbx"
)

type SQLiteRepository struct {
	db  *sql.DB
	ops sealedOps
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository returns a repository sealing values with key
// (cryptox.KeySize bytes).
func NewSQLiteRepository(db *sql.DB, key []byte) *SQLiteRepository {
	return &SQLiteRepository{db: db, ops: sealedOps{db: db, key: key}}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	return r.ops.Get(ctx, key)
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	return r.ops.Set(ctx, key, value)
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	return r.ops.Delete(ctx, key)
}

func (r *SQLiteRepository) SetMany(ctx context.Context, values map[string][]byte) error {
	return r.Update(ctx, func(ctx context.Context, tx Tx) error {
		for k, v := range values {
			if err := tx.Set(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteMany(ctx context.Context, keys ...string) error {
	return r.Update(ctx, func(ctx context.Context, tx Tx) error {
		for _, k := range keys {
			if err := tx.Delete(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, sealedOps{db: tx, key: r.ops.key})
	})
}

// sealedOps does the per-key work against either the pool or a transaction.
type sealedOps struct {
	db  dbx.DBTX
	key []byte
}

func (o sealedOps) Get(ctx context.Context, key string) ([]byte, error) {
	var sealed []byte
	err := o.db.QueryRowContext(ctx, `SELECT value FROM secure_entries WHERE key = ?`, key).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secure entry[%s]: %w", key, err)
	}

	plain, err := cryptox.Open(o.key, sealed, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("secure entry[%s]: %w: %v", key, ErrCorrupted, err)
	}
	return plain, nil
}

func (o sealedOps) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := cryptox.Seal(o.key, value, []byte(key))
	if err != nil {
		return fmt.Errorf("failed to seal secure entry[%s]: %w", key, err)
	}

	_, err = o.db.ExecContext(ctx, `
		INSERT INTO secure_entries (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, sealed)
	if err != nil {
		return fmt.Errorf("failed to set secure entry[%s]: %w", key, err)
	}
	return nil
}

func (o sealedOps) Delete(ctx context.Context, key string) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM secure_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete secure entry[%s]: %w", key, err)
	}
	return nil
}
