// Package storetest builds credential stores backed by a throwaway SQLite file.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/credentials"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/client/repositories/securestore"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/cryptox"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/logging"
	"github.com/stretchr/testify/require"
)

// New returns a credential store and the repository underneath it. Both are
// closed when the test ends.
func New(t testing.TB) (*credentials.Store, *securestore.SQLiteRepository) {
	t.Helper()
	db, err := securestore.OpenDB(context.Background(), filepath.Join(t.TempDir(), "secure.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := securestore.NewSQLiteRepository(db, cryptox.DeriveKey([]byte("test-device"), []byte("test-salt")))
	return credentials.NewStore(repo, logging.NewNopLogger()), repo
}
