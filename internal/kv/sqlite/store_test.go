package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/kv"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "fintrack.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSQLiteStoreGetPut(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	_, err := s.Get(ctx, kv.LedgerKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Put(ctx, kv.LedgerKey, []byte(`[{"id":"a"}]`)))
	require.NoError(t, s.Put(ctx, kv.LedgerKey, []byte(`[]`)))

	got, err := s.Get(ctx, kv.LedgerKey)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
	assert.NoError(t, s.Ping(ctx))
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)
	require.NoError(t, s.Put(ctx, kv.ThemeKey, []byte("dark")))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, kv.ThemeKey)
	require.NoError(t, err)
	assert.Equal(t, "dark", string(got))
}

func TestSQLiteStoreInMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, kv.LedgerKey, []byte(`[]`)))
	got, err := s.Get(ctx, kv.LedgerKey)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	// Already at the latest version, and the pool stays usable afterwards.
	require.NoError(t, RunMigrations(s.db))
	assert.NoError(t, s.Ping(ctx))
}
