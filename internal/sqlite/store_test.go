package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

func newScratch(t *testing.T, name string) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Create(context.Background(), filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = store.DB().Exec("CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
	return store
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	store := newScratch(t, "tx.sqlite")

	require.NoError(t, store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('a', '1')")
		return err
	}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('b', '2')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := sqlite.CountRows(ctx, store.DB(), "kv")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAttachDetach(t *testing.T) {
	ctx := context.Background()
	other := newScratch(t, "other.sqlite")
	_, err := other.DB().Exec("INSERT INTO kv VALUES ('x', 'y')")
	require.NoError(t, err)
	require.NoError(t, other.Close())

	store := newScratch(t, "main.sqlite")
	require.NoError(t, store.Attach(ctx, other.Path(), "src"))

	var v string
	require.NoError(t, store.DB().QueryRow(`SELECT v FROM "src".kv WHERE k = 'x'`).Scan(&v))
	assert.Equal(t, "y", v)

	require.NoError(t, store.Detach(ctx, "src"))
	assert.ErrorIs(t, store.Detach(ctx, "src"), types.ErrStoreIO)
}

func TestOpenRejectsMissingAndDirectories(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := sqlite.Open(ctx, filepath.Join(dir, "none.sqlite"))
	assert.ErrorIs(t, err, types.ErrStoreIO)

	_, err = sqlite.Open(ctx, dir)
	assert.ErrorIs(t, err, types.ErrStoreIO)
	assert.ErrorIs(t, err, types.ErrNotStoreFile)
}

func TestCloseTwice(t *testing.T) {
	store := newScratch(t, "close.sqlite")
	require.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
