package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/internal/testutil"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

func TestParseInputPaths(t *testing.T) {
	t.Run("strict json", func(t *testing.T) {
		got, err := sqlite.ParseInputPaths(`{"0": "/data/a.vcf", "1": "/data/b.vcf"}`)
		require.NoError(t, err)
		assert.Equal(t, map[int]string{0: "/data/a.vcf", 1: "/data/b.vcf"}, got)
	})

	t.Run("single quoted legacy encoding", func(t *testing.T) {
		got, err := sqlite.ParseInputPaths(`{'0': '/data/a.vcf'}`)
		require.NoError(t, err)
		assert.Equal(t, map[int]string{0: "/data/a.vcf"}, got)
	})

	t.Run("apostrophe in strict json survives", func(t *testing.T) {
		got, err := sqlite.ParseInputPaths(`{"0": "/data/o'brien.vcf"}`)
		require.NoError(t, err)
		assert.Equal(t, "/data/o'brien.vcf", got[0])
	})

	t.Run("non numeric key", func(t *testing.T) {
		_, err := sqlite.ParseInputPaths(`{"x": "/data/a.vcf"}`)
		assert.Error(t, err)
	})
}

func TestInputFileSummaryOrdersByFileNumber(t *testing.T) {
	paths := map[int]string{10: "c.vcf", 2: "b.vcf", 0: "a.vcf"}
	assert.Equal(t, "a.vcf;b.vcf;c.vcf", sqlite.InputFileSummary(paths))
}

func TestSetInfoUpserts(t *testing.T) {
	ctx := context.Background()
	path := testutil.WriteStore(t, filepath.Join(t.TempDir(), "a.sqlite"), testutil.Fixture{Version: "2.3.0"})
	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	db := store.DB()

	require.NoError(t, sqlite.SetInfo(ctx, db, types.InfoKeyVersion, "2.4.0"))
	require.NoError(t, sqlite.SetInfo(ctx, db, "new key", "x"))

	v, ok, err := sqlite.InfoValue(ctx, db, types.InfoKeyVersion)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2.4.0", v)

	v, ok, err = sqlite.InfoValue(ctx, db, "new key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok, err = sqlite.InfoValue(ctx, db, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHeaderAccessors(t *testing.T) {
	ctx := context.Background()
	path := testutil.WriteStore(t, filepath.Join(t.TempDir(), "a.sqlite"), testutil.Fixture{})
	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	cols, err := sqlite.HeaderColumns(ctx, store.DB(), types.TableGeneHeader)
	require.NoError(t, err)
	assert.Equal(t, []string{"base__hugo", "gene__desc"}, cols)

	defs, err := sqlite.HeaderDefs(ctx, store.DB(), types.TableGeneHeader)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "Description", defs[1].Title)
	assert.Equal(t, "gene", defs[1].Module)
}

func TestStageAndPublish(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.sqlite")

	staged := sqlite.StagePath(dst)
	assert.Equal(t, dir, filepath.Dir(staged))
	assert.NotEqual(t, staged, sqlite.StagePath(dst))

	require.NoError(t, os.WriteFile(staged, []byte("data"), 0o644))
	require.NoError(t, sqlite.Publish(staged, dst))
	assert.True(t, sqlite.FileExists(dst))
	assert.False(t, sqlite.FileExists(staged))

	other := sqlite.StagePath(dst)
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	sqlite.Discard(other)
	assert.False(t, sqlite.FileExists(other))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	require.NoError(t, sqlite.CopyFile(src, filepath.Join(dir, "b")))
	got, err := os.ReadFile(filepath.Join(dir, "b"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	assert.ErrorIs(t, sqlite.CopyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "c")), types.ErrStoreIO)
}
