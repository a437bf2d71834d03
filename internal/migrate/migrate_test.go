package migrate

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/internal/testutil"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

func writeStore(t *testing.T, dir, name, version string) string {
	return testutil.WriteStore(t, filepath.Join(dir, name), testutil.Fixture{
		Version:       version,
		InputPaths:    map[int]string{0: "/in/run.vcf"},
		RawInputPaths: `{'0': '/in/run.vcf'}`,
		Variants:      []testutil.Variant{{UID: 1, Chrom: "chr1", Pos: 10, Ref: "A", Alt: "T"}},
	})
}

func versionOf(t *testing.T, path string) string {
	t.Helper()
	return testutil.ReadStore(t, path).Info[types.InfoKeyVersion]
}

func exec(t *testing.T, path string, stmts ...string) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	for _, stmt := range stmts {
		_, err := store.DB().ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}
}

func TestMigrateAppliesBuiltInCheckpoints(t *testing.T) {
	dir := t.TempDir()
	path := writeStore(t, dir, "old.sqlite", "1.4.4")
	exec(t, path,
		"DROP INDEX sample_idx_uid",
		"DROP INDEX mapping_idx_uid",
		"ALTER TABLE gene_annotator DROP COLUMN version",
	)

	report, err := New(nil, nil).Migrate(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, &types.MigrationReport{
		Path:    path,
		From:    "1.4.4",
		To:      "2.3.0",
		Applied: []string{"2.0.0", "2.1.0", "2.3.0"},
	}, report)

	got := testutil.ReadStore(t, path)
	assert.Equal(t, "2.3.0", got.Info[types.InfoKeyVersion])
	assert.Equal(t, `{"0":"/in/run.vcf"}`, got.Info[types.InfoKeyInputPaths])

	ctx := context.Background()
	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	cat, err := sqlite.LoadCatalog(ctx, store.DB(), "main")
	require.NoError(t, err)

	var indexes []string
	for _, idx := range cat.Indexes {
		indexes = append(indexes, idx.Name)
	}
	assert.Contains(t, indexes, "sample_idx_uid")
	assert.Contains(t, indexes, "mapping_idx_uid")
	for _, name := range types.AnnotatorTables {
		table, ok := cat.Table(name)
		require.True(t, ok)
		assert.True(t, table.Has("version"), name)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeStore(t, dir, "old.sqlite", "1.5.0")
	m := New(nil, nil)

	_, err := m.Migrate(context.Background(), path, false)
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	report, err := m.Migrate(context.Background(), path, true)
	require.NoError(t, err)
	assert.True(t, report.UpToDate)
	assert.Empty(t, report.Applied)
	assert.Empty(t, report.Backup)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoFileExists(t, path+BackupSuffix)
}

func TestMigrateNewerThanChainIsNoOp(t *testing.T) {
	path := writeStore(t, t.TempDir(), "new.sqlite", "2.5.1")

	report, err := New(nil, nil).Migrate(context.Background(), path, false)
	require.NoError(t, err)
	assert.True(t, report.UpToDate)
	assert.Equal(t, "2.5.1", versionOf(t, path))
}

func TestMigrateRefusals(t *testing.T) {
	dir := t.TempDir()

	t.Run("no version marker", func(t *testing.T) {
		path := writeStore(t, dir, "unversioned.sqlite", "")
		_, err := New(nil, nil).Migrate(context.Background(), path, true)
		assert.ErrorIs(t, err, types.ErrTooOld)

		var tooOld *types.TooOldError
		require.True(t, errors.As(err, &tooOld))
		assert.Equal(t, path, tooOld.Path)
		assert.NoFileExists(t, path+BackupSuffix)
	})

	t.Run("below oldest supported", func(t *testing.T) {
		path := writeStore(t, dir, "ancient.sqlite", "1.2.0")
		_, err := New(nil, nil).Migrate(context.Background(), path, true)
		assert.ErrorIs(t, err, types.ErrUnsupportedVersion)
		assert.Contains(t, err.Error(), "1.4.4")
		assert.Equal(t, "1.2.0", versionOf(t, path))
		assert.NoFileExists(t, path+BackupSuffix)
	})

	t.Run("unparseable version", func(t *testing.T) {
		path := writeStore(t, dir, "garbled.sqlite", "not-a-version")
		_, err := New(nil, nil).Migrate(context.Background(), path, false)

		var unsupported *types.UnsupportedVersionError
		require.True(t, errors.As(err, &unsupported))
		assert.Equal(t, "not-a-version", unsupported.Version)
	})

	t.Run("not a result store", func(t *testing.T) {
		path := filepath.Join(dir, "other.sqlite")
		store, err := sqlite.Create(context.Background(), path)
		require.NoError(t, err)
		_, err = store.DB().Exec("CREATE TABLE notes (body TEXT)")
		require.NoError(t, err)
		require.NoError(t, store.Close())

		_, err = New(nil, nil).Migrate(context.Background(), path, false)
		assert.ErrorIs(t, err, types.ErrNotResultStore)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := New(nil, nil).Migrate(context.Background(), filepath.Join(dir, "missing.sqlite"), false)
		assert.ErrorIs(t, err, types.ErrStoreIO)
	})
}

func TestMigrateBackup(t *testing.T) {
	path := writeStore(t, t.TempDir(), "old.sqlite", "1.5.0")

	report, err := New(nil, nil).Migrate(context.Background(), path, true)
	require.NoError(t, err)
	assert.Equal(t, path+BackupSuffix, report.Backup)
	assert.Equal(t, "1.5.0", versionOf(t, report.Backup))
	assert.Equal(t, "2.3.0", versionOf(t, path))
}

// recordingChain logs each applied checkpoint into a table of the store.
func recordingChain(t *testing.T, failAt string, versions ...string) *Chain {
	t.Helper()
	var cps []Checkpoint
	for _, v := range versions {
		v := v
		cps = append(cps, Checkpoint{
			Version: types.MustVersion(v),
			Name:    "record " + v,
			Apply: func(ctx context.Context, tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS applied (version TEXT)"); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, "INSERT INTO applied VALUES (?)", v); err != nil {
					return err
				}
				if v == failAt {
					return errors.New("checkpoint exploded")
				}
				return nil
			},
		})
	}
	chain, err := NewChain(types.MustVersion("0.1.0"), cps...)
	require.NoError(t, err)
	return chain
}

func appliedLog(t *testing.T, path string) []string {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	rows, err := store.DB().QueryContext(ctx, "SELECT version FROM applied ORDER BY rowid")
	require.NoError(t, err)
	defer rows.Close()
	var got []string
	for rows.Next() {
		var v string
		require.NoError(t, rows.Scan(&v))
		got = append(got, v)
	}
	require.NoError(t, rows.Err())
	return got
}

func TestMigrateAppliesStrictlyNewerCheckpointsInOrder(t *testing.T) {
	path := writeStore(t, t.TempDir(), "s.sqlite", "1.0.0")
	chain := recordingChain(t, "", "3.0.0", "0.5.0", "1.10.0", "1.0.0", "1.2.0")

	report, err := New(chain, nil).Migrate(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.0", "1.10.0", "3.0.0"}, report.Applied)
	assert.Equal(t, []string{"1.2.0", "1.10.0", "3.0.0"}, appliedLog(t, path))
	assert.Equal(t, "3.0.0", versionOf(t, path))
}

func TestMigrateFailureKeepsLastCommittedCheckpoint(t *testing.T) {
	path := writeStore(t, t.TempDir(), "s.sqlite", "0.9.0")

	report, err := New(recordingChain(t, "2.0.0", "1.0.0", "2.0.0", "3.0.0"), nil).
		Migrate(context.Background(), path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint exploded")
	require.NotNil(t, report)
	assert.Equal(t, []string{"1.0.0"}, report.Applied)
	assert.Equal(t, "1.0.0", versionOf(t, path))
	assert.Equal(t, []string{"1.0.0"}, appliedLog(t, path), "the failed checkpoint rolled back")

	report, err = New(recordingChain(t, "", "1.0.0", "2.0.0", "3.0.0"), nil).
		Migrate(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", report.From)
	assert.Equal(t, []string{"2.0.0", "3.0.0"}, report.Applied)
	assert.Equal(t, []string{"1.0.0", "2.0.0", "3.0.0"}, appliedLog(t, path))
}

func TestNewChain(t *testing.T) {
	noop := func(context.Context, *sql.Tx) error { return nil }

	chain, err := NewChain(types.MustVersion("1.0.0"),
		Checkpoint{Version: types.MustVersion("2.0.0"), Apply: noop},
		Checkpoint{Version: types.MustVersion("1.5.0"), Apply: noop},
	)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", chain.Oldest().String())
	assert.Equal(t, "2.0.0", chain.Latest().String())
	cps := chain.Checkpoints()
	require.Len(t, cps, 2)
	assert.Equal(t, "1.5.0", cps[0].Version.String())
	assert.Len(t, chain.After(types.MustVersion("1.5.0")), 1)
	assert.Empty(t, chain.After(types.MustVersion("2.0.0")))

	_, err = NewChain(types.MustVersion("1.0.0"),
		Checkpoint{Version: types.MustVersion("2.0.0"), Apply: noop},
		Checkpoint{Version: types.MustVersion("2.0.0"), Apply: noop},
	)
	assert.ErrorIs(t, err, types.ErrDuplicateCheckpoint)

	_, err = NewChain(types.MustVersion("1.0.0"), Checkpoint{Version: types.MustVersion("2.0.0")})
	assert.Error(t, err)

	empty, err := NewChain(types.MustVersion("1.0.0"))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", empty.Latest().String())
}

func TestDefaultChain(t *testing.T) {
	chain := DefaultChain()
	assert.Equal(t, OldestSupported, chain.Oldest().String())
	assert.Equal(t, "2.3.0", chain.Latest().String())
}

func TestMigrateAll(t *testing.T) {
	dir := t.TempDir()
	ok1 := writeStore(t, dir, "a.sqlite", "1.5.0")
	tooOld := writeStore(t, dir, "b.sqlite", "")
	ok2 := writeStore(t, dir, "c.sqlite", "2.0.0")
	missing := filepath.Join(dir, "d.sqlite")

	results := New(nil, nil).MigrateAll(context.Background(), []string{ok1, tooOld, ok2, missing}, false, 2)
	require.Len(t, results, 4)

	assert.Equal(t, ok1, results[0].Path)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "2.3.0", results[0].Report.To)

	assert.ErrorIs(t, results[1].Err, types.ErrTooOld)

	require.NoError(t, results[2].Err)
	assert.Equal(t, []string{"2.1.0", "2.3.0"}, results[2].Report.Applied)

	assert.ErrorIs(t, results[3].Err, types.ErrStoreIO)
	assert.Equal(t, 2, Failed(results))

	assert.Equal(t, "2.3.0", versionOf(t, ok1))
	assert.Equal(t, "2.3.0", versionOf(t, ok2))
}

func TestMigrateAllCancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeStore(t, dir, "a.sqlite", "1.5.0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := New(nil, nil).MigrateAll(ctx, []string{path}, false, 4)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Equal(t, "1.5.0", versionOf(t, path))
}

func TestFindStores(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "deeper"), 0o755))
	for _, p := range []string{
		filepath.Join(dir, "b.sqlite"),
		filepath.Join(dir, "a.sqlite"),
		filepath.Join(dir, "notes.txt"),
		filepath.Join(sub, "c.sqlite"),
		filepath.Join(sub, "deeper", "d.sqlite"),
	} {
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	got, err := FindStores(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.sqlite"), filepath.Join(dir, "b.sqlite")}, got)

	got, err = FindStores(dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.sqlite"),
		filepath.Join(dir, "b.sqlite"),
		filepath.Join(sub, "c.sqlite"),
		filepath.Join(sub, "deeper", "d.sqlite"),
	}, got)

	single := filepath.Join(dir, "a.sqlite")
	got, err = FindStores(single, false)
	require.NoError(t, err)
	assert.Equal(t, []string{single}, got)

	_, err = FindStores(filepath.Join(dir, "missing"), true)
	assert.ErrorIs(t, err, types.ErrStoreIO)
}
