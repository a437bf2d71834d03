package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/varstore/internal/logging"
	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

// BackupSuffix is appended to a store's path for its pre-migration copy.
const BackupSuffix = ".bak"

// Migrator applies a Chain to stores.
type Migrator struct {
	chain  *Chain
	logger *slog.Logger
}

// New returns a Migrator for chain. A nil chain uses DefaultChain.
func New(chain *Chain, logger *slog.Logger) *Migrator {
	if chain == nil {
		chain = DefaultChain()
	}
	return &Migrator{chain: chain, logger: logging.OrDiscard(logger)}
}

// Migrate upgrades the store at path to the newest checkpoint. Each
// checkpoint commits together with its version marker, so a failure leaves
// the store at the last checkpoint that succeeded; the returned report lists
// the checkpoints applied before the failure.
func (m *Migrator) Migrate(ctx context.Context, path string, backup bool) (*types.MigrationReport, error) {
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	from, err := m.declaredVersion(ctx, store)
	if err != nil {
		return nil, err
	}
	report := &types.MigrationReport{Path: path, From: from.String(), To: from.String()}

	if from.Compare(m.chain.Latest()) >= 0 {
		report.UpToDate = true
		m.logger.Info("store is up to date", "path", path, "version", from)
		return report, nil
	}
	if from.Less(m.chain.Oldest()) {
		return nil, m.unsupported(path, from.String())
	}

	if backup {
		report.Backup = path + BackupSuffix
		if err := sqlite.CopyFile(path, report.Backup); err != nil {
			return nil, err
		}
		m.logger.Info("made backup copy", "path", report.Backup)
	}

	for _, cp := range m.chain.After(from) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := store.WithTx(ctx, func(tx *sql.Tx) error {
			if err := cp.Apply(ctx, tx); err != nil {
				return err
			}
			return sqlite.SetInfo(ctx, tx, types.InfoKeyVersion, cp.Version.String())
		})
		if err != nil {
			return report, fmt.Errorf("migrate %s to %s (%s): %w", path, cp.Version, cp.Name, err)
		}
		report.Applied = append(report.Applied, cp.Version.String())
		report.To = cp.Version.String()
		m.logger.Info("applied checkpoint", "path", path, "version", cp.Version, "name", cp.Name)
	}
	return report, store.Close()
}

func (m *Migrator) declaredVersion(ctx context.Context, store *sqlite.Store) (types.Version, error) {
	cat, err := sqlite.LoadCatalog(ctx, store.DB(), "main")
	if err != nil {
		return types.Version{}, types.NewStoreIOError(store.Path(), "read schema", err)
	}
	if _, ok := cat.Table(types.TableInfo); !ok {
		return types.Version{}, fmt.Errorf("%s: %w: missing table %s", store.Path(), types.ErrNotResultStore, types.TableInfo)
	}

	raw, ok, err := sqlite.InfoValue(ctx, store.DB(), types.InfoKeyVersion)
	if err != nil {
		return types.Version{}, types.NewStoreIOError(store.Path(), "read version", err)
	}
	if !ok {
		return types.Version{}, &types.TooOldError{Path: store.Path()}
	}
	v, err := types.ParseVersion(raw)
	if err != nil {
		return types.Version{}, m.unsupported(store.Path(), raw)
	}
	return v, nil
}

func (m *Migrator) unsupported(path, version string) error {
	return &types.UnsupportedVersionError{
		Path:    path,
		Version: version,
		Oldest:  m.chain.Oldest(),
		Latest:  m.chain.Latest(),
	}
}

// Result is the outcome of migrating one store of a batch.
type Result struct {
	Path   string
	Report *types.MigrationReport
	Err    error
}

// MigrateAll migrates paths with at most workers stores in flight. A failing
// store never stops the others; cancelling ctx stops scheduling new stores.
// Results are returned in the order of paths.
func (m *Migrator) MigrateAll(ctx context.Context, paths []string, backup bool, workers int) []Result {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(paths))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range paths {
		results[i].Path = path
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		i, path := i, path
		g.Go(func() error {
			report, err := m.Migrate(ctx, path, backup)
			results[i].Report, results[i].Err = report, err
			if err != nil {
				m.logger.Error("migration failed", "path", path, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed counts the results that ended in an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// FindStores expands root into store paths. A file is returned as is. A
// directory yields the *.sqlite files directly inside it, or, when recursive,
// anywhere below it. Paths are sorted.
func FindStores(root string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, types.NewStoreIOError(root, "find stores", err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), types.StoreSuffix) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return nil, types.NewStoreIOError(root, "find stores", err)
	}
	sort.Strings(paths)
	return paths, nil
}
