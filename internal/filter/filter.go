// Package filter derives a smaller result store holding only the variants,
// genes and samples selected by a filter.
package filter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mesh-intelligence/varstore/internal/logging"
	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

// sourceAlias is the schema name the source store is attached under.
const sourceAlias = "src"

// Engine filters result stores.
type Engine struct {
	logger *slog.Logger
	load   Loader
}

// New returns an Engine. A nil load uses LoadSQL; a nil logger discards.
func New(logger *slog.Logger, load Loader) *Engine {
	if load == nil {
		load = LoadSQL
	}
	return &Engine{logger: logging.OrDiscard(logger), load: load}
}

// OutputPath names the filtered copy of source: <outDir>/<stem>.<suffix>.sqlite.
func OutputPath(source, outDir, suffix string) string {
	if outDir == "" {
		outDir = "."
	}
	stem := strings.TrimSuffix(filepath.Base(source), types.StoreSuffix)
	return filepath.Join(outDir, stem+"."+suffix+types.StoreSuffix)
}

// Filter writes the subset of source selected by spec to output. On failure
// nothing is left at output.
func (e *Engine) Filter(ctx context.Context, source string, spec types.FilterSpec, output string) (*types.FilterReport, error) {
	if !strings.HasSuffix(source, types.StoreSuffix) {
		return nil, fmt.Errorf("%w: %s", types.ErrNotStoreFile, source)
	}

	sel, err := e.evaluate(ctx, source, spec)
	if err != nil {
		return nil, err
	}

	cat, err := loadSourceCatalog(ctx, source)
	if err != nil {
		return nil, err
	}

	staged := sqlite.StagePath(output)
	report, err := e.materialize(ctx, source, cat, sel, staged)
	if err != nil {
		sqlite.Discard(staged)
		return nil, err
	}
	if err := sqlite.Publish(staged, output); err != nil {
		sqlite.Discard(staged)
		return nil, err
	}

	report.Source = source
	report.Output = output
	e.logger.Info("filtered store",
		"source", source,
		"output", output,
		"variants", report.Variants,
		"genes", report.Genes,
		"samples", report.Samples)
	return report, nil
}

// selection is the materialized result of evaluating a filter.
type selection struct {
	uids    []int64
	hugos   []string
	require []string
	reject  []string
}

func (e *Engine) evaluate(ctx context.Context, source string, spec types.FilterSpec) (*selection, error) {
	ev, err := e.load(ctx, source, spec)
	if err != nil {
		return nil, err
	}
	defer ev.Close()

	uids, err := ev.VariantUIDs(ctx)
	if err != nil {
		return nil, err
	}
	hugos, err := ev.GeneHugos(ctx)
	if err != nil {
		return nil, err
	}
	require, reject := ev.SampleLists()
	e.logger.Debug("evaluated filter", "source", source, "variants", len(uids), "genes", len(hugos))
	return &selection{uids: uids, hugos: hugos, require: require, reject: reject}, nil
}

func loadSourceCatalog(ctx context.Context, source string) (*sqlite.Catalog, error) {
	store, err := sqlite.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	cat, err := sqlite.LoadCatalog(ctx, store.DB(), "main")
	if err != nil {
		return nil, err
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return cat, nil
}

func (e *Engine) materialize(ctx context.Context, source string, cat *sqlite.Catalog, sel *selection, staged string) (*types.FilterReport, error) {
	out, err := sqlite.Create(ctx, staged)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	if err := sqlite.ReplayTables(ctx, out.DB(), cat); err != nil {
		return nil, err
	}
	if err := out.Attach(ctx, source, sourceAlias); err != nil {
		return nil, err
	}

	err = out.WithTx(ctx, func(tx *sql.Tx) error {
		return copySelection(ctx, tx, cat, sel)
	})
	if err != nil {
		return nil, err
	}
	if err := out.Detach(ctx, sourceAlias); err != nil {
		return nil, err
	}

	indexes, err := sqlite.ReplayObjects(ctx, out.DB(), cat)
	if err != nil {
		return nil, err
	}

	report := &types.FilterReport{Indexes: indexes}
	counts := []struct {
		table string
		dst   *int
	}{
		{types.TableVariant, &report.Variants},
		{types.TableGene, &report.Genes},
		{types.TableSample, &report.Samples},
		{types.TableMapping, &report.Mappings},
	}
	for _, c := range counts {
		if *c.dst, err = sqlite.CountRows(ctx, out.DB(), c.table); err != nil {
			return nil, err
		}
	}
	if err := sqlite.SetInfo(ctx, out.DB(), types.InfoKeyUniqueVariants, fmt.Sprint(report.Variants)); err != nil {
		return nil, err
	}
	return report, out.Close()
}

// copySelection fills the output from the attached source: metadata tables
// verbatim, data tables restricted to the selection.
func copySelection(ctx context.Context, tx *sql.Tx, cat *sqlite.Catalog, sel *selection) error {
	if err := stageKeys(ctx, tx, sel); err != nil {
		return err
	}

	for _, t := range cat.Tables() {
		if types.IsDataTable(t.Name) {
			continue
		}
		if err := copyWhere(ctx, tx, t, "", nil); err != nil {
			return err
		}
	}

	keepUID := sqlite.QuoteIdent(types.ColUID) + " IN (SELECT uid FROM temp.keep_uid)"
	sampleWhere, sampleArgs := sampleClause(keepUID, sel.require, sel.reject)
	restrictions := []restriction{
		{types.TableVariant, keepUID, nil},
		{types.TableGene, sqlite.QuoteIdent(types.ColHugo) + " IN (SELECT hugo FROM temp.keep_hugo)", nil},
		{types.TableSample, sampleWhere, sampleArgs},
		{types.TableMapping, keepUID, nil},
	}

	for _, r := range restrictions {
		t, _ := cat.Table(r.table)
		if err := copyWhere(ctx, tx, t, r.where, r.args); err != nil {
			return err
		}
	}

	for _, stmt := range []string{"DROP TABLE temp.keep_uid", "DROP TABLE temp.keep_hugo"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop selection: %w", err)
		}
	}
	return nil
}

// restriction is the WHERE clause applied when copying one data table.
type restriction struct {
	table string
	where string
	args  []any
}

// sampleClause restricts samples to surviving uids, the require allow-list
// when it is non-empty, and never a rejected sample.
func sampleClause(keepUID string, require, reject []string) (string, []any) {
	where := keepUID
	var args []any
	col := sqlite.QuoteIdent(types.ColSampleID)
	if len(require) > 0 {
		where += " AND " + col + " IN (" + sqlite.Placeholders(len(require)) + ")"
		for _, s := range require {
			args = append(args, s)
		}
	}
	if len(reject) > 0 {
		where += " AND (" + col + " IS NULL OR " + col + " NOT IN (" + sqlite.Placeholders(len(reject)) + "))"
		for _, s := range reject {
			args = append(args, s)
		}
	}
	return where, args
}

func stageKeys(ctx context.Context, tx *sql.Tx, sel *selection) error {
	stmts := []string{
		"CREATE TEMP TABLE keep_uid (uid INTEGER PRIMARY KEY)",
		"CREATE TEMP TABLE keep_hugo (hugo TEXT PRIMARY KEY)",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("stage selection: %w", err)
		}
	}

	uidStmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO temp.keep_uid (uid) VALUES (?)")
	if err != nil {
		return fmt.Errorf("stage selection: %w", err)
	}
	defer uidStmt.Close()
	for _, uid := range sel.uids {
		if _, err := uidStmt.ExecContext(ctx, uid); err != nil {
			return fmt.Errorf("stage uid %d: %w", uid, err)
		}
	}

	hugoStmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO temp.keep_hugo (hugo) VALUES (?)")
	if err != nil {
		return fmt.Errorf("stage selection: %w", err)
	}
	defer hugoStmt.Close()
	for _, hugo := range sel.hugos {
		if _, err := hugoStmt.ExecContext(ctx, hugo); err != nil {
			return fmt.Errorf("stage gene %s: %w", hugo, err)
		}
	}
	return nil
}

func copyWhere(ctx context.Context, tx *sql.Tx, t *sqlite.TableDef, where string, args []any) error {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = sqlite.QuoteIdent(c)
	}
	list := strings.Join(cols, ", ")
	stmt := fmt.Sprintf("INSERT INTO main.%s (%s) SELECT %s FROM %s.%s",
		sqlite.QuoteIdent(t.Name), list, list, sourceAlias, sqlite.QuoteIdent(t.Name))
	if where != "" {
		stmt += " WHERE " + where
	}
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("copy %s: %w", t.Name, err)
	}
	return nil
}

// Result is the outcome of filtering one input of a batch.
type Result struct {
	Source  string
	Report  *types.FilterReport
	Skipped bool
	Err     error
}

// BatchOptions name where filtered copies are written.
type BatchOptions struct {
	OutDir string
	Suffix string
}

// FilterAll filters each source independently. Inputs without the store
// suffix are skipped with a warning; a failing input is logged and the batch
// moves on. Only cancellation stops the batch early.
func (e *Engine) FilterAll(ctx context.Context, sources []string, spec types.FilterSpec, opts BatchOptions) ([]Result, error) {
	results := make([]Result, 0, len(sources))
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := Result{Source: source}
		if !strings.HasSuffix(source, types.StoreSuffix) {
			e.logger.Warn("skipping input without store suffix", "path", source, "suffix", types.StoreSuffix)
			res.Skipped = true
			results = append(results, res)
			continue
		}

		res.Report, res.Err = e.Filter(ctx, source, spec, OutputPath(source, opts.OutDir, opts.Suffix))
		if res.Err != nil {
			if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
				return append(results, res), res.Err
			}
			e.logger.Error("filter failed", "path", source, "error", res.Err)
		}
		results = append(results, res)
	}
	return results, nil
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
