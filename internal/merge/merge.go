// Package merge combines several result stores into one.
//
// The first source seeds the output. Later sources contribute only variants
// and genes whose natural key is not already present; their sample and
// mapping rows follow the variants that were actually added. Variant uids
// and input file numbers are reassigned so neither collides.
package merge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/mesh-intelligence/varstore/internal/logging"
	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

// Engine merges result stores.
type Engine struct {
	logger *slog.Logger
}

// New returns an Engine logging to logger. A nil logger discards output.
func New(logger *slog.Logger) *Engine {
	return &Engine{logger: logging.OrDiscard(logger)}
}

// OutputPath appends the store suffix to path when it is missing.
func OutputPath(path string) string {
	if strings.HasSuffix(path, types.StoreSuffix) {
		return path
	}
	return path + types.StoreSuffix
}

// Merge writes the union of sources to output. The output only appears on
// disk once every source has been merged.
func (e *Engine) Merge(ctx context.Context, sources []string, output string) (*types.MergeReport, error) {
	if len(sources) < 2 {
		return nil, fmt.Errorf("merge: %w, got %d", types.ErrTooFewSources, len(sources))
	}
	output = OutputPath(output)

	if err := checkSchemas(ctx, sources); err != nil {
		return nil, err
	}

	staged := sqlite.StagePath(output)
	if err := sqlite.CopyFile(sources[0], staged); err != nil {
		return nil, err
	}
	published := false
	defer func() {
		if !published {
			sqlite.Discard(staged)
		}
	}()

	report, err := e.mergeInto(ctx, staged, sources)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Publish(staged, output); err != nil {
		return nil, err
	}
	published = true

	report.Output = output
	e.logger.Info("merged stores",
		"output", output,
		"sources", len(sources),
		"variants", report.Variants,
		"genes", report.Genes,
		"input_files", report.InputFiles)
	return report, nil
}

func (e *Engine) mergeInto(ctx context.Context, staged string, sources []string) (*types.MergeReport, error) {
	out, err := sqlite.Open(ctx, staged)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	cat, err := sqlite.LoadCatalog(ctx, out.DB(), "main")
	if err != nil {
		return nil, err
	}

	st, err := loadState(ctx, out.DB())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", sources[0], err)
	}

	report := &types.MergeReport{}
	report.Sources = append(report.Sources, types.MergeSourceStats{
		Path:          sources[0],
		VariantsAdded: len(st.variants),
		GenesAdded:    len(st.genes),
		FilesAdded:    len(st.paths),
	})

	for _, src := range sources[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats, err := e.mergeSource(ctx, out, cat, st, src)
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", src, err)
		}
		report.Sources = append(report.Sources, stats)
	}

	err = out.WithTx(ctx, func(tx *sql.Tx) error {
		if err := sqlite.WriteInputPaths(ctx, tx, st.paths); err != nil {
			return err
		}
		return sqlite.SetInfo(ctx, tx, types.InfoKeyUniqueVariants, fmt.Sprint(len(st.variants)))
	})
	if err != nil {
		return nil, fmt.Errorf("update info: %w", err)
	}

	report.Variants = len(st.variants)
	report.Genes = len(st.genes)
	report.InputFiles = len(st.paths)
	return report, out.Close()
}

// mergeSource adds one source to the output inside a single transaction.
func (e *Engine) mergeSource(ctx context.Context, out *sqlite.Store, cat *sqlite.Catalog, st *state, path string) (types.MergeSourceStats, error) {
	stats := types.MergeSourceStats{Path: path}

	src, err := sqlite.Open(ctx, path)
	if err != nil {
		return stats, err
	}
	defer src.Close()

	srcCat, err := sqlite.LoadCatalog(ctx, src.DB(), "main")
	if err != nil {
		return stats, err
	}
	srcPaths, err := sqlite.InputPaths(ctx, src.DB())
	if err != nil {
		return stats, err
	}

	// Commit the path table only with the transaction.
	pending := st.clonePaths()
	filenos := make(map[int64]int64, len(srcPaths))
	for _, no := range sortedFilenos(srcPaths) {
		p := srcPaths[no]
		if existing, ok := pending.byPath[p]; ok {
			filenos[int64(no)] = int64(existing)
			continue
		}
		assigned := pending.add(p)
		filenos[int64(no)] = int64(assigned)
		stats.FilesAdded++
	}

	uids := make(map[int64]int64)
	addedGenes := make(map[string]struct{})
	addedVariants := make(map[string]struct{})
	maxUID := st.maxUID

	err = out.WithTx(ctx, func(tx *sql.Tx) error {
		copier := rowCopier{ctx: ctx, src: src.DB(), tx: tx, out: cat, in: srcCat}

		n, err := copier.copy(types.TableGene, func(cols []string, row []any) (bool, error) {
			hugo := keyPart(row[indexOf(cols, types.ColHugo)])
			if _, seen := st.genes[hugo]; seen {
				stats.GenesDropped++
				e.logger.Debug("dropped duplicate gene", "source", path, "hugo", hugo)
				return false, nil
			}
			if _, seen := addedGenes[hugo]; seen {
				stats.GenesDropped++
				return false, nil
			}
			addedGenes[hugo] = struct{}{}
			return true, nil
		})
		if err != nil {
			return err
		}
		stats.GenesAdded = n

		n, err = copier.copy(types.TableVariant, func(cols []string, row []any) (bool, error) {
			key := variantKey(cols, row)
			_, seen := st.variants[key]
			if !seen {
				_, seen = addedVariants[key]
			}
			if seen {
				stats.VariantsDropped++
				e.logger.Debug("dropped duplicate variant", "source", path, "variant", key)
				return false, nil
			}
			ui := indexOf(cols, types.ColUID)
			old, err := toInt64(row[ui])
			if err != nil {
				return false, fmt.Errorf("variant uid: %w", err)
			}
			maxUID++
			uids[old] = maxUID
			row[ui] = maxUID
			addedVariants[key] = struct{}{}
			return true, nil
		})
		if err != nil {
			return err
		}
		stats.VariantsAdded = n

		n, err = copier.copy(types.TableSample, remapUID(uids))
		if err != nil {
			return err
		}
		stats.SamplesAdded = n

		n, err = copier.copy(types.TableMapping, func(cols []string, row []any) (bool, error) {
			keep, err := remapUID(uids)(cols, row)
			if !keep || err != nil {
				return keep, err
			}
			fi := indexOf(cols, types.ColFileno)
			old, err := toInt64(row[fi])
			if err != nil {
				return false, fmt.Errorf("mapping fileno: %w", err)
			}
			assigned, ok := filenos[old]
			if !ok {
				return false, fmt.Errorf("mapping references file number %d missing from %s", old, types.InfoKeyInputPaths)
			}
			row[fi] = assigned
			return true, nil
		})
		if err != nil {
			return err
		}
		stats.MappingsAdded = n
		return nil
	})
	if err != nil {
		return stats, err
	}

	for k := range addedGenes {
		st.genes[k] = struct{}{}
	}
	for k := range addedVariants {
		st.variants[k] = struct{}{}
	}
	st.maxUID = maxUID
	st.pathTable = pending

	e.logger.Info("merged source",
		"source", path,
		"variants_added", stats.VariantsAdded,
		"variants_dropped", stats.VariantsDropped,
		"genes_added", stats.GenesAdded,
		"genes_dropped", stats.GenesDropped)
	return stats, nil
}

// remapUID keeps rows whose uid was newly assigned in this pass and rewrites
// the uid to its new value.
func remapUID(uids map[int64]int64) func([]string, []any) (bool, error) {
	return func(cols []string, row []any) (bool, error) {
		ui := indexOf(cols, types.ColUID)
		old, err := toInt64(row[ui])
		if err != nil {
			return false, nil
		}
		assigned, ok := uids[old]
		if !ok {
			return false, nil
		}
		row[ui] = assigned
		return true, nil
	}
}

// rowCopier streams rows of one table from a source store into the output
// transaction, selecting the columns both stores declare.
type rowCopier struct {
	ctx context.Context
	src *sql.DB
	tx  *sql.Tx
	out *sqlite.Catalog
	in  *sqlite.Catalog
}

func (c rowCopier) copy(table string, keep func(cols []string, row []any) (bool, error)) (int, error) {
	outDef, ok := c.out.Table(table)
	if !ok {
		return 0, fmt.Errorf("output lacks table %s", table)
	}
	inDef, ok := c.in.Table(table)
	if !ok {
		return 0, fmt.Errorf("source lacks table %s", table)
	}
	cols := make([]string, 0, len(outDef.Columns))
	for _, col := range outDef.Columns {
		if inDef.Has(col) {
			cols = append(cols, col)
		}
	}

	stmt, err := c.tx.PrepareContext(c.ctx, sqlite.InsertSQL(table, cols))
	if err != nil {
		return 0, fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	rows, err := c.src.QueryContext(c.ctx, sqlite.SelectSQL("", table, cols))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		row, err := sqlite.ScanRow(rows, len(cols))
		if err != nil {
			return n, fmt.Errorf("scan %s: %w", table, err)
		}
		ok, err := keep(cols, row)
		if err != nil {
			return n, fmt.Errorf("%s: %w", table, err)
		}
		if !ok {
			continue
		}
		if _, err := stmt.ExecContext(c.ctx, row...); err != nil {
			return n, fmt.Errorf("insert into %s: %w", table, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("read %s: %w", table, err)
	}
	return n, nil
}

// checkSchemas fails when any source declares a different set of variant or
// gene output columns than the first source.
func checkSchemas(ctx context.Context, sources []string) error {
	var want map[string][]string
	for _, path := range sources {
		got, err := headerSets(ctx, path)
		if err != nil {
			return err
		}
		if want == nil {
			want = got
			continue
		}
		for _, table := range []string{types.TableVariantHeader, types.TableGeneHeader} {
			missing, extra := diff(want[table], got[table])
			if len(missing) > 0 || len(extra) > 0 {
				return &types.SchemaMismatchError{
					Table:   strings.TrimSuffix(table, "_header"),
					Source:  path,
					Missing: missing,
					Extra:   extra,
				}
			}
		}
	}
	return nil
}

func headerSets(ctx context.Context, path string) (map[string][]string, error) {
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	cat, err := sqlite.LoadCatalog(ctx, store.DB(), "main")
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	sets := make(map[string][]string, 2)
	for _, table := range []string{types.TableVariantHeader, types.TableGeneHeader} {
		cols, err := sqlite.HeaderColumns(ctx, store.DB(), table)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		sets[table] = cols
	}
	return sets, nil
}

// diff returns the members of want absent from got and the members of got
// absent from want. Both inputs are sorted.
func diff(want, got []string) (missing, extra []string) {
	for _, w := range want {
		if _, found := slices.BinarySearch(got, w); !found {
			missing = append(missing, w)
		}
	}
	for _, g := range got {
		if _, found := slices.BinarySearch(want, g); !found {
			extra = append(extra, g)
		}
	}
	return missing, extra
}
