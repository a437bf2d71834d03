package liftover

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/varstore/internal/logging"
	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

// Supported source builds.
const (
	BuildHG18 = "hg18"
	BuildHG19 = "hg19"
)

// Diagnostic file suffixes appended to the output path.
const (
	NoConversionSuffix = ".noconversion"
	UnmappedSuffix     = ".unmapped"
)

// Options select what Convert rewrites.
type Options struct {
	SourceBuild string
	// Columns are the coordinate columns to rewrite.
	Columns []string
	// ChromColumn names the chromosome column. When empty the table name is
	// the chromosome, and tables lacking ChromColumn are copied unchanged.
	ChromColumn string
	// Tables limits conversion to these tables; nil means every table.
	Tables []string
}

// ValidateBuild rejects builds other than hg18 and hg19.
func ValidateBuild(build string) error {
	if build != BuildHG18 && build != BuildHG19 {
		return fmt.Errorf("%w, got %q", types.ErrUnknownBuild, build)
	}
	return nil
}

// OutputPath names the converted copy of store: its extension is replaced
// by ".hg38.sqlite".
func OutputPath(store string) string {
	return strings.TrimSuffix(store, filepath.Ext(store)) + ".hg38" + types.StoreSuffix
}

// Converter writes hg38 copies of result stores.
type Converter struct {
	mapper Mapper
	logger *slog.Logger
}

// NewConverter returns a Converter using mapper.
func NewConverter(mapper Mapper, logger *slog.Logger) *Converter {
	return &Converter{mapper: mapper, logger: logging.OrDiscard(logger)}
}

// Convert writes OutputPath(store) with every coordinate column lifted over,
// replacing any existing output. The source is never modified. Every source
// row is written exactly once.
func (c *Converter) Convert(ctx context.Context, store string, opts Options) (*types.ConversionReport, error) {
	if err := ValidateBuild(opts.SourceBuild); err != nil {
		return nil, err
	}
	if len(opts.Columns) == 0 {
		return nil, errors.New("liftover: no coordinate columns given")
	}

	src, err := sqlite.Open(ctx, store)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	cat, err := sqlite.LoadCatalog(ctx, src.DB(), "main")
	if err != nil {
		return nil, err
	}
	plan, err := c.plan(cat, opts)
	if err != nil {
		return nil, err
	}

	output := OutputPath(store)
	report := &types.ConversionReport{
		Source:       store,
		Output:       output,
		NoConversion: output + NoConversionSuffix,
		Unmapped:     output + UnmappedSuffix,
	}

	staged := stagedFiles{
		db:           sqlite.StagePath(output),
		noConversion: sqlite.StagePath(report.NoConversion),
		unmapped:     sqlite.StagePath(report.Unmapped),
	}
	if err := c.write(ctx, src, cat, plan, opts, staged, report); err != nil {
		staged.discard()
		return nil, err
	}
	if err := staged.publish(report); err != nil {
		staged.discard()
		return nil, err
	}

	c.logger.Info("converted store",
		"source", store,
		"output", output,
		"build", opts.SourceBuild,
		"rows", report.Rows())
	return report, nil
}

// tablePlan says how one table is carried over.
type tablePlan struct {
	def       *sqlite.TableDef
	convert   bool
	posCols   []int
	chromCol  int
	chromName string
}

// plan classifies every table. Listed tables are converted when they carry
// a coordinate column (and the chromosome column, when one is named); all
// other tables are copied unchanged so the output stays complete.
func (c *Converter) plan(cat *sqlite.Catalog, opts Options) ([]tablePlan, error) {
	candidates := opts.Tables
	if candidates == nil {
		candidates = cat.TableNames()
	}
	for _, name := range candidates {
		if _, ok := cat.Table(name); !ok {
			return nil, fmt.Errorf("liftover: no table %s in store", name)
		}
	}

	var plans []tablePlan
	var convert, copied []string
	for _, name := range cat.TableNames() {
		def, _ := cat.Table(name)
		p := tablePlan{def: def, chromCol: -1, chromName: name}
		if slices.Contains(candidates, name) && (opts.ChromColumn == "" || def.Has(opts.ChromColumn)) {
			for _, col := range opts.Columns {
				if i := def.Index(col); i >= 0 {
					p.posCols = append(p.posCols, i)
				}
			}
			p.convert = len(p.posCols) > 0
			if opts.ChromColumn != "" {
				p.chromCol = def.Index(opts.ChromColumn)
			}
		}
		if p.convert {
			convert = append(convert, name)
		} else {
			copied = append(copied, name)
		}
		plans = append(plans, p)
	}
	c.logger.Info("planned liftover", "convert", strings.Join(convert, ","), "copy", strings.Join(copied, ","))
	return plans, nil
}

func (c *Converter) write(ctx context.Context, src *sqlite.Store, cat *sqlite.Catalog, plans []tablePlan, opts Options, staged stagedFiles, report *types.ConversionReport) error {
	out, err := sqlite.Create(ctx, staged.db)
	if err != nil {
		return err
	}
	defer out.Close()

	diag, err := newDiagnostics(staged)
	if err != nil {
		return err
	}
	defer diag.close()

	if err := sqlite.ReplayTables(ctx, out.DB(), cat); err != nil {
		return err
	}

	err = out.WithTx(ctx, func(tx *sql.Tx) error {
		for _, p := range plans {
			if err := ctx.Err(); err != nil {
				return err
			}
			tc, err := c.copyTable(ctx, src.DB(), tx, p, diag)
			if err != nil {
				return err
			}
			report.Tables = append(report.Tables, tc)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := sqlite.ReplayObjects(ctx, out.DB(), cat); err != nil {
		return err
	}
	if err := diag.close(); err != nil {
		return err
	}
	return out.Close()
}

func (c *Converter) copyTable(ctx context.Context, src *sql.DB, tx *sql.Tx, p tablePlan, diag *diagnostics) (types.TableConversion, error) {
	tc := types.TableConversion{Table: p.def.Name, Converted: p.convert}
	cols := p.def.Columns

	stmt, err := tx.PrepareContext(ctx, sqlite.InsertSQL(p.def.Name, cols))
	if err != nil {
		return tc, fmt.Errorf("prepare insert into %s: %w", p.def.Name, err)
	}
	defer stmt.Close()

	rows, err := src.QueryContext(ctx, sqlite.SelectSQL("", p.def.Name, cols))
	if err != nil {
		return tc, fmt.Errorf("read %s: %w", p.def.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		row, err := sqlite.ScanRow(rows, len(cols))
		if err != nil {
			return tc, fmt.Errorf("scan %s: %w", p.def.Name, err)
		}
		if p.convert {
			if err := c.liftRow(p, row, &tc, diag); err != nil {
				return tc, err
			}
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return tc, fmt.Errorf("insert into %s: %w", p.def.Name, err)
		}
		tc.Rows++
	}
	if err := rows.Err(); err != nil {
		return tc, fmt.Errorf("read %s: %w", p.def.Name, err)
	}

	if p.convert {
		c.logger.Info("converted table", "table", tc.Table, "rows", tc.Rows,
			"rewritten", tc.Rewritten, "unmapped", tc.Unmapped, "ambiguous", tc.Ambiguous)
	} else {
		c.logger.Debug("copied table", "table", tc.Table, "rows", tc.Rows)
	}
	return tc, nil
}

// liftRow rewrites the coordinate columns of row in place. Store positions
// are 1-based; the mapper works on 0-based positions.
func (c *Converter) liftRow(p tablePlan, row []any, tc *types.TableConversion, diag *diagnostics) error {
	original := append([]any(nil), row...)
	chrom := p.chromName
	if p.chromCol >= 0 {
		chrom = text(row[p.chromCol])
	}
	if !strings.HasPrefix(chrom, "chr") {
		chrom = "chr" + chrom
	}

	for _, i := range p.posCols {
		pos, ok := position(row[i])
		if !ok {
			continue
		}
		column := p.def.Columns[i]
		hits, known := c.mapper.MapCoordinate(chrom, pos-1)
		switch {
		case !known:
			tc.Unmapped++
			c.logger.Debug("no liftover mapping", "error",
				&types.UnmappedCoordinateError{Table: p.def.Name, Column: column, Chrom: chrom, Pos: pos})
			if err := diag.unmapped(p.def.Name, column, chrom, pos); err != nil {
				return err
			}
		case len(hits) != 1:
			tc.Ambiguous++
			c.logger.Debug("ambiguous liftover mapping", "error",
				&types.AmbiguousCoordinateError{Table: p.def.Name, Column: column, Chrom: chrom, Pos: pos, Hits: len(hits)})
			if err := diag.noConversion(p.def.Name, original); err != nil {
				return err
			}
		default:
			row[i] = hits[0].Pos + 1
			tc.Rewritten++
		}
	}
	return nil
}

func position(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// stagedFiles are the temporary siblings of the three output files.
type stagedFiles struct {
	db, noConversion, unmapped string
}

func (s stagedFiles) publish(r *types.ConversionReport) error {
	for _, pair := range [][2]string{
		{s.noConversion, r.NoConversion},
		{s.unmapped, r.Unmapped},
		{s.db, r.Output},
	} {
		if err := sqlite.Publish(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

func (s stagedFiles) discard() {
	sqlite.Discard(s.db)
	sqlite.Discard(s.noConversion)
	sqlite.Discard(s.unmapped)
}

// diagnostics writes the side files describing rows left unconverted.
type diagnostics struct {
	noConv, unmap *os.File
	noConvW       *bufio.Writer
	unmapW        *bufio.Writer
	closed        bool
}

func newDiagnostics(s stagedFiles) (*diagnostics, error) {
	noConv, err := os.Create(s.noConversion)
	if err != nil {
		return nil, types.NewStoreIOError(s.noConversion, "create", err)
	}
	unmap, err := os.Create(s.unmapped)
	if err != nil {
		noConv.Close()
		return nil, types.NewStoreIOError(s.unmapped, "create", err)
	}
	return &diagnostics{
		noConv:  noConv,
		unmap:   unmap,
		noConvW: bufio.NewWriter(noConv),
		unmapW:  bufio.NewWriter(unmap),
	}, nil
}

// noConversion records a full row as "table:v1,v2,...".
func (d *diagnostics) noConversion(table string, row []any) error {
	vals := make([]string, len(row))
	for i, v := range row {
		vals[i] = text(v)
	}
	_, err := fmt.Fprintf(d.noConvW, "%s:%s\n", table, strings.Join(vals, ","))
	return err
}

// unmapped records "table\tcolumn\tchrom:pos".
func (d *diagnostics) unmapped(table, column, chrom string, pos int64) error {
	_, err := fmt.Fprintf(d.unmapW, "%s\t%s\t%s:%d\n", table, column, chrom, pos)
	return err
}

func (d *diagnostics) close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return errors.Join(
		d.noConvW.Flush(),
		d.unmapW.Flush(),
		d.noConv.Close(),
		d.unmap.Close(),
	)
}
