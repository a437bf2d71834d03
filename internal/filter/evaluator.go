package filter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

// Evaluator resolves a filter against one source store. Both sets must be
// fully materialized before the engine starts copying rows.
type Evaluator interface {
	VariantUIDs(ctx context.Context) ([]int64, error)
	GeneHugos(ctx context.Context) ([]string, error)
	// SampleLists returns the effective require and reject sample lists.
	SampleLists() (require, reject []string)
	Close() error
}

// Loader opens an Evaluator for a source store.
type Loader func(ctx context.Context, store string, spec types.FilterSpec) (Evaluator, error)

// sqlEvaluator compiles the filter document into SQL over the source store.
type sqlEvaluator struct {
	store   *sqlite.Store
	where   string
	args    []any
	require []string
	reject  []string
}

// LoadSQL is the default Loader. It parses the filter document, validates
// its columns against the store, and prepares the WHERE clause. The raw SQL
// fragment is AND-ed in as given.
func LoadSQL(ctx context.Context, path string, spec types.FilterSpec) (Evaluator, error) {
	doc, err := LoadDocument(spec.Filter)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	cat, err := sqlite.LoadCatalog(ctx, store.DB(), "main")
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := cat.Validate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	variant, _ := cat.Table(types.TableVariant)
	gene, _ := cat.Table(types.TableGene)

	where, args, err := buildWhere(doc, spec.SQL, newColumnSet(variant.Columns, gene.Columns))
	if err != nil {
		store.Close()
		return nil, err
	}

	var docRequire, docReject []string
	if doc.Sample != nil {
		docRequire, docReject = doc.Sample.Require, doc.Sample.Reject
	}
	require, reject := spec.SampleLists(docRequire, docReject)

	return &sqlEvaluator{
		store:   store,
		where:   where,
		args:    args,
		require: require,
		reject:  reject,
	}, nil
}

func buildWhere(doc *Document, raw string, cols columnSet) (string, []any, error) {
	var parts []string
	var args []any

	if doc.Variant != nil {
		expr, ruleArgs, err := compileRule(*doc.Variant, cols)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+expr+")")
		args = append(args, ruleArgs...)
	}
	if len(doc.Genes) > 0 {
		parts = append(parts, variantAlias+"."+types.ColHugo+" IN ("+sqlite.Placeholders(len(doc.Genes))+")")
		for _, g := range doc.Genes {
			args = append(args, g)
		}
	}
	if raw = strings.TrimSpace(raw); raw != "" {
		parts = append(parts, "("+raw+")")
	}

	if len(parts) == 0 {
		return "1", nil, nil
	}
	return strings.Join(parts, " AND "), args, nil
}

const filteredFrom = "FROM variant AS v LEFT JOIN gene AS g ON v.base__hugo = g.base__hugo WHERE "

func (e *sqlEvaluator) VariantUIDs(ctx context.Context) ([]int64, error) {
	rows, err := e.store.DB().QueryContext(ctx, "SELECT v.base__uid "+filteredFrom+e.where+" ORDER BY v.base__uid", e.args...)
	if err != nil {
		return nil, fmt.Errorf("%w: evaluate variant filter: %v", types.ErrInvalidFilter, err)
	}
	defer rows.Close()

	var uids []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan variant uid: %w", err)
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

// GeneHugos returns the genes carried by at least one surviving variant.
func (e *sqlEvaluator) GeneHugos(ctx context.Context) ([]string, error) {
	rows, err := e.store.DB().QueryContext(ctx,
		"SELECT DISTINCT v.base__hugo "+filteredFrom+"("+e.where+") AND v.base__hugo IS NOT NULL ORDER BY v.base__hugo",
		e.args...)
	if err != nil {
		return nil, fmt.Errorf("%w: evaluate gene filter: %v", types.ErrInvalidFilter, err)
	}
	defer rows.Close()

	var hugos []string
	for rows.Next() {
		var h sql.NullString
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan gene: %w", err)
		}
		hugos = append(hugos, h.String)
	}
	return hugos, rows.Err()
}

func (e *sqlEvaluator) SampleLists() (require, reject []string) {
	return e.require, e.reject
}

func (e *sqlEvaluator) Close() error {
	return e.store.Close()
}
