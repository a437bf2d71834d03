package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

// Table aliases used in compiled predicates and raw SQL fragments.
const (
	variantAlias = "v"
	geneAlias    = "g"
)

// columnSet resolves a rule's column to its qualified form. Variant columns
// shadow gene columns of the same name.
type columnSet struct {
	variant map[string]bool
	gene    map[string]bool
}

func newColumnSet(variant, gene []string) columnSet {
	cs := columnSet{variant: map[string]bool{}, gene: map[string]bool{}}
	for _, c := range variant {
		cs.variant[c] = true
	}
	for _, c := range gene {
		cs.gene[c] = true
	}
	return cs
}

func (cs columnSet) qualify(col string) (string, error) {
	switch {
	case cs.variant[col]:
		return variantAlias + "." + sqlite.QuoteIdent(col), nil
	case cs.gene[col]:
		return geneAlias + "." + sqlite.QuoteIdent(col), nil
	default:
		return "", fmt.Errorf("%w: unknown column %q", types.ErrInvalidFilter, col)
	}
}

// compileRule translates r into a WHERE expression with bound arguments.
func compileRule(r Rule, cols columnSet) (string, []any, error) {
	var expr string
	var args []any
	var err error
	if r.IsGroup() {
		expr, args, err = compileGroup(r, cols)
	} else {
		expr, args, err = compileLeaf(r, cols)
	}
	if err != nil {
		return "", nil, err
	}
	if r.Negate {
		expr = "NOT (" + expr + ")"
	}
	return expr, args, nil
}

func compileGroup(r Rule, cols columnSet) (string, []any, error) {
	var joiner string
	switch strings.ToLower(r.Operator) {
	case "", "and":
		joiner = " AND "
	case "or":
		joiner = " OR "
	default:
		return "", nil, fmt.Errorf("%w: unknown operator %q", types.ErrInvalidFilter, r.Operator)
	}
	if len(r.Rules) == 0 {
		return "1", nil, nil
	}

	parts := make([]string, 0, len(r.Rules))
	var args []any
	for _, sub := range r.Rules {
		expr, subArgs, err := compileRule(sub, cols)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+expr+")")
		args = append(args, subArgs...)
	}
	return strings.Join(parts, joiner), args, nil
}

var comparisons = map[string]string{
	"equals":        "=",
	"lessThan":      "<",
	"lessThanEq":    "<=",
	"greaterThan":   ">",
	"greaterThanEq": ">=",
}

func compileLeaf(r Rule, cols columnSet) (string, []any, error) {
	col, err := cols.qualify(r.Column)
	if err != nil {
		return "", nil, err
	}

	if op, ok := comparisons[r.Test]; ok {
		v, err := scalar(r)
		if err != nil {
			return "", nil, err
		}
		return col + " " + op + " ?", []any{v}, nil
	}

	switch r.Test {
	case "between":
		vals, err := list(r)
		if err != nil {
			return "", nil, err
		}
		if len(vals) != 2 {
			return "", nil, fmt.Errorf("%w: %s between needs two values", types.ErrInvalidFilter, r.Column)
		}
		return col + " BETWEEN ? AND ?", vals, nil
	case "in":
		vals, err := list(r)
		if err != nil {
			return "", nil, err
		}
		if len(vals) == 0 {
			return "0", nil, nil
		}
		return col + " IN (" + sqlite.Placeholders(len(vals)) + ")", vals, nil
	case "hasData":
		return col + " IS NOT NULL AND " + col + " != ''", nil, nil
	case "noData":
		return col + " IS NULL OR " + col + " = ''", nil, nil
	case "stringContains", "stringStarts", "stringEnds":
		v, err := scalar(r)
		if err != nil {
			return "", nil, err
		}
		pattern := escapeLike(fmt.Sprint(v))
		switch r.Test {
		case "stringContains":
			pattern = "%" + pattern + "%"
		case "stringStarts":
			pattern += "%"
		default:
			pattern = "%" + pattern
		}
		return col + ` LIKE ? ESCAPE '\'`, []any{pattern}, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown test %q on %s", types.ErrInvalidFilter, r.Test, r.Column)
	}
}

func scalar(r Rule) (any, error) {
	switch r.Value.(type) {
	case nil, []any, map[string]any:
		return nil, fmt.Errorf("%w: %s %s needs a single value", types.ErrInvalidFilter, r.Column, r.Test)
	}
	return bindValue(r.Value), nil
}

func list(r Rule) ([]any, error) {
	vals, ok := r.Value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s needs a list value", types.ErrInvalidFilter, r.Column, r.Test)
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = bindValue(v)
	}
	return out, nil
}

// bindValue converts decoded JSON into a driver argument.
func bindValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
