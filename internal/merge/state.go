package merge

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

// state is the running view of the output store: the natural keys already
// present, the highest uid handed out and the input path table.
type state struct {
	genes    map[string]struct{}
	variants map[string]struct{}
	maxUID   int64
	pathTable
}

// pathTable maps file numbers to input paths in both directions.
type pathTable struct {
	paths  map[int]string
	byPath map[string]int
	next   int
}

func (p *pathTable) add(path string) int {
	no := p.next
	p.paths[no] = path
	p.byPath[path] = no
	p.next++
	return no
}

func (p *pathTable) clonePaths() pathTable {
	c := pathTable{
		paths:  make(map[int]string, len(p.paths)),
		byPath: make(map[string]int, len(p.byPath)),
		next:   p.next,
	}
	for k, v := range p.paths {
		c.paths[k] = v
	}
	for k, v := range p.byPath {
		c.byPath[k] = v
	}
	return c
}

func loadState(ctx context.Context, q sqlite.Querier) (*state, error) {
	st := &state{
		genes:    make(map[string]struct{}),
		variants: make(map[string]struct{}),
	}

	if err := scanAll(ctx, q, "SELECT base__hugo FROM gene", func(rows *sql.Rows) error {
		var hugo sql.NullString
		if err := rows.Scan(&hugo); err != nil {
			return err
		}
		st.genes[hugo.String] = struct{}{}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read genes: %w", err)
	}

	if err := scanAll(ctx, q, "SELECT base__chrom, base__pos, base__ref_base, base__alt_base FROM variant", func(rows *sql.Rows) error {
		var chrom, pos, ref, alt sql.NullString
		if err := rows.Scan(&chrom, &pos, &ref, &alt); err != nil {
			return err
		}
		st.variants[joinKey(chrom.String, pos.String, ref.String, alt.String)] = struct{}{}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read variants: %w", err)
	}

	if err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(base__uid), 0) FROM variant").Scan(&st.maxUID); err != nil {
		return nil, fmt.Errorf("read max uid: %w", err)
	}

	paths, err := sqlite.InputPaths(ctx, q)
	if err != nil {
		return nil, err
	}
	st.pathTable = pathTable{paths: paths, byPath: make(map[string]int, len(paths))}
	for no, p := range paths {
		if prev, ok := st.byPath[p]; !ok || no < prev {
			st.byPath[p] = no
		}
		if no >= st.next {
			st.next = no + 1
		}
	}
	return st, nil
}

func scanAll(ctx context.Context, q sqlite.Querier, query string, fn func(*sql.Rows) error) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// variantKey builds the natural key of a variant row scanned with cols.
func variantKey(cols []string, row []any) string {
	return joinKey(
		keyPart(row[indexOf(cols, types.ColChrom)]),
		keyPart(row[indexOf(cols, types.ColPos)]),
		keyPart(row[indexOf(cols, types.ColRef)]),
		keyPart(row[indexOf(cols, types.ColAlt)]),
	)
}

func joinKey(chrom, pos, ref, alt string) string {
	return chrom + ":" + pos + ":" + ref + ">" + alt
}

// keyPart renders a scanned value the way database/sql converts it to a
// string, so keys built from rows and from string scans agree.
func keyPart(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}

func indexOf(cols []string, col string) int {
	for i, c := range cols {
		if c == col {
			return i
		}
	}
	return -1
}

func sortedFilenos(paths map[int]string) []int {
	nos := make([]int, 0, len(paths))
	for no := range paths {
		nos = append(nos, no)
	}
	sort.Ints(nos)
	return nos
}
