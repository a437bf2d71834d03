package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/varstore/pkg/types"
)

// InfoValue returns the colval stored under key. ok is false when the key is
// absent.
func InfoValue(ctx context.Context, q Querier, key string) (value string, ok bool, err error) {
	var v sql.NullString
	err = q.QueryRowContext(ctx, "SELECT colval FROM info WHERE colkey = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read info %q: %w", key, err)
	}
	return v.String, true, nil
}

// SetInfo writes value under key, inserting the row if it does not exist.
func SetInfo(ctx context.Context, q Querier, key, value string) error {
	res, err := q.ExecContext(ctx, "UPDATE info SET colval = ? WHERE colkey = ?", value, key)
	if err != nil {
		return fmt.Errorf("update info %q: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	if _, err := q.ExecContext(ctx, "INSERT INTO info (colkey, colval) VALUES (?, ?)", key, value); err != nil {
		return fmt.Errorf("insert info %q: %w", key, err)
	}
	return nil
}

// InputPaths returns the fileno → input path table stored in info. Older
// stores wrote it with single quotes; both encodings are accepted.
func InputPaths(ctx context.Context, q Querier) (map[int]string, error) {
	raw, ok, err := InfoValue(ctx, q, types.InfoKeyInputPaths)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return map[int]string{}, nil
	}
	return ParseInputPaths(raw)
}

// ParseInputPaths decodes an _input_paths value.
func ParseInputPaths(raw string) (map[int]string, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		if err2 := json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &m); err2 != nil {
			return nil, fmt.Errorf("decode %s: %w", types.InfoKeyInputPaths, err)
		}
	}
	out := make(map[int]string, len(m))
	for k, v := range m {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("decode %s: file number %q: %w", types.InfoKeyInputPaths, k, err)
		}
		out[n] = v
	}
	return out, nil
}

// EncodeInputPaths encodes the fileno → path table as strict JSON.
func EncodeInputPaths(paths map[int]string) (string, error) {
	m := make(map[string]string, len(paths))
	for k, v := range paths {
		m[strconv.Itoa(k)] = v
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", types.InfoKeyInputPaths, err)
	}
	return string(b), nil
}

// InputFileSummary joins the input paths with ";" in file number order, the
// form stored under the "Input file name" info key.
func InputFileSummary(paths map[int]string) string {
	nums := make([]int, 0, len(paths))
	for n := range paths {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = paths[n]
	}
	return strings.Join(parts, ";")
}

// WriteInputPaths rewrites both the _input_paths table and its summary.
func WriteInputPaths(ctx context.Context, q Querier, paths map[int]string) error {
	enc, err := EncodeInputPaths(paths)
	if err != nil {
		return err
	}
	if err := SetInfo(ctx, q, types.InfoKeyInputPaths, enc); err != nil {
		return err
	}
	return SetInfo(ctx, q, types.InfoKeyInputFileName, InputFileSummary(paths))
}

// HeaderColumns returns the sorted col_name values of a *_header table.
func HeaderColumns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT col_name FROM %s", QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(cols)
	return cols, nil
}

// HeaderDefs returns the decoded column descriptors of a *_header table in
// declaration order.
func HeaderDefs(ctx context.Context, q Querier, table string) ([]types.ColumnDef, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT col_name, col_def FROM %s ORDER BY rowid", QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	var defs []types.ColumnDef
	for rows.Next() {
		var name string
		var raw sql.NullString
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		def := types.ColumnDef{Name: name}
		if raw.Valid && raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &def); err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", table, name, err)
			}
			def.Name = name
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// CountRows returns the number of rows in table.
func CountRows(ctx context.Context, q Querier, table string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", QuoteIdent(table))).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
