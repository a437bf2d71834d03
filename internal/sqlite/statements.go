package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
)

// QuoteIdent quotes a table, column or schema name for interpolation into SQL.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// joinColumns quotes and joins column names with commas.
func joinColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// Placeholders returns n comma-separated bind markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// InsertSQL builds a parameterized INSERT for the given table and columns.
func InsertSQL(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdent(table), joinColumns(cols), Placeholders(len(cols)))
}

// SelectSQL builds a SELECT of cols from schema.table in rowid order.
func SelectSQL(schema, table string, cols []string) string {
	from := QuoteIdent(table)
	if schema != "" {
		from = QuoteIdent(schema) + "." + from
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", joinColumns(cols), from)
}

// ScanRow scans the current row of rows into a fresh slice of n values.
func ScanRow(rows *sql.Rows, n int) ([]any, error) {
	vals := make([]any, n)
	ptrs := make([]any, n)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}
