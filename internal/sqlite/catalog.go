package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/mesh-intelligence/varstore/pkg/types"
)

// TableDef describes one table as declared in a store.
type TableDef struct {
	Name    string
	Columns []string
	SQL     string // CREATE TABLE statement as stored by SQLite
}

// Has reports whether the table declares col.
func (t *TableDef) Has(col string) bool {
	return t.Index(col) >= 0
}

// Index returns the position of col in Columns, or -1.
func (t *TableDef) Index(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// ObjectDef is a non-table schema object (index, view, trigger). SQL is
// empty for automatic indexes backing UNIQUE and PRIMARY KEY constraints.
type ObjectDef struct {
	Type  string
	Name  string
	Table string
	SQL   string
}

// Catalog is the typed view of a store's schema, loaded once from
// sqlite_master so the engines never work on raw introspection rows.
type Catalog struct {
	Schema  string
	tables  map[string]*TableDef
	order   []string
	Indexes []ObjectDef
	Others  []ObjectDef
}

// requiredColumns lists the tables and key columns every result store has.
var requiredColumns = map[string][]string{
	types.TableInfo:          {types.ColInfoKey, types.ColInfoValue},
	types.TableVariant:       {types.ColUID, types.ColChrom, types.ColPos, types.ColRef, types.ColAlt},
	types.TableGene:          {types.ColHugo},
	types.TableSample:        {types.ColUID, types.ColSampleID},
	types.TableMapping:       {types.ColUID, types.ColFileno},
	types.TableVariantHeader: {types.ColHeaderName},
	types.TableGeneHeader:    {types.ColHeaderName},
}

// LoadCatalog reads the schema of the database attached as schema ("main"
// for the store itself).
func LoadCatalog(ctx context.Context, q Querier, schema string) (*Catalog, error) {
	if schema == "" {
		schema = "main"
	}
	objects, err := readMaster(ctx, q, schema)
	if err != nil {
		return nil, err
	}

	cat := &Catalog{Schema: schema, tables: make(map[string]*TableDef)}
	for _, o := range objects {
		switch o.Type {
		case "table":
			cat.tables[o.Name] = &TableDef{Name: o.Name, SQL: o.SQL}
			cat.order = append(cat.order, o.Name)
		case "index":
			cat.Indexes = append(cat.Indexes, o)
		default:
			cat.Others = append(cat.Others, o)
		}
	}

	// Column lookups run after the master rows are closed; a store holds a
	// single connection.
	for _, name := range cat.order {
		cols, err := tableColumns(ctx, q, schema, name)
		if err != nil {
			return nil, err
		}
		cat.tables[name].Columns = cols
	}
	return cat, nil
}

func readMaster(ctx context.Context, q Querier, schema string) ([]ObjectDef, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(
		"SELECT type, name, tbl_name, sql FROM %s.sqlite_master WHERE name NOT LIKE 'sqlite_%%' ORDER BY rowid",
		QuoteIdent(schema)))
	if err != nil {
		return nil, fmt.Errorf("read %s schema: %w", schema, err)
	}
	defer rows.Close()

	var objects []ObjectDef
	for rows.Next() {
		var o ObjectDef
		var stmt sql.NullString
		if err := rows.Scan(&o.Type, &o.Name, &o.Table, &stmt); err != nil {
			return nil, fmt.Errorf("scan %s schema: %w", schema, err)
		}
		o.SQL = stmt.String
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

func tableColumns(ctx context.Context, q Querier, schema, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?, ?) ORDER BY cid", table, schema)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan columns of %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Table returns the named table.
func (c *Catalog) Table(name string) (*TableDef, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Tables returns all tables in declaration order.
func (c *Catalog) Tables() []*TableDef {
	out := make([]*TableDef, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tables[name])
	}
	return out
}

// TableNames returns the table names sorted alphabetically.
func (c *Catalog) TableNames() []string {
	names := append([]string(nil), c.order...)
	sort.Strings(names)
	return names
}

// Validate checks that the catalog describes a result store: all fixed
// tables exist and declare their key columns.
func (c *Catalog) Validate() error {
	for _, table := range sortedKeys(requiredColumns) {
		def, ok := c.tables[table]
		if !ok {
			return fmt.Errorf("%w: missing table %s", types.ErrNotResultStore, table)
		}
		for _, col := range requiredColumns[table] {
			if !def.Has(col) {
				return fmt.Errorf("%w: table %s lacks column %s", types.ErrNotResultStore, table, col)
			}
		}
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
