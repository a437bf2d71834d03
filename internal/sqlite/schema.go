package sqlite

import (
	"context"
	"fmt"
)

// Canonical result-store DDL. Stores written by the annotation pipeline carry
// additional annotation columns; these are the columns every store has.
const (
	createInfo = `CREATE TABLE info (
    colkey TEXT PRIMARY KEY,
    colval TEXT
);`

	createVariant = `CREATE TABLE variant (
    base__uid INTEGER PRIMARY KEY,
    base__chrom TEXT,
    base__pos INTEGER,
    base__ref_base TEXT,
    base__alt_base TEXT,
    base__hugo TEXT
);`

	createGene = `CREATE TABLE gene (
    base__hugo TEXT PRIMARY KEY
);`

	createSample = `CREATE TABLE sample (
    base__uid INTEGER,
    base__sample_id TEXT
);`

	createMapping = `CREATE TABLE mapping (
    base__uid INTEGER,
    base__fileno INTEGER
);`

	createHeader = `CREATE TABLE %s (
    col_name TEXT PRIMARY KEY,
    col_def TEXT
);`

	createAnnotator = `CREATE TABLE %s (
    name TEXT PRIMARY KEY,
    displayname TEXT,
    version TEXT
);`
)

// Index DDL for uid lookups on the linked child tables.
const (
	idxSampleUID  = `CREATE INDEX IF NOT EXISTS sample_idx_uid ON sample (base__uid, base__sample_id);`
	idxMappingUID = `CREATE INDEX IF NOT EXISTS mapping_idx_uid ON mapping (base__uid);`
)

// schemaDDL lists all CREATE TABLE statements.
var schemaDDL = []string{
	createInfo,
	createVariant,
	createGene,
	createSample,
	createMapping,
	fmt.Sprintf(createHeader, "variant_header"),
	fmt.Sprintf(createHeader, "gene_header"),
	fmt.Sprintf(createHeader, "sample_header"),
	fmt.Sprintf(createHeader, "mapping_header"),
	fmt.Sprintf(createAnnotator, "variant_annotator"),
	fmt.Sprintf(createAnnotator, "gene_annotator"),
	fmt.Sprintf(createAnnotator, "sample_annotator"),
	fmt.Sprintf(createAnnotator, "mapping_annotator"),
}

// UIDIndexDDL lists the uid indexes on sample and mapping.
var UIDIndexDDL = []string{
	idxSampleUID,
	idxMappingUID,
}

// CreateSchema creates the canonical tables and indexes in an empty store.
func CreateSchema(ctx context.Context, q Querier) error {
	for _, stmt := range schemaDDL {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	for _, stmt := range UIDIndexDDL {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// ReplayTables re-issues the CREATE TABLE statements of cat against q.
// Indexes are not created; see ReplayObjects.
func ReplayTables(ctx context.Context, q Querier, cat *Catalog) error {
	for _, t := range cat.Tables() {
		if t.SQL == "" {
			continue
		}
		if _, err := q.ExecContext(ctx, t.SQL); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// ReplayObjects re-issues the index, view and trigger definitions of cat
// against q. Automatic indexes have no SQL and are skipped. It returns the
// number of objects created.
func ReplayObjects(ctx context.Context, q Querier, cat *Catalog) (int, error) {
	n := 0
	for _, group := range [][]ObjectDef{cat.Indexes, cat.Others} {
		for _, o := range group {
			if o.SQL == "" {
				continue
			}
			if _, err := q.ExecContext(ctx, o.SQL); err != nil {
				return n, fmt.Errorf("create %s %s: %w", o.Type, o.Name, err)
			}
			n++
		}
	}
	return n, nil
}
