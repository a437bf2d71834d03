// Package testutil writes and reads realistic result stores for tests.
package testutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

// Variant is one variant row.
type Variant struct {
	UID   int64
	Chrom string
	Pos   int64
	Ref   string
	Alt   string
	Hugo  string
	SO    string
	Sig   string
}

// Key returns the natural key of v.
func (v Variant) Key() string {
	return fmt.Sprintf("%s:%d:%s>%s", v.Chrom, v.Pos, v.Ref, v.Alt)
}

// Gene is one gene row.
type Gene struct {
	Hugo string
	Desc string
}

// Sample is one genotype observation.
type Sample struct {
	UID      int64
	SampleID string
	Zygosity string
}

// Mapping is one provenance link.
type Mapping struct {
	UID    int64
	Fileno int64
	Line   int64
}

// Fixture describes a store to write.
type Fixture struct {
	Version    string // "" omits the version marker
	InputPaths map[int]string
	// RawInputPaths overrides the encoded _input_paths value when non-empty.
	RawInputPaths string
	Variants      []Variant
	Genes         []Gene
	Samples       []Sample
	Mappings      []Mapping
	// ExtraVariantColumns are declared in variant_header only.
	ExtraVariantColumns []string
}

const fixtureDDL = `
CREATE TABLE info (colkey TEXT PRIMARY KEY, colval TEXT);
CREATE TABLE variant (
    base__uid INTEGER PRIMARY KEY,
    base__chrom TEXT,
    base__pos INTEGER,
    base__ref_base TEXT,
    base__alt_base TEXT,
    base__hugo TEXT,
    base__so TEXT,
    clinvar__sig TEXT
);
CREATE TABLE gene (base__hugo TEXT PRIMARY KEY, gene__desc TEXT);
CREATE TABLE sample (base__uid INTEGER, base__sample_id TEXT, base__zygosity TEXT);
CREATE TABLE mapping (base__uid INTEGER, base__fileno INTEGER, base__original_line INTEGER);
CREATE TABLE variant_header (col_name TEXT PRIMARY KEY, col_def TEXT);
CREATE TABLE gene_header (col_name TEXT PRIMARY KEY, col_def TEXT);
CREATE TABLE sample_header (col_name TEXT PRIMARY KEY, col_def TEXT);
CREATE TABLE mapping_header (col_name TEXT PRIMARY KEY, col_def TEXT);
CREATE TABLE variant_annotator (name TEXT PRIMARY KEY, displayname TEXT, version TEXT);
CREATE TABLE gene_annotator (name TEXT PRIMARY KEY, displayname TEXT, version TEXT);
CREATE TABLE sample_annotator (name TEXT PRIMARY KEY, displayname TEXT, version TEXT);
CREATE TABLE mapping_annotator (name TEXT PRIMARY KEY, displayname TEXT, version TEXT);
CREATE TABLE viewersetup (datatype TEXT, name TEXT, viewersetup TEXT);
CREATE INDEX sample_idx_uid ON sample (base__uid, base__sample_id);
CREATE INDEX mapping_idx_uid ON mapping (base__uid);
CREATE INDEX variant_idx_hugo ON variant (base__hugo);
`

var headers = map[string][]types.ColumnDef{
	types.TableVariantHeader: {
		{Name: "base__uid", Title: "UID", Type: "int", Module: "base"},
		{Name: "base__chrom", Title: "Chrom", Type: "string", Module: "base"},
		{Name: "base__pos", Title: "Position", Type: "int", Module: "base"},
		{Name: "base__ref_base", Title: "Ref Base", Type: "string", Module: "base"},
		{Name: "base__alt_base", Title: "Alt Base", Type: "string", Module: "base"},
		{Name: "base__hugo", Title: "Gene", Type: "string", Module: "base"},
		{Name: "base__so", Title: "Sequence Ontology", Type: "string", Module: "base"},
		{Name: "clinvar__sig", Title: "Clinical Significance", Type: "string", Module: "clinvar"},
	},
	types.TableGeneHeader: {
		{Name: "base__hugo", Title: "Gene", Type: "string", Module: "base"},
		{Name: "gene__desc", Title: "Description", Type: "string", Module: "gene"},
	},
	types.TableSampleHeader: {
		{Name: "base__uid", Title: "UID", Type: "int", Module: "base"},
		{Name: "base__sample_id", Title: "Sample", Type: "string", Module: "base"},
		{Name: "base__zygosity", Title: "Zygosity", Type: "string", Module: "base"},
	},
	types.TableMappingHeader: {
		{Name: "base__uid", Title: "UID", Type: "int", Module: "base"},
		{Name: "base__fileno", Title: "Input file number", Type: "int", Module: "base"},
		{Name: "base__original_line", Title: "Original line", Type: "int", Module: "base"},
	},
}

// WriteStore writes f to path and returns path.
func WriteStore(t testing.TB, path string, f Fixture) string {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Create(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	db := store.DB()
	_, err = db.ExecContext(ctx, fixtureDDL)
	require.NoError(t, err)

	tables := make([]string, 0, len(headers))
	for table := range headers {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		defs := headers[table]
		if table == types.TableVariantHeader {
			for _, extra := range f.ExtraVariantColumns {
				defs = append(defs, types.ColumnDef{Name: extra, Title: extra, Type: "string"})
			}
		}
		for _, def := range defs {
			raw, err := json.Marshal(def)
			require.NoError(t, err)
			exec(t, db, "INSERT INTO "+table+" (col_name, col_def) VALUES (?, ?)", def.Name, string(raw))
		}
	}
	for _, table := range types.AnnotatorTables {
		exec(t, db, "INSERT INTO "+table+" (name, displayname, version) VALUES ('base', 'Base Information', '')")
	}
	exec(t, db, "INSERT INTO variant_annotator (name, displayname, version) VALUES ('clinvar', 'ClinVar', '2024.01.01')")
	exec(t, db, "INSERT INTO viewersetup (datatype, name, viewersetup) VALUES ('variant', 'default', '{}')")

	paths := f.InputPaths
	if paths == nil {
		paths = map[int]string{}
	}
	rawPaths := f.RawInputPaths
	if rawPaths == "" {
		rawPaths, err = sqlite.EncodeInputPaths(paths)
		require.NoError(t, err)
	}
	exec(t, db, "INSERT INTO info (colkey, colval) VALUES (?, ?)", types.InfoKeyInputPaths, rawPaths)
	exec(t, db, "INSERT INTO info (colkey, colval) VALUES (?, ?)", types.InfoKeyInputFileName, sqlite.InputFileSummary(paths))
	exec(t, db, "INSERT INTO info (colkey, colval) VALUES (?, ?)", types.InfoKeyUniqueVariants, fmt.Sprint(len(f.Variants)))
	exec(t, db, "INSERT INTO info (colkey, colval) VALUES (?, ?)", types.InfoKeyInputGenome, "hg38")
	if f.Version != "" {
		exec(t, db, "INSERT INTO info (colkey, colval) VALUES (?, ?)", types.InfoKeyVersion, f.Version)
	}

	for _, v := range f.Variants {
		exec(t, db, "INSERT INTO variant VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			v.UID, v.Chrom, v.Pos, v.Ref, v.Alt, nullable(v.Hugo), nullable(v.SO), nullable(v.Sig))
	}
	for _, g := range f.Genes {
		exec(t, db, "INSERT INTO gene VALUES (?, ?)", g.Hugo, nullable(g.Desc))
	}
	for _, s := range f.Samples {
		exec(t, db, "INSERT INTO sample VALUES (?, ?, ?)", s.UID, s.SampleID, nullable(s.Zygosity))
	}
	for _, m := range f.Mappings {
		exec(t, db, "INSERT INTO mapping VALUES (?, ?, ?)", m.UID, m.Fileno, m.Line)
	}
	return path
}

func exec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), query, args...)
	require.NoError(t, err, query)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
