package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/varstore/internal/sqlite"
)

// Contents is everything a test usually asserts on.
type Contents struct {
	Variants   []Variant
	Genes      []Gene
	Samples    []Sample
	Mappings   []Mapping
	InputPaths map[int]string
	Info       map[string]string
}

// ReadStore loads the data tables and info of the store at path.
func ReadStore(t testing.TB, path string) Contents {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	db := store.DB()

	var c Contents
	query(t, db, "SELECT base__uid, base__chrom, base__pos, base__ref_base, base__alt_base, base__hugo, base__so, clinvar__sig FROM variant ORDER BY base__uid",
		func(rows *sql.Rows) error {
			var v Variant
			var hugo, so, sig sql.NullString
			if err := rows.Scan(&v.UID, &v.Chrom, &v.Pos, &v.Ref, &v.Alt, &hugo, &so, &sig); err != nil {
				return err
			}
			v.Hugo, v.SO, v.Sig = hugo.String, so.String, sig.String
			c.Variants = append(c.Variants, v)
			return nil
		})
	query(t, db, "SELECT base__hugo, gene__desc FROM gene ORDER BY base__hugo",
		func(rows *sql.Rows) error {
			var g Gene
			var desc sql.NullString
			if err := rows.Scan(&g.Hugo, &desc); err != nil {
				return err
			}
			g.Desc = desc.String
			c.Genes = append(c.Genes, g)
			return nil
		})
	query(t, db, "SELECT base__uid, base__sample_id, base__zygosity FROM sample ORDER BY base__uid, base__sample_id",
		func(rows *sql.Rows) error {
			var s Sample
			var zyg sql.NullString
			if err := rows.Scan(&s.UID, &s.SampleID, &zyg); err != nil {
				return err
			}
			s.Zygosity = zyg.String
			c.Samples = append(c.Samples, s)
			return nil
		})
	query(t, db, "SELECT base__uid, base__fileno, base__original_line FROM mapping ORDER BY base__uid, base__fileno",
		func(rows *sql.Rows) error {
			var m Mapping
			if err := rows.Scan(&m.UID, &m.Fileno, &m.Line); err != nil {
				return err
			}
			c.Mappings = append(c.Mappings, m)
			return nil
		})
	c.Info = map[string]string{}
	query(t, db, "SELECT colkey, colval FROM info",
		func(rows *sql.Rows) error {
			var k string
			var v sql.NullString
			if err := rows.Scan(&k, &v); err != nil {
				return err
			}
			c.Info[k] = v.String
			return nil
		})

	c.InputPaths, err = sqlite.InputPaths(ctx, db)
	require.NoError(t, err)
	return c
}

// VariantKeys returns the natural keys of c's variants.
func (c Contents) VariantKeys() []string {
	keys := make([]string, len(c.Variants))
	for i, v := range c.Variants {
		keys[i] = v.Key()
	}
	return keys
}

// VariantByKey returns the variant with the given natural key.
func (c Contents) VariantByKey(key string) (Variant, bool) {
	for _, v := range c.Variants {
		if v.Key() == key {
			return v, true
		}
	}
	return Variant{}, false
}

func query(t testing.TB, db *sql.DB, q string, scan func(*sql.Rows) error) {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), q)
	require.NoError(t, err, q)
	defer rows.Close()
	for rows.Next() {
		require.NoError(t, scan(rows), q)
	}
	require.NoError(t, rows.Err(), q)
}
