package filter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/internal/testutil"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

var sourceFixture = testutil.Fixture{
	Version:    "2.3.0",
	InputPaths: map[int]string{0: "/in/run.vcf"},
	Variants: []testutil.Variant{
		{UID: 1, Chrom: "chr1", Pos: 100, Ref: "A", Alt: "G", Hugo: "BRCA1", SO: "missense_variant", Sig: "benign"},
		{UID: 2, Chrom: "chr1", Pos: 200, Ref: "C", Alt: "T", Hugo: "BRCA1", SO: "synonymous_variant", Sig: "pathogenic"},
		{UID: 3, Chrom: "chr2", Pos: 300, Ref: "G", Alt: "A", Hugo: "TP53", SO: "stop_gained"},
		{UID: 4, Chrom: "chr3", Pos: 400, Ref: "T", Alt: "C", SO: "intergenic_variant"},
	},
	Genes: []testutil.Gene{
		{Hugo: "BRCA1", Desc: "breast cancer 1"},
		{Hugo: "EGFR", Desc: "epidermal growth factor receptor"},
		{Hugo: "TP53", Desc: "tumor protein p53"},
	},
	Samples: []testutil.Sample{
		{UID: 1, SampleID: "s1"},
		{UID: 1, SampleID: "s2"},
		{UID: 2, SampleID: "s1"},
		{UID: 3, SampleID: "s2"},
		{UID: 3, SampleID: "s3"},
		{UID: 4, SampleID: "s1"},
	},
	Mappings: []testutil.Mapping{
		{UID: 1, Fileno: 0, Line: 1},
		{UID: 2, Fileno: 0, Line: 2},
		{UID: 3, Fileno: 0, Line: 3},
		{UID: 4, Fileno: 0, Line: 4},
	},
}

func writeSource(t *testing.T) (dir, path string) {
	dir = t.TempDir()
	return dir, testutil.WriteStore(t, filepath.Join(dir, "run.sqlite"), sourceFixture)
}

func uidsOf(c testutil.Contents) []int64 {
	var uids []int64
	for _, v := range c.Variants {
		uids = append(uids, v.UID)
	}
	return uids
}

func TestFilterByVariantRule(t *testing.T) {
	dir, src := writeSource(t)
	out := filepath.Join(dir, "run.filtered.sqlite")

	report, err := New(nil, nil).Filter(context.Background(), src, types.FilterSpec{
		Filter: `{"variant":{"operator":"and","rules":[{"column":"clinvar__sig","test":"equals","value":"pathogenic"}]}}`,
	}, out)
	require.NoError(t, err)

	got := testutil.ReadStore(t, out)
	assert.Equal(t, []int64{2}, uidsOf(got))
	assert.Equal(t, []testutil.Gene{{Hugo: "BRCA1", Desc: "breast cancer 1"}}, got.Genes)
	assert.Equal(t, []testutil.Sample{{UID: 2, SampleID: "s1"}}, got.Samples)
	assert.Equal(t, []testutil.Mapping{{UID: 2, Fileno: 0, Line: 2}}, got.Mappings)
	assert.Equal(t, "1", got.Info[types.InfoKeyUniqueVariants])

	assert.Equal(t, &types.FilterReport{
		Source:   src,
		Output:   out,
		Variants: 1,
		Genes:    1,
		Samples:  1,
		Mappings: 1,
		Indexes:  3,
	}, report)
}

func TestFilterCopiesMetadataAndIndexes(t *testing.T) {
	dir, src := writeSource(t)
	out := filepath.Join(dir, "out.sqlite")

	_, err := New(nil, nil).Filter(context.Background(), src, types.FilterSpec{}, out)
	require.NoError(t, err)

	got := testutil.ReadStore(t, out)
	want := testutil.ReadStore(t, src)
	assert.Equal(t, want.InputPaths, got.InputPaths)
	assert.Equal(t, "hg38", got.Info[types.InfoKeyInputGenome])
	assert.Equal(t, "2.3.0", got.Info[types.InfoKeyVersion])

	ctx := context.Background()
	store, err := sqlite.Open(ctx, out)
	require.NoError(t, err)
	defer store.Close()

	cat, err := sqlite.LoadCatalog(ctx, store.DB(), "main")
	require.NoError(t, err)
	var indexes []string
	for _, idx := range cat.Indexes {
		if idx.SQL != "" {
			indexes = append(indexes, idx.Name)
		}
	}
	assert.ElementsMatch(t, []string{"sample_idx_uid", "mapping_idx_uid", "variant_idx_hugo"}, indexes)

	for _, table := range []string{"viewersetup", types.TableVariantHeader, types.TableVariantAnnotator} {
		wantRows, err := countIn(ctx, src, table)
		require.NoError(t, err)
		gotRows, err := sqlite.CountRows(ctx, store.DB(), table)
		require.NoError(t, err)
		assert.Equal(t, wantRows, gotRows, table)
	}
}

func countIn(ctx context.Context, path, table string) (int, error) {
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	return sqlite.CountRows(ctx, store.DB(), table)
}

func TestFilterEmptySpecKeepsEveryVariant(t *testing.T) {
	dir, src := writeSource(t)
	out := filepath.Join(dir, "out.sqlite")

	_, err := New(nil, nil).Filter(context.Background(), src, types.FilterSpec{}, out)
	require.NoError(t, err)

	got := testutil.ReadStore(t, out)
	want := testutil.ReadStore(t, src)
	assert.Equal(t, want.Variants, got.Variants)
	assert.Equal(t, want.Samples, got.Samples)
	assert.Equal(t, want.Mappings, got.Mappings)
	// Genes follow the surviving variants; EGFR carries none.
	assert.Equal(t, []testutil.Gene{
		{Hugo: "BRCA1", Desc: "breast cancer 1"},
		{Hugo: "TP53", Desc: "tumor protein p53"},
	}, got.Genes)
}

func TestFilterByGeneListAndRawSQL(t *testing.T) {
	dir, src := writeSource(t)

	tests := []struct {
		name string
		spec types.FilterSpec
		want []int64
	}{
		{"gene list", types.FilterSpec{Filter: `{"genes":["TP53"]}`}, []int64{3}},
		{"raw sql", types.FilterSpec{SQL: "v.base__pos >= 200"}, []int64{2, 3, 4}},
		{"raw sql on gene columns", types.FilterSpec{SQL: "g.gene__desc LIKE 'tumor%'"}, []int64{3}},
		{"rule and raw sql", types.FilterSpec{
			Filter: `{"variant":{"column":"base__chrom","test":"equals","value":"chr1"}}`,
			SQL:    "v.base__pos > 150",
		}, []int64{2}},
		{"nothing survives", types.FilterSpec{SQL: "v.base__pos > 10000"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, "out.sqlite")
			report, err := New(nil, nil).Filter(context.Background(), src, tt.spec, out)
			require.NoError(t, err)

			got := testutil.ReadStore(t, out)
			assert.Equal(t, tt.want, uidsOf(got))
			assert.Equal(t, len(tt.want), report.Variants)
			for _, s := range got.Samples {
				assert.Contains(t, tt.want, s.UID, "sample for filtered-out variant")
			}
			for _, m := range got.Mappings {
				assert.Contains(t, tt.want, m.UID, "mapping for filtered-out variant")
			}
		})
	}
}

func TestFilterSampleLists(t *testing.T) {
	dir, src := writeSource(t)

	tests := []struct {
		name string
		spec types.FilterSpec
		want []testutil.Sample
	}{
		{
			name: "document require",
			spec: types.FilterSpec{Filter: `{"sample":{"require":["s2"]}}`},
			want: []testutil.Sample{{UID: 1, SampleID: "s2"}, {UID: 3, SampleID: "s2"}},
		},
		{
			name: "reject subtracts from require",
			spec: types.FilterSpec{Filter: `{"sample":{"require":["s1","s2"],"reject":["s2"]}}`},
			want: []testutil.Sample{{UID: 1, SampleID: "s1"}, {UID: 2, SampleID: "s1"}, {UID: 4, SampleID: "s1"}},
		},
		{
			name: "explicit lists override the document",
			spec: types.FilterSpec{
				Filter:         `{"sample":{"require":["s3"]}}`,
				IncludeSamples: []string{"s1", "s3"},
				ExcludeSamples: []string{"s1"},
			},
			want: []testutil.Sample{{UID: 3, SampleID: "s3"}},
		},
		{
			name: "reject only",
			spec: types.FilterSpec{ExcludeSamples: []string{"s1", "s2"}},
			want: []testutil.Sample{{UID: 3, SampleID: "s3"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, "out.sqlite")
			_, err := New(nil, nil).Filter(context.Background(), src, tt.spec, out)
			require.NoError(t, err)

			got := testutil.ReadStore(t, out)
			assert.Equal(t, tt.want, got.Samples)
			assert.Len(t, got.Variants, 4, "sample lists do not restrict variants")
		})
	}
}

// stubEvaluator returns a fixed selection.
type stubEvaluator struct {
	uids   []int64
	hugos  []string
	closed bool
}

func (s *stubEvaluator) VariantUIDs(context.Context) ([]int64, error) { return s.uids, nil }
func (s *stubEvaluator) GeneHugos(context.Context) ([]string, error)  { return s.hugos, nil }
func (s *stubEvaluator) SampleLists() ([]string, []string)            { return nil, []string{"s3"} }
func (s *stubEvaluator) Close() error                                 { s.closed = true; return nil }

func TestFilterUsesInjectedEvaluator(t *testing.T) {
	dir, src := writeSource(t)
	out := filepath.Join(dir, "out.sqlite")
	stub := &stubEvaluator{uids: []int64{1, 3}, hugos: []string{"EGFR"}}

	var gotSpec types.FilterSpec
	load := func(_ context.Context, store string, spec types.FilterSpec) (Evaluator, error) {
		assert.Equal(t, src, store)
		gotSpec = spec
		return stub, nil
	}
	spec := types.FilterSpec{SQL: "ignored by the stub"}

	_, err := New(nil, load).Filter(context.Background(), src, spec, out)
	require.NoError(t, err)
	assert.True(t, stub.closed)
	assert.Equal(t, spec, gotSpec)

	got := testutil.ReadStore(t, out)
	assert.Equal(t, []int64{1, 3}, uidsOf(got))
	assert.Equal(t, []testutil.Gene{{Hugo: "EGFR", Desc: "epidermal growth factor receptor"}}, got.Genes)
	assert.Equal(t, []testutil.Sample{{UID: 1, SampleID: "s1"}, {UID: 1, SampleID: "s2"}, {UID: 3, SampleID: "s2"}}, got.Samples)
}

func TestFilterInvalidFilterLeavesNoOutput(t *testing.T) {
	dir, src := writeSource(t)
	out := filepath.Join(dir, "out.sqlite")

	_, err := New(nil, nil).Filter(context.Background(), src, types.FilterSpec{
		Filter: `{"variant":{"column":"no_such_column","test":"hasData"}}`,
	}, out)
	assert.ErrorIs(t, err, types.ErrInvalidFilter)

	_, err = New(nil, nil).Filter(context.Background(), src, types.FilterSpec{SQL: "v.no_such_column = 1"}, out)
	assert.ErrorIs(t, err, types.ErrInvalidFilter)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run.sqlite", entries[0].Name())
}

func TestFilterRejectsNonStoreSuffix(t *testing.T) {
	_, err := New(nil, nil).Filter(context.Background(), "notes.txt", types.FilterSpec{}, "out.sqlite")
	assert.ErrorIs(t, err, types.ErrNotStoreFile)
}

func TestFilterAll(t *testing.T) {
	dir, src := writeSource(t)
	outDir := filepath.Join(dir, "filtered")
	require.NoError(t, os.Mkdir(outDir, 0o755))
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0o644))
	missing := filepath.Join(dir, "missing.sqlite")

	results, err := New(nil, nil).FilterAll(context.Background(),
		[]string{notes, missing, src},
		types.FilterSpec{Filter: `{"genes":["BRCA1"]}`},
		BatchOptions{OutDir: outDir, Suffix: "brca"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Skipped)
	assert.NoError(t, results[0].Err)

	assert.ErrorIs(t, results[1].Err, types.ErrStoreIO)

	require.NoError(t, results[2].Err)
	assert.Equal(t, filepath.Join(outDir, "run.brca.sqlite"), results[2].Report.Output)
	assert.Equal(t, 2, results[2].Report.Variants)

	assert.Equal(t, 1, Failed(results))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run.brca.sqlite", entries[0].Name())
}

func TestFilterAllStopsOnCancel(t *testing.T) {
	_, src := writeSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := New(nil, nil).FilterAll(ctx, []string{src}, types.FilterSpec{}, BatchOptions{Suffix: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "run.filtered.sqlite"), OutputPath("/data/run.sqlite", "out", "filtered"))
	assert.Equal(t, "run.x.sqlite", OutputPath("run.sqlite", "", "x"))
}
