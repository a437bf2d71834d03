package types

// Result-store table names.
const (
	TableInfo    = "info"
	TableVariant = "variant"
	TableGene    = "gene"
	TableSample  = "sample"
	TableMapping = "mapping"

	TableVariantHeader = "variant_header"
	TableGeneHeader    = "gene_header"
	TableSampleHeader  = "sample_header"
	TableMappingHeader = "mapping_header"

	TableVariantAnnotator = "variant_annotator"
	TableGeneAnnotator    = "gene_annotator"
	TableSampleAnnotator  = "sample_annotator"
	TableMappingAnnotator = "mapping_annotator"
)

// Key columns. Variant identity is (chrom, pos, ref, alt); gene identity is hugo.
const (
	ColUID      = "base__uid"
	ColChrom    = "base__chrom"
	ColPos      = "base__pos"
	ColRef      = "base__ref_base"
	ColAlt      = "base__alt_base"
	ColHugo     = "base__hugo"
	ColSampleID = "base__sample_id"
	ColFileno   = "base__fileno"

	ColInfoKey   = "colkey"
	ColInfoValue = "colval"

	ColHeaderName = "col_name"
	ColHeaderDef  = "col_def"
)

// Info keys read or rewritten by the maintenance engines.
const (
	InfoKeyVersion        = "oakvar"
	InfoKeyInputPaths     = "_input_paths"
	InfoKeyInputFileName  = "Input file name"
	InfoKeyUniqueVariants = "Number of unique input variants"
	InfoKeyInputGenome    = "Input genome"
)

// StoreSuffix is the file suffix every result store carries.
const StoreSuffix = ".sqlite"

// DataTables are the row-bearing tables. Every other table in a store is
// metadata and is carried over verbatim by derived stores.
var DataTables = []string{
	TableVariant,
	TableGene,
	TableSample,
	TableMapping,
}

// LinkedTables share the variant uid. Rows in the child tables (all but
// variant) must reference a uid present in variant.
var LinkedTables = []string{
	TableVariant,
	TableSample,
	TableMapping,
}

// HeaderTables lists the per-level column descriptor tables.
var HeaderTables = []string{
	TableVariantHeader,
	TableGeneHeader,
	TableSampleHeader,
	TableMappingHeader,
}

// AnnotatorTables lists the per-level annotator provenance tables.
var AnnotatorTables = []string{
	TableVariantAnnotator,
	TableGeneAnnotator,
	TableSampleAnnotator,
	TableMappingAnnotator,
}

// IsDataTable reports whether name is one of DataTables.
func IsDataTable(name string) bool {
	for _, t := range DataTables {
		if t == name {
			return true
		}
	}
	return false
}

// ColumnDef is the JSON descriptor stored in the col_def column of the
// *_header tables.
type ColumnDef struct {
	Name   string `json:"name" yaml:"name"`
	Title  string `json:"title" yaml:"title"`
	Type   string `json:"type" yaml:"type"`
	Module string `json:"module,omitempty" yaml:"module,omitempty"`
}
