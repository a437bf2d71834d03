package types

// MergeSourceStats counts what one merge source contributed and what it lost
// to first-source-wins deduplication.
type MergeSourceStats struct {
	Path            string `json:"path"`
	VariantsAdded   int    `json:"variants_added"`
	VariantsDropped int    `json:"variants_dropped"`
	GenesAdded      int    `json:"genes_added"`
	GenesDropped    int    `json:"genes_dropped"`
	SamplesAdded    int    `json:"samples_added"`
	MappingsAdded   int    `json:"mappings_added"`
	FilesAdded      int    `json:"files_added"`
}

// MergeReport summarizes a completed merge.
type MergeReport struct {
	Output     string             `json:"output"`
	Sources    []MergeSourceStats `json:"sources"`
	Variants   int                `json:"variants"`
	Genes      int                `json:"genes"`
	InputFiles int                `json:"input_files"`
}

// FilterReport summarizes one filtered store.
type FilterReport struct {
	Source   string `json:"source"`
	Output   string `json:"output"`
	Variants int    `json:"variants"`
	Genes    int    `json:"genes"`
	Samples  int    `json:"samples"`
	Mappings int    `json:"mappings"`
	Indexes  int    `json:"indexes"`
}

// MigrationReport summarizes one store migration. Applied lists checkpoint
// versions in the order they committed.
type MigrationReport struct {
	Path     string   `json:"path"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Applied  []string `json:"applied,omitempty"`
	Backup   string   `json:"backup,omitempty"`
	UpToDate bool     `json:"up_to_date"`
}

// TableConversion counts liftover outcomes for one table.
type TableConversion struct {
	Table     string `json:"table"`
	Converted bool   `json:"converted"`
	Rows      int    `json:"rows"`
	Rewritten int    `json:"rewritten"`
	Unmapped  int    `json:"unmapped"`
	Ambiguous int    `json:"ambiguous"`
}

// ConversionReport summarizes a liftover run.
type ConversionReport struct {
	Source       string            `json:"source"`
	Output       string            `json:"output"`
	NoConversion string            `json:"no_conversion"`
	Unmapped     string            `json:"unmapped"`
	Tables       []TableConversion `json:"tables"`
}

// Rows returns the total rows written across all tables.
func (r *ConversionReport) Rows() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Rows
	}
	return n
}
