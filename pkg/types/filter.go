package types

// FilterSpec is the declarative predicate handed to the filter evaluator.
// IncludeSamples and ExcludeSamples are nil when not given; a non-nil value
// (even empty) overrides the sample lists of the filter document.
type FilterSpec struct {
	// Filter is a filter document: either a path to a JSON file or inline JSON.
	Filter string
	// SQL is a raw WHERE fragment over the variant (v) and gene (g) columns.
	SQL            string
	IncludeSamples []string
	ExcludeSamples []string
}

// SampleLists resolves the effective require/reject lists: explicit
// include/exclude lists override the document's own lists.
func (s FilterSpec) SampleLists(docRequire, docReject []string) (require, reject []string) {
	require, reject = docRequire, docReject
	if s.IncludeSamples != nil {
		require = s.IncludeSamples
	}
	if s.ExcludeSamples != nil {
		reject = s.ExcludeSamples
	}
	return require, reject
}
