package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mesh-intelligence/varstore/pkg/types"
)

// Document is a filter document. Every part is optional; an empty document
// keeps everything.
type Document struct {
	Variant *Rule         `json:"variant,omitempty"`
	Genes   []string      `json:"genes,omitempty"`
	Sample  *SampleFilter `json:"sample,omitempty"`
}

// SampleFilter restricts the sample table. Require, when non-empty, is an
// allow-list; Reject is always removed.
type SampleFilter struct {
	Require []string `json:"require,omitempty"`
	Reject  []string `json:"reject,omitempty"`
}

// Rule is either a group (Operator and Rules) or a leaf test on one column.
type Rule struct {
	Operator string `json:"operator,omitempty"`
	Rules    []Rule `json:"rules,omitempty"`

	Column string `json:"column,omitempty"`
	Test   string `json:"test,omitempty"`
	Value  any    `json:"value,omitempty"`
	Negate bool   `json:"negate,omitempty"`
}

// IsGroup reports whether r combines other rules.
func (r Rule) IsGroup() bool {
	return r.Column == "" && (r.Operator != "" || len(r.Rules) > 0)
}

// LoadDocument parses src as inline JSON when it starts with "{" and reads it
// as a file path otherwise. An empty src yields an empty document.
func LoadDocument(src string) (*Document, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return &Document{}, nil
	}

	raw := []byte(src)
	if !strings.HasPrefix(src, "{") {
		b, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("read filter %s: %w", src, err)
		}
		raw = b
	}
	return ParseDocument(raw)
}

// ParseDocument decodes a JSON filter document, rejecting unknown keys.
func ParseDocument(raw []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidFilter, err)
	}
	return &doc, nil
}
