// Package info describes result stores: their input files and the variant
// and gene output columns.
package info

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

// Output formats accepted by Render.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Description summarizes one store.
type Description struct {
	Path    string   `json:"dbpath" yaml:"dbpath"`
	Inputs  []string `json:"inputs" yaml:"inputs"`
	Columns Columns  `json:"output_columns" yaml:"output_columns"`
}

// Columns lists the output columns per level.
type Columns struct {
	Variant []types.ColumnDef `json:"variant" yaml:"variant"`
	Gene    []types.ColumnDef `json:"gene" yaml:"gene"`
}

// Describe reads the description of the store at path.
func Describe(ctx context.Context, path string) (*Description, error) {
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	paths, err := sqlite.InputPaths(ctx, store.DB())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	nos := make([]int, 0, len(paths))
	for no := range paths {
		nos = append(nos, no)
	}
	sort.Ints(nos)

	d := &Description{Path: path, Inputs: make([]string, 0, len(nos))}
	for _, no := range nos {
		d.Inputs = append(d.Inputs, paths[no])
	}

	if d.Columns.Variant, err = sqlite.HeaderDefs(ctx, store.DB(), types.TableVariantHeader); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if d.Columns.Gene, err = sqlite.HeaderDefs(ctx, store.DB(), types.TableGeneHeader); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Column widths of the text rendering.
const (
	nameWidth  = 30
	titleWidth = 40
)

// Render writes descriptions to w in format.
func Render(w io.Writer, format string, descs []*Description) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return renderText(w, descs)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(descs)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(descs); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

func renderText(w io.Writer, descs []*Description) error {
	var b strings.Builder
	for i, d := range descs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "# Store:\n%s\n", d.Path)
		b.WriteString("\n# Input files:\n")
		for _, p := range d.Inputs {
			fmt.Fprintf(&b, "%s\n", p)
		}
		b.WriteString("\n# Output columns\n")
		fmt.Fprintf(&b, "%-*s %-*s %s\n", nameWidth, "# Name", titleWidth, "Title", "Type")
		for _, group := range [][]types.ColumnDef{d.Columns.Variant, d.Columns.Gene} {
			for _, c := range group {
				fmt.Fprintf(&b, "%-*s %-*s %s\n", nameWidth, c.Name, titleWidth, c.Title, c.Type)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
