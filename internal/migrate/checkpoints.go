package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/varstore/internal/sqlite"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

// OldestSupported is the lowest store version DefaultChain upgrades.
const OldestSupported = "1.4.4"

// DefaultChain returns the built-in checkpoints.
func DefaultChain() *Chain {
	chain, err := NewChain(types.MustVersion(OldestSupported),
		Checkpoint{
			Version: types.MustVersion("2.0.0"),
			Name:    "rewrite input paths as JSON",
			Apply:   strictInputPaths,
		},
		Checkpoint{
			Version: types.MustVersion("2.1.0"),
			Name:    "index sample and mapping by uid",
			Apply:   uidIndexes,
		},
		Checkpoint{
			Version: types.MustVersion("2.3.0"),
			Name:    "add annotator version column",
			Apply:   annotatorVersions,
		},
	)
	if err != nil {
		panic(err)
	}
	return chain
}

// strictInputPaths re-encodes _input_paths, which older stores wrote with
// single quotes, and refreshes the input file summary.
func strictInputPaths(ctx context.Context, tx *sql.Tx) error {
	if _, ok, err := sqlite.InfoValue(ctx, tx, types.InfoKeyInputPaths); err != nil || !ok {
		return err
	}
	paths, err := sqlite.InputPaths(ctx, tx)
	if err != nil {
		return err
	}
	return sqlite.WriteInputPaths(ctx, tx, paths)
}

func uidIndexes(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range sqlite.UIDIndexDDL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create uid index: %w", err)
		}
	}
	return nil
}

func annotatorVersions(ctx context.Context, tx *sql.Tx) error {
	cat, err := sqlite.LoadCatalog(ctx, tx, "main")
	if err != nil {
		return err
	}
	for _, name := range types.AnnotatorTables {
		t, ok := cat.Table(name)
		if !ok || t.Has("version") {
			continue
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE "+sqlite.QuoteIdent(name)+" ADD COLUMN version TEXT"); err != nil {
			return fmt.Errorf("add version to %s: %w", name, err)
		}
	}
	return nil
}
