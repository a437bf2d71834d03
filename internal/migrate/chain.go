// Package migrate upgrades result stores in place through an ordered chain of
// version checkpoints.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/mesh-intelligence/varstore/pkg/types"
)

// Checkpoint transforms a store to Version. Apply runs inside the same
// transaction that records Version in the store's info table.
type Checkpoint struct {
	Version types.Version
	Name    string
	Apply   func(ctx context.Context, tx *sql.Tx) error
}

// Chain is an immutable, ascending list of checkpoints together with the
// oldest store version it can upgrade.
type Chain struct {
	oldest      types.Version
	checkpoints []Checkpoint
}

// NewChain sorts checkpoints by version. Two checkpoints with the same
// version are rejected.
func NewChain(oldest types.Version, checkpoints ...Checkpoint) (*Chain, error) {
	cps := append([]Checkpoint(nil), checkpoints...)
	sort.SliceStable(cps, func(i, j int) bool { return cps[i].Version.Less(cps[j].Version) })
	for i := range cps {
		if cps[i].Apply == nil {
			return nil, fmt.Errorf("checkpoint %s has no transformation", cps[i].Version)
		}
		if i > 0 && cps[i].Version.Compare(cps[i-1].Version) == 0 {
			return nil, fmt.Errorf("%w: %s", types.ErrDuplicateCheckpoint, cps[i].Version)
		}
	}
	return &Chain{oldest: oldest, checkpoints: cps}, nil
}

// Oldest returns the lowest store version the chain accepts.
func (c *Chain) Oldest() types.Version {
	return c.oldest
}

// Latest returns the newest checkpoint version, or Oldest for an empty chain.
func (c *Chain) Latest() types.Version {
	if len(c.checkpoints) == 0 {
		return c.oldest
	}
	return c.checkpoints[len(c.checkpoints)-1].Version
}

// Checkpoints returns a copy of the chain in ascending order.
func (c *Chain) Checkpoints() []Checkpoint {
	return append([]Checkpoint(nil), c.checkpoints...)
}

// After returns the checkpoints strictly newer than v, ascending.
func (c *Chain) After(v types.Version) []Checkpoint {
	i := sort.Search(len(c.checkpoints), func(i int) bool { return v.Less(c.checkpoints[i].Version) })
	return append([]Checkpoint(nil), c.checkpoints[i:]...)
}
