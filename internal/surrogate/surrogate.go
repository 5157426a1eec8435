// Package surrogate generates the surrogate ids attached to fact and dimension rows.
//
// Ids are snowflake ids: unique per generator, increasing in generation
// order, not contiguous and not stable across runs.
package surrogate

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator hands out snowflake ids for one node.
type Generator struct {
	node *snowflake.Node
}

// New returns a generator for the given node id (0-1023).
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// NextID returns the next id.
func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}
