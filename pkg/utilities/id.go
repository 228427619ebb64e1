package utilities

import (
	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// TraceIDs hands out correlation ids attached to log lines of one update or
// change event. Ids are snowflakes when the node is valid, KSUIDs otherwise.
type TraceIDs struct {
	node *snowflake.Node
}

// NewTraceIDs builds a generator for the given snowflake node (0..1023).
// An invalid node degrades to KSUIDs instead of failing startup.
func NewTraceIDs(nodeID int64) *TraceIDs {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return &TraceIDs{}
	}
	return &TraceIDs{node: node}
}

// Next returns a new id string.
func (g *TraceIDs) Next() string {
	if g == nil || g.node == nil {
		return ksuid.New().String()
	}
	return g.node.Generate().String()
}
