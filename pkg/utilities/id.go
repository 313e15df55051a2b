package utilities

import (
	"fmt"
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake IDs for users and messages. IDs are
// roughly time-ordered, which the message listings use as a tie-breaker.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for the given node (0..1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// IDGeneratorFromEnv uses the node ID in SNOWFLAKE_NODE, defaulting to 1
// when the variable is unset or not a number.
func IDGeneratorFromEnv() (*IDGenerator, error) {
	nodeID := int64(1)
	if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			nodeID = n
		}
	}
	return NewIDGenerator(nodeID)
}

// Next returns a new unique ID.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}
