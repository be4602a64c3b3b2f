package models

import "fmt"

// EnablePort is the reserved target port index meaning "subsystem enable
// input". It is a sentinel, not a data port: the flattener records it on the
// owning subsystem's enable info instead of rewriting it.
const EnablePort = -1

// Endpoint identifies one end of a wire: a block and a port index on it.
// Port indices are zero-based; EnablePort is the only negative value allowed
// and only as a target.
type Endpoint struct {
	BlockID string `json:"blockId"`
	Port    int    `json:"port"`
}

// Connection is a directed wire from a source block output port to a target
// block input port. At most one connection may target a given (block, port)
// pair; multiple drivers on one input is a validation error.
type Connection struct {
	ID     string   `json:"id,omitempty"`
	Source Endpoint `json:"source"`
	Target Endpoint `json:"target"`
}

// NewConnection creates a wire between two block ports.
func NewConnection(id, sourceBlock string, sourcePort int, targetBlock string, targetPort int) *Connection {
	return &Connection{
		ID:     id,
		Source: Endpoint{BlockID: sourceBlock, Port: sourcePort},
		Target: Endpoint{BlockID: targetBlock, Port: targetPort},
	}
}

// IsEnableWire reports whether the connection drives a subsystem enable
// input.
func (c *Connection) IsEnableWire() bool {
	return c.Target.Port == EnablePort
}

// Clone creates a copy of the connection.
func (c *Connection) Clone() *Connection {
	clone := *c
	return &clone
}

// String returns a short description of the connection.
func (c *Connection) String() string {
	return fmt.Sprintf("Connection{%s:%d -> %s:%d}",
		c.Source.BlockID, c.Source.Port, c.Target.BlockID, c.Target.Port)
}
