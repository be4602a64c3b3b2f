package models

import (
	"fmt"
)

// Block represents a node in a block diagram: a kind tag from the closed
// enumeration plus kind-specific parameters. Blocks are created by the
// editor and consumed read-only by the compilation pipeline.
type Block struct {
	ID         string                 `json:"id"`
	Kind       BlockKind              `json:"kind"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Position   *Position              `json:"position,omitempty"`

	// Sheets holds the nested sheet list of a subsystem block, decoded from
	// the "sheets" parameter at document load time. Nil for other kinds.
	Sheets []*Sheet `json:"sheets,omitempty"`
}

// Position is the editor placement of a block. The pipeline carries it
// through untouched for diagnostics.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewBlock creates a block with the given id, kind, and name.
func NewBlock(id string, kind BlockKind, name string) *Block {
	return &Block{
		ID:         id,
		Kind:       kind,
		Name:       name,
		Parameters: make(map[string]interface{}),
	}
}

// SetParameter sets a parameter value on the block.
func (b *Block) SetParameter(key string, value interface{}) *Block {
	if b.Parameters == nil {
		b.Parameters = make(map[string]interface{})
	}
	b.Parameters[key] = value
	return b
}

// HasParameter reports whether the block declares the given parameter.
func (b *Block) HasParameter(key string) bool {
	_, ok := b.Parameters[key]
	return ok
}

// StringParam returns a string parameter, or def when absent or mistyped.
func (b *Block) StringParam(key, def string) string {
	if v, ok := b.Parameters[key].(string); ok {
		return v
	}
	return def
}

// FloatParam returns a numeric parameter, or def when absent or mistyped.
func (b *Block) FloatParam(key string, def float64) float64 {
	if f, ok := toFloat(b.Parameters[key]); ok {
		return f
	}
	return def
}

// IntParam returns an integer parameter, or def when absent or mistyped.
func (b *Block) IntParam(key string, def int) int {
	if f, ok := toFloat(b.Parameters[key]); ok {
		return int(f)
	}
	return def
}

// BoolParam returns a boolean parameter, or def when absent or mistyped.
func (b *Block) BoolParam(key string, def bool) bool {
	if v, ok := b.Parameters[key].(bool); ok {
		return v
	}
	return def
}

// FloatSliceParam returns a numeric list parameter. A scalar value is
// returned as a one-element slice. Returns nil when absent or mistyped.
func (b *Block) FloatSliceParam(key string) []float64 {
	raw, ok := b.Parameters[key]
	if !ok {
		return nil
	}
	if f, ok := toFloat(raw); ok {
		return []float64{f}
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(list))
	for _, item := range list {
		f, ok := toFloat(item)
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}

// FloatMatrixParam returns a numeric table parameter as row-major rows.
// Returns nil when absent, mistyped, or ragged.
func (b *Block) FloatMatrixParam(key string) [][]float64 {
	list, ok := b.Parameters[key].([]interface{})
	if !ok || len(list) == 0 {
		return nil
	}
	rows := make([][]float64, 0, len(list))
	width := -1
	for _, rawRow := range list {
		items, ok := rawRow.([]interface{})
		if !ok {
			return nil
		}
		if width < 0 {
			width = len(items)
		} else if len(items) != width {
			return nil
		}
		row := make([]float64, 0, len(items))
		for _, item := range items {
			f, ok := toFloat(item)
			if !ok {
				return nil
			}
			row = append(row, f)
		}
		rows = append(rows, row)
	}
	return rows
}

// DeclaredType parses the block's "dataType" parameter. Used by input_port
// and source blocks to seed type propagation.
func (b *Block) DeclaredType() (SignalType, error) {
	decl := b.StringParam("dataType", "")
	if decl == "" {
		return SignalType{}, fmt.Errorf("block %s declares no dataType", b.Name)
	}
	return ParseSignalType(decl)
}

// Clone creates a deep copy of the block.
func (b *Block) Clone() *Block {
	clone := &Block{
		ID:   b.ID,
		Kind: b.Kind,
		Name: b.Name,
	}
	if b.Parameters != nil {
		clone.Parameters = make(map[string]interface{}, len(b.Parameters))
		for k, v := range b.Parameters {
			clone.Parameters[k] = v
		}
	}
	if b.Position != nil {
		pos := *b.Position
		clone.Position = &pos
	}
	if b.Sheets != nil {
		clone.Sheets = make([]*Sheet, len(b.Sheets))
		for i, sheet := range b.Sheets {
			clone.Sheets[i] = sheet.Clone()
		}
	}
	return clone
}

// String returns a short description of the block.
func (b *Block) String() string {
	return fmt.Sprintf("Block{ID: %s, Kind: %s, Name: %s}", b.ID, b.Kind, b.Name)
}

// toFloat widens any JSON-decoded numeric value to float64.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
