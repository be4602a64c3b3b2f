package models

// Extents is the drawable area of a sheet. Validated to be positive at
// document load; the pipeline itself never reads it.
type Extents struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Sheet is a named canvas holding an ordered list of blocks and the wires
// between them. A model is one or more sheets; subsystem blocks carry their
// own nested sheet list, giving the hierarchy its tree shape.
type Sheet struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Blocks      []*Block      `json:"blocks"`
	Connections []*Connection `json:"connections"`
	Extents     Extents       `json:"extents"`
}

// NewSheet creates an empty sheet.
func NewSheet(id, name string) *Sheet {
	return &Sheet{
		ID:          id,
		Name:        name,
		Blocks:      []*Block{},
		Connections: []*Connection{},
		Extents:     Extents{Width: 1000, Height: 1000},
	}
}

// AddBlock appends a block to the sheet and returns it for chaining.
func (s *Sheet) AddBlock(block *Block) *Block {
	s.Blocks = append(s.Blocks, block)
	return block
}

// AddConnection appends a wire to the sheet.
func (s *Sheet) AddConnection(conn *Connection) *Connection {
	s.Connections = append(s.Connections, conn)
	return conn
}

// Connect wires sourceBlock:sourcePort to targetBlock:targetPort with a
// generated id derived from the endpoints.
func (s *Sheet) Connect(sourceBlock string, sourcePort int, targetBlock string, targetPort int) *Connection {
	id := sourceBlock + ":" + targetBlock
	conn := NewConnection(id, sourceBlock, sourcePort, targetBlock, targetPort)
	return s.AddConnection(conn)
}

// GetBlock returns the block with the given id, or nil.
func (s *Sheet) GetBlock(id string) *Block {
	for _, block := range s.Blocks {
		if block.ID == id {
			return block
		}
	}
	return nil
}

// Clone creates a deep copy of the sheet.
func (s *Sheet) Clone() *Sheet {
	clone := &Sheet{
		ID:          s.ID,
		Name:        s.Name,
		Blocks:      make([]*Block, len(s.Blocks)),
		Connections: make([]*Connection, len(s.Connections)),
		Extents:     s.Extents,
	}
	for i, block := range s.Blocks {
		clone.Blocks[i] = block.Clone()
	}
	for i, conn := range s.Connections {
		clone.Connections[i] = conn.Clone()
	}
	return clone
}

// Model is an in-memory block diagram: the root sheet list plus global
// settings. Built from a validated Document; immutable once handed to the
// pipeline.
type Model struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Sheets      []*Sheet `json:"sheets"`
	Timestep    float64  `json:"timestep"`
}

// NewModel creates an empty model with the default timestep.
func NewModel(name string) *Model {
	return &Model{
		Name:     name,
		Sheets:   []*Sheet{},
		Timestep: 0.01,
	}
}

// AddSheet appends a root sheet to the model.
func (m *Model) AddSheet(sheet *Sheet) *Sheet {
	m.Sheets = append(m.Sheets, sheet)
	return sheet
}

// Clone creates a deep copy of the model.
func (m *Model) Clone() *Model {
	clone := &Model{
		Name:        m.Name,
		Description: m.Description,
		Sheets:      make([]*Sheet, len(m.Sheets)),
		Timestep:    m.Timestep,
	}
	for i, sheet := range m.Sheets {
		clone.Sheets[i] = sheet.Clone()
	}
	return clone
}
