package models

import "fmt"

// Provenance tags how a flattened connection came to exist, for diagnostics.
type Provenance string

const (
	ProvenanceDirect          Provenance = "direct"
	ProvenanceSubsystemInput  Provenance = "subsystem_input"
	ProvenanceSubsystemOutput Provenance = "subsystem_output"
	ProvenanceSheetLabel      Provenance = "sheet_label"
)

// FlattenedBlock is a block lifted out of the subsystem hierarchy: the
// original block plus its globally-unique flattened name, the path of
// subsystem ids above it, and its enable scope. Created once per flattening
// pass and immutable afterward.
type FlattenedBlock struct {
	Block         *Block   `json:"block"`
	FlattenedName string   `json:"flattenedName"`
	SubsystemPath []string `json:"subsystemPath,omitempty"` // ancestor subsystem ids, outermost first
	ScopePath     string   `json:"scopePath"`               // sheet-label scope key; "root" at top level

	// EnableScope is the id of the nearest enclosing subsystem that declares
	// an enable input, or empty when the block is always enabled.
	EnableScope string `json:"enableScope,omitempty"`
}

// ID returns the underlying block id.
func (fb *FlattenedBlock) ID() string { return fb.Block.ID }

// Kind returns the underlying block kind.
func (fb *FlattenedBlock) Kind() BlockKind { return fb.Block.Kind }

// String returns a short description of the flattened block.
func (fb *FlattenedBlock) String() string {
	return fmt.Sprintf("FlattenedBlock{%s, kind: %s}", fb.FlattenedName, fb.Block.Kind)
}

// FlattenedConnection is a wire rewritten so neither endpoint references a
// subsystem boundary or a sheet-label block.
type FlattenedConnection struct {
	ID         string     `json:"id"`
	Source     Endpoint   `json:"source"`
	Target     Endpoint   `json:"target"`
	Provenance Provenance `json:"provenance"`
}

// String returns a short description of the flattened connection.
func (fc *FlattenedConnection) String() string {
	return fmt.Sprintf("FlattenedConnection{%s:%d -> %s:%d, %s}",
		fc.Source.BlockID, fc.Source.Port, fc.Target.BlockID, fc.Target.Port, fc.Provenance)
}

// SubsystemEnableInfo describes one subsystem that declares an enable input.
type SubsystemEnableInfo struct {
	ID            string               `json:"id"`
	FlattenedName string               `json:"flattenedName"`
	ParentScope   string               `json:"parentScope,omitempty"` // enclosing enable scope, if any
	Enable        *FlattenedConnection `json:"enable,omitempty"`      // resolved enable-driving wire; nil defaults to always-enabled
	ControlledIDs []string             `json:"controlledIds"`         // descendant block ids gated by this scope
}

// FlattenedModel is the output of the flattener: a single flat graph with
// hierarchy and sheet labels eliminated.
type FlattenedModel struct {
	Blocks      []*FlattenedBlock      `json:"blocks"`
	Connections []*FlattenedConnection `json:"connections"`

	// EnableScopes maps block id to the id of its governing subsystem.
	// Blocks outside any enabled scope are absent.
	EnableScopes map[string]string `json:"enableScopes"`

	// SubsystemEnables maps subsystem id to its enable info, for every
	// subsystem that declares an enable input.
	SubsystemEnables map[string]*SubsystemEnableInfo `json:"subsystemEnables"`

	Metadata map[string]string `json:"metadata,omitempty"`

	blocksByID map[string]*FlattenedBlock
	inputsByID map[string][]*FlattenedConnection
}

// Index builds the internal lookup tables. Called once by the flattener
// after construction.
func (fm *FlattenedModel) Index() {
	fm.blocksByID = make(map[string]*FlattenedBlock, len(fm.Blocks))
	for _, fb := range fm.Blocks {
		fm.blocksByID[fb.ID()] = fb
	}
	fm.inputsByID = make(map[string][]*FlattenedConnection)
	for _, fc := range fm.Connections {
		fm.inputsByID[fc.Target.BlockID] = append(fm.inputsByID[fc.Target.BlockID], fc)
	}
}

// BlockByID returns the flattened block with the given id, or nil.
func (fm *FlattenedModel) BlockByID(id string) *FlattenedBlock {
	return fm.blocksByID[id]
}

// BlockByName returns the flattened block with the given flattened name, or
// nil.
func (fm *FlattenedModel) BlockByName(name string) *FlattenedBlock {
	for _, fb := range fm.Blocks {
		if fb.FlattenedName == name {
			return fb
		}
	}
	return nil
}

// InputConnections returns the connections targeting the given block, in
// document order.
func (fm *FlattenedModel) InputConnections(blockID string) []*FlattenedConnection {
	return fm.inputsByID[blockID]
}

// ConnectionInto returns the single connection targeting (blockID, port), or
// nil when the port is unconnected.
func (fm *FlattenedModel) ConnectionInto(blockID string, port int) *FlattenedConnection {
	for _, fc := range fm.inputsByID[blockID] {
		if fc.Target.Port == port {
			return fc
		}
	}
	return nil
}

// RootInputPorts returns the model-level input port blocks ordered by their
// portOrder parameter.
func (fm *FlattenedModel) RootInputPorts() []*FlattenedBlock {
	return fm.rootPorts(KindInputPort)
}

// RootOutputPorts returns the model-level output port blocks ordered by
// their portOrder parameter.
func (fm *FlattenedModel) RootOutputPorts() []*FlattenedBlock {
	return fm.rootPorts(KindOutputPort)
}

func (fm *FlattenedModel) rootPorts(kind BlockKind) []*FlattenedBlock {
	var ports []*FlattenedBlock
	for _, fb := range fm.Blocks {
		if fb.Kind() == kind && len(fb.SubsystemPath) == 0 {
			ports = append(ports, fb)
		}
	}
	// Stable order: portOrder, then name.
	for i := 1; i < len(ports); i++ {
		for j := i; j > 0; j-- {
			a, b := ports[j-1], ports[j]
			ao, bo := a.Block.IntParam("portOrder", 0), b.Block.IntParam("portOrder", 0)
			if ao > bo || (ao == bo && a.FlattenedName > b.FlattenedName) {
				ports[j-1], ports[j] = b, a
			} else {
				break
			}
		}
	}
	return ports
}
