// Package flatten inlines a hierarchical block-diagram model into a single
// flat graph: subsystem contents are lifted to the top level, boundary ports
// are elided into direct wires, sheet labels are resolved into their driving
// signals, and every block is tagged with its enable scope.
package flatten

import (
	"strings"

	"github.com/google/uuid"

	"blockflow/internal/models"
)

// Options control a flattening pass.
type Options struct {
	// Separator joins ancestor subsystem names into flattened names.
	// Defaults to "_".
	Separator string

	// TrackEnableScopes records which subsystem gates each block. Disabling
	// it yields a model where every block is always enabled.
	TrackEnableScopes bool
}

// DefaultOptions returns the options used by the compiler driver.
func DefaultOptions() Options {
	return Options{Separator: "_", TrackEnableScopes: true}
}

// RootScope is the sheet-label scope key of the top level.
const RootScope = "root"

// Flatten produces the flattened model and accumulated diagnostics. It never
// panics on recoverable model-quality issues; structural impossibilities are
// reported as error-severity diagnostics and the result is still returned
// for inspection.
func Flatten(model *models.Model, opts Options) (*models.FlattenedModel, *models.DiagnosticList) {
	if opts.Separator == "" {
		opts.Separator = "_"
	}
	f := &flattener{
		opts:       opts,
		diags:      &models.DiagnosticList{},
		blockByID:  make(map[string]*models.FlattenedBlock),
		elided:     make(map[string]*elidedPort),
		subsystems: make(map[string]*subsystemInfo),
		enables:    make(map[string]*models.SubsystemEnableInfo),
		wireByID:   make(map[string]bool),
	}

	f.walk(model.Sheets, nil, nil, "", "")
	f.validateWires()
	conns := f.resolveWires()
	conns = f.resolveSheetLabels(conns)
	f.stripLabels()
	f.checkNames()
	f.finishEnables()

	fm := &models.FlattenedModel{
		Blocks:           f.blocks,
		Connections:      conns,
		EnableScopes:     make(map[string]string),
		SubsystemEnables: f.enables,
		Metadata: map[string]string{
			"model":     model.Name,
			"separator": f.opts.Separator,
		},
	}
	for _, fb := range f.blocks {
		if fb.EnableScope != "" {
			fm.EnableScopes[fb.ID()] = fb.EnableScope
		}
	}
	fm.Index()
	return fm, f.diags
}

// subsystemInfo tracks a subsystem block during flattening: its boundary
// port mapping and whether it governs an enable scope.
type subsystemInfo struct {
	block    *models.Block
	inPorts  map[int]string // subsystem input port index -> internal input_port block id
	outPorts map[int]string // subsystem output port index -> internal output_port block id
}

// elidedPort is an input_port/output_port block inside a subsystem; it is
// rewritten away rather than kept as a runtime block.
type elidedPort struct {
	block     *models.Block
	owner     string // owning subsystem id
	portOrder int
}

type flattener struct {
	opts  Options
	diags *models.DiagnosticList

	blocks      []*models.FlattenedBlock
	blockByID   map[string]*models.FlattenedBlock
	elided      map[string]*elidedPort
	subsystems  map[string]*subsystemInfo
	enables     map[string]*models.SubsystemEnableInfo
	enableOrder []string

	rawWires []*models.Connection
	wireByID map[string]bool
}

// walk performs the pre-pass and recursive inline in one traversal: blocks
// gain their flattened name, subsystem path, and enable scope as they are
// discovered, so later stages never need tree context again.
func (f *flattener) walk(sheets []*models.Sheet, namePath, idPath []string, enableScope, owner string) {
	for _, sheet := range sheets {
		for _, block := range sheet.Blocks {
			f.visitBlock(block, namePath, idPath, enableScope, owner)
		}
		for _, conn := range sheet.Connections {
			f.rawWires = append(f.rawWires, conn)
		}
	}
}

func (f *flattener) visitBlock(block *models.Block, namePath, idPath []string, enableScope, owner string) {
	if f.known(block.ID) {
		f.diags.Errorf(models.CodeDuplicateBlockID, block.ID,
			"block id %s appears more than once in the model", block.ID)
		return
	}

	flatName := f.flattenedName(namePath, block.Name)
	scope := enableScope
	if !f.opts.TrackEnableScopes {
		scope = ""
	}

	switch {
	case block.Kind == models.KindSubsystem:
		info := &subsystemInfo{
			block:    block,
			inPorts:  make(map[int]string),
			outPorts: make(map[int]string),
		}
		f.subsystems[block.ID] = info

		childScope := enableScope
		if block.BoolParam("enablePort", false) {
			childScope = block.ID
			f.enables[block.ID] = &models.SubsystemEnableInfo{
				ID:            block.ID,
				FlattenedName: flatName,
				ParentScope:   enableScope,
			}
			f.enableOrder = append(f.enableOrder, block.ID)
		}
		f.walk(block.Sheets,
			append(append([]string{}, namePath...), sanitize(block.Name)),
			append(append([]string{}, idPath...), block.ID),
			childScope, block.ID)

	case block.Kind.IsPort() && owner != "":
		// Boundary port of a subsystem: elided during wire rewriting.
		f.elided[block.ID] = &elidedPort{
			block:     block,
			owner:     owner,
			portOrder: block.IntParam("portOrder", 0),
		}
		info := f.subsystems[owner]
		if block.Kind == models.KindInputPort {
			info.inPorts[block.IntParam("portOrder", 0)] = block.ID
		} else {
			info.outPorts[block.IntParam("portOrder", 0)] = block.ID
		}

	default:
		fb := &models.FlattenedBlock{
			Block:         block,
			FlattenedName: flatName,
			SubsystemPath: append([]string{}, idPath...),
			ScopePath:     scopeKey(namePath, f.opts.Separator),
			EnableScope:   scope,
		}
		f.blocks = append(f.blocks, fb)
		f.blockByID[block.ID] = fb
	}
}

func (f *flattener) known(id string) bool {
	if _, ok := f.blockByID[id]; ok {
		return true
	}
	if _, ok := f.elided[id]; ok {
		return true
	}
	_, ok := f.subsystems[id]
	return ok
}

func (f *flattener) flattenedName(namePath []string, name string) string {
	parts := append(append([]string{}, namePath...), sanitize(name))
	return strings.Join(parts, f.opts.Separator)
}

func scopeKey(namePath []string, sep string) string {
	if len(namePath) == 0 {
		return RootScope
	}
	return strings.Join(namePath, sep)
}

// validateWires checks raw wires for structural problems before rewriting:
// endpoints must reference known blocks and no input may have two drivers.
func (f *flattener) validateWires() {
	drivers := make(map[models.Endpoint]bool)
	valid := f.rawWires[:0]
	for _, wire := range f.rawWires {
		if !f.known(wire.Source.BlockID) {
			f.diags.Errorf(models.CodeDanglingWire, wire.Source.BlockID,
				"wire %s references nonexistent source block %s", wire.ID, wire.Source.BlockID)
			continue
		}
		if !f.known(wire.Target.BlockID) {
			f.diags.Errorf(models.CodeDanglingWire, wire.Target.BlockID,
				"wire %s references nonexistent target block %s", wire.ID, wire.Target.BlockID)
			continue
		}
		if drivers[wire.Target] {
			f.diags.Errorf(models.CodeMultipleDrivers, wire.Target.BlockID,
				"input port %d of block %s has multiple drivers", wire.Target.Port, wire.Target.BlockID)
			continue
		}
		drivers[wire.Target] = true
		valid = append(valid, wire)
	}
	f.rawWires = valid
}

// finishEnables resolves the ControlledIDs sets and warns about enable
// inputs left unconnected (they default to always-enabled).
func (f *flattener) finishEnables() {
	for _, fb := range f.blocks {
		if fb.EnableScope != "" {
			if info, ok := f.enables[fb.EnableScope]; ok {
				info.ControlledIDs = append(info.ControlledIDs, fb.ID())
			}
		}
	}
	for _, id := range f.enableOrder {
		info := f.enables[id]
		if info.Enable == nil {
			f.diags.Warnf(models.CodeUnconnectedEnable, id,
				"subsystem %s declares an enable input but none is connected; it defaults to always enabled", info.FlattenedName)
		}
	}
}

// checkNames enforces flattened-name uniqueness. A collision is a hard
// error, never a silently suffixed rename.
func (f *flattener) checkNames() {
	seen := make(map[string]string)
	for _, fb := range f.blocks {
		if otherID, dup := seen[fb.FlattenedName]; dup {
			f.diags.Errorf(models.CodeDuplicateName, fb.ID(),
				"flattened name %s is produced by both block %s and block %s", fb.FlattenedName, otherID, fb.ID())
			continue
		}
		seen[fb.FlattenedName] = fb.ID()
	}
}

// sanitize rewrites a display name into an identifier: alphanumerics are
// kept, everything else becomes an underscore, and a leading digit gains an
// underscore prefix.
func sanitize(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	if out == "" {
		out = "block"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// SanitizeName exposes identifier sanitization for emission utilities.
func SanitizeName(name string) string {
	return sanitize(name)
}

// newConnectionID mints an id for a synthesized connection.
func newConnectionID() string {
	return uuid.NewString()
}
