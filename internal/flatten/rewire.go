package flatten

import (
	"blockflow/internal/models"
)

// maxResolveDepth bounds port-chain resolution so a pathological cycle of
// subsystem boundaries cannot recurse forever.
const maxResolveDepth = 256

// resolveWires rewrites every raw wire that touches a subsystem boundary or
// an internal boundary port into a direct wire between the true producer and
// true consumer. Enable wires (target port -1) are preserved verbatim on the
// owning subsystem's enable info.
func (f *flattener) resolveWires() []*models.FlattenedConnection {
	var conns []*models.FlattenedConnection

	for _, wire := range f.rawWires {
		if wire.IsEnableWire() {
			f.resolveEnableWire(wire)
			continue
		}

		// Only wires landing on a live block start a chain; wires into
		// boundaries are consumed while following chains from the live end.
		if _, live := f.blockByID[wire.Target.BlockID]; !live {
			f.checkBoundaryTarget(wire)
			continue
		}

		source, prov, ok := f.resolveSource(wire.Source, models.ProvenanceDirect, 0)
		if !ok {
			f.diags.Warnf(models.CodeDisconnectedPort, wire.Target.BlockID,
				"input port %d of block %s has no resolvable producer; the wire is dropped", wire.Target.Port, wire.Target.BlockID)
			continue
		}

		id := wire.ID
		if prov != models.ProvenanceDirect || id == "" {
			id = newConnectionID()
		}
		conns = append(conns, &models.FlattenedConnection{
			ID:         id,
			Source:     source,
			Target:     wire.Target,
			Provenance: prov,
		})
	}

	return conns
}

// resolveSource follows a source endpoint through subsystem boundaries to
// the live producing block.
func (f *flattener) resolveSource(ep models.Endpoint, prov models.Provenance, depth int) (models.Endpoint, models.Provenance, bool) {
	if depth > maxResolveDepth {
		f.diags.Warnf(models.CodeDisconnectedPort, ep.BlockID,
			"port resolution exceeded depth limit at block %s; the wire is dropped", ep.BlockID)
		return models.Endpoint{}, prov, false
	}

	if _, live := f.blockByID[ep.BlockID]; live {
		return ep, prov, true
	}

	// Source is a subsystem output: hop to the wire driving the internal
	// output_port block realizing that port.
	if info, ok := f.subsystems[ep.BlockID]; ok {
		portBlockID, ok := info.outPorts[ep.Port]
		if !ok {
			f.diags.Warnf(models.CodeDisconnectedPort, ep.BlockID,
				"subsystem %s has no output port %d", info.block.Name, ep.Port)
			return models.Endpoint{}, prov, false
		}
		driver := f.wireInto(portBlockID, 0)
		if driver == nil {
			f.diags.Warnf(models.CodeDisconnectedPort, portBlockID,
				"output port %d of subsystem %s is not driven internally", ep.Port, info.block.Name)
			return models.Endpoint{}, prov, false
		}
		return f.resolveSource(driver.Source, models.ProvenanceSubsystemOutput, depth+1)
	}

	// Source is an internal input_port block: hop to the wire feeding the
	// owning subsystem at that port index.
	if port, ok := f.elided[ep.BlockID]; ok && port.block.Kind == models.KindInputPort {
		driver := f.wireInto(port.owner, port.portOrder)
		if driver == nil {
			f.diags.Warnf(models.CodeDisconnectedPort, ep.BlockID,
				"input port %d of subsystem %s is unconnected", port.portOrder, port.owner)
			return models.Endpoint{}, prov, false
		}
		return f.resolveSource(driver.Source, models.ProvenanceSubsystemInput, depth+1)
	}

	f.diags.Warnf(models.CodeDisconnectedPort, ep.BlockID,
		"wire source %s:%d cannot produce a value", ep.BlockID, ep.Port)
	return models.Endpoint{}, prov, false
}

// wireInto finds the single raw wire targeting (blockID, port), or nil.
func (f *flattener) wireInto(blockID string, port int) *models.Connection {
	for _, wire := range f.rawWires {
		if wire.Target.BlockID == blockID && wire.Target.Port == port {
			return wire
		}
	}
	return nil
}

// resolveEnableWire records a wire into a subsystem enable sentinel port on
// the owning subsystem's enable info.
func (f *flattener) resolveEnableWire(wire *models.Connection) {
	info, ok := f.enables[wire.Target.BlockID]
	if !ok {
		f.diags.Warnf(models.CodeUnconnectedEnable, wire.Target.BlockID,
			"enable wire targets block %s, which declares no enable input; the wire is ignored", wire.Target.BlockID)
		return
	}
	source, _, ok := f.resolveSource(wire.Source, models.ProvenanceDirect, 0)
	if !ok {
		f.diags.Warnf(models.CodeUnconnectedEnable, wire.Target.BlockID,
			"enable input of subsystem %s has no resolvable driver; it defaults to always enabled", info.FlattenedName)
		return
	}
	info.Enable = &models.FlattenedConnection{
		ID:         newConnectionID(),
		Source:     source,
		Target:     models.Endpoint{BlockID: wire.Target.BlockID, Port: models.EnablePort},
		Provenance: models.ProvenanceDirect,
	}
}

// checkBoundaryTarget warns about wires into subsystem ports that have no
// internal counterpart; such wires feed nothing and are dropped.
func (f *flattener) checkBoundaryTarget(wire *models.Connection) {
	info, ok := f.subsystems[wire.Target.BlockID]
	if !ok {
		return
	}
	if _, ok := info.inPorts[wire.Target.Port]; !ok {
		f.diags.Warnf(models.CodeDisconnectedPort, wire.Target.BlockID,
			"wire into subsystem %s port %d has no matching internal input port; the wire is dropped",
			info.block.Name, wire.Target.Port)
	}
}
