package flatten

import (
	"blockflow/internal/models"
)

// labelKey identifies a sheet-label broadcast group: labels only match
// within the same scope.
type labelKey struct {
	scope string
	name  string
}

// resolveSheetLabels implements named, scope-local broadcast: each sink
// captures its driving wire, and every same-named source in the same scope
// re-emits that signal to its own consumers. Sinks and sources are stripped
// from the connection list afterward; unmatched labels are warnings and the
// affected consumers fall back to a missing (zero) input.
func (f *flattener) resolveSheetLabels(conns []*models.FlattenedConnection) []*models.FlattenedConnection {
	sinks := make(map[labelKey]*models.FlattenedBlock)
	for _, fb := range f.blocks {
		if fb.Kind() != models.KindSheetLabelSink {
			continue
		}
		key := labelKey{scope: fb.ScopePath, name: fb.Block.StringParam("signalName", "")}
		if first, dup := sinks[key]; dup {
			f.diags.Warnf(models.CodeDuplicateSink, fb.ID(),
				"sheet label %q has multiple sinks in scope %s; keeping %s", key.name, key.scope, first.FlattenedName)
			continue
		}
		sinks[key] = fb
	}

	// The wire driving each sink, keyed by sink block id.
	sinkDrivers := make(map[string]*models.FlattenedConnection)
	for _, conn := range conns {
		if fb := f.blockByID[conn.Target.BlockID]; fb != nil && fb.Kind() == models.KindSheetLabelSink {
			sinkDrivers[conn.Target.BlockID] = conn
		}
	}

	isLabel := func(id string) bool {
		fb := f.blockByID[id]
		return fb != nil && (fb.Kind() == models.KindSheetLabelSink || fb.Kind() == models.KindSheetLabelSource)
	}

	var out []*models.FlattenedConnection
	for _, conn := range conns {
		switch {
		case isLabel(conn.Target.BlockID):
			// Wire into a sink: consumed by the broadcast rewrite.
			continue
		case isLabel(conn.Source.BlockID):
			source := f.blockByID[conn.Source.BlockID]
			key := labelKey{scope: source.ScopePath, name: source.Block.StringParam("signalName", "")}
			sink, ok := sinks[key]
			if !ok {
				f.diags.Warnf(models.CodeUnmatchedLabel, source.ID(),
					"sheet label source %q in scope %s has no matching sink; consumers default to zero", key.name, key.scope)
				continue
			}
			driver, ok := sinkDrivers[sink.ID()]
			if !ok {
				f.diags.Warnf(models.CodeUnmatchedLabel, sink.ID(),
					"sheet label sink %q in scope %s has no driving wire; consumers default to zero", key.name, key.scope)
				continue
			}
			out = append(out, &models.FlattenedConnection{
				ID:         newConnectionID(),
				Source:     driver.Source,
				Target:     conn.Target,
				Provenance: models.ProvenanceSheetLabel,
			})
		default:
			out = append(out, conn)
		}
	}
	return out
}

// stripLabels removes sheet-label blocks from the final block list; they
// contribute no runtime code.
func (f *flattener) stripLabels() {
	kept := f.blocks[:0]
	for _, fb := range f.blocks {
		if fb.Kind() == models.KindSheetLabelSink || fb.Kind() == models.KindSheetLabelSource {
			delete(f.blockByID, fb.ID())
			continue
		}
		kept = append(kept, fb)
	}
	f.blocks = kept
}
