// Package compile drives the full pipeline: flatten, parameter validation,
// scheduling, and type propagation. Every stage accumulates diagnostics into
// one list; callers decide how to react to errors via HasErrors.
package compile

import (
	"blockflow/internal/flatten"
	"blockflow/internal/models"
	"blockflow/internal/modules"
	"blockflow/internal/schedule"
	"blockflow/internal/typeprop"
)

// CompiledModel bundles everything downstream consumers need: the flattened
// graph, the execution order, the resolved types, and the diagnostics from
// every stage.
type CompiledModel struct {
	Model       *models.Model
	Flattened   *models.FlattenedModel
	Order       []*models.FlattenedBlock
	BrokenEdges []*models.FlattenedConnection
	Types       *typeprop.Types
	Diagnostics *models.DiagnosticList
}

// HasErrors reports whether any stage produced an error-severity diagnostic.
func (c *CompiledModel) HasErrors() bool {
	return c.Diagnostics.HasErrors()
}

// Compile runs the pipeline on a parsed model. The result is always
// non-nil; with errors present the order and types cover whatever subset of
// the model survived, which is enough for diagnostic reporting but not for
// simulation or code generation.
func Compile(model *models.Model) *CompiledModel {
	diags := &models.DiagnosticList{}

	flat, fd := flatten.Flatten(model, flatten.DefaultOptions())
	diags.Merge(fd)

	validateBlocks(flat, diags)

	sched, sd := schedule.Order(flat)
	diags.Merge(sd)

	types, td := typeprop.Propagate(flat, sched.Order)
	diags.Merge(td)

	return &CompiledModel{
		Model:       model,
		Flattened:   flat,
		Order:       sched.Order,
		BrokenEdges: sched.BrokenEdges,
		Types:       types,
		Diagnostics: diags,
	}
}

// validateBlocks runs each module's parameter checks and rejects kinds with
// no registered behavior. Presentation kinds without modules are tolerated;
// they simply do not execute.
func validateBlocks(flat *models.FlattenedModel, diags *models.DiagnosticList) {
	for _, fb := range flat.Blocks {
		m, ok := modules.ForBlock(fb.Block)
		if !ok {
			if fb.Kind().IsPresentation() {
				continue
			}
			diags.Errorf(models.CodeUnsupportedKind, fb.ID(),
				"block %s has kind %s with no runtime behavior", fb.FlattenedName, fb.Kind())
			continue
		}
		for _, d := range m.Validate(fb.Block) {
			diags.Add(d)
		}
	}
}
