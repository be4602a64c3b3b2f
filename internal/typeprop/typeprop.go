// Package typeprop resolves the signal type of every block output in a
// scheduled flattened model. Types flow forward along wires from declared
// sources and input ports; shape conflicts are reported and the offending
// block falls back to scalar double so propagation can continue.
package typeprop

import (
	"blockflow/internal/models"
	"blockflow/internal/modules"
)

// Types holds the resolved output type of every runtime block.
type Types struct {
	fm      *models.FlattenedModel
	byBlock map[string]models.SignalType
}

// BlockType returns the stored output type of a block. For a demux block
// this is the incoming vector; use PortType for the per-port view.
func (t *Types) BlockType(id string) (models.SignalType, bool) {
	st, ok := t.byBlock[id]
	return st, ok
}

// PortType returns the type carried by one output port. Demux ports carry
// scalar elements of the incoming vector's base type; every other kind has a
// single output whose port type equals the block type.
func (t *Types) PortType(blockID string, port int) models.SignalType {
	st, ok := t.byBlock[blockID]
	if !ok {
		return models.ScalarDouble()
	}
	if fb := t.fm.BlockByID(blockID); fb != nil && fb.Kind() == models.KindDemux {
		return models.Scalar(st.Base)
	}
	return st
}

// Propagate walks the blocks in execution order and infers every output
// type. Two sweeps are run: the first establishes types so that consumers
// across broken loop edges see their producer's real type, the second
// re-derives them and records diagnostics.
func Propagate(fm *models.FlattenedModel, order []*models.FlattenedBlock) (*Types, *models.DiagnosticList) {
	t := &Types{fm: fm, byBlock: make(map[string]models.SignalType, len(order))}
	diags := &models.DiagnosticList{}
	t.sweep(order, nil)
	t.sweep(order, diags)
	return t, diags
}

func (t *Types) sweep(order []*models.FlattenedBlock, diags *models.DiagnosticList) {
	for _, fb := range order {
		m, ok := modules.ForBlock(fb.Block)
		if !ok {
			continue
		}
		if m.OutputCount(fb.Block) == 0 {
			continue
		}

		n := m.InputCount(fb.Block)
		inputs := make([]models.SignalType, n)
		for i := 0; i < n; i++ {
			conn := t.fm.ConnectionInto(fb.ID(), i)
			if conn == nil {
				inputs[i] = models.ScalarDouble()
				if diags != nil {
					diags.Warnf(models.CodeMissingInput, fb.ID(),
						"input %d of block %s is unconnected and defaults to zero", i, fb.FlattenedName)
				}
				continue
			}
			inputs[i] = t.PortType(conn.Source.BlockID, conn.Source.Port)
		}

		typ, err := m.InferOutputType(fb.Block, inputs)
		if err != nil {
			typ = models.ScalarDouble()
			if diags != nil {
				if fb.Kind() == models.KindInputPort || fb.Kind() == models.KindSource {
					diags.Warnf(models.CodeInvalidType, fb.ID(),
						"block %s: %v; substituting scalar double", fb.FlattenedName, err)
				} else {
					diags.Errorf(models.CodeTypeMismatch, fb.ID(),
						"block %s: %v", fb.FlattenedName, err)
				}
			}
		}
		t.byBlock[fb.ID()] = typ
	}
}
