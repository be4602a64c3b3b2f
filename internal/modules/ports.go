package modules

import (
	"blockflow/internal/models"
)

func init() {
	register(&inputPortModule{base{models.KindInputPort}})
	register(&outputPortModule{base{models.KindOutputPort}})
	register(&sourceModule{base{models.KindSource}})
}

// input_port
//
// Model-level input ports are pre-seeded by the caller before each step, so
// the evaluator path only supplies the declared-type zero default.

type inputPortModule struct{ base }

func (m *inputPortModule) InputCount(b *models.Block) int         { return 0 }
func (m *inputPortModule) DirectFeedthrough(b *models.Block) bool { return false }

func (m *inputPortModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	return b.DeclaredType()
}

func (m *inputPortModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	t, err := b.DeclaredType()
	if err != nil {
		t = models.ScalarDouble()
	}
	return models.NewValue(t), nil
}

func (m *inputPortModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	// Input ports have no signals member; the generator reads the inputs
	// struct directly.
	return "", nil
}

// output_port
//
// Output ports are a pass-through copy. They never own state and always
// execute, even inside a disabled subsystem.

type outputPortModule struct{ base }

func (m *outputPortModule) InputCount(b *models.Block) int { return 1 }

func (m *outputPortModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	if len(inputs) == 0 {
		return models.ScalarDouble(), nil
	}
	return inputs[0], nil
}

func (m *outputPortModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	return inputOrZero(in, 0, models.ScalarDouble()).Clone(), nil
}

func (m *outputPortModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	return emitElementwise(ctx.Output, func(i int) string {
		return ctx.Input(0).Elem(i)
	}), nil
}

// source

type sourceModule struct{ base }

func (m *sourceModule) InputCount(b *models.Block) int         { return 0 }
func (m *sourceModule) DirectFeedthrough(b *models.Block) bool { return false }

func (m *sourceModule) Validate(b *models.Block) []models.Diagnostic {
	t, err := b.DeclaredType()
	if err != nil {
		// Tolerated: type propagation substitutes scalar double.
		return nil
	}
	values := b.FloatSliceParam("value")
	if len(values) != 0 && len(values) != 1 && len(values) != t.ElementCount() {
		return []models.Diagnostic{paramWarning(b,
			"source block %s: value has %d element(s) but type %s has %d; extra elements are ignored and missing ones default to zero",
			b.Name, len(values), t, t.ElementCount())}
	}
	return nil
}

func (m *sourceModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	return b.DeclaredType()
}

func (m *sourceModule) constant(b *models.Block, t models.SignalType) []float64 {
	values := b.FloatSliceParam("value")
	out := make([]float64, t.ElementCount())
	switch len(values) {
	case 0:
	case 1:
		for i := range out {
			out[i] = values[0]
		}
	default:
		copy(out, values)
	}
	return out
}

func (m *sourceModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	t, err := b.DeclaredType()
	if err != nil {
		t = models.ScalarDouble()
	}
	out := models.NewValue(t)
	copy(out.Data, m.constant(b, t))
	return out, nil
}

func (m *sourceModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	values := m.constant(b, ctx.Output.Type)
	return emitElementwise(ctx.Output, func(i int) string {
		return cFloat(values[i])
	}), nil
}
