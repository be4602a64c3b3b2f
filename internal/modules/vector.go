package modules

import (
	"fmt"
	"math"
	"strings"

	"blockflow/internal/models"
)

func init() {
	register(&muxModule{base{models.KindMux}})
	register(&demuxModule{base{models.KindDemux}})
	register(&magnitudeModule{base{models.KindMagnitude}})
	register(&crossProductModule{base{models.KindCrossProduct}})
	register(&dotProductModule{base{models.KindDotProduct}})
	register(&transposeModule{base{models.KindTranspose}})
	register(&matrixMultiplyModule{base{models.KindMatrixMultiply}})
}

// mux collects n scalar inputs into a vector.

type muxModule struct{ base }

func (m *muxModule) InputCount(b *models.Block) int {
	n := b.IntParam("inputs", 2)
	if n < 1 {
		n = 2
	}
	return n
}

func (m *muxModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	base := models.BaseDouble
	for i, t := range inputs {
		if !t.IsScalar() {
			return models.SignalType{}, fmt.Errorf("mux block %s: input %d must be scalar, got %s", b.Name, i+1, t)
		}
		base = promoteBase(base, t.Base)
	}
	return models.Vector(base, m.InputCount(b)), nil
}

func (m *muxModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	n := m.InputCount(b)
	out := models.NewValue(models.Vector(models.BaseDouble, n))
	for i := 0; i < n; i++ {
		out.Data[i] = inputOrZero(in, i, models.ScalarDouble()).Scalar()
	}
	return out, nil
}

func (m *muxModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	return emitElementwise(ctx.Output, func(i int) string {
		return ctx.Input(i).Elem(0)
	}), nil
}

// demux splits a vector into scalar outputs; output port i selects element
// i. The signals member stays a vector; consumers index into it by their
// source port, so the per-port output type is scalar.

type demuxModule struct{ base }

func (m *demuxModule) InputCount(b *models.Block) int { return 1 }

func (m *demuxModule) OutputCount(b *models.Block) int {
	return b.IntParam("outputs", 2)
}

func (m *demuxModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	if len(inputs) == 0 || inputs[0].Kind != models.ShapeVector {
		return models.SignalType{}, fmt.Errorf("demux block %s requires a vector input", b.Name)
	}
	return inputs[0], nil
}

func (m *demuxModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	return inputOrZero(in, 0, models.Vector(models.BaseDouble, m.OutputCount(b))).Clone(), nil
}

func (m *demuxModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	return emitElementwise(ctx.Output, func(i int) string {
		return ctx.Input(0).Elem(i)
	}), nil
}

// magnitude computes the 2-norm of a vector.

type magnitudeModule struct{ base }

func (m *magnitudeModule) InputCount(b *models.Block) int { return 1 }

func (m *magnitudeModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	if len(inputs) == 0 || inputs[0].Kind != models.ShapeVector {
		return models.SignalType{}, fmt.Errorf("magnitude block %s requires a vector input", b.Name)
	}
	return models.Scalar(models.BaseDouble), nil
}

func (m *magnitudeModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	input := inputOrZero(in, 0, models.Vector(models.BaseDouble, 1))
	acc := 0.0
	for _, v := range input.Data {
		acc += v * v
	}
	return models.ScalarValue(math.Sqrt(acc)), nil
}

func (m *magnitudeModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	in := ctx.Input(0)
	terms := make([]string, in.Type.ElementCount())
	for i := range terms {
		terms[i] = fmt.Sprintf("%s * %s", in.Elem(i), in.Elem(i))
	}
	return fmt.Sprintf("%s = sqrt(%s);", ctx.Output.Expr, strings.Join(terms, " + ")), nil
}

// cross_product computes the cross product of two 3-vectors.

type crossProductModule struct{ base }

func (m *crossProductModule) InputCount(b *models.Block) int { return 2 }

func (m *crossProductModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	if len(inputs) < 2 {
		return models.SignalType{}, fmt.Errorf("cross_product block %s requires two inputs", b.Name)
	}
	for i, t := range inputs[:2] {
		if t.Kind != models.ShapeVector || t.Cols != 3 {
			return models.SignalType{}, fmt.Errorf("cross_product block %s: input %d must be a 3-vector, got %s", b.Name, i+1, t)
		}
	}
	return models.Vector(models.BaseDouble, 3), nil
}

func (m *crossProductModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	a := inputOrZero(in, 0, models.Vector(models.BaseDouble, 3))
	c := inputOrZero(in, 1, models.Vector(models.BaseDouble, 3))
	if len(a.Data) < 3 || len(c.Data) < 3 {
		return nil, fmt.Errorf("cross_product block %s: inputs must be 3-vectors", b.Name)
	}
	return models.VectorValue(
		a.Data[1]*c.Data[2]-a.Data[2]*c.Data[1],
		a.Data[2]*c.Data[0]-a.Data[0]*c.Data[2],
		a.Data[0]*c.Data[1]-a.Data[1]*c.Data[0],
	), nil
}

func (m *crossProductModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	a, c := ctx.Input(0), ctx.Input(1)
	idx := [3][2]int{{1, 2}, {2, 0}, {0, 1}}
	return emitElementwise(ctx.Output, func(i int) string {
		j, k := idx[i][0], idx[i][1]
		return fmt.Sprintf("%s * %s - %s * %s", a.Elem(j), c.Elem(k), a.Elem(k), c.Elem(j))
	}), nil
}

// dot_product computes the inner product of two equal-length vectors.

type dotProductModule struct{ base }

func (m *dotProductModule) InputCount(b *models.Block) int { return 2 }

func (m *dotProductModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	if len(inputs) < 2 {
		return models.SignalType{}, fmt.Errorf("dot_product block %s requires two inputs", b.Name)
	}
	a, c := inputs[0], inputs[1]
	if a.Kind != models.ShapeVector || c.Kind != models.ShapeVector || a.Cols != c.Cols {
		return models.SignalType{}, fmt.Errorf("dot_product block %s: inputs must be equal-length vectors, got %s and %s", b.Name, a, c)
	}
	return models.Scalar(models.BaseDouble), nil
}

func (m *dotProductModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	a := inputOrZero(in, 0, models.Vector(models.BaseDouble, 1))
	c := inputOrZero(in, 1, a.Type)
	if len(a.Data) != len(c.Data) {
		return nil, fmt.Errorf("dot_product block %s: length mismatch", b.Name)
	}
	acc := 0.0
	for i := range a.Data {
		acc += a.Data[i] * c.Data[i]
	}
	return models.ScalarValue(acc), nil
}

func (m *dotProductModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	a, c := ctx.Input(0), ctx.Input(1)
	terms := make([]string, a.Type.ElementCount())
	for i := range terms {
		terms[i] = fmt.Sprintf("%s * %s", a.Elem(i), c.Elem(i))
	}
	return fmt.Sprintf("%s = %s;", ctx.Output.Expr, strings.Join(terms, " + ")), nil
}

// transpose flips a matrix; a vector is treated as a column and becomes a
// one-row matrix. Scalars pass through.

type transposeModule struct{ base }

func (m *transposeModule) InputCount(b *models.Block) int { return 1 }

func (m *transposeModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	if len(inputs) == 0 {
		return models.SignalType{}, fmt.Errorf("transpose block %s requires an input", b.Name)
	}
	t := inputs[0]
	switch t.Kind {
	case models.ShapeMatrix:
		return models.Matrix(t.Base, t.Cols, t.Rows), nil
	case models.ShapeVector:
		return models.Matrix(t.Base, 1, t.Cols), nil
	default:
		return t, nil
	}
}

func (m *transposeModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	input := inputOrZero(in, 0, models.ScalarDouble())
	outType, err := m.InferOutputType(b, []models.SignalType{input.Type})
	if err != nil {
		return nil, err
	}
	out := models.NewValue(outType)
	if input.Type.Kind == models.ShapeMatrix {
		rows, cols := input.Type.Rows, input.Type.Cols
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				out.Data[c*rows+r] = input.Data[r*cols+c]
			}
		}
	} else {
		copy(out.Data, input.Data)
	}
	return out, nil
}

func (m *transposeModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	in := ctx.Input(0)
	if in.Type.Kind != models.ShapeMatrix {
		return emitElementwise(ctx.Output, func(i int) string {
			return in.Elem(i)
		}), nil
	}
	rows, cols := in.Type.Rows, in.Type.Cols
	return emitElementwise(ctx.Output, func(i int) string {
		// Output element (r, c) reads input element (c, r).
		r, c := i/rows, i%rows
		return in.Elem(c*cols + r)
	}), nil
}

// matrix_multiply computes matrix-matrix and matrix-vector products.

type matrixMultiplyModule struct{ base }

func (m *matrixMultiplyModule) InputCount(b *models.Block) int { return 2 }

func (m *matrixMultiplyModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	if len(inputs) < 2 {
		return models.SignalType{}, fmt.Errorf("matrix_multiply block %s requires two inputs", b.Name)
	}
	a, c := inputs[0], inputs[1]
	if a.Kind != models.ShapeMatrix {
		return models.SignalType{}, fmt.Errorf("matrix_multiply block %s: first input must be a matrix, got %s", b.Name, a)
	}
	switch c.Kind {
	case models.ShapeMatrix:
		if a.Cols != c.Rows {
			return models.SignalType{}, fmt.Errorf("matrix_multiply block %s: inner dimensions disagree (%s times %s)", b.Name, a, c)
		}
		return models.Matrix(models.BaseDouble, a.Rows, c.Cols), nil
	case models.ShapeVector:
		if a.Cols != c.Cols {
			return models.SignalType{}, fmt.Errorf("matrix_multiply block %s: inner dimensions disagree (%s times %s)", b.Name, a, c)
		}
		return models.Vector(models.BaseDouble, a.Rows), nil
	default:
		return models.SignalType{}, fmt.Errorf("matrix_multiply block %s: second input must be a matrix or vector, got %s", b.Name, c)
	}
}

func (m *matrixMultiplyModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	a := inputOrZero(in, 0, models.Matrix(models.BaseDouble, 1, 1))
	c := inputOrZero(in, 1, models.Vector(models.BaseDouble, 1))
	outType, err := m.InferOutputType(b, []models.SignalType{a.Type, c.Type})
	if err != nil {
		return nil, err
	}
	out := models.NewValue(outType)
	inner := a.Type.Cols
	outCols := 1
	if c.Type.Kind == models.ShapeMatrix {
		outCols = c.Type.Cols
	}
	for r := 0; r < a.Type.Rows; r++ {
		for j := 0; j < outCols; j++ {
			acc := 0.0
			for k := 0; k < inner; k++ {
				acc += a.Data[r*inner+k] * c.Data[k*outCols+j]
			}
			out.Data[r*outCols+j] = acc
		}
	}
	return out, nil
}

func (m *matrixMultiplyModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	a, c := ctx.Input(0), ctx.Input(1)
	inner := a.Type.Cols
	outCols := 1
	if c.Type.Kind == models.ShapeMatrix {
		outCols = c.Type.Cols
	}
	return emitElementwise(ctx.Output, func(i int) string {
		r, j := i/outCols, i%outCols
		terms := make([]string, inner)
		for k := 0; k < inner; k++ {
			terms[k] = fmt.Sprintf("%s * %s", a.Elem(r*inner+k), c.Elem(k*outCols+j))
		}
		return strings.Join(terms, " + ")
	}), nil
}
