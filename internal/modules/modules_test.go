package modules

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockflow/internal/expression"
	"blockflow/internal/models"
)

func newEnv(t *testing.T) *EvalEnv {
	t.Helper()
	eval := expression.NewEvaluator()
	t.Cleanup(eval.Close)
	return &EvalEnv{Expr: eval}
}

func evalBlock(t *testing.T, b *models.Block, in ...*models.Value) *models.Value {
	t.Helper()
	m, ok := ForBlock(b)
	require.True(t, ok, "no module for kind %s", b.Kind)
	out, err := m.Evaluate(b, in, nil, newEnv(t))
	require.NoError(t, err)
	return out
}

func TestRegistryCoversAllRuntimeKinds(t *testing.T) {
	for _, kind := range models.AllKinds {
		if kind.IsStructural() {
			continue
		}
		_, ok := For(kind)
		assert.True(t, ok, "kind %s has no module", kind)
	}
	_, ok := For(models.KindSubsystem)
	assert.False(t, ok, "structural kinds have no runtime behavior")
}

func TestSum(t *testing.T) {
	b := models.NewBlock("s", models.KindSum, "sum")
	b.SetParameter("signs", "++-")

	m, _ := ForBlock(b)
	assert.Equal(t, 3, m.InputCount(b))

	out := evalBlock(t, b,
		models.ScalarValue(5), models.ScalarValue(3), models.ScalarValue(2))
	assert.Equal(t, 6.0, out.Scalar())

	out = evalBlock(t, b,
		models.VectorValue(1, 2), models.VectorValue(10, 20), models.VectorValue(100, 200))
	assert.Equal(t, []float64{-89, -178}, out.Data)

	bad := models.NewBlock("s2", models.KindSum, "sum2")
	bad.SetParameter("signs", "+x")
	assert.NotEmpty(t, m.Validate(bad))
}

func TestSumRejectsShapeMismatch(t *testing.T) {
	b := models.NewBlock("s", models.KindSum, "sum")
	m, _ := ForBlock(b)
	_, err := m.InferOutputType(b, []models.SignalType{
		models.Vector(models.BaseDouble, 3),
		models.Vector(models.BaseDouble, 4),
	})
	assert.Error(t, err)
}

func TestMultiplyBroadcastsScalars(t *testing.T) {
	b := models.NewBlock("m", models.KindMultiply, "mul")
	b.SetParameter("operations", "**/")

	out := evalBlock(t, b,
		models.ScalarValue(2), models.VectorValue(3, 6), models.ScalarValue(3))
	assert.Equal(t, []float64{2, 4}, out.Data)

	m, _ := ForBlock(b)
	typ, err := m.InferOutputType(b, []models.SignalType{
		models.ScalarDouble(),
		models.Vector(models.BaseDouble, 2),
		models.ScalarDouble(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.Vector(models.BaseDouble, 2), typ)
}

func TestScaleAndUnaryOps(t *testing.T) {
	g := models.NewBlock("g", models.KindScale, "gain")
	g.SetParameter("gain", -2.0)
	assert.Equal(t, []float64{-2, -4}, evalBlock(t, g, models.VectorValue(1, 2)).Data)

	neg := models.NewBlock("n", models.KindUnaryMinus, "neg")
	assert.Equal(t, 3.0, evalBlock(t, neg, models.ScalarValue(-3)).Scalar())

	abs := models.NewBlock("a", models.KindAbsoluteValue, "abs")
	assert.Equal(t, []float64{1, 2}, evalBlock(t, abs, models.VectorValue(-1, 2)).Data)
}

func TestTrig(t *testing.T) {
	b := models.NewBlock("t", models.KindTrig, "theta")
	b.SetParameter("function", "sin")
	assert.InDelta(t, 1.0, evalBlock(t, b, models.ScalarValue(math.Pi/2)).Scalar(), 1e-12)

	b.SetParameter("function", "atan2")
	m, _ := ForBlock(b)
	assert.Equal(t, 2, m.InputCount(b))
	out := evalBlock(t, b, models.ScalarValue(1), models.ScalarValue(1))
	assert.InDelta(t, math.Pi/4, out.Scalar(), 1e-12)

	b.SetParameter("function", "cot")
	assert.NotEmpty(t, m.Validate(b), "unsupported function is a parameter error")
}

func TestConditionAndIf(t *testing.T) {
	c := models.NewBlock("c", models.KindCondition, "cmp")
	c.SetParameter("operator", ">=")
	assert.Equal(t, 1.0, evalBlock(t, c, models.ScalarValue(2), models.ScalarValue(2)).Scalar())
	assert.Equal(t, 0.0, evalBlock(t, c, models.ScalarValue(1), models.ScalarValue(2)).Scalar())

	sel := models.NewBlock("i", models.KindIf, "select")
	assert.Equal(t, 10.0, evalBlock(t, sel,
		models.ScalarValue(1), models.ScalarValue(10), models.ScalarValue(20)).Scalar())
	assert.Equal(t, 20.0, evalBlock(t, sel,
		models.ScalarValue(0), models.ScalarValue(10), models.ScalarValue(20)).Scalar())
}

func TestMuxDemux(t *testing.T) {
	mux := models.NewBlock("m", models.KindMux, "bundle")
	mux.SetParameter("inputs", 3)
	out := evalBlock(t, mux,
		models.ScalarValue(1), models.ScalarValue(2), models.ScalarValue(3))
	assert.Equal(t, models.Vector(models.BaseDouble, 3), out.Type)
	assert.Equal(t, []float64{1, 2, 3}, out.Data)

	demux := models.NewBlock("d", models.KindDemux, "split")
	demux.SetParameter("outputs", 3)
	m, _ := ForBlock(demux)
	assert.Equal(t, 3, m.OutputCount(demux))
	split := evalBlock(t, demux, models.VectorValue(4, 5, 6))
	assert.Equal(t, []float64{4, 5, 6}, split.Data, "demux stores the whole vector")
}

func TestVectorOps(t *testing.T) {
	mag := models.NewBlock("m", models.KindMagnitude, "norm")
	assert.InDelta(t, 5.0, evalBlock(t, mag, models.VectorValue(3, 4)).Scalar(), 1e-12)

	dot := models.NewBlock("d", models.KindDotProduct, "dot")
	assert.Equal(t, 11.0, evalBlock(t, dot,
		models.VectorValue(1, 2), models.VectorValue(3, 4)).Scalar())

	cross := models.NewBlock("c", models.KindCrossProduct, "cross")
	out := evalBlock(t, cross, models.VectorValue(1, 0, 0), models.VectorValue(0, 1, 0))
	assert.Equal(t, []float64{0, 0, 1}, out.Data)
}

func TestMatrixOps(t *testing.T) {
	tr := models.NewBlock("t", models.KindTranspose, "tr")
	m, _ := ForBlock(tr)
	in := &models.Value{
		Type: models.Matrix(models.BaseDouble, 2, 3),
		Data: []float64{1, 2, 3, 4, 5, 6},
	}
	typ, err := m.InferOutputType(tr, []models.SignalType{in.Type})
	require.NoError(t, err)
	assert.Equal(t, models.Matrix(models.BaseDouble, 3, 2), typ)
	out := evalBlock(t, tr, in)
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, out.Data)

	mul := models.NewBlock("mm", models.KindMatrixMultiply, "mm")
	mmod, _ := ForBlock(mul)
	a := &models.Value{Type: models.Matrix(models.BaseDouble, 2, 2), Data: []float64{1, 2, 3, 4}}
	v := models.VectorValue(5, 6)
	typ, err = mmod.InferOutputType(mul, []models.SignalType{a.Type, v.Type})
	require.NoError(t, err)
	assert.Equal(t, models.Vector(models.BaseDouble, 2), typ)
	out = evalBlock(t, mul, a, v)
	assert.Equal(t, []float64{17, 39}, out.Data)

	_, err = mmod.InferOutputType(mul, []models.SignalType{
		models.Matrix(models.BaseDouble, 2, 3),
		models.Matrix(models.BaseDouble, 2, 3),
	})
	assert.Error(t, err, "inner dimensions must agree")
}

func TestLookup1D(t *testing.T) {
	b := models.NewBlock("l", models.KindLookup1D, "table")
	b.SetParameter("inputValues", []interface{}{0.0, 1.0, 2.0})
	b.SetParameter("outputValues", []interface{}{0.0, 10.0, 40.0})

	assert.Equal(t, 5.0, evalBlock(t, b, models.ScalarValue(0.5)).Scalar())
	assert.Equal(t, 0.0, evalBlock(t, b, models.ScalarValue(-1)).Scalar(), "clamped below")
	assert.Equal(t, 40.0, evalBlock(t, b, models.ScalarValue(9)).Scalar(), "clamped above")

	m, _ := ForBlock(b)
	bad := models.NewBlock("l2", models.KindLookup1D, "bad")
	bad.SetParameter("inputValues", []interface{}{0.0, 2.0, 1.0})
	bad.SetParameter("outputValues", []interface{}{0.0, 1.0, 2.0})
	assert.NotEmpty(t, m.Validate(bad), "breakpoints must be increasing")
}

func TestLookup2D(t *testing.T) {
	b := models.NewBlock("l", models.KindLookup2D, "surface")
	b.SetParameter("rowValues", []interface{}{0.0, 1.0})
	b.SetParameter("colValues", []interface{}{0.0, 1.0})
	b.SetParameter("table", []interface{}{
		[]interface{}{0.0, 1.0},
		[]interface{}{2.0, 3.0},
	})

	assert.Equal(t, 0.0, evalBlock(t, b, models.ScalarValue(0), models.ScalarValue(0)).Scalar())
	assert.Equal(t, 3.0, evalBlock(t, b, models.ScalarValue(1), models.ScalarValue(1)).Scalar())
	assert.InDelta(t, 1.5, evalBlock(t, b, models.ScalarValue(0.5), models.ScalarValue(0.5)).Scalar(), 1e-12)
}

func TestSourceAndPorts(t *testing.T) {
	src := models.NewBlock("s", models.KindSource, "three")
	src.SetParameter("dataType", "double[3]")
	src.SetParameter("value", []interface{}{1.0, 2.0, 3.0})
	assert.Equal(t, []float64{1, 2, 3}, evalBlock(t, src).Data)

	// A scalar value broadcasts across the declared shape.
	src.SetParameter("value", 7.0)
	assert.Equal(t, []float64{7, 7, 7}, evalBlock(t, src).Data)

	out := models.NewBlock("o", models.KindOutputPort, "y")
	assert.Equal(t, 4.0, evalBlock(t, out, models.ScalarValue(4)).Scalar())

	in := models.NewBlock("i", models.KindInputPort, "u")
	in.SetParameter("dataType", "double[2]")
	v := evalBlock(t, in)
	assert.Equal(t, []float64{0, 0}, v.Data, "unseeded input ports read zero")

	m, _ := ForBlock(in)
	assert.False(t, m.DirectFeedthrough(in))
}

func TestEvaluateBlock(t *testing.T) {
	b := models.NewBlock("e", models.KindEvaluate, "expr")
	b.SetParameter("expression", "in1 * 2 + sin(in2)")
	b.SetParameter("inputCount", 2)

	out := evalBlock(t, b, models.ScalarValue(3), models.ScalarValue(0))
	assert.InDelta(t, 6.0, out.Scalar(), 1e-12)

	m, _ := ForBlock(b)
	assert.Equal(t, 2, m.InputCount(b))

	// An invalid expression is a warning and the block reads as zero.
	bad := models.NewBlock("e2", models.KindEvaluate, "broken")
	bad.SetParameter("expression", "in1 +")
	bad.SetParameter("inputCount", 1)
	assert.NotEmpty(t, m.Validate(bad))
	out, err := m.Evaluate(bad, []*models.Value{models.ScalarValue(1)}, nil, newEnv(t))
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Scalar())
}
