package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockflow/internal/compile"
	"blockflow/internal/models"
)

func newEngine(t *testing.T, m *models.Model) *Engine {
	t.Helper()
	c := compile.Compile(m)
	require.False(t, c.HasErrors(), c.Diagnostics.String())
	e, err := NewEngine(c)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func firstOrderModel(dt float64) *models.Model {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("u", models.KindInputPort, "u"))
	plant := models.NewBlock("plant", models.KindTransferFunction, "plant")
	plant.SetParameter("numerator", []interface{}{1.0})
	plant.SetParameter("denominator", []interface{}{1.0, 1.0})
	sheet.AddBlock(plant)
	sheet.AddBlock(models.NewBlock("y", models.KindOutputPort, "y"))
	sheet.Connect("u", 0, "plant", 0)
	sheet.Connect("plant", 0, "y", 0)

	m := models.NewModel("first_order")
	m.Timestep = dt
	m.AddSheet(sheet)
	return m
}

func TestEngineAlgebraicChain(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("src", models.KindSource, "src").SetParameter("value", 3.0))
	sheet.AddBlock(models.NewBlock("g", models.KindScale, "g").SetParameter("gain", -2.0))
	sheet.AddBlock(models.NewBlock("y", models.KindOutputPort, "y"))
	sheet.Connect("src", 0, "g", 0)
	sheet.Connect("g", 0, "y", 0)
	m := models.NewModel("chain")
	m.AddSheet(sheet)

	e := newEngine(t, m)
	require.NoError(t, e.Step())

	out := e.Outputs()
	require.Contains(t, out, "y")
	assert.Equal(t, -6.0, out["y"].Scalar())
	assert.Equal(t, 1, e.StepCount())
	assert.InDelta(t, 0.01, e.Time(), 1e-15)
}

func TestEngineFirstOrderStepResponse(t *testing.T) {
	// RK4 on y' = u - y with a unit step: y(t) = 1 - exp(-t). RK4's local
	// truncation error at dt=0.01 is far below the asserted tolerance.
	e := newEngine(t, firstOrderModel(0.01))
	require.NoError(t, e.SetInputScalar("u", 1.0))
	require.NoError(t, e.Run(500))

	assert.Equal(t, 500, e.StepCount())
	assert.InDelta(t, 5.0, e.Time(), 1e-9)

	want := 1.0 - math.Exp(-5.0)
	got := e.Outputs()["y"].Scalar()
	assert.InDelta(t, want, got, 1e-6)
}

func TestEngineRunUntil(t *testing.T) {
	e := newEngine(t, firstOrderModel(0.01))
	require.NoError(t, e.SetInputScalar("u", 1.0))
	require.NoError(t, e.RunUntil(1.0))

	assert.Equal(t, 100, e.StepCount())
	want := 1.0 - math.Exp(-1.0)
	assert.InDelta(t, want, e.Outputs()["y"].Scalar(), 1e-6)
}

func TestEngineSetInputChecksShape(t *testing.T) {
	e := newEngine(t, firstOrderModel(0.01))
	err := e.SetInput("u", models.VectorValue(1, 2))
	assert.Error(t, err)
	assert.Error(t, e.SetInputScalar("nope", 1.0))
}

func TestEngineSignalLookup(t *testing.T) {
	e := newEngine(t, firstOrderModel(0.01))
	require.NoError(t, e.SetInputScalar("u", 2.0))
	require.NoError(t, e.Step())

	v, ok := e.Signal("plant")
	require.True(t, ok)
	assert.Greater(t, v.Scalar(), 0.0)

	_, ok = e.Signal("missing")
	assert.False(t, ok)
}

func TestEngineRejectsBrokenModels(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("sum", models.KindSum, "sum"))
	sheet.AddBlock(models.NewBlock("g", models.KindScale, "g"))
	sheet.Connect("sum", 0, "g", 0)
	sheet.Connect("g", 0, "sum", 0)
	m := models.NewModel("loop")
	m.AddSheet(sheet)

	c := compile.Compile(m)
	require.True(t, c.HasErrors())
	_, err := NewEngine(c)
	assert.Error(t, err)
}

// enableModel gates a constant-driven integrator behind an enable switch so
// tests can freeze and resume its state.
func enableModel() *models.Model {
	inner := models.NewSheet("inner", "main")
	inner.AddBlock(models.NewBlock("drive", models.KindSource, "drive").SetParameter("value", 1.0))
	tf := models.NewBlock("tf", models.KindTransferFunction, "tf")
	tf.SetParameter("numerator", []interface{}{1.0})
	tf.SetParameter("denominator", []interface{}{1.0, 0.0})
	inner.AddBlock(tf)
	inner.AddBlock(models.NewBlock("iout", models.KindOutputPort, "iout").SetParameter("portOrder", 0))
	inner.Connect("drive", 0, "tf", 0)
	inner.Connect("tf", 0, "iout", 0)

	sub := models.NewBlock("sub", models.KindSubsystem, "Gated")
	sub.SetParameter("enablePort", true)
	sub.Sheets = []*models.Sheet{inner}

	root := models.NewSheet("root", "top")
	root.AddBlock(models.NewBlock("en", models.KindInputPort, "en"))
	root.AddBlock(sub)
	root.AddBlock(models.NewBlock("y", models.KindOutputPort, "y"))
	root.AddConnection(models.NewConnection("ew", "en", 0, "sub", models.EnablePort))
	root.Connect("sub", 0, "y", 0)

	m := models.NewModel("gated")
	m.Timestep = 0.01
	m.AddSheet(root)
	return m
}

func TestEngineEnableFreezesState(t *testing.T) {
	// The gated block integrates a unit constant, so its output tracks the
	// time spent enabled.
	e := newEngine(t, enableModel())

	require.NoError(t, e.SetInputScalar("en", 1.0))
	require.NoError(t, e.Run(100))
	atSecond := e.Outputs()["y"].Scalar()
	assert.InDelta(t, 1.0, atSecond, 1e-6)

	// Disabled: state and output hold.
	require.NoError(t, e.SetInputScalar("en", 0.0))
	require.NoError(t, e.Run(100))
	assert.InDelta(t, atSecond, e.Outputs()["y"].Scalar(), 1e-12)

	// Re-enabled: integration resumes from the frozen state.
	require.NoError(t, e.SetInputScalar("en", 1.0))
	require.NoError(t, e.Run(100))
	assert.InDelta(t, 2.0, e.Outputs()["y"].Scalar(), 1e-6)
}

// nestedEnableModel wraps the gated integrator in a second enable layer. The
// outer subsystem contains nothing but the inner one; e1 gates the outer
// scope, e2 is routed through the outer boundary to gate the inner scope.
func nestedEnableModel() *models.Model {
	leaf := models.NewSheet("leaf", "main")
	leaf.AddBlock(models.NewBlock("drive", models.KindSource, "drive").SetParameter("value", 1.0))
	tf := models.NewBlock("tf", models.KindTransferFunction, "tf")
	tf.SetParameter("numerator", []interface{}{1.0})
	tf.SetParameter("denominator", []interface{}{1.0, 0.0})
	leaf.AddBlock(tf)
	leaf.AddBlock(models.NewBlock("iout", models.KindOutputPort, "iout").SetParameter("portOrder", 0))
	leaf.Connect("drive", 0, "tf", 0)
	leaf.Connect("tf", 0, "iout", 0)

	child := models.NewBlock("child", models.KindSubsystem, "Child")
	child.SetParameter("enablePort", true)
	child.Sheets = []*models.Sheet{leaf}

	mid := models.NewSheet("mid", "main")
	mid.AddBlock(models.NewBlock("e2p", models.KindInputPort, "e2p").SetParameter("portOrder", 0))
	mid.AddBlock(child)
	mid.AddBlock(models.NewBlock("pout", models.KindOutputPort, "pout").SetParameter("portOrder", 0))
	mid.AddConnection(models.NewConnection("cw", "e2p", 0, "child", models.EnablePort))
	mid.Connect("child", 0, "pout", 0)

	parent := models.NewBlock("parent", models.KindSubsystem, "Parent")
	parent.SetParameter("enablePort", true)
	parent.Sheets = []*models.Sheet{mid}

	root := models.NewSheet("root", "top")
	root.AddBlock(models.NewBlock("e1", models.KindInputPort, "e1"))
	root.AddBlock(models.NewBlock("e2", models.KindInputPort, "e2"))
	root.AddBlock(parent)
	root.AddBlock(models.NewBlock("y", models.KindOutputPort, "y"))
	root.AddConnection(models.NewConnection("pw", "e1", 0, "parent", models.EnablePort))
	root.Connect("e2", 0, "parent", 0)
	root.Connect("parent", 0, "y", 0)

	m := models.NewModel("nested_gated")
	m.Timestep = 0.01
	m.AddSheet(root)
	return m
}

func TestEngineNestedEnableIsConjunctive(t *testing.T) {
	// A block runs only while every governing scope up the chain is
	// enabled, so dropping the outer enable freezes the inner integrator
	// no matter what the inner enable says.
	e := newEngine(t, nestedEnableModel())

	require.NoError(t, e.SetInputScalar("e1", 1.0))
	require.NoError(t, e.SetInputScalar("e2", 1.0))
	require.NoError(t, e.Run(100))
	atSecond := e.Outputs()["y"].Scalar()
	assert.InDelta(t, 1.0, atSecond, 1e-6)

	// Outer disabled, inner still asserted: state holds.
	require.NoError(t, e.SetInputScalar("e1", 0.0))
	require.NoError(t, e.Run(100))
	assert.InDelta(t, atSecond, e.Outputs()["y"].Scalar(), 1e-12)

	// Outer back on: integration resumes.
	require.NoError(t, e.SetInputScalar("e1", 1.0))
	require.NoError(t, e.Run(100))
	assert.InDelta(t, 2.0, e.Outputs()["y"].Scalar(), 1e-6)

	// Inner disabled alone freezes too.
	require.NoError(t, e.SetInputScalar("e2", 0.0))
	require.NoError(t, e.Run(100))
	assert.InDelta(t, 2.0, e.Outputs()["y"].Scalar(), 1e-6)
}
