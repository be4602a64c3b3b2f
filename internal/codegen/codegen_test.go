package codegen

import (
	"regexp"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockflow/internal/compile"
	"blockflow/internal/models"
)

func generate(t *testing.T, m *models.Model) *Output {
	t.Helper()
	c := compile.Compile(m)
	require.False(t, c.HasErrors(), c.Diagnostics.String())
	out, err := Generate(c)
	require.NoError(t, err)
	return out
}

func TestGenerateAlgebraicModel(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	src := models.NewBlock("src", models.KindSource, "src")
	src.SetParameter("dataType", "double")
	src.SetParameter("value", 3.0)
	sheet.AddBlock(src)
	sheet.AddBlock(models.NewBlock("g", models.KindScale, "g").SetParameter("gain", -2.0))
	sheet.AddBlock(models.NewBlock("y", models.KindOutputPort, "y"))
	sheet.Connect("src", 0, "g", 0)
	sheet.Connect("g", 0, "y", 0)
	m := models.NewModel("gain_demo")
	m.AddSheet(sheet)

	out := generate(t, m)
	assert.Equal(t, "gain_demo", out.Name)

	gold := goldie.New(t)
	gold.Assert(t, "gain_demo", []byte(out.Source))
}

func TestGenerateStatefulModel(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("u", models.KindInputPort, "u").SetParameter("dataType", "double"))
	plant := models.NewBlock("plant", models.KindTransferFunction, "plant")
	plant.SetParameter("numerator", []interface{}{1.0})
	plant.SetParameter("denominator", []interface{}{1.0, 1.0})
	sheet.AddBlock(plant)
	sheet.AddBlock(models.NewBlock("y", models.KindOutputPort, "y"))
	sheet.Connect("u", 0, "plant", 0)
	sheet.Connect("plant", 0, "y", 0)
	m := models.NewModel("first order")
	m.AddSheet(sheet)

	out := generate(t, m)
	assert.Equal(t, "first_order", out.Name, "model names are sanitized for C")

	src := out.Source
	assert.Contains(t, src, "double u;")
	assert.Contains(t, src, "double plant[1];")
	assert.Contains(t, src, "static void first_order_derivatives(first_order_model *model, first_order_states *deriv)")
	assert.Contains(t, src, "deriv->plant[0] = (1.0 * model->inputs.u - 1.0 * model->states.plant[0]) / 1.0;")
	assert.Contains(t, src, "model->signals.plant = model->states.plant[0];")
	assert.Contains(t, src, "static void first_order_states_axpy")

	// Classical RK4: four derivative evaluations, each after a fresh
	// algebraic sweep, then the weighted combine.
	assert.Equal(t, 4, strings.Count(src, "first_order_derivatives(model, &k"))
	assert.Equal(t, 5, strings.Count(src, "first_order_algebraic(model);"))
	assert.Contains(t, src, "xb[i] + model->dt / 6.0 * (d1[i] + 2.0 * d2[i] + 2.0 * d3[i] + d4[i])")
}

func TestGenerateEnableGuards(t *testing.T) {
	inner := models.NewSheet("inner", "main")
	inner.AddBlock(models.NewBlock("drive", models.KindSource, "drive").
		SetParameter("dataType", "double").SetParameter("value", 1.0))
	tf := models.NewBlock("tf", models.KindTransferFunction, "tf")
	tf.SetParameter("denominator", []interface{}{1.0, 0.0})
	inner.AddBlock(tf)
	inner.AddBlock(models.NewBlock("iout", models.KindOutputPort, "iout").SetParameter("portOrder", 0))
	inner.Connect("drive", 0, "tf", 0)
	inner.Connect("tf", 0, "iout", 0)

	sub := models.NewBlock("sub", models.KindSubsystem, "Gated")
	sub.SetParameter("enablePort", true)
	sub.Sheets = []*models.Sheet{inner}

	root := models.NewSheet("root", "top")
	root.AddBlock(models.NewBlock("en", models.KindInputPort, "en").SetParameter("dataType", "double"))
	root.AddBlock(sub)
	root.AddBlock(models.NewBlock("y", models.KindOutputPort, "y"))
	root.AddConnection(models.NewConnection("ew", "en", 0, "sub", models.EnablePort))
	root.Connect("sub", 0, "y", 0)
	m := models.NewModel("gated")
	m.AddSheet(root)

	out := generate(t, m)
	src := out.Source

	// The flag struct carries one member per enable-declaring subsystem,
	// initialized enabled.
	assert.Contains(t, src, "int Gated;")
	assert.Contains(t, src, "model->enable_states.Gated = 1;")

	// The flag is computed from the driver, and gated statements plus the
	// derivative body test it.
	assert.Contains(t, src, "model->enable_states.Gated = (model->inputs.en != 0.0);")
	assert.Contains(t, src, "if (model->enable_states.Gated) {")
	assert.Contains(t, src, "deriv->Gated_tf[0]")

	// The root output port stays unguarded so it presents the frozen value.
	assert.Contains(t, src, "    model->outputs.y = model->signals.Gated_tf;")
}

func TestGenerateNestedEnableFlags(t *testing.T) {
	// The outer subsystem governs no runtime block of its own; its only
	// member is the inner enable subsystem.
	leaf := models.NewSheet("leaf", "main")
	leaf.AddBlock(models.NewBlock("drive", models.KindSource, "drive").
		SetParameter("dataType", "double").SetParameter("value", 1.0))
	tf := models.NewBlock("tf", models.KindTransferFunction, "tf")
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
	root.AddBlock(models.NewBlock("e1", models.KindInputPort, "e1").SetParameter("dataType", "double"))
	root.AddBlock(models.NewBlock("e2", models.KindInputPort, "e2").SetParameter("dataType", "double"))
	root.AddBlock(parent)
	root.AddBlock(models.NewBlock("y", models.KindOutputPort, "y"))
	root.AddConnection(models.NewConnection("pw", "e1", 0, "parent", models.EnablePort))
	root.Connect("e2", 0, "parent", 0)
	root.Connect("parent", 0, "y", 0)
	m := models.NewModel("nested_gated")
	m.AddSheet(root)

	src := generate(t, m).Source

	// Both scopes get a declared, initialized flag.
	assert.Contains(t, src, "int Parent;")
	assert.Contains(t, src, "int Parent_Child;")
	assert.Contains(t, src, "model->enable_states.Parent = 1;")
	assert.Contains(t, src, "model->enable_states.Parent_Child = 1;")

	// The inner flag folds the outer one in, so each guard tests one member.
	assert.Contains(t, src, "model->enable_states.Parent = (model->inputs.e1 != 0.0);")
	assert.Contains(t, src, "model->enable_states.Parent_Child = model->enable_states.Parent && (model->inputs.e2 != 0.0);")
	assert.Contains(t, src, "if (model->enable_states.Parent_Child) {")

	// Every flag the body reads must be a member the struct declares.
	for _, match := range regexp.MustCompile(`enable_states\.(\w+)`).FindAllStringSubmatch(src, -1) {
		assert.Contains(t, src, "int "+match[1]+";", "flag %s is referenced but never declared", match[1])
	}
}

func TestGenerateLookupTables(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("u", models.KindInputPort, "u").SetParameter("dataType", "double"))
	table := models.NewBlock("lut", models.KindLookup1D, "lut")
	table.SetParameter("inputValues", []interface{}{0.0, 1.0})
	table.SetParameter("outputValues", []interface{}{0.0, 10.0})
	sheet.AddBlock(table)
	sheet.AddBlock(models.NewBlock("y", models.KindOutputPort, "y"))
	sheet.Connect("u", 0, "lut", 0)
	sheet.Connect("lut", 0, "y", 0)
	m := models.NewModel("tables")
	m.AddSheet(sheet)

	src := generate(t, m).Source
	assert.Contains(t, src, "static double blockflow_lookup1d(")
	assert.Contains(t, src, "static const double lut_xs[2] = {0.0, 1.0};")
	assert.Contains(t, src, "static const double lut_ys[2] = {0.0, 10.0};")
	assert.Contains(t, src, "model->signals.lut = blockflow_lookup1d(lut_xs, lut_ys, 2, model->inputs.u);")
	assert.Equal(t, 1, strings.Count(src, "static double blockflow_lookup1d("), "the helper is emitted once")
}

func TestGenerateRejectsBrokenModels(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("sum", models.KindSum, "sum"))
	sheet.AddBlock(models.NewBlock("g", models.KindScale, "g"))
	sheet.Connect("sum", 0, "g", 0)
	sheet.Connect("g", 0, "sum", 0)
	m := models.NewModel("loop")
	m.AddSheet(sheet)

	c := compile.Compile(m)
	require.True(t, c.HasErrors())
	_, err := Generate(c)
	assert.Error(t, err)
}
