package typeprop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockflow/internal/flatten"
	"blockflow/internal/models"
	"blockflow/internal/schedule"
)

func propagateSheet(t *testing.T, sheet *models.Sheet) (*Types, *models.DiagnosticList) {
	t.Helper()
	m := models.NewModel("types")
	m.AddSheet(sheet)
	fm, diags := flatten.Flatten(m, flatten.DefaultOptions())
	require.False(t, diags.HasErrors(), diags.String())
	result, sdiags := schedule.Order(fm)
	require.False(t, sdiags.HasErrors(), sdiags.String())
	return Propagate(fm, result.Order)
}

func vectorSource(id string, n int) *models.Block {
	b := models.NewBlock(id, models.KindSource, id)
	b.SetParameter("dataType", "double["+string(rune('0'+n))+"]")
	b.SetParameter("value", 1.0)
	return b
}

func TestPropagateVectorChain(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(vectorSource("src", 3))
	sheet.AddBlock(models.NewBlock("g", models.KindScale, "g").SetParameter("gain", 2.0))
	sheet.AddBlock(models.NewBlock("mag", models.KindMagnitude, "mag"))
	sheet.Connect("src", 0, "g", 0)
	sheet.Connect("g", 0, "mag", 0)

	types, diags := propagateSheet(t, sheet)
	require.False(t, diags.HasErrors(), diags.String())

	typ, ok := types.BlockType("g")
	require.True(t, ok)
	assert.Equal(t, models.Vector(models.BaseDouble, 3), typ)

	typ, _ = types.BlockType("mag")
	assert.Equal(t, models.ScalarDouble(), typ)
}

func TestPropagateShapeMismatchIsError(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(vectorSource("a", 3))
	sheet.AddBlock(vectorSource("b", 4))
	sheet.AddBlock(models.NewBlock("sum", models.KindSum, "sum"))
	sheet.Connect("a", 0, "sum", 0)
	sheet.Connect("b", 0, "sum", 1)

	types, diags := propagateSheet(t, sheet)
	assert.True(t, diags.HasErrors())
	assert.NotEmpty(t, diags.ByCode(models.CodeTypeMismatch))

	// The offender still resolves, as scalar double, so downstream blocks
	// keep propagating.
	typ, ok := types.BlockType("sum")
	require.True(t, ok)
	assert.Equal(t, models.ScalarDouble(), typ)
}

func TestPropagateUnconnectedInputWarns(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("sum", models.KindSum, "sum"))

	_, diags := propagateSheet(t, sheet)
	assert.False(t, diags.HasErrors())
	assert.Len(t, diags.ByCode(models.CodeMissingInput), 2)
}

func TestPropagateDemuxPortsAreScalar(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(vectorSource("src", 3))
	sheet.AddBlock(models.NewBlock("split", models.KindDemux, "split").SetParameter("outputs", 3))
	sheet.AddBlock(models.NewBlock("g", models.KindScale, "g"))
	sheet.Connect("src", 0, "split", 0)
	sheet.Connect("split", 2, "g", 0)

	types, diags := propagateSheet(t, sheet)
	require.False(t, diags.HasErrors(), diags.String())

	blockType, _ := types.BlockType("split")
	assert.Equal(t, models.Vector(models.BaseDouble, 3), blockType, "the demux block stores the vector")
	assert.Equal(t, models.ScalarDouble(), types.PortType("split", 2))

	gType, _ := types.BlockType("g")
	assert.Equal(t, models.ScalarDouble(), gType)
}

func TestPropagateAcrossBrokenLoopEdge(t *testing.T) {
	// Feedback of a vector signal through a stateful block: the plant is
	// scheduled before the multiply that drives it, so its real type only
	// becomes visible on the second sweep.
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(vectorSource("src", 2))
	sheet.AddBlock(models.NewBlock("mul", models.KindMultiply, "mul"))
	plant := models.NewBlock("plant", models.KindTransferFunction, "plant")
	plant.SetParameter("denominator", []interface{}{1.0, 1.0})
	sheet.AddBlock(plant)
	sheet.AddBlock(models.NewBlock("g", models.KindScale, "g"))
	sheet.Connect("src", 0, "mul", 0)
	sheet.Connect("g", 0, "mul", 1)
	sheet.Connect("mul", 0, "plant", 0)
	sheet.Connect("plant", 0, "g", 0)

	m := models.NewModel("loop")
	m.AddSheet(sheet)
	fm, diags := flatten.Flatten(m, flatten.DefaultOptions())
	require.False(t, diags.HasErrors())
	result, sdiags := schedule.Order(fm)
	require.NotEmpty(t, sdiags.ByCode(models.CodeStateLoop))

	types, tdiags := Propagate(fm, result.Order)
	assert.False(t, tdiags.HasErrors(), tdiags.String())

	plantType, _ := types.BlockType("plant")
	assert.Equal(t, models.Vector(models.BaseDouble, 2), plantType)
	gType, _ := types.BlockType("g")
	assert.Equal(t, models.Vector(models.BaseDouble, 2), gType)
}
