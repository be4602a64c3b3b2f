package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockflow/internal/flatten"
	"blockflow/internal/models"
)

func flattenSheet(t *testing.T, sheet *models.Sheet) *models.FlattenedModel {
	t.Helper()
	m := models.NewModel("sched")
	m.AddSheet(sheet)
	fm, diags := flatten.Flatten(m, flatten.DefaultOptions())
	require.False(t, diags.HasErrors(), diags.String())
	return fm
}

func position(t *testing.T, order []*models.FlattenedBlock, id string) int {
	t.Helper()
	for i, fb := range order {
		if fb.ID() == id {
			return i
		}
	}
	t.Fatalf("block %s missing from order", id)
	return -1
}

func TestOrderChain(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("src", models.KindSource, "src"))
	sheet.AddBlock(models.NewBlock("g", models.KindScale, "g"))
	sheet.AddBlock(models.NewBlock("y", models.KindOutputPort, "y"))
	sheet.Connect("src", 0, "g", 0)
	sheet.Connect("g", 0, "y", 0)

	fm := flattenSheet(t, sheet)
	result, diags := Order(fm)
	require.False(t, diags.HasErrors())
	require.Len(t, result.Order, 3)
	assert.Empty(t, result.BrokenEdges)

	assert.Less(t, position(t, result.Order, "src"), position(t, result.Order, "g"))
	assert.Less(t, position(t, result.Order, "g"), position(t, result.Order, "y"))
}

func TestOrderIsDeterministic(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("a", models.KindSource, "a"))
	sheet.AddBlock(models.NewBlock("b", models.KindSource, "b"))
	sheet.AddBlock(models.NewBlock("sum", models.KindSum, "sum"))
	sheet.Connect("a", 0, "sum", 0)
	sheet.Connect("b", 0, "sum", 1)

	fm := flattenSheet(t, sheet)
	first, _ := Order(fm)
	for i := 0; i < 5; i++ {
		again, _ := Order(fm)
		require.Equal(t, len(first.Order), len(again.Order))
		for j := range first.Order {
			assert.Equal(t, first.Order[j].ID(), again.Order[j].ID())
		}
	}
}

func TestAlgebraicLoopIsFatal(t *testing.T) {
	// sum -> gain -> back into sum: every block is direct feedthrough.
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("sum", models.KindSum, "sum"))
	sheet.AddBlock(models.NewBlock("g", models.KindScale, "g"))
	sheet.Connect("sum", 0, "g", 0)
	sheet.Connect("g", 0, "sum", 0)

	fm := flattenSheet(t, sheet)
	_, diags := Order(fm)
	require.True(t, diags.HasErrors())
	loops := diags.ByCode(models.CodeAlgebraicLoop)
	require.Len(t, loops, 1)
	assert.Contains(t, loops[0].Message, " -> ")
}

func TestStateLoopIsBrokenWithWarning(t *testing.T) {
	// A feedback loop through an integrator: 1/(s+1) in the forward path.
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("src", models.KindSource, "ref").SetParameter("value", 1.0))
	sheet.AddBlock(models.NewBlock("err", models.KindSum, "err").SetParameter("signs", "+-"))
	plant := models.NewBlock("plant", models.KindTransferFunction, "plant")
	plant.SetParameter("numerator", []interface{}{1.0})
	plant.SetParameter("denominator", []interface{}{1.0, 1.0})
	sheet.AddBlock(plant)
	sheet.Connect("src", 0, "err", 0)
	sheet.Connect("err", 0, "plant", 0)
	sheet.Connect("plant", 0, "err", 1)

	fm := flattenSheet(t, sheet)
	result, diags := Order(fm)
	assert.False(t, diags.HasErrors())
	assert.NotEmpty(t, diags.ByCode(models.CodeStateLoop))
	require.Len(t, result.BrokenEdges, 1)
	require.Len(t, result.Order, 3)
}

func TestEnableDriverOrdersBeforeGatedBlocks(t *testing.T) {
	inner := models.NewSheet("inner", "main")
	inner.AddBlock(models.NewBlock("g", models.KindScale, "g"))

	sub := models.NewBlock("sub", models.KindSubsystem, "Gated")
	sub.SetParameter("enablePort", true)
	sub.Sheets = []*models.Sheet{inner}

	root := models.NewSheet("root", "top")
	root.AddBlock(sub)
	root.AddBlock(models.NewBlock("sw", models.KindSource, "sw").SetParameter("value", 1.0))
	root.AddConnection(models.NewConnection("en", "sw", 0, "sub", models.EnablePort))

	m := models.NewModel("enable")
	m.AddSheet(root)
	fm, diags := flatten.Flatten(m, flatten.DefaultOptions())
	require.False(t, diags.HasErrors(), diags.String())

	result, odiags := Order(fm)
	require.False(t, odiags.HasErrors())
	assert.Less(t, position(t, result.Order, "sw"), position(t, result.Order, "g"))
}
