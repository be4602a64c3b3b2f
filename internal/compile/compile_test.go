package compile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockflow/internal/models"
)

func buildControlLoop() *models.Model {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("ref", models.KindInputPort, "ref"))
	sheet.AddBlock(models.NewBlock("err", models.KindSum, "err").SetParameter("signs", "+-"))
	plant := models.NewBlock("plant", models.KindTransferFunction, "plant")
	plant.SetParameter("numerator", []interface{}{1.0})
	plant.SetParameter("denominator", []interface{}{1.0, 1.0})
	sheet.AddBlock(plant)
	sheet.AddBlock(models.NewBlock("y", models.KindOutputPort, "y"))
	sheet.Connect("ref", 0, "err", 0)
	sheet.Connect("err", 0, "plant", 0)
	sheet.Connect("plant", 0, "err", 1)
	sheet.Connect("plant", 0, "y", 0)

	m := models.NewModel("loop")
	m.AddSheet(sheet)
	return m
}

func TestCompileControlLoop(t *testing.T) {
	c := Compile(buildControlLoop())
	require.NotNil(t, c)
	assert.False(t, c.HasErrors(), c.Diagnostics.String())

	// The feedback edge is broken once, the loop warning recorded.
	assert.Len(t, c.BrokenEdges, 1)
	assert.NotEmpty(t, c.Diagnostics.ByCode(models.CodeStateLoop))
	assert.Len(t, c.Order, 4)

	typ, ok := c.Types.BlockType("plant")
	require.True(t, ok)
	assert.Equal(t, models.ScalarDouble(), typ)
}

func TestCompileSurfacesParameterErrors(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	plant := models.NewBlock("plant", models.KindTransferFunction, "plant")
	plant.SetParameter("denominator", []interface{}{0.0, 1.0})
	sheet.AddBlock(plant)
	m := models.NewModel("bad")
	m.AddSheet(sheet)

	c := Compile(m)
	assert.True(t, c.HasErrors())
	assert.NotEmpty(t, c.Diagnostics.ByCode(models.CodeInvalidParameter))
}

func TestCompilePresentationBlocksAreTolerated(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("src", models.KindSource, "src").SetParameter("value", 1.0))
	sheet.AddBlock(models.NewBlock("scope", models.KindSignalDisplay, "scope"))
	sheet.Connect("src", 0, "scope", 0)
	m := models.NewModel("display")
	m.AddSheet(sheet)

	c := Compile(m)
	assert.False(t, c.HasErrors(), c.Diagnostics.String())
}

func TestCompileAlwaysReturnsDiagnostics(t *testing.T) {
	sheet := models.NewSheet("s", "main")
	sheet.AddBlock(models.NewBlock("a", models.KindSum, "dup"))
	sheet.AddBlock(models.NewBlock("b", models.KindSum, "dup"))
	m := models.NewModel("dup")
	m.AddSheet(sheet)

	c := Compile(m)
	require.NotNil(t, c)
	assert.True(t, c.HasErrors())
	assert.NotEmpty(t, c.Diagnostics.ByCode(models.CodeDuplicateName))
	assert.NotNil(t, c.Types)
	assert.NotNil(t, c.Flattened)
}
