package modules

import (
	"blockflow/internal/models"
)

func init() {
	register(&presentationModule{base{models.KindSignalDisplay}})
	register(&presentationModule{base{models.KindSignalLogger}})
}

// presentationModule covers display and logger blocks: they implement the
// full contract but report no state and emit nothing, which is how
// non-computing kinds flow through the pipeline without special cases.
type presentationModule struct{ base }

func (m *presentationModule) InputCount(b *models.Block) int  { return 1 }
func (m *presentationModule) OutputCount(b *models.Block) int { return 0 }

func (m *presentationModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	if len(inputs) > 0 {
		return inputs[0], nil
	}
	return models.ScalarDouble(), nil
}

func (m *presentationModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	return inputOrZero(in, 0, models.ScalarDouble()).Clone(), nil
}

func (m *presentationModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	return "", nil
}
