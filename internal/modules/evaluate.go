package modules

import (
	"fmt"

	"blockflow/internal/expression"
	"blockflow/internal/models"
)

func init() {
	register(&evaluateModule{base: base{models.KindEvaluate}})
}

// evaluateModule bridges to the expression sub-language. Parse and
// validation failures are per-block conditions: the block's output defaults
// to zero and a warning is recorded, but compilation continues.
type evaluateModule struct {
	base
}

func (m *evaluateModule) program(b *models.Block) (*expression.Program, error) {
	prog, err := expression.Parse(b.StringParam("expression", ""))
	if err != nil {
		return nil, err
	}
	result := prog.Validate(m.InputCount(b))
	if !result.Valid {
		return nil, fmt.Errorf("invalid expression: %v", result.Errors)
	}
	return prog, nil
}

func (m *evaluateModule) InputCount(b *models.Block) int {
	n := b.IntParam("inputCount", 1)
	if n < 0 {
		n = 0
	}
	return n
}

func (m *evaluateModule) Validate(b *models.Block) []models.Diagnostic {
	if _, err := m.program(b); err != nil {
		return []models.Diagnostic{{
			Severity: models.SeverityWarning,
			Code:     models.CodeExpressionInvalid,
			Message:  fmt.Sprintf("evaluate block %s: %v; output defaults to zero", b.Name, err),
			BlockID:  b.ID,
		}}
	}
	return nil
}

func (m *evaluateModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	for i, t := range inputs {
		if !t.IsScalar() {
			return models.SignalType{}, fmt.Errorf("evaluate block %s: input %d must be scalar, got %s", b.Name, i+1, t)
		}
	}
	return models.Scalar(models.BaseDouble), nil
}

func (m *evaluateModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	prog, err := m.program(b)
	if err != nil {
		// Defined fallback: invalid expressions yield zero.
		return models.ScalarValue(0), nil
	}
	inputs := make([]float64, m.InputCount(b))
	for i := range inputs {
		inputs[i] = inputOrZero(in, i, models.ScalarDouble()).Scalar()
	}
	if env == nil || env.Expr == nil {
		return nil, fmt.Errorf("evaluate block %s: no expression evaluator in scope", b.Name)
	}
	result, err := env.Expr.Evaluate(prog, inputs)
	if err != nil {
		return models.ScalarValue(0), nil
	}
	return models.ScalarValue(result), nil
}

func (m *evaluateModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	prog, err := m.program(b)
	if err != nil {
		return fmt.Sprintf("%s = 0.0;", ctx.Output.Expr), nil
	}
	names := make([]string, m.InputCount(b))
	for i := range names {
		names[i] = ctx.Input(i).Elem(0)
	}
	code, err := prog.ToCode(names)
	if err != nil {
		return fmt.Sprintf("%s = 0.0;", ctx.Output.Expr), nil
	}
	return fmt.Sprintf("%s = %s;", ctx.Output.Expr, code.Code), nil
}
