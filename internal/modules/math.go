package modules

import (
	"fmt"
	"math"

	"blockflow/internal/models"
)

func init() {
	register(&sumModule{base{models.KindSum}})
	register(&multiplyModule{base{models.KindMultiply}})
	register(&scaleModule{base{models.KindScale}})
	register(&unaryMinusModule{base{models.KindUnaryMinus}})
	register(&absoluteValueModule{base{models.KindAbsoluteValue}})
	register(&trigModule{base{models.KindTrig}})
	register(&conditionModule{base{models.KindCondition}})
	register(&ifModule{base{models.KindIf}})
}

// baseRank orders base types for promotion in mixed-base element-wise ops.
var baseRank = map[models.BaseType]int{
	models.BaseBool:   0,
	models.BaseInt:    1,
	models.BaseLong:   2,
	models.BaseFloat:  3,
	models.BaseDouble: 4,
}

// promoteBase returns the wider of two base types.
func promoteBase(a, b models.BaseType) models.BaseType {
	if baseRank[b] > baseRank[a] {
		return b
	}
	return a
}

// inferElementwise checks that every input has the same shape (scalars
// broadcast when broadcast is true) and returns the common shape with the
// promoted base type.
func inferElementwise(b *models.Block, inputs []models.SignalType, broadcast bool) (models.SignalType, error) {
	if len(inputs) == 0 {
		return models.SignalType{}, fmt.Errorf("block %s has no inputs", b.Name)
	}
	out := inputs[0]
	for _, t := range inputs[1:] {
		if broadcast && t.IsScalar() {
			out.Base = promoteBase(out.Base, t.Base)
			continue
		}
		if broadcast && out.IsScalar() {
			t.Base = promoteBase(out.Base, t.Base)
			out = t
			continue
		}
		if !out.SameShape(t) {
			return models.SignalType{}, fmt.Errorf("block %s: shape mismatch %s vs %s", b.Name, out, t)
		}
		out.Base = promoteBase(out.Base, t.Base)
	}
	return out, nil
}

// sum

type sumModule struct{ base }

func (m *sumModule) signs(b *models.Block) string {
	s := b.StringParam("signs", "++")
	if len(s) < 2 {
		s = "++"
	}
	return s
}

func (m *sumModule) InputCount(b *models.Block) int { return len(m.signs(b)) }

func (m *sumModule) Validate(b *models.Block) []models.Diagnostic {
	var diags []models.Diagnostic
	for _, c := range m.signs(b) {
		if c != '+' && c != '-' {
			diags = append(diags, paramError(b, "sum block %s: signs must contain only '+' and '-', got %q", b.Name, m.signs(b)))
			break
		}
	}
	return diags
}

func (m *sumModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	return inferElementwise(b, inputs, false)
}

func (m *sumModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	signs := m.signs(b)
	outType, err := m.InferOutputType(b, valueTypes(in, len(signs)))
	if err != nil {
		return nil, err
	}
	out := models.NewValue(outType)
	for i := range out.Data {
		acc := 0.0
		for k := 0; k < len(signs); k++ {
			v := elemBroadcast(inputOrZero(in, k, outType), i)
			if signs[k] == '-' {
				acc -= v
			} else {
				acc += v
			}
		}
		out.Data[i] = acc
	}
	return out, nil
}

func (m *sumModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	signs := m.signs(b)
	return emitElementwise(ctx.Output, func(i int) string {
		expr := ""
		for k := 0; k < len(signs); k++ {
			term := ctx.Input(k).ElemBroadcast(i)
			if k == 0 && signs[k] == '+' {
				expr = term
			} else if signs[k] == '-' {
				expr = fmt.Sprintf("%s - %s", orZero(expr), term)
			} else {
				expr = fmt.Sprintf("%s + %s", expr, term)
			}
		}
		return expr
	}), nil
}

func orZero(expr string) string {
	if expr == "" {
		return "0.0"
	}
	return expr
}

// multiply

type multiplyModule struct{ base }

func (m *multiplyModule) operations(b *models.Block) string {
	ops := b.StringParam("operations", "**")
	if len(ops) < 2 {
		ops = "**"
	}
	return ops
}

func (m *multiplyModule) InputCount(b *models.Block) int { return len(m.operations(b)) }

func (m *multiplyModule) Validate(b *models.Block) []models.Diagnostic {
	ops := m.operations(b)
	for i, c := range ops {
		if c != '*' && c != '/' {
			return []models.Diagnostic{paramError(b, "multiply block %s: operations must contain only '*' and '/', got %q", b.Name, ops)}
		}
		if i == 0 && c == '/' {
			return []models.Diagnostic{paramError(b, "multiply block %s: first operation must be '*'", b.Name)}
		}
	}
	return nil
}

func (m *multiplyModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	return inferElementwise(b, inputs, true)
}

func (m *multiplyModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	ops := m.operations(b)
	outType, err := m.InferOutputType(b, valueTypes(in, len(ops)))
	if err != nil {
		return nil, err
	}
	out := models.NewValue(outType)
	for i := range out.Data {
		acc := 1.0
		for k := 0; k < len(ops); k++ {
			v := elemBroadcast(inputOrZero(in, k, outType), i)
			if ops[k] == '/' {
				acc /= v
			} else {
				acc *= v
			}
		}
		out.Data[i] = acc
	}
	return out, nil
}

func (m *multiplyModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	ops := m.operations(b)
	return emitElementwise(ctx.Output, func(i int) string {
		expr := ""
		for k := 0; k < len(ops); k++ {
			term := ctx.Input(k).ElemBroadcast(i)
			if k == 0 {
				expr = term
			} else if ops[k] == '/' {
				expr = fmt.Sprintf("%s / %s", expr, term)
			} else {
				expr = fmt.Sprintf("%s * %s", expr, term)
			}
		}
		return expr
	}), nil
}

// scale

type scaleModule struct{ base }

func (m *scaleModule) InputCount(b *models.Block) int { return 1 }

func (m *scaleModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	return inferElementwise(b, inputs, false)
}

func (m *scaleModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	gain := b.FloatParam("gain", 1)
	input := inputOrZero(in, 0, models.ScalarDouble())
	out := models.NewValue(input.Type)
	for i := range out.Data {
		out.Data[i] = gain * input.Data[i]
	}
	return out, nil
}

func (m *scaleModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	gain := b.FloatParam("gain", 1)
	return emitElementwise(ctx.Output, func(i int) string {
		return fmt.Sprintf("%s * %s", cFloat(gain), ctx.Input(0).Elem(i))
	}), nil
}

// unary_minus

type unaryMinusModule struct{ base }

func (m *unaryMinusModule) InputCount(b *models.Block) int { return 1 }

func (m *unaryMinusModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	return inferElementwise(b, inputs, false)
}

func (m *unaryMinusModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	input := inputOrZero(in, 0, models.ScalarDouble())
	out := models.NewValue(input.Type)
	for i := range out.Data {
		out.Data[i] = -input.Data[i]
	}
	return out, nil
}

func (m *unaryMinusModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	return emitElementwise(ctx.Output, func(i int) string {
		return fmt.Sprintf("-%s", ctx.Input(0).Elem(i))
	}), nil
}

// absolute_value

type absoluteValueModule struct{ base }

func (m *absoluteValueModule) InputCount(b *models.Block) int { return 1 }

func (m *absoluteValueModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	return inferElementwise(b, inputs, false)
}

func (m *absoluteValueModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	input := inputOrZero(in, 0, models.ScalarDouble())
	out := models.NewValue(input.Type)
	for i := range out.Data {
		out.Data[i] = math.Abs(input.Data[i])
	}
	return out, nil
}

func (m *absoluteValueModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	return emitElementwise(ctx.Output, func(i int) string {
		return fmt.Sprintf("fabs(%s)", ctx.Input(0).Elem(i))
	}), nil
}

// trig

type trigFn struct {
	argc int
	eval func(a, b float64) float64
}

var trigFunctions = map[string]trigFn{
	"sin":   {1, func(a, _ float64) float64 { return math.Sin(a) }},
	"cos":   {1, func(a, _ float64) float64 { return math.Cos(a) }},
	"tan":   {1, func(a, _ float64) float64 { return math.Tan(a) }},
	"asin":  {1, func(a, _ float64) float64 { return math.Asin(a) }},
	"acos":  {1, func(a, _ float64) float64 { return math.Acos(a) }},
	"atan":  {1, func(a, _ float64) float64 { return math.Atan(a) }},
	"atan2": {2, math.Atan2},
	"sinh":  {1, func(a, _ float64) float64 { return math.Sinh(a) }},
	"cosh":  {1, func(a, _ float64) float64 { return math.Cosh(a) }},
	"tanh":  {1, func(a, _ float64) float64 { return math.Tanh(a) }},
}

type trigModule struct{ base }

func (m *trigModule) fn(b *models.Block) (string, trigFn) {
	name := b.StringParam("function", "sin")
	fn, ok := trigFunctions[name]
	if !ok {
		return "sin", trigFunctions["sin"]
	}
	return name, fn
}

func (m *trigModule) InputCount(b *models.Block) int {
	_, fn := m.fn(b)
	return fn.argc
}

func (m *trigModule) Validate(b *models.Block) []models.Diagnostic {
	name := b.StringParam("function", "sin")
	if _, ok := trigFunctions[name]; !ok {
		return []models.Diagnostic{paramError(b, "trig block %s: unknown function %q", b.Name, name)}
	}
	return nil
}

func (m *trigModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	t, err := inferElementwise(b, inputs, false)
	if err != nil {
		return models.SignalType{}, err
	}
	return t.WithBase(models.BaseDouble), nil
}

func (m *trigModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	_, fn := m.fn(b)
	first := inputOrZero(in, 0, models.ScalarDouble())
	out := models.NewValue(first.Type.WithBase(models.BaseDouble))
	for i := range out.Data {
		a := first.Data[i]
		c := 0.0
		if fn.argc == 2 {
			c = elemBroadcast(inputOrZero(in, 1, first.Type), i)
		}
		out.Data[i] = fn.eval(a, c)
	}
	return out, nil
}

func (m *trigModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	name, fn := m.fn(b)
	return emitElementwise(ctx.Output, func(i int) string {
		if fn.argc == 2 {
			return fmt.Sprintf("%s(%s, %s)", name, ctx.Input(0).Elem(i), ctx.Input(1).ElemBroadcast(i))
		}
		return fmt.Sprintf("%s(%s)", name, ctx.Input(0).Elem(i))
	}), nil
}

// condition

var conditionOperators = map[string]func(a, b float64) bool{
	"==": func(a, b float64) bool { return a == b },
	"!=": func(a, b float64) bool { return a != b },
	"<":  func(a, b float64) bool { return a < b },
	"<=": func(a, b float64) bool { return a <= b },
	">":  func(a, b float64) bool { return a > b },
	">=": func(a, b float64) bool { return a >= b },
}

type conditionModule struct{ base }

func (m *conditionModule) operator(b *models.Block) string {
	op := b.StringParam("operator", ">")
	if _, ok := conditionOperators[op]; !ok {
		return ">"
	}
	return op
}

func (m *conditionModule) InputCount(b *models.Block) int { return 2 }

func (m *conditionModule) Validate(b *models.Block) []models.Diagnostic {
	op := b.StringParam("operator", ">")
	if _, ok := conditionOperators[op]; !ok {
		return []models.Diagnostic{paramError(b, "condition block %s: unknown operator %q", b.Name, op)}
	}
	return nil
}

func (m *conditionModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	t, err := inferElementwise(b, inputs, true)
	if err != nil {
		return models.SignalType{}, err
	}
	return t.WithBase(models.BaseBool), nil
}

func (m *conditionModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	cmp := conditionOperators[m.operator(b)]
	outType, err := m.InferOutputType(b, valueTypes(in, 2))
	if err != nil {
		return nil, err
	}
	out := models.NewValue(outType)
	lhs := inputOrZero(in, 0, outType)
	rhs := inputOrZero(in, 1, outType)
	for i := range out.Data {
		if cmp(elemBroadcast(lhs, i), elemBroadcast(rhs, i)) {
			out.Data[i] = 1
		}
	}
	return out, nil
}

func (m *conditionModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	op := m.operator(b)
	return emitElementwise(ctx.Output, func(i int) string {
		return fmt.Sprintf("%s %s %s", ctx.Input(0).ElemBroadcast(i), op, ctx.Input(1).ElemBroadcast(i))
	}), nil
}

// if

type ifModule struct{ base }

func (m *ifModule) InputCount(b *models.Block) int { return 3 }

func (m *ifModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	if len(inputs) < 3 {
		return models.SignalType{}, fmt.Errorf("if block %s requires condition, then, and else inputs", b.Name)
	}
	if !inputs[0].IsScalar() {
		return models.SignalType{}, fmt.Errorf("if block %s: condition must be scalar, got %s", b.Name, inputs[0])
	}
	return inferElementwise(b, inputs[1:], false)
}

func (m *ifModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	cond := inputOrZero(in, 0, models.ScalarDouble())
	chosen := inputOrZero(in, 2, models.ScalarDouble())
	if cond.Bool() {
		chosen = inputOrZero(in, 1, models.ScalarDouble())
	}
	return chosen.Clone(), nil
}

func (m *ifModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	cond := ctx.Input(0).Elem(0)
	return emitElementwise(ctx.Output, func(i int) string {
		return fmt.Sprintf("(%s != 0) ? %s : %s", cond, ctx.Input(1).Elem(i), ctx.Input(2).Elem(i))
	}), nil
}

// valueTypes extracts the types of resolved input values, substituting
// scalar double for unconnected ports.
func valueTypes(in []*models.Value, count int) []models.SignalType {
	types := make([]models.SignalType, count)
	for i := 0; i < count; i++ {
		if i < len(in) && in[i] != nil {
			types[i] = in[i].Type
		} else {
			types[i] = models.ScalarDouble()
		}
	}
	return types
}

// cFloat renders a float64 as a C double literal.
func cFloat(v float64) string {
	s := fmt.Sprintf("%g", v)
	for _, r := range s {
		if r == '.' || r == 'e' || r == 'E' || r == 'n' || r == 'i' {
			return s
		}
	}
	return s + ".0"
}
