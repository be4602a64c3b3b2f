package modules

import (
	"fmt"
	"strings"

	"blockflow/internal/models"
)

func init() {
	register(&transferFunctionModule{base{models.KindTransferFunction}})
}

// transferFunctionModule implements continuous transfer functions in
// controllable canonical form. Coefficient lists are in descending powers of
// s, so denominator [1, 3, 2] means s^2 + 3s + 2 and its leading entry is
// the normalizer a_n. The numerator contributes its constant term b0; the
// state order is len(denominator) - 1. Order zero degenerates to a stateless
// gain b0/a0. Vector and matrix signals integrate element-wise with one
// independent state bank per element.
type transferFunctionModule struct{ base }

func (m *transferFunctionModule) numerator(b *models.Block) []float64 {
	num := b.FloatSliceParam("numerator")
	if len(num) == 0 {
		return []float64{1}
	}
	return num
}

func (m *transferFunctionModule) denominator(b *models.Block) []float64 {
	den := b.FloatSliceParam("denominator")
	if len(den) == 0 {
		return []float64{1}
	}
	return den
}

// b0 is the numerator constant term.
func (m *transferFunctionModule) b0(b *models.Block) float64 {
	num := m.numerator(b)
	return num[len(num)-1]
}

func (m *transferFunctionModule) order(b *models.Block) int {
	return len(m.denominator(b)) - 1
}

func (m *transferFunctionModule) InputCount(b *models.Block) int { return 1 }

func (m *transferFunctionModule) DirectFeedthrough(b *models.Block) bool {
	// With state, the output reads the state vector only; the input enters
	// through the derivative. Order zero is a plain algebraic gain.
	return m.order(b) == 0
}

func (m *transferFunctionModule) StateOrder(b *models.Block) int {
	return m.order(b)
}

func (m *transferFunctionModule) Validate(b *models.Block) []models.Diagnostic {
	var diags []models.Diagnostic
	den := m.denominator(b)
	if den[0] == 0 {
		diags = append(diags, paramError(b,
			"transfer_function block %s: leading denominator coefficient must be non-zero", b.Name))
	}
	if num := m.numerator(b); len(num) > 1 {
		diags = append(diags, paramWarning(b,
			"transfer_function block %s: only the numerator constant term is used; higher-order numerator terms are ignored", b.Name))
	}
	return diags
}

func (m *transferFunctionModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	if len(inputs) == 0 {
		return models.ScalarDouble(), nil
	}
	return inputs[0].WithBase(models.BaseDouble), nil
}

func (m *transferFunctionModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	input := inputOrZero(in, 0, models.ScalarDouble())
	out := models.NewValue(input.Type.WithBase(models.BaseDouble))
	n := m.order(b)
	if n == 0 {
		den := m.denominator(b)
		gain := m.b0(b) / den[0]
		for i := range out.Data {
			out.Data[i] = gain * input.Data[i]
		}
		return out, nil
	}
	if len(state) < n*len(out.Data) {
		return nil, fmt.Errorf("transfer_function block %s: state bank too small", b.Name)
	}
	// y_e = x_e[0]
	for e := range out.Data {
		out.Data[e] = state[e*n]
	}
	return out, nil
}

// Derivatives fills the classic controllable canonical form: the state
// chain x'[i] = x[i+1], closed by
// x'[n-1] = (b0*u - sum a_j x_j) / a_n.
func (m *transferFunctionModule) Derivatives(b *models.Block, in []*models.Value, state, deriv []float64) error {
	n := m.order(b)
	if n == 0 {
		return fmt.Errorf("transfer_function block %s has no state", b.Name)
	}
	den := m.denominator(b)
	b0 := m.b0(b)
	an := den[0]
	input := inputOrZero(in, 0, models.ScalarDouble())
	elems := len(state) / n
	for e := 0; e < elems; e++ {
		u := elemBroadcast(input, e)
		bank := state[e*n : (e+1)*n]
		d := deriv[e*n : (e+1)*n]
		for i := 0; i < n-1; i++ {
			d[i] = bank[i+1]
		}
		acc := b0 * u
		for j := 0; j < n; j++ {
			// a_j is the coefficient of s^j: den[n-j] in descending order.
			acc -= den[n-j] * bank[j]
		}
		d[n-1] = acc / an
	}
	return nil
}

func (m *transferFunctionModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	n := m.order(b)
	if n == 0 {
		den := m.denominator(b)
		gain := m.b0(b) / den[0]
		return emitElementwise(ctx.Output, func(i int) string {
			return fmt.Sprintf("%s * %s", cFloat(gain), ctx.Input(0).Elem(i))
		}), nil
	}
	return emitElementwise(ctx.Output, func(i int) string {
		return ctx.State.At(i, 0)
	}), nil
}

func (m *transferFunctionModule) EmitDerivatives(b *models.Block, ctx *EmitContext) (string, error) {
	n := m.order(b)
	if n == 0 {
		return "", fmt.Errorf("transfer_function block %s has no state", b.Name)
	}
	den := m.denominator(b)
	b0 := m.b0(b)
	an := den[0]
	elems := ctx.Output.Type.ElementCount()

	var lines []string
	for e := 0; e < elems; e++ {
		for i := 0; i < n-1; i++ {
			lines = append(lines, fmt.Sprintf("%s = %s;", ctx.Deriv.At(e, i), ctx.State.At(e, i+1)))
		}
		terms := []string{fmt.Sprintf("%s * %s", cFloat(b0), ctx.Input(0).ElemBroadcast(e))}
		for j := 0; j < n; j++ {
			terms = append(terms, fmt.Sprintf("- %s * %s", cFloat(den[n-j]), ctx.State.At(e, j)))
		}
		lines = append(lines, fmt.Sprintf("%s = (%s) / %s;",
			ctx.Deriv.At(e, n-1), strings.Join(terms, " "), cFloat(an)))
	}
	return strings.Join(lines, "\n"), nil
}
