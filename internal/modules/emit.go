package modules

import (
	"fmt"
	"strings"

	"blockflow/internal/models"
)

// Operand is a C expression for a signal, together with its type so element
// accesses can be spelled correctly.
type Operand struct {
	Expr string
	Type models.SignalType
}

// Elem returns the C expression for flat element i of the operand
// (row-major for matrices).
func (o Operand) Elem(i int) string {
	switch o.Type.Kind {
	case models.ShapeVector:
		return fmt.Sprintf("%s[%d]", o.Expr, i)
	case models.ShapeMatrix:
		return fmt.Sprintf("%s[%d][%d]", o.Expr, i/o.Type.Cols, i%o.Type.Cols)
	default:
		return o.Expr
	}
}

// ElemBroadcast returns element i, or the scalar itself when the operand is
// scalar (scalar operands broadcast across element-wise operations).
func (o Operand) ElemBroadcast(i int) string {
	if o.Type.IsScalar() {
		return o.Expr
	}
	return o.Elem(i)
}

// StateRef addresses one block's state bank in the generated states struct:
// states->name[k] for scalar-shaped blocks, states->name[e][k] otherwise.
type StateRef struct {
	Expr  string
	Elems int
	Order int
}

// At returns the C expression for state k of element e.
func (s StateRef) At(e, k int) string {
	if s.Elems <= 1 {
		return fmt.Sprintf("%s[%d]", s.Expr, k)
	}
	return fmt.Sprintf("%s[%d][%d]", s.Expr, e, k)
}

// EmitContext carries everything a module needs to emit its step (and
// derivative) statements: resolved input operands, the output lvalue, and
// state/derivative references for stateful blocks.
type EmitContext struct {
	// BlockName is the sanitized flattened block name, usable as a C
	// identifier fragment for block-local static tables.
	BlockName string

	Inputs     []Operand
	InputTypes []models.SignalType
	Output     Operand
	State      StateRef
	Deriv      StateRef

	prelude []string
}

// AddPrelude registers file-level C declarations (static tables, helper
// functions) the emitted statements depend on. The generator deduplicates
// and places them before the model functions.
func (ctx *EmitContext) AddPrelude(decl string) {
	ctx.prelude = append(ctx.prelude, decl)
}

// Prelude returns the collected file-level declarations.
func (ctx *EmitContext) Prelude() []string {
	return ctx.prelude
}

// Input returns input operand i, or a zero-literal operand when the port is
// unconnected (missing inputs default to zero).
func (ctx *EmitContext) Input(i int) Operand {
	if i < len(ctx.Inputs) && ctx.Inputs[i].Expr != "" {
		return ctx.Inputs[i]
	}
	return Operand{Expr: "0.0", Type: models.ScalarDouble()}
}

// emitElementwise renders one assignment per output element, with elem(i)
// supplying the right-hand side.
func emitElementwise(out Operand, elem func(i int) string) string {
	n := out.Type.ElementCount()
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		lines[i] = fmt.Sprintf("%s = %s;", out.Elem(i), elem(i))
	}
	return strings.Join(lines, "\n")
}

// inputOrZero returns input i, or a zero value of the given type when the
// port is unconnected.
func inputOrZero(in []*models.Value, i int, t models.SignalType) *models.Value {
	if i < len(in) && in[i] != nil {
		return in[i]
	}
	return models.NewValue(t)
}

// elemBroadcast reads flat element i of a value, broadcasting scalars.
func elemBroadcast(v *models.Value, i int) float64 {
	if v.Type.IsScalar() || len(v.Data) == 1 {
		return v.Data[0]
	}
	return v.Data[i]
}
