package expression

import (
	"fmt"

	"github.com/yuin/gopher-lua/ast"
)

// ValidationResult reports whether a parsed expression is usable by an
// evaluate block with a given input count.
type ValidationResult struct {
	Valid             bool     `json:"valid"`
	Errors            []string `json:"errors,omitempty"`
	UsesMathFunctions bool     `json:"usesMathFunctions"`
}

// Validate walks the expression AST and checks that it only uses numeric
// literals, the inputs in1..inputCount, the constant pi, arithmetic
// operators, and allowed math functions.
func (p *Program) Validate(inputCount int) ValidationResult {
	v := &validator{inputCount: inputCount}
	v.walk(p.expr)
	return ValidationResult{
		Valid:             len(v.errors) == 0,
		Errors:            v.errors,
		UsesMathFunctions: v.usesMath,
	}
}

type validator struct {
	inputCount int
	errors     []string
	usesMath   bool
}

func (v *validator) errorf(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) walk(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.NumberExpr:
		// Literals are always fine.

	case *ast.IdentExpr:
		if e.Value == "pi" {
			v.usesMath = true
			return
		}
		k := inputIndex(e.Value)
		if k == 0 {
			v.errorf("unknown identifier %q", e.Value)
			return
		}
		if k > v.inputCount {
			v.errorf("input %q exceeds the block's %d input(s)", e.Value, v.inputCount)
		}

	case *ast.ArithmeticOpExpr:
		switch e.Operator {
		case "+", "-", "*", "/", "%", "^":
		default:
			v.errorf("operator %q is not allowed", e.Operator)
		}
		if e.Operator == "%" || e.Operator == "^" {
			// Both translate to math.h calls in emitted code.
			v.usesMath = true
		}
		v.walk(e.Lhs)
		v.walk(e.Rhs)

	case *ast.UnaryMinusOpExpr:
		v.walk(e.Expr)

	case *ast.FuncCallExpr:
		name := callName(e)
		if name == "" {
			v.errorf("only direct calls to math functions are allowed")
			return
		}
		fn, ok := mathFunctions[name]
		if !ok {
			v.errorf("unknown function %q", name)
			return
		}
		if len(e.Args) != fn.argc {
			v.errorf("function %q takes %d argument(s), got %d", name, fn.argc, len(e.Args))
		}
		v.usesMath = true
		for _, arg := range e.Args {
			v.walk(arg)
		}

	default:
		v.errorf("construct %T is not allowed in expressions", expr)
	}
}
