// Package expression is the service boundary for the arithmetic expression
// sub-language accepted by evaluate blocks. Expressions are parsed with the
// gopher-lua front end; the same AST backs both direct evaluation (for the
// interpreter) and C translation (for code emission). The pipeline treats
// every failure here as a per-block condition, never a pipeline abort.
package expression

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

// Program is a parsed expression over numbered inputs in1..inN.
type Program struct {
	Source string
	expr   ast.Expr
}

// Parse parses an expression string into a Program. The expression grammar
// is the Lua expression grammar restricted by Validate to arithmetic over
// numbered inputs and known math functions.
func Parse(source string) (*Program, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return nil, fmt.Errorf("empty expression")
	}

	chunk, err := parse.Parse(strings.NewReader("return ("+trimmed+")"), "expression")
	if err != nil {
		return nil, fmt.Errorf("syntax error in expression %q: %v", trimmed, err)
	}
	if len(chunk) != 1 {
		return nil, fmt.Errorf("expression %q is not a single expression", trimmed)
	}
	ret, ok := chunk[0].(*ast.ReturnStmt)
	if !ok || len(ret.Exprs) != 1 {
		return nil, fmt.Errorf("expression %q is not a single expression", trimmed)
	}

	return &Program{Source: trimmed, expr: ret.Exprs[0]}, nil
}

// Evaluator evaluates parsed expressions against numeric inputs using an
// embedded Lua state. An Evaluator is not safe for concurrent use; each
// simulation engine owns its own.
type Evaluator struct {
	luaState *lua.LState
}

// NewEvaluator creates an evaluator with the math library opened and bare
// aliases for the allowed math functions installed.
func NewEvaluator() *Evaluator {
	L := lua.NewState()

	// Bare-name aliases so "sin(in1)" and "math.sin(in1)" both work.
	var prelude strings.Builder
	for name, fn := range mathFunctions {
		prelude.WriteString(fmt.Sprintf("%s = math.%s\n", name, fn.luaName))
	}
	prelude.WriteString("pi = math.pi\n")
	if err := L.DoString(prelude.String()); err != nil {
		panic(fmt.Sprintf("failed to install math aliases: %v", err))
	}

	return &Evaluator{luaState: L}
}

// Close releases the embedded Lua state.
func (e *Evaluator) Close() {
	if e.luaState != nil {
		e.luaState.Close()
	}
}

// Evaluate computes the numeric value of a program for the given inputs.
// Input i is bound to the variable in<i+1>.
func (e *Evaluator) Evaluate(prog *Program, inputs []float64) (float64, error) {
	L := e.luaState
	for i, v := range inputs {
		L.SetGlobal(fmt.Sprintf("in%d", i+1), lua.LNumber(v))
	}

	if err := L.DoString("return (" + prog.Source + ")"); err != nil {
		return 0, fmt.Errorf("failed to evaluate expression %q: %v", prog.Source, err)
	}

	result := L.Get(-1)
	L.Pop(1)

	num, ok := result.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("expression %q did not produce a number, got %s", prog.Source, result.Type())
	}
	return float64(num), nil
}

// mathFunction describes one allowed math function.
type mathFunction struct {
	luaName string // name under the Lua math table
	cName   string // math.h name for code emission
	argc    int
}

// mathFunctions is the allow-list of callable functions, keyed by the bare
// name accepted in expressions.
var mathFunctions = map[string]mathFunction{
	"sin":   {"sin", "sin", 1},
	"cos":   {"cos", "cos", 1},
	"tan":   {"tan", "tan", 1},
	"asin":  {"asin", "asin", 1},
	"acos":  {"acos", "acos", 1},
	"atan":  {"atan", "atan", 1},
	"atan2": {"atan2", "atan2", 2},
	"sqrt":  {"sqrt", "sqrt", 1},
	"exp":   {"exp", "exp", 1},
	"log":   {"log", "log", 1},
	"log10": {"log10", "log10", 1},
	"floor": {"floor", "floor", 1},
	"ceil":  {"ceil", "ceil", 1},
	"abs":   {"abs", "fabs", 1},
	"pow":   {"pow", "pow", 2},
	"min":   {"min", "fmin", 2},
	"max":   {"max", "fmax", 2},
}

// callName resolves the function name of a call expression: either a bare
// identifier or a math.<name> attribute access. Returns "" when the callee
// has any other form.
func callName(call *ast.FuncCallExpr) string {
	switch fn := call.Func.(type) {
	case *ast.IdentExpr:
		return fn.Value
	case *ast.AttrGetExpr:
		obj, ok := fn.Object.(*ast.IdentExpr)
		if !ok || obj.Value != "math" {
			return ""
		}
		key, ok := fn.Key.(*ast.StringExpr)
		if !ok {
			return ""
		}
		return key.Value
	}
	return ""
}

// inputIndex parses an identifier of the form in<k> (k >= 1). Returns 0 when
// the identifier is not an input reference.
func inputIndex(name string) int {
	if !strings.HasPrefix(name, "in") || len(name) <= 2 {
		return 0
	}
	k := 0
	for _, r := range name[2:] {
		if r < '0' || r > '9' {
			return 0
		}
		k = k*10 + int(r-'0')
	}
	return k
}
