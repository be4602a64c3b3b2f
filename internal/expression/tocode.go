package expression

import (
	"fmt"
	"strings"

	"github.com/yuin/gopher-lua/ast"
)

// CodeResult is a C rendering of an expression.
type CodeResult struct {
	Code      string `json:"code"`
	NeedsMath bool   `json:"needsMath"` // emitted code references math.h
}

// ToCode translates a validated program into a C expression. inputNames[i]
// is the C expression substituted for in<i+1>. The caller must have run
// Validate first; an invalid construct returns an error instead of bad code.
func (p *Program) ToCode(inputNames []string) (CodeResult, error) {
	t := &translator{inputNames: inputNames}
	code, err := t.emit(p.expr)
	if err != nil {
		return CodeResult{}, err
	}
	return CodeResult{Code: code, NeedsMath: t.needsMath}, nil
}

type translator struct {
	inputNames []string
	needsMath  bool
}

func (t *translator) emit(expr ast.Expr) (string, error) {
	switch e := expr.(type) {
	case *ast.NumberExpr:
		return cNumberLiteral(e.Value), nil

	case *ast.IdentExpr:
		if e.Value == "pi" {
			t.needsMath = true
			return "M_PI", nil
		}
		k := inputIndex(e.Value)
		if k == 0 || k > len(t.inputNames) {
			return "", fmt.Errorf("unresolved identifier %q", e.Value)
		}
		return t.inputNames[k-1], nil

	case *ast.ArithmeticOpExpr:
		lhs, err := t.emit(e.Lhs)
		if err != nil {
			return "", err
		}
		rhs, err := t.emit(e.Rhs)
		if err != nil {
			return "", err
		}
		switch e.Operator {
		case "+", "-", "*", "/":
			return fmt.Sprintf("(%s %s %s)", lhs, e.Operator, rhs), nil
		case "%":
			t.needsMath = true
			return fmt.Sprintf("fmod(%s, %s)", lhs, rhs), nil
		case "^":
			t.needsMath = true
			return fmt.Sprintf("pow(%s, %s)", lhs, rhs), nil
		}
		return "", fmt.Errorf("operator %q is not translatable", e.Operator)

	case *ast.UnaryMinusOpExpr:
		inner, err := t.emit(e.Expr)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(-%s)", inner), nil

	case *ast.FuncCallExpr:
		name := callName(e)
		fn, ok := mathFunctions[name]
		if !ok {
			return "", fmt.Errorf("unknown function %q", name)
		}
		args := make([]string, len(e.Args))
		for i, arg := range e.Args {
			code, err := t.emit(arg)
			if err != nil {
				return "", err
			}
			args[i] = code
		}
		t.needsMath = true
		return fmt.Sprintf("%s(%s)", fn.cName, strings.Join(args, ", ")), nil
	}

	return "", fmt.Errorf("construct %T is not translatable", expr)
}

// cNumberLiteral renders a Lua number literal as a C double literal. Bare
// integers get a trailing ".0" so division stays floating-point.
func cNumberLiteral(text string) string {
	if strings.ContainsAny(text, ".eExXpP") {
		return text
	}
	return text + ".0"
}
