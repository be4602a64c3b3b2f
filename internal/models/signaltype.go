package models

import (
	"fmt"
	"strconv"
	"strings"
)

// BaseType is the element type of a signal.
type BaseType string

const (
	BaseBool   BaseType = "bool"
	BaseInt    BaseType = "int"
	BaseLong   BaseType = "long"
	BaseFloat  BaseType = "float"
	BaseDouble BaseType = "double"
)

// IsValidBaseType reports whether b is a member of the base type enumeration.
func IsValidBaseType(b BaseType) bool {
	switch b {
	case BaseBool, BaseInt, BaseLong, BaseFloat, BaseDouble:
		return true
	}
	return false
}

// Shape classifies the dimensionality of a signal.
type Shape int

const (
	ShapeScalar Shape = iota
	ShapeVector
	ShapeMatrix
)

// SignalType is the concrete type of one block output: a base numeric or
// boolean type plus a scalar, vector, or matrix shape. The zero value is not
// meaningful; use ScalarDouble or ParseSignalType.
type SignalType struct {
	Base BaseType `json:"base"`
	Kind Shape    `json:"shape"`
	Rows int      `json:"rows,omitempty"` // matrix rows
	Cols int      `json:"cols,omitempty"` // vector length or matrix columns
}

// ScalarDouble is the fallback type substituted for invalid declarations.
func ScalarDouble() SignalType {
	return SignalType{Base: BaseDouble, Kind: ShapeScalar}
}

// Scalar returns a scalar type of the given base.
func Scalar(base BaseType) SignalType {
	return SignalType{Base: base, Kind: ShapeScalar}
}

// Vector returns a vector type of the given base and length.
func Vector(base BaseType, n int) SignalType {
	return SignalType{Base: base, Kind: ShapeVector, Cols: n}
}

// Matrix returns a matrix type of the given base and dimensions.
func Matrix(base BaseType, rows, cols int) SignalType {
	return SignalType{Base: base, Kind: ShapeMatrix, Rows: rows, Cols: cols}
}

// ElementCount returns the number of scalar elements in the shape.
func (t SignalType) ElementCount() int {
	switch t.Kind {
	case ShapeVector:
		return t.Cols
	case ShapeMatrix:
		return t.Rows * t.Cols
	default:
		return 1
	}
}

// IsScalar reports whether the shape is scalar.
func (t SignalType) IsScalar() bool { return t.Kind == ShapeScalar }

// SameShape reports whether two types have identical shape, ignoring the
// base type. Element-wise blocks require same-shape operands.
func (t SignalType) SameShape(other SignalType) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case ShapeVector:
		return t.Cols == other.Cols
	case ShapeMatrix:
		return t.Rows == other.Rows && t.Cols == other.Cols
	default:
		return true
	}
}

// Equal reports whether two types are identical in base and shape.
func (t SignalType) Equal(other SignalType) bool {
	return t.Base == other.Base && t.SameShape(other)
}

// WithBase returns a copy of the type with a different base.
func (t SignalType) WithBase(base BaseType) SignalType {
	t.Base = base
	return t
}

// String renders the type in declaration form: "double", "double[3]",
// "double[2][3]".
func (t SignalType) String() string {
	switch t.Kind {
	case ShapeVector:
		return fmt.Sprintf("%s[%d]", t.Base, t.Cols)
	case ShapeMatrix:
		return fmt.Sprintf("%s[%d][%d]", t.Base, t.Rows, t.Cols)
	default:
		return string(t.Base)
	}
}

// ParseSignalType parses a declaration string such as "double", "int[4]" or
// "double[2][3]" into a SignalType. Dimensions must be positive.
func ParseSignalType(decl string) (SignalType, error) {
	decl = strings.TrimSpace(decl)
	if decl == "" {
		return SignalType{}, fmt.Errorf("empty type declaration")
	}

	base := decl
	var dims []int
	if i := strings.IndexByte(decl, '['); i >= 0 {
		base = strings.TrimSpace(decl[:i])
		rest := decl[i:]
		for rest != "" {
			if rest[0] != '[' {
				return SignalType{}, fmt.Errorf("malformed type declaration %q", decl)
			}
			close := strings.IndexByte(rest, ']')
			if close < 0 {
				return SignalType{}, fmt.Errorf("unterminated dimension in %q", decl)
			}
			n, err := strconv.Atoi(strings.TrimSpace(rest[1:close]))
			if err != nil || n <= 0 {
				return SignalType{}, fmt.Errorf("invalid dimension in %q", decl)
			}
			dims = append(dims, n)
			rest = rest[close+1:]
		}
	}

	bt := BaseType(base)
	if !IsValidBaseType(bt) {
		return SignalType{}, fmt.Errorf("unknown base type %q", base)
	}

	switch len(dims) {
	case 0:
		return Scalar(bt), nil
	case 1:
		return Vector(bt, dims[0]), nil
	case 2:
		return Matrix(bt, dims[0], dims[1]), nil
	default:
		return SignalType{}, fmt.Errorf("too many dimensions in %q", decl)
	}
}
