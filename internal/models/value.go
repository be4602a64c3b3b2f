package models

import "fmt"

// Value is a runtime signal value: a flat row-major element bank tagged with
// its signal type. Booleans are stored as 0/1. Used by the interpreter; the
// code generator emits equivalent C aggregates instead.
type Value struct {
	Type SignalType `json:"type"`
	Data []float64  `json:"data"`
}

// NewValue creates a zero value of the given type.
func NewValue(t SignalType) *Value {
	return &Value{Type: t, Data: make([]float64, t.ElementCount())}
}

// ScalarValue creates a scalar double value.
func ScalarValue(v float64) *Value {
	return &Value{Type: ScalarDouble(), Data: []float64{v}}
}

// VectorValue creates a double vector value from its elements.
func VectorValue(elems ...float64) *Value {
	data := make([]float64, len(elems))
	copy(data, elems)
	return &Value{Type: Vector(BaseDouble, len(elems)), Data: data}
}

// Scalar returns the single element of a scalar value, or the first element
// otherwise.
func (v *Value) Scalar() float64 {
	if len(v.Data) == 0 {
		return 0
	}
	return v.Data[0]
}

// Bool interprets the value as an enable signal: non-zero first element.
func (v *Value) Bool() bool {
	return v.Scalar() != 0
}

// At returns element i of the flat bank.
func (v *Value) At(i int) float64 {
	return v.Data[i]
}

// Clone creates a deep copy of the value.
func (v *Value) Clone() *Value {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)
	return &Value{Type: v.Type, Data: data}
}

// CopyFrom copies another value's elements into this one. The shapes must
// have the same element count.
func (v *Value) CopyFrom(other *Value) error {
	if len(v.Data) != len(other.Data) {
		return fmt.Errorf("element count mismatch: %d vs %d", len(v.Data), len(other.Data))
	}
	copy(v.Data, other.Data)
	return nil
}

// String renders the value for logging.
func (v *Value) String() string {
	if v.Type.IsScalar() {
		return fmt.Sprintf("%g", v.Scalar())
	}
	return fmt.Sprintf("%s%v", v.Type, v.Data)
}
