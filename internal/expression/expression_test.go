package expression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsNonExpressions(t *testing.T) {
	for _, src := range []string{"", "x = 1", "do end", "1 +"} {
		_, err := Parse(src)
		assert.Error(t, err, src)
	}
}

func TestValidate(t *testing.T) {
	prog, err := Parse("in1 + sin(in2) * pi")
	require.NoError(t, err)

	res := prog.Validate(2)
	assert.True(t, res.Valid)
	assert.True(t, res.UsesMathFunctions)

	res = prog.Validate(1)
	assert.False(t, res.Valid, "in2 exceeds one input")

	prog, err = Parse("in1 + bogus")
	require.NoError(t, err)
	res = prog.Validate(2)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)

	prog, err = Parse("shutdown(in1)")
	require.NoError(t, err)
	assert.False(t, prog.Validate(1).Valid, "unknown function")

	prog, err = Parse("atan2(in1)")
	require.NoError(t, err)
	assert.False(t, prog.Validate(1).Valid, "atan2 needs two arguments")

	prog, err = Parse("in1 + in2 * 3")
	require.NoError(t, err)
	res = prog.Validate(2)
	assert.True(t, res.Valid)
	assert.False(t, res.UsesMathFunctions)
}

func TestEvaluate(t *testing.T) {
	e := NewEvaluator()
	defer e.Close()

	cases := []struct {
		src    string
		inputs []float64
		want   float64
	}{
		{"in1 + in2", []float64{2, 3}, 5},
		{"sin(pi / 2)", nil, 1},
		{"math.cos(0)", nil, 1},
		{"min(in1, in2) + max(in1, in2)", []float64{4, 7}, 11},
		{"in1 ^ 2", []float64{3}, 9},
		{"abs(-in1)", []float64{2.5}, 2.5},
		{"atan2(in1, in2)", []float64{1, 1}, math.Pi / 4},
		{"sqrt(in1)", []float64{16}, 4},
	}
	for _, tc := range cases {
		prog, err := Parse(tc.src)
		require.NoError(t, err, tc.src)
		got, err := e.Evaluate(prog, tc.inputs)
		require.NoError(t, err, tc.src)
		assert.InDelta(t, tc.want, got, 1e-12, tc.src)
	}
}

func TestToCode(t *testing.T) {
	prog, err := Parse("in1 ^ 2 + abs(in2) * pi")
	require.NoError(t, err)

	res, err := prog.ToCode([]string{"u", "v"})
	require.NoError(t, err)
	assert.True(t, res.NeedsMath)
	assert.Contains(t, res.Code, "pow(u, 2.0)")
	assert.Contains(t, res.Code, "fabs(v)")
	assert.Contains(t, res.Code, "M_PI")

	prog, err = Parse("in1 + 2 * in2")
	require.NoError(t, err)
	res, err = prog.ToCode([]string{"a", "b"})
	require.NoError(t, err)
	assert.False(t, res.NeedsMath)
	assert.Equal(t, "(a + (2.0 * b))", res.Code)

	prog, err = Parse("in1 % 3")
	require.NoError(t, err)
	res, err = prog.ToCode([]string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "fmod(a, 3.0)", res.Code)
	assert.True(t, res.NeedsMath)

	prog, err = Parse("in1 + in3")
	require.NoError(t, err)
	_, err = prog.ToCode([]string{"a"})
	assert.Error(t, err, "in3 has no substitution")
}
