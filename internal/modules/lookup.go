package modules

import (
	"fmt"
	"strings"

	"blockflow/internal/models"
)

func init() {
	register(&lookup1DModule{base{models.KindLookup1D}})
	register(&lookup2DModule{base{models.KindLookup2D}})
}

// interp1 performs clamped linear interpolation over a breakpoint table.
func interp1(xs, ys []float64, x float64) float64 {
	n := len(xs)
	if n == 0 || len(ys) == 0 {
		return 0
	}
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	for i := 1; i < n; i++ {
		if x <= xs[i] {
			t := (x - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + t*(ys[i]-ys[i-1])
		}
	}
	return ys[n-1]
}

// interp1Index locates the clamped interval and fraction for x.
func interp1Index(xs []float64, x float64) (int, float64) {
	n := len(xs)
	if x <= xs[0] {
		return 0, 0
	}
	if x >= xs[n-1] {
		return n - 2, 1
	}
	for i := 1; i < n; i++ {
		if x <= xs[i] {
			return i - 1, (x - xs[i-1]) / (xs[i] - xs[i-1])
		}
	}
	return n - 2, 1
}

// lookup1DHelper is the shared C interpolation routine referenced by every
// lookup_1d block. The generator deduplicates identical prelude fragments.
const lookup1DHelper = `static double blockflow_lookup1d(const double *xs, const double *ys, int n, double x) {
    int i;
    if (x <= xs[0]) return ys[0];
    if (x >= xs[n - 1]) return ys[n - 1];
    for (i = 1; i < n; i++) {
        if (x <= xs[i]) {
            double t = (x - xs[i - 1]) / (xs[i] - xs[i - 1]);
            return ys[i - 1] + t * (ys[i] - ys[i - 1]);
        }
    }
    return ys[n - 1];
}`

// lookup_1d

type lookup1DModule struct{ base }

func (m *lookup1DModule) InputCount(b *models.Block) int { return 1 }

func (m *lookup1DModule) Validate(b *models.Block) []models.Diagnostic {
	xs := b.FloatSliceParam("inputValues")
	ys := b.FloatSliceParam("outputValues")
	if len(xs) < 2 || len(xs) != len(ys) {
		return []models.Diagnostic{paramError(b,
			"lookup_1d block %s: inputValues and outputValues must be equal-length tables of at least two points", b.Name)}
	}
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return []models.Diagnostic{paramError(b,
				"lookup_1d block %s: inputValues must be strictly increasing", b.Name)}
		}
	}
	return nil
}

func (m *lookup1DModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	if len(inputs) > 0 && !inputs[0].IsScalar() {
		return models.SignalType{}, fmt.Errorf("lookup_1d block %s requires a scalar input, got %s", b.Name, inputs[0])
	}
	return models.Scalar(models.BaseDouble), nil
}

func (m *lookup1DModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	xs := b.FloatSliceParam("inputValues")
	ys := b.FloatSliceParam("outputValues")
	x := inputOrZero(in, 0, models.ScalarDouble()).Scalar()
	return models.ScalarValue(interp1(xs, ys, x)), nil
}

func (m *lookup1DModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	xs := b.FloatSliceParam("inputValues")
	ys := b.FloatSliceParam("outputValues")
	ctx.AddPrelude(lookup1DHelper)
	ctx.AddPrelude(fmt.Sprintf("static const double %s_xs[%d] = {%s};", ctx.BlockName, len(xs), cFloatList(xs)))
	ctx.AddPrelude(fmt.Sprintf("static const double %s_ys[%d] = {%s};", ctx.BlockName, len(ys), cFloatList(ys)))
	return fmt.Sprintf("%s = blockflow_lookup1d(%s_xs, %s_ys, %d, %s);",
		ctx.Output.Expr, ctx.BlockName, ctx.BlockName, len(xs), ctx.Input(0).Elem(0)), nil
}

// lookup_2d

type lookup2DModule struct{ base }

func (m *lookup2DModule) InputCount(b *models.Block) int { return 2 }

func (m *lookup2DModule) Validate(b *models.Block) []models.Diagnostic {
	rows := b.FloatSliceParam("rowValues")
	cols := b.FloatSliceParam("colValues")
	table := b.FloatMatrixParam("table")
	if len(rows) < 2 || len(cols) < 2 || len(table) != len(rows) || len(table) == 0 || len(table[0]) != len(cols) {
		return []models.Diagnostic{paramError(b,
			"lookup_2d block %s: table must be len(rowValues) x len(colValues) with at least two breakpoints per axis", b.Name)}
	}
	return nil
}

func (m *lookup2DModule) InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error) {
	for i, t := range inputs {
		if !t.IsScalar() {
			return models.SignalType{}, fmt.Errorf("lookup_2d block %s: input %d must be scalar, got %s", b.Name, i+1, t)
		}
	}
	return models.Scalar(models.BaseDouble), nil
}

func (m *lookup2DModule) Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error) {
	rows := b.FloatSliceParam("rowValues")
	cols := b.FloatSliceParam("colValues")
	table := b.FloatMatrixParam("table")
	if len(rows) < 2 || len(cols) < 2 || len(table) != len(rows) {
		return nil, fmt.Errorf("lookup_2d block %s has a malformed table", b.Name)
	}
	x := inputOrZero(in, 0, models.ScalarDouble()).Scalar()
	y := inputOrZero(in, 1, models.ScalarDouble()).Scalar()
	ri, rt := interp1Index(rows, x)
	ci, ct := interp1Index(cols, y)
	v00 := table[ri][ci]
	v01 := table[ri][ci+1]
	v10 := table[ri+1][ci]
	v11 := table[ri+1][ci+1]
	top := v00 + ct*(v01-v00)
	bottom := v10 + ct*(v11-v10)
	return models.ScalarValue(top + rt*(bottom-top)), nil
}

// lookup2DHelper is the shared C bilinear interpolation routine.
const lookup2DHelper = `static int blockflow_interval(const double *xs, int n, double x, double *t) {
    int i;
    if (x <= xs[0]) { *t = 0.0; return 0; }
    if (x >= xs[n - 1]) { *t = 1.0; return n - 2; }
    for (i = 1; i < n; i++) {
        if (x <= xs[i]) {
            *t = (x - xs[i - 1]) / (xs[i] - xs[i - 1]);
            return i - 1;
        }
    }
    *t = 1.0;
    return n - 2;
}

static double blockflow_lookup2d(const double *rows, int nr, const double *cols, int nc,
                                 const double *table, double x, double y) {
    double rt, ct, top, bottom;
    int ri = blockflow_interval(rows, nr, x, &rt);
    int ci = blockflow_interval(cols, nc, y, &ct);
    top = table[ri * nc + ci] + ct * (table[ri * nc + ci + 1] - table[ri * nc + ci]);
    bottom = table[(ri + 1) * nc + ci] + ct * (table[(ri + 1) * nc + ci + 1] - table[(ri + 1) * nc + ci]);
    return top + rt * (bottom - top);
}`

func (m *lookup2DModule) Emit(b *models.Block, ctx *EmitContext) (string, error) {
	rows := b.FloatSliceParam("rowValues")
	cols := b.FloatSliceParam("colValues")
	table := b.FloatMatrixParam("table")
	flat := make([]float64, 0, len(rows)*len(cols))
	for _, row := range table {
		flat = append(flat, row...)
	}
	ctx.AddPrelude(lookup2DHelper)
	ctx.AddPrelude(fmt.Sprintf("static const double %s_rows[%d] = {%s};", ctx.BlockName, len(rows), cFloatList(rows)))
	ctx.AddPrelude(fmt.Sprintf("static const double %s_cols[%d] = {%s};", ctx.BlockName, len(cols), cFloatList(cols)))
	ctx.AddPrelude(fmt.Sprintf("static const double %s_table[%d] = {%s};", ctx.BlockName, len(flat), cFloatList(flat)))
	return fmt.Sprintf("%s = blockflow_lookup2d(%s_rows, %d, %s_cols, %d, %s_table, %s, %s);",
		ctx.Output.Expr, ctx.BlockName, len(rows), ctx.BlockName, len(cols), ctx.BlockName,
		ctx.Input(0).Elem(0), ctx.Input(1).Elem(0)), nil
}

// cFloatList renders a comma-separated C double initializer list.
func cFloatList(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = cFloat(v)
	}
	return strings.Join(parts, ", ")
}
