// Package codegen emits a self-contained C source file for a compiled
// model: plain structs for inputs, outputs, signals, states, and enable
// flags, plus init and step functions. Stateful models additionally get a
// derivatives function and a classical RK4 driver inside step.
package codegen

import (
	"fmt"
	"strings"

	"blockflow/internal/compile"
	"blockflow/internal/flatten"
	"blockflow/internal/models"
	"blockflow/internal/modules"
)

// Output is one generated C translation unit.
type Output struct {
	// Name is the sanitized model name used as the identifier prefix.
	Name string

	// Source is the complete C file contents.
	Source string
}

// Generate renders the C implementation of a compiled model. Compilation
// errors make the model ungenerable.
func Generate(c *compile.CompiledModel) (*Output, error) {
	if c.HasErrors() {
		return nil, fmt.Errorf("model %s has compile errors:\n%s", c.Model.Name, c.Diagnostics)
	}
	g := &generator{
		c:           c,
		name:        flatten.SanitizeName(c.Model.Name),
		preludeSeen: make(map[string]bool),
		scopeDone:   make(map[string]bool),
	}
	if err := g.run(); err != nil {
		return nil, err
	}
	return &Output{Name: g.name, Source: g.buf.String()}, nil
}

type generator struct {
	c    *compile.CompiledModel
	name string
	buf  strings.Builder

	prelude     []string
	preludeSeen map[string]bool

	// scopeDone tracks enable flags already assigned in the current
	// algebraic body.
	scopeDone map[string]bool

	algebraic   []string
	derivatives []string
	stateful    []*models.FlattenedBlock
}

func (g *generator) run() error {
	if err := g.emitBlocks(); err != nil {
		return err
	}

	g.printf("/* Generated fixed-step simulation code for model %q. */\n", g.c.Model.Name)
	g.printf("\n#include <math.h>\n#include <string.h>\n")

	for _, decl := range g.prelude {
		g.printf("\n%s\n", decl)
	}

	g.emitStructs()
	g.emitInit()
	g.emitAlgebraic()
	if len(g.stateful) > 0 {
		g.emitDerivatives()
		g.emitAxpy()
	}
	g.emitStep()
	return nil
}

func (g *generator) printf(format string, args ...interface{}) {
	fmt.Fprintf(&g.buf, format, args...)
}

// cType renders a struct member declaration for a signal type.
func cType(name string, t models.SignalType) string {
	base := "double"
	switch t.Base {
	case models.BaseBool, models.BaseInt:
		base = "int"
	case models.BaseLong:
		base = "long"
	case models.BaseFloat:
		base = "float"
	}
	switch t.Kind {
	case models.ShapeVector:
		return fmt.Sprintf("%s %s[%d];", base, name, t.Cols)
	case models.ShapeMatrix:
		return fmt.Sprintf("%s %s[%d][%d];", base, name, t.Rows, t.Cols)
	default:
		return fmt.Sprintf("%s %s;", base, name)
	}
}

// inSignals reports whether the block owns a member of the signals struct.
// Input ports read the inputs struct, output ports write the outputs
// struct, and presentation blocks produce nothing.
func (g *generator) inSignals(fb *models.FlattenedBlock) bool {
	m, ok := modules.ForBlock(fb.Block)
	if !ok || m.OutputCount(fb.Block) == 0 {
		return false
	}
	return fb.Kind() != models.KindInputPort && fb.Kind() != models.KindOutputPort
}

func (g *generator) blockType(fb *models.FlattenedBlock) models.SignalType {
	t, ok := g.c.Types.BlockType(fb.ID())
	if !ok {
		return models.ScalarDouble()
	}
	return t
}

// operandFor renders the C expression reading one source endpoint.
func (g *generator) operandFor(src models.Endpoint) modules.Operand {
	fb := g.c.Flattened.BlockByID(src.BlockID)
	if fb == nil {
		return modules.Operand{}
	}
	t := g.blockType(fb)
	switch {
	case fb.Kind() == models.KindInputPort:
		return modules.Operand{Expr: "model->inputs." + fb.FlattenedName, Type: t}
	case fb.Kind() == models.KindDemux:
		return modules.Operand{
			Expr: fmt.Sprintf("model->signals.%s[%d]", fb.FlattenedName, src.Port),
			Type: models.Scalar(t.Base),
		}
	default:
		return modules.Operand{Expr: "model->signals." + fb.FlattenedName, Type: t}
	}
}

// emitContext assembles the emission context for one block.
func (g *generator) emitContext(fb *models.FlattenedBlock, m modules.Module) *modules.EmitContext {
	n := m.InputCount(fb.Block)
	ctx := &modules.EmitContext{
		BlockName:  fb.FlattenedName,
		Inputs:     make([]modules.Operand, n),
		InputTypes: make([]models.SignalType, n),
	}
	for i := 0; i < n; i++ {
		conn := g.c.Flattened.ConnectionInto(fb.ID(), i)
		if conn == nil {
			ctx.InputTypes[i] = models.ScalarDouble()
			continue
		}
		op := g.operandFor(conn.Source)
		ctx.Inputs[i] = op
		ctx.InputTypes[i] = op.Type
	}

	t := g.blockType(fb)
	switch fb.Kind() {
	case models.KindOutputPort:
		ctx.Output = modules.Operand{Expr: "model->outputs." + fb.FlattenedName, Type: t}
	default:
		ctx.Output = modules.Operand{Expr: "model->signals." + fb.FlattenedName, Type: t}
	}

	if order := m.StateOrder(fb.Block); order > 0 {
		elems := t.ElementCount()
		ctx.State = modules.StateRef{Expr: "model->states." + fb.FlattenedName, Elems: elems, Order: order}
		ctx.Deriv = modules.StateRef{Expr: "deriv->" + fb.FlattenedName, Elems: elems, Order: order}
	}
	return ctx
}

// emitBlocks walks the execution order once, collecting the algebraic and
// derivative statement lists plus file-level prelude declarations.
func (g *generator) emitBlocks() error {
	for _, fb := range g.c.Order {
		m, ok := modules.ForBlock(fb.Block)
		if !ok {
			continue
		}
		ctx := g.emitContext(fb, m)

		code, err := m.Emit(fb.Block, ctx)
		if err != nil {
			return fmt.Errorf("emitting block %s: %w", fb.FlattenedName, err)
		}
		if code != "" {
			g.addStatements(fb, code)
		}

		if m.StateOrder(fb.Block) > 0 {
			g.stateful = append(g.stateful, fb)
			dcode, err := m.EmitDerivatives(fb.Block, ctx)
			if err != nil {
				return fmt.Errorf("emitting derivatives of block %s: %w", fb.FlattenedName, err)
			}
			g.addDerivStatements(fb, dcode)
		}

		for _, decl := range ctx.Prelude() {
			if !g.preludeSeen[decl] {
				g.preludeSeen[decl] = true
				g.prelude = append(g.prelude, decl)
			}
		}
	}
	return nil
}

// addStatements appends a block's step statements, guarded by its enable
// scope. Output ports always execute so a disabled subsystem still presents
// its frozen result.
func (g *generator) addStatements(fb *models.FlattenedBlock, code string) {
	scope := fb.EnableScope
	if fb.Kind() == models.KindOutputPort {
		scope = ""
	}
	if scope == "" {
		g.algebraic = append(g.algebraic, indent(code, "    "))
		return
	}
	g.ensureScopeFlag(scope, &g.algebraic)
	g.algebraic = append(g.algebraic,
		fmt.Sprintf("    if (model->enable_states.%s) {\n%s\n    }", g.scopeName(scope), indent(code, "        ")))
}

// addDerivStatements appends a stateful block's derivative statements. The
// derivative struct is zeroed up front, so a disabled scope freezes state by
// contributing nothing.
func (g *generator) addDerivStatements(fb *models.FlattenedBlock, code string) {
	if fb.EnableScope == "" {
		g.derivatives = append(g.derivatives, indent(code, "    "))
		return
	}
	g.derivatives = append(g.derivatives,
		fmt.Sprintf("    if (model->enable_states.%s) {\n%s\n    }", g.scopeName(fb.EnableScope), indent(code, "        ")))
}

// ensureScopeFlag emits the enable flag assignment for a scope (and its
// ancestors) at the point of first use in the algebraic body. The flag
// already folds in every ancestor, so guards test a single member.
func (g *generator) ensureScopeFlag(scope string, out *[]string) {
	if scope == "" || g.scopeDone[scope] {
		return
	}
	g.scopeDone[scope] = true

	info := g.c.Flattened.SubsystemEnables[scope]
	if info == nil {
		return
	}
	g.ensureScopeFlag(info.ParentScope, out)

	expr := "1"
	if info.Enable != nil {
		op := g.operandFor(info.Enable.Source)
		expr = fmt.Sprintf("(%s != 0.0)", op.Elem(0))
	}
	if info.ParentScope != "" {
		if parent := g.c.Flattened.SubsystemEnables[info.ParentScope]; parent != nil {
			expr = fmt.Sprintf("model->enable_states.%s && %s", g.scopeName(info.ParentScope), expr)
		}
	}
	*out = append(*out, fmt.Sprintf("    model->enable_states.%s = %s;", g.scopeName(scope), expr))
}

func (g *generator) scopeName(scope string) string {
	if info := g.c.Flattened.SubsystemEnables[scope]; info != nil {
		return info.FlattenedName
	}
	return flatten.SanitizeName(scope)
}

func (g *generator) emitStructs() {
	var members []string
	for _, fb := range g.c.Flattened.RootInputPorts() {
		members = append(members, cType(fb.FlattenedName, g.blockType(fb)))
	}
	g.emitStruct("inputs", members)

	members = nil
	for _, fb := range g.c.Flattened.RootOutputPorts() {
		members = append(members, cType(fb.FlattenedName, g.blockType(fb)))
	}
	g.emitStruct("outputs", members)

	members = nil
	for _, fb := range g.c.Order {
		if g.inSignals(fb) {
			members = append(members, cType(fb.FlattenedName, g.blockType(fb)))
		}
	}
	g.emitStruct("signals", members)

	members = nil
	for _, fb := range g.stateful {
		m, _ := modules.ForBlock(fb.Block)
		order := m.StateOrder(fb.Block)
		elems := g.blockType(fb).ElementCount()
		if elems <= 1 {
			members = append(members, fmt.Sprintf("double %s[%d];", fb.FlattenedName, order))
		} else {
			members = append(members, fmt.Sprintf("double %s[%d][%d];", fb.FlattenedName, elems, order))
		}
	}
	g.emitStruct("states", members)

	members = nil
	for _, info := range g.orderedScopes() {
		members = append(members, fmt.Sprintf("int %s;", info.FlattenedName))
	}
	g.emitStruct("enable_states", members)

	g.printf("\ntypedef struct {\n")
	g.printf("    double time;\n    double dt;\n")
	g.printf("    %s_inputs inputs;\n", g.name)
	g.printf("    %s_outputs outputs;\n", g.name)
	g.printf("    %s_signals signals;\n", g.name)
	g.printf("    %s_states states;\n", g.name)
	g.printf("    %s_enable_states enable_states;\n", g.name)
	g.printf("} %s_model;\n", g.name)
}

// emitStruct renders one typedef. Empty structs are not valid C, so a
// reserved member stands in when a model has no fields for a section.
func (g *generator) emitStruct(suffix string, members []string) {
	g.printf("\ntypedef struct {\n")
	if len(members) == 0 {
		members = []string{"int _reserved;"}
	}
	for _, m := range members {
		g.printf("    %s\n", m)
	}
	g.printf("} %s_%s;\n", g.name, suffix)
}

// orderedScopes returns the enable-declaring subsystems in flattening order
// so struct layout is deterministic. Each block's whole ancestor chain is
// walked; a scope whose only member is another scope still gets a flag,
// since the child's flag expression reads it.
func (g *generator) orderedScopes() []*models.SubsystemEnableInfo {
	var out []*models.SubsystemEnableInfo
	seen := make(map[string]bool)
	add := func(info *models.SubsystemEnableInfo) {
		if !seen[info.ID] {
			seen[info.ID] = true
			out = append(out, info)
		}
	}
	for _, fb := range g.c.Flattened.Blocks {
		var chain []*models.SubsystemEnableInfo
		for scope := fb.EnableScope; scope != ""; {
			info := g.c.Flattened.SubsystemEnables[scope]
			if info == nil {
				break
			}
			chain = append(chain, info)
			scope = info.ParentScope
		}
		for i := len(chain) - 1; i >= 0; i-- {
			add(chain[i])
		}
	}
	return out
}

func (g *generator) emitInit() {
	g.printf("\nvoid %s_init(%s_model *model, double dt) {\n", g.name, g.name)
	g.printf("    memset(model, 0, sizeof(*model));\n")
	g.printf("    model->dt = dt;\n")
	for _, info := range g.orderedScopes() {
		g.printf("    model->enable_states.%s = 1;\n", info.FlattenedName)
	}
	g.printf("}\n")
}

func (g *generator) emitAlgebraic() {
	g.printf("\nstatic void %s_algebraic(%s_model *model) {\n", g.name, g.name)
	for _, stmt := range g.algebraic {
		g.printf("%s\n", stmt)
	}
	g.printf("}\n")
}

func (g *generator) emitDerivatives() {
	g.printf("\nstatic void %s_derivatives(%s_model *model, %s_states *deriv) {\n", g.name, g.name, g.name)
	g.printf("    memset(deriv, 0, sizeof(*deriv));\n")
	for _, stmt := range g.derivatives {
		g.printf("%s\n", stmt)
	}
	g.printf("}\n")
}

// emitAxpy renders the stage helper: out = base + h * k over the flat
// double contents of the states struct.
func (g *generator) emitAxpy() {
	g.printf("\nstatic void %s_states_axpy(%s_states *out, const %s_states *base, const %s_states *k, double h) {\n",
		g.name, g.name, g.name, g.name)
	g.printf("    double *o = (double *)out;\n")
	g.printf("    const double *b = (const double *)base;\n")
	g.printf("    const double *kk = (const double *)k;\n")
	g.printf("    size_t i;\n")
	g.printf("    for (i = 0; i < sizeof(%s_states) / sizeof(double); i++) {\n", g.name)
	g.printf("        o[i] = b[i] + h * kk[i];\n")
	g.printf("    }\n")
	g.printf("}\n")
}

func (g *generator) emitStep() {
	g.printf("\nvoid %s_step(%s_model *model) {\n", g.name, g.name)
	if len(g.stateful) == 0 {
		g.printf("    %s_algebraic(model);\n", g.name)
		g.printf("    model->time += model->dt;\n")
		g.printf("}\n")
		return
	}
	g.printf("    %s_states x0, k1, k2, k3, k4;\n", g.name)
	g.printf("    %s_algebraic(model);\n", g.name)
	g.printf("    x0 = model->states;\n")
	g.printf("    %s_derivatives(model, &k1);\n", g.name)
	g.printf("    %s_states_axpy(&model->states, &x0, &k1, model->dt / 2.0);\n", g.name)
	g.printf("    %s_algebraic(model);\n", g.name)
	g.printf("    %s_derivatives(model, &k2);\n", g.name)
	g.printf("    %s_states_axpy(&model->states, &x0, &k2, model->dt / 2.0);\n", g.name)
	g.printf("    %s_algebraic(model);\n", g.name)
	g.printf("    %s_derivatives(model, &k3);\n", g.name)
	g.printf("    %s_states_axpy(&model->states, &x0, &k3, model->dt);\n", g.name)
	g.printf("    %s_algebraic(model);\n", g.name)
	g.printf("    %s_derivatives(model, &k4);\n", g.name)
	g.printf("    {\n")
	g.printf("        double *x = (double *)&model->states;\n")
	g.printf("        const double *xb = (const double *)&x0;\n")
	g.printf("        const double *d1 = (const double *)&k1;\n")
	g.printf("        const double *d2 = (const double *)&k2;\n")
	g.printf("        const double *d3 = (const double *)&k3;\n")
	g.printf("        const double *d4 = (const double *)&k4;\n")
	g.printf("        size_t i;\n")
	g.printf("        for (i = 0; i < sizeof(%s_states) / sizeof(double); i++) {\n", g.name)
	g.printf("            x[i] = xb[i] + model->dt / 6.0 * (d1[i] + 2.0 * d2[i] + 2.0 * d3[i] + d4[i]);\n")
	g.printf("        }\n")
	g.printf("    }\n")
	g.printf("    model->time += model->dt;\n")
	g.printf("    %s_algebraic(model);\n", g.name)
	g.printf("}\n")
}

// indent prefixes every non-empty line of s.
func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
