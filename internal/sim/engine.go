// Package sim interprets a compiled model: fixed-step simulation with an
// algebraic sweep per step and classical fourth-order Runge-Kutta
// integration of block state.
package sim

import (
	"fmt"

	"blockflow/internal/compile"
	"blockflow/internal/expression"
	"blockflow/internal/models"
	"blockflow/internal/modules"
)

// Engine executes one compiled model. It owns a Lua evaluator for evaluate
// blocks, so callers must Close it, and it is not safe for concurrent use.
type Engine struct {
	compiled *compile.CompiledModel
	eval     *expression.Evaluator
	env      *modules.EvalEnv

	time  float64
	dt    float64
	steps int

	// signals holds each block's most recent output value. A block inside a
	// disabled scope is skipped during the sweep, so its entry freezes at
	// the value from the last enabled step.
	signals map[string]*models.Value

	// states holds each stateful block's flat state bank.
	states map[string][]float64

	// inputs holds caller-supplied values for root input ports, by block id.
	inputs map[string]*models.Value
}

// NewEngine builds an engine for a compiled model. Compilation errors make
// the model unrunnable.
func NewEngine(c *compile.CompiledModel) (*Engine, error) {
	if c.HasErrors() {
		return nil, fmt.Errorf("model %s has compile errors:\n%s", c.Model.Name, c.Diagnostics)
	}
	eval := expression.NewEvaluator()
	e := &Engine{
		compiled: c,
		eval:     eval,
		env:      &modules.EvalEnv{Expr: eval},
		dt:       c.Model.Timestep,
		signals:  make(map[string]*models.Value),
		states:   make(map[string][]float64),
		inputs:   make(map[string]*models.Value),
	}
	for _, fb := range c.Order {
		m, ok := modules.ForBlock(fb.Block)
		if !ok {
			continue
		}
		typ, _ := c.Types.BlockType(fb.ID())
		if m.OutputCount(fb.Block) > 0 {
			e.signals[fb.ID()] = models.NewValue(typ)
		}
		if order := m.StateOrder(fb.Block); order > 0 {
			e.states[fb.ID()] = make([]float64, order*typ.ElementCount())
		}
	}
	return e, nil
}

// Close releases the engine's Lua state.
func (e *Engine) Close() {
	if e.eval != nil {
		e.eval.Close()
	}
}

// Time returns the current simulation time.
func (e *Engine) Time() float64 { return e.time }

// StepCount returns the number of completed steps.
func (e *Engine) StepCount() int { return e.steps }

// Timestep returns the fixed step size.
func (e *Engine) Timestep() float64 { return e.dt }

// SetInput supplies a value for the named model-level input port. The value
// must match the port's declared shape; it is held until replaced.
func (e *Engine) SetInput(name string, v *models.Value) error {
	for _, fb := range e.compiled.Flattened.RootInputPorts() {
		if fb.Block.Name != name && fb.FlattenedName != name {
			continue
		}
		declared, err := fb.Block.DeclaredType()
		if err != nil {
			declared = models.ScalarDouble()
		}
		if !v.Type.SameShape(declared) {
			return fmt.Errorf("input %s expects shape %s, got %s", name, declared, v.Type)
		}
		e.inputs[fb.ID()] = v.Clone()
		return nil
	}
	return fmt.Errorf("no input port named %s", name)
}

// SetInputScalar is a convenience wrapper for scalar input ports.
func (e *Engine) SetInputScalar(name string, x float64) error {
	return e.SetInput(name, models.ScalarValue(x))
}

// Outputs returns the current value of every model-level output port, keyed
// by port name.
func (e *Engine) Outputs() map[string]*models.Value {
	out := make(map[string]*models.Value)
	for _, fb := range e.compiled.Flattened.RootOutputPorts() {
		if v := e.signals[fb.ID()]; v != nil {
			out[fb.Block.Name] = v.Clone()
		}
	}
	return out
}

// Signal returns the current output value of the block with the given
// flattened name.
func (e *Engine) Signal(name string) (*models.Value, bool) {
	fb := e.compiled.Flattened.BlockByName(name)
	if fb == nil {
		return nil, false
	}
	v, ok := e.signals[fb.ID()]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// Step advances the simulation by one fixed step: state is integrated with
// classical RK4 (each stage re-runs the algebraic sweep at the stage's
// state), then a final sweep produces the outputs at the new time.
func (e *Engine) Step() error {
	if err := e.sweep(); err != nil {
		return err
	}
	if len(e.states) > 0 {
		if err := e.integrate(); err != nil {
			return err
		}
	}
	e.time += e.dt
	e.steps++
	return e.sweep()
}

// Run advances the simulation by n steps.
func (e *Engine) Run(n int) error {
	for i := 0; i < n; i++ {
		if err := e.Step(); err != nil {
			return fmt.Errorf("step %d: %w", e.steps+1, err)
		}
	}
	return nil
}

// RunUntil advances the simulation until time reaches or passes end.
func (e *Engine) RunUntil(end float64) error {
	for e.time < end-e.dt/2 {
		if err := e.Step(); err != nil {
			return fmt.Errorf("step %d: %w", e.steps+1, err)
		}
	}
	return nil
}

// integrate performs one RK4 update of every state bank. Stage states are
// installed temporarily so each derivative evaluation sees consistent
// algebraic signals.
func (e *Engine) integrate() error {
	x0 := cloneStates(e.states)

	k1, err := e.derivatives()
	if err != nil {
		return err
	}
	k2, err := e.stageDerivatives(x0, k1, e.dt/2)
	if err != nil {
		return err
	}
	k3, err := e.stageDerivatives(x0, k2, e.dt/2)
	if err != nil {
		return err
	}
	k4, err := e.stageDerivatives(x0, k3, e.dt)
	if err != nil {
		return err
	}

	for id, x := range x0 {
		next := e.states[id]
		for i := range x {
			next[i] = x[i] + e.dt/6*(k1[id][i]+2*k2[id][i]+2*k3[id][i]+k4[id][i])
		}
	}
	return nil
}

// stageDerivatives evaluates the derivative function at base + h*k.
func (e *Engine) stageDerivatives(base, k map[string][]float64, h float64) (map[string][]float64, error) {
	for id, x := range base {
		dst := e.states[id]
		for i := range x {
			dst[i] = x[i] + h*k[id][i]
		}
	}
	if err := e.sweep(); err != nil {
		return nil, err
	}
	return e.derivatives()
}

// sweep evaluates every block in execution order at the current state.
// Blocks in a disabled scope are skipped so their outputs hold; output ports
// always execute so a disabled subsystem still presents its frozen result.
func (e *Engine) sweep() error {
	for _, fb := range e.compiled.Order {
		m, ok := modules.ForBlock(fb.Block)
		if !ok {
			continue
		}
		if m.OutputCount(fb.Block) == 0 {
			continue
		}
		if !e.enabled(fb) && fb.Kind() != models.KindOutputPort {
			continue
		}
		if fb.Kind() == models.KindInputPort && len(fb.SubsystemPath) == 0 {
			if ov := e.inputs[fb.ID()]; ov != nil {
				e.signals[fb.ID()] = ov.Clone()
				continue
			}
		}
		out, err := m.Evaluate(fb.Block, e.inputValues(fb, m.InputCount(fb.Block)), e.states[fb.ID()], e.env)
		if err != nil {
			return fmt.Errorf("evaluating block %s: %w", fb.FlattenedName, err)
		}
		e.signals[fb.ID()] = out
	}
	return nil
}

// derivatives computes the state derivative of every stateful block at the
// current signals. Disabled scopes contribute zero derivatives, freezing
// their state.
func (e *Engine) derivatives() (map[string][]float64, error) {
	out := make(map[string][]float64, len(e.states))
	for _, fb := range e.compiled.Order {
		state, stateful := e.states[fb.ID()]
		if !stateful {
			continue
		}
		deriv := make([]float64, len(state))
		out[fb.ID()] = deriv
		if !e.enabled(fb) {
			continue
		}
		m, _ := modules.ForBlock(fb.Block)
		if err := m.Derivatives(fb.Block, e.inputValues(fb, m.InputCount(fb.Block)), state, deriv); err != nil {
			return nil, fmt.Errorf("derivatives of block %s: %w", fb.FlattenedName, err)
		}
	}
	return out, nil
}

// inputValues resolves a block's input values from the signal table.
// Unconnected ports yield nil, which modules treat as zero.
func (e *Engine) inputValues(fb *models.FlattenedBlock, n int) []*models.Value {
	in := make([]*models.Value, n)
	for i := 0; i < n; i++ {
		conn := e.compiled.Flattened.ConnectionInto(fb.ID(), i)
		if conn == nil {
			continue
		}
		in[i] = e.portValue(conn.Source)
	}
	return in
}

// portValue reads one source endpoint. Demux blocks store the incoming
// vector; each port exposes one scalar element of it.
func (e *Engine) portValue(src models.Endpoint) *models.Value {
	v := e.signals[src.BlockID]
	if v == nil {
		return nil
	}
	fb := e.compiled.Flattened.BlockByID(src.BlockID)
	if fb != nil && fb.Kind() == models.KindDemux {
		elem := models.NewValue(models.Scalar(v.Type.Base))
		if src.Port < len(v.Data) {
			elem.Data[0] = v.Data[src.Port]
		}
		return elem
	}
	return v
}

// enabled computes the effective enable of a block: the AND of every
// governing scope's enable signal up the scope chain. A scope with no
// connected enable wire defaults to enabled.
func (e *Engine) enabled(fb *models.FlattenedBlock) bool {
	for scope := fb.EnableScope; scope != ""; {
		info := e.compiled.Flattened.SubsystemEnables[scope]
		if info == nil {
			return true
		}
		if info.Enable != nil {
			v := e.portValue(info.Enable.Source)
			if v == nil || !v.Bool() {
				return false
			}
		}
		scope = info.ParentScope
	}
	return true
}

func cloneStates(src map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(src))
	for id, x := range src {
		out[id] = append([]float64(nil), x...)
	}
	return out
}
