// Package modules implements the block module registry: one behavior bundle
// per block kind, looked up by tag. Every later pipeline stage programs
// against the Module contract only and never inspects concrete kinds.
package modules

import (
	"fmt"

	"blockflow/internal/expression"
	"blockflow/internal/models"
)

// EvalEnv carries per-engine services into block evaluation. The expression
// evaluator is stateful (it owns a Lua state), so it belongs to the calling
// engine rather than the shared registry.
type EvalEnv struct {
	Expr *expression.Evaluator
}

// Module is the capability bundle implemented once per block kind.
//
// Evaluate computes the interpreter-path output from resolved input values
// and the block's current state bank; Emit produces the equivalent C
// statements. State banks are flat element-major slices of length
// StateOrder(b) * outputElements; Derivatives and EmitDerivatives are only
// called when StateOrder reports a positive order.
type Module interface {
	Kind() models.BlockKind

	// InputCount and OutputCount report the block's port counts, which may
	// depend on its parameters (e.g. a sum block's sign string).
	InputCount(b *models.Block) int
	OutputCount(b *models.Block) int

	// DirectFeedthrough reports whether the output at time t depends
	// algebraically on the input at time t. Blocks that read only state or
	// constants return false; the cycle classifier relies on this.
	DirectFeedthrough(b *models.Block) bool

	// StateOrder reports the per-element continuous state order (0 for
	// stateless blocks).
	StateOrder(b *models.Block) int

	// Validate checks kind-specific parameters once at compile time.
	Validate(b *models.Block) []models.Diagnostic

	// InferOutputType derives the output type from resolved input types.
	InferOutputType(b *models.Block, inputs []models.SignalType) (models.SignalType, error)

	Evaluate(b *models.Block, in []*models.Value, state []float64, env *EvalEnv) (*models.Value, error)
	Derivatives(b *models.Block, in []*models.Value, state, deriv []float64) error

	Emit(b *models.Block, ctx *EmitContext) (string, error)
	EmitDerivatives(b *models.Block, ctx *EmitContext) (string, error)
}

// registry maps every supported kind to its module. It is immutable package
// data: lookups are pure and safe from any goroutine.
var registry = map[models.BlockKind]Module{}

func register(m Module) {
	if _, dup := registry[m.Kind()]; dup {
		panic(fmt.Sprintf("duplicate module registration for kind %s", m.Kind()))
	}
	registry[m.Kind()] = m
}

// For returns the module implementing the given kind. The second result is
// false for kinds with no runtime behavior (structural kinds and unknown
// tags); the caller decides whether that is fatal or a silent skip based on
// the presentation allow-list.
func For(kind models.BlockKind) (Module, bool) {
	m, ok := registry[kind]
	return m, ok
}

// ForBlock is a convenience wrapper around For.
func ForBlock(b *models.Block) (Module, bool) {
	return For(b.Kind)
}

// base provides defaults shared by most modules: one output, direct
// feedthrough, stateless, no parameter checks.
type base struct {
	kind models.BlockKind
}

func (m base) Kind() models.BlockKind                       { return m.kind }
func (m base) OutputCount(b *models.Block) int              { return 1 }
func (m base) DirectFeedthrough(b *models.Block) bool       { return true }
func (m base) StateOrder(b *models.Block) int               { return 0 }
func (m base) Validate(b *models.Block) []models.Diagnostic { return nil }

func (m base) Derivatives(b *models.Block, in []*models.Value, state, deriv []float64) error {
	return fmt.Errorf("block kind %s owns no state", m.kind)
}

func (m base) EmitDerivatives(b *models.Block, ctx *EmitContext) (string, error) {
	return "", fmt.Errorf("block kind %s owns no state", m.kind)
}

// paramError builds an error-severity diagnostic for a bad parameter.
func paramError(b *models.Block, format string, args ...interface{}) models.Diagnostic {
	return models.Diagnostic{
		Severity: models.SeverityError,
		Code:     models.CodeInvalidParameter,
		Message:  fmt.Sprintf(format, args...),
		BlockID:  b.ID,
	}
}

// paramWarning builds a warning-severity diagnostic for a tolerated
// parameter issue.
func paramWarning(b *models.Block, format string, args ...interface{}) models.Diagnostic {
	return models.Diagnostic{
		Severity: models.SeverityWarning,
		Code:     models.CodeInvalidParameter,
		Message:  fmt.Sprintf(format, args...),
		BlockID:  b.ID,
	}
}
