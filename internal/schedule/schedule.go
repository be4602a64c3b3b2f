// Package schedule computes the deterministic execution order of a
// flattened model. Ordering is a depth-first topological sort over the wire
// graph plus enable edges; cycles are classified by direct feedthrough.
package schedule

import (
	"fmt"
	"strings"

	"blockflow/internal/models"
	"blockflow/internal/modules"
)

// Result is the outcome of scheduling.
type Result struct {
	// Order lists every runtime block in a valid execution order: each
	// block appears after all blocks it depends on, except across broken
	// edges.
	Order []*models.FlattenedBlock

	// BrokenEdges lists the wires removed to break state-bearing cycles.
	// A consumer across a broken edge reads the producer's value from the
	// previous sweep.
	BrokenEdges []*models.FlattenedConnection
}

// dep is one scheduling dependency: the block must run after source. conn is
// nil for enable edges, which carry no data wire of their own.
type dep struct {
	source string
	conn   *models.FlattenedConnection
}

const (
	white = iota // unvisited
	gray         // on the DFS stack
	black        // finished
)

// Order computes the execution order for a flattened model. Cycles whose
// blocks are all direct feedthrough are unsolvable and reported as errors;
// any other cycle is broken at the discovered back edge with a warning.
//
// The order is deterministic: blocks are visited in flattening order and
// dependencies in wire document order, so the same model always schedules
// identically.
func Order(fm *models.FlattenedModel) (*Result, *models.DiagnosticList) {
	s := &scheduler{
		fm:    fm,
		diags: &models.DiagnosticList{},
		color: make(map[string]int, len(fm.Blocks)),
		deps:  make(map[string][]dep, len(fm.Blocks)),
	}
	s.buildDeps()
	for _, fb := range fm.Blocks {
		if s.color[fb.ID()] == white {
			s.visit(fb.ID())
		}
	}
	return &Result{Order: s.order, BrokenEdges: s.broken}, s.diags
}

type scheduler struct {
	fm    *models.FlattenedModel
	diags *models.DiagnosticList

	color  map[string]int
	stack  []string
	deps   map[string][]dep
	order  []*models.FlattenedBlock
	broken []*models.FlattenedConnection
}

// buildDeps collects, per block, its upstream wires plus one enable edge per
// governing scope with a connected enable wire. Enable drivers must evaluate
// before any block they gate.
func (s *scheduler) buildDeps() {
	for _, fb := range s.fm.Blocks {
		id := fb.ID()
		for _, conn := range s.fm.InputConnections(id) {
			s.deps[id] = append(s.deps[id], dep{source: conn.Source.BlockID, conn: conn})
		}
		for scope := fb.EnableScope; scope != ""; {
			info := s.fm.SubsystemEnables[scope]
			if info == nil {
				break
			}
			if info.Enable != nil {
				s.deps[id] = append(s.deps[id], dep{source: info.Enable.Source.BlockID})
			}
			scope = info.ParentScope
		}
	}
}

func (s *scheduler) visit(id string) {
	s.color[id] = gray
	s.stack = append(s.stack, id)
	for _, d := range s.deps[id] {
		if s.fm.BlockByID(d.source) == nil {
			continue
		}
		switch s.color[d.source] {
		case white:
			s.visit(d.source)
		case gray:
			s.classifyCycle(d.source, d.conn)
		}
	}
	s.stack = s.stack[:len(s.stack)-1]
	s.color[id] = black
	s.order = append(s.order, s.fm.BlockByID(id))
}

// classifyCycle handles a back edge from the current stack top into entry.
// The cycle is the stack segment from entry onward. When every block in it
// is direct feedthrough no valid order exists and the loop is fatal;
// otherwise some block in the loop reads only state, the back edge is safe
// to break, and the consumer sees the previous sweep's value.
func (s *scheduler) classifyCycle(entry string, conn *models.FlattenedConnection) {
	start := 0
	for i, id := range s.stack {
		if id == entry {
			start = i
			break
		}
	}
	segment := s.stack[start:]

	allFeedthrough := true
	names := make([]string, 0, len(segment))
	for _, id := range segment {
		fb := s.fm.BlockByID(id)
		names = append(names, fb.FlattenedName)
		if !s.feedthrough(fb) {
			allFeedthrough = false
		}
	}
	path := fmt.Sprintf("%s -> %s", strings.Join(names, " -> "), names[0])

	if allFeedthrough {
		s.diags.Errorf(models.CodeAlgebraicLoop, entry,
			"algebraic loop with direct feedthrough on every block: %s", path)
		return
	}
	s.diags.Warnf(models.CodeStateLoop, entry,
		"state-bearing loop broken at %s: %s; the downstream block reads the previous step's value", names[0], path)
	if conn != nil {
		s.broken = append(s.broken, conn)
	}
}

func (s *scheduler) feedthrough(fb *models.FlattenedBlock) bool {
	m, ok := modules.ForBlock(fb.Block)
	if !ok {
		return true
	}
	return m.DirectFeedthrough(fb.Block)
}
