package kgraph

import (
	"github.com/coachpo/payroute/errs"
)

// status is the evaluation of a node against a context.
type status uint8

const (
	statusAbsent status = iota + 1
	statusDontCare
	statusPresent
)

// Memo caches node evaluations for one context. It must not be shared across contexts.
type Memo struct {
	nodes map[NodeID]status
}

// NewMemo returns an empty memo.
func NewMemo() *Memo {
	return &Memo{nodes: make(map[NodeID]status)}
}

// Len reports how many node evaluations are cached.
func (m *Memo) Len() int { return len(m.nodes) }

// CycleGuard tracks the nodes on the current evaluation path.
type CycleGuard struct {
	visiting map[NodeID]struct{}
}

// NewCycleGuard returns an empty guard.
func NewCycleGuard() *CycleGuard {
	return &CycleGuard{visiting: make(map[NodeID]struct{})}
}

// AnalysisKind classifies analysis failures.
type AnalysisKind string

const (
	AnalysisCycleDetected AnalysisKind = "cycle_detected"
	AnalysisDanglingEdge  AnalysisKind = "dangling_edge"
)

func analysisError(kind AnalysisKind, node string) error {
	return errs.New("kgraph", errs.CodeInternal,
		errs.WithCanonicalCode(errs.CanonicalKgraphAnalysis),
		errs.WithMessage("constraint graph analysis failed"),
		errs.WithField("kind", string(kind)),
		errs.WithField("node", node))
}

// CheckValueValidity reports whether the value is consistent with the context: every
// positive edge into its node must be satisfied and every negative edge must not be.
// Values missing from the graph are invalid. memo and guard may be nil.
func (g *Graph) CheckValueValidity(value DirValue, ctx *AnalysisContext, memo *Memo, guard *CycleGuard) (bool, error) {
	id, ok := g.values[value]
	if !ok {
		return false, nil
	}
	if ctx == nil {
		ctx = NewContext()
	}
	if memo == nil {
		memo = NewMemo()
	}
	if guard == nil {
		guard = NewCycleGuard()
	}
	guard.visiting[id] = struct{}{}
	defer delete(guard.visiting, id)
	return g.edgesPass(id, ctx, memo, guard, true)
}

// edgesPass evaluates the incoming edges of a node. With all set every edge must pass;
// otherwise one passing edge suffices.
func (g *Graph) edgesPass(id NodeID, ctx *AnalysisContext, memo *Memo, guard *CycleGuard, all bool) (bool, error) {
	edges := g.incoming[id]
	if !all && len(edges) == 0 {
		return false, nil
	}
	for _, edge := range edges {
		ok, err := g.edgePasses(edge, ctx, memo, guard)
		if err != nil {
			return false, err
		}
		if all && !ok {
			return false, nil
		}
		if !all && ok {
			return true, nil
		}
	}
	return all, nil
}

func (g *Graph) edgePasses(edge Edge, ctx *AnalysisContext, memo *Memo, guard *CycleGuard) (bool, error) {
	if edge.Strength == Weak {
		return true, nil
	}
	st, err := g.evaluate(edge.From, ctx, memo, guard)
	if err != nil {
		return false, err
	}
	switch edge.Relation {
	case Positive:
		if edge.Strength == Strong {
			return st == statusPresent, nil
		}
		return st != statusAbsent, nil
	case Negative:
		if edge.Strength == Strong {
			return st == statusAbsent, nil
		}
		return st != statusPresent, nil
	}
	return false, nil
}

func (g *Graph) evaluate(id NodeID, ctx *AnalysisContext, memo *Memo, guard *CycleGuard) (status, error) {
	if id < 0 || int(id) >= len(g.nodes) {
		return 0, analysisError(AnalysisDanglingEdge, "")
	}
	if st, ok := memo.nodes[id]; ok {
		return st, nil
	}
	node := g.nodes[id]
	if _, onPath := guard.visiting[id]; onPath {
		return 0, analysisError(AnalysisCycleDetected, describe(node))
	}
	guard.visiting[id] = struct{}{}
	st, err := g.evaluateNode(node, ctx, memo, guard)
	delete(guard.visiting, id)
	if err != nil {
		return 0, err
	}
	memo.nodes[id] = st
	return st, nil
}

func (g *Graph) evaluateNode(node Node, ctx *AnalysisContext, memo *Memo, guard *CycleGuard) (status, error) {
	switch node.Kind {
	case NodeAll, NodeAny:
		ok, err := g.edgesPass(node.ID, ctx, memo, guard, node.Kind == NodeAll)
		if err != nil {
			return 0, err
		}
		if ok {
			return statusPresent, nil
		}
		return statusAbsent, nil
	}

	// Leaf-like nodes may still carry their own requirements.
	ok, err := g.edgesPass(node.ID, ctx, memo, guard, true)
	if err != nil {
		return 0, err
	}
	if !ok {
		return statusAbsent, nil
	}
	switch node.Kind {
	case NodeValue:
		if !ctx.HasKey(node.Value.Key) {
			return statusDontCare, nil
		}
		if ctx.Has(node.Value) {
			return statusPresent, nil
		}
		return statusAbsent, nil
	case NodeIn:
		if !ctx.HasKey(node.InKey) {
			return statusDontCare, nil
		}
		if ctx.anyIn(node.InKey, node.InValues) {
			return statusPresent, nil
		}
		return statusAbsent, nil
	case NodeAmountRange:
		amount, known := ctx.Amount()
		if !known {
			return statusDontCare, nil
		}
		if node.Min != nil && amount < *node.Min {
			return statusAbsent, nil
		}
		if node.Max != nil && amount > *node.Max {
			return statusAbsent, nil
		}
		return statusPresent, nil
	}
	return statusAbsent, nil
}
