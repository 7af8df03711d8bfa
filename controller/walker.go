package controller

import (
	"fmt"

	"github.com/tierkreisgo/tierkreis/graph"
	"github.com/tierkreisgo/tierkreis/location"
)

// WalkResult is the outcome of walking one node: newly eligible nodes to
// ignite, locations that finished admission with nothing further to do, and
// locations that terminally errored.
type WalkResult struct {
	InputsReady []NodeRunData
	Started     []location.Loc
	Errored     []location.Loc
}

func (r *WalkResult) extend(other WalkResult) {
	r.InputsReady = append(r.InputsReady, other.InputsReady...)
	r.Started = append(r.Started, other.Started...)
	r.Errored = append(r.Errored, other.Errored...)
}

// WalkNode computes what's newly eligible to start, or what has newly
// errored, at parent.N(idx). It should only be called on a node that has
// not yet finished.
func WalkNode(storage Storage, parent location.Loc, idx graph.NodeIndex, g *graph.GraphData) (WalkResult, error) {
	loc := parent.N(int(idx))

	hasErr, err := storage.NodeHasError(loc)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "NodeHasError", Loc: loc, Cause: err}
	}
	if hasErr {
		return WalkResult{Errored: []location.Loc{loc}}, nil
	}

	node, err := g.GetNodeDef(idx)
	if err != nil {
		return WalkResult{}, &GraphStructureError{Loc: loc, Message: "node index out of range", Cause: err}
	}
	nodeRunData := NodeRunData{Loc: loc, Node: node, Outputs: g.Outputs(idx)}

	result := WalkResult{}
	unfinished, err := unfinishedResults(&result, storage, parent, node, g)
	if err != nil {
		return WalkResult{}, err
	}
	if unfinished > 0 {
		return result, nil
	}

	started, err := storage.IsNodeStarted(loc)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "IsNodeStarted", Loc: loc, Cause: err}
	}
	if !started {
		return WalkResult{InputsReady: []NodeRunData{nodeRunData}}, nil
	}

	switch n := node.(type) {
	case graph.EvalDef:
		return walkEval(storage, parent, loc, n)
	case graph.OutputDef, graph.ConstDef:
		return WalkResult{InputsReady: []NodeRunData{nodeRunData}}, nil
	case graph.LoopDef:
		return walkLoop(storage, parent, idx, n)
	case graph.MapDef:
		return walkMap(storage, parent, idx, n)
	case graph.IfElseDef:
		return walkIfElse(storage, parent, loc, idx, g, n)
	case graph.EagerIfElseDef:
		return walkEagerIfElse(storage, parent, loc, n)
	case graph.FuncDef:
		// Out of process: progress is only visible on a future tick, once
		// IsNodeFinished flips true or an error marker appears.
		return WalkResult{}, nil
	case graph.InputDef:
		return WalkResult{}, nil
	default:
		return WalkResult{}, &GraphStructureError{Loc: loc, Message: fmt.Sprintf("unhandled node definition %T", node)}
	}
}

// unfinishedResults walks every not-yet-finished sibling ValueRef dependency
// of node and folds their results into result, returning how many were
// unfinished. The caller must not admit node itself while this is nonzero.
func unfinishedResults(result *WalkResult, storage Storage, parent location.Loc, node graph.NodeDef, g *graph.GraphData) (int, error) {
	deps := valueDeps(node)
	unfinished := 0
	for _, dep := range deps {
		finished, err := storage.IsNodeFinished(parent.N(int(dep)))
		if err != nil {
			return 0, &StorageError{Op: "IsNodeFinished", Loc: parent.N(int(dep)), Cause: err}
		}
		if finished {
			continue
		}
		unfinished++
		sub, err := WalkNode(storage, parent, dep, g)
		if err != nil {
			return 0, err
		}
		result.extend(sub)
	}
	return unfinished, nil
}

// valueDeps collects the sibling NodeIndex values a node's in-edges (in
// whichever field they live on for its variant) depend on via ValueRef.
func valueDeps(node graph.NodeDef) []graph.NodeIndex {
	var out []graph.NodeIndex
	add := func(ref graph.Ref) {
		if ref.Kind == graph.RefValue {
			out = append(out, ref.NodeIndex)
		}
	}
	for _, ref := range graph.InEdgesOf(node) {
		add(ref)
	}
	switch n := node.(type) {
	case graph.EvalDef:
		add(n.Body)
	case graph.LoopDef:
		add(n.Body)
	case graph.MapDef:
		add(n.Body)
	case graph.IfElseDef:
		// Only the predicate blocks admission — the branches are each
		// walked (at most the chosen one) after the node itself starts.
		// Treating both branches as pre-admission deps would eagerly walk
		// the untaken branch too, breaking IfElse's laziness guarantee.
		add(n.Pred)
	case graph.EagerIfElseDef:
		// Unlike IfElse, both branches are ordinary dependencies here: they
		// follow normal scheduling and may already be running by the time
		// the predicate resolves. The predicate only selects which result
		// to forward (walkEagerIfElse), never which branch to start.
		add(n.Pred)
		add(n.IfTrue)
		add(n.IfFalse)
	}
	return out
}

// walkEval loads the nested graph from the node's body ref and recurses on
// its Output node, rooted at loc.
func walkEval(storage Storage, parent location.Loc, loc location.Loc, n graph.EvalDef) (WalkResult, error) {
	bodyLoc := n.Body.ExtendLoc(parent)
	body, err := storage.ReadOutput(bodyLoc, n.Body.Port)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "ReadOutput", Loc: bodyLoc, Cause: err}
	}
	g, err := graph.Unmarshal(body)
	if err != nil {
		return WalkResult{}, &GraphStructureError{Loc: loc, Message: "eval body did not parse as a graph", Cause: err}
	}
	outIdx, ok := g.OutputIdx()
	if !ok {
		return WalkResult{}, &GraphStructureError{Loc: loc, Message: "eval body has no Output node"}
	}
	return WalkNode(storage, loc, outIdx, g)
}

func walkIfElse(storage Storage, parent location.Loc, loc location.Loc, idx graph.NodeIndex, g *graph.GraphData, n graph.IfElseDef) (WalkResult, error) {
	predLoc := n.Pred.ExtendLoc(parent)
	predBytes, err := storage.ReadOutput(predLoc, n.Pred.Port)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "ReadOutput", Loc: predLoc, Cause: err}
	}
	branch := n.IfFalse
	if isTrue(predBytes) {
		branch = n.IfTrue
	}
	branchLoc := branch.ExtendLoc(parent)
	finished, err := storage.IsNodeFinished(branchLoc)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "IsNodeFinished", Loc: branchLoc, Cause: err}
	}
	if finished {
		if err := storage.LinkOutputs(loc, "value", branchLoc, branch.Port); err != nil {
			return WalkResult{}, &StorageError{Op: "LinkOutputs", Loc: loc, Cause: err}
		}
		return WalkResult{}, markFinished(storage, loc)
	}
	if branch.Kind != graph.RefValue {
		return WalkResult{}, &GraphStructureError{Loc: loc, Message: "ifelse branch must reference a sibling node"}
	}
	// The untaken branch is never visited here: this is the laziness
	// guarantee. Only the chosen branch is ever walked or started.
	return WalkNode(storage, parent, branch.NodeIndex, g)
}

// walkEagerIfElse never schedules either branch — by the time the predicate
// is readable, ordinary dependency walking has already started both
// branches independently. It only selects which already-started result to
// forward.
func walkEagerIfElse(storage Storage, parent location.Loc, loc location.Loc, n graph.EagerIfElseDef) (WalkResult, error) {
	predLoc := n.Pred.ExtendLoc(parent)
	predBytes, err := storage.ReadOutput(predLoc, n.Pred.Port)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "ReadOutput", Loc: predLoc, Cause: err}
	}
	branch := n.IfFalse
	if isTrue(predBytes) {
		branch = n.IfTrue
	}
	branchLoc := branch.ExtendLoc(parent)
	if err := storage.LinkOutputs(loc, "value", branchLoc, branch.Port); err != nil {
		return WalkResult{}, &StorageError{Op: "LinkOutputs", Loc: loc, Cause: err}
	}
	return WalkResult{}, markFinished(storage, loc)
}

func isTrue(b []byte) bool {
	return string(b) == "true"
}
