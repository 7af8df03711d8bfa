package controller

import (
	"strconv"

	"github.com/tierkreisgo/tierkreis/graph"
	"github.com/tierkreisgo/tierkreis/location"
)

// walkLoop drives one tick of a loop at parent.N(idx): recurse into the
// latest unfinished iteration, or — once it finishes — either close the loop
// out (should_continue false) or ignite the next iteration (true).
//
// Iteration k+1 is never admitted until k has fully finished, which is what
// gives loop iterations their strict sequencing (unlike Map, whose elements
// run concurrently).
func walkLoop(storage Storage, parent location.Loc, idx graph.NodeIndex, n graph.LoopDef) (WalkResult, error) {
	loc := parent.N(int(idx))

	finished, err := storage.IsNodeFinished(loc)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "IsNodeFinished", Loc: loc, Cause: err}
	}
	if finished {
		return WalkResult{}, nil
	}

	last, err := storage.LatestLoopIteration(loc)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "LatestLoopIteration", Loc: loc, Cause: err}
	}

	body, outIdx, err := loadLoopBody(storage, loc)
	if err != nil {
		return WalkResult{}, err
	}

	lastFinished, err := storage.IsNodeFinished(last)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "IsNodeFinished", Loc: last, Cause: err}
	}
	if !lastFinished {
		return WalkNode(storage, last, outIdx, body)
	}

	bodyOutputs, err := body.GraphOutputs()
	if err != nil {
		return WalkResult{}, &GraphStructureError{Loc: loc, Message: "loop body has no outputs", Cause: err}
	}

	continueBytes, err := storage.ReadOutput(last, n.ContinuePort)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "ReadOutput", Loc: last, Cause: err}
	}

	if !isTrue(continueBytes) {
		for port := range bodyOutputs {
			if err := storage.LinkOutputs(loc, port, last, port); err != nil {
				return WalkResult{}, &StorageError{Op: "LinkOutputs", Loc: loc, Cause: err}
			}
		}
		return WalkResult{}, markFinished(storage, loc)
	}

	k, ok := last.PeekIndex()
	if !ok {
		return WalkResult{}, &GraphStructureError{Loc: last, Message: "latest loop iteration is not an L(k) step"}
	}
	nextLoc := loc.L(k + 1)

	for port := range n.Inputs {
		if err := storage.LinkOutputs(nextLoc.Exterior(), port, loc.Exterior(), port); err != nil {
			return WalkResult{}, &StorageError{Op: "LinkOutputs", Loc: nextLoc, Cause: err}
		}
	}
	if err := storage.LinkOutputs(nextLoc.Exterior(), graph.BodyPort, loc.Exterior(), graph.BodyPort); err != nil {
		return WalkResult{}, &StorageError{Op: "LinkOutputs", Loc: nextLoc, Cause: err}
	}
	for port := range bodyOutputs {
		if err := storage.LinkOutputs(nextLoc.Exterior(), port, last, port); err != nil {
			return WalkResult{}, &StorageError{Op: "LinkOutputs", Loc: nextLoc, Cause: err}
		}
	}

	return WalkResult{InputsReady: []NodeRunData{{
		Loc:     nextLoc,
		Node:    newEvalRoot(nil),
		Outputs: body.Outputs(outIdx),
	}}}, nil
}

func loadLoopBody(storage Storage, loc location.Loc) (*graph.GraphData, graph.NodeIndex, error) {
	bytes, err := storage.ReadOutput(loc.Exterior(), graph.BodyPort)
	if err != nil {
		return nil, 0, &StorageError{Op: "ReadOutput", Loc: loc, Cause: err}
	}
	g, err := graph.Unmarshal(bytes)
	if err != nil {
		return nil, 0, &GraphStructureError{Loc: loc, Message: "loop body did not parse as a graph", Cause: err}
	}
	outIdx, ok := g.OutputIdx()
	if !ok {
		return nil, 0, &GraphStructureError{Loc: loc, Message: "loop body has no Output node"}
	}
	return g, outIdx, nil
}

// walkMap drives one tick of a map at parent.N(idx): recurse into every
// unfinished element, and once all have finished, stitch each body output
// port p into (loc, "p-j") for every element j.
func walkMap(storage Storage, parent location.Loc, idx graph.NodeIndex, n graph.MapDef) (WalkResult, error) {
	loc := parent.N(int(idx))

	finished, err := storage.IsNodeFinished(loc)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "IsNodeFinished", Loc: loc, Cause: err}
	}
	if finished {
		return WalkResult{}, nil
	}

	var splay graph.Ref
	found := false
	for _, ref := range n.Inputs {
		if ref.Port == graph.SplayPort {
			splay = ref
			found = true
			break
		}
	}
	if !found {
		return WalkResult{}, &GraphStructureError{Loc: loc, Message: "map has no splay (\"*\") input"}
	}
	producerLoc := splay.ExtendLoc(parent)

	elems, err := mapElements(storage, producerLoc)
	if err != nil {
		return WalkResult{}, err
	}

	bytes, err := storage.ReadOutput(loc.M(0).Exterior(), graph.BodyPort)
	if err != nil {
		return WalkResult{}, &StorageError{Op: "ReadOutput", Loc: loc.M(0), Cause: err}
	}
	g, err := graph.Unmarshal(bytes)
	if err != nil {
		return WalkResult{}, &GraphStructureError{Loc: loc, Message: "map body did not parse as a graph", Cause: err}
	}
	outIdx, ok := g.OutputIdx()
	if !ok {
		return WalkResult{}, &GraphStructureError{Loc: loc, Message: "map body has no Output node"}
	}

	result := WalkResult{}
	var unfinished []mapElement
	for _, el := range elems {
		elemFinished, err := storage.IsNodeFinished(loc.M(el.index))
		if err != nil {
			return WalkResult{}, &StorageError{Op: "IsNodeFinished", Loc: loc.M(el.index), Cause: err}
		}
		if !elemFinished {
			unfinished = append(unfinished, el)
		}
	}
	for _, el := range unfinished {
		sub, err := WalkNode(storage, loc.M(el.index), outIdx, g)
		if err != nil {
			return WalkResult{}, err
		}
		result.extend(sub)
	}
	if len(unfinished) > 0 {
		return result, nil
	}

	bodyOutputs, err := g.GraphOutputs()
	if err != nil {
		return WalkResult{}, &GraphStructureError{Loc: loc, Message: "map body has no outputs", Cause: err}
	}
	for _, el := range elems {
		for port := range bodyOutputs {
			dstPort := graph.PortID(string(port) + "-" + strconv.Itoa(el.index))
			if err := storage.LinkOutputs(loc, dstPort, loc.M(el.index), port); err != nil {
				return WalkResult{}, &StorageError{Op: "LinkOutputs", Loc: loc, Cause: err}
			}
		}
	}
	return result, markFinished(storage, loc)
}
