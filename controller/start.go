package controller

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tierkreisgo/tierkreis/graph"
	"github.com/tierkreisgo/tierkreis/location"
)

// NodeRunData is everything Start needs to ignite a single node: the
// location it will live at, its definition, and the declared output-port
// mapping computed by the graph it came from (graph.GraphData.Outputs).
type NodeRunData struct {
	Loc     location.Loc
	Node    graph.NodeDef
	Outputs map[graph.PortID]graph.NodeIndex
}

// StartNodes ignites each of data in order, deduplicating by location so a
// node already started earlier in the same batch is never started twice.
// Locations started by a previous tick are not tracked here.
func StartNodes(ctx context.Context, storage Storage, executor Executor, data []NodeRunData) error {
	started := make(map[string]bool, len(data))
	for _, d := range data {
		key := d.Loc.String()
		if started[key] {
			continue
		}
		if err := Start(ctx, storage, executor, d); err != nil {
			return err
		}
		started[key] = true
	}
	return nil
}

// Start is the single entry point for igniting a node: it records the
// node's description (so the walker can recognize it as started) and then
// branches on the node's variant.
func Start(ctx context.Context, storage Storage, executor Executor, data NodeRunData) error {
	if err := storage.WriteNodeDescription(data.Loc, NodeDescription{Node: data.Node, Outputs: data.Outputs}); err != nil {
		return &StorageError{Op: "WriteNodeDescription", Loc: data.Loc, Cause: err}
	}

	parent := data.Loc.Parent()
	ins := resolveInEdges(graph.InEdgesOf(data.Node), parent)

	switch n := data.Node.(type) {
	case graph.ConstDef:
		return startConst(storage, data.Loc, n)
	case graph.InputDef:
		return startInput(storage, data.Loc, parent, n)
	case graph.OutputDef:
		return startOutput(storage, data.Loc, parent, ins)
	case graph.FuncDef:
		return startFunc(ctx, storage, executor, data, n, ins)
	case graph.EvalDef:
		return startEval(storage, data.Loc, ins)
	case graph.LoopDef:
		return startLoop(ctx, storage, executor, data, n, parent, ins)
	case graph.MapDef:
		return startMap(ctx, storage, executor, data, n, ins)
	case graph.IfElseDef:
		return nil // resolved lazily by the walker
	case graph.EagerIfElseDef:
		return nil // resolved by the walker once the predicate is readable
	default:
		return &GraphStructureError{Loc: data.Loc, Message: fmt.Sprintf("unhandled node definition %T", data.Node)}
	}
}

func resolveInEdges(in graph.InEdges, parent location.Loc) map[graph.PortID]OutputLoc {
	out := make(map[graph.PortID]OutputLoc, len(in))
	for port, ref := range in {
		out[port] = OutputLoc{Loc: ref.ExtendLoc(parent), Port: ref.Port}
	}
	return out
}

func pipeInputs(storage Storage, dstLoc location.Loc, ins map[graph.PortID]OutputLoc) error {
	for port, src := range ins {
		if err := storage.LinkOutputs(dstLoc, port, src.Loc, src.Port); err != nil {
			return &StorageError{Op: "LinkOutputs", Loc: dstLoc, Cause: err}
		}
	}
	return nil
}

func startConst(storage Storage, loc location.Loc, n graph.ConstDef) error {
	if err := storage.WriteOutput(loc, "value", n.Value); err != nil {
		return &StorageError{Op: "WriteOutput", Loc: loc, Cause: err}
	}
	return markFinished(storage, loc)
}

func startInput(storage Storage, loc location.Loc, parent location.Loc, n graph.InputDef) error {
	if err := storage.LinkOutputs(loc, n.Name, parent.Exterior(), n.Name); err != nil {
		return &StorageError{Op: "LinkOutputs", Loc: loc, Cause: err}
	}
	return markFinished(storage, loc)
}

// startOutput is the only point where the enclosing graph transitions to
// finished: once an Output node's in-edges are piped out to the parent
// location, both the Output node and its parent graph are marked done.
func startOutput(storage Storage, loc location.Loc, parent location.Loc, ins map[graph.PortID]OutputLoc) error {
	if err := markFinished(storage, loc); err != nil {
		return err
	}
	if err := pipeInputs(storage, parent, ins); err != nil {
		return err
	}
	return markFinished(storage, parent)
}

// startFunc splits the fully-qualified function name into launcher and
// function, persists a call-args descriptor, and hands it to the executor.
// Start never waits for the worker — completion is detected later by the
// walker.
func startFunc(ctx context.Context, storage Storage, executor Executor, data NodeRunData, n graph.FuncDef, ins map[graph.PortID]OutputLoc) error {
	lastDot := strings.LastIndex(n.Name, ".")
	if lastDot < 0 {
		return &GraphStructureError{Loc: data.Loc, Message: fmt.Sprintf("func name %q has no launcher prefix", n.Name)}
	}
	launcher, fn := n.Name[:lastDot], n.Name[lastDot+1:]

	outputPorts := make([]graph.PortID, 0, len(data.Outputs))
	for p := range data.Outputs {
		outputPorts = append(outputPorts, p)
	}
	sort.Slice(outputPorts, func(i, j int) bool { return outputPorts[i] < outputPorts[j] })

	argsPath, err := storage.WriteWorkerCallArgs(data.Loc, fn, ins, outputPorts)
	if err != nil {
		return &StorageError{Op: "WriteWorkerCallArgs", Loc: data.Loc, Cause: err}
	}
	if err := executor.Run(ctx, launcher, argsPath); err != nil {
		return &WorkerError{Loc: data.Loc, FuncName: n.Name, Message: err.Error()}
	}
	return nil
}

// startEval pipes the Eval node's declared in-edges to its own exterior; the
// body itself is read later, directly off node.Body, by the walker.
func startEval(storage Storage, loc location.Loc, ins map[graph.PortID]OutputLoc) error {
	return pipeInputs(storage, loc.Exterior(), ins)
}

// startLoop pipes the loop's declared inputs and its body bytes into its own
// exterior (keyed by graph.BodyPort), registers the loop's debug name if
// set, and immediately ignites iteration L(0).
func startLoop(ctx context.Context, storage Storage, executor Executor, data NodeRunData, n graph.LoopDef, parent location.Loc, ins map[graph.PortID]OutputLoc) error {
	if n.Name != "" {
		if err := storage.WriteDebugData(n.Name, data.Loc); err != nil {
			return &StorageError{Op: "WriteDebugData", Loc: data.Loc, Cause: err}
		}
	}
	bodyLoc := n.Body.ExtendLoc(parent)
	ins[graph.BodyPort] = OutputLoc{Loc: bodyLoc, Port: n.Body.Port}

	if err := pipeInputs(storage, data.Loc.Exterior(), ins); err != nil {
		return err
	}

	// Ignite L(0) as a synthetic Eval whose in-edges all point back at this
	// loop's own exterior — the same ports just piped above. Resolving
	// these ExteriorRefs against parent=data.Loc (L(0)'s parent) lands
	// exactly on data.Loc.Exterior(), so the generic Start/Eval path wires
	// L(0)'s own exterior correctly without any extra bookkeeping here.
	firstIterIns := make(graph.InEdges, len(ins))
	for port := range ins {
		firstIterIns[port] = graph.ExteriorRefTo(port)
	}
	return Start(ctx, storage, executor, NodeRunData{
		Loc:     data.Loc.L(0),
		Node:    newEvalRoot(firstIterIns),
		Outputs: data.Outputs,
	})
}

// startMap resolves the splay-port producer, discovers the map's element
// indices by parsing its trailing "-<j>" output ports, pipes each element's
// per-index inputs (and the shared body) into M(j).exterior(), and, if the
// map has no elements, finishes immediately.
func startMap(ctx context.Context, storage Storage, executor Executor, data NodeRunData, n graph.MapDef, ins map[graph.PortID]OutputLoc) error {
	var splay OutputLoc
	found := false
	for port, loc := range ins {
		if port == graph.SplayPort {
			splay = loc
			found = true
			break
		}
	}
	if !found {
		return &GraphStructureError{Loc: data.Loc, Message: "map has no splay (\"*\") input"}
	}

	elems, err := mapElements(storage, splay.Loc)
	if err != nil {
		return err
	}
	if len(elems) == 0 {
		return markFinished(storage, data.Loc)
	}

	parent := data.Loc.Parent()
	bodyLoc := n.Body.ExtendLoc(parent)

	for _, el := range elems {
		elemIns := make(map[graph.PortID]OutputLoc, len(ins)+1)
		for port, loc := range ins {
			if port == graph.SplayPort {
				elemIns[port] = OutputLoc{Loc: loc.Loc, Port: el.port}
			} else {
				elemIns[port] = loc
			}
		}
		elemIns[graph.BodyPort] = OutputLoc{Loc: bodyLoc, Port: n.Body.Port}

		elemLoc := data.Loc.M(el.index)
		if err := pipeInputs(storage, elemLoc.Exterior(), elemIns); err != nil {
			return err
		}
		if err := storage.WriteNodeDescription(elemLoc, NodeDescription{
			Node:    newEvalRoot(nil),
			Outputs: data.Outputs,
		}); err != nil {
			return &StorageError{Op: "WriteNodeDescription", Loc: elemLoc, Cause: err}
		}
	}
	return nil
}

type mapElement struct {
	index int
	port  graph.PortID
}

// mapElements parses producerLoc's output ports for the trailing "-<j>"
// convention a Map's splay producer uses to expose one port per element.
func mapElements(storage Storage, producerLoc location.Loc) ([]mapElement, error) {
	ports, err := storage.ReadOutputPorts(producerLoc)
	if err != nil {
		return nil, &StorageError{Op: "ReadOutputPorts", Loc: producerLoc, Cause: err}
	}
	elems := make([]mapElement, 0, len(ports))
	for _, p := range ports {
		idx := strings.LastIndex(string(p), "-")
		if idx < 0 {
			continue
		}
		var j int
		if _, err := fmt.Sscanf(string(p)[idx+1:], "%d", &j); err != nil {
			continue
		}
		elems = append(elems, mapElement{index: j, port: p})
	}
	sort.Slice(elems, func(i, k int) bool { return elems[i].index < elems[k].index })
	return elems, nil
}

// newEvalRoot builds the synthetic Eval node every loop iteration and map
// element is ignited as: its body is always read from graph.BodyPort on its
// own exterior, piped there ahead of time by the caller.
func newEvalRoot(in graph.InEdges) graph.EvalDef {
	return graph.EvalDef{Body: graph.ExteriorRefTo(graph.BodyPort), In: in}
}

func markFinished(storage Storage, loc location.Loc) error {
	if err := storage.MarkNodeFinished(loc); err != nil {
		return &StorageError{Op: "MarkNodeFinished", Loc: loc, Cause: err}
	}
	return nil
}
