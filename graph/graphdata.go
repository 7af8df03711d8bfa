package graph

import "fmt"

// GraphData is an ordered, immutable vector of node definitions. Once built
// it is never mutated — Eval/Loop/Map bodies are carried through storage as
// serialized GraphData values, so mutation after sharing would be unsafe.
type GraphData struct {
	nodes []NodeDef
}

// New builds a GraphData from nodes in index order; nodes[i] becomes
// NodeIndex(i).
func New(nodes ...NodeDef) *GraphData {
	cp := make([]NodeDef, len(nodes))
	copy(cp, nodes)
	return &GraphData{nodes: cp}
}

// Len returns the number of nodes in the graph.
func (g *GraphData) Len() int { return len(g.nodes) }

// GetNodeDef returns the definition at index i.
func (g *GraphData) GetNodeDef(i NodeIndex) (NodeDef, error) {
	if int(i) < 0 || int(i) >= len(g.nodes) {
		return nil, fmt.Errorf("graph: node index %d out of range [0,%d)", i, len(g.nodes))
	}
	return g.nodes[i], nil
}

// OutputIdx returns the index of the graph's Output node, if any. A graph
// has at most one.
func (g *GraphData) OutputIdx() (NodeIndex, bool) {
	for i, n := range g.nodes {
		if _, ok := n.(OutputDef); ok {
			return NodeIndex(i), true
		}
	}
	return 0, false
}

// GraphOutputs returns the exported output ports of the graph: the in-edges
// of its Output node. Returns an error if the graph has no Output node.
func (g *GraphData) GraphOutputs() (InEdges, error) {
	idx, ok := g.OutputIdx()
	if !ok {
		return nil, fmt.Errorf("graph: graph has no Output node")
	}
	def := g.nodes[idx].(OutputDef)
	return def.In, nil
}

// Outputs returns the declared output-index mapping for node i: the ports
// any sibling in the graph expects to read from it, each paired with the
// index of (one of) the consumer(s) declaring that expectation. A Func node
// uses this to tell its worker which output files to produce; Map uses it to
// describe an element's expected outputs for the node visualizer.
func (g *GraphData) Outputs(i NodeIndex) map[PortID]NodeIndex {
	out := map[PortID]NodeIndex{}
	for j, n := range g.nodes {
		for _, ref := range InEdgesOf(n) {
			if ref.Kind == RefValue && ref.NodeIndex == i {
				if _, seen := out[ref.Port]; !seen {
					out[ref.Port] = NodeIndex(j)
				}
			}
		}
		switch d := n.(type) {
		case EvalDef:
			if d.Body.Kind == RefValue && d.Body.NodeIndex == i {
				out[d.Body.Port] = NodeIndex(j)
			}
		case LoopDef:
			if d.Body.Kind == RefValue && d.Body.NodeIndex == i {
				out[d.Body.Port] = NodeIndex(j)
			}
		case MapDef:
			if d.Body.Kind == RefValue && d.Body.NodeIndex == i {
				out[d.Body.Port] = NodeIndex(j)
			}
		case IfElseDef:
			for _, ref := range []Ref{d.Pred, d.IfTrue, d.IfFalse} {
				if ref.Kind == RefValue && ref.NodeIndex == i {
					out[ref.Port] = NodeIndex(j)
				}
			}
		case EagerIfElseDef:
			for _, ref := range []Ref{d.Pred, d.IfTrue, d.IfFalse} {
				if ref.Kind == RefValue && ref.NodeIndex == i {
					out[ref.Port] = NodeIndex(j)
				}
			}
		}
	}
	return out
}

// ExportedOutputs converts a graph's GraphOutputs() in-edges into the same
// port→NodeIndex shape Outputs(i) returns, for ValueRef entries — the node
// index within the body that produces each exported port. Used to build the
// root Eval's declared-outputs mapping, which otherwise has no enclosing
// graph to derive it from.
func ExportedOutputs(in InEdges) map[PortID]NodeIndex {
	out := make(map[PortID]NodeIndex, len(in))
	for port, ref := range in {
		if ref.Kind == RefValue {
			out[port] = ref.NodeIndex
		}
	}
	return out
}

// RemainingInputs returns the exterior port names this graph declares (via
// its Input nodes) that are not present in provided.
func (g *GraphData) RemainingInputs(provided map[PortID]bool) []PortID {
	var remaining []PortID
	for _, n := range g.nodes {
		in, ok := n.(InputDef)
		if !ok {
			continue
		}
		if !provided[in.Name] {
			remaining = append(remaining, in.Name)
		}
	}
	return remaining
}
