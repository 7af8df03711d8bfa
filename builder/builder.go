// Package builder provides a minimal untyped graph-construction DSL,
// grounded on the raw GraphData method-chaining style visible in the
// original source's untyped graph fixtures (g.const/g.input/g.func/g.output
// calls building a GraphData node by node) rather than the original's fully
// typed, codegen-backed GraphBuilder[In, Out].
package builder

import (
	"fmt"

	"github.com/tierkreisgo/tierkreis/graph"
)

// Ref identifies one output port of a previously added node.
type Ref struct {
	idx  graph.NodeIndex
	port graph.PortID
}

// Node identifies a just-added node that may expose more than one output
// port; Port selects which one a later node should read.
type Node struct {
	idx graph.NodeIndex
}

// Port returns a Ref to one of this node's output ports.
func (n Node) Port(port string) Ref {
	return Ref{idx: n.idx, port: graph.PortID(port)}
}

// Index returns this node's position in the graph being built. Mainly
// useful for examples and tests that need to address a node's storage
// location directly (e.g. to assert via controller.Storage.IsNodeStarted
// that an IfElse branch was never admitted).
func (n Node) Index() graph.NodeIndex {
	return n.idx
}

// Value is shorthand for Port("value"), the conventional single-output
// port name used by Const and most Func workers in this codebase.
func (n Node) Value() Ref {
	return n.Port("value")
}

// Inputs maps a node's input port names to the Refs that feed them.
type Inputs map[string]Ref

func (in Inputs) edges() graph.InEdges {
	edges := make(graph.InEdges, len(in))
	for port, ref := range in {
		edges[graph.PortID(port)] = graph.ValueRefTo(ref.idx, ref.port)
	}
	return edges
}

// Builder accumulates NodeDefs in the order later compiled into a
// graph.GraphData by Build.
type Builder struct {
	nodes []graph.NodeDef
}

// New starts an empty graph builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) add(n graph.NodeDef) Node {
	idx := graph.NodeIndex(len(b.nodes))
	b.nodes = append(b.nodes, n)
	return Node{idx: idx}
}

// Const adds a literal-value node and returns a Ref to its "value" port.
func (b *Builder) Const(value []byte) Ref {
	return b.add(graph.ConstDef{Value: value}).Value()
}

// Input adds a declared graph input named name; the resulting Ref's port is
// also named name, matching graph.InputDef's own-named output port.
func (b *Builder) Input(name string) Ref {
	return b.add(graph.InputDef{Name: graph.PortID(name)}).Port(name)
}

// Func adds a worker call node. name is "launcher.function", e.g.
// "builtins.iadd".
func (b *Builder) Func(name string, in Inputs) Node {
	return b.add(graph.FuncDef{Name: name, In: in.edges()})
}

// Eval adds a node that runs a nested graph. body must be a Ref to a Const
// node holding the nested graph's Marshal()-ed bytes, typically built via
// ConstGraph.
func (b *Builder) Eval(body Ref, in Inputs) Node {
	return b.add(graph.EvalDef{Body: graph.ValueRefTo(body.idx, body.port), In: in.edges()})
}

// Loop adds a node that runs body to a fixed point, re-running it while the
// value read from continuePort on the latest iteration decodes to "true".
// name, if non-empty, registers the loop under that name in storage's
// debug index for later lookup via controller.ReadLoopTrace.
func (b *Builder) Loop(body Ref, in Inputs, continuePort string, name string) Node {
	return b.add(graph.LoopDef{
		Body:         graph.ValueRefTo(body.idx, body.port),
		Inputs:       in.edges(),
		ContinuePort: graph.PortID(continuePort),
		Name:         name,
	})
}

// Map adds a node that runs body once per element of the collection fed on
// the SplayPort input, concurrently.
func (b *Builder) Map(body Ref, in Inputs) Node {
	return b.add(graph.MapDef{Body: graph.ValueRefTo(body.idx, body.port), Inputs: in.edges()})
}

// IfElse adds a node that lazily starts only the branch pred selects.
func (b *Builder) IfElse(pred, ifTrue, ifFalse Ref) Node {
	return b.add(graph.IfElseDef{
		Pred:    graph.ValueRefTo(pred.idx, pred.port),
		IfTrue:  graph.ValueRefTo(ifTrue.idx, ifTrue.port),
		IfFalse: graph.ValueRefTo(ifFalse.idx, ifFalse.port),
	})
}

// EagerIfElse adds a node whose branches both run eagerly; pred only
// selects which already-computed result to forward.
func (b *Builder) EagerIfElse(pred, ifTrue, ifFalse Ref) Node {
	return b.add(graph.EagerIfElseDef{
		Pred:    graph.ValueRefTo(pred.idx, pred.port),
		IfTrue:  graph.ValueRefTo(ifTrue.idx, ifTrue.port),
		IfFalse: graph.ValueRefTo(ifFalse.idx, ifFalse.port),
	})
}

// Output declares the graph's exported output ports. A graph may have at
// most one Output node; compiling without one still produces a valid
// GraphData, just one with no declared outputs.
func (b *Builder) Output(ports Inputs) {
	b.add(graph.OutputDef{In: ports.edges()})
}

// ConstGraph compiles sub and adds it to b as a Const node holding the
// marshaled bytes, the shape an Eval/Loop/Map body Ref must point to.
func (b *Builder) ConstGraph(sub *Builder) (Ref, error) {
	data, err := sub.Build().Marshal()
	if err != nil {
		return Ref{}, fmt.Errorf("builder: marshaling nested graph: %w", err)
	}
	return b.Const(data), nil
}

// Build compiles the accumulated nodes into a graph.GraphData.
func (b *Builder) Build() *graph.GraphData {
	return graph.New(b.nodes...)
}
