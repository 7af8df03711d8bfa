package graph

import (
	"fmt"

	"github.com/tierkreisgo/tierkreis/location"
)

// NodeDescription is the result of walking a Loc down a graph tree: the
// node it addresses and the index that node occupies within its own
// (possibly nested) graph.
type NodeDescription struct {
	Index NodeIndex
	Def   NodeDef
}

// QueryNodeDescription walks loc down from g's root, following Eval bodies,
// Loop iterations, and Map elements the same way the controller's walker
// does, and returns the node the location addresses.
//
// Unlike the walker, this never touches storage: Eval/Loop/Map bodies are
// the same compiled subgraph on every run, iteration, or element, so the
// nested GraphData can always be resolved straight from the enclosing
// Const node rather than from a particular run's recorded state.
func (g *GraphData) QueryNodeDescription(loc location.Loc) (NodeDescription, error) {
	cur := g
	var idx NodeIndex
	var node NodeDef
	haveNode := false
	rest := loc

	for {
		step, next, err := rest.PopFirst()
		if err != nil {
			return NodeDescription{}, fmt.Errorf("graph: %w", err)
		}
		switch step.Kind {
		case location.StepRoot:
			if !haveNode {
				return NodeDescription{}, fmt.Errorf("graph: location %q addresses no node", loc)
			}
			return NodeDescription{Index: idx, Def: node}, nil

		case location.StepNode:
			if haveNode {
				evalDef, ok := node.(EvalDef)
				if !ok {
					return NodeDescription{}, fmt.Errorf("graph: location %q steps into node %d, which is not an Eval", loc, idx)
				}
				body, err := bodyGraph(cur, evalDef.Body)
				if err != nil {
					return NodeDescription{}, fmt.Errorf("graph: location %q: %w", loc, err)
				}
				cur = body
			}
			idx = NodeIndex(step.Index)
			node, err = cur.GetNodeDef(idx)
			if err != nil {
				return NodeDescription{}, fmt.Errorf("graph: location %q: %w", loc, err)
			}
			haveNode = true

		case location.StepLoop:
			loopDef, ok := node.(LoopDef)
			if !haveNode || !ok {
				return NodeDescription{}, fmt.Errorf("graph: location %q has a loop step not preceded by a Loop node", loc)
			}
			body, err := bodyGraph(cur, loopDef.Body)
			if err != nil {
				return NodeDescription{}, fmt.Errorf("graph: location %q: %w", loc, err)
			}
			cur = body
			haveNode = false

		case location.StepMap:
			mapDef, ok := node.(MapDef)
			if !haveNode || !ok {
				return NodeDescription{}, fmt.Errorf("graph: location %q has a map step not preceded by a Map node", loc)
			}
			body, err := bodyGraph(cur, mapDef.Body)
			if err != nil {
				return NodeDescription{}, fmt.Errorf("graph: location %q: %w", loc, err)
			}
			cur = body
			haveNode = false

		case location.StepExterior:
			return NodeDescription{}, fmt.Errorf("graph: location %q ends at an exterior scope, not a node", loc)

		default:
			return NodeDescription{}, fmt.Errorf("graph: location %q has an unrecognized step", loc)
		}
		rest = next
	}
}

// bodyGraph resolves an Eval/Loop/Map node's Body ref to the nested
// GraphData it points to. Body must reference a sibling Const node, the
// shape every builder.ConstGraph call produces.
func bodyGraph(g *GraphData, body Ref) (*GraphData, error) {
	if body.Kind != RefValue {
		return nil, fmt.Errorf("body ref is not a sibling value ref")
	}
	def, err := g.GetNodeDef(body.NodeIndex)
	if err != nil {
		return nil, err
	}
	cd, ok := def.(ConstDef)
	if !ok {
		return nil, fmt.Errorf("body ref points to node %d, which is not a Const", body.NodeIndex)
	}
	return Unmarshal(cd.Value)
}
