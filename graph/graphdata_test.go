package graph

import "testing"

// simpleEval mirrors the original test suite's "simple_eval" fixture: a
// Const feeding an Input-shaped Eval body whose Output just forwards it.
func simpleEvalBody() *GraphData {
	return New(
		InputDef{Name: "a"},
		OutputDef{In: InEdges{"value": ValueRefTo(0, "a")}},
	)
}

func simpleEvalGraph() *GraphData {
	return New(
		ConstDef{Value: []byte("42")},
		EvalDef{
			Body: ValueRefTo(2, "value"),
			In:   InEdges{"a": ValueRefTo(0, "value")},
		},
		ConstDef{Value: mustMarshalBody()},
		OutputDef{In: InEdges{"value": ValueRefTo(1, "value")}},
	)
}

func mustMarshalBody() []byte {
	b, err := simpleEvalBody().Marshal()
	if err != nil {
		panic(err)
	}
	return b
}

func TestGraphDataBasics(t *testing.T) {
	g := simpleEvalGraph()
	if g.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", g.Len())
	}
	idx, ok := g.OutputIdx()
	if !ok || idx != 3 {
		t.Fatalf("OutputIdx() = (%d, %v), want (3, true)", idx, ok)
	}
	outs, err := g.GraphOutputs()
	if err != nil {
		t.Fatalf("GraphOutputs: %v", err)
	}
	ref, ok := outs["value"]
	if !ok || ref.NodeIndex != 1 || ref.Port != "value" {
		t.Fatalf("GraphOutputs()[value] = %+v, ok=%v", ref, ok)
	}
}

func TestGraphDataOutOfRange(t *testing.T) {
	g := simpleEvalGraph()
	if _, err := g.GetNodeDef(99); err == nil {
		t.Fatal("GetNodeDef(99) should error")
	}
}

func TestGraphOutputsMissing(t *testing.T) {
	g := New(ConstDef{Value: []byte("x")})
	if _, err := g.GraphOutputs(); err == nil {
		t.Fatal("GraphOutputs() on a graph with no Output node should error")
	}
}

func TestOutputsDeclared(t *testing.T) {
	g := simpleEvalGraph()
	outs := g.Outputs(0)
	if consumer, ok := outs["value"]; !ok || consumer != 1 {
		t.Fatalf("Outputs(0) = %v, want value->1", outs)
	}
}

func TestRemainingInputs(t *testing.T) {
	body := simpleEvalBody()
	remaining := body.RemainingInputs(map[PortID]bool{})
	if len(remaining) != 1 || remaining[0] != "a" {
		t.Fatalf("RemainingInputs(none provided) = %v", remaining)
	}
	remaining = body.RemainingInputs(map[PortID]bool{"a": true})
	if len(remaining) != 0 {
		t.Fatalf("RemainingInputs(a provided) = %v, want empty", remaining)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	g := simpleEvalGraph()
	b, err := g.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Len() != g.Len() {
		t.Fatalf("round trip Len() = %d, want %d", got.Len(), g.Len())
	}
	def, err := got.GetNodeDef(0)
	if err != nil {
		t.Fatalf("GetNodeDef(0): %v", err)
	}
	c, ok := def.(ConstDef)
	if !ok || string(c.Value) != "42" {
		t.Fatalf("round trip node 0 = %+v", def)
	}
	evalDef, err := got.GetNodeDef(1)
	if err != nil {
		t.Fatalf("GetNodeDef(1): %v", err)
	}
	e, ok := evalDef.(EvalDef)
	if !ok || e.Body.NodeIndex != 2 || e.Body.Port != "value" {
		t.Fatalf("round trip node 1 = %+v", evalDef)
	}
}

func TestMarshalNestedBodyRoundTrips(t *testing.T) {
	g := simpleEvalGraph()
	b, err := g.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	nested, err := got.GetNodeDef(2)
	if err != nil {
		t.Fatalf("GetNodeDef(2): %v", err)
	}
	constDef, ok := nested.(ConstDef)
	if !ok {
		t.Fatalf("node 2 = %+v, want ConstDef carrying the body bytes", nested)
	}
	body, err := Unmarshal(constDef.Value)
	if err != nil {
		t.Fatalf("Unmarshal nested body: %v", err)
	}
	if body.Len() != 2 {
		t.Fatalf("nested body Len() = %d, want 2", body.Len())
	}
}
