package graph

import (
	"testing"

	"github.com/tierkreisgo/tierkreis/location"
)

func TestRefExtendLoc(t *testing.T) {
	parent := location.NewLoc().N(3)

	vr := ValueRefTo(5, "out")
	if got, want := vr.ExtendLoc(parent).String(), "-.N3.N5"; got != want {
		t.Errorf("ValueRef ExtendLoc = %q, want %q", got, want)
	}

	er := ExteriorRefTo("in")
	if got, want := er.ExtendLoc(parent).String(), "-.N3.E"; got != want {
		t.Errorf("ExteriorRef ExtendLoc = %q, want %q", got, want)
	}
}

func TestNodeDefVariantsAreDistinct(t *testing.T) {
	defs := []NodeDef{
		ConstDef{Value: []byte("x")},
		InputDef{Name: "a"},
		OutputDef{In: InEdges{}},
		FuncDef{Name: "launcher.fn", In: InEdges{}},
		EvalDef{Body: ValueRefTo(0, "value"), In: InEdges{}},
		LoopDef{Body: ValueRefTo(0, "value"), Inputs: InEdges{}, ContinuePort: "should_continue"},
		MapDef{Body: ValueRefTo(0, "value"), Inputs: InEdges{SplayPort: ValueRefTo(1, "out")}},
		IfElseDef{Pred: ValueRefTo(0, "p"), IfTrue: ValueRefTo(1, "v"), IfFalse: ValueRefTo(2, "v")},
		EagerIfElseDef{Pred: ValueRefTo(0, "p"), IfTrue: ValueRefTo(1, "v"), IfFalse: ValueRefTo(2, "v")},
	}
	seen := map[string]bool{}
	for _, d := range defs {
		name := typeName(d)
		if seen[name] {
			t.Fatalf("duplicate variant type name %s", name)
		}
		seen[name] = true
	}
	if len(seen) != 9 {
		t.Fatalf("expected 9 distinct variants, got %d", len(seen))
	}
}

func typeName(d NodeDef) string {
	switch d.(type) {
	case ConstDef:
		return "Const"
	case InputDef:
		return "Input"
	case OutputDef:
		return "Output"
	case FuncDef:
		return "Func"
	case EvalDef:
		return "Eval"
	case LoopDef:
		return "Loop"
	case MapDef:
		return "Map"
	case IfElseDef:
		return "IfElse"
	case EagerIfElseDef:
		return "EagerIfElse"
	default:
		return "unknown"
	}
}
