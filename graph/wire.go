package graph

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

func init() {
	gob.Register(ConstDef{})
	gob.Register(InputDef{})
	gob.Register(OutputDef{})
	gob.Register(FuncDef{})
	gob.Register(EvalDef{})
	gob.Register(LoopDef{})
	gob.Register(MapDef{})
	gob.Register(IfElseDef{})
	gob.Register(EagerIfElseDef{})
}

// wireGraph is the on-the-wire shape of a GraphData: gob cannot encode an
// unexported slice field directly through the exported type's zero value, so
// Marshal/Unmarshal go through this mirror with an exported field.
type wireGraph struct {
	Nodes []NodeDef
}

// Marshal serializes g to bytes. This is the format Eval/Loop/Map bodies are
// carried in through storage, and the format graphs are persisted in on
// disk — see the on-disk storage layout.
func (g *GraphData) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wireGraph{Nodes: g.nodes}); err != nil {
		return nil, fmt.Errorf("graph: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses bytes produced by Marshal back into a GraphData.
func Unmarshal(b []byte) (*GraphData, error) {
	var w wireGraph
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&w); err != nil {
		return nil, fmt.Errorf("graph: unmarshal: %w", err)
	}
	return &GraphData{nodes: w.Nodes}, nil
}
