package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tierkreisgo/tierkreis/graph"
	"github.com/tierkreisgo/tierkreis/location"
)

// root is the canonical root location every run starts from. The reference
// implementation this package is modeled on addresses the run's inputs and
// body through one Loc value and its walk/finish checks through another
// (textually distinct) Loc that its own location tests treat as a different
// value; rather than carry that distinction forward we use a single root
// throughout, matching the convention location.NewLoc already establishes as
// canonical.
var root = location.NewLoc()

// Run writes graphInputs and the serialized body g to the root location,
// ignites the root as a synthetic Eval over them, and then drives the graph
// to completion via Resume. graphInputs keys not declared as Input ports by
// g are ignored by the graph but still written; declared inputs g expects
// but does not receive are only logged, never rejected outright — a partial
// run is sometimes useful for debugging.
func Run(ctx context.Context, storage Storage, executor Executor, g *graph.GraphData, graphInputs map[string][]byte, opts ...Option) error {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	provided := make(map[graph.PortID]bool, len(graphInputs))
	for k := range graphInputs {
		provided[graph.PortID(k)] = true
	}
	if remaining := g.RemainingInputs(provided); len(remaining) > 0 {
		slog.Warn("controller: graph run missing declared inputs", "inputs", remaining)
	}

	if err := storage.WriteMetadata(root); err != nil {
		return &StorageError{Op: "WriteMetadata", Loc: root, Cause: err}
	}
	for name, value := range graphInputs {
		if err := storage.WriteOutput(root.Exterior(), graph.PortID(name), value); err != nil {
			return &StorageError{Op: "WriteOutput", Loc: root, Cause: err}
		}
	}
	bodyBytes, err := g.Marshal()
	if err != nil {
		return fmt.Errorf("controller: marshaling root graph body: %w", err)
	}
	if err := storage.WriteOutput(root.Exterior(), graph.BodyPort, bodyBytes); err != nil {
		return &StorageError{Op: "WriteOutput", Loc: root, Cause: err}
	}

	graphOutputs, err := g.GraphOutputs()
	if err != nil {
		return fmt.Errorf("controller: cannot run a graph with no outputs: %w", err)
	}

	ins := make(graph.InEdges, len(graphInputs))
	for name := range graphInputs {
		if name == string(graph.BodyPort) {
			continue
		}
		ins[graph.PortID(name)] = graph.ExteriorRefTo(graph.PortID(name))
	}

	if err := Start(ctx, storage, executor, NodeRunData{
		Loc:     root,
		Node:    newEvalRoot(ins),
		Outputs: graph.ExportedOutputs(graphOutputs),
	}); err != nil {
		return err
	}
	cfg.metrics.observeStart("eval")

	return resume(ctx, storage, executor, cfg)
}

// Resume drives an already-started run to completion without re-igniting
// the root: it loads the root's body from storage and resumes ticking.
// Use this after a process restart finds a run already in progress.
func Resume(ctx context.Context, storage Storage, executor Executor, opts ...Option) error {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return resume(ctx, storage, executor, cfg)
}

func resume(ctx context.Context, storage Storage, executor Executor, cfg *runConfig) error {
	bodyBytes, err := storage.ReadOutput(root.Exterior(), graph.BodyPort)
	if err != nil {
		return &StorageError{Op: "ReadOutput", Loc: root, Cause: err}
	}
	g, err := graph.Unmarshal(bodyBytes)
	if err != nil {
		return fmt.Errorf("controller: root body did not parse as a graph: %w", err)
	}
	outIdx, ok := g.OutputIdx()
	if !ok {
		return fmt.Errorf("controller: cannot resume a graph with no Output node")
	}

	for i := 0; i < cfg.maxIterations; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tickStart := time.Now()
		result, err := WalkNode(storage, root, outIdx, g)
		cfg.metrics.observeTick(time.Since(tickStart))
		cfg.metrics.observeWalk(result)
		if err != nil {
			return err
		}
		cfg.emitter.Emit(ctx, Event{Kind: EventTick, Loc: root})

		if len(result.Errored) > 0 {
			var msgs []string
			for _, loc := range result.Errored {
				text, rerr := storage.ReadErrors(loc)
				if rerr != nil {
					text = fmt.Sprintf("(failed to read error text: %v)", rerr)
				}
				msgs = append(msgs, fmt.Sprintf("%s: %s", loc, text))
				cfg.emitter.Emit(ctx, Event{Kind: EventNodeError, Loc: loc, Message: text})
			}
			combined := strings.Join(msgs, "\n")
			if werr := storage.WriteNodeErrors(root, combined); werr != nil {
				return &StorageError{Op: "WriteNodeErrors", Loc: root, Cause: werr}
			}
			return fmt.Errorf("controller: graph finished with errors:\n%s", combined)
		}

		if err := StartNodes(ctx, storage, executor, result.InputsReady); err != nil {
			return err
		}
		for _, d := range result.InputsReady {
			cfg.emitter.Emit(ctx, Event{Kind: EventNodeStart, Loc: d.Loc})
		}

		finished, err := storage.IsNodeFinished(root)
		if err != nil {
			return &StorageError{Op: "IsNodeFinished", Loc: root, Cause: err}
		}
		if finished {
			cfg.emitter.Emit(ctx, Event{Kind: EventNodeFinish, Loc: root})
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.pollingInterval):
		}
	}
	return ErrMaxIterationsExceeded
}

// ReadOutputs reads every port the graph's Output node exports, keyed by
// port name.
func ReadOutputs(storage Storage, g *graph.GraphData) (map[string][]byte, error) {
	graphOutputs, err := g.GraphOutputs()
	if err != nil {
		return nil, fmt.Errorf("controller: cannot read outputs of a graph with no Output node: %w", err)
	}
	out := make(map[string][]byte, len(graphOutputs))
	for port := range graphOutputs {
		value, err := storage.ReadOutput(root, port)
		if err != nil {
			return nil, &StorageError{Op: "ReadOutput", Loc: root, Cause: err}
		}
		out[string(port)] = value
	}
	return out, nil
}

// ReadSingleOutput is the common-case convenience for graphs exporting
// exactly one port named "value".
func ReadSingleOutput(storage Storage, g *graph.GraphData) ([]byte, error) {
	outs, err := ReadOutputs(storage, g)
	if err != nil {
		return nil, err
	}
	if value, ok := outs["value"]; ok && len(outs) == 1 {
		return value, nil
	}
	return nil, fmt.Errorf("controller: graph does not export a single \"value\" output (got %d ports)", len(outs))
}

// ReadLoopTrace reads every iteration's value for outputName from the named
// loop nodeName, in ascending iteration order. outputName must name one of
// the loop body's declared output ports; call it once per port to read more
// than one accumulator's trace.
func ReadLoopTrace(storage Storage, nodeName string, outputName string) ([][]byte, error) {
	loc, ok, err := storage.LocFromNodeName(nodeName)
	if err != nil {
		return nil, &StorageError{Op: "LocFromNodeName", Cause: err}
	}
	if !ok {
		return nil, fmt.Errorf("controller: loop name %q not found in debug data", nodeName)
	}
	if outputName == "" {
		return nil, fmt.Errorf("controller: ReadLoopTrace requires an output port name")
	}
	ports, err := storage.ReadOutputPorts(loc)
	if err != nil {
		return nil, &StorageError{Op: "ReadOutputPorts", Loc: loc, Cause: err}
	}
	found := false
	for _, p := range ports {
		if string(p) == outputName {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("controller: output name %q not found in loop node outputs", outputName)
	}
	trace, err := storage.ReadLoopTrace(loc, graph.PortID(outputName))
	if err != nil {
		return nil, &StorageError{Op: "ReadLoopTrace", Loc: loc, Cause: err}
	}
	return trace, nil
}
