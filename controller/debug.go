package controller

import (
	"context"
	"fmt"

	"github.com/tierkreisgo/tierkreis/graph"
)

// DebugOverride replaces a worker's normal invocation during a Debug run.
// Exactly one of Value or Func should be set: Value is written directly to
// the node's sole declared output port; Func runs in place of whatever the
// real executor would have dispatched to, receiving the same CallArgs a
// registered executor.Func would.
type DebugOverride struct {
	Value []byte
	Func  func(ctx context.Context, args CallArgs) (map[string][]byte, error)
}

// Debug runs g exactly like Run, except any worker call whose
// "launcher.function" name is a key in overrides never reaches exec: its
// outputs are supplied from the override instead. This is the Go analogue
// of the original engine's debug_graph, used to substitute canned or
// rewritten results for specific workers without touching the graph being
// tested.
func Debug(ctx context.Context, storage Storage, exec Executor, g *graph.GraphData, graphInputs map[string][]byte, overrides map[string]DebugOverride, opts ...Option) error {
	resolver, ok := storage.(ArgsResolver)
	if !ok {
		return fmt.Errorf("controller: debug: storage %T does not implement ArgsResolver", storage)
	}
	wrapped := &debugExecutor{
		inner:     exec,
		resolver:  resolver,
		storage:   storage,
		overrides: overrides,
	}
	return Run(ctx, storage, wrapped, g, graphInputs, opts...)
}

// debugExecutor intercepts calls matching a DebugOverride key and otherwise
// falls through to inner, mirroring executor.InProcess.Run's own
// resolve/dispatch/write-back shape so overridden and real workers look the
// same to the walker.
type debugExecutor struct {
	inner     Executor
	resolver  ArgsResolver
	storage   Storage
	overrides map[string]DebugOverride
}

func (d *debugExecutor) Run(ctx context.Context, launcherName string, argsPath string) error {
	args, err := d.resolver.ResolveCallArgs(argsPath)
	if err != nil {
		return fmt.Errorf("controller: debug: resolving call args at %s: %w", argsPath, err)
	}

	key := launcherName + "." + args.FunctionName
	override, ok := d.overrides[key]
	if !ok {
		return d.inner.Run(ctx, launcherName, argsPath)
	}

	var outputs map[string][]byte
	var runErr error
	switch {
	case override.Func != nil:
		outputs, runErr = override.Func(ctx, args)
	case len(args.OutputPorts) == 1:
		outputs = map[string][]byte{string(args.OutputPorts[0]): override.Value}
	default:
		runErr = fmt.Errorf("literal debug override for %q needs exactly one declared output port, got %d", key, len(args.OutputPorts))
	}

	if runErr != nil {
		if werr := d.storage.WriteNodeErrors(args.Loc, runErr.Error()); werr != nil {
			return fmt.Errorf("controller: debug: worker %s failed (%v) and recording the error also failed: %w", key, runErr, werr)
		}
		return nil
	}

	for _, port := range args.OutputPorts {
		value, ok := outputs[string(port)]
		if !ok {
			msg := fmt.Sprintf("debug override for %s did not produce declared output port %q", key, port)
			if werr := d.storage.WriteNodeErrors(args.Loc, msg); werr != nil {
				return fmt.Errorf("controller: debug: %s and recording the error also failed: %w", msg, werr)
			}
			return nil
		}
		if err := d.storage.WriteOutput(args.Loc, port, value); err != nil {
			return fmt.Errorf("controller: debug: writing output %s for %s: %w", port, key, err)
		}
	}
	return d.storage.MarkNodeFinished(args.Loc)
}

var _ Executor = (*debugExecutor)(nil)
