package controller

import (
	"context"

	"github.com/tierkreisgo/tierkreis/graph"
	"github.com/tierkreisgo/tierkreis/location"
)

// Executor launches a Func node's worker out of process (or in process) and
// returns once the launch itself has been accepted — not once the worker has
// finished. Completion is always detected later by the walker, via the
// done/error marker files or equivalent Storage-visible state args points at.
//
// launcherName is the portion of a Func node's fully-qualified name before
// the final ".", e.g. "python" in "python.add"; argsPath is whatever the
// Storage implementation's WriteWorkerCallArgs returned.
type Executor interface {
	Run(ctx context.Context, launcherName string, argsPath string) error
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, launcherName string, argsPath string) error

func (f ExecutorFunc) Run(ctx context.Context, launcherName string, argsPath string) error {
	return f(ctx, launcherName, argsPath)
}

// CallArgs is the resolved, in-memory form of a worker call-args record: the
// bare function name (launcher prefix already stripped), each input's
// bytes, and the output ports the worker is expected to produce.
type CallArgs struct {
	Loc          location.Loc
	FunctionName string
	Inputs       map[graph.PortID][]byte
	OutputPorts  []graph.PortID
}

// ArgsResolver is implemented by Storage backends that can resolve an
// argsPath (as returned by their own WriteWorkerCallArgs) straight to
// in-memory bytes, without a worker process reading real files. An
// InProcess Executor uses this to call a registered Go function directly;
// Subprocess and HTTP executors instead read argsPath as a literal file
// path and never need this interface.
type ArgsResolver interface {
	ResolveCallArgs(argsPath string) (CallArgs, error)
}
