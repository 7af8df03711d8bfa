package builtins

import (
	"context"
	"errors"

	"github.com/tierkreisgo/tierkreis/controller"
	"github.com/tierkreisgo/tierkreis/controller/executor"
)

// errAlwaysFails is the error every AlwaysError invocation returns,
// exercising the worker-error propagation path end to end: the walker sees
// NodeHasError and the run loop records it and terminates.
var errAlwaysFails = errors.New("I refuse!")

// RegisterAlwaysError registers "builtins.AlwaysError", a worker that
// unconditionally fails.
func RegisterAlwaysError(exec *executor.InProcess) {
	exec.Register(Launcher, "AlwaysError", func(_ context.Context, _ controller.CallArgs) (map[string][]byte, error) {
		return nil, errAlwaysFails
	})
}
