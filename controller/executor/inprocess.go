// Package executor provides concrete controller.Executor implementations:
// InProcess (registered Go functions), Subprocess (launcher-directory
// binaries via os/exec), and HTTP (a worker service reached over HTTP).
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/tierkreisgo/tierkreis/controller"
)

// Func is a registered worker body: given its resolved call args, it
// returns the bytes for each declared output port, or an error.
type Func func(ctx context.Context, args controller.CallArgs) (map[string][]byte, error)

// InProcess runs a Func node's worker directly in the calling goroutine,
// dispatching on a registry of launcher.function names instead of spawning
// anything — the Go analogue of the original's dynamic-import registry,
// using a plain map instead of importlib.
//
// It requires the paired Storage to implement controller.ArgsResolver;
// MemStorage and FileStorage both do.
type InProcess struct {
	resolver controller.ArgsResolver

	mu    sync.RWMutex
	funcs map[string]Func
}

// NewInProcess builds an InProcess executor backed by resolver, the same
// Storage the run is using.
func NewInProcess(resolver controller.ArgsResolver) *InProcess {
	return &InProcess{
		resolver: resolver,
		funcs:    make(map[string]Func),
	}
}

// Register binds launcher.function to fn. Re-registering the same name
// replaces the previous binding.
func (e *InProcess) Register(launcher, function string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[launcher+"."+function] = fn
}

// Lookup returns the Func registered for launcher.function, if any. Mainly
// useful for tests that want to call a registered worker directly without
// staging a full call-args file through Storage.
func (e *InProcess) Lookup(launcher, function string) (Func, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.funcs[launcher+"."+function]
	return fn, ok
}

// Run resolves argsPath via the Storage's ArgsResolver, looks up
// launcherName.FunctionName in the registry, calls it, and writes its
// results back through resolver's owning Storage. Run returning nil means
// the worker ran and wrote its outputs/finished marker synchronously, not
// merely that a process was launched — unlike Subprocess/HTTP, there is no
// asynchronous completion to wait for.
func (e *InProcess) Run(ctx context.Context, launcherName string, argsPath string) error {
	args, err := e.resolver.ResolveCallArgs(argsPath)
	if err != nil {
		return fmt.Errorf("executor: resolving call args at %s: %w", argsPath, err)
	}

	key := launcherName + "." + args.FunctionName
	e.mu.RLock()
	fn, ok := e.funcs[key]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("executor: no registered InProcess function %q", key)
	}

	storage, ok := e.resolver.(controller.Storage)
	if !ok {
		return fmt.Errorf("executor: resolver for %s is not a controller.Storage", argsPath)
	}

	outputs, runErr := fn(ctx, args)
	if runErr != nil {
		if werr := storage.WriteNodeErrors(args.Loc, runErr.Error()); werr != nil {
			return fmt.Errorf("executor: worker %s failed (%v) and recording the error also failed: %w", key, runErr, werr)
		}
		return nil
	}

	for _, port := range args.OutputPorts {
		value, ok := outputs[string(port)]
		if !ok {
			msg := fmt.Sprintf("worker %s did not produce declared output port %q", key, port)
			if werr := storage.WriteNodeErrors(args.Loc, msg); werr != nil {
				return fmt.Errorf("executor: %s and recording the error also failed: %w", msg, werr)
			}
			return nil
		}
		if err := storage.WriteOutput(args.Loc, port, value); err != nil {
			return fmt.Errorf("executor: writing output %s for %s: %w", port, key, err)
		}
	}
	if err := storage.MarkNodeFinished(args.Loc); err != nil {
		return fmt.Errorf("executor: marking %s finished for %s: %w", args.Loc, key, err)
	}
	return nil
}

var _ controller.Executor = (*InProcess)(nil)
