// Command tkr is a thin CLI driver for the tierkreis controller: point it
// at a marshaled graph file and it runs (or resumes) that graph to
// completion, printing the declared outputs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tierkreisgo/tierkreis/builtins"
	"github.com/tierkreisgo/tierkreis/controller"
	"github.com/tierkreisgo/tierkreis/controller/executor"
	"github.com/tierkreisgo/tierkreis/controller/storage"
	"github.com/tierkreisgo/tierkreis/emit"
	"github.com/tierkreisgo/tierkreis/graph"
)

// registerBuiltins wires the arithmetic/error workers.
func registerBuiltins(exec *executor.InProcess) {
	builtins.RegisterArith(exec)
	builtins.RegisterAlwaysError(exec)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

type inputsFlag map[string][]byte

func (f inputsFlag) String() string { return "" }

func (f inputsFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("--input must be key=value, got %q", s)
	}
	f[k] = []byte(v)
	return nil
}

func run(args []string) error {
	fs := flag.NewFlagSet("tkr", flag.ExitOnError)
	graphPath := fs.String("graph", "", "path to a marshaled GraphData file (required)")
	storageDir := fs.String("dir", "", "run directory for FileStorage; empty uses an in-memory run")
	launchersPath := fs.String("launchers", "", "launcher binaries directory, for out-of-process Func nodes")
	resume := fs.Bool("resume", false, "resume an existing run in --dir instead of starting a new one")
	maxIterations := fs.Int("max-iterations", 10000, "stop after this many walk/start ticks")
	pollInterval := fs.Duration("poll-interval", 10*time.Millisecond, "sleep between ticks")
	inputs := make(inputsFlag)
	fs.Var(inputs, "input", "graph input as key=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *graphPath == "" {
		return fmt.Errorf("--graph is required")
	}

	raw, err := os.ReadFile(*graphPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", *graphPath, err)
	}
	g, err := graph.Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("unmarshaling %s: %w", *graphPath, err)
	}

	var st interface {
		controller.Storage
		controller.ArgsResolver
	}
	var exec controller.Executor

	if *storageDir == "" {
		mem := storage.NewMemStorage(os.TempDir())
		st = mem
		inProcess := executor.NewInProcess(mem)
		registerBuiltins(inProcess)
		exec = inProcess
	} else {
		fileStorage, err := storage.NewFileStorage(*storageDir)
		if err != nil {
			return fmt.Errorf("creating file storage at %s: %w", *storageDir, err)
		}
		st = fileStorage
		if *launchersPath != "" {
			exec = executor.NewSubprocess(*launchersPath)
		} else {
			inProcess := executor.NewInProcess(fileStorage)
			registerBuiltins(inProcess)
			exec = inProcess
		}
	}

	ctx := context.Background()
	runEmitter := emit.NewControllerAdapter(uuid.NewString(), emit.NewLogEmitter(os.Stderr, false))
	opts := []controller.Option{
		controller.WithMaxIterations(*maxIterations),
		controller.WithPollingInterval(*pollInterval),
		controller.WithEmitter(runEmitter),
	}

	if *resume {
		if err := controller.Resume(ctx, st, exec, opts...); err != nil {
			return fmt.Errorf("resuming run: %w", err)
		}
	} else {
		if err := controller.Run(ctx, st, exec, g, inputs, opts...); err != nil {
			return fmt.Errorf("running graph: %w", err)
		}
	}

	outs, err := controller.ReadOutputs(st, g)
	if err != nil {
		return fmt.Errorf("reading outputs: %w", err)
	}
	for port, value := range outs {
		fmt.Printf("%s = %s\n", port, value)
	}
	return nil
}
