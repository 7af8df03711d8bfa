package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/tierkreisgo/tierkreis/controller"
)

// workerCallArgs decodes the subset of the on-disk call-args file (§6.2)
// Subprocess needs to supervise the launched process: where to append its
// output and where to record failure. The full record is opaque to the
// controller and is read again, in full, by the worker itself.
type workerCallArgs struct {
	ErrorPath string `json:"error_path"`
	LogsPath  string `json:"logs_path"`
}

func readWorkerCallArgs(argsPath string) (workerCallArgs, error) {
	raw, err := os.ReadFile(argsPath)
	if err != nil {
		return workerCallArgs{}, err
	}
	var args workerCallArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return workerCallArgs{}, err
	}
	return args, nil
}

// Subprocess launches a launcher-directory binary as a detached child
// process, the Go analogue of the original's uv_executor: instead of a
// `bash -c "uv run main.py ... || touch error_path"` pipeline, it starts
// the command directly with os/exec and supervises it from a goroutine,
// writing error_path itself if the process fails to start or exits
// non-zero. A well-behaved worker still touches its own done_path on
// success; Subprocess never does that on the worker's behalf.
type Subprocess struct {
	// LaunchersPath is the registry directory; LaunchersPath/<launcher>/main
	// is executed with argsPath as its sole argument.
	LaunchersPath string

	// Env is appended to the child's environment (on top of os.Environ()).
	Env []string

	// Command, if set, overrides the default LaunchersPath/<launcher>/main
	// invocation — useful for tests or launchers that need an interpreter.
	Command func(launcherName, argsPath string) *exec.Cmd
}

// NewSubprocess builds a Subprocess executor rooted at launchersPath.
func NewSubprocess(launchersPath string) *Subprocess {
	return &Subprocess{LaunchersPath: launchersPath}
}

func (s *Subprocess) command(launcherName, argsPath string) *exec.Cmd {
	if s.Command != nil {
		return s.Command(launcherName, argsPath)
	}
	return exec.Command(filepath.Join(s.LaunchersPath, launcherName, "main"), argsPath)
}

// Run starts the worker process and returns once it is launched. A worker
// that cannot be started (e.g. the binary doesn't exist) or that exits
// non-zero has its error written to error_path (synchronously for a start
// failure, from a background goroutine for a non-zero exit); Run then
// returns nil, and the walker picks the failure up via NodeHasError on a
// later tick, exactly like a worker-reported failure. A non-nil return
// means ctx was already done, the call args or logs file could not be
// opened, or writing error_path after a start failure itself failed.
func (s *Subprocess) Run(ctx context.Context, launcherName string, argsPath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	callArgs, err := readWorkerCallArgs(argsPath)
	if err != nil {
		return fmt.Errorf("executor: reading call args at %s: %w", argsPath, err)
	}

	cmd := s.command(launcherName, argsPath)
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}

	logFile, err := os.OpenFile(callArgs.LogsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("executor: opening logs file %s: %w", callArgs.LogsPath, err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		if werr := os.WriteFile(callArgs.ErrorPath, []byte(err.Error()), 0o644); werr != nil {
			return fmt.Errorf("executor: starting %s failed (%v) and recording the error also failed: %w", launcherName, err, werr)
		}
		return nil
	}

	go func() {
		defer logFile.Close()
		if waitErr := cmd.Wait(); waitErr != nil {
			_ = os.WriteFile(callArgs.ErrorPath, []byte(waitErr.Error()), 0o644)
		}
	}()
	return nil
}

var _ controller.Executor = (*Subprocess)(nil)
