package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestSubprocessRunSuccessTouchesDonePath(t *testing.T) {
	dir := t.TempDir()
	donePath := filepath.Join(dir, "_finished")
	errorPath := filepath.Join(dir, "_error")
	logsPath := filepath.Join(dir, "logs")
	argsPath := filepath.Join(dir, "call_args")
	writeCallArgs(t, argsPath, errorPath, logsPath)

	s := &Subprocess{
		Command: func(launcherName, argsPath string) *exec.Cmd {
			return exec.Command("sh", "-c", "touch "+donePath)
		},
	}

	if err := s.Run(context.Background(), "shell", argsPath); err != nil {
		t.Fatalf("Run: %v", err)
	}
	waitForFile(t, donePath)
	if _, err := os.Stat(errorPath); err == nil {
		t.Fatal("error path should not have been written on success")
	}
}

func TestSubprocessRunFailureWritesErrorPath(t *testing.T) {
	dir := t.TempDir()
	errorPath := filepath.Join(dir, "_error")
	logsPath := filepath.Join(dir, "logs")
	argsPath := filepath.Join(dir, "call_args")
	writeCallArgs(t, argsPath, errorPath, logsPath)

	s := &Subprocess{
		Command: func(launcherName, argsPath string) *exec.Cmd {
			return exec.Command("sh", "-c", "exit 1")
		},
	}

	if err := s.Run(context.Background(), "shell", argsPath); err != nil {
		t.Fatalf("Run: %v", err)
	}
	waitForFile(t, errorPath)
}

func writeCallArgs(t *testing.T, argsPath, errorPath, logsPath string) {
	t.Helper()
	body := `{"error_path":"` + errorPath + `","logs_path":"` + logsPath + `"}`
	if err := os.WriteFile(argsPath, []byte(body), 0o644); err != nil {
		t.Fatalf("writing call args: %v", err)
	}
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("file %s was never created", path)
}
