package storage

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tierkreisgo/tierkreis/controller"
	"github.com/tierkreisgo/tierkreis/graph"
	"github.com/tierkreisgo/tierkreis/location"
)

// FileStorage is the on-disk controller.Storage: one directory per location,
// marker files for started/finished/error, and a flat outputs/ subdirectory
// per location holding either a value blob or a pointer file recording a
// link's (loc, port) target. This is the layout a real out-of-process
// Executor (Subprocess, HTTP) needs, since workers only ever see paths, not
// Go values.
type FileStorage struct {
	root string
}

// NewFileStorage creates (if absent) root and its top-level _debug directory.
func NewFileStorage(root string) (*FileStorage, error) {
	if err := os.MkdirAll(filepath.Join(root, "_debug"), 0o755); err != nil {
		return nil, fmt.Errorf("controller/storage: creating %s: %w", root, err)
	}
	return &FileStorage{root: root}, nil
}

func locDirName(loc location.Loc) string {
	s := loc.String()
	// loc.String() already renders "-" for root and "-.N3.L0" style paths;
	// "." is not a valid path separator on any target OS, so it is safe to
	// use the string verbatim as a single path segment.
	return s
}

func (f *FileStorage) locDir(loc location.Loc) string {
	return filepath.Join(f.root, locDirName(loc))
}

func (f *FileStorage) ensureLocDir(loc location.Loc) (string, error) {
	dir := f.locDir(loc)
	if err := os.MkdirAll(filepath.Join(dir, "outputs"), 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (f *FileStorage) WriteMetadata(loc location.Loc) error {
	dir, err := f.ensureLocDir(loc)
	if err != nil {
		return &controller.StorageError{Op: "WriteMetadata", Loc: loc, Cause: err}
	}
	text := time.Now().UTC().Format(time.RFC3339Nano)
	if err := os.WriteFile(filepath.Join(dir, "_metadata"), []byte(text), 0o644); err != nil {
		return &controller.StorageError{Op: "WriteMetadata", Loc: loc, Cause: err}
	}
	return nil
}

func (f *FileStorage) WriteNodeDescription(loc location.Loc, desc controller.NodeDescription) error {
	dir, err := f.ensureLocDir(loc)
	if err != nil {
		return &controller.StorageError{Op: "WriteNodeDescription", Loc: loc, Cause: err}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(desc); err != nil {
		return &controller.StorageError{Op: "WriteNodeDescription", Loc: loc, Cause: err}
	}
	if err := os.WriteFile(filepath.Join(dir, "definition"), buf.Bytes(), 0o644); err != nil {
		return &controller.StorageError{Op: "WriteNodeDescription", Loc: loc, Cause: err}
	}
	if err := os.WriteFile(filepath.Join(dir, "_started"), nil, 0o644); err != nil {
		return &controller.StorageError{Op: "WriteNodeDescription", Loc: loc, Cause: err}
	}
	return nil
}

func (f *FileStorage) ReadNodeDescription(loc location.Loc) (controller.NodeDescription, error) {
	b, err := os.ReadFile(filepath.Join(f.locDir(loc), "definition"))
	if err != nil {
		return controller.NodeDescription{}, &controller.StorageError{Op: "ReadNodeDescription", Loc: loc, Cause: err}
	}
	var desc controller.NodeDescription
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&desc); err != nil {
		return controller.NodeDescription{}, &controller.StorageError{Op: "ReadNodeDescription", Loc: loc, Cause: err}
	}
	return desc, nil
}

// pointerFile is the on-disk shape of a link: outputs/<port> holds this
// JSON record instead of raw bytes when the port is linked rather than
// produced directly.
type pointerFile struct {
	Link bool   `json:"link"`
	Loc  string `json:"loc"`
	Port string `json:"port"`
}

func (f *FileStorage) WriteOutput(loc location.Loc, port graph.PortID, value []byte) error {
	dir, err := f.ensureLocDir(loc)
	if err != nil {
		return &controller.StorageError{Op: "WriteOutput", Loc: loc, Cause: err}
	}
	if err := os.WriteFile(filepath.Join(dir, "outputs", sanitizePort(port)), value, 0o644); err != nil {
		return &controller.StorageError{Op: "WriteOutput", Loc: loc, Cause: err}
	}
	return nil
}

func (f *FileStorage) ReadOutput(loc location.Loc, port graph.PortID) ([]byte, error) {
	return f.readOutput(loc, port, 0)
}

func (f *FileStorage) readOutput(loc location.Loc, port graph.PortID, depth int) ([]byte, error) {
	if depth > 1000 {
		return nil, &controller.StorageError{Op: "ReadOutput", Loc: loc, Cause: controller.ErrLinkCycle}
	}
	path := filepath.Join(f.locDir(loc), "outputs", sanitizePort(port))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &controller.StorageError{Op: "ReadOutput", Loc: loc, Cause: err}
	}
	var p pointerFile
	if json.Unmarshal(raw, &p) == nil && p.Link {
		srcLoc, err := location.Parse(p.Loc)
		if err != nil {
			return nil, &controller.StorageError{Op: "ReadOutput", Loc: loc, Cause: err}
		}
		return f.readOutput(srcLoc, graph.PortID(p.Port), depth+1)
	}
	return raw, nil
}

func (f *FileStorage) ReadOutputPorts(loc location.Loc) ([]graph.PortID, error) {
	entries, err := os.ReadDir(filepath.Join(f.locDir(loc), "outputs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &controller.StorageError{Op: "ReadOutputPorts", Loc: loc, Cause: err}
	}
	ports := make([]graph.PortID, 0, len(entries))
	for _, e := range entries {
		ports = append(ports, unsanitizePort(e.Name()))
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports, nil
}

func (f *FileStorage) LinkOutputs(dstLoc location.Loc, dstPort graph.PortID, srcLoc location.Loc, srcPort graph.PortID) error {
	dir, err := f.ensureLocDir(dstLoc)
	if err != nil {
		return &controller.StorageError{Op: "LinkOutputs", Loc: dstLoc, Cause: err}
	}
	raw, err := json.Marshal(pointerFile{Link: true, Loc: srcLoc.String(), Port: string(srcPort)})
	if err != nil {
		return &controller.StorageError{Op: "LinkOutputs", Loc: dstLoc, Cause: err}
	}
	if err := os.WriteFile(filepath.Join(dir, "outputs", sanitizePort(dstPort)), raw, 0o644); err != nil {
		return &controller.StorageError{Op: "LinkOutputs", Loc: dstLoc, Cause: err}
	}
	return nil
}

func (f *FileStorage) IsNodeStarted(loc location.Loc) (bool, error) {
	return fileExists(filepath.Join(f.locDir(loc), "_started"))
}

func (f *FileStorage) MarkNodeFinished(loc location.Loc) error {
	dir, err := f.ensureLocDir(loc)
	if err != nil {
		return &controller.StorageError{Op: "MarkNodeFinished", Loc: loc, Cause: err}
	}
	if err := os.WriteFile(filepath.Join(dir, "_finished"), nil, 0o644); err != nil {
		return &controller.StorageError{Op: "MarkNodeFinished", Loc: loc, Cause: err}
	}
	return nil
}

func (f *FileStorage) IsNodeFinished(loc location.Loc) (bool, error) {
	return fileExists(filepath.Join(f.locDir(loc), "_finished"))
}

func (f *FileStorage) NodeHasError(loc location.Loc) (bool, error) {
	return fileExists(filepath.Join(f.locDir(loc), "_error"))
}

func (f *FileStorage) ReadErrors(loc location.Loc) (string, error) {
	b, err := os.ReadFile(filepath.Join(f.locDir(loc), "_error"))
	if err != nil {
		return "", &controller.StorageError{Op: "ReadErrors", Loc: loc, Cause: err}
	}
	return string(b), nil
}

func (f *FileStorage) WriteNodeErrors(loc location.Loc, text string) error {
	dir, err := f.ensureLocDir(loc)
	if err != nil {
		return &controller.StorageError{Op: "WriteNodeErrors", Loc: loc, Cause: err}
	}
	if err := os.WriteFile(filepath.Join(dir, "_error"), []byte(text), 0o644); err != nil {
		return &controller.StorageError{Op: "WriteNodeErrors", Loc: loc, Cause: err}
	}
	return nil
}

// callArgsFile mirrors spec §6.2's worker call-args record: function_name,
// per-port input/output file paths, output_dir, done_path, error_path, and
// logs_path. JSON is used deliberately here (unlike the gob-encoded graph
// wire format) since this file crosses into whatever language a worker
// process is written in — it is the one place the engine's bytes must be
// readable by something other than itself.
type callArgsFile struct {
	FunctionName string            `json:"function_name"`
	Inputs       map[string]string `json:"inputs"`
	Outputs      map[string]string `json:"outputs"`
	OutputDir    string            `json:"output_dir"`
	DonePath     string            `json:"done_path"`
	ErrorPath    string            `json:"error_path"`
	LogsPath     string            `json:"logs_path"`
}

func (f *FileStorage) WriteWorkerCallArgs(loc location.Loc, funcName string, inputs map[graph.PortID]controller.OutputLoc, outputs []graph.PortID) (string, error) {
	dir, err := f.ensureLocDir(loc)
	if err != nil {
		return "", &controller.StorageError{Op: "WriteWorkerCallArgs", Loc: loc, Cause: err}
	}

	args := callArgsFile{
		FunctionName: funcName,
		Inputs:       make(map[string]string, len(inputs)),
		Outputs:      make(map[string]string, len(outputs)),
		OutputDir:    filepath.Join(dir, "outputs"),
		DonePath:     filepath.Join(dir, "_finished"),
		ErrorPath:    filepath.Join(dir, "_error"),
		LogsPath:     filepath.Join(dir, "logs"),
	}
	for port, src := range inputs {
		args.Inputs[string(port)] = filepath.Join(f.locDir(src.Loc), "outputs", sanitizePort(src.Port))
	}
	for _, port := range outputs {
		args.Outputs[string(port)] = filepath.Join(dir, "outputs", sanitizePort(port))
	}

	raw, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return "", &controller.StorageError{Op: "WriteWorkerCallArgs", Loc: loc, Cause: err}
	}
	path := filepath.Join(dir, "call_args")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", &controller.StorageError{Op: "WriteWorkerCallArgs", Loc: loc, Cause: err}
	}
	return path, nil
}

// ResolveCallArgs implements controller.ArgsResolver by reading the call-args
// JSON file back and loading each input port's bytes from its real path —
// letting an InProcess executor run a Func node without spawning anything,
// even against FileStorage.
func (f *FileStorage) ResolveCallArgs(argsPath string) (controller.CallArgs, error) {
	raw, err := os.ReadFile(argsPath)
	if err != nil {
		return controller.CallArgs{}, &controller.StorageError{Op: "ResolveCallArgs", Cause: err}
	}
	var args callArgsFile
	if err := json.Unmarshal(raw, &args); err != nil {
		return controller.CallArgs{}, &controller.StorageError{Op: "ResolveCallArgs", Cause: err}
	}
	inputs := make(map[graph.PortID][]byte, len(args.Inputs))
	for port, path := range args.Inputs {
		v, err := os.ReadFile(path)
		if err != nil {
			return controller.CallArgs{}, &controller.StorageError{Op: "ResolveCallArgs", Cause: err}
		}
		inputs[graph.PortID(port)] = v
	}
	outputPorts := make([]graph.PortID, 0, len(args.Outputs))
	for port := range args.Outputs {
		outputPorts = append(outputPorts, graph.PortID(port))
	}
	sort.Slice(outputPorts, func(i, j int) bool { return outputPorts[i] < outputPorts[j] })

	locStr, err := filepath.Rel(f.root, filepath.Dir(argsPath))
	if err != nil {
		return controller.CallArgs{}, &controller.StorageError{Op: "ResolveCallArgs", Cause: err}
	}
	loc, err := location.Parse(locStr)
	if err != nil {
		return controller.CallArgs{}, &controller.StorageError{Op: "ResolveCallArgs", Cause: err}
	}

	return controller.CallArgs{Loc: loc, FunctionName: args.FunctionName, Inputs: inputs, OutputPorts: outputPorts}, nil
}

func (f *FileStorage) LatestLoopIteration(loopLoc location.Loc) (location.Loc, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return loopLoc, &controller.StorageError{Op: "LatestLoopIteration", Loc: loopLoc, Cause: err}
	}
	prefix := locDirName(loopLoc) + ".L"
	best := -1
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := name[len(prefix):]
		if strings.ContainsRune(rest, '.') {
			continue
		}
		k, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		if k > best {
			best = k
		}
	}
	if best < 0 {
		return loopLoc, nil
	}
	return loopLoc.L(best), nil
}

func (f *FileStorage) debugPath(name string) string {
	return filepath.Join(f.root, "_debug", name)
}

func (f *FileStorage) LocFromNodeName(name string) (location.Loc, bool, error) {
	b, err := os.ReadFile(f.debugPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return location.Loc{}, false, nil
		}
		return location.Loc{}, false, &controller.StorageError{Op: "LocFromNodeName", Cause: err}
	}
	loc, err := location.Parse(strings.TrimSpace(string(b)))
	if err != nil {
		return location.Loc{}, false, &controller.StorageError{Op: "LocFromNodeName", Cause: err}
	}
	return loc, true, nil
}

func (f *FileStorage) WriteDebugData(name string, loc location.Loc) error {
	if err := os.WriteFile(f.debugPath(name), []byte(loc.String()), 0o644); err != nil {
		return &controller.StorageError{Op: "WriteDebugData", Loc: loc, Cause: err}
	}
	return nil
}

func (f *FileStorage) ReadLoopTrace(loopLoc location.Loc, port graph.PortID) ([][]byte, error) {
	var trace [][]byte
	for k := 0; ; k++ {
		v, err := f.readOutput(loopLoc.L(k), port, 0)
		if err != nil {
			break
		}
		trace = append(trace, v)
	}
	return trace, nil
}

func (f *FileStorage) LogsPath() string {
	return filepath.Join(f.root, "_debug", "run.log")
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// sanitizePort/unsanitizePort guard against port names that would collide
// with a filesystem path separator; '/' cannot appear in a PortID the engine
// itself produces (port names come from graph builders, not user text), but
// an adversarial or malformed graph could still submit one.
func sanitizePort(port graph.PortID) string {
	return strings.ReplaceAll(string(port), "/", "_")
}

func unsanitizePort(name string) graph.PortID {
	return graph.PortID(name)
}

var (
	_ controller.Storage      = (*FileStorage)(nil)
	_ controller.ArgsResolver = (*FileStorage)(nil)
)
