// Package storage provides concrete controller.Storage implementations: an
// in-memory store for tests and short-lived runs, and SQL-backed stores for
// durable ones.
package storage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tierkreisgo/tierkreis/controller"
	"github.com/tierkreisgo/tierkreis/graph"
	"github.com/tierkreisgo/tierkreis/location"
)

type outputKey struct {
	loc  string
	port graph.PortID
}

type link struct {
	loc  location.Loc
	port graph.PortID
}

// MemStorage is an in-memory controller.Storage, thread-safe for concurrent
// access by the run loop and by executors writing worker results back
// (InProcess executors call it directly; out-of-process ones go through
// FileStorage instead).
type MemStorage struct {
	mu sync.RWMutex

	descriptions map[string]controller.NodeDescription
	outputs      map[outputKey][]byte
	links        map[outputKey]link
	started      map[string]bool
	finished     map[string]bool
	errors       map[string]string
	debugNames   map[string]location.Loc
	metadata     map[string]time.Time
	logsPath     string

	callArgs     map[string]controller.CallArgs
	callArgsNext int
}

// NewMemStorage builds an empty in-memory store. logsPath is returned
// verbatim by LogsPath — it need not exist on disk for a purely in-process
// run.
func NewMemStorage(logsPath string) *MemStorage {
	return &MemStorage{
		descriptions: make(map[string]controller.NodeDescription),
		outputs:      make(map[outputKey][]byte),
		links:        make(map[outputKey]link),
		started:      make(map[string]bool),
		finished:     make(map[string]bool),
		errors:       make(map[string]string),
		debugNames:   make(map[string]location.Loc),
		metadata:     make(map[string]time.Time),
		logsPath:     logsPath,
		callArgs:     make(map[string]controller.CallArgs),
	}
}

func (m *MemStorage) WriteMetadata(loc location.Loc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[loc.String()] = time.Now()
	return nil
}

func (m *MemStorage) WriteNodeDescription(loc location.Loc, desc controller.NodeDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptions[loc.String()] = desc
	m.started[loc.String()] = true
	return nil
}

func (m *MemStorage) ReadNodeDescription(loc location.Loc) (controller.NodeDescription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	desc, ok := m.descriptions[loc.String()]
	if !ok {
		return controller.NodeDescription{}, fmt.Errorf("%w: no description at %s", controller.ErrNotFound, loc)
	}
	return desc, nil
}

func (m *MemStorage) WriteOutput(loc location.Loc, port graph.PortID, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[outputKey{loc.String(), port}] = value
	return nil
}

// ReadOutput follows the link chain at (loc, port) to its terminal value. A
// cycle (which the engine should never produce, since each fact is written
// at most once) is reported rather than looped forever.
func (m *MemStorage) ReadOutput(loc location.Loc, port graph.PortID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readOutputLocked(loc, port, 0)
}

func (m *MemStorage) readOutputLocked(loc location.Loc, port graph.PortID, depth int) ([]byte, error) {
	if depth > 1000 {
		return nil, fmt.Errorf("%w: at (%s, %s)", controller.ErrLinkCycle, loc, port)
	}
	key := outputKey{loc.String(), port}
	if l, ok := m.links[key]; ok {
		return m.readOutputLocked(l.loc, l.port, depth+1)
	}
	v, ok := m.outputs[key]
	if !ok {
		return nil, fmt.Errorf("%w: no output at (%s, %s)", controller.ErrNotFound, loc, port)
	}
	return v, nil
}

func (m *MemStorage) ReadOutputPorts(loc location.Loc) ([]graph.PortID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[graph.PortID]bool)
	for k := range m.outputs {
		if k.loc == loc.String() {
			seen[k.port] = true
		}
	}
	for k := range m.links {
		if k.loc == loc.String() {
			seen[k.port] = true
		}
	}
	ports := make([]graph.PortID, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports, nil
}

func (m *MemStorage) LinkOutputs(dstLoc location.Loc, dstPort graph.PortID, srcLoc location.Loc, srcPort graph.PortID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[outputKey{dstLoc.String(), dstPort}] = link{loc: srcLoc, port: srcPort}
	return nil
}

func (m *MemStorage) IsNodeStarted(loc location.Loc) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started[loc.String()], nil
}

func (m *MemStorage) MarkNodeFinished(loc location.Loc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[loc.String()] = true
	return nil
}

func (m *MemStorage) IsNodeFinished(loc location.Loc) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finished[loc.String()], nil
}

func (m *MemStorage) NodeHasError(loc location.Loc) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.errors[loc.String()]
	return ok, nil
}

func (m *MemStorage) ReadErrors(loc location.Loc) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.errors[loc.String()]
	if !ok {
		return "", fmt.Errorf("%w: no error recorded at %s", controller.ErrNotFound, loc)
	}
	return text, nil
}

func (m *MemStorage) WriteNodeErrors(loc location.Loc, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[loc.String()] = text
	return nil
}

// WriteWorkerCallArgs resolves each input's bytes up front and keeps the
// whole call-args record in memory, keyed by a synthetic path — there is no
// filesystem for a real worker process to read from, so only an InProcess
// Executor (via ResolveCallArgs) can service a Func node backed by
// MemStorage.
func (m *MemStorage) WriteWorkerCallArgs(loc location.Loc, funcName string, inputs map[graph.PortID]controller.OutputLoc, outputs []graph.PortID) (string, error) {
	resolved := make(map[graph.PortID][]byte, len(inputs))
	for port, src := range inputs {
		v, err := m.ReadOutput(src.Loc, src.Port)
		if err != nil {
			return "", err
		}
		resolved[port] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callArgsNext++
	path := fmt.Sprintf("mem://%s/%s/%d", loc.String(), funcName, m.callArgsNext)
	m.callArgs[path] = controller.CallArgs{
		Loc:          loc,
		FunctionName: funcName,
		Inputs:       resolved,
		OutputPorts:  append([]graph.PortID(nil), outputs...),
	}
	return path, nil
}

// ResolveCallArgs implements controller.ArgsResolver.
func (m *MemStorage) ResolveCallArgs(argsPath string) (controller.CallArgs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	args, ok := m.callArgs[argsPath]
	if !ok {
		return controller.CallArgs{}, fmt.Errorf("%w: no call args at %s", controller.ErrNotFound, argsPath)
	}
	return args, nil
}

// LatestLoopIteration infers the highest-numbered L(k) child of loopLoc that
// has been started by scanning descriptions rather than maintaining a
// separate index — loop iterations are rare enough per run that an O(started
// nodes) scan is cheap, and it keeps MemStorage's write path simple.
func (m *MemStorage) LatestLoopIteration(loopLoc location.Loc) (location.Loc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := loopLoc.String() + ".L"
	best := -1
	for key := range m.started {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if strings.ContainsRune(rest, '.') {
			continue // not a direct L(k) child of loopLoc
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

func (m *MemStorage) LocFromNodeName(name string) (location.Loc, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.debugNames[name]
	return loc, ok, nil
}

func (m *MemStorage) WriteDebugData(name string, loc location.Loc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugNames[name] = loc
	return nil
}

func (m *MemStorage) ReadLoopTrace(loopLoc location.Loc, port graph.PortID) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var trace [][]byte
	for k := 0; ; k++ {
		iterLoc := loopLoc.L(k)
		v, err := m.readOutputLocked(iterLoc, port, 0)
		if err != nil {
			break
		}
		trace = append(trace, v)
	}
	return trace, nil
}

func (m *MemStorage) LogsPath() string { return m.logsPath }

var (
	_ controller.Storage      = (*MemStorage)(nil)
	_ controller.ArgsResolver = (*MemStorage)(nil)
)
