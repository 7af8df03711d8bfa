// Package controller implements the ignition and polling logic that drives
// a graph to completion: the start dispatcher, the walker, and the run loop
// that ties them to a Storage implementation and an Executor.
package controller

import (
	"errors"

	"github.com/tierkreisgo/tierkreis/graph"
	"github.com/tierkreisgo/tierkreis/location"
)

// Sentinel errors returned by Storage implementations and surfaced by the
// run loop. Wrap these with fmt.Errorf("...: %w", ErrX) so callers can
// errors.Is against a stable identity.
var (
	ErrNotFound       = errors.New("controller: fact not found")
	ErrAlreadyStarted = errors.New("controller: node already started")
	ErrLinkCycle      = errors.New("controller: link cycle detected")
)

// NodeDescription is the durable record written the moment a node starts:
// its definition plus the declared output-port/consumer mapping it was
// admitted with. The walker and visualizer both read it back.
type NodeDescription struct {
	Node    graph.NodeDef
	Outputs map[graph.PortID]graph.NodeIndex
}

// OutputLoc names a concrete (location, port) pair a value lives at, once an
// abstract Ref has been resolved against a parent location.
type OutputLoc struct {
	Loc  location.Loc
	Port graph.PortID
}

// WorkerCallArgs is the descriptor handed to an Executor to launch a Func
// node's worker process, mirroring the on-disk call-args file (§6.2).
type WorkerCallArgs struct {
	FunctionName string
	Inputs       map[graph.PortID]OutputLoc
	Outputs      []graph.PortID
	OutputDir    string
	DonePath     string
	ErrorPath    string
	LogsPath     string
}

// Storage is the durable, per-location fact store every controller
// component reads and writes through. Implementations (in-memory, file,
// SQL) must honor: writes are durable before MarkNodeFinished returns;
// IsNodeFinished is monotonic once true; LinkOutputs is idempotent and
// composable (A→B then B→C makes reads at A yield C's bytes); the engine
// writes each (loc, port) output at most once, so concurrent writers to the
// same fact are undefined behavior, not a concern implementations need to
// guard against.
type Storage interface {
	// WriteMetadata records the run's start time at loc, readable back as a
	// timestamp. Called once, at the root, when a run begins.
	WriteMetadata(loc location.Loc) error

	// WriteNodeDescription records desc at loc, marking loc as started.
	WriteNodeDescription(loc location.Loc, desc NodeDescription) error
	// ReadNodeDescription returns the description written at loc.
	ReadNodeDescription(loc location.Loc) (NodeDescription, error)

	// WriteOutput records value on port at loc.
	WriteOutput(loc location.Loc, port graph.PortID, value []byte) error
	// ReadOutput reads the bytes at (loc, port), following any link chain.
	ReadOutput(loc location.Loc, port graph.PortID) ([]byte, error)
	// ReadOutputPorts lists the ports with outputs written at loc, in
	// lexicographically stable order.
	ReadOutputPorts(loc location.Loc) ([]graph.PortID, error)

	// LinkOutputs makes reads at (dstLoc, dstPort) follow through to
	// (srcLoc, srcPort), transitively.
	LinkOutputs(dstLoc location.Loc, dstPort graph.PortID, srcLoc location.Loc, srcPort graph.PortID) error

	// IsNodeStarted reports whether WriteNodeDescription has been called
	// for loc.
	IsNodeStarted(loc location.Loc) (bool, error)
	// MarkNodeFinished marks loc as finished. Idempotent.
	MarkNodeFinished(loc location.Loc) error
	// IsNodeFinished reports whether loc has finished.
	IsNodeFinished(loc location.Loc) (bool, error)

	// NodeHasError reports whether an error was recorded at loc.
	NodeHasError(loc location.Loc) (bool, error)
	// ReadErrors returns the error text recorded at loc.
	ReadErrors(loc location.Loc) (string, error)
	// WriteNodeErrors records text as loc's terminal error.
	WriteNodeErrors(loc location.Loc, text string) error

	// WriteWorkerCallArgs persists a call-args descriptor for a Func node —
	// the input locations it should read, and the output ports it is
	// expected to produce — and returns the path an Executor should be
	// handed to find it again.
	WriteWorkerCallArgs(loc location.Loc, funcName string, inputs map[graph.PortID]OutputLoc, outputs []graph.PortID) (string, error)

	// LatestLoopIteration returns the loc of the most recently started
	// L(k) child of a loop at loopLoc, or loopLoc itself if none has
	// started yet.
	LatestLoopIteration(loopLoc location.Loc) (location.Loc, error)

	// LocFromNodeName resolves a named loop (written via WriteDebugData)
	// back to its location.
	LocFromNodeName(name string) (location.Loc, bool, error)
	// WriteDebugData registers loc under name for later lookup by
	// LocFromNodeName and ReadLoopTrace.
	WriteDebugData(name string, loc location.Loc) error
	// ReadLoopTrace returns, in ascending iteration order, the bytes
	// written to port at each L(k) child of loopLoc.
	ReadLoopTrace(loopLoc location.Loc, port graph.PortID) ([][]byte, error)

	// LogsPath returns the path worker stderr/stdout should be appended
	// to for this run, used by in-process/subprocess executors.
	LogsPath() string
}
