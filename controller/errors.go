package controller

import (
	"errors"
	"fmt"

	"github.com/tierkreisgo/tierkreis/location"
)

// ErrMaxIterationsExceeded is returned by Run when the walker/start loop hits
// its iteration cap without the root graph finishing.
var ErrMaxIterationsExceeded = errors.New("controller: max iterations exceeded before graph finished")

// GraphStructureError reports a malformed graph discovered while walking or
// starting it: a dangling ValueRef, a missing Output node, an unparsable
// nested body.
type GraphStructureError struct {
	Loc     location.Loc
	Message string
	Cause   error
}

func (e *GraphStructureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("controller: graph structure error at %s: %s: %v", e.Loc, e.Message, e.Cause)
	}
	return fmt.Sprintf("controller: graph structure error at %s: %s", e.Loc, e.Message)
}

func (e *GraphStructureError) Unwrap() error { return e.Cause }

// WorkerError reports a Func node whose launch failed: the Executor's Run
// returned an error when the node was started.
type WorkerError struct {
	Loc      location.Loc
	FuncName string
	Message  string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("controller: worker %s at %s failed: %s", e.FuncName, e.Loc, e.Message)
}

// StorageError wraps a failure from a Storage implementation with the
// location and operation that triggered it.
type StorageError struct {
	Op    string
	Loc   location.Loc
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("controller: storage %s at %s: %v", e.Op, e.Loc, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }
