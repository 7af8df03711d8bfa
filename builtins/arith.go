// Package builtins provides the InProcess-registered worker functions used
// by the cmd/tkr driver: integer arithmetic and comparison primitives, and
// an always-failing worker.
package builtins

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tierkreisgo/tierkreis/controller"
	"github.com/tierkreisgo/tierkreis/controller/executor"
)

// Launcher is the launcher name these workers are registered under, matching
// the "builtins.iadd" style function names used throughout the graphs.
const Launcher = "builtins"

// EncodeInt and DecodeInt give the example graphs and tests one canonical
// byte encoding for integer values: ASCII decimal, matching the worker call
// args' port files being plain readable text rather than a binary format.
func EncodeInt(n int) []byte { return []byte(strconv.Itoa(n)) }

func DecodeInt(b []byte) (int, error) {
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, fmt.Errorf("builtins: decoding int from %q: %w", b, err)
	}
	return n, nil
}

func encodeBool(b bool) []byte {
	if b {
		return []byte("true")
	}
	return []byte("false")
}

func intInputs(args controller.CallArgs) (a, b int, err error) {
	a, err = DecodeInt(args.Inputs["a"])
	if err != nil {
		return 0, 0, err
	}
	b, err = DecodeInt(args.Inputs["b"])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// RegisterArith registers the integer arithmetic/comparison primitives
// referenced by the example loop and map graphs: iadd, itimes, igt, ieq,
// neq, imod.
func RegisterArith(exec *executor.InProcess) {
	exec.Register(Launcher, "iadd", func(_ context.Context, args controller.CallArgs) (map[string][]byte, error) {
		a, b, err := intInputs(args)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{"value": EncodeInt(a + b)}, nil
	})
	exec.Register(Launcher, "itimes", func(_ context.Context, args controller.CallArgs) (map[string][]byte, error) {
		a, b, err := intInputs(args)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{"value": EncodeInt(a * b)}, nil
	})
	exec.Register(Launcher, "igt", func(_ context.Context, args controller.CallArgs) (map[string][]byte, error) {
		a, b, err := intInputs(args)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{"value": encodeBool(a > b)}, nil
	})
	exec.Register(Launcher, "ieq", func(_ context.Context, args controller.CallArgs) (map[string][]byte, error) {
		a, b, err := intInputs(args)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{"value": encodeBool(a == b)}, nil
	})
	exec.Register(Launcher, "neq", func(_ context.Context, args controller.CallArgs) (map[string][]byte, error) {
		a, b, err := intInputs(args)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{"value": encodeBool(a != b)}, nil
	})
	exec.Register(Launcher, "imod", func(_ context.Context, args controller.CallArgs) (map[string][]byte, error) {
		a, b, err := intInputs(args)
		if err != nil {
			return nil, err
		}
		if b == 0 {
			return nil, fmt.Errorf("builtins.imod: modulo by zero")
		}
		return map[string][]byte{"value": EncodeInt(a % b)}, nil
	})
}
