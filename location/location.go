// Package location implements the hierarchical node-address scheme used to
// name every node instance that the controller ever schedules.
//
// A Loc is an ordered sequence of steps. Each step is one of:
//
//   - N(i) — child node at index i within the current graph
//   - L(k) — the k-th iteration of a surrounding loop
//   - M(j) — the j-th element slot of a surrounding map
//   - exterior — the synthetic "outside" slot a subgraph reads its inputs from
//
// Locs are immutable values: every method that "descends" (N, L, M, Exterior)
// returns a new Loc rather than mutating the receiver, which is what lets
// Locs be used safely as map keys and replayed across resumed runs.
package location

import (
	"fmt"
	"strconv"
	"strings"
)

// StepKind tags the four forms a single step in a Loc can take.
type StepKind int

const (
	// StepNode addresses a child node by index within the current graph.
	StepNode StepKind = iota
	// StepLoop addresses a loop iteration by its 0-based count.
	StepLoop
	// StepMap addresses a map element slot by its index.
	StepMap
	// StepExterior addresses the synthetic "outside" scope of a subgraph.
	StepExterior
	// StepRoot is the synthetic step produced only by popping the root
	// Loc; it has no index and renders as "-".
	StepRoot
)

// exteriorLetter is the step letter rendered for StepExterior, chosen so a
// Loc ending in it can never be confused with a numbered N/L/M step.
const exteriorLetter = "E"

// Step is a single hop in a Loc. Index is meaningless for StepExterior.
type Step struct {
	Kind  StepKind
	Index int
}

func (s Step) String() string {
	switch s.Kind {
	case StepNode:
		return "N" + strconv.Itoa(s.Index)
	case StepLoop:
		return "L" + strconv.Itoa(s.Index)
	case StepMap:
		return "M" + strconv.Itoa(s.Index)
	case StepExterior:
		return exteriorLetter
	case StepRoot:
		return "-"
	default:
		return fmt.Sprintf("?%d", s.Kind)
	}
}

func parseStep(s string) (Step, error) {
	if s == exteriorLetter {
		return Step{Kind: StepExterior}, nil
	}
	if len(s) < 2 {
		return Step{}, fmt.Errorf("location: malformed step %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return Step{}, fmt.Errorf("location: malformed step %q: %w", s, err)
	}
	switch s[0] {
	case 'N':
		return Step{Kind: StepNode, Index: n}, nil
	case 'L':
		return Step{Kind: StepLoop, Index: n}, nil
	case 'M':
		return Step{Kind: StepMap, Index: n}, nil
	default:
		return Step{}, fmt.Errorf("location: unknown step letter in %q", s)
	}
}

// Loc is a node address: the root plus zero or more steps.
//
// The canonical root (NewLoc, or equivalently Parse("-")) renders as "-".
// Parse("") returns the distinguished "empty" Loc, which is a parse-only
// sentinel: it is the terminal value popped off once a Loc is fully
// exhausted. Outside of pop exhaustion, empty is never produced by the
// algebra below (Parent of root is root, not empty).
type Loc struct {
	steps []Step
	empty bool
}

// NewLoc returns the canonical root location, which renders as "-".
func NewLoc() Loc {
	return Loc{}
}

// Empty returns the distinguished empty Loc ("" when rendered), the
// sentinel produced by popping an already-root Loc.
func Empty() Loc {
	return Loc{empty: true}
}

// Parse parses the canonical string form produced by String.
//
// "" parses to the empty sentinel; "-" parses to root; anything else is
// "-" followed by one or more "."-separated steps.
func Parse(s string) (Loc, error) {
	if s == "" {
		return Empty(), nil
	}
	if s == "-" {
		return NewLoc(), nil
	}
	if !strings.HasPrefix(s, "-.") {
		return Loc{}, fmt.Errorf("location: %q must start with \"-\" or \"-.\"", s)
	}
	parts := strings.Split(s[2:], ".")
	steps := make([]Step, 0, len(parts))
	for _, p := range parts {
		step, err := parseStep(p)
		if err != nil {
			return Loc{}, err
		}
		steps = append(steps, step)
	}
	return Loc{steps: steps}, nil
}

// MustParse is Parse but panics on malformed input; intended for tests and
// literal locations baked into example graphs.
func MustParse(s string) Loc {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

// String renders the canonical form: "" for empty, "-" for root, otherwise
// "-" followed by each step joined by ".".
func (l Loc) String() string {
	if l.empty {
		return ""
	}
	if len(l.steps) == 0 {
		return "-"
	}
	parts := make([]string, len(l.steps))
	for i, s := range l.steps {
		parts[i] = s.String()
	}
	return "-." + strings.Join(parts, ".")
}

// IsEmpty reports whether l is the empty sentinel (Parse("")).
func (l Loc) IsEmpty() bool {
	return l.empty
}

// IsRoot reports whether l is the canonical root.
func (l Loc) IsRoot() bool {
	return !l.empty && len(l.steps) == 0
}

func (l Loc) extend(step Step) Loc {
	next := make([]Step, len(l.steps)+1)
	copy(next, l.steps)
	next[len(l.steps)] = step
	return Loc{steps: next}
}

// N returns the Loc of the child node at index i within the current graph.
func (l Loc) N(i int) Loc { return l.extend(Step{Kind: StepNode, Index: i}) }

// L returns the Loc of the k-th iteration of the loop at l.
func (l Loc) L(k int) Loc { return l.extend(Step{Kind: StepLoop, Index: k}) }

// M returns the Loc of the j-th element slot of the map at l.
func (l Loc) M(j int) Loc { return l.extend(Step{Kind: StepMap, Index: j}) }

// Exterior returns the synthetic "outside" slot that a subgraph rooted at l
// reads its inputs from.
func (l Loc) Exterior() Loc { return l.extend(Step{Kind: StepExterior}) }

// LastStepExterior reports whether l's final step is Exterior.
func (l Loc) LastStepExterior() bool {
	if len(l.steps) == 0 {
		return false
	}
	return l.steps[len(l.steps)-1].Kind == StepExterior
}

// PeekIndex returns the numeric index of l's last step when — and only
// when — that step is a loop step (L(k)). All other final step kinds,
// including N and M, return (0, false): this asymmetry is deliberate and
// matches the original engine's behaviour, since PeekIndex exists solely to
// let the loop walker compute "the next iteration number" from the loc of
// the latest started iteration.
func (l Loc) PeekIndex() (int, bool) {
	if len(l.steps) == 0 {
		return 0, false
	}
	last := l.steps[len(l.steps)-1]
	if last.Kind != StepLoop {
		return 0, false
	}
	return last.Index, true
}

// Parent returns the Loc with the last step removed. Parent(root) is root;
// Parent(empty) is empty.
func (l Loc) Parent() Loc {
	if l.empty || len(l.steps) == 0 {
		return l
	}
	return Loc{steps: l.steps[:len(l.steps)-1]}
}

// PopFirst splits off the first step, returning it and the remaining Loc.
// Popping the root yields the synthetic "-" step and the empty Loc; popping
// the empty Loc is an error (there is nothing left to pop).
func (l Loc) PopFirst() (Step, Loc, error) {
	if l.empty {
		return Step{}, Loc{}, fmt.Errorf("location: cannot pop an empty location")
	}
	if len(l.steps) == 0 {
		return Step{Kind: StepRoot}, Empty(), nil
	}
	return l.steps[0], Loc{steps: l.steps[1:]}, nil
}

// PopLast splits off the last step, returning it and the remaining Loc,
// symmetric to PopFirst.
func (l Loc) PopLast() (Step, Loc, error) {
	if l.empty {
		return Step{}, Loc{}, fmt.Errorf("location: cannot pop an empty location")
	}
	if len(l.steps) == 0 {
		return Step{Kind: StepRoot}, Empty(), nil
	}
	n := len(l.steps)
	return l.steps[n-1], Loc{steps: l.steps[:n-1]}, nil
}

// PartialLocs returns the chain root, root.step1, root.step1.step2, ...,
// ending with l itself — every non-empty prefix of l, inclusive.
func (l Loc) PartialLocs() []Loc {
	out := make([]Loc, 0, len(l.steps)+1)
	cur := Loc{}
	out = append(out, cur)
	for _, s := range l.steps {
		cur = cur.extend(s)
		out = append(out, cur)
	}
	return out
}

// Equal reports structural equality, used when Loc is a map key (Go map
// keys already compare structurally for comparable structs, but Equal is
// kept for readability at call sites and so Loc's internal representation
// can change without call sites breaking).
func (l Loc) Equal(other Loc) bool {
	if l.empty != other.empty {
		return false
	}
	if len(l.steps) != len(other.steps) {
		return false
	}
	for i := range l.steps {
		if l.steps[i] != other.steps[i] {
			return false
		}
	}
	return true
}
