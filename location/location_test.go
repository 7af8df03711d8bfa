package location

import "testing"

// Fixtures mirror tierkreis's original test_locs.py parametrizations.
var (
	loc1 = NewLoc().N(1).L(0).N(3).L(2).N(0).M(7).N(10)
	loc2 = NewLoc().N(0).L(0).N(3).N(8).N(0)
	loc3 = NewLoc().N(0)
	loc4 = NewLoc()
)

func TestStringRoundTrip(t *testing.T) {
	cases := []struct {
		loc Loc
		str string
	}{
		{loc1, "-.N1.L0.N3.L2.N0.M7.N10"},
		{loc2, "-.N0.L0.N3.N8.N0"},
		{loc3, "-.N0"},
		{loc4, "-"},
	}
	for _, c := range cases {
		if got := c.loc.String(); got != c.str {
			t.Errorf("String() = %q, want %q", got, c.str)
		}
		parsed, err := Parse(c.str)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.str, err)
		}
		if !parsed.Equal(c.loc) {
			t.Errorf("Parse(%q) = %v, want %v", c.str, parsed, c.loc)
		}
	}
}

func TestParent(t *testing.T) {
	cases := []struct {
		loc    Loc
		parent string
	}{
		{loc1, "-.N1.L0.N3.L2.N0.M7"},
		{loc2, "-.N0.L0.N3.N8"},
		{loc3, "-"},
		{loc4, "-"},
		{NewLoc().N(1).L(3), "-.N1"},
		{NewLoc().N(1).L(2), "-.N1"},
		{NewLoc().N(1).L(0), "-.N1"},
	}
	for _, c := range cases {
		want := MustParse(c.parent)
		if got := c.loc.Parent(); !got.Equal(want) {
			t.Errorf("Parent(%v) = %v, want %v", c.loc, got, want)
		}
	}
}

func TestPopFirst(t *testing.T) {
	cases := []struct {
		loc       Loc
		wantStep  string
		remainder string
	}{
		{loc1, "N1", "-.L0.N3.L2.N0.M7.N10"},
		{loc2, "N0", "-.L0.N3.N8.N0"},
		{loc3, "N0", "-"},
		{loc4, "-", ""},
	}
	for _, c := range cases {
		step, rem, err := c.loc.PopFirst()
		if err != nil {
			t.Fatalf("PopFirst(%v): %v", c.loc, err)
		}
		if step.String() != c.wantStep {
			t.Errorf("PopFirst(%v) step = %q, want %q", c.loc, step.String(), c.wantStep)
		}
		if !rem.Equal(MustParse(c.remainder)) {
			t.Errorf("PopFirst(%v) remainder = %v, want %q", c.loc, rem, c.remainder)
		}
	}
}

func TestPopLast(t *testing.T) {
	cases := []struct {
		loc       Loc
		wantStep  string
		remainder string
	}{
		{loc1, "N10", "-.N1.L0.N3.L2.N0.M7"},
		{loc2, "N0", "-.N0.L0.N3.N8"},
		{loc3, "N0", "-"},
		{loc4, "-", ""},
	}
	for _, c := range cases {
		step, rem, err := c.loc.PopLast()
		if err != nil {
			t.Fatalf("PopLast(%v): %v", c.loc, err)
		}
		if step.String() != c.wantStep {
			t.Errorf("PopLast(%v) step = %q, want %q", c.loc, step.String(), c.wantStep)
		}
		if !rem.Equal(MustParse(c.remainder)) {
			t.Errorf("PopLast(%v) remainder = %v, want %q", c.loc, rem, c.remainder)
		}
	}
}

func TestPopEmpty(t *testing.T) {
	e := Empty()
	if _, _, err := e.PopFirst(); err == nil {
		t.Error("PopFirst on empty location should error")
	}
	if _, _, err := e.PopLast(); err == nil {
		t.Error("PopLast on empty location should error")
	}
}

func TestPopFirstMultiple(t *testing.T) {
	want := []struct {
		step      string
		remainder string
	}{
		{"N0", "-.L0.N3.N8.N0"},
		{"L0", "-.N3.N8.N0"},
		{"N3", "-.N8.N0"},
		{"N8", "-.N0"},
		{"N0", "-"},
		{"-", ""},
	}
	cur := loc2
	for _, w := range want {
		step, rem, err := cur.PopFirst()
		if err != nil {
			t.Fatalf("PopFirst: %v", err)
		}
		if step.String() != w.step {
			t.Errorf("step = %q, want %q", step.String(), w.step)
		}
		if !rem.Equal(MustParse(w.remainder)) {
			t.Errorf("remainder = %v, want %q", rem, w.remainder)
		}
		cur = rem
	}
}

func TestPopLastMultiple(t *testing.T) {
	want := []struct {
		step      string
		remainder string
	}{
		{"N0", "-.N0.L0.N3.N8"},
		{"N8", "-.N0.L0.N3"},
		{"N3", "-.N0.L0"},
		{"L0", "-.N0"},
		{"N0", "-"},
		{"-", ""},
	}
	cur := loc2
	for _, w := range want {
		step, rem, err := cur.PopLast()
		if err != nil {
			t.Fatalf("PopLast: %v", err)
		}
		if step.String() != w.step {
			t.Errorf("step = %q, want %q", step.String(), w.step)
		}
		if !rem.Equal(MustParse(w.remainder)) {
			t.Errorf("remainder = %v, want %q", rem, w.remainder)
		}
		cur = rem
	}
}

func TestLastStepExterior(t *testing.T) {
	cases := []struct {
		loc  Loc
		want bool
	}{
		{loc1, false},
		{loc2, false},
		{loc3, false},
		{loc4, false},
		{NewLoc().Exterior(), true},
	}
	for _, c := range cases {
		if got := c.loc.LastStepExterior(); got != c.want {
			t.Errorf("LastStepExterior(%v) = %v, want %v", c.loc, got, c.want)
		}
	}
}

func TestPeekIndex(t *testing.T) {
	cases := []struct {
		loc       Loc
		wantIndex int
		wantOK    bool
	}{
		{loc1, 0, false},
		{loc2, 0, false},
		{loc3, 0, false},
		{loc4, 0, false},
		{NewLoc().Exterior(), 0, false},
		{NewLoc().L(1), 1, true},
		{NewLoc().L(4), 4, true},
	}
	for _, c := range cases {
		idx, ok := c.loc.PeekIndex()
		if ok != c.wantOK || idx != c.wantIndex {
			t.Errorf("PeekIndex(%v) = (%d, %v), want (%d, %v)", c.loc, idx, ok, c.wantIndex, c.wantOK)
		}
	}
}

func TestPartialLocs(t *testing.T) {
	cases := []struct {
		loc      Loc
		expected []Loc
	}{
		{
			loc1,
			[]Loc{
				NewLoc(),
				NewLoc().N(1),
				NewLoc().N(1).L(0),
				NewLoc().N(1).L(0).N(3),
				NewLoc().N(1).L(0).N(3).L(2),
				NewLoc().N(1).L(0).N(3).L(2).N(0),
				NewLoc().N(1).L(0).N(3).L(2).N(0).M(7),
				NewLoc().N(1).L(0).N(3).L(2).N(0).M(7).N(10),
			},
		},
		{
			loc2,
			[]Loc{
				NewLoc(),
				NewLoc().N(0),
				NewLoc().N(0).L(0),
				NewLoc().N(0).L(0).N(3),
				NewLoc().N(0).L(0).N(3).N(8),
				NewLoc().N(0).L(0).N(3).N(8).N(0),
			},
		},
		{loc3, []Loc{NewLoc(), NewLoc().N(0)}},
		{loc4, []Loc{NewLoc()}},
	}
	for _, c := range cases {
		got := c.loc.PartialLocs()
		if len(got) != len(c.expected) {
			t.Fatalf("PartialLocs(%v) len = %d, want %d", c.loc, len(got), len(c.expected))
		}
		for i := range got {
			if !got[i].Equal(c.expected[i]) {
				t.Errorf("PartialLocs(%v)[%d] = %v, want %v", c.loc, i, got[i], c.expected[i])
			}
		}
		last := got[len(got)-1]
		if !last.Equal(c.loc) {
			t.Errorf("PartialLocs(%v) last = %v, want %v", c.loc, last, c.loc)
		}
	}
}

func TestRootAndEmptyAliasing(t *testing.T) {
	if NewLoc().String() != "-" {
		t.Errorf("root should render as \"-\"")
	}
	if Empty().String() != "" {
		t.Errorf("empty should render as \"\"")
	}
	if !NewLoc().Parent().Equal(NewLoc()) {
		t.Errorf("parent(root) should be root")
	}
}

func TestExtendFromRefHelpers(t *testing.T) {
	parent := NewLoc().N(2)
	if got := parent.N(5).String(); got != "-.N2.N5" {
		t.Errorf("N(5) on parent = %q", got)
	}
	if got := parent.Exterior().String(); got != "-.N2.E" {
		t.Errorf("Exterior on parent = %q", got)
	}
}
