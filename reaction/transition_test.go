package reaction

import "testing"

func TestToggle(t *testing.T) {
	cases := []struct {
		name             string
		current, action  State
		wantNext         State
		wantPos, wantNeg int
	}{
		{"set positive from none", None, Positive, Positive, 1, 0},
		{"set negative from none", None, Negative, Negative, 0, 1},
		{"toggle positive off", Positive, Positive, None, -1, 0},
		{"toggle negative off", Negative, Negative, None, 0, -1},
		{"switch positive to negative", Positive, Negative, Negative, -1, 1},
		{"switch negative to positive", Negative, Positive, Positive, 1, -1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			next, dPos, dNeg := Toggle(c.current, c.action)
			if next != c.wantNext || dPos != c.wantPos || dNeg != c.wantNeg {
				t.Errorf("Toggle(%v, %v) = (%v, %d, %d), want (%v, %d, %d)",
					c.current, c.action, next, dPos, dNeg, c.wantNext, c.wantPos, c.wantNeg)
			}
		})
	}
}

// Repeating the same action twice always lands back on the starting state
// with zero net counter movement.
func TestToggleDoubleActionIsIdentity(t *testing.T) {
	for _, start := range []State{None, Positive, Negative} {
		for _, action := range []State{Positive, Negative} {
			mid, p1, n1 := Toggle(start, action)
			end, p2, n2 := Toggle(mid, action)
			if end != start {
				t.Errorf("start %v action %v twice: ended on %v", start, action, end)
			}
			if p1+p2 != 0 || n1+n2 != 0 {
				t.Errorf("start %v action %v twice: net deltas (%d, %d)", start, action, p1+p2, n1+n2)
			}
		}
	}
}

// A full toggle sequence on one report: add useful, remove it, then mark
// not useful. Counts start at 3 useful / 1 not useful.
func TestToggleSequenceOnCounts(t *testing.T) {
	useful, notUseful := 3, 1
	state := None

	apply := func(action State) {
		var dPos, dNeg int
		state, dPos, dNeg = Toggle(state, action)
		useful = floored(useful, dPos)
		notUseful = floored(notUseful, dNeg)
	}

	apply(Positive)
	if useful != 4 || notUseful != 1 || state != Positive {
		t.Fatalf("after useful: %d/%d %v", useful, notUseful, state)
	}
	apply(Positive)
	if useful != 3 || notUseful != 1 || state != None {
		t.Fatalf("after toggle off: %d/%d %v", useful, notUseful, state)
	}
	apply(Negative)
	if useful != 3 || notUseful != 2 || state != Negative {
		t.Fatalf("after not useful: %d/%d %v", useful, notUseful, state)
	}
	apply(Positive)
	if useful != 4 || notUseful != 1 || state != Positive {
		t.Fatalf("after switch: %d/%d %v", useful, notUseful, state)
	}
}

func TestFlooredNeverNegative(t *testing.T) {
	if got := floored(0, -1); got != 0 {
		t.Errorf("floored(0, -1) = %d", got)
	}
	if got := floored(2, -1); got != 1 {
		t.Errorf("floored(2, -1) = %d", got)
	}
	if got := floored(0, 1); got != 1 {
		t.Errorf("floored(0, 1) = %d", got)
	}
}

func TestStateString(t *testing.T) {
	if None.String() != "none" || Positive.String() != "positive" || Negative.String() != "negative" {
		t.Error("unexpected State string values")
	}
}
