package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReaches(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("x", "a")

	tests := []struct {
		from, to string
		want     bool
	}{
		{"a", "c", true},
		{"x", "c", true},
		{"c", "a", false},
		{"a", "a", true},
		{"b", "x", false},
		{"unknown", "a", false},
	}
	for _, tt := range tests {
		if got := g.Reaches(tt.from, tt.to); got != tt.want {
			t.Errorf("Reaches(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCyclesReportedOnce(t *testing.T) {
	g := New()
	g.AddEdge("A", "B")
	g.AddEdge("B", "C")
	g.AddEdge("C", "A")
	g.AddEdge("C", "D")

	cycles := g.Cycles()
	want := [][]string{{"A", "B", "C", "A"}}
	if diff := cmp.Diff(want, cycles); diff != "" {
		t.Errorf("Cycles mismatch (-want +got):\n%s", diff)
	}
	if got := FormatCycle(cycles[0]); got != "A -> B -> C -> A" {
		t.Errorf("FormatCycle = %q", got)
	}
}

func TestCyclesSelfLoopAndDisjoint(t *testing.T) {
	g := New()
	g.AddEdge("s", "s")
	g.AddEdge("p", "q")
	g.AddEdge("q", "p")
	g.AddNode("lonely")

	cycles := g.Cycles()
	if len(cycles) != 2 {
		t.Fatalf("Cycles = %v, want 2 cycles", cycles)
	}
	if diff := cmp.Diff([]string{"s", "s"}, cycles[0]); diff != "" {
		t.Errorf("self loop mismatch:\n%s", diff)
	}
}

func TestAcyclicGraph(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("a", "c")
	g.AddEdge("b", "c")
	if cycles := g.Cycles(); len(cycles) != 0 {
		t.Errorf("Cycles = %v, want none", cycles)
	}
}
