package depgraph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraph_AddDependency(t *testing.T) {
	g := New()
	g.AddDependency("B", "A")
	g.AddDependency("B", "A")
	g.AddDependency("C", "B")
	g.AddDependency("", "X")

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 2, g.EdgeCount())
	assert.Equal(t, []string{"A", "B", "C"}, g.Nodes())
	assert.Equal(t, []string{"A"}, g.Dependencies("B"))
	assert.Equal(t, []string{"B"}, g.Dependents("A"))
	assert.Empty(t, g.Dependents("C"))
	assert.Empty(t, g.Dependencies("missing"))
	assert.True(t, g.Has("C"))
	assert.False(t, g.Has("X"))
}

func TestGraph_ImpactedBy(t *testing.T) {
	chain := func() *Graph {
		g := New()
		g.AddDependency("B", "A")
		g.AddDependency("C", "B")
		g.AddNode("D")
		return g
	}

	tests := []struct {
		name  string
		graph *Graph
		seeds []string
		want  []string
	}{
		{
			name:  "transitive dependents",
			graph: chain(),
			seeds: []string{"A"},
			want:  []string{"A", "B", "C"},
		},
		{
			name:  "leaf seed only impacts itself",
			graph: chain(),
			seeds: []string{"C"},
			want:  []string{"C"},
		},
		{
			name:  "seed absent from graph is kept",
			graph: chain(),
			seeds: []string{"Z"},
			want:  []string{"Z"},
		},
		{
			name:  "no seeds",
			graph: chain(),
			seeds: nil,
			want:  []string{},
		},
		{
			name: "cycle terminates",
			graph: func() *Graph {
				g := New()
				g.AddDependency("B", "A")
				g.AddDependency("C", "B")
				g.AddDependency("A", "C")
				g.AddDependency("E", "D")
				return g
			}(),
			seeds: []string{"B"},
			want:  []string{"A", "B", "C"},
		},
		{
			name: "diamond visits shared dependent once",
			graph: func() *Graph {
				g := New()
				g.AddDependency("B", "A")
				g.AddDependency("C", "A")
				g.AddDependency("D", "B")
				g.AddDependency("D", "C")
				return g
			}(),
			seeds: []string{"A", "A"},
			want:  []string{"A", "B", "C", "D"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.graph.ImpactedBy(tt.seeds))
		})
	}
}

func TestGraph_ImpactedByNeverIncludesUnreachable(t *testing.T) {
	g := New()
	for i := 0; i < 50; i++ {
		g.AddDependency(fmt.Sprintf("M%d", i+1), fmt.Sprintf("M%d", i))
	}
	g.AddDependency("Other", "Unrelated")

	got := g.ImpactedBy([]string{"M25"})
	assert.Len(t, got, 26)
	assert.NotContains(t, got, "M24")
	assert.NotContains(t, got, "Other")
	assert.Contains(t, got, "M50")
}
