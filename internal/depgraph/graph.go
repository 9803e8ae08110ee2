// Package depgraph holds the module-level dependency graph exported by the
// build tool and answers reverse-reachability queries over it.
package depgraph

import "sort"

// Graph is a directed graph where an edge dependent -> dependency means the
// dependent module imports the dependency.
//
// Graph is not safe for concurrent modification. It is built once per run
// and then only queried.
type Graph struct {
	nodes map[string]struct{}
	deps  map[string]map[string]struct{}
	// reverse index: dependency -> modules importing it
	dependents map[string]map[string]struct{}
}

func New() *Graph {
	return &Graph{
		nodes:      make(map[string]struct{}),
		deps:       make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}
}

// AddNode registers id without edges. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if id == "" {
		return
	}
	g.nodes[id] = struct{}{}
}

// AddDependency records that dependent imports dependency. Both nodes are
// created when missing and duplicate edges are ignored.
func (g *Graph) AddDependency(dependent, dependency string) {
	if dependent == "" || dependency == "" {
		return
	}
	g.AddNode(dependent)
	g.AddNode(dependency)

	if g.deps[dependent] == nil {
		g.deps[dependent] = make(map[string]struct{})
	}
	g.deps[dependent][dependency] = struct{}{}

	if g.dependents[dependency] == nil {
		g.dependents[dependency] = make(map[string]struct{})
	}
	g.dependents[dependency][dependent] = struct{}{}
}

func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Dependencies returns the modules id imports directly, sorted.
func (g *Graph) Dependencies(id string) []string {
	return sortedKeys(g.deps[id])
}

// Dependents returns the modules that import id directly, sorted.
func (g *Graph) Dependents(id string) []string {
	return sortedKeys(g.dependents[id])
}

func (g *Graph) Nodes() []string {
	return sortedKeys(g.nodes)
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, d := range g.deps {
		n += len(d)
	}
	return n
}

// ImpactedBy returns every module that transitively depends on one of the
// seeds, plus the seeds themselves. Seeds unknown to the graph are kept in
// the result. Each node is visited at most once, so cycles terminate.
func (g *Graph) ImpactedBy(seeds []string) []string {
	visited := make(map[string]struct{}, len(seeds))
	queue := make([]string, 0, len(seeds))

	for _, s := range seeds {
		if s == "" {
			continue
		}
		if _, ok := visited[s]; ok {
			continue
		}
		visited[s] = struct{}{}
		queue = append(queue, s)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for dependent := range g.dependents[current] {
			if _, ok := visited[dependent]; ok {
				continue
			}
			visited[dependent] = struct{}{}
			queue = append(queue, dependent)
		}
	}

	return sortedKeys(visited)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
