// Package graph implements reachability and cycle search over dependency edges.
package graph

import "strings"

// Graph maps a node to the nodes it points at, in insertion order.
type Graph struct {
	nodes []string
	seen  map[string]bool
	out   map[string][]string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{seen: make(map[string]bool), out: make(map[string][]string)}
}

// AddNode registers a node so cycle search starts from it even without edges.
func (g *Graph) AddNode(id string) {
	if !g.seen[id] {
		g.seen[id] = true
		g.nodes = append(g.nodes, id)
	}
}

// AddEdge records from -> to.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.out[from] = append(g.out[from], to)
}

// Reaches reports whether to is reachable from from (a node reaches itself).
func (g *Graph) Reaches(from, to string) bool {
	visited := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, g.out[n]...)
	}
	return false
}

// Cycles finds cycles with a depth-first search that keeps a recursion
// stack and a global visited set. Each cycle is returned once, as the path
// from its first node back to that node: [A B C A].
func (g *Graph) Cycles() [][]string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	reported := make(map[string]bool)
	var cycles [][]string

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, next := range g.out[node] {
			if !visited[next] {
				dfs(next, path)
				continue
			}
			if !onStack[next] {
				continue
			}
			start := 0
			for i, p := range path {
				if p == next {
					start = i
					break
				}
			}
			cycle := append(append([]string(nil), path[start:]...), next)
			key := strings.Join(cycle, "\x00")
			if !reported[key] {
				reported[key] = true
				cycles = append(cycles, cycle)
			}
		}
		onStack[node] = false
	}

	for _, n := range g.nodes {
		if !visited[n] {
			dfs(n, nil)
		}
	}
	return cycles
}

// FormatCycle renders a cycle as "A -> B -> C -> A".
func FormatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}
