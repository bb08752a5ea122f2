// Package depgraph builds the internal dependency graph of a workspace
// and answers the reverse-dependency queries the planner needs.
package depgraph

import (
	"fmt"
	"sort"

	"relkit/internal/workspace"
)

// Edge records one internal dependency declaration.
type Edge struct {
	// From depends on To.
	From, To string
	// Group is the manifest dependency group the edge came from.
	Group string
	// Range is the declared version range.
	Range string
}

// Graph holds forward and reverse adjacency over workspace packages.
// External dependencies are ignored.
type Graph struct {
	packages []string
	forward  map[string][]string // pkg -> deps
	reverse  map[string][]string // pkg -> dependents
	edges    []Edge
}

// Build constructs the graph for a workspace.
func Build(ws *workspace.Workspace) *Graph {
	g := &Graph{
		packages: ws.Names(),
		forward:  make(map[string][]string),
		reverse:  make(map[string][]string),
	}

	for _, pkg := range ws.Packages {
		seen := make(map[string]bool)
		for group, deps := range pkg.Manifest.Deps {
			for dep, rng := range deps {
				if _, internal := ws.Get(dep); !internal || dep == pkg.Name {
					continue
				}
				g.edges = append(g.edges, Edge{From: pkg.Name, To: dep, Group: group, Range: rng})
				if !seen[dep] {
					seen[dep] = true
					g.forward[pkg.Name] = append(g.forward[pkg.Name], dep)
					g.reverse[dep] = append(g.reverse[dep], pkg.Name)
				}
			}
		}
	}

	for _, adj := range []map[string][]string{g.forward, g.reverse} {
		for k := range adj {
			sort.Strings(adj[k])
		}
	}
	sort.Slice(g.edges, func(i, j int) bool {
		if g.edges[i].From != g.edges[j].From {
			return g.edges[i].From < g.edges[j].From
		}
		if g.edges[i].To != g.edges[j].To {
			return g.edges[i].To < g.edges[j].To
		}
		return g.edges[i].Group < g.edges[j].Group
	})
	return g
}

// Packages returns all package names in sorted order.
func (g *Graph) Packages() []string {
	return g.packages
}

// Edges returns all internal dependency edges in deterministic order.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// DependenciesOf returns the direct internal dependencies of a package.
func (g *Graph) DependenciesOf(name string) []string {
	return g.forward[name]
}

// DependentsOf returns the direct internal dependents of a package.
func (g *Graph) DependentsOf(name string) []string {
	return g.reverse[name]
}

// TransitiveDependents returns every package that directly or
// transitively depends on name, sorted.
func (g *Graph) TransitiveDependents(name string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, dep := range g.reverse[n] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(name)

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Cycles returns the strongly connected components with more than one
// member, each sorted, components ordered by their first member. A
// healthy workspace returns nothing.
func (g *Graph) Cycles() [][]string {
	// Tarjan's algorithm, iterative enough for workspace-sized graphs
	// to stay recursive.
	index := make(map[string]int)
	low := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	next := 0
	var sccs [][]string

	var strongconnect func(string)
	strongconnect = func(v string) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.forward[v] {
			if _, visited := index[w]; !visited {
				strongconnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] && index[w] < low[v] {
				low[v] = index[w]
			}
		}

		if low[v] == index[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 {
				sort.Strings(scc)
				sccs = append(sccs, scc)
			}
		}
	}

	for _, v := range g.packages {
		if _, visited := index[v]; !visited {
			strongconnect(v)
		}
	}

	sort.Slice(sccs, func(i, j int) bool { return sccs[i][0] < sccs[j][0] })
	return sccs
}

// ReleaseOrder returns the packages in topological order, dependencies
// before dependents. Ties break by name. Cycle members are emitted in
// name order after an error check: callers that care run Cycles first.
func (g *Graph) ReleaseOrder() ([]string, error) {
	if cycles := g.Cycles(); len(cycles) > 0 {
		return nil, fmt.Errorf("dependency cycle: %v", cycles[0])
	}

	indegree := make(map[string]int, len(g.packages))
	for _, p := range g.packages {
		indegree[p] = len(g.forward[p])
	}

	var order []string
	remaining := append([]string(nil), g.packages...)
	for len(remaining) > 0 {
		// Smallest-name zero-indegree package next: deterministic.
		pick := -1
		for i, p := range remaining {
			if indegree[p] == 0 {
				pick = i
				break
			}
		}
		if pick < 0 {
			return nil, fmt.Errorf("dependency cycle among %v", remaining)
		}
		p := remaining[pick]
		remaining = append(remaining[:pick], remaining[pick+1:]...)
		order = append(order, p)
		for _, dep := range g.reverse[p] {
			indegree[dep]--
		}
	}

	return order, nil
}
