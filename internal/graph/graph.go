// Package graph orders entity types by their foreign-key dependencies.
//
// An edge A → B exists when A declares a foreign key into B and both are in
// the working set. Referents sort before dependents, so rows can be inserted
// in the returned order. Foreign keys into types outside the working set are
// treated as already satisfied.
package graph

import (
	"slices"

	"github.com/roach88/bulkstep/internal/model"
)

// Graph is the dependency graph of one working set of entity types.
type Graph struct {
	nodes []string
	types map[string]*model.EntityType
	edges map[string][]string // dependent → referents, declaration order
}

// Build constructs the dependency graph of types. Duplicate or nil types
// are a ConfigurationError.
func Build(types []*model.EntityType) (*Graph, error) {
	g := &Graph{
		nodes: make([]string, 0, len(types)),
		types: make(map[string]*model.EntityType, len(types)),
		edges: make(map[string][]string, len(types)),
	}
	for _, t := range types {
		if t == nil {
			return nil, model.NewConfigurationError("nil entity type in working set")
		}
		if _, dup := g.types[t.Name]; dup {
			return nil, model.NewConfigurationError("entity type %q appears more than once", t.Name)
		}
		g.nodes = append(g.nodes, t.Name)
		g.types[t.Name] = t
	}

	for _, t := range types {
		targets := []string{}
		for _, fk := range t.ForeignKeys {
			if _, inSet := g.types[fk.Target]; !inSet {
				continue
			}
			if !slices.Contains(targets, fk.Target) {
				targets = append(targets, fk.Target)
			}
		}
		g.edges[t.Name] = targets
	}
	return g, nil
}

// Nodes returns the type names in input order.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.nodes)
}

// Edges returns the types name depends on, in declaration order.
func (g *Graph) Edges(name string) []string {
	return slices.Clone(g.edges[name])
}

// Order returns the types with every referent before its dependents.
// Among types that are ready at the same time, the earliest in input order
// goes first, so an input that is already ordered comes back unchanged.
// A cycle, including a self-reference, is a CyclicDependencyError.
func (g *Graph) Order() ([]*model.EntityType, error) {
	remaining := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for _, n := range g.nodes {
		remaining[n] = len(g.edges[n])
		for _, target := range g.edges[n] {
			dependents[target] = append(dependents[target], n)
		}
	}

	order := make([]*model.EntityType, 0, len(g.nodes))
	done := make(map[string]bool, len(g.nodes))
	for len(order) < len(g.nodes) {
		next := ""
		for _, n := range g.nodes {
			if !done[n] && remaining[n] == 0 {
				next = n
				break
			}
		}
		if next == "" {
			return nil, model.NewCyclicDependencyError(g.firstCycle())
		}
		done[next] = true
		order = append(order, g.types[next])
		for _, dep := range dependents[next] {
			remaining[dep]--
		}
	}
	return order, nil
}

// Cycles returns every dependency cycle as a closed path such as
// ["A", "B", "A"]. An acyclic graph returns an empty list.
func (g *Graph) Cycles() [][]string {
	cycles := [][]string{}
	for _, scc := range g.tarjanSCC() {
		if len(scc) > 1 || g.hasSelfLoop(scc[0]) {
			cycles = append(cycles, g.reconstructCyclePath(scc))
		}
	}
	return cycles
}

func (g *Graph) firstCycle() []string {
	cycles := g.Cycles()
	if len(cycles) == 0 {
		return nil
	}
	return cycles[0]
}

func (g *Graph) hasSelfLoop(node string) bool {
	return slices.Contains(g.edges[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Roots are visited in input order and each SCC is returned with its members
// in input order, so results are deterministic.
func (g *Graph) tarjanSCC() [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			members := make(map[string]bool)
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				members[w] = true
				if w == v {
					break
				}
			}
			scc := make([]string, 0, len(members))
			for _, n := range g.nodes {
				if members[n] {
					scc = append(scc, n)
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath returns the shortest closed path through the SCC
// starting and ending at its first member.
func (g *Graph) reconstructCyclePath(scc []string) []string {
	start := scc[0]
	inSCC := make(map[string]bool, len(scc))
	for _, n := range scc {
		inSCC[n] = true
	}

	parent := map[string]string{}
	queue := []string{start}
	seen := map[string]bool{}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.edges[current] {
			if !inSCC[next] {
				continue
			}
			if next == start {
				path := []string{start}
				for n := current; n != start; n = parent[n] {
					path = append(path, n)
				}
				path = append(path, start)
				// path was built backwards from the closing edge
				slices.Reverse(path)
				return path
			}
			if !seen[next] {
				seen[next] = true
				parent[next] = current
				queue = append(queue, next)
			}
		}
	}
	return []string{start, start}
}

// TopologicalOrder orders types so every referent precedes its dependents.
// Empty and single-type inputs come back unchanged unless a type references
// itself.
func TopologicalOrder(types []*model.EntityType) ([]*model.EntityType, error) {
	g, err := Build(types)
	if err != nil {
		return nil, err
	}
	return g.Order()
}

// Names returns the names of types, in order.
func Names(types []*model.EntityType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
	}
	return names
}
