package resolver

import "sort"

// graph is the dependency graph over resolved plugins. Nodes live in an
// arena indexed by position; the index map translates plugin identities to
// arena slots.
type graph struct {
	nodes []graphNode
	index map[string]int
}

type graphNode struct {
	id    string
	edges []int
}

const (
	colorWhite = iota
	colorGray
	colorBlack
)

func newGraph() *graph {
	return &graph{index: make(map[string]int)}
}

// add returns the slot for id, creating the node on first sight.
func (g *graph) add(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, graphNode{id: id})
	g.index[id] = i
	return i
}

// addEdge records a dependency from one plugin to another. Duplicate edges
// are collapsed.
func (g *graph) addEdge(from, to string) {
	f := g.add(from)
	t := g.add(to)
	for _, e := range g.nodes[f].edges {
		if e == t {
			return
		}
	}
	g.nodes[f].edges = append(g.nodes[f].edges, t)
}

// cycles finds every distinct dependency cycle, each reported as the path
// of plugin identities with the entry node repeated at the end. Traversal
// order is sorted, so the same graph always yields the same cycles.
func (g *graph) cycles() [][]string {
	order := make([]int, len(g.nodes))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return g.nodes[order[a]].id < g.nodes[order[b]].id
	})

	color := make([]int, len(g.nodes))
	var found [][]string

	for _, root := range order {
		if color[root] != colorWhite {
			continue
		}

		// Iterative DFS. Each frame tracks the next edge to try so that a
		// node is blackened only after all its edges are exhausted.
		type frame struct {
			node int
			next int
		}
		stack := []frame{{node: root}}
		color[root] = colorGray
		onPath := []int{root}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			n := &g.nodes[top.node]

			if top.next >= len(n.edges) {
				color[top.node] = colorBlack
				stack = stack[:len(stack)-1]
				onPath = onPath[:len(onPath)-1]
				continue
			}

			edges := append([]int(nil), n.edges...)
			sort.Slice(edges, func(a, b int) bool {
				return g.nodes[edges[a]].id < g.nodes[edges[b]].id
			})
			target := edges[top.next]
			top.next++

			switch color[target] {
			case colorWhite:
				color[target] = colorGray
				stack = append(stack, frame{node: target})
				onPath = append(onPath, target)
			case colorGray:
				// Back edge. The cycle is the path suffix from the target.
				start := 0
				for i, id := range onPath {
					if id == target {
						start = i
						break
					}
				}
				cycle := make([]string, 0, len(onPath)-start+1)
				for _, id := range onPath[start:] {
					cycle = append(cycle, g.nodes[id].id)
				}
				cycle = append(cycle, g.nodes[target].id)
				found = append(found, cycle)
			}
		}
	}

	return found
}
