package util

import (
	"fmt"
)

type Edge struct {
	ID     int32
	From   int32
	To     int32
	Weight int32
	Name   string
}

// Graph is a directed multigraph. More than one edge may connect the
// same pair of nodes, each edge carries its own weight and name.
type Graph struct {
	edgeID int32
	edges  map[[2]int32][]Edge
	graph  [][]int32
}

func NewGraph() *Graph {
	return &Graph{edges: make(map[[2]int32][]Edge)}
}

func (g *Graph) AddNode() int32 {
	id := int32(len(g.graph))
	g.graph = append(g.graph, []int32{})
	return id
}

func (g *Graph) Len() int {
	return len(g.graph)
}

func (g *Graph) AddEdge(from, to, weight int32, name string) (int32, error) {
	nl := int32(len(g.graph))
	if from < 0 || from >= nl {
		return -1, fmt.Errorf("from node %d does not exist", from)
	}

	if to < 0 || to >= nl {
		return -1, fmt.Errorf("to node %d does not exist", to)
	}

	if weight < 1 {
		return -1, fmt.Errorf("edge weight must be positive: %d", weight)
	}

	id := g.edgeID
	g.edgeID++

	k := [2]int32{from, to}
	_, exists := g.edges[k]
	g.edges[k] = append(g.edges[k], Edge{
		ID:     id,
		From:   from,
		To:     to,
		Weight: weight,
		Name:   name,
	})

	if !exists {
		g.graph[from] = append(g.graph[from], to)
	}
	return id, nil
}

func (g *Graph) GetEdges(from, to int32) []Edge {
	return g.edges[[2]int32{from, to}]
}

func (g *Graph) Connections(n int32) []int32 {
	if n < 0 || int(n) >= len(g.graph) {
		return nil
	}
	return g.graph[n]
}

// ShortestPath returns the edges of the lightest path between two nodes.
// Ties are broken by the lower edge id so the result is stable across
// runs. A nil result means the nodes are not connected.
func (g *Graph) ShortestPath(from, to int32) []Edge {
	nl := int32(len(g.graph))
	if from < 0 || from >= nl || to < 0 || to >= nl || from == to {
		return nil
	}

	h := newHeap()
	h.push(path{weight: 0, node: from})
	done := make(map[int32]struct{}, nl)

	for h.len() != 0 {
		p := h.pop()

		if p.node == to {
			return p.edges
		}

		if _, ok := done[p.node]; ok {
			continue
		}
		done[p.node] = struct{}{}

		for _, n := range g.graph[p.node] {
			if _, ok := done[n]; ok {
				continue
			}
			e := lightest(g.edges[[2]int32{p.node, n}])
			h.push(path{
				weight: p.weight + e.Weight,
				node:   n,
				edges:  append(append([]Edge{}, p.edges...), e),
			})
		}
	}
	return nil
}

func lightest(edges []Edge) Edge {
	e := edges[0]
	for _, v := range edges[1:] {
		if v.Weight < e.Weight || (v.Weight == e.Weight && v.ID < e.ID) {
			e = v
		}
	}
	return e
}
