package util_test

import (
	"testing"

	"github.com/navql/navql/core/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nolint:errcheck
func TestShortestPath(t *testing.T) {
	g := util.NewGraph()

	a := g.AddNode() // 0
	b := g.AddNode() // 1
	c := g.AddNode() // 2
	d := g.AddNode() // 3

	g.AddEdge(a, b, 1, "ab")
	g.AddEdge(b, c, 1, "bc")
	g.AddEdge(a, c, 3, "ac")
	g.AddEdge(c, d, 2, "cd")
	g.AddEdge(a, c, 2, "ac_2")
	g.AddEdge(d, a, 1, "da")

	edges := g.ShortestPath(a, c)
	require.Len(t, edges, 1)
	assert.Equal(t, "ac_2", edges[0].Name)

	edges = g.ShortestPath(a, d)
	require.Len(t, edges, 2)
	assert.Equal(t, "ac_2", edges[0].Name)
	assert.Equal(t, "cd", edges[1].Name)

	edges = g.ShortestPath(b, a)
	require.Len(t, edges, 3)
	assert.Equal(t, []string{"bc", "cd", "da"},
		[]string{edges[0].Name, edges[1].Name, edges[2].Name})

	assert.Nil(t, g.ShortestPath(a, a))
}

func TestShortestPathDisconnected(t *testing.T) {
	g := util.NewGraph()
	a := g.AddNode()
	b := g.AddNode()

	assert.Nil(t, g.ShortestPath(a, b))
	assert.Nil(t, g.ShortestPath(a, 7))
}

func TestAddEdgeErrors(t *testing.T) {
	g := util.NewGraph()
	a := g.AddNode()

	_, err := g.AddEdge(a, 3, 1, "x")
	assert.Error(t, err)

	_, err = g.AddEdge(a, a, 0, "x")
	assert.Error(t, err)

	id, err := g.AddEdge(a, a, 1, "self")
	require.NoError(t, err)
	assert.Equal(t, []util.Edge{{ID: id, From: a, To: a, Weight: 1, Name: "self"}}, g.GetEdges(a, a))
	assert.Equal(t, []int32{a}, g.Connections(a))
}

func TestStack(t *testing.T) {
	st := util.NewStack()
	assert.Nil(t, st.Pop())

	st.Push(1)
	st.Push("two")
	assert.Equal(t, 2, st.Len())
	assert.Equal(t, "two", st.Peek())
	assert.Equal(t, "two", st.Pop())
	assert.Equal(t, 1, st.Pop())
	assert.Equal(t, 0, st.Len())
}
