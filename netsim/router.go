package netsim

import (
	"github.com/LdDl/ch"
	"github.com/pkg/errors"
)

// EdgeCost is the cost of driving onto an edge, in seconds.
type EdgeCost func(e *Edge) float64

// FreeFlowCost weighs edges by their travel time at the speed limit.
func FreeFlowCost(e *Edge) float64 {
	return e.FreeFlowTime()
}

// Router answers edge-to-edge shortest path queries with contraction
// hierarchies over the edge-expanded graph: every edge is a vertex and every
// turn from an edge onto a successor is an arc weighted by the successor's cost.
type Router struct {
	ids   []string
	index map[string]int64
	graph ch.Graph
}

// NewRouter contracts the graph of net under cost.
func NewRouter(net *Network, cost EdgeCost) (*Router, error) {
	r := &Router{
		ids:   net.EdgeIDs(),
		index: make(map[string]int64),
	}
	for i, id := range r.ids {
		r.index[id] = int64(i)
		if err := r.graph.CreateVertex(int64(i)); err != nil {
			return nil, errors.Wrapf(err, "creating vertex for edge %s", id)
		}
	}
	for _, id := range r.ids {
		for _, next := range net.Successors(id) {
			if err := r.graph.AddEdge(r.index[id], r.index[next], cost(net.Edges[next])); err != nil {
				return nil, errors.Wrapf(err, "adding turn %s -> %s", id, next)
			}
		}
	}
	r.graph.PrepareContractionHierarchies()
	return r, nil
}

// Route returns the edges from fromEdge to toEdge, both included, and the cost of
// the edges after the first. An unreachable target yields an empty route and no error.
func (r *Router) Route(fromEdge, toEdge string) ([]string, float64, error) {
	src, ok := r.index[fromEdge]
	if !ok {
		return nil, 0, errors.Wrapf(ErrNotFound, "edge %q", fromEdge)
	}
	dst, ok := r.index[toEdge]
	if !ok {
		return nil, 0, errors.Wrapf(ErrNotFound, "edge %q", toEdge)
	}
	if src == dst {
		return []string{fromEdge}, 0, nil
	}
	cost, path := r.graph.ShortestPath(src, dst)
	if cost < 0 || len(path) == 0 {
		return nil, 0, nil
	}
	route := make([]string, 0, len(path))
	for _, v := range path {
		route = append(route, r.ids[v])
	}
	return route, cost, nil
}
