// Package netsim is a small deterministic traffic simulator that implements
// monitor.Engine. It loads a road network from GeoJSON or OSM, moves scripted
// vehicles along their routes with a Greenshields speed model and answers
// routing queries with contraction hierarchies.
package netsim

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

const (
	// DefaultMaxSpeed is used for edges without a speed limit (50 km/h).
	DefaultMaxSpeed = 13.89
	// VehicleLength is the space one vehicle occupies on a lane, gap included.
	VehicleLength = 7.5
)

// ErrNotFound is wrapped by every lookup of an unknown network or vehicle object.
var ErrNotFound = errors.New("not found")

// Junction is a network node.
type Junction struct {
	ID           string
	Position     orb.Point
	TrafficLight bool
	Phases       int // number of signal phases, traffic lights only
}

// Edge is a directed road between two junctions.
type Edge struct {
	ID       string
	From     string
	To       string
	Length   float64 // meters
	MaxSpeed float64 // m/s
	Lanes    int
	Shape    orb.LineString
}

// FreeFlowTime is the time needed to traverse the edge at its speed limit.
func (e *Edge) FreeFlowTime() float64 {
	return e.Length / e.MaxSpeed
}

// Capacity is the number of vehicles the edge holds bumper to bumper.
func (e *Edge) Capacity() float64 {
	return e.Length * float64(e.Lanes) / VehicleLength
}

// Network is a directed road graph.
type Network struct {
	Junctions map[string]*Junction
	Edges     map[string]*Edge

	outgoing map[string][]string // junction id -> outgoing edge ids
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		Junctions: make(map[string]*Junction),
		Edges:     make(map[string]*Edge),
		outgoing:  make(map[string][]string),
	}
}

// AddJunction adds j. Traffic lights default to two phases.
func (n *Network) AddJunction(j Junction) error {
	if j.ID == "" {
		return errors.New("junction without id")
	}
	if _, ok := n.Junctions[j.ID]; ok {
		return errors.Errorf("duplicate junction %q", j.ID)
	}
	if j.TrafficLight && j.Phases <= 0 {
		j.Phases = 2
	}
	n.Junctions[j.ID] = &j
	return nil
}

// AddEdge adds e between two known junctions. Missing shape, length, speed and
// lane count are derived from the junctions and defaults.
func (n *Network) AddEdge(e Edge) error {
	if e.ID == "" {
		return errors.New("edge without id")
	}
	if _, ok := n.Edges[e.ID]; ok {
		return errors.Errorf("duplicate edge %q", e.ID)
	}
	from, ok := n.Junctions[e.From]
	if !ok {
		return errors.Wrapf(ErrNotFound, "edge %q: junction %q", e.ID, e.From)
	}
	to, ok := n.Junctions[e.To]
	if !ok {
		return errors.Wrapf(ErrNotFound, "edge %q: junction %q", e.ID, e.To)
	}
	if len(e.Shape) < 2 {
		e.Shape = orb.LineString{from.Position, to.Position}
	}
	if e.Length <= 0 {
		e.Length = shapeLength(e.Shape)
	}
	if e.Length <= 0 {
		return errors.Errorf("edge %q has zero length", e.ID)
	}
	if e.MaxSpeed <= 0 {
		e.MaxSpeed = DefaultMaxSpeed
	}
	if e.Lanes <= 0 {
		e.Lanes = 1
	}
	n.Edges[e.ID] = &e
	n.outgoing[e.From] = append(n.outgoing[e.From], e.ID)
	return nil
}

// Edge returns the edge with the given id.
func (n *Network) Edge(id string) (*Edge, error) {
	e, ok := n.Edges[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "edge %q", id)
	}
	return e, nil
}

// Successors returns the edges leaving the end junction of edgeID, sorted.
func (n *Network) Successors(edgeID string) []string {
	e, ok := n.Edges[edgeID]
	if !ok {
		return nil
	}
	out := append([]string(nil), n.outgoing[e.To]...)
	sort.Strings(out)
	return out
}

// EdgeIDs returns all edge ids, sorted.
func (n *Network) EdgeIDs() []string {
	ids := make([]string, 0, len(n.Edges))
	for id := range n.Edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TrafficLightIDs returns the ids of signalized junctions, sorted.
func (n *Network) TrafficLightIDs() []string {
	var ids []string
	for id, j := range n.Junctions {
		if j.TrafficLight {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ValidateRoute checks that every edge exists and each edge ends where the next starts.
func (n *Network) ValidateRoute(route []string) error {
	if len(route) == 0 {
		return errors.New("empty route")
	}
	for i, id := range route {
		e, err := n.Edge(id)
		if err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		prev := n.Edges[route[i-1]]
		if prev.To != e.From {
			return errors.Errorf("route is not connected: %s does not lead to %s", prev.ID, e.ID)
		}
	}
	return nil
}

func shapeLength(ls orb.LineString) float64 {
	var total float64
	for i := 1; i < len(ls); i++ {
		total += planar.Distance(ls[i-1], ls[i])
	}
	return total
}

// pointAlong returns the point at distance d from the start of ls.
func pointAlong(ls orb.LineString, d float64) orb.Point {
	if len(ls) == 0 {
		return orb.Point{}
	}
	for i := 1; i < len(ls); i++ {
		seg := planar.Distance(ls[i-1], ls[i])
		if d <= seg && seg > 0 {
			f := d / seg
			return orb.Point{
				ls[i-1][0] + f*(ls[i][0]-ls[i-1][0]),
				ls[i-1][1] + f*(ls[i][1]-ls[i-1][1]),
			}
		}
		d -= seg
	}
	return ls[len(ls)-1]
}
