package netsim

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dynroute/dynroute/monitor"
)

const (
	// HaltingSpeed is the speed below which a vehicle counts as halting.
	HaltingSpeed = 0.1
	// crawlSpeed keeps jammed but open edges draining.
	crawlSpeed = 0.5
	// minRoutingSpeed bounds travel-time weights on closed edges.
	minRoutingSpeed = 0.1
)

var _ monitor.Engine = (*Engine)(nil)

// ErrClosed is returned by Step after Close.
var ErrClosed = errors.New("netsim: engine closed")

type vehicle struct {
	id       string
	class    string
	route    []string
	idx      int     // index of the current edge in route
	pos      float64 // meters from the start of the current edge
	speed    float64
	maxSpeed float64
}

func (v *vehicle) edge() string {
	return v.route[v.idx]
}

type edgeStat struct {
	occupancy float64
	meanSpeed float64
	halting   int
}

// Engine moves the vehicles of a Scenario over a Network one step at a time.
// Speeds follow Greenshields' model: vmax·(1−occupancy), scaled by active incidents.
type Engine struct {
	mu sync.Mutex

	net      *Network
	scenario *Scenario

	static       *Router
	aggregated   *Router
	aggregatedAt int

	step    int
	time    float64
	pending []*vehicle // ordered by departure
	departs []float64
	active  map[string]*vehicle
	order   []string // active vehicle ids in insertion order
	stats   map[string]edgeStat
	phases  map[string]int
	arrived int
	closed  bool
}

// NewEngine validates sc against net and prepares the free-flow router.
func NewEngine(net *Network, sc *Scenario) (*Engine, error) {
	if err := sc.Validate(net); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	static, err := NewRouter(net, FreeFlowCost)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		net:      net,
		scenario: sc,
		static:   static,
		active:   make(map[string]*vehicle),
		stats:    make(map[string]edgeStat),
		phases:   make(map[string]int),
	}
	for _, spec := range sc.ExpandVehicles() {
		class := spec.Class
		if class == "" {
			class = "passenger"
		}
		e.pending = append(e.pending, &vehicle{
			id:       spec.ID,
			class:    class,
			route:    append([]string(nil), spec.Route...),
			maxSpeed: spec.MaxSpeed,
		})
		e.departs = append(e.departs, spec.Depart)
	}
	e.insertDepartures()
	e.updateStats()
	return e, nil
}

// Time returns the simulated time in seconds.
func (e *Engine) Time() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.time
}

// Arrived returns the number of vehicles that finished their route.
func (e *Engine) Arrived() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.arrived
}

// Step moves every vehicle by one step, then inserts the vehicles departing by
// the new time.
func (e *Engine) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	dt := e.scenario.StepLength
	counts := e.edgeCounts()
	speeds := make(map[string]float64, len(counts))
	for id, n := range counts {
		speeds[id] = e.edgeSpeed(e.net.Edges[id], n)
	}

	remaining := e.order[:0]
	for _, id := range e.order {
		v := e.active[id]
		speed := speeds[v.edge()]
		if v.maxSpeed > 0 {
			speed = math.Min(speed, v.maxSpeed)
		}
		v.speed = speed
		v.pos += speed * dt
		if e.advance(v) {
			delete(e.active, id)
			e.arrived++
			logrus.Debugf("[t=%.1f] %s arrived", e.time+dt, id)
			continue
		}
		remaining = append(remaining, id)
	}
	e.order = remaining

	e.step++
	e.time += dt
	e.insertDepartures()
	e.updateStats()
	return nil
}

// advance carries v over edge ends and reports whether it left its last edge.
func (e *Engine) advance(v *vehicle) bool {
	for {
		length := e.net.Edges[v.edge()].Length
		if v.pos < length {
			return false
		}
		if v.idx == len(v.route)-1 {
			return true
		}
		v.pos -= length
		v.idx++
	}
}

func (e *Engine) insertDepartures() {
	n := 0
	for n < len(e.pending) && e.departs[n] <= e.time {
		v := e.pending[n]
		e.active[v.id] = v
		e.order = append(e.order, v.id)
		n++
	}
	e.pending = e.pending[n:]
	e.departs = e.departs[n:]
}

func (e *Engine) edgeCounts() map[string]int {
	counts := make(map[string]int)
	for _, id := range e.order {
		counts[e.active[id].edge()]++
	}
	return counts
}

// incidentFactor returns the product of the factors of incidents active on edgeID.
func (e *Engine) incidentFactor(edgeID string) float64 {
	f := 1.0
	for _, inc := range e.scenario.Incidents {
		if inc.Edge == edgeID && inc.Active(e.time) {
			f *= inc.Factor
		}
	}
	return f
}

func occupancy(edge *Edge, vehicles int) float64 {
	return math.Min(float64(vehicles)/edge.Capacity(), 1)
}

// edgeSpeed is the speed of traffic on edge when it holds the given number of vehicles.
func (e *Engine) edgeSpeed(edge *Edge, vehicles int) float64 {
	f := e.incidentFactor(edge.ID)
	speed := edge.MaxSpeed * (1 - occupancy(edge, vehicles)) * f
	if f > 0 {
		speed = math.Max(speed, math.Min(crawlSpeed, edge.MaxSpeed*f))
	}
	return speed
}

func (e *Engine) updateStats() {
	stats := make(map[string]edgeStat)
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, id := range e.order {
		v := e.active[id]
		edge := v.edge()
		counts[edge]++
		sums[edge] += v.speed
		if v.speed < HaltingSpeed {
			st := stats[edge]
			st.halting++
			stats[edge] = st
		}
	}
	for edge, n := range counts {
		st := stats[edge]
		st.occupancy = occupancy(e.net.Edges[edge], n)
		st.meanSpeed = sums[edge] / float64(n)
		stats[edge] = st
	}
	e.stats = stats
}

func (e *Engine) MinExpectedVehicles(_ context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active) + len(e.pending), nil
}

func (e *Engine) VehicleIDs(_ context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...), nil
}

func (e *Engine) vehicle(id string) (*vehicle, error) {
	v, ok := e.active[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "vehicle %q", id)
	}
	return v, nil
}

func (e *Engine) VehicleRoadID(_ context.Context, vehicleID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.vehicle(vehicleID)
	if err != nil {
		return "", err
	}
	return v.edge(), nil
}

func (e *Engine) VehicleSpeed(_ context.Context, vehicleID string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.vehicle(vehicleID)
	if err != nil {
		return 0, err
	}
	return v.speed, nil
}

// VehiclePosition interpolates the vehicle's position along its edge shape.
func (e *Engine) VehiclePosition(_ context.Context, vehicleID string) (orb.Point, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.vehicle(vehicleID)
	if err != nil {
		return orb.Point{}, err
	}
	edge := e.net.Edges[v.edge()]
	return pointAlong(edge.Shape, v.pos*shapeLength(edge.Shape)/edge.Length), nil
}

func (e *Engine) VehicleClass(_ context.Context, vehicleID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.vehicle(vehicleID)
	if err != nil {
		return "", err
	}
	return v.class, nil
}

func (e *Engine) VehicleRoute(_ context.Context, vehicleID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.vehicle(vehicleID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.route...), nil
}

// SetVehicleRoute replaces the route of an active vehicle. The route must start
// on the vehicle's current edge and be connected.
func (e *Engine) SetVehicleRoute(_ context.Context, vehicleID string, edges []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.vehicle(vehicleID)
	if err != nil {
		return err
	}
	if len(edges) == 0 || edges[0] != v.edge() {
		return errors.Errorf("route for %s must start on its current edge %s", vehicleID, v.edge())
	}
	if err := e.net.ValidateRoute(edges); err != nil {
		return errors.Wrapf(err, "route for %s", vehicleID)
	}
	v.route = append([]string(nil), edges...)
	v.idx = 0
	return nil
}

func (e *Engine) edgeStat(edgeID string) (edgeStat, *Edge, error) {
	edge, err := e.net.Edge(edgeID)
	if err != nil {
		return edgeStat{}, nil, err
	}
	st, ok := e.stats[edgeID]
	if !ok {
		st.meanSpeed = edge.MaxSpeed
	}
	return st, edge, nil
}

// EdgeOccupancy returns the share of the edge's capacity in use, in [0, 1].
func (e *Engine) EdgeOccupancy(_ context.Context, edgeID string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, _, err := e.edgeStat(edgeID)
	return st.occupancy, err
}

// EdgeMeanSpeed returns the mean speed of the vehicles on the edge, or its speed
// limit when empty.
func (e *Engine) EdgeMeanSpeed(_ context.Context, edgeID string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, _, err := e.edgeStat(edgeID)
	return st.meanSpeed, err
}

func (e *Engine) EdgeHaltingNumber(_ context.Context, edgeID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, _, err := e.edgeStat(edgeID)
	return st.halting, err
}

// LaneMaxSpeed resolves lane ids of the form "<edge>_<index>".
func (e *Engine) LaneMaxSpeed(_ context.Context, laneID string) (float64, error) {
	i := strings.LastIndex(laneID, "_")
	if i < 0 {
		return 0, errors.Wrapf(ErrNotFound, "lane %q", laneID)
	}
	idx, err := strconv.Atoi(laneID[i+1:])
	if err != nil {
		return 0, errors.Wrapf(ErrNotFound, "lane %q", laneID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	edge, err := e.net.Edge(laneID[:i])
	if err != nil {
		return 0, err
	}
	if idx < 0 || idx >= edge.Lanes {
		return 0, errors.Wrapf(ErrNotFound, "lane %q", laneID)
	}
	return edge.MaxSpeed, nil
}

// FindRoute routes on free-flow times in the default mode, and on current travel
// times, refreshed every AdaptationSteps steps, in the aggregated mode.
// An unreachable target yields an empty route.
func (e *Engine) FindRoute(_ context.Context, fromEdge, toEdge string, mode monitor.RoutingMode) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var router *Router
	switch mode {
	case monitor.RoutingModeDefault:
		router = e.static
	case monitor.RoutingModeAggregated:
		r, err := e.travelTimeRouter()
		if err != nil {
			return nil, err
		}
		router = r
	default:
		return nil, errors.Errorf("unsupported routing mode %d", mode)
	}
	route, _, err := router.Route(fromEdge, toEdge)
	if err != nil {
		return nil, err
	}
	return route, nil
}

func (e *Engine) travelTimeRouter() (*Router, error) {
	if e.aggregated != nil && e.step-e.aggregatedAt < e.scenario.AdaptationSteps {
		return e.aggregated, nil
	}
	counts := e.edgeCounts()
	r, err := NewRouter(e.net, func(edge *Edge) float64 {
		return edge.Length / math.Max(e.edgeSpeed(edge, counts[edge.ID]), minRoutingSpeed)
	})
	if err != nil {
		return nil, err
	}
	e.aggregated = r
	e.aggregatedAt = e.step
	logrus.Debugf("[t=%.1f] Refreshed travel-time routing weights", e.time)
	return r, nil
}

func (e *Engine) TrafficLightIDs(_ context.Context) ([]string, error) {
	return e.net.TrafficLightIDs(), nil
}

func (e *Engine) JunctionPosition(_ context.Context, junctionID string) (orb.Point, error) {
	j, ok := e.net.Junctions[junctionID]
	if !ok {
		return orb.Point{}, errors.Wrapf(ErrNotFound, "junction %q", junctionID)
	}
	return j.Position, nil
}

func (e *Engine) SetTrafficLightPhase(_ context.Context, tlsID string, phase int) error {
	j, ok := e.net.Junctions[tlsID]
	if !ok || !j.TrafficLight {
		return errors.Wrapf(ErrNotFound, "traffic light %q", tlsID)
	}
	if phase < 0 || phase >= j.Phases {
		return errors.Errorf("traffic light %s: phase %d out of range [0, %d)", tlsID, phase, j.Phases)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phases[tlsID] = phase
	return nil
}

// TrafficLightPhase returns the phase last set on tlsID (0 until set).
func (e *Engine) TrafficLightPhase(tlsID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phases[tlsID]
}

// Close stops the engine. Queries keep answering from the last state.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
