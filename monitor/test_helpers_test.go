package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

var errFake = errors.New("fake engine failure")

type fakeVehicle struct {
	edge  string
	speed float64
	pos   orb.Point
	class string
	route []string
}

type fakeEdge struct {
	occupancy float64
	meanSpeed float64
	halting   int
	maxSpeed  float64
}

type findRouteCall struct {
	from, to string
	mode     RoutingMode
}

// fakeEngine is an in-memory Engine whose state is set directly by tests.
// failOn holds method names (optionally "Method:object") that return errFake.
type fakeEngine struct {
	vehicles    map[string]*fakeVehicle
	order       []string
	edges       map[string]*fakeEdge
	routes      map[string][]string // "from->to" → route
	lights      map[string]orb.Point
	phases      map[string]int
	failOn      map[string]bool
	expected    []int // MinExpectedVehicles answers, one per call; last repeats
	steps       int
	closed      int
	findCalls   []findRouteCall
	setRouteFor map[string][]string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		vehicles:    make(map[string]*fakeVehicle),
		edges:       make(map[string]*fakeEdge),
		routes:      make(map[string][]string),
		lights:      make(map[string]orb.Point),
		phases:      make(map[string]int),
		failOn:      make(map[string]bool),
		setRouteFor: make(map[string][]string),
	}
}

func (f *fakeEngine) addVehicle(id string, v *fakeVehicle) {
	f.vehicles[id] = v
	f.order = append(f.order, id)
}

func (f *fakeEngine) fail(method, object string) error {
	if f.failOn[method] || f.failOn[method+":"+object] {
		return fmt.Errorf("%s(%s): %w", method, object, errFake)
	}
	return nil
}

func (f *fakeEngine) vehicle(method, id string) (*fakeVehicle, error) {
	if err := f.fail(method, id); err != nil {
		return nil, err
	}
	v, ok := f.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("unknown vehicle %q", id)
	}
	return v, nil
}

func (f *fakeEngine) edge(method, id string) (*fakeEdge, error) {
	if err := f.fail(method, id); err != nil {
		return nil, err
	}
	e, ok := f.edges[id]
	if !ok {
		return nil, fmt.Errorf("unknown edge %q", id)
	}
	return e, nil
}

func (f *fakeEngine) Step(_ context.Context) error {
	if err := f.fail("Step", ""); err != nil {
		return err
	}
	f.steps++
	return nil
}

func (f *fakeEngine) MinExpectedVehicles(_ context.Context) (int, error) {
	if err := f.fail("MinExpectedVehicles", ""); err != nil {
		return 0, err
	}
	if len(f.expected) == 0 {
		return 0, nil
	}
	n := f.expected[0]
	if len(f.expected) > 1 {
		f.expected = f.expected[1:]
	}
	return n, nil
}

func (f *fakeEngine) VehicleIDs(_ context.Context) ([]string, error) {
	if err := f.fail("VehicleIDs", ""); err != nil {
		return nil, err
	}
	return append([]string(nil), f.order...), nil
}

func (f *fakeEngine) VehicleRoadID(_ context.Context, id string) (string, error) {
	v, err := f.vehicle("VehicleRoadID", id)
	if err != nil {
		return "", err
	}
	return v.edge, nil
}

func (f *fakeEngine) VehicleSpeed(_ context.Context, id string) (float64, error) {
	v, err := f.vehicle("VehicleSpeed", id)
	if err != nil {
		return 0, err
	}
	return v.speed, nil
}

func (f *fakeEngine) VehiclePosition(_ context.Context, id string) (orb.Point, error) {
	v, err := f.vehicle("VehiclePosition", id)
	if err != nil {
		return orb.Point{}, err
	}
	return v.pos, nil
}

func (f *fakeEngine) VehicleClass(_ context.Context, id string) (string, error) {
	v, err := f.vehicle("VehicleClass", id)
	if err != nil {
		return "", err
	}
	return v.class, nil
}

func (f *fakeEngine) VehicleRoute(_ context.Context, id string) ([]string, error) {
	v, err := f.vehicle("VehicleRoute", id)
	if err != nil {
		return nil, err
	}
	return v.route, nil
}

func (f *fakeEngine) SetVehicleRoute(_ context.Context, id string, edges []string) error {
	v, err := f.vehicle("SetVehicleRoute", id)
	if err != nil {
		return err
	}
	v.route = append([]string(nil), edges...)
	f.setRouteFor[id] = v.route
	return nil
}

func (f *fakeEngine) EdgeOccupancy(_ context.Context, id string) (float64, error) {
	e, err := f.edge("EdgeOccupancy", id)
	if err != nil {
		return 0, err
	}
	return e.occupancy, nil
}

func (f *fakeEngine) EdgeMeanSpeed(_ context.Context, id string) (float64, error) {
	e, err := f.edge("EdgeMeanSpeed", id)
	if err != nil {
		return 0, err
	}
	return e.meanSpeed, nil
}

func (f *fakeEngine) EdgeHaltingNumber(_ context.Context, id string) (int, error) {
	e, err := f.edge("EdgeHaltingNumber", id)
	if err != nil {
		return 0, err
	}
	return e.halting, nil
}

func (f *fakeEngine) LaneMaxSpeed(_ context.Context, laneID string) (float64, error) {
	if err := f.fail("LaneMaxSpeed", laneID); err != nil {
		return 0, err
	}
	for id, e := range f.edges {
		if FirstLaneID(id) == laneID {
			return e.maxSpeed, nil
		}
	}
	return 0, fmt.Errorf("unknown lane %q", laneID)
}

func (f *fakeEngine) FindRoute(_ context.Context, from, to string, mode RoutingMode) ([]string, error) {
	f.findCalls = append(f.findCalls, findRouteCall{from: from, to: to, mode: mode})
	if err := f.fail("FindRoute", from); err != nil {
		return nil, err
	}
	return f.routes[from+"->"+to], nil
}

func (f *fakeEngine) TrafficLightIDs(_ context.Context) ([]string, error) {
	if err := f.fail("TrafficLightIDs", ""); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(f.lights))
	for id := range f.lights {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeEngine) JunctionPosition(_ context.Context, id string) (orb.Point, error) {
	if err := f.fail("JunctionPosition", id); err != nil {
		return orb.Point{}, err
	}
	p, ok := f.lights[id]
	if !ok {
		return orb.Point{}, fmt.Errorf("unknown junction %q", id)
	}
	return p, nil
}

func (f *fakeEngine) SetTrafficLightPhase(_ context.Context, id string, phase int) error {
	if err := f.fail("SetTrafficLightPhase", id); err != nil {
		return err
	}
	f.phases[id] = phase
	return nil
}

func (f *fakeEngine) Close() error {
	f.closed++
	return f.fail("Close", "")
}
