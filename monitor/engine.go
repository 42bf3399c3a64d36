package monitor

import (
	"context"

	"github.com/paulmach/orb"
)

// RoutingMode selects the path-cost model used by the engine's route finder.
type RoutingMode int

const (
	// RoutingModeDefault routes on the engine's default (static or assigned) efforts.
	RoutingModeDefault RoutingMode = 0
	// RoutingModeAggregated routes on travel times aggregated over recent steps.
	RoutingModeAggregated RoutingMode = 1
)

// StepAdvancer advances the simulation clock.
type StepAdvancer interface {
	Step(ctx context.Context) error
	MinExpectedVehicles(ctx context.Context) (int, error)
}

// VehicleQuerier reads and updates per-vehicle state.
type VehicleQuerier interface {
	VehicleIDs(ctx context.Context) ([]string, error)
	VehicleRoadID(ctx context.Context, vehicleID string) (string, error)
	VehicleSpeed(ctx context.Context, vehicleID string) (float64, error)
	VehiclePosition(ctx context.Context, vehicleID string) (orb.Point, error)
	VehicleClass(ctx context.Context, vehicleID string) (string, error)
	VehicleRoute(ctx context.Context, vehicleID string) ([]string, error)
	SetVehicleRoute(ctx context.Context, vehicleID string, edges []string) error
}

// EdgeQuerier reads last-step edge and lane measurements.
type EdgeQuerier interface {
	EdgeOccupancy(ctx context.Context, edgeID string) (float64, error)
	EdgeMeanSpeed(ctx context.Context, edgeID string) (float64, error)
	EdgeHaltingNumber(ctx context.Context, edgeID string) (int, error)
	LaneMaxSpeed(ctx context.Context, laneID string) (float64, error)
}

// Router computes routes between edges.
type Router interface {
	FindRoute(ctx context.Context, fromEdge, toEdge string, mode RoutingMode) ([]string, error)
}

// SignalController reads traffic light locations and forces phases.
type SignalController interface {
	TrafficLightIDs(ctx context.Context) ([]string, error)
	JunctionPosition(ctx context.Context, junctionID string) (orb.Point, error)
	SetTrafficLightPhase(ctx context.Context, tlsID string, phase int) error
}

// Engine is the full contract of a simulation backend driven by the Monitor.
// The Monitor owns the Engine after construction and closes it when Run returns.
type Engine interface {
	StepAdvancer
	VehicleQuerier
	EdgeQuerier
	Router
	SignalController
	Close() error
}

// FirstLaneID returns the id of lane 0 of the given edge.
func FirstLaneID(edgeID string) string {
	return edgeID + "_0"
}
