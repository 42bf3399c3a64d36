package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// RouteProgress classifies a vehicle's current edge against its expected route.
type RouteProgress string

const (
	ProgressUnknown    RouteProgress = ""
	ProgressArrived    RouteProgress = "arrived"
	ProgressOnRoute    RouteProgress = "progressing"
	ProgressInJunction RouteProgress = "in-junction"
	ProgressDeviated   RouteProgress = "deviated"
)

// WatchOutcome is the route watch result for one vehicle.
// Progress is only classified for vehicles that are not stuck.
type WatchOutcome struct {
	VehicleID string
	Edge      string
	Speed     float64
	Stuck     bool
	Progress  RouteProgress
	Err       error
}

// IsStuck reports whether speed is strictly below threshold.
func IsStuck(speed, threshold float64) bool {
	return speed < threshold
}

// isInternalEdge reports whether edgeID names an edge inside a junction.
func isInternalEdge(edgeID string) bool {
	return strings.HasPrefix(edgeID, ":")
}

// ClassifyProgress compares the current edge with the expected route.
func ClassifyProgress(currentEdge string, expected []string) RouteProgress {
	switch {
	case len(expected) == 0:
		return ProgressUnknown
	case currentEdge == expected[len(expected)-1]:
		return ProgressArrived
	case lo.Contains(expected, currentEdge):
		return ProgressOnRoute
	case isInternalEdge(currentEdge):
		return ProgressInJunction
	default:
		return ProgressDeviated
	}
}

// Watch reads a vehicle's edge and speed, reports it stuck if it is crawling, and
// otherwise classifies its progress against the route the engine holds for it.
func (c WatchConfig) Watch(ctx context.Context, vehicles VehicleQuerier, vehicleID string) WatchOutcome {
	out := WatchOutcome{VehicleID: vehicleID}
	var err error
	if out.Edge, err = vehicles.VehicleRoadID(ctx, vehicleID); err != nil {
		out.Err = fmt.Errorf("road of %s: %w", vehicleID, err)
		logrus.Errorf("Error watching %s: %v", vehicleID, out.Err)
		return out
	}
	if out.Speed, err = vehicles.VehicleSpeed(ctx, vehicleID); err != nil {
		out.Err = fmt.Errorf("speed of %s: %w", vehicleID, err)
		logrus.Errorf("Error watching %s: %v", vehicleID, out.Err)
		return out
	}

	if IsStuck(out.Speed, c.StuckSpeed) {
		out.Stuck = true
		logrus.Warnf("%s seems to be stuck on %s (speed=%.2f)", vehicleID, out.Edge, out.Speed)
		return out
	}

	route, err := vehicles.VehicleRoute(ctx, vehicleID)
	if err != nil {
		out.Err = fmt.Errorf("route of %s: %w", vehicleID, err)
		logrus.Errorf("Error watching %s: %v", vehicleID, out.Err)
		return out
	}
	out.Progress = ClassifyProgress(out.Edge, route)
	switch out.Progress {
	case ProgressArrived:
		logrus.Infof("%s has reached its destination.", vehicleID)
	case ProgressOnRoute, ProgressInJunction:
		logrus.Infof("%s is following the route.", vehicleID)
	default:
		logrus.Warnf("%s is not following its expected route properly (on %s).", vehicleID, out.Edge)
	}
	return out
}
