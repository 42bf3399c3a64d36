package monitor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// RerouteEngine is the subset of Engine the rerouting action needs.
type RerouteEngine interface {
	Router
	SetVehicleRoute(ctx context.Context, vehicleID string, edges []string) error
}

// RerouteOutcome is the result of one rerouting attempt.
// On failure Err is set and the vehicle keeps its previous route.
type RerouteOutcome struct {
	VehicleID string
	From      string
	Target    string
	Route     []string
	Err       error
}

// OK reports whether the new route was assigned.
func (o RerouteOutcome) OK() bool {
	return o.Err == nil
}

// Reroute asks the engine for a route from currentEdge to targetEdge and assigns
// exactly that edge sequence to the vehicle.
func Reroute(ctx context.Context, engine RerouteEngine, vehicleID, currentEdge, targetEdge string, mode RoutingMode) RerouteOutcome {
	out := RerouteOutcome{VehicleID: vehicleID, From: currentEdge, Target: targetEdge}

	route, err := engine.FindRoute(ctx, currentEdge, targetEdge, mode)
	if err == nil && len(route) == 0 {
		err = fmt.Errorf("no route from %s to %s", currentEdge, targetEdge)
	}
	if err != nil {
		out.Err = fmt.Errorf("finding route: %w", err)
		logrus.Errorf("Error rerouting %s: %v", vehicleID, out.Err)
		return out
	}
	if err := engine.SetVehicleRoute(ctx, vehicleID, route); err != nil {
		out.Err = fmt.Errorf("setting route: %w", err)
		logrus.Errorf("Error rerouting %s: %v", vehicleID, out.Err)
		return out
	}
	out.Route = route
	logrus.Infof("New optimized route for %s: %v", vehicleID, route)
	return out
}
