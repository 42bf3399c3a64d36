package monitor

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/sirupsen/logrus"
)

// SignalEngine is the subset of Engine signal preemption needs.
type SignalEngine interface {
	SignalController
	VehiclePosition(ctx context.Context, vehicleID string) (orb.Point, error)
}

// SignalOutcome lists the traffic lights switched for one vehicle.
type SignalOutcome struct {
	VehicleID string
	Switched  []string
	Err       error
}

// PreemptSignals forces the configured phase on every traffic light whose junction
// lies closer than Radius to the vehicle. It stops at the first failing call.
func (c SignalConfig) PreemptSignals(ctx context.Context, engine SignalEngine, vehicleID string) SignalOutcome {
	out := SignalOutcome{VehicleID: vehicleID}
	fail := func(err error) SignalOutcome {
		out.Err = err
		logrus.Errorf("Error adjusting traffic lights for %s: %v", vehicleID, err)
		return out
	}

	tlsIDs, err := engine.TrafficLightIDs(ctx)
	if err != nil {
		return fail(fmt.Errorf("listing traffic lights: %w", err))
	}
	pos, err := engine.VehiclePosition(ctx, vehicleID)
	if err != nil {
		return fail(fmt.Errorf("position of %s: %w", vehicleID, err))
	}
	for _, id := range tlsIDs {
		jpos, err := engine.JunctionPosition(ctx, id)
		if err != nil {
			return fail(fmt.Errorf("position of junction %s: %w", id, err))
		}
		if planar.Distance(pos, jpos) >= c.Radius {
			continue
		}
		if err := engine.SetTrafficLightPhase(ctx, id, c.Phase); err != nil {
			return fail(fmt.Errorf("setting phase of %s: %w", id, err))
		}
		out.Switched = append(out.Switched, id)
		logrus.Infof("Traffic light at %s set to phase %d for %s", id, c.Phase, vehicleID)
	}
	return out
}
