package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Congestion reasons reported in CongestionVerdict.Reasons.
const (
	ReasonOccupancy = "occupancy"
	ReasonSlow      = "slow"
	ReasonQueue     = "queue"
)

// EdgeSnapshot is the last-step measurement of one edge.
type EdgeSnapshot struct {
	EdgeID        string
	Occupancy     float64
	MeanSpeed     float64
	HaltingNumber int
	MaxSpeed      float64 // max speed of the edge's first lane
}

// CongestionVerdict is the outcome of evaluating the congestion predicate on one edge.
// When Err is set the edge could not be measured and Congested is always false.
type CongestionVerdict struct {
	Snapshot  EdgeSnapshot
	Threshold float64
	Congested bool
	Reasons   []string
	Err       error
}

// Failed reports whether the measurement failed.
func (v CongestionVerdict) Failed() bool {
	return v.Err != nil
}

// OccupancyThreshold returns the occupancy threshold for an edge with the given max speed:
// highway threshold above HighwaySpeed, city threshold otherwise.
func (c CongestionConfig) OccupancyThreshold(maxSpeed float64) float64 {
	if maxSpeed > c.HighwaySpeed {
		return c.HighwayOccupancy
	}
	return c.CityOccupancy
}

// Judge applies the congestion predicate to a snapshot. The edge is congested if any of
// occupancy above threshold, mean speed below SlowSpeedRatio × max speed, or more than
// MaxHalting halting vehicles holds.
func (c CongestionConfig) Judge(s EdgeSnapshot) CongestionVerdict {
	v := CongestionVerdict{
		Snapshot:  s,
		Threshold: c.OccupancyThreshold(s.MaxSpeed),
	}
	if s.Occupancy > v.Threshold {
		v.Reasons = append(v.Reasons, ReasonOccupancy)
	}
	if s.MeanSpeed < s.MaxSpeed*c.SlowSpeedRatio {
		v.Reasons = append(v.Reasons, ReasonSlow)
	}
	if s.HaltingNumber > c.MaxHalting {
		v.Reasons = append(v.Reasons, ReasonQueue)
	}
	v.Congested = len(v.Reasons) > 0
	return v
}

// ReadEdge queries the engine for the measurements the predicate needs.
func ReadEdge(ctx context.Context, edges EdgeQuerier, edgeID string) (EdgeSnapshot, error) {
	s := EdgeSnapshot{EdgeID: edgeID}
	var err error
	if s.Occupancy, err = edges.EdgeOccupancy(ctx, edgeID); err != nil {
		return s, fmt.Errorf("occupancy of %s: %w", edgeID, err)
	}
	if s.MeanSpeed, err = edges.EdgeMeanSpeed(ctx, edgeID); err != nil {
		return s, fmt.Errorf("mean speed of %s: %w", edgeID, err)
	}
	if s.HaltingNumber, err = edges.EdgeHaltingNumber(ctx, edgeID); err != nil {
		return s, fmt.Errorf("halting number of %s: %w", edgeID, err)
	}
	lane := FirstLaneID(edgeID)
	if s.MaxSpeed, err = edges.LaneMaxSpeed(ctx, lane); err != nil {
		return s, fmt.Errorf("max speed of %s: %w", lane, err)
	}
	return s, nil
}

// Evaluate measures edgeID and judges it. Measurement failures are logged and
// produce a non-congested verdict carrying the error.
func (c CongestionConfig) Evaluate(ctx context.Context, edges EdgeQuerier, edgeID string) CongestionVerdict {
	s, err := ReadEdge(ctx, edges, edgeID)
	if err != nil {
		logrus.Errorf("Error checking traffic condition for edge %s: %v", edgeID, err)
		return CongestionVerdict{Snapshot: s, Err: err}
	}
	v := c.Judge(s)
	logrus.Infof("Edge %s: Occupancy=%.3f, Speed=%.2f, Queue=%d, MaxSpeed=%.2f",
		edgeID, s.Occupancy, s.MeanSpeed, s.HaltingNumber, s.MaxSpeed)
	if v.Congested {
		logrus.Debugf("Edge %s congested (threshold=%.2f, reasons=%s)",
			edgeID, v.Threshold, strings.Join(v.Reasons, ","))
	}
	return v
}
