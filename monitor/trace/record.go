// Package trace provides decision-trace recording for the congestion monitor.
// This package has no dependencies on monitor/; it stores pure data types.
package trace

// CongestionRecord captures a single congestion predicate evaluation.
type CongestionRecord struct {
	Step      int64
	VehicleID string
	Edge      string
	Occupancy float64
	MeanSpeed float64
	MaxSpeed  float64
	Halting   int
	Threshold float64
	Congested bool
	Reasons   []string
	Error     string // non-empty when the edge could not be measured
}

// RerouteRecord captures a single rerouting attempt.
type RerouteRecord struct {
	Step      int64
	VehicleID string
	From      string
	Target    string
	Route     []string // assigned route (nil on failure)
	Error     string
}

// WatchRecord captures a route watch observation.
type WatchRecord struct {
	Step      int64
	VehicleID string
	Edge      string
	Speed     float64
	Stuck     bool
	Progress  string
	Error     string
}

// SignalRecord captures a traffic light preemption pass for one vehicle.
type SignalRecord struct {
	Step      int64
	VehicleID string
	Switched  []string
	Error     string
}
