package monitor

import (
	"fmt"
	"math"
)

// DefaultTargetEdge is the destination edge flagged vehicles are rerouted toward
// when no target is configured.
const DefaultTargetEdge = "-269696412#0"

// CongestionConfig groups the congestion predicate thresholds.
type CongestionConfig struct {
	HighwaySpeed     float64 `yaml:"highway_speed"`     // max speed above which an edge counts as highway (m/s)
	HighwayOccupancy float64 `yaml:"highway_occupancy"` // occupancy threshold on highways
	CityOccupancy    float64 `yaml:"city_occupancy"`    // occupancy threshold on city roads
	SlowSpeedRatio   float64 `yaml:"slow_speed_ratio"`  // mean speed below ratio × max speed is congested
	MaxHalting       int     `yaml:"max_halting"`       // halting vehicles above this count is congested
}

// DefaultCongestionConfig returns the thresholds used when none are configured.
func DefaultCongestionConfig() CongestionConfig {
	return CongestionConfig{
		HighwaySpeed:     15,
		HighwayOccupancy: 0.7,
		CityOccupancy:    0.5,
		SlowSpeedRatio:   0.2,
		MaxHalting:       5,
	}
}

// WatchConfig groups route watch parameters.
type WatchConfig struct {
	StuckSpeed float64 `yaml:"stuck_speed"` // speeds strictly below this are reported as stuck (m/s)
}

// DefaultWatchConfig returns the route watch defaults.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{StuckSpeed: 1}
}

// SignalConfig groups traffic light preemption parameters.
// Preemption is off unless Enabled is set.
type SignalConfig struct {
	Enabled bool    `yaml:"enabled"`
	Radius  float64 `yaml:"radius"` // junctions closer than this to the vehicle are switched
	Phase   int     `yaml:"phase"`  // phase index forced on matching traffic lights
}

// DefaultSignalConfig returns the preemption defaults (disabled).
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{Enabled: false, Radius: 50, Phase: 0}
}

// Config is the complete monitor configuration.
type Config struct {
	TargetEdge  string
	Classifier  string // "vehicle-class" (default) or "id-marker"
	Category    string // vehicle class or id marker selecting flagged vehicles
	RoutingMode RoutingMode
	MaxSteps    int64 // 0 = run until the engine expects no more vehicles
	Congestion  CongestionConfig
	Watch       WatchConfig
	Signals     SignalConfig
}

// DefaultConfig returns a Config with every section at its default.
func DefaultConfig() Config {
	return Config{
		TargetEdge:  DefaultTargetEdge,
		Classifier:  ClassifierVehicleClass,
		Category:    "emergency",
		RoutingMode: RoutingModeAggregated,
		Congestion:  DefaultCongestionConfig(),
		Watch:       DefaultWatchConfig(),
		Signals:     DefaultSignalConfig(),
	}
}

// Validate checks names and parameter ranges.
func (c Config) Validate() error {
	if c.TargetEdge == "" {
		return fmt.Errorf("target edge must be set")
	}
	if !IsValidClassifier(c.Classifier) {
		return fmt.Errorf("unknown classifier %q", c.Classifier)
	}
	if c.Category == "" {
		return fmt.Errorf("category must be set")
	}
	if c.RoutingMode < 0 {
		return fmt.Errorf("routing mode must be non-negative, got %d", c.RoutingMode)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max steps must be non-negative, got %d", c.MaxSteps)
	}
	cc := c.Congestion
	for name, v := range map[string]float64{
		"highway_occupancy": cc.HighwayOccupancy,
		"city_occupancy":    cc.CityOccupancy,
		"slow_speed_ratio":  cc.SlowSpeedRatio,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
	}
	if cc.HighwaySpeed < 0 {
		return fmt.Errorf("highway_speed must be non-negative, got %v", cc.HighwaySpeed)
	}
	if cc.MaxHalting < 0 {
		return fmt.Errorf("max_halting must be non-negative, got %d", cc.MaxHalting)
	}
	if c.Watch.StuckSpeed < 0 {
		return fmt.Errorf("stuck_speed must be non-negative, got %v", c.Watch.StuckSpeed)
	}
	if c.Signals.Radius < 0 {
		return fmt.Errorf("signal radius must be non-negative, got %v", c.Signals.Radius)
	}
	if c.Signals.Phase < 0 {
		return fmt.Errorf("signal phase must be non-negative, got %d", c.Signals.Phase)
	}
	return nil
}
