package netsim

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultAdaptationSteps is how often travel-time routing weights are refreshed.
const DefaultAdaptationSteps = 10

// Scenario is the traffic demand and the disruptions of an offline run.
// Loaded from YAML via LoadScenario(path).
type Scenario struct {
	Network         string         `yaml:"network"`                     // network file, relative to the scenario file
	StepLength      float64        `yaml:"step_length,omitempty"`       // seconds per step (default 1)
	AdaptationSteps int            `yaml:"adaptation_steps,omitempty"`  // refresh interval of travel-time weights
	Vehicles        []VehicleSpec  `yaml:"vehicles"`
	Flows           []FlowSpec     `yaml:"flows,omitempty"`
	Incidents       []IncidentSpec `yaml:"incidents,omitempty"`
}

// VehicleSpec is one scripted vehicle.
type VehicleSpec struct {
	ID       string   `yaml:"id"`
	Class    string   `yaml:"class,omitempty"` // vehicle class, "passenger" when empty
	Depart   float64  `yaml:"depart"`          // seconds
	Route    []string `yaml:"route"`
	MaxSpeed float64  `yaml:"max_speed,omitempty"` // m/s, 0 = follow the road
}

// FlowSpec inserts Count identical vehicles every Period seconds from Begin.
// Vehicle ids are "<id>.<n>".
type FlowSpec struct {
	ID     string   `yaml:"id"`
	Class  string   `yaml:"class,omitempty"`
	Begin  float64  `yaml:"begin"`
	Period float64  `yaml:"period"`
	Count  int      `yaml:"count"`
	Route  []string `yaml:"route"`
}

// IncidentSpec scales the speed on an edge by Factor between Begin and End
// (seconds). Factor 0 closes the edge; End 0 means the incident never clears.
type IncidentSpec struct {
	Edge   string  `yaml:"edge"`
	Begin  float64 `yaml:"begin"`
	End    float64 `yaml:"end,omitempty"`
	Factor float64 `yaml:"factor"`
}

// Active reports whether the incident applies at time t.
func (inc IncidentSpec) Active(t float64) bool {
	return t >= inc.Begin && (inc.End <= 0 || t < inc.End)
}

// LoadScenario reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys are rejected. A relative network path
// is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading scenario")
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if sc.Network != "" && !filepath.IsAbs(sc.Network) {
		sc.Network = filepath.Join(filepath.Dir(path), sc.Network)
	}
	return sc, nil
}

// ParseScenario decodes a scenario document and fills defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, errors.Wrap(err, "parsing scenario")
	}
	if sc.StepLength == 0 {
		sc.StepLength = 1
	}
	if sc.AdaptationSteps == 0 {
		sc.AdaptationSteps = DefaultAdaptationSteps
	}
	return &sc, nil
}

// Validate checks the scenario against net.
func (s *Scenario) Validate(net *Network) error {
	if !(s.StepLength > 0) || math.IsInf(s.StepLength, 0) {
		return errors.Errorf("step_length must be a positive finite number, got %f", s.StepLength)
	}
	if s.AdaptationSteps < 0 {
		return errors.Errorf("adaptation_steps must be non-negative, got %d", s.AdaptationSteps)
	}
	seen := make(map[string]bool)
	for _, v := range s.ExpandVehicles() {
		if v.ID == "" {
			return errors.New("vehicle without id")
		}
		if seen[v.ID] {
			return errors.Errorf("duplicate vehicle id %q", v.ID)
		}
		seen[v.ID] = true
		if v.Depart < 0 {
			return errors.Errorf("vehicle %s: depart must be non-negative, got %f", v.ID, v.Depart)
		}
		if v.MaxSpeed < 0 {
			return errors.Errorf("vehicle %s: max_speed must be non-negative, got %f", v.ID, v.MaxSpeed)
		}
		if err := net.ValidateRoute(v.Route); err != nil {
			return errors.Wrapf(err, "vehicle %s", v.ID)
		}
	}
	for i, f := range s.Flows {
		if f.Count <= 0 {
			return errors.Errorf("flow[%d]: count must be positive, got %d", i, f.Count)
		}
		if f.Count > 1 && f.Period <= 0 {
			return errors.Errorf("flow[%d]: period must be positive, got %f", i, f.Period)
		}
	}
	for i, inc := range s.Incidents {
		prefix := fmt.Sprintf("incident[%d]", i)
		if _, err := net.Edge(inc.Edge); err != nil {
			return errors.Wrap(err, prefix)
		}
		if inc.Factor < 0 || inc.Factor > 1 {
			return errors.Errorf("%s: factor must be in [0, 1], got %f", prefix, inc.Factor)
		}
		if inc.End > 0 && inc.End <= inc.Begin {
			return errors.Errorf("%s: end %f must be after begin %f", prefix, inc.End, inc.Begin)
		}
	}
	return nil
}

// ExpandVehicles returns the scripted vehicles plus the vehicles of every flow,
// ordered by departure time.
func (s *Scenario) ExpandVehicles() []VehicleSpec {
	out := append([]VehicleSpec(nil), s.Vehicles...)
	for _, f := range s.Flows {
		for n := 0; n < f.Count; n++ {
			out = append(out, VehicleSpec{
				ID:     fmt.Sprintf("%s.%d", f.ID, n),
				Class:  f.Class,
				Depart: f.Begin + float64(n)*f.Period,
				Route:  f.Route,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Depart < out[j].Depart })
	return out
}
