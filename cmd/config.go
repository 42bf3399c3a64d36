package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dynroute/dynroute/monitor"
	"github.com/dynroute/dynroute/monitor/trace"
	"github.com/dynroute/dynroute/traci"
)

const (
	engineTraCI  = "traci"
	engineMemory = "memory"
)

var validEngines = map[string]bool{engineTraCI: true, engineMemory: true}

// FileConfig is the structure of a dynroute YAML configuration file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type FileConfig struct {
	Engine     string                   `yaml:"engine"`   // "traci" or "memory"
	Sumo       SumoConfig               `yaml:"sumo"`     // traci engine only
	Scenario   string                   `yaml:"scenario"` // memory engine only
	Monitor    MonitorSection           `yaml:"monitor"`
	Congestion monitor.CongestionConfig `yaml:"congestion"`
	Watch      monitor.WatchConfig      `yaml:"watch"`
	Signals    monitor.SignalConfig     `yaml:"signals"`
	Trace      TraceSection             `yaml:"trace"`
}

// SumoConfig selects how the simulator is launched or reached.
type SumoConfig struct {
	Binary     string        `yaml:"binary"`
	Config     string        `yaml:"config"`
	Port       int           `yaml:"port"`   // 0 picks a free port
	Remote     string        `yaml:"remote"` // host:port of a running simulator; skips launching
	Args       []string      `yaml:"args,omitempty"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// MonitorSection holds the rerouting parameters.
type MonitorSection struct {
	TargetEdge  string `yaml:"target_edge"`
	Classifier  string `yaml:"classifier"`
	Category    string `yaml:"category"`
	RoutingMode int    `yaml:"routing_mode"`
	MaxSteps    int64  `yaml:"max_steps"` // 0 = until no vehicles are expected
}

// TraceSection controls decision tracing.
type TraceSection struct {
	Level string `yaml:"level"`
}

// DefaultFileConfig reproduces the built-in behavior: launch sumo-gui on
// config/simulation.sumocfg and reroute emergency vehicles toward the default target.
func DefaultFileConfig() FileConfig {
	launch := traci.DefaultLaunchConfig()
	mc := monitor.DefaultConfig()
	return FileConfig{
		Engine: engineTraCI,
		Sumo: SumoConfig{
			Binary:     launch.Binary,
			Config:     launch.ConfigFile,
			Port:       launch.Port,
			Retries:    launch.Retries,
			RetryDelay: launch.RetryDelay,
		},
		Monitor: MonitorSection{
			TargetEdge:  mc.TargetEdge,
			Classifier:  mc.Classifier,
			Category:    mc.Category,
			RoutingMode: int(mc.RoutingMode),
			MaxSteps:    mc.MaxSteps,
		},
		Congestion: mc.Congestion,
		Watch:      mc.Watch,
		Signals:    mc.Signals,
		Trace:      TraceSection{Level: string(trace.TraceLevelDecisions)},
	}
}

// loadFileConfig reads path over the defaults. An empty path yields the defaults.
// Uses strict field checking: unknown keys are errors.
func loadFileConfig(path string) (FileConfig, error) {
	cfg := DefaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// MonitorConfig converts the file sections into a monitor.Config.
func (c FileConfig) MonitorConfig() monitor.Config {
	return monitor.Config{
		TargetEdge:  c.Monitor.TargetEdge,
		Classifier:  c.Monitor.Classifier,
		Category:    c.Monitor.Category,
		RoutingMode: monitor.RoutingMode(c.Monitor.RoutingMode),
		MaxSteps:    c.Monitor.MaxSteps,
		Congestion:  c.Congestion,
		Watch:       c.Watch,
		Signals:     c.Signals,
	}
}

// LaunchConfig converts the sumo section into launch settings.
func (c FileConfig) LaunchConfig() traci.LaunchConfig {
	lc := traci.DefaultLaunchConfig()
	lc.Binary = c.Sumo.Binary
	lc.ConfigFile = c.Sumo.Config
	lc.Port = c.Sumo.Port
	lc.ExtraArgs = c.Sumo.Args
	lc.Retries = c.Sumo.Retries
	lc.RetryDelay = c.Sumo.RetryDelay
	return lc
}

// Validate checks the engine selection and every section.
func (c FileConfig) Validate() error {
	if !validEngines[c.Engine] {
		return fmt.Errorf("unknown engine %q; valid: traci, memory", c.Engine)
	}
	switch c.Engine {
	case engineTraCI:
		if c.Sumo.Remote == "" && (c.Sumo.Binary == "" || c.Sumo.Config == "") {
			return fmt.Errorf("sumo.binary and sumo.config are required to launch the simulator")
		}
		if c.Sumo.Port < 0 || c.Sumo.Port > 65535 {
			return fmt.Errorf("sumo.port must be in [0, 65535], got %d", c.Sumo.Port)
		}
		if c.Sumo.Retries < 0 {
			return fmt.Errorf("sumo.retries must be non-negative, got %d", c.Sumo.Retries)
		}
	case engineMemory:
		if c.Scenario == "" {
			return fmt.Errorf("scenario is required for the memory engine")
		}
	}
	if !trace.IsValidTraceLevel(c.Trace.Level) {
		return fmt.Errorf("unknown trace level %q; valid: none, decisions", c.Trace.Level)
	}
	if err := c.MonitorConfig().Validate(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
