package trace

import "github.com/google/uuid"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures congestion checks, reroutes, watch and signal decisions.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// MonitorTrace collects decision records during a monitored run.
type MonitorTrace struct {
	RunID      string
	Config     TraceConfig
	Steps      int64
	Congestion []CongestionRecord
	Reroutes   []RerouteRecord
	Watches    []WatchRecord
	Signals    []SignalRecord
}

// NewMonitorTrace creates a MonitorTrace ready for recording, tagged with a fresh run id.
func NewMonitorTrace(config TraceConfig) *MonitorTrace {
	return &MonitorTrace{
		RunID:      uuid.NewString(),
		Config:     config,
		Congestion: make([]CongestionRecord, 0),
		Reroutes:   make([]RerouteRecord, 0),
		Watches:    make([]WatchRecord, 0),
		Signals:    make([]SignalRecord, 0),
	}
}

// Enabled reports whether records should be kept. Safe on a nil trace.
func (mt *MonitorTrace) Enabled() bool {
	return mt != nil && mt.Config.Level == TraceLevelDecisions
}

// RecordStep counts a completed simulation step. Steps are counted at every level.
func (mt *MonitorTrace) RecordStep() {
	if mt != nil {
		mt.Steps++
	}
}

// RecordCongestion appends a congestion record.
func (mt *MonitorTrace) RecordCongestion(record CongestionRecord) {
	if mt.Enabled() {
		mt.Congestion = append(mt.Congestion, record)
	}
}

// RecordReroute appends a reroute record.
func (mt *MonitorTrace) RecordReroute(record RerouteRecord) {
	if mt.Enabled() {
		mt.Reroutes = append(mt.Reroutes, record)
	}
}

// RecordWatch appends a watch record.
func (mt *MonitorTrace) RecordWatch(record WatchRecord) {
	if mt.Enabled() {
		mt.Watches = append(mt.Watches, record)
	}
}

// RecordSignal appends a signal record.
func (mt *MonitorTrace) RecordSignal(record SignalRecord) {
	if mt.Enabled() {
		mt.Signals = append(mt.Signals, record)
	}
}
