package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)

	assert.Equal(t, 0, summary.CongestionChecks)
	assert.Equal(t, 0, summary.RerouteCount)
	assert.Empty(t, summary.CongestedEdges)
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with mixed decisions
	mt := NewMonitorTrace(TraceConfig{Level: TraceLevelDecisions})
	mt.RecordStep()
	mt.RecordCongestion(CongestionRecord{Edge: "E1", Congested: true})
	mt.RecordCongestion(CongestionRecord{Edge: "E1", Congested: true})
	mt.RecordCongestion(CongestionRecord{Edge: "E2", Error: "boom"})
	mt.RecordCongestion(CongestionRecord{Edge: "E3"})
	mt.RecordReroute(RerouteRecord{VehicleID: "emergency_1", Route: []string{"E1", "E9"}})
	mt.RecordReroute(RerouteRecord{VehicleID: "emergency_2", Error: "no route"})
	mt.RecordWatch(WatchRecord{VehicleID: "emergency_1", Stuck: true})
	mt.RecordWatch(WatchRecord{VehicleID: "emergency_1", Progress: "deviated"})
	mt.RecordWatch(WatchRecord{VehicleID: "emergency_2", Progress: "arrived"})
	mt.RecordSignal(SignalRecord{VehicleID: "emergency_1", Switched: []string{"J1", "J2"}})

	// WHEN summarized
	summary := Summarize(mt)

	// THEN counts match
	assert.Equal(t, mt.RunID, summary.RunID)
	assert.Equal(t, int64(1), summary.Steps)
	assert.Equal(t, 4, summary.CongestionChecks)
	assert.Equal(t, 2, summary.CongestedCount)
	assert.Equal(t, 1, summary.FailedChecks)
	assert.Equal(t, 1, summary.RerouteCount)
	assert.Equal(t, 1, summary.RerouteFailures)
	assert.Equal(t, 1, summary.StuckObservations)
	assert.Equal(t, 1, summary.Deviations)
	assert.Equal(t, 1, summary.Arrivals)
	assert.Equal(t, 2, summary.SignalSwitches)
	assert.Equal(t, map[string]int{"E1": 2}, summary.CongestedEdges)
}
