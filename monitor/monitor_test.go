package monitor

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynroute/dynroute/monitor/trace"
)

func newTestMonitor(eng *fakeEngine, mutate func(*Config)) *Monitor {
	cfg := DefaultConfig()
	cfg.TargetEdge = "T"
	if mutate != nil {
		mutate(&cfg)
	}
	return NewMonitor(eng, cfg, trace.NewMonitorTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions}))
}

func TestNewMonitor_InvalidConfig_Panics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetEdge = ""
	assert.Panics(t, func() { NewMonitor(newFakeEngine(), cfg, nil) })
}

func TestStep_CongestedEdge_ReroutesTowardTarget(t *testing.T) {
	// GIVEN emergency_1 on E1 with occupancy 0.8 and max speed 20
	eng := newFakeEngine()
	eng.addVehicle("emergency_1", &fakeVehicle{edge: "E1", speed: 10, class: "emergency", route: []string{"E1", "E2"}})
	eng.edges["E1"] = &fakeEdge{occupancy: 0.8, meanSpeed: 10, maxSpeed: 20}
	eng.routes["E1->T"] = []string{"E1", "E5", "T"}
	m := newTestMonitor(eng, nil)

	// WHEN one step runs
	report, err := m.Step(context.Background())

	// THEN the predicate fires and the reroute is invoked with (E1, target)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Step)
	assert.Equal(t, []string{"emergency_1"}, report.Flagged)
	require.Len(t, report.Decisions, 1)
	d := report.Decisions[0]
	assert.True(t, d.Verdict.Congested)
	require.NotNil(t, d.Reroute)
	assert.True(t, d.Reroute.OK())
	assert.Equal(t, []findRouteCall{{from: "E1", to: "T", mode: RoutingModeAggregated}}, eng.findCalls)
	assert.Equal(t, []string{"E1", "E5", "T"}, eng.setRouteFor["emergency_1"])

	// AND the watch pass sees the new route
	require.Len(t, report.Watches, 1)
	assert.Equal(t, ProgressOnRoute, report.Watches[0].Progress)
}

func TestStep_OccupancyQueryFails_NoRerouteAndErrorLogged(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	// GIVEN the simulator raises on the occupancy query for E2
	eng := newFakeEngine()
	eng.addVehicle("emergency_2", &fakeVehicle{edge: "E2", speed: 10, class: "emergency", route: []string{"E2"}})
	eng.edges["E2"] = &fakeEdge{occupancy: 0.95, maxSpeed: 20}
	eng.routes["E2->T"] = []string{"E2", "T"}
	eng.failOn["EdgeOccupancy:E2"] = true
	m := newTestMonitor(eng, nil)

	// WHEN one step runs
	report, err := m.Step(context.Background())

	// THEN the predicate is false, no route was requested and an error was logged
	require.NoError(t, err)
	require.Len(t, report.Decisions, 1)
	assert.False(t, report.Decisions[0].Verdict.Congested)
	assert.True(t, report.Decisions[0].Verdict.Failed())
	assert.Nil(t, report.Decisions[0].Reroute)
	assert.Empty(t, eng.findCalls)

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			logged = true
		}
	}
	assert.True(t, logged, "expected an error log line")

	summary := trace.Summarize(m.Trace())
	assert.Equal(t, 1, summary.FailedChecks)
	assert.Equal(t, 0, summary.RerouteCount)
}

func TestStep_UnflaggedVehicles_AreNeverEvaluated(t *testing.T) {
	// GIVEN a stopped passenger car on a jammed edge
	eng := newFakeEngine()
	eng.addVehicle("car_1", &fakeVehicle{edge: "E1", speed: 0, class: "passenger"})
	eng.edges["E1"] = &fakeEdge{occupancy: 1, halting: 10, maxSpeed: 13}
	m := newTestMonitor(eng, nil)

	// WHEN one step runs
	report, err := m.Step(context.Background())

	// THEN neither the predicate nor the stuck check touched it
	require.NoError(t, err)
	assert.Empty(t, report.Flagged)
	assert.Empty(t, report.Decisions)
	assert.Empty(t, report.Watches)
	assert.Empty(t, eng.findCalls)
}

func TestStep_IDMarkerClassifier_FlagsByID(t *testing.T) {
	eng := newFakeEngine()
	eng.addVehicle("emergency_1", &fakeVehicle{edge: "E1", speed: 5, class: "passenger"})
	eng.addVehicle("bus_1", &fakeVehicle{edge: "E1", speed: 5, class: "bus"})
	eng.edges["E1"] = &fakeEdge{meanSpeed: 10, maxSpeed: 13}
	m := newTestMonitor(eng, func(c *Config) { c.Classifier = ClassifierIDMarker })

	report, err := m.Step(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"emergency_1"}, report.Flagged)
}

func TestStep_ClassQueryFails_VehicleSkipped(t *testing.T) {
	eng := newFakeEngine()
	eng.addVehicle("veh_1", &fakeVehicle{edge: "E1", class: "emergency"})
	eng.addVehicle("veh_2", &fakeVehicle{edge: "E1", class: "emergency"})
	eng.edges["E1"] = &fakeEdge{meanSpeed: 10, maxSpeed: 13}
	eng.failOn["VehicleClass:veh_1"] = true
	m := newTestMonitor(eng, nil)

	report, err := m.Step(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"veh_2"}, report.Flagged)
}

func TestStep_SignalsEnabled_PreemptsNearbyLights(t *testing.T) {
	eng := newFakeEngine()
	eng.addVehicle("emergency_1", &fakeVehicle{edge: "E1", speed: 10, class: "emergency", route: []string{"E1"}})
	eng.edges["E1"] = &fakeEdge{meanSpeed: 10, maxSpeed: 13}
	eng.lights["J1"] = orb.Point{10, 10}
	eng.phases["J1"] = 2

	disabled := newTestMonitor(eng, nil)
	report, err := disabled.Step(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Signals)
	assert.Equal(t, 2, eng.phases["J1"])

	enabled := newTestMonitor(eng, func(c *Config) { c.Signals.Enabled = true })
	report, err = enabled.Step(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Signals, 1)
	assert.Equal(t, []string{"J1"}, report.Signals[0].Switched)
	assert.Equal(t, 0, eng.phases["J1"])
}

func TestStep_StepFailure_ReturnsError(t *testing.T) {
	eng := newFakeEngine()
	eng.failOn["Step"] = true
	m := newTestMonitor(eng, nil)

	_, err := m.Step(context.Background())

	assert.ErrorIs(t, err, errFake)
	assert.Equal(t, int64(0), m.StepCount())
}

func TestRun_StopsWhenNoVehiclesExpected_AndCloses(t *testing.T) {
	// GIVEN an engine expecting vehicles for three steps
	eng := newFakeEngine()
	eng.expected = []int{2, 2, 1, 0}
	m := newTestMonitor(eng, nil)

	// WHEN run
	err := m.Run(context.Background())

	// THEN it stepped three times and closed the engine once
	require.NoError(t, err)
	assert.Equal(t, 3, eng.steps)
	assert.Equal(t, int64(3), m.StepCount())
	assert.Equal(t, 1, eng.closed)
	assert.Equal(t, int64(3), m.Trace().Steps)
}

func TestRun_MaxSteps_CapsLoop(t *testing.T) {
	eng := newFakeEngine()
	eng.expected = []int{5}
	m := newTestMonitor(eng, func(c *Config) { c.MaxSteps = 4 })

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, 4, eng.steps)
	assert.Equal(t, 1, eng.closed)
}

func TestRun_EngineError_ReturnsErrorAndStillCloses(t *testing.T) {
	eng := newFakeEngine()
	eng.expected = []int{1}
	eng.failOn["Step"] = true
	m := newTestMonitor(eng, nil)

	err := m.Run(context.Background())

	assert.ErrorIs(t, err, errFake)
	assert.Equal(t, 1, eng.closed)
}

func TestRun_CancelledContext_StopsAndCloses(t *testing.T) {
	eng := newFakeEngine()
	eng.expected = []int{1}
	m := newTestMonitor(eng, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.Run(ctx))
	assert.Equal(t, 0, eng.steps)
	assert.Equal(t, 1, eng.closed)
}

func TestRun_CalledTwice_Panics(t *testing.T) {
	eng := newFakeEngine()
	m := newTestMonitor(eng, nil)
	require.NoError(t, m.Run(context.Background()))
	assert.Panics(t, func() { _ = m.Run(context.Background()) })
}
