package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccupancyThreshold_HighwayVsCity(t *testing.T) {
	cfg := DefaultCongestionConfig()

	assert.Equal(t, 0.7, cfg.OccupancyThreshold(20))
	assert.Equal(t, 0.7, cfg.OccupancyThreshold(15.01))
	assert.Equal(t, 0.5, cfg.OccupancyThreshold(15)) // boundary is city
	assert.Equal(t, 0.5, cfg.OccupancyThreshold(13.89))
}

func TestJudge_DisjunctionOfThreeConditions(t *testing.T) {
	cfg := DefaultCongestionConfig()

	tests := []struct {
		name      string
		snap      EdgeSnapshot
		congested bool
		reasons   []string
	}{
		{
			name:      "highway free flow",
			snap:      EdgeSnapshot{Occupancy: 0.6, MeanSpeed: 18, HaltingNumber: 0, MaxSpeed: 20},
			congested: false,
		},
		{
			name:      "highway occupancy above 0.7",
			snap:      EdgeSnapshot{Occupancy: 0.71, MeanSpeed: 18, HaltingNumber: 0, MaxSpeed: 20},
			congested: true,
			reasons:   []string{ReasonOccupancy},
		},
		{
			name:      "highway occupancy exactly 0.7 is not above",
			snap:      EdgeSnapshot{Occupancy: 0.7, MeanSpeed: 18, HaltingNumber: 0, MaxSpeed: 20},
			congested: false,
		},
		{
			name:      "city occupancy 0.6 above 0.5",
			snap:      EdgeSnapshot{Occupancy: 0.6, MeanSpeed: 12, HaltingNumber: 0, MaxSpeed: 13.89},
			congested: true,
			reasons:   []string{ReasonOccupancy},
		},
		{
			name:      "slow: mean speed below 0.2 x max",
			snap:      EdgeSnapshot{Occupancy: 0.1, MeanSpeed: 3.9, HaltingNumber: 0, MaxSpeed: 20},
			congested: true,
			reasons:   []string{ReasonSlow},
		},
		{
			name:      "mean speed exactly 0.2 x max is not slow",
			snap:      EdgeSnapshot{Occupancy: 0.1, MeanSpeed: 4, HaltingNumber: 0, MaxSpeed: 20},
			congested: false,
		},
		{
			name:      "queue: more than 5 halting",
			snap:      EdgeSnapshot{Occupancy: 0.1, MeanSpeed: 18, HaltingNumber: 6, MaxSpeed: 20},
			congested: true,
			reasons:   []string{ReasonQueue},
		},
		{
			name:      "exactly 5 halting is not a queue",
			snap:      EdgeSnapshot{Occupancy: 0.1, MeanSpeed: 18, HaltingNumber: 5, MaxSpeed: 20},
			congested: false,
		},
		{
			name:      "all three at once",
			snap:      EdgeSnapshot{Occupancy: 0.9, MeanSpeed: 0.5, HaltingNumber: 9, MaxSpeed: 10},
			congested: true,
			reasons:   []string{ReasonOccupancy, ReasonSlow, ReasonQueue},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cfg.Judge(tt.snap)
			assert.Equal(t, tt.congested, v.Congested)
			assert.Equal(t, tt.reasons, v.Reasons)
			assert.NoError(t, v.Err)
		})
	}
}

func TestEvaluate_ReadsEdgeAndFirstLane(t *testing.T) {
	// GIVEN edge E1 with occupancy 0.8 and max speed 20
	eng := newFakeEngine()
	eng.edges["E1"] = &fakeEdge{occupancy: 0.8, meanSpeed: 15, halting: 0, maxSpeed: 20}

	// WHEN evaluated
	v := DefaultCongestionConfig().Evaluate(context.Background(), eng, "E1")

	// THEN the highway threshold applies and the edge is congested
	require.False(t, v.Failed())
	assert.True(t, v.Congested)
	assert.Equal(t, 0.7, v.Threshold)
	assert.Equal(t, EdgeSnapshot{EdgeID: "E1", Occupancy: 0.8, MeanSpeed: 15, MaxSpeed: 20}, v.Snapshot)
}

func TestEvaluate_QueryError_FailsOpenAndLogs(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	// GIVEN an engine that raises on the occupancy query for E2
	eng := newFakeEngine()
	eng.edges["E2"] = &fakeEdge{occupancy: 0.9, maxSpeed: 20}
	eng.failOn["EdgeOccupancy:E2"] = true

	// WHEN evaluated
	v := DefaultCongestionConfig().Evaluate(context.Background(), eng, "E2")

	// THEN the verdict is "not congested" carrying the error, and an error is logged
	assert.False(t, v.Congested)
	require.True(t, v.Failed())
	assert.True(t, errors.Is(v.Err, errFake))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "E2")
}

func TestEvaluate_LaneQueryError_FailsOpen(t *testing.T) {
	eng := newFakeEngine()
	eng.edges["E3"] = &fakeEdge{occupancy: 0.9, maxSpeed: 20}
	eng.failOn["LaneMaxSpeed:E3_0"] = true

	v := DefaultCongestionConfig().Evaluate(context.Background(), eng, "E3")

	assert.False(t, v.Congested)
	assert.ErrorContains(t, v.Err, "E3_0")
}
