package trace

// TraceSummary aggregates statistics from a MonitorTrace.
type TraceSummary struct {
	RunID             string         `json:"run_id"`
	Steps             int64          `json:"steps"`
	CongestionChecks  int            `json:"congestion_checks"`
	CongestedCount    int            `json:"congested"`
	FailedChecks      int            `json:"failed_checks"`
	RerouteCount      int            `json:"reroutes"`
	RerouteFailures   int            `json:"reroute_failures"`
	StuckObservations int            `json:"stuck_observations"`
	Deviations        int            `json:"deviations"`
	Arrivals          int            `json:"arrivals"`
	SignalSwitches    int            `json:"signal_switches"`
	CongestedEdges    map[string]int `json:"congested_edges"` // edge ID → congested verdicts
}

// Summarize computes aggregate statistics from a MonitorTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(mt *MonitorTrace) *TraceSummary {
	summary := &TraceSummary{
		CongestedEdges: make(map[string]int),
	}
	if mt == nil {
		return summary
	}
	summary.RunID = mt.RunID
	summary.Steps = mt.Steps

	summary.CongestionChecks = len(mt.Congestion)
	for _, c := range mt.Congestion {
		switch {
		case c.Error != "":
			summary.FailedChecks++
		case c.Congested:
			summary.CongestedCount++
			summary.CongestedEdges[c.Edge]++
		}
	}

	for _, r := range mt.Reroutes {
		if r.Error != "" {
			summary.RerouteFailures++
		} else {
			summary.RerouteCount++
		}
	}

	for _, w := range mt.Watches {
		if w.Stuck {
			summary.StuckObservations++
		}
		switch w.Progress {
		case "deviated":
			summary.Deviations++
		case "arrived":
			summary.Arrivals++
		}
	}

	for _, s := range mt.Signals {
		summary.SignalSwitches += len(s.Switched)
	}
	return summary
}
