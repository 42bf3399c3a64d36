package monitor

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/dynroute/dynroute/monitor/trace"
)

// RerouteDecision pairs the congestion verdict for a flagged vehicle's edge with the
// reroute attempt it triggered (nil when the edge was not congested).
type RerouteDecision struct {
	VehicleID string
	Edge      string
	Verdict   CongestionVerdict
	Reroute   *RerouteOutcome
}

// StepReport collects the outcomes of one monitored step.
type StepReport struct {
	Step      int64
	Flagged   []string
	Decisions []RerouteDecision
	Watches   []WatchOutcome
	Signals   []SignalOutcome
}

// Monitor drives an Engine one step at a time, rerouting flagged vehicles away from
// congested edges toward the target edge.
type Monitor struct {
	engine     Engine
	cfg        Config
	classifier VehicleClassifier
	trace      *trace.MonitorTrace
	step       int64
	hasRun     bool
}

// NewMonitor creates a Monitor over engine. tr may be nil to disable tracing.
// Panics if cfg does not validate.
func NewMonitor(engine Engine, cfg Config, tr *trace.MonitorTrace) *Monitor {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("NewMonitor: %v", err))
	}
	return &Monitor{
		engine:     engine,
		cfg:        cfg,
		classifier: NewVehicleClassifier(cfg.Classifier, cfg.Category),
		trace:      tr,
	}
}

// StepCount returns the number of steps advanced so far.
func (m *Monitor) StepCount() int64 {
	return m.step
}

// Trace returns the decision trace (may be nil).
func (m *Monitor) Trace() *trace.MonitorTrace {
	return m.trace
}

// Run steps the engine until it expects no more vehicles, MaxSteps is reached or ctx
// is cancelled. The engine is closed before Run returns, whatever the exit path.
// Panics if called more than once.
func (m *Monitor) Run(ctx context.Context) (err error) {
	if m.hasRun {
		panic("Monitor.Run() called more than once")
	}
	m.hasRun = true

	defer func() {
		if cerr := m.engine.Close(); cerr != nil {
			logrus.Warnf("Closing simulation: %v", cerr)
		}
		logrus.Infof("[step %06d] Simulation ended", m.step)
	}()

	for {
		if err := ctx.Err(); err != nil {
			logrus.Infof("[step %06d] Stopping: %v", m.step, err)
			return nil
		}
		if m.cfg.MaxSteps > 0 && m.step >= m.cfg.MaxSteps {
			logrus.Infof("[step %06d] Step limit reached", m.step)
			return nil
		}
		expected, err := m.engine.MinExpectedVehicles(ctx)
		if err != nil {
			err = fmt.Errorf("reading expected vehicles: %w", err)
			logrus.Errorf("Simulation error: %v", err)
			return err
		}
		if expected <= 0 {
			return nil
		}
		if _, err := m.Step(ctx); err != nil {
			logrus.Errorf("Simulation error: %v", err)
			return err
		}
	}
}

// Step advances the engine one step and runs the reroute, watch and (when enabled)
// signal passes over the flagged vehicles. Only a failure to advance or to list
// vehicles is returned as an error; per-vehicle failures are carried in the report.
func (m *Monitor) Step(ctx context.Context) (StepReport, error) {
	if err := m.engine.Step(ctx); err != nil {
		return StepReport{}, fmt.Errorf("advancing step %d: %w", m.step+1, err)
	}
	m.step++
	m.trace.RecordStep()
	report := StepReport{Step: m.step}

	flagged, err := m.FlaggedVehicles(ctx)
	if err != nil {
		return report, err
	}
	report.Flagged = flagged
	logrus.Debugf("[step %06d] %d flagged vehicles", m.step, len(flagged))

	report.Decisions = m.RerouteFlagged(ctx, flagged)
	report.Watches = m.WatchRoutes(ctx, flagged)
	if m.cfg.Signals.Enabled {
		report.Signals = m.PreemptSignals(ctx, flagged)
	}
	return report, nil
}

// FlaggedVehicles returns the active vehicles selected by the classifier.
// Vehicles whose category cannot be read are logged and skipped.
func (m *Monitor) FlaggedVehicles(ctx context.Context) ([]string, error) {
	ids, err := m.engine.VehicleIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing vehicles: %w", err)
	}
	return lo.Filter(ids, func(id string, _ int) bool {
		ok, err := m.classifier.Flagged(ctx, m.engine, id)
		if err != nil {
			logrus.Errorf("Error classifying %s: %v", id, err)
			return false
		}
		return ok
	}), nil
}

// RerouteFlagged evaluates the current edge of every flagged vehicle and reroutes
// the vehicles on congested edges toward the target edge.
func (m *Monitor) RerouteFlagged(ctx context.Context, flagged []string) []RerouteDecision {
	decisions := make([]RerouteDecision, 0, len(flagged))
	for _, id := range flagged {
		edge, err := m.engine.VehicleRoadID(ctx, id)
		if err != nil {
			logrus.Errorf("Error reading road of %s: %v", id, err)
			continue
		}
		d := RerouteDecision{VehicleID: id, Edge: edge}
		d.Verdict = m.cfg.Congestion.Evaluate(ctx, m.engine, edge)
		m.recordVerdict(id, d.Verdict)

		if d.Verdict.Congested {
			logrus.Infof("Congestion detected on %s for %s. Rerouting...", edge, id)
			out := Reroute(ctx, m.engine, id, edge, m.cfg.TargetEdge, m.cfg.RoutingMode)
			d.Reroute = &out
			m.recordReroute(out)
		} else if !d.Verdict.Failed() {
			logrus.Infof("%s is proceeding on %s without congestion.", id, edge)
		}
		decisions = append(decisions, d)
	}
	return decisions
}

// WatchRoutes runs the route watch over every flagged vehicle.
func (m *Monitor) WatchRoutes(ctx context.Context, flagged []string) []WatchOutcome {
	outcomes := make([]WatchOutcome, 0, len(flagged))
	for _, id := range flagged {
		out := m.cfg.Watch.Watch(ctx, m.engine, id)
		m.trace.RecordWatch(trace.WatchRecord{
			Step:      m.step,
			VehicleID: out.VehicleID,
			Edge:      out.Edge,
			Speed:     out.Speed,
			Stuck:     out.Stuck,
			Progress:  string(out.Progress),
			Error:     errString(out.Err),
		})
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// PreemptSignals switches traffic lights near every flagged vehicle.
func (m *Monitor) PreemptSignals(ctx context.Context, flagged []string) []SignalOutcome {
	outcomes := make([]SignalOutcome, 0, len(flagged))
	for _, id := range flagged {
		out := m.cfg.Signals.PreemptSignals(ctx, m.engine, id)
		m.trace.RecordSignal(trace.SignalRecord{
			Step:      m.step,
			VehicleID: id,
			Switched:  out.Switched,
			Error:     errString(out.Err),
		})
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (m *Monitor) recordVerdict(vehicleID string, v CongestionVerdict) {
	m.trace.RecordCongestion(trace.CongestionRecord{
		Step:      m.step,
		VehicleID: vehicleID,
		Edge:      v.Snapshot.EdgeID,
		Occupancy: v.Snapshot.Occupancy,
		MeanSpeed: v.Snapshot.MeanSpeed,
		MaxSpeed:  v.Snapshot.MaxSpeed,
		Halting:   v.Snapshot.HaltingNumber,
		Threshold: v.Threshold,
		Congested: v.Congested,
		Reasons:   v.Reasons,
		Error:     errString(v.Err),
	})
}

func (m *Monitor) recordReroute(out RerouteOutcome) {
	m.trace.RecordReroute(trace.RerouteRecord{
		Step:      m.step,
		VehicleID: out.VehicleID,
		From:      out.From,
		Target:    out.Target,
		Route:     out.Route,
		Error:     errString(out.Err),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
