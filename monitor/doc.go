// Package monitor provides the congestion monitor that drives an external traffic
// simulation engine step by step.
//
// # Reading Guide
//
// Start with these files:
//   - engine.go: the Engine contract every simulation backend implements
//   - congestion.go: the congestion predicate (dynamic highway/city thresholds)
//   - reroute.go: the rerouting action built on the engine's route finder
//   - watch.go: stuck detection and route progress classification
//   - monitor.go: the per-step loop tying the passes together
//
// # Backends
//
// Implementations of Engine live outside this package:
//   - traci/: a TraCI protocol client for SUMO (sumo, sumo-gui)
//   - netsim/: a small in-memory engine used for offline runs and tests
//
// All engine state is owned by the backend. The monitor keeps no per-vehicle state
// between steps; every decision is made from the snapshot read during that step and
// returned as an explicit outcome value.
package monitor
