package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dynroute/dynroute/monitor"
	"github.com/dynroute/dynroute/monitor/trace"
	"github.com/dynroute/dynroute/netsim"
	"github.com/dynroute/dynroute/traci"
)

var (
	logLevel   string     // Log verbosity level
	configPath string     // Optional YAML configuration file
	runOpts    runOptions // Flags of the run command
)

// runOptions holds the run flags. A flag overrides the configuration file only
// when set on the command line.
type runOptions struct {
	engine         string
	sumoBinary     string
	sumoConfig     string
	port           int
	remote         string
	scenario       string
	targetEdge     string
	classifier     string
	category       string
	routingMode    int
	maxSteps       int64
	preemptSignals bool
	traceLevel     string
}

func (o *runOptions) register(fs *pflag.FlagSet) {
	def := DefaultFileConfig()
	fs.StringVar(&o.engine, "engine", def.Engine, "Simulation engine (traci, memory)")
	fs.StringVar(&o.sumoBinary, "sumo-binary", def.Sumo.Binary, "Simulator binary to launch (sumo, sumo-gui)")
	fs.StringVar(&o.sumoConfig, "sumo-config", def.Sumo.Config, "SUMO configuration file (.sumocfg)")
	fs.IntVar(&o.port, "port", def.Sumo.Port, "TraCI port for the launched simulator (0 picks a free port)")
	fs.StringVar(&o.remote, "remote", "", "Attach to a running simulator at host:port instead of launching one")
	fs.StringVar(&o.scenario, "scenario", "", "Scenario YAML for the memory engine")
	fs.StringVar(&o.targetEdge, "target-edge", def.Monitor.TargetEdge, "Edge flagged vehicles are rerouted toward")
	fs.StringVar(&o.classifier, "classifier", def.Monitor.Classifier, "Vehicle selection (vehicle-class, id-marker)")
	fs.StringVar(&o.category, "category", def.Monitor.Category, "Vehicle class or id marker of flagged vehicles")
	fs.IntVar(&o.routingMode, "routing-mode", def.Monitor.RoutingMode, "Routing mode passed to the route finder (0 static, 1 aggregated travel times)")
	fs.Int64Var(&o.maxSteps, "max-steps", def.Monitor.MaxSteps, "Stop after this many steps (0 = until no vehicles are expected)")
	fs.BoolVar(&o.preemptSignals, "preempt-signals", def.Signals.Enabled, "Switch traffic lights near flagged vehicles")
	fs.StringVar(&o.traceLevel, "trace-level", def.Trace.Level, "Decision trace level (none, decisions)")
}

// apply copies the flags changed on fs into cfg.
func (o *runOptions) apply(fs *pflag.FlagSet, cfg *FileConfig) {
	if fs.Changed("engine") {
		cfg.Engine = o.engine
	}
	if fs.Changed("sumo-binary") {
		cfg.Sumo.Binary = o.sumoBinary
	}
	if fs.Changed("sumo-config") {
		cfg.Sumo.Config = o.sumoConfig
	}
	if fs.Changed("port") {
		cfg.Sumo.Port = o.port
	}
	if fs.Changed("remote") {
		cfg.Sumo.Remote = o.remote
	}
	if fs.Changed("scenario") {
		cfg.Scenario = o.scenario
	}
	if fs.Changed("target-edge") {
		cfg.Monitor.TargetEdge = o.targetEdge
	}
	if fs.Changed("classifier") {
		cfg.Monitor.Classifier = o.classifier
	}
	if fs.Changed("category") {
		cfg.Monitor.Category = o.category
	}
	if fs.Changed("routing-mode") {
		cfg.Monitor.RoutingMode = o.routingMode
	}
	if fs.Changed("max-steps") {
		cfg.Monitor.MaxSteps = o.maxSteps
	}
	if fs.Changed("preempt-signals") {
		cfg.Signals.Enabled = o.preemptSignals
	}
	if fs.Changed("trace-level") {
		cfg.Trace.Level = o.traceLevel
	}
}

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "dynroute",
	Short: "Congestion monitor and emergency vehicle rerouter for traffic simulations",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd monitors a simulation until it drains
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation and reroute flagged vehicles away from congestion",
	Long: `Run the simulation and reroute flagged vehicles away from congestion.

The traci engine launches SUMO on the scenario given by --sumo-config
(default config/simulation.sumocfg, which you supply), or attaches to a
running simulator with --remote. To try the monitor without SUMO, run the
bundled offline demo:

  dynroute run --config examples/grid/dynroute.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadFileConfig(configPath)
		if err != nil {
			logrus.Fatalf("Failed to load configuration: %v", err)
		}
		runOpts.apply(cmd.Flags(), &cfg)
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, err := openEngine(ctx, cfg)
		if err != nil {
			logrus.Fatalf("Failed to start simulation: %v", err)
		}

		tr := trace.NewMonitorTrace(trace.TraceConfig{Level: trace.TraceLevel(cfg.Trace.Level)})
		m := monitor.NewMonitor(engine, cfg.MonitorConfig(), tr)
		logrus.Infof("Monitoring %s vehicles (%s), target edge %s, run %s",
			cfg.Monitor.Category, cfg.Monitor.Classifier, cfg.Monitor.TargetEdge, tr.RunID)

		startTime := time.Now()
		// Run logs and returns loop errors; they do not change the exit status.
		_ = m.Run(ctx)

		if err := printSummary(cmd.OutOrStdout(), tr, time.Since(startTime)); err != nil {
			logrus.Errorf("Failed to print summary: %v", err)
		}
	},
}

// openEngine launches or attaches to the configured simulation backend.
func openEngine(ctx context.Context, cfg FileConfig) (monitor.Engine, error) {
	switch cfg.Engine {
	case engineMemory:
		sc, err := netsim.LoadScenario(cfg.Scenario)
		if err != nil {
			return nil, err
		}
		net, err := netsim.LoadNetworkFile(sc.Network)
		if err != nil {
			return nil, err
		}
		logrus.Infof("Loaded network %s: %d junctions, %d edges", sc.Network, len(net.Junctions), len(net.Edges))
		return netsim.NewEngine(net, sc)
	default:
		if cfg.Sumo.Remote != "" {
			return traci.Connect(ctx, cfg.Sumo.Remote, cfg.Sumo.Retries, cfg.Sumo.RetryDelay)
		}
		return traci.Start(ctx, cfg.LaunchConfig())
	}
}

// printSummary writes the run summary as JSON after a header line.
func printSummary(w io.Writer, tr *trace.MonitorTrace, elapsed time.Duration) error {
	summary := struct {
		*trace.TraceSummary
		WallTimeSeconds float64 `json:"wall_time_seconds"`
	}{
		TraceSummary:    trace.Summarize(tr),
		WallTimeSeconds: elapsed.Seconds(),
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "=== Monitor Summary ===\n%s\n", data)
	return err
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file (flags override its values)")
	runOpts.register(runCmd.Flags())

	rootCmd.AddCommand(runCmd)
}
