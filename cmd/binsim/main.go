package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/binsim/internal/config"
	"github.com/san-kum/binsim/internal/logging"
)

var (
	dataDir    string
	configFile string
	preset     string
	backend    string
	logLevel   string
	countSqrt  int
	gridSize   int
	seed       int64
	scale      float64
	diagonal   bool

	runTicks      int64
	benchTicks    int64
	fps           int
	pngPath       string
	snapshotEvery int64
	sampleEvery   int64
	noSave        bool

	addr    string
	outPath string
	svgPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "binsim",
		Short:         "binned 2-D particle simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data", "", "data directory (default from config)")
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "start from a named preset")
	pf.StringVar(&backend, "backend", "", "compute backend: auto, cpu, opengl")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, off")
	pf.IntVar(&countSqrt, "particles", 0, "particle texture side (count is its square)")
	pf.IntVar(&gridSize, "grid", 0, "bin grid columns and rows")
	pf.Int64Var(&seed, "seed", 0, "random seed (0 = time based)")
	pf.Float64Var(&scale, "scale", 0, "particle radius scale")
	pf.BoolVar(&diagonal, "diagonal", false, "also check diagonal bins")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a headless simulation and store its metrics",
		Args:  cobra.NoArgs,
		RunE:  runHeadless,
	}
	runCmd.Flags().Int64Var(&runTicks, "ticks", 600, "number of ticks")
	runCmd.Flags().IntVar(&fps, "fps", 0, "simulated frame rate (default from config)")
	runCmd.Flags().StringVar(&pngPath, "png", "", "write the last frame to a PNG")
	runCmd.Flags().Int64Var(&snapshotEvery, "snapshot-every", 0, "store particle snapshots every n ticks")
	runCmd.Flags().Int64Var(&sampleEvery, "sample-every", 1, "keep a metrics sample every n ticks")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().StringVar(&svgPath, "svg", "", "write the last frame to an SVG")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run with a live terminal view",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "stream frames to websocket clients",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "benchmark the compute backends",
		Args:  cobra.NoArgs,
		RunE:  bench,
	}
	benchCmd.Flags().Int64Var(&benchTicks, "ticks", 120, "ticks per backend")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "plot a stored run's metrics",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().StringVar(&svgPath, "svg", "", "write the kinetic energy series to an SVG")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range config.ListPresets() {
				fmt.Println(p)
			}
		},
	}

	backendsCmd := &cobra.Command{
		Use:   "backends",
		Short: "list compute backends and their availability",
		Args:  cobra.NoArgs,
		RunE:  listBackends,
	}

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted yaml scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "sweep one parameter over a range",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&sweepParam, "param", "restitution", fmt.Sprintf("parameter %v", config.TunableNames()))
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 1, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of values")
	sweepCmd.Flags().Int64Var(&sweepTicks, "ticks", 300, "ticks per run")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search parameters for the best metric",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", nil, "name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&metricName, "metric", "energy_loss", "metric to optimize")
	tuneCmd.Flags().BoolVar(&maximize, "maximize", false, "maximize instead of minimize")
	tuneCmd.Flags().Int64Var(&tuneTicks, "ticks", 300, "ticks per run")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble",
		Short: "run several seeds concurrently and summarize their metrics",
		Args:  cobra.NoArgs,
		RunE:  runEnsemble,
	}
	ensembleCmd.Flags().IntVar(&ensembleRuns, "runs", 4, "number of runs")
	ensembleCmd.Flags().Int64Var(&seedStart, "seed-start", 1, "seed of the first run")
	ensembleCmd.Flags().Int64Var(&ensembleTicks, "ticks", 300, "ticks per run")

	rootCmd.AddCommand(runCmd, liveCmd, serveCmd, benchCmd, listCmd, showCmd, exportCmd, presetsCmd, backendsCmd,
		scenarioCmd, sweepCmd, tuneCmd, ensembleCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig layers the preset, the config file and then any flags the
// user set, and installs the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = backend
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("particles") {
		cfg.Particles.CountSqrt = countSqrt
	}
	if flags.Changed("grid") {
		cfg.Grid = config.GridConfig{Columns: gridSize, Rows: gridSize}
	}
	if flags.Changed("seed") {
		cfg.Particles.Seed = seed
	}
	if flags.Changed("scale") {
		cfg.Particles.Scale = scale
	}
	if flags.Changed("diagonal") {
		cfg.Collisions.DiagonalCellChecks = diagonal
	}
	if flags.Changed("fps") {
		cfg.Display.FPS = fps
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, err
	}
	logging.SetLogger(logger)
	return cfg, nil
}
