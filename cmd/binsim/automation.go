package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/binsim/internal/automation"
	"github.com/san-kum/binsim/internal/experiment"
	"github.com/san-kum/binsim/internal/optim"
	"github.com/san-kum/binsim/internal/storage"
)

var (
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	sweepTicks int64

	tuneParams []string
	metricName string
	maximize   bool
	tuneTicks  int64

	ensembleRuns  int
	seedStart     int64
	ensembleTicks int64
)

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	st := storage.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("scenario %s: %s\n\n", scenario.Name, scenario.Description)
	results, err := automation.RunScenario(cmd.Context(), scenario, *cfg, st)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tPRESET\tTICKS\tACTIVE\tENERGY\tSAVED")
	for i, res := range results {
		step := scenario.Steps[i]
		fmt.Fprintf(w, "%d\t%s\t%d\t%.0f\t%.4g\t%s\n",
			i+1, orDash(step.Preset), res.Ticks, res.Metrics["active"], res.Metrics["energy"], orDash(step.SaveAs))
	}
	if ferr := w.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	results, err := automation.RunSweep(cmd.Context(), &automation.ParameterSweep{
		Base:      *cfg,
		ParamName: sweepParam,
		ParamMin:  sweepMin,
		ParamMax:  sweepMax,
		NumSteps:  sweepSteps,
		Ticks:     sweepTicks,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tACTIVE\tMEAN SPEED\tENERGY LOSS\tMAX LOAD\tOVERFLOW\n", strings.ToUpper(sweepParam))
	for _, r := range results {
		fmt.Fprintf(w, "%.4g\t%.0f\t%.4f\t%.4g\t%d\t%d\n",
			r.ParamValue, r.Metrics["active"], r.Metrics["mean_speed"], r.Metrics["energy_loss"], r.MaxLoad, r.Overflow)
	}
	return w.Flush()
}

// parseTuneParams reads "name=v1,v2,..." flags in a stable order.
func parseTuneParams(specs []string) ([]string, [][]float64, error) {
	byName := make(map[string][]float64, len(specs))
	for _, spec := range specs {
		name, list, ok := strings.Cut(spec, "=")
		if !ok || name == "" || list == "" {
			return nil, nil, fmt.Errorf("bad --param %q, want name=v1,v2", spec)
		}
		for _, field := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad value in --param %q: %w", spec, err)
			}
			byName[name] = append(byName[name], v)
		}
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	ranges := make([][]float64, len(names))
	for i, name := range names {
		ranges[i] = byName[name]
	}
	return names, ranges, nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	names, ranges, err := parseTuneParams(tuneParams)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no --param given")
	}

	g := optim.NewGridSearch(names, ranges)
	if maximize {
		g.Maximize()
	}
	build := func(params map[string]float64) (*experiment.Experiment, error) {
		c := *cfg
		for name, v := range params {
			if err := c.SetParam(name, v); err != nil {
				return nil, err
			}
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return experiment.New(experiment.Config{Sim: c, Ticks: tuneTicks}), nil
	}

	best, value, err := g.Search(cmd.Context(), build, metricName)
	if err != nil {
		return err
	}
	fmt.Printf("best %s: %.6g\n", metricName, value)
	for _, name := range names {
		fmt.Printf("  %s = %.6g\n", name, best[name])
	}
	return nil
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	results, err := experiment.RunEnsemble(cmd.Context(), experiment.Config{Sim: *cfg, Ticks: ensembleTicks}, ensembleRuns, seedStart)
	if err != nil {
		return err
	}

	keys := make([]string, 0)
	for k := range results[0].Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("%d runs of %d ticks, seeds %d..%d\n\n", len(results), ensembleTicks, seedStart, seedStart+int64(len(results))-1)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tMEAN\tSTD\tMIN\tMAX")
	for _, k := range keys {
		vals := make([]float64, len(results))
		for i, r := range results {
			vals[i] = r.Metrics[k]
		}
		mean, std := stat.MeanStdDev(vals, nil)
		if len(vals) < 2 {
			std = 0
		}
		sort.Float64s(vals)
		fmt.Fprintf(w, "%s\t%.6g\t%.3g\t%.6g\t%.6g\n", k, mean, std, vals[0], vals[len(vals)-1])
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
