package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/binsim/internal/compute"
	"github.com/san-kum/binsim/internal/engine"
	"github.com/san-kum/binsim/internal/experiment"
	"github.com/san-kum/binsim/internal/export"
	"github.com/san-kum/binsim/internal/logging"
	"github.com/san-kum/binsim/internal/metrics"
	"github.com/san-kum/binsim/internal/particle"
	"github.com/san-kum/binsim/internal/present"
	"github.com/san-kum/binsim/internal/storage"
	"github.com/san-kum/binsim/internal/stream"
	"github.com/san-kum/binsim/internal/viz"
)

// lastFrame keeps a copy of the most recent frame.
type lastFrame struct {
	frame present.Frame
	buf   []particle.Particle
}

func (l *lastFrame) Observe(f present.Frame) {
	l.buf = append(l.buf[:0], f.Particles...)
	l.frame = f
	l.frame.Particles = l.buf
}

func runHeadless(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}

	expCfg := experiment.Config{Sim: *cfg, Ticks: runTicks, SampleEvery: sampleEvery}
	var img *present.ImageSurface
	if pngPath != "" {
		img = present.NewImageSurface()
		expCfg.Surface = img
	}
	exp := experiment.New(expCfg)
	last := &lastFrame{}
	if svgPath != "" {
		exp.Observe(last)
	}

	runID := storage.NewRunID()
	if snapshotEvery > 0 && !noSave {
		snapshots, err := st.NewSnapshotRecorder(runID, snapshotEvery)
		if err != nil {
			return err
		}
		exp.Record(snapshots)
	}

	fmt.Printf("running %d particles for %d ticks\n", cfg.Count(), runTicks)
	res, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("%d ticks on %s in %s (%.1f ticks/s)\n",
		res.Ticks, res.Backend, res.Wall.Round(time.Millisecond), float64(res.Ticks)/res.Wall.Seconds())

	if img != nil {
		if err := writePNG(img, pngPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", pngPath)
	}
	if svgPath != "" {
		colliders := cfg.Params().Colliders
		if !cfg.Collisions.StaticCollisions {
			colliders = nil
		}
		if err := os.WriteFile(svgPath, []byte(export.FrameToSVG(last.frame, colliders, 2)), 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgPath)
	}

	plotSamples(res.Samples)

	if noSave {
		return nil
	}
	id, err := st.Save(storage.RunMetadata{
		ID:        runID,
		Preset:    preset,
		Timestamp: time.Now(),
		Backend:   res.Backend,
		Particles: cfg.Count(),
		Ticks:     res.Ticks,
		Wall:      res.Wall.Seconds(),
		Config:    *cfg,
		Metrics:   res.Metrics,
	}, res.Samples)
	if err != nil {
		return err
	}
	fmt.Printf("saved run %s\n", id)
	return nil
}

func writePNG(img *present.ImageSurface, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := img.WritePNG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func plotSamples(samples []metrics.Sample) {
	if len(samples) < 2 {
		return
	}
	series := []struct {
		caption string
		field   func(metrics.Sample) float64
	}{
		{"kinetic energy", func(s metrics.Sample) float64 { return s.KineticEnergy }},
		{"mean speed", func(s metrics.Sample) float64 { return s.MeanSpeed }},
		{"active particles", func(s metrics.Sample) float64 { return float64(s.Active) }},
		{"max bin load", func(s metrics.Sample) float64 { return float64(s.MaxLoad) }},
	}
	for _, sr := range series {
		data := make([]float64, len(samples))
		for i, s := range samples {
			data[i] = sr.field(s)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(sr.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// The terminal owns the screen; keep logs out of it.
	logging.SetLogger(nil)

	collector := experiment.NewCollector(cfg)
	eng, err := engine.New(cfg, engine.WithObserver(collector))
	if err != nil {
		return err
	}
	defer eng.Backend().Cleanup()
	return viz.Run(eng, collector)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.Logger()

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Backend().Cleanup()
	srv := stream.NewServer(stream.WithResizeHandler(func(w, h int) {
		if err := eng.HandleResize(w, h); err != nil {
			logger.Warn("resize rejected", "width", w, "height", h, "err", err)
		}
	}))
	defer srv.Close()

	if err := eng.Run(srv.Surface(), cfg.Display.Width, cfg.Display.Height); err != nil {
		return err
	}
	defer eng.Stop()

	mux := http.NewServeMux()
	mux.Handle("/ws", srv.Handler())
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()
	fmt.Printf("streaming %d particles on ws://%s/ws\n", cfg.Count(), addr)

	select {
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return eng.Err()
}

func bench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("benchmarking %d particles, %dx%d grid\n\n", cfg.Count(), cfg.Grid.Columns, cfg.Grid.Rows)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tTICKS\tTIME\tTICKS/SEC\tPARTICLES/SEC")

	for _, name := range []string{compute.BackendCPU, compute.BackendOpenGL} {
		b, err := compute.New(name)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\tunavailable\n", name)
			continue
		}
		res, err := experiment.New(experiment.Config{Sim: *cfg, Ticks: benchTicks, Backend: b}).Run(cmd.Context())
		b.Cleanup()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		rate := float64(res.Ticks) / res.Wall.Seconds()
		fmt.Fprintf(w, "%s\t%d\t%s\t%.1f\t%.3g\n",
			name, res.Ticks, res.Wall.Round(time.Millisecond), rate, rate*float64(cfg.Count()))
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st := storage.New(cfg.DataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRESET\tTIME\tBACKEND\tPARTICLES\tTICKS\tWALL")

	for _, run := range runs {
		p := run.Preset
		if p == "" {
			p = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.2fs\n",
			run.ID,
			p,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Backend,
			run.Particles,
			run.Ticks,
			run.Wall,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st := storage.New(cfg.DataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(meta.ID)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("backend: %s\n", meta.Backend)
	fmt.Printf("particles: %d\n", meta.Particles)
	fmt.Printf("samples: %d\n", len(samples))
	for name, v := range meta.Metrics {
		fmt.Printf("%s: %.4g\n", name, v)
	}
	fmt.Println()

	plotSamples(samples)

	if svgPath != "" {
		energy := make([]float64, len(samples))
		for i, s := range samples {
			energy[i] = s.KineticEnergy
		}
		if err := os.WriteFile(svgPath, []byte(export.SeriesToSVG(energy, 800, 300, "#00ff88")), 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgPath)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st := storage.New(cfg.DataDir)
	if outPath == "" {
		return st.ExportJSON(os.Stdout, args[0])
	}
	if err := st.ExportJSONFile(outPath, args[0]); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outPath)
	return nil
}

func listBackends(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	for _, name := range compute.Names() {
		status := "available"
		b, err := compute.New(name)
		if err != nil {
			status = err.Error()
		} else {
			if name == compute.BackendAuto {
				status = "selects " + b.Name()
			}
			b.Cleanup()
		}
		fmt.Printf("%-8s %s\n", name, status)
	}
	return nil
}
