package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stackrun-dev/stackrun/internal/config"
	"github.com/stackrun-dev/stackrun/internal/journal"
	"github.com/stackrun-dev/stackrun/internal/journal/factory"
	"github.com/stackrun-dev/stackrun/internal/metrics"
	"github.com/stackrun-dev/stackrun/internal/orchestrator"
	"github.com/stackrun-dev/stackrun/internal/registry"
	"github.com/stackrun-dev/stackrun/internal/server"
)

const resourceSampleEvery = 5 * time.Second

// runStack is the root command: resolve the mode, start the stack and
// block until the run ends. A signal-driven shutdown returns nil so the
// process exits 0; everything else surfaces as an error.
func runStack(flags *GlobalFlags, args []string) error {
	modeArg := "all"
	if len(args) > 0 {
		modeArg = args[0]
	}
	mode, err := registry.ParseMode(modeArg)
	if err != nil {
		return err
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}
	lg := cfg.Log.NewSlogger()

	sink, err := factory.New(cfg.Journal)
	if err != nil {
		lg.Warn("journal disabled", slog.String("error", err.Error()))
		sink = nil
	}
	jrn := journal.New(sink, string(mode), lg)
	defer func() { _ = jrn.Close() }()

	orc, err := orchestrator.New(cfg, jrn, lg)
	if err != nil {
		return err
	}

	ctx, stop := orchestrator.NotifyShutdown(context.Background(), lg)
	defer stop()

	if cfg.Metrics.Listen != "" {
		startMetrics(ctx, cfg.Metrics.Listen, orc, lg)
	}
	if cfg.API.Listen != "" {
		api, err := server.NewServer(cfg.API.Listen, cfg.API.BasePath, orc)
		if err != nil {
			lg.Warn("control api failed to start", slog.String("error", err.Error()))
		} else {
			lg.Info("control api listening",
				slog.String("addr", cfg.API.Listen),
				slog.String("base", cfg.API.BasePath))
			defer func() { _ = api.Close() }()
		}
	}

	err = orc.Run(ctx, mode)
	if orchestrator.IsShutdownErr(err) {
		return nil
	}
	return err
}

// startMetrics registers the collectors, serves promhttp on addr, and
// samples CPU/memory for the tracked services until ctx ends.
func startMetrics(ctx context.Context, addr string, orc *orchestrator.Orchestrator, lg *slog.Logger) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		lg.Warn("metrics registration failed", slog.String("error", err.Error()))
		return
	}
	sampler := metrics.NewResourceSampler(resourceSampleEvery, func() []metrics.TrackedProcess {
		sts := orc.Supervisor().Statuses()
		out := make([]metrics.TrackedProcess, 0, len(sts))
		for _, st := range sts {
			if st.PID > 0 && st.StoppedAt.IsZero() {
				out = append(out, metrics.TrackedProcess{Name: st.Name, PID: st.PID})
			}
		}
		return out
	})
	go sampler.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("metrics listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Warn("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}
