package stackrun

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	cfg "github.com/stackrun-dev/stackrun/internal/config"
	"github.com/stackrun-dev/stackrun/internal/journal"
	"github.com/stackrun-dev/stackrun/internal/metrics"
	"github.com/stackrun-dev/stackrun/internal/orchestrator"
	"github.com/stackrun-dev/stackrun/internal/registry"
	iapi "github.com/stackrun-dev/stackrun/internal/server"
	"github.com/stackrun-dev/stackrun/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Descriptor = registry.Descriptor

type Mode = registry.Mode

const (
	ModeAll      = registry.ModeAll
	ModeBackend  = registry.ModeBackend
	ModeFrontend = registry.ModeFrontend
	ModeDocker   = registry.ModeDocker
)

type Status = supervisor.Status

type State = supervisor.State

type JournalEntry = journal.Entry

type JournalSink = journal.Sink

// Options configures one embedded run. The zero value runs the stock
// stack in mode "all" with health verification on.
type Options struct {
	Mode          Mode         // default ModeAll
	Services      []Descriptor // custom registry; empty uses the stock stack
	BackendPort   int
	FrontendPort  int
	HealthTimeout time.Duration // default 30s
	DisableHealth bool
	RunDir        string // logs and the default journal live here
	Logger        *slog.Logger
	Journal       JournalSink // optional; nil journals nothing
}

// Orchestrator is a thin facade over internal/orchestrator for
// embedding. One Orchestrator drives one run.
type Orchestrator struct {
	inner *orchestrator.Orchestrator
	mode  Mode
}

// New builds an orchestrator from Options. Environment overrides
// (BACKEND_PORT, HEALTH_CHECK_TIMEOUT, ...) apply before Options do.
func New(opts Options) (*Orchestrator, error) {
	c, err := cfg.Load("")
	if err != nil {
		return nil, err
	}
	if opts.RunDir != "" {
		c.RunDir = opts.RunDir
		c.Log.File.Dir = ""
		c.Journal.DSN = ""
	}
	if opts.BackendPort != 0 {
		c.Backend.Port = opts.BackendPort
	}
	if opts.FrontendPort != 0 {
		c.Frontend.Port = opts.FrontendPort
	}
	if opts.HealthTimeout > 0 {
		c.Health.TimeoutSec = int(opts.HealthTimeout / time.Second)
	}
	if opts.DisableHealth {
		c.Health.Enabled = false
	}
	for _, d := range opts.Services {
		c.Services = append(c.Services, cfg.ServiceConfig{
			Name:      d.Name,
			Role:      string(d.Role),
			Command:   d.Command,
			WorkDir:   d.WorkDir,
			Env:       d.Env,
			Port:      d.Port,
			LivePath:  d.LivePath,
			ReadyPath: d.ReadyPath,
			LogPath:   d.LogPath,
			Tool:      d.Tool,
			Hint:      d.Hint,
		})
	}
	c.Normalize()

	mode := opts.Mode
	if mode == "" {
		mode = ModeAll
	}
	lg := opts.Logger
	if lg == nil {
		lg = c.Log.NewSlogger()
	}
	jrn := journal.New(opts.Journal, string(mode), lg)
	inner, err := orchestrator.New(c, jrn, lg)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{inner: inner, mode: mode}, nil
}

// Run starts the configured mode and blocks until the run ends. See
// the run command for the error-to-exit-code mapping.
func (o *Orchestrator) Run(ctx context.Context) error { return o.inner.Run(ctx, o.mode) }

// Statuses snapshots every tracked service.
func (o *Orchestrator) Statuses() []Status { return o.inner.Supervisor().Statuses() }

// StopService stops one service by name.
func (o *Orchestrator) StopService(name string) error { return o.inner.StopService(name) }

// Shutdown tears the whole run down; Run then returns nil.
func (o *Orchestrator) Shutdown() { o.inner.Shutdown("requested by embedder") }

// Handler returns the control API routes for mounting inside any mux
// or framework.
func (o *Orchestrator) Handler(basePath string) http.Handler {
	return iapi.NewRouter(o.inner, basePath).Handler()
}

// ServeAPI starts the standalone control API server on addr.
func (o *Orchestrator) ServeAPI(addr, basePath string) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, o.inner)
}

// NotifyShutdown wires SIGINT/SIGTERM to context cancellation the way
// the stackrun binary does.
func NotifyShutdown(parent context.Context, lg *slog.Logger) (context.Context, func()) {
	return orchestrator.NotifyShutdown(parent, lg)
}

// IsShutdownErr reports whether a Run error only reflects a requested
// shutdown.
func IsShutdownErr(err error) bool { return orchestrator.IsShutdownErr(err) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
