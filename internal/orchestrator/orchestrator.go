package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stackrun-dev/stackrun/internal/config"
	"github.com/stackrun-dev/stackrun/internal/deps"
	"github.com/stackrun-dev/stackrun/internal/env"
	"github.com/stackrun-dev/stackrun/internal/health"
	"github.com/stackrun-dev/stackrun/internal/journal"
	"github.com/stackrun-dev/stackrun/internal/registry"
	"github.com/stackrun-dev/stackrun/internal/supervisor"
)

// stopGrace is how long a service gets between SIGTERM and SIGKILL
// during teardown.
const stopGrace = 5 * time.Second

// CrashError reports a service that exited without a stop request.
// The run is torn down and fails.
type CrashError struct {
	Service string
	Err     error
}

func (e *CrashError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("service %s exited unexpectedly", e.Service)
	}
	return fmt.Sprintf("service %s exited unexpectedly: %v", e.Service, e.Err)
}

func (e *CrashError) Unwrap() error { return e.Err }

// Orchestrator drives one run: spawn the mode's services, verify their
// health endpoints, hold steady, and tear everything down on the way
// out no matter why the run ends.
type Orchestrator struct {
	cfg    config.Config
	reg    *registry.Registry
	sup    *supervisor.Supervisor
	poller *health.Poller
	jrn    *journal.Journal
	logger *slog.Logger

	stopOnce sync.Once

	mu        sync.Mutex
	journaled map[string]bool
}

// New wires an orchestrator from effective configuration. The journal
// may be nil; everything else is built here.
func New(cfg config.Config, jrn *journal.Journal, lg *slog.Logger) (*Orchestrator, error) {
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	globalEnv, err := cfg.GlobalEnv()
	if err != nil {
		return nil, &registry.ConfigError{Reason: "environment files: " + err.Error()}
	}
	table := env.New()
	table.FromOS()
	table.SetAll(globalEnv)

	return &Orchestrator{
		cfg:       cfg,
		reg:       reg,
		sup:       supervisor.New(cfg.Log.File, table, lg),
		poller:    health.New(lg),
		jrn:       jrn,
		logger:    lg,
		journaled: make(map[string]bool),
	}, nil
}

// Registry exposes the resolved service table, mainly for doctor and
// status commands.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// Supervisor exposes the live process table for the control API.
func (o *Orchestrator) Supervisor() *supervisor.Supervisor { return o.sup }

// Run executes one full run of the given mode and blocks until the run
// ends. Return values map to process exit semantics:
//   - nil: every service stopped on request, nothing left running
//   - context.Canceled / DeadlineExceeded: shutdown signal, teardown clean
//   - *CrashError: a service died on its own
//   - *registry.ConfigError, *deps.MissingError, *supervisor.PortConflictError:
//     startup failed; anything already spawned has been torn down
func (o *Orchestrator) Run(ctx context.Context, mode registry.Mode) error {
	descs, err := o.reg.ResolveMode(mode)
	if err != nil {
		return err
	}
	// Tool preflight comes first: nothing spawns when anything is missing.
	for _, d := range descs {
		if err := deps.Check(d); err != nil {
			return err
		}
	}

	o.logger.Info("starting run",
		slog.String("mode", string(mode)),
		slog.Int("services", len(descs)),
		slog.String("run_id", o.jrn.RunID()))
	o.jrn.RunStarted()

	for _, d := range descs {
		if err := o.startOne(ctx, d); err != nil {
			if IsShutdownErr(err) {
				o.shutdown("signal")
				o.jrn.RunFinished("signal during startup")
			} else {
				o.shutdown("startup failed")
				o.jrn.RunFinished("startup failed: " + err.Error())
			}
			return err
		}
		if ctx.Err() != nil {
			o.shutdown("signal")
			o.jrn.RunFinished("signal during startup")
			return ctx.Err()
		}
	}
	o.logger.Info("all services up", slog.String("mode", string(mode)))

	return o.hold(ctx)
}

// startOne spawns a descriptor and, when enabled, blocks on its
// liveness verification. Unreachable within budget is a warning, not a
// failure; a death during the wait is a crash.
func (o *Orchestrator) startOne(ctx context.Context, d registry.Descriptor) error {
	svc, err := o.sup.Spawn(d)
	if err != nil {
		return err
	}
	o.jrn.ServiceSpawned(d.Name, svc.PID(), d.Port)

	if !o.cfg.Health.Enabled {
		o.logger.Info("health verification disabled, not probing",
			slog.String("service", d.Name))
		return nil
	}

	outcome, res, err := o.poller.WaitHealthy(ctx, health.Target{
		Name:    d.Name,
		URL:     d.LivenessURL(),
		Timeout: o.cfg.Health.Timeout(),
		Alive:   svc.Alive,
		Exited:  svc.Done(),
	})
	if err != nil {
		return err
	}
	switch outcome {
	case health.OutcomeHealthy:
		svc.MarkHealthy()
		o.logger.Info("service healthy",
			slog.String("service", d.Name),
			slog.String("status", string(res.Status)),
			slog.Duration("latency", res.Latency))
		o.jrn.ServiceHealthy(d.Name, string(res.Status))
		o.probeReadiness(ctx, d)
	case health.OutcomeUnreachable:
		svc.MarkUnhealthy()
		o.logger.Warn("service not verifiably healthy within budget, continuing",
			slog.String("service", d.Name),
			slog.String("url", d.LivenessURL()),
			slog.Duration("budget", o.cfg.Health.Timeout()))
		o.jrn.ServiceUnhealthy(d.Name, "liveness budget exhausted")
	case health.OutcomeProcessExited:
		<-svc.Done()
		exitErr := svc.ExitErr()
		o.markJournaled(d.Name)
		o.jrn.ServiceCrashed(d.Name, svc.PID(), errText(exitErr))
		return &CrashError{Service: d.Name, Err: exitErr}
	}
	return nil
}

// probeReadiness fires the optional one-shot readiness check. Purely
// informational: a cold cache or pending migration should be visible,
// never fatal.
func (o *Orchestrator) probeReadiness(ctx context.Context, d registry.Descriptor) {
	url := d.ReadinessURL()
	if url == "" {
		return
	}
	res := o.poller.Probe(ctx, url)
	if res.Live() {
		o.logger.Debug("readiness confirmed", slog.String("service", d.Name))
		return
	}
	o.logger.Warn("service live but not ready",
		slog.String("service", d.Name),
		slog.String("url", url),
		slog.String("status", string(res.Status)))
}

// hold blocks in steady state until the run ends: a shutdown signal, a
// crash, or every service stopped through the control API.
func (o *Orchestrator) hold(ctx context.Context) error {
	for {
		svc, err := o.sup.WaitAny(ctx)
		if err != nil {
			// signal-driven shutdown
			o.shutdown("signal")
			o.jrn.RunFinished("signal")
			return err
		}
		if svc.State() == supervisor.StateStopped {
			if !o.wasJournaled(svc.Name()) {
				o.markJournaled(svc.Name())
				o.jrn.ServiceStopped(svc.Name(), svc.PID())
			}
			if o.sup.AllTerminal() {
				o.logger.Info("all services stopped, run complete")
				o.jrn.RunFinished("all services stopped")
				return nil
			}
			continue
		}

		exitErr := svc.ExitErr()
		o.logger.Error("service crashed, stopping run",
			slog.String("service", svc.Name()),
			slog.String("error", errText(exitErr)))
		o.markJournaled(svc.Name())
		o.jrn.ServiceCrashed(svc.Name(), svc.PID(), errText(exitErr))
		o.shutdown("crash")
		o.jrn.RunFinished("crash: " + svc.Name())
		return &CrashError{Service: svc.Name(), Err: exitErr}
	}
}

// shutdown tears down every tracked service exactly once, in reverse
// start order, and verifies nothing survived.
func (o *Orchestrator) shutdown(reason string) {
	o.stopOnce.Do(func() {
		o.logger.Info("stopping services", slog.String("reason", reason))
		o.sup.StopAll(stopGrace)
		for _, st := range o.sup.Statuses() {
			if st.State == supervisor.StateStopped && !o.wasJournaled(st.Name) {
				o.markJournaled(st.Name)
				o.jrn.ServiceStopped(st.Name, st.PID)
			}
		}
		if pids := o.sup.LivePIDs(); len(pids) > 0 {
			o.logger.Error("processes survived teardown", slog.Any("pids", pids))
		} else {
			o.logger.Info("teardown complete, no processes left behind")
		}
	})
}

// StopService stops one tracked service on request, for the control
// API. Unknown names are an error; stopping a finished service is not.
func (o *Orchestrator) StopService(name string) error {
	svc, ok := o.sup.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown service: %s", name)
	}
	return svc.Stop(stopGrace)
}

// Shutdown requests a full teardown of the run. Run observes the
// stopped services and returns nil once everything is terminal.
func (o *Orchestrator) Shutdown(reason string) {
	o.shutdown(reason)
}

func (o *Orchestrator) wasJournaled(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.journaled[name]
}

func (o *Orchestrator) markJournaled(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.journaled[name] = true
}

func errText(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

// IsShutdownErr reports whether err only reflects a requested shutdown
// rather than a failure.
func IsShutdownErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
