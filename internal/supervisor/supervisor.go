package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/stackrun-dev/stackrun/internal/env"
	"github.com/stackrun-dev/stackrun/internal/logger"
	"github.com/stackrun-dev/stackrun/internal/metrics"
	"github.com/stackrun-dev/stackrun/internal/registry"
)

// exitBuffer bounds how many unconsumed exits the monitor goroutines
// can park before blocking. Each service exits at most once.
const exitBuffer = 64

// Supervisor owns every spawned handle for one run. It is an explicit
// object handed around by reference; there is no process-wide registry
// of children.
type Supervisor struct {
	logs   logger.FileConfig
	env    *env.Table
	logger *slog.Logger

	mu     sync.Mutex
	order  []*Service
	byName map[string]*Service
	exitCh chan *Service
}

// New builds a Supervisor. A nil table spawns with the orchestrator's
// own environment; a nil logger discards supervision chatter.
func New(logs logger.FileConfig, table *env.Table, lg *slog.Logger) *Supervisor {
	if table == nil {
		table = env.New()
	}
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{
		logs:   logs,
		env:    table,
		logger: lg,
		byName: make(map[string]*Service),
		exitCh: make(chan *Service, exitBuffer),
	}
}

// Spawn starts the descriptor's process in its own process group with
// output redirected to its log file. It returns once the OS process
// exists; health is the poller's business, not Spawn's.
func (s *Supervisor) Spawn(d registry.Descriptor) (*Service, error) {
	if err := checkPortFree(d.Name, d.Port); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if prev, ok := s.byName[d.Name]; ok && !prev.State().Terminal() {
		s.mu.Unlock()
		return nil, fmt.Errorf("service %s already running", d.Name)
	}
	s.mu.Unlock()

	svc := newService(d)
	// #nosec G204 -- argv comes from the validated registry, never a shell string
	cmd := exec.Command(d.Command[0], d.Command[1:]...)
	if d.WorkDir != "" {
		cmd.Dir = d.WorkDir
	}
	cmd.Env = s.env.Merge(d.Env)
	configureSysProcAttr(cmd)

	w, logPath := s.serviceWriter(d)
	if w != nil {
		cmd.Stdout = w
		cmd.Stderr = w
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}

	if err := cmd.Start(); err != nil {
		if w != nil {
			_ = w.Close()
		}
		return nil, fmt.Errorf("start %s: %w", d.Name, err)
	}
	svc.setStarted(cmd, w, logPath)

	s.mu.Lock()
	s.order = append(s.order, svc)
	s.byName[d.Name] = svc
	s.mu.Unlock()

	metrics.IncStart(d.Name)
	metrics.SetRunning(d.Name, true)
	s.logger.Info("service spawned",
		slog.String("service", d.Name),
		slog.Int("pid", svc.PID()),
		slog.Int("port", d.Port),
		slog.String("log", logPath))

	go s.monitor(svc)
	return svc, nil
}

// monitor is the single goroutine allowed to call Wait for a service.
func (s *Supervisor) monitor(svc *Service) {
	err := svc.cmd.Wait()
	svc.finalize(err)
	metrics.SetRunning(svc.Name(), false)
	switch svc.State() {
	case StateStopped:
		metrics.IncStop(svc.Name())
		s.logger.Debug("service reaped after stop", slog.String("service", svc.Name()))
	default:
		metrics.IncCrash(svc.Name())
		s.logger.Warn("service exited",
			slog.String("service", svc.Name()),
			slog.String("error", errString(err)))
	}
	s.exitCh <- svc
}

func errString(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

// serviceWriter resolves the rotating writer and the path it writes to.
func (s *Supervisor) serviceWriter(d registry.Descriptor) (io.WriteCloser, string) {
	path := d.LogPath
	if path == "" && s.logs.Dir != "" {
		path = filepath.Join(s.logs.Dir, d.Name+".log")
	}
	if path == "" {
		return nil, ""
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o750)
	return s.logs.Writer(path), path
}

// Lookup returns the tracked service by name.
func (s *Supervisor) Lookup(name string) (*Service, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.byName[name]
	return svc, ok
}

// Services returns the tracked handles in start order.
func (s *Supervisor) Services() []*Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Service(nil), s.order...)
}

// Statuses snapshots every tracked service in start order.
func (s *Supervisor) Statuses() []Status {
	svcs := s.Services()
	out := make([]Status, 0, len(svcs))
	for _, svc := range svcs {
		out = append(out, svc.Snapshot())
	}
	return out
}

// WaitAny blocks until any tracked service exits or ctx is cancelled.
// Exits that happened before the call are not lost.
func (s *Supervisor) WaitAny(ctx context.Context) (*Service, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case svc := <-s.exitCh:
		return svc, nil
	}
}

// StopAll tears down every tracked service in reverse start order.
// Safe to call repeatedly; already-terminal services are skipped.
func (s *Supervisor) StopAll(grace time.Duration) {
	svcs := s.Services()
	for i := len(svcs) - 1; i >= 0; i-- {
		svc := svcs[i]
		if svc.State().Terminal() {
			continue
		}
		s.logger.Info("stopping service", slog.String("service", svc.Name()))
		_ = svc.Stop(grace)
	}
}

// AllTerminal reports whether every tracked service has finished.
func (s *Supervisor) AllTerminal() bool {
	for _, svc := range s.Services() {
		if !svc.State().Terminal() {
			return false
		}
	}
	return true
}

// LivePIDs returns the PIDs of tracked services that still exist,
// mainly for teardown verification.
func (s *Supervisor) LivePIDs() []int {
	var out []int
	for _, svc := range s.Services() {
		if svc.Alive() {
			out = append(out, svc.PID())
		}
	}
	return out
}
