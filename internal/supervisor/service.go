package supervisor

import (
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/stackrun-dev/stackrun/internal/registry"
)

// State is the lifecycle position of a tracked service. Crashed and
// Stopped are terminal; nothing restarts implicitly within a run.
type State string

const (
	StateStarting  State = "starting"
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
	StateCrashed   State = "crashed"
	StateStopped   State = "stopped"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool { return s == StateCrashed || s == StateStopped }

// Status is an immutable snapshot of one tracked service.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitError string    `json:"exit_error,omitempty"`
	LogPath   string    `json:"log_path,omitempty"`
}

// Service is one spawned OS process under supervision. All fields are
// guarded by mu; the monitor goroutine is the only caller of cmd.Wait.
type Service struct {
	desc registry.Descriptor

	mu        sync.Mutex
	cmd       *exec.Cmd
	state     State
	pid       int
	startedAt time.Time
	stoppedAt time.Time
	exitErr   error
	stopping  bool
	waitDone  chan struct{}
	logCloser io.WriteCloser
	logPath   string
}

func newService(d registry.Descriptor) *Service {
	return &Service{desc: d, state: StateStarting, waitDone: make(chan struct{})}
}

func (s *Service) Name() string                    { return s.desc.Name }
func (s *Service) Descriptor() registry.Descriptor { return s.desc }

// Done is closed once the monitor has reaped the process.
func (s *Service) Done() <-chan struct{} { return s.waitDone }

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

func (s *Service) ExitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// Snapshot returns a copy of the current status.
func (s *Service) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Name:      s.desc.Name,
		State:     s.state,
		PID:       s.pid,
		Port:      s.desc.Port,
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
		LogPath:   s.logPath,
	}
	if s.exitErr != nil {
		st.ExitError = s.exitErr.Error()
	}
	return st
}

func (s *Service) setStarted(cmd *exec.Cmd, logCloser io.WriteCloser, logPath string) {
	s.mu.Lock()
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.startedAt = time.Now()
	s.logCloser = logCloser
	s.logPath = logPath
	s.mu.Unlock()
}

// MarkHealthy records the first successful liveness probe. Only valid
// from Starting; terminal states win any race with the poller.
func (s *Service) MarkHealthy() {
	s.mu.Lock()
	if s.state == StateStarting {
		s.state = StateHealthy
	}
	s.mu.Unlock()
}

// MarkUnhealthy records a liveness budget overrun. The process stays
// tracked and running.
func (s *Service) MarkUnhealthy() {
	s.mu.Lock()
	if s.state == StateStarting {
		s.state = StateUnhealthy
	}
	s.mu.Unlock()
}

// finalize is called exactly once by the monitor after cmd.Wait
// returns. A requested stop lands in Stopped, anything else in Crashed.
func (s *Service) finalize(err error) {
	s.mu.Lock()
	s.stoppedAt = time.Now()
	s.exitErr = err
	if s.stopping {
		s.state = StateStopped
	} else {
		s.state = StateCrashed
	}
	closer := s.logCloser
	s.logCloser = nil
	s.mu.Unlock()

	if closer != nil {
		_ = closer.Close()
	}
	close(s.waitDone)
}

// Alive probes the OS for process existence. A reaped or zombie child
// is not alive even if the PID is still visible.
func (s *Service) Alive() bool {
	s.mu.Lock()
	st := s.state
	pid := s.pid
	s.mu.Unlock()
	if st.Terminal() || pid == 0 {
		return false
	}
	return pidAlive(pid)
}

// Stop requests termination and blocks until the monitor reaps the
// process or the grace period plus escalation lapses. Idempotent: a
// dead or already-stopping service never receives a second TERM.
func (s *Service) Stop(grace time.Duration) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	alreadyStopping := s.stopping
	s.stopping = true
	pid := s.pid
	s.mu.Unlock()

	if pid == 0 {
		return nil
	}
	if !alreadyStopping {
		_ = terminateTree(pid)
	}
	select {
	case <-s.waitDone:
	case <-time.After(grace):
		_ = killTree(pid)
		select {
		case <-s.waitDone:
		case <-time.After(200 * time.Millisecond):
			// monitor reaps eventually; do not block teardown on it
		}
	}
	return nil
}

// Kill escalates straight to SIGKILL without a grace period.
func (s *Service) Kill() error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	pid := s.pid
	s.mu.Unlock()

	if pid == 0 {
		return nil
	}
	_ = killTree(pid)
	select {
	case <-s.waitDone:
	case <-time.After(200 * time.Millisecond):
	}
	return nil
}
