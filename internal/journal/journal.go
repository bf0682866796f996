package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of lifecycle event being journaled.
type Type string

const (
	TypeRunStarted       Type = "run_started"
	TypeServiceSpawned   Type = "service_spawned"
	TypeServiceHealthy   Type = "service_healthy"
	TypeServiceUnhealthy Type = "service_unhealthy"
	TypeServiceCrashed   Type = "service_crashed"
	TypeServiceStopped   Type = "service_stopped"
	TypeRunFinished      Type = "run_finished"
)

// Entry is one journal row. RunID groups every entry of a single run.
type Entry struct {
	RunID      string    `json:"run_id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Mode       string    `json:"mode,omitempty"`
	Service    string    `json:"service,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Port       int       `json:"port,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for journal entries. Implementations must be
// safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, e Entry) error
	Close() error
}

// Reader lists recent entries, newest first. Sinks that support
// reading back implement it alongside Sink.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// appendTimeout bounds one write so a stuck database cannot stall
// teardown.
const appendTimeout = 3 * time.Second

// Journal stamps entries with the run identity and writes them through
// the sink. Append failures are logged and swallowed: the journal is an
// audit trail, never a reason to fail the run. A nil *Journal no-ops.
type Journal struct {
	sink   Sink
	runID  string
	mode   string
	logger *slog.Logger
}

func New(sink Sink, mode string, lg *slog.Logger) *Journal {
	if sink == nil {
		return nil
	}
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	return &Journal{sink: sink, runID: uuid.NewString(), mode: mode, logger: lg}
}

// RunID is the identity stamped on every entry of this run.
func (j *Journal) RunID() string {
	if j == nil {
		return ""
	}
	return j.runID
}

// record writes under its own bounded context. The run context is
// already cancelled while teardown entries are written, so it cannot
// be used here.
func (j *Journal) record(e Entry) {
	if j == nil || j.sink == nil {
		return
	}
	e.RunID = j.runID
	e.Mode = j.mode
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := j.sink.Append(ctx, e); err != nil {
		j.logger.Warn("journal append failed",
			slog.String("type", string(e.Type)),
			slog.String("error", err.Error()))
	}
}

func (j *Journal) RunStarted() {
	j.record(Entry{Type: TypeRunStarted})
}

func (j *Journal) ServiceSpawned(name string, pid, port int) {
	j.record(Entry{Type: TypeServiceSpawned, Service: name, PID: pid, Port: port})
}

func (j *Journal) ServiceHealthy(name string, detail string) {
	j.record(Entry{Type: TypeServiceHealthy, Service: name, Detail: detail})
}

func (j *Journal) ServiceUnhealthy(name string, detail string) {
	j.record(Entry{Type: TypeServiceUnhealthy, Service: name, Detail: detail})
}

func (j *Journal) ServiceCrashed(name string, pid int, detail string) {
	j.record(Entry{Type: TypeServiceCrashed, Service: name, PID: pid, Detail: detail})
}

func (j *Journal) ServiceStopped(name string, pid int) {
	j.record(Entry{Type: TypeServiceStopped, Service: name, PID: pid})
}

func (j *Journal) RunFinished(detail string) {
	j.record(Entry{Type: TypeRunFinished, Detail: detail})
}

// Close releases the sink. Nil-safe.
func (j *Journal) Close() error {
	if j == nil || j.sink == nil {
		return nil
	}
	return j.sink.Close()
}
