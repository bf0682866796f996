package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stackrun-dev/stackrun/internal/metrics"
)

// Interval between liveness probes. Fixed: fast enough for dev
// feedback, gentle enough for a service still warming up.
const Interval = time.Second

// probeTimeout bounds a single request so a hung accept loop cannot
// stall the poll iteration.
const probeTimeout = 2 * time.Second

// maxBody caps how much of a health response is read and kept.
const maxBody = 8 << 10

// Outcome is how one liveness wait settled.
type Outcome string

const (
	// OutcomeHealthy: a probe succeeded within the budget.
	OutcomeHealthy Outcome = "healthy"
	// OutcomeUnreachable: budget exhausted, process still running.
	// Non-fatal; the caller warns and proceeds.
	OutcomeUnreachable Outcome = "unreachable"
	// OutcomeProcessExited: the process died before any success.
	OutcomeProcessExited Outcome = "process_exited"
)

// Target is everything one liveness wait needs to know about a
// service. Alive and Exited come from the process supervisor; keeping
// them as plain values avoids coupling the poller to handle types.
type Target struct {
	Name    string
	URL     string
	Timeout time.Duration
	Alive   func() bool
	Exited  <-chan struct{}
}

// Poller drives liveness waits. One instance serves a whole run.
type Poller struct {
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

func New(lg *slog.Logger) *Poller {
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	return &Poller{
		interval: Interval,
		client:   &http.Client{Timeout: probeTimeout},
		logger:   lg,
	}
}

// Probe performs one GET against url and interprets the response.
func (p *Poller) Probe(ctx context.Context, url string) Result {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Status: StatusUnreachable, Latency: time.Since(start)}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Status: StatusUnreachable, Latency: time.Since(start)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	res := Result{
		Latency: time.Since(start),
		Body:    strings.TrimSpace(string(body)),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Status = StatusError
		return res
	}
	res.Status = classifyBody(body)
	return res
}

// WaitHealthy blocks until the target answers a live probe, its budget
// runs out, its process dies, or ctx is cancelled. The returned error
// is non-nil only for ctx cancellation; budget exhaustion is the
// OutcomeUnreachable outcome, not an error.
//
// Every iteration re-checks process existence before probing, so a
// crash during startup is reported as such instead of surfacing as a
// connection refusal.
func (p *Poller) WaitHealthy(ctx context.Context, t Target) (Outcome, Result, error) {
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last Result
	for {
		if t.Alive != nil && !t.Alive() {
			return settle(t, OutcomeProcessExited, start), last, nil
		}

		last = p.Probe(waitCtx, t.URL)
		metrics.ObserveProbeDuration(t.Name, last.Latency.Seconds())
		if last.Live() {
			if last.Status == StatusDegraded {
				p.logger.Warn("service answered degraded, accepting for liveness",
					slog.String("service", t.Name),
					slog.String("body", last.Body))
			}
			return settle(t, OutcomeHealthy, start), last, nil
		}
		p.logger.Debug("liveness probe not ready",
			slog.String("service", t.Name),
			slog.String("status", string(last.Status)))

		select {
		case <-waitCtx.Done():
			outcome := settle(t, OutcomeUnreachable, start)
			if ctx.Err() != nil {
				return outcome, last, ctx.Err()
			}
			return outcome, last, nil
		case <-t.Exited:
			return settle(t, OutcomeProcessExited, start), last, nil
		case <-ticker.C:
		}
	}
}

func settle(t Target, o Outcome, start time.Time) Outcome {
	metrics.IncProbe(t.Name, string(o))
	metrics.ObserveHealthWait(t.Name, string(o), time.Since(start).Seconds())
	return o
}
