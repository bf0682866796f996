package health

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testPoller(lg *slog.Logger) *Poller {
	p := New(lg)
	p.interval = 10 * time.Millisecond
	return p
}

func serveStatus(t *testing.T, code int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeClassification(t *testing.T) {
	cases := []struct {
		name string
		code int
		body string
		want Status
		live bool
	}{
		{"empty 200", http.StatusOK, "", StatusOK, true},
		{"json ok", http.StatusOK, `{"status":"ok"}`, StatusOK, true},
		{"json no status field", http.StatusOK, `{"uptime":12}`, StatusOK, true},
		{"json degraded", http.StatusOK, `{"status":"degraded"}`, StatusDegraded, true},
		{"json error", http.StatusOK, `{"status":"error"}`, StatusError, false},
		{"json unknown status", http.StatusOK, `{"status":"weird"}`, StatusError, false},
		{"html body", http.StatusOK, "<!doctype html><title>dev</title>", StatusOK, true},
		{"server error", http.StatusInternalServerError, "boom", StatusError, false},
		{"accepted 202", http.StatusAccepted, "", StatusOK, true},
	}
	p := testPoller(nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serveStatus(t, tc.code, tc.body)
			res := p.Probe(context.Background(), srv.URL)
			if res.Status != tc.want {
				t.Fatalf("status = %q, want %q", res.Status, tc.want)
			}
			if res.Live() != tc.live {
				t.Fatalf("live = %v, want %v", res.Live(), tc.live)
			}
			if res.Latency <= 0 {
				t.Fatalf("latency not measured: %v", res.Latency)
			}
		})
	}
}

func TestProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	res := testPoller(nil).Probe(context.Background(), url)
	if res.Status != StatusUnreachable {
		t.Fatalf("status = %q, want unreachable", res.Status)
	}
	if res.Live() {
		t.Fatal("unreachable must not be live")
	}
}

func TestWaitHealthyImmediate(t *testing.T) {
	srv := serveStatus(t, http.StatusOK, `{"status":"ok"}`)
	outcome, res, err := testPoller(nil).WaitHealthy(context.Background(), Target{
		Name:    "backend",
		URL:     srv.URL,
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeHealthy {
		t.Fatalf("outcome = %q, want healthy", outcome)
	}
	if res.Status != StatusOK {
		t.Fatalf("result status = %q", res.Status)
	}
}

func TestWaitHealthyEventualSuccess(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	outcome, _, err := testPoller(nil).WaitHealthy(context.Background(), Target{
		Name:    "backend",
		URL:     srv.URL,
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeHealthy {
		t.Fatalf("outcome = %q, want healthy", outcome)
	}
	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 probes, got %d", calls.Load())
	}
}

func TestWaitHealthyDegradedAcceptedAndWarned(t *testing.T) {
	srv := serveStatus(t, http.StatusOK, `{"status":"degraded"}`)
	var buf bytes.Buffer
	lg := slog.New(slog.NewTextHandler(&buf, nil))

	outcome, res, err := testPoller(lg).WaitHealthy(context.Background(), Target{
		Name:    "backend",
		URL:     srv.URL,
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeHealthy {
		t.Fatalf("outcome = %q, want healthy", outcome)
	}
	if res.Status != StatusDegraded {
		t.Fatalf("result status = %q, want degraded", res.Status)
	}
	if !strings.Contains(buf.String(), "degraded") {
		t.Fatalf("expected degraded warning in log, got: %s", buf.String())
	}
}

func TestWaitHealthyBudgetExhausted(t *testing.T) {
	srv := serveStatus(t, http.StatusServiceUnavailable, "")
	start := time.Now()
	outcome, res, err := testPoller(nil).WaitHealthy(context.Background(), Target{
		Name:    "backend",
		URL:     srv.URL,
		Timeout: 150 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error, got: %v", err)
	}
	if outcome != OutcomeUnreachable {
		t.Fatalf("outcome = %q, want unreachable", outcome)
	}
	if res.Status != StatusError {
		t.Fatalf("last result status = %q, want error", res.Status)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("wait did not respect budget: %v", elapsed)
	}
}

func TestWaitHealthyProcessNotAlive(t *testing.T) {
	srv := serveStatus(t, http.StatusOK, "")
	outcome, _, err := testPoller(nil).WaitHealthy(context.Background(), Target{
		Name:    "backend",
		URL:     srv.URL,
		Timeout: time.Second,
		Alive:   func() bool { return false },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeProcessExited {
		t.Fatalf("outcome = %q, want process_exited", outcome)
	}
}

func TestWaitHealthyExitDuringWait(t *testing.T) {
	srv := serveStatus(t, http.StatusServiceUnavailable, "")
	exited := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(exited)
	}()

	outcome, _, err := testPoller(nil).WaitHealthy(context.Background(), Target{
		Name:    "backend",
		URL:     srv.URL,
		Timeout: 5 * time.Second,
		Alive:   func() bool { return true },
		Exited:  exited,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeProcessExited {
		t.Fatalf("outcome = %q, want process_exited", outcome)
	}
}

func TestWaitHealthyParentCancel(t *testing.T) {
	srv := serveStatus(t, http.StatusServiceUnavailable, "")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome, _, err := testPoller(nil).WaitHealthy(ctx, Target{
		Name:    "backend",
		URL:     srv.URL,
		Timeout: 10 * time.Second,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if outcome != OutcomeUnreachable {
		t.Fatalf("outcome = %q, want unreachable", outcome)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cancellation was not prompt: %v", elapsed)
	}
}
