package stackrun

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestFacadeEmbeddedRun(t *testing.T) {
	requireUnix(t)
	opts := Options{
		Mode:          ModeBackend,
		DisableHealth: true,
		RunDir:        t.TempDir(),
		Logger:        slog.New(slog.DiscardHandler),
		Services: []Descriptor{{
			Name:     "svc",
			Role:     "backend",
			Command:  []string{"sleep", "30"},
			Port:     freePort(t),
			LivePath: "/health/live",
		}},
	}
	o, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- o.Run(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && len(o.Statuses()) == 0 {
		time.Sleep(20 * time.Millisecond)
	}
	if len(o.Statuses()) != 1 {
		t.Fatal("service never spawned")
	}

	if err := o.StopService("svc"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("all-stopped run should end clean, got: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not end")
	}
}

func TestFacadeShutdownEndsRun(t *testing.T) {
	requireUnix(t)
	o, err := New(Options{
		Mode:          ModeBackend,
		DisableHealth: true,
		RunDir:        t.TempDir(),
		Logger:        slog.New(slog.DiscardHandler),
		Services: []Descriptor{{
			Name:     "svc",
			Role:     "backend",
			Command:  []string{"sleep", "30"},
			Port:     freePort(t),
			LivePath: "/health/live",
		}},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- o.Run(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && len(o.Statuses()) == 0 {
		time.Sleep(20 * time.Millisecond)
	}
	o.Shutdown()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("shutdown run should end clean, got: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not end")
	}
}

func TestFacadeHandlerMountable(t *testing.T) {
	o, err := New(Options{
		DisableHealth: true,
		RunDir:        t.TempDir(),
		Logger:        slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	h := o.Handler("/api")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sts []Status
	if err := json.Unmarshal(rec.Body.Bytes(), &sts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sts) != 0 {
		t.Fatalf("no services should be tracked before Run, got %d", len(sts))
	}
}

func TestFacadeStopUnknownService(t *testing.T) {
	o, err := New(Options{
		DisableHealth: true,
		RunDir:        t.TempDir(),
		Logger:        slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := o.StopService("ghost"); err == nil {
		t.Fatal("unknown service should error")
	}
}

func TestRegisterMetricsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("second register should be a no-op: %v", err)
	}
}
