package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("backend")
	IncStart("backend")
	IncStop("backend")
	IncCrash("frontend")
	SetRunning("backend", true)
	IncProbe("backend", "healthy")
	ObserveProbeDuration("backend", 0.02)
	ObserveHealthWait("backend", "healthy", 1.5)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"stackrun_service_starts_total":          false,
		"stackrun_service_stops_total":           false,
		"stackrun_service_crashes_total":         false,
		"stackrun_service_running":               false,
		"stackrun_health_probes_total":           false,
		"stackrun_health_probe_duration_seconds": false,
		"stackrun_health_wait_seconds":           false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncStart("backend")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "stackrun_service_starts_total") {
		t.Fatalf("metrics output missing starts_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncStart("c")
			IncCrash("c")
			IncStop("c")
			IncProbe("c", "unreachable")
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	IncStart("test")
	IncStop("test")
	IncCrash("test")
	SetRunning("test", false)
	IncProbe("test", "healthy")
	ObserveProbeDuration("test", 1.0)
	ObserveHealthWait("test", "unreachable", 30)
	// No panic means the no-op guard holds.
}

func TestRegisterError(t *testing.T) {
	errorRegisterer := &errorRegisterer{shouldError: true}

	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(errorRegisterer)
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
}

type errorRegisterer struct {
	shouldError bool
}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	if e.shouldError {
		return errors.New("test registration error")
	}
	return nil
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }

func TestResourceSampler_SamplesSelf(t *testing.T) {
	rs := NewResourceSampler(time.Second, func() []TrackedProcess {
		return []TrackedProcess{{Name: "self", PID: os.Getpid()}}
	})
	rs.sampleOnce()

	latest := rs.Latest()
	if len(latest) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(latest))
	}
	if latest[0].Name != "self" || latest[0].MemoryMB <= 0 {
		t.Fatalf("implausible sample: %+v", latest[0])
	}
}

func TestResourceSampler_DropsVanished(t *testing.T) {
	pids := []TrackedProcess{{Name: "self", PID: os.Getpid()}}
	rs := NewResourceSampler(time.Second, func() []TrackedProcess { return pids })
	rs.sampleOnce()
	if len(rs.Latest()) != 1 {
		t.Fatalf("expected a sample")
	}

	pids = nil
	rs.sampleOnce()
	if len(rs.Latest()) != 0 {
		t.Fatalf("stale sample kept after process vanished")
	}
}

func TestResourceSampler_ClampsInterval(t *testing.T) {
	rs := NewResourceSampler(10*time.Millisecond, func() []TrackedProcess { return nil })
	if rs.interval != time.Second {
		t.Fatalf("interval not clamped: %v", rs.interval)
	}
}
