package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func stubAPI(t *testing.T) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(HealthzResponse{Status: "ok", Services: 2})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		if name := r.URL.Query().Get("name"); name != "" {
			if name != "backend" {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "unknown service: " + name})
				return
			}
			_ = json.NewEncoder(w).Encode(ServiceStatus{Name: "backend", State: "healthy", PID: 42, Port: 8000})
			return
		}
		_ = json.NewEncoder(w).Encode([]ServiceStatus{
			{Name: "backend", State: "healthy", PID: 42, Port: 8000},
			{Name: "frontend", State: "starting", PID: 43, Port: 5173},
		})
	})
	mux.HandleFunc("POST /stop", func(w http.ResponseWriter, r *http.Request) {
		if name := r.URL.Query().Get("name"); name == "ghost" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "unknown service: ghost"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL})
}

func TestClientStatuses(t *testing.T) {
	c := stubAPI(t)
	sts, err := c.Statuses(context.Background())
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if len(sts) != 2 || sts[0].Name != "backend" || sts[1].State != "starting" {
		t.Fatalf("unexpected statuses: %+v", sts)
	}
}

func TestClientStatusSingle(t *testing.T) {
	c := stubAPI(t)
	st, err := c.Status(context.Background(), "backend")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.PID != 42 || st.State != "healthy" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if _, err := c.Status(context.Background(), "ghost"); err == nil {
		t.Fatal("unknown service should error")
	}
}

func TestClientStop(t *testing.T) {
	c := stubAPI(t)
	if err := c.Stop(context.Background(), "backend"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Stop(context.Background(), ""); err != nil {
		t.Fatalf("stop all: %v", err)
	}
	if err := c.Stop(context.Background(), "ghost"); err == nil {
		t.Fatal("unknown service should error")
	}
}

func TestClientReachability(t *testing.T) {
	c := stubAPI(t)
	if !c.IsReachable(context.Background()) {
		t.Fatal("stub API should be reachable")
	}
	hz, err := c.Healthz(context.Background())
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if hz.Services != 2 {
		t.Fatalf("services = %d, want 2", hz.Services)
	}
	down := New(Config{BaseURL: "http://127.0.0.1:1"})
	if down.IsReachable(context.Background()) {
		t.Fatal("closed port should be unreachable")
	}
}
