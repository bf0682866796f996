package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stackrun-dev/stackrun/internal/journal"
)

func TestSinkFileRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	sink, err := New(dbPath)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("close sink: %v", err)
		}
	}()

	ctx := context.Background()
	entries := []journal.Entry{
		{RunID: "run-1", Type: journal.TypeRunStarted, OccurredAt: time.Now().UTC(), Mode: "all"},
		{RunID: "run-1", Type: journal.TypeServiceSpawned, OccurredAt: time.Now().UTC(), Mode: "all", Service: "backend", PID: 4242, Port: 8000},
		{RunID: "run-1", Type: journal.TypeRunFinished, OccurredAt: time.Now().UTC(), Mode: "all", Detail: "signal"},
	}
	for _, e := range entries {
		if err := sink.Append(ctx, e); err != nil {
			t.Fatalf("append %s: %v", e.Type, err)
		}
	}

	got, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	// newest first
	if got[0].Type != journal.TypeRunFinished || got[2].Type != journal.TypeRunStarted {
		t.Fatalf("unexpected order: %v %v %v", got[0].Type, got[1].Type, got[2].Type)
	}
	if got[0].Detail != "signal" {
		t.Fatalf("detail lost: %+v", got[0])
	}
	spawn := got[1]
	if spawn.Service != "backend" || spawn.PID != 4242 || spawn.Port != 8000 {
		t.Fatalf("spawn fields lost: %+v", spawn)
	}
	// nullable columns come back as zero values
	if got[2].Service != "" || got[2].PID != 0 {
		t.Fatalf("expected empty service fields on run_started: %+v", got[2])
	}
}

func TestSinkInMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	e := journal.Entry{RunID: "run-mem", Type: journal.TypeRunStarted, OccurredAt: time.Now().UTC(), Mode: "backend"}
	if err := sink.Append(ctx, e); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := sink.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].RunID != "run-mem" {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestSinkDSNPrefix(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "p.db")
	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("create sink with prefix: %v", err)
	}
	_ = sink.Close()
}

func TestSinkEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestSinkLimitRespected(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		e := journal.Entry{RunID: "run-x", Type: journal.TypeServiceHealthy, OccurredAt: time.Now().UTC(), Mode: "all", Service: "backend"}
		if err := sink.Append(ctx, e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	got, err := sink.Recent(ctx, 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("limit ignored: got %d entries", len(got))
	}
}
