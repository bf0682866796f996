package deps

import (
	"errors"
	"strings"
	"testing"

	"github.com/stackrun-dev/stackrun/internal/registry"
)

func TestCheck_ToolPresent(t *testing.T) {
	d := registry.Descriptor{Name: "x", Tool: "sh"}
	if err := Check(d); err != nil {
		t.Fatalf("sh should be on PATH: %v", err)
	}
}

func TestCheck_ToolMissing(t *testing.T) {
	d := registry.Descriptor{
		Name: "x",
		Tool: "definitely-not-a-real-tool-8271",
		Hint: "install it from example.com",
	}
	err := Check(d)
	if err == nil {
		t.Fatalf("expected error for missing tool")
	}
	var me *MissingError
	if !errors.As(err, &me) {
		t.Fatalf("want MissingError, got %T", err)
	}
	if me.Tool != d.Tool {
		t.Fatalf("unexpected tool in error: %q", me.Tool)
	}
	if !strings.Contains(err.Error(), "install it from example.com") {
		t.Fatalf("remediation hint missing from message: %q", err.Error())
	}
}

func TestCheck_NoToolDeclared(t *testing.T) {
	if err := Check(registry.Descriptor{Name: "x"}); err != nil {
		t.Fatalf("descriptor without tool must pass: %v", err)
	}
}

func TestDoctor(t *testing.T) {
	descs := []registry.Descriptor{
		{Name: "a", Tool: "sh"},
		{Name: "b", Tool: "definitely-not-a-real-tool-8271", Hint: "get it"},
		{Name: "c"},
	}
	rows := Doctor(descs)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Status != StatusOK || rows[0].Path == "" {
		t.Fatalf("sh row: %+v", rows[0])
	}
	if rows[1].Status != StatusMissing || rows[1].Hint != "get it" {
		t.Fatalf("missing row: %+v", rows[1])
	}
	if rows[2].Status != StatusSkipped {
		t.Fatalf("skipped row: %+v", rows[2])
	}
}
