package env

import (
	"strings"
	"testing"
)

func lookup(pairs []string, key string) (string, bool) {
	for _, kv := range pairs {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

func TestMerge_Precedence(t *testing.T) {
	tb := New()
	tb.base = map[string]string{"PORT": "1", "HOME": "/home/x"}
	tb.Set("PORT", "2")
	out := tb.Merge([]string{"PORT=3"})
	if v, ok := lookup(out, "PORT"); !ok || v != "3" {
		t.Fatalf("per-service entry should win, got %q ok=%t", v, ok)
	}
	if v, ok := lookup(out, "HOME"); !ok || v != "/home/x" {
		t.Fatalf("base entry lost: %q ok=%t", v, ok)
	}
}

func TestMerge_Expansion(t *testing.T) {
	tb := New()
	tb.base = map[string]string{"ROOT": "/srv/app"}
	out := tb.Merge([]string{"DATA=${ROOT}/data"})
	if v, _ := lookup(out, "DATA"); v != "/srv/app/data" {
		t.Fatalf("expansion failed: %q", v)
	}
}

func TestMerge_SkipsMalformed(t *testing.T) {
	tb := New()
	tb.base = map[string]string{}
	tb.SetAll([]string{"=nokey", "novalue", "GOOD=1"})
	out := tb.Merge([]string{"=alsobad"})
	for _, kv := range out {
		if strings.HasPrefix(kv, "=") {
			t.Fatalf("empty key leaked: %q", kv)
		}
	}
	if v, ok := lookup(out, "GOOD"); !ok || v != "1" {
		t.Fatalf("valid override dropped")
	}
}

func TestMerge_UsesOSBase(t *testing.T) {
	t.Setenv("STACKRUN_ENV_PROBE", "yes")
	tb := New()
	out := tb.Merge(nil)
	if v, ok := lookup(out, "STACKRUN_ENV_PROBE"); !ok || v != "yes" {
		t.Fatalf("OS base not picked up: %q ok=%t", v, ok)
	}
}
