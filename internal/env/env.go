package env

import (
	"os"
	"strings"
)

// Table composes the environment handed to spawned services.
// Base is the orchestrator's own environment, then global overrides
// from configuration, then per-service entries. Values may reference
// other keys as ${VAR}; expansion is a single pass over the composed
// map, no recursion.
type Table struct {
	overrides map[string]string
	base      map[string]string
}

func New() *Table {
	return &Table{overrides: make(map[string]string)}
}

// FromOS caches the current process environment as the base.
func (t *Table) FromOS() {
	base := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	t.base = base
}

// Set records a global override K=V. Empty keys are ignored.
func (t *Table) Set(k, v string) {
	if k == "" {
		return
	}
	if t.overrides == nil {
		t.overrides = make(map[string]string)
	}
	t.overrides[k] = v
}

// SetAll records a list of KEY=VALUE pairs as global overrides.
// Malformed entries without '=' or with an empty key are skipped.
func (t *Table) SetAll(pairs []string) {
	for _, kv := range pairs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			t.Set(kv[:i], kv[i+1:])
		}
	}
}

// Merge returns the final "K=V" environment for one service:
// base, then global overrides, then perService entries, later wins.
func (t *Table) Merge(perService []string) []string {
	if t.base == nil {
		t.FromOS()
	}
	m := make(map[string]string, len(t.base)+len(t.overrides)+len(perService))
	for k, v := range t.base {
		m[k] = v
	}
	for k, v := range t.overrides {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, kv := range perService {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	expanded := make(map[string]string, len(m))
	for k, v := range m {
		expanded[k] = expand(v, m)
	}
	out := make([]string, 0, len(expanded))
	for k, v := range expanded {
		out = append(out, k+"="+v)
	}
	return out
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
