package health

import (
	"encoding/json"
	"strings"
	"time"
)

// Status classifies one probe. The first three mirror the wire
// protocol's status field; unreachable is transport failure.
type Status string

const (
	StatusOK          Status = "ok"
	StatusDegraded    Status = "degraded"
	StatusError       Status = "error"
	StatusUnreachable Status = "unreachable"
)

// Result is one interpreted probe.
type Result struct {
	Status  Status        `json:"status"`
	Latency time.Duration `json:"latency"`
	Body    string        `json:"body,omitempty"`
}

// Live reports whether the probe counts as a liveness success.
// Degraded is alive: the service answered and asked for leniency.
func (r Result) Live() bool {
	return r.Status == StatusOK || r.Status == StatusDegraded
}

// payload is the optional structured body services may answer with.
type payload struct {
	Status string `json:"status"`
}

// classifyBody interprets a 2xx response body. Absent, non-JSON or
// unparseable bodies count as ok: transport success is the contract,
// the body only refines it. A JSON status outside ok/degraded demotes
// the probe to error.
func classifyBody(body []byte) Status {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed[0] != '{' {
		return StatusOK
	}
	var p payload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return StatusOK
	}
	switch p.Status {
	case "", "ok":
		return StatusOK
	case "degraded":
		return StatusDegraded
	default:
		return StatusError
	}
}
