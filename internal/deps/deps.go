package deps

import (
	"os/exec"

	"github.com/stackrun-dev/stackrun/internal/registry"
)

// MissingError reports a required external tool that is not on PATH.
// Fatal: the service that needs it is never spawned.
type MissingError struct {
	Tool string
	Hint string
}

func (e *MissingError) Error() string {
	msg := "required tool " + e.Tool + " not found in PATH"
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// Check verifies the descriptor's required tool is resolvable. A
// descriptor without a Tool declares no external requirement.
func Check(d registry.Descriptor) error {
	if d.Tool == "" {
		return nil
	}
	if _, err := exec.LookPath(d.Tool); err != nil {
		return &MissingError{Tool: d.Tool, Hint: d.Hint}
	}
	return nil
}

// Status classifies one doctor row.
type Status string

const (
	StatusOK      Status = "ok"
	StatusMissing Status = "missing"
	StatusSkipped Status = "skipped"
)

// Result is one row of a doctor report.
type Result struct {
	Service string `json:"service"`
	Tool    string `json:"tool,omitempty"`
	Status  Status `json:"status"`
	Path    string `json:"path,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Doctor checks every descriptor's tool and reports one row per
// service. It never fails; absent tools are rows, not errors.
func Doctor(descs []registry.Descriptor) []Result {
	out := make([]Result, 0, len(descs))
	for _, d := range descs {
		if d.Tool == "" {
			out = append(out, Result{Service: d.Name, Status: StatusSkipped})
			continue
		}
		path, err := exec.LookPath(d.Tool)
		if err != nil {
			out = append(out, Result{Service: d.Name, Tool: d.Tool, Status: StatusMissing, Hint: d.Hint})
			continue
		}
		out = append(out, Result{Service: d.Name, Tool: d.Tool, Status: StatusOK, Path: path})
	}
	return out
}
