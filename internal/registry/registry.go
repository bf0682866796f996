package registry

import (
	"fmt"
	"sort"
)

// Role places a descriptor in the mode taxonomy.
type Role string

const (
	RoleBackend  Role = "backend"
	RoleFrontend Role = "frontend"
	RoleDocker   Role = "docker"
)

func (r Role) valid() bool {
	switch r {
	case RoleBackend, RoleFrontend, RoleDocker:
		return true
	}
	return false
}

// ConfigError reports a misconfigured registry or an unresolvable mode.
// It is fatal for the run; nothing gets spawned.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "configuration: " + e.Reason }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// Descriptor is the immutable launch contract for one service. Command
// is a structured argv list; the first element is the executable and no
// part of it is ever shell-evaluated.
type Descriptor struct {
	Name      string   `json:"name"`
	Role      Role     `json:"role"`
	Command   []string `json:"command"`
	WorkDir   string   `json:"workdir,omitempty"`
	Env       []string `json:"env,omitempty"`
	Port      int      `json:"port"`
	LivePath  string   `json:"live_path"`
	ReadyPath string   `json:"ready_path,omitempty"`
	LogPath   string   `json:"log_path,omitempty"`
	Tool      string   `json:"tool,omitempty"`
	Hint      string   `json:"hint,omitempty"`
}

// BaseURL is the loopback origin health probes are sent to.
func (d Descriptor) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", d.Port)
}

func (d Descriptor) LivenessURL() string { return d.BaseURL() + d.LivePath }

// ReadinessURL is empty when the descriptor declares no readiness path.
func (d Descriptor) ReadinessURL() string {
	if d.ReadyPath == "" {
		return ""
	}
	return d.BaseURL() + d.ReadyPath
}

func (d Descriptor) Validate() error {
	if d.Name == "" {
		return configErrorf("service requires a name")
	}
	if !d.Role.valid() {
		return configErrorf("service %s: unknown role %q", d.Name, d.Role)
	}
	if len(d.Command) == 0 || d.Command[0] == "" {
		return configErrorf("service %s: command must name an executable", d.Name)
	}
	if d.Port <= 0 || d.Port > 65535 {
		return configErrorf("service %s: port %d out of range", d.Name, d.Port)
	}
	if d.LivePath == "" || d.LivePath[0] != '/' {
		return configErrorf("service %s: liveness path %q must start with /", d.Name, d.LivePath)
	}
	if d.ReadyPath != "" && d.ReadyPath[0] != '/' {
		return configErrorf("service %s: readiness path %q must start with /", d.Name, d.ReadyPath)
	}
	return nil
}

// Registry is an explicit name to descriptor table, immutable once
// built. Registration order is meaningful: it fixes backend priority
// and the start order within a mode.
type Registry struct {
	order  []string
	byName map[string]Descriptor
}

// New validates every descriptor and rejects duplicate names.
func New(descs []Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, configErrorf("duplicate service name %q", d.Name)
		}
		r.byName[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	if len(r.order) == 0 {
		return nil, configErrorf("registry has no services")
	}
	return r, nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// Names returns the registered service names, sorted for stable output.
func (r *Registry) Names() []string {
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

func (r *Registry) withRole(role Role) []Descriptor {
	var out []Descriptor
	for _, n := range r.order {
		if d := r.byName[n]; d.Role == role {
			out = append(out, d)
		}
	}
	return out
}
