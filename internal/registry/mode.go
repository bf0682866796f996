package registry

import "strings"

// Mode names a subset of the registry to run. The set is closed;
// anything else is a configuration error.
type Mode string

const (
	ModeAll      Mode = "all"
	ModeBackend  Mode = "backend"
	ModeFrontend Mode = "frontend"
	ModeDocker   Mode = "docker"
)

// ParseMode maps a CLI argument to a Mode. Empty selects ModeAll.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ModeAll, nil
	case ModeAll:
		return ModeAll, nil
	case ModeBackend:
		return ModeBackend, nil
	case ModeFrontend:
		return ModeFrontend, nil
	case ModeDocker:
		return ModeDocker, nil
	}
	return "", configErrorf("unknown mode %q (expected all, backend, frontend or docker)", s)
}

// ResolveMode maps a mode to the ordered descriptor list to start.
// Backend resolution picks exactly one backend: the first registered
// backend-role descriptor. Registering fallbacks after the primary
// never yields two concurrent backends.
//
// A resolved set in which two services claim the same port fails here
// with a ConfigError rather than being reassigned silently.
func (r *Registry) ResolveMode(mode Mode) ([]Descriptor, error) {
	var out []Descriptor
	switch mode {
	case ModeAll:
		b, err := r.primaryBackend()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
		out = append(out, r.withRole(RoleFrontend)...)
	case ModeBackend:
		b, err := r.primaryBackend()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	case ModeFrontend:
		out = r.withRole(RoleFrontend)
	case ModeDocker:
		out = r.withRole(RoleDocker)
	default:
		return nil, configErrorf("unknown mode %q", mode)
	}
	if len(out) == 0 {
		return nil, configErrorf("mode %q matches no registered service", mode)
	}
	seen := make(map[int]string, len(out))
	for _, d := range out {
		if prev, clash := seen[d.Port]; clash {
			return nil, configErrorf("services %s and %s both claim port %d", prev, d.Name, d.Port)
		}
		seen[d.Port] = d.Name
	}
	return out, nil
}

func (r *Registry) primaryBackend() (Descriptor, error) {
	backends := r.withRole(RoleBackend)
	if len(backends) == 0 {
		return Descriptor{}, configErrorf("no backend service registered")
	}
	return backends[0], nil
}
