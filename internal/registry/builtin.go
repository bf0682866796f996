package registry

import "strconv"

// BuiltinParams carries the values the stock registry is templated
// with. Zero values fall back to the stack defaults.
type BuiltinParams struct {
	BackendPort  int    // default 8000
	FrontendPort int    // default 5173
	LivePath     string // default /health/live
	BackendDir   string // default backend
	FrontendDir  string // default frontend
}

func (p *BuiltinParams) fill() {
	if p.BackendPort == 0 {
		p.BackendPort = 8000
	}
	if p.FrontendPort == 0 {
		p.FrontendPort = 5173
	}
	if p.LivePath == "" {
		p.LivePath = "/health/live"
	}
	if p.BackendDir == "" {
		p.BackendDir = "backend"
	}
	if p.FrontendDir == "" {
		p.FrontendDir = "frontend"
	}
}

// Builtin returns the stock registry for the analyzer stack: a uvicorn
// API backend, a Vite dev-server frontend and a docker compose
// rendition of both. The dev server exposes no structured health route,
// so its liveness probe targets the root path.
func Builtin(p BuiltinParams) (*Registry, error) {
	p.fill()
	backend := Descriptor{
		Name: "backend",
		Role: RoleBackend,
		Command: []string{
			"uv", "run", "uvicorn", "app.main:app",
			"--host", "127.0.0.1",
			"--port", strconv.Itoa(p.BackendPort),
		},
		WorkDir:   p.BackendDir,
		Env:       []string{"PORT=" + strconv.Itoa(p.BackendPort)},
		Port:      p.BackendPort,
		LivePath:  p.LivePath,
		ReadyPath: "/health/ready",
		Tool:      "uv",
		Hint:      "install uv from https://docs.astral.sh/uv/ or via pipx install uv",
	}
	frontend := Descriptor{
		Name: "frontend",
		Role: RoleFrontend,
		Command: []string{
			"npm", "run", "dev", "--",
			"--port", strconv.Itoa(p.FrontendPort),
			"--strictPort",
		},
		WorkDir:  p.FrontendDir,
		Env:      []string{"PORT=" + strconv.Itoa(p.FrontendPort)},
		Port:     p.FrontendPort,
		LivePath: "/",
		Tool:     "npm",
		Hint:     "install Node.js (includes npm) from https://nodejs.org/",
	}
	docker := Descriptor{
		Name:     "docker",
		Role:     RoleDocker,
		Command:  []string{"docker", "compose", "up", "--build"},
		Port:     p.BackendPort,
		LivePath: p.LivePath,
		Tool:     "docker",
		Hint:     "install Docker with the compose plugin from https://docs.docker.com/",
	}
	return New([]Descriptor{backend, frontend, docker})
}
