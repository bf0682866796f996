package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stackrun-dev/stackrun/internal/orchestrator"
)

// Router provides embeddable HTTP handlers for inspecting and
// controlling a live run.
// Endpoints:
//   GET  {basePath}/status       all services, or query: name=... for one
//   POST {basePath}/stop         query: name=... (one service) or empty (whole run)
//   GET  {basePath}/healthz      the orchestrator's own liveness
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	orc      *orchestrator.Orchestrator
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/abc" results in /abc/status, /abc/stop, /abc/healthz.
func NewRouter(orc *orchestrator.Orchestrator, basePath string) *Router {
	bp := sanitizeBase(basePath)
	return &Router{orc: orc, basePath: bp}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/stop", r.handleStop)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The returned server can be shut down with its Close method.
func NewServer(addr, basePath string, orc *orchestrator.Orchestrator) (*http.Server, error) {
	r := NewRouter(orc, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusOK, r.orc.Supervisor().Statuses())
		return
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	svc, ok := r.orc.Supervisor().Lookup(name)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown service: " + name})
		return
	}
	writeJSON(c, http.StatusOK, svc.Snapshot())
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		// no selector stops the whole run
		r.orc.Shutdown("stop requested over api")
		writeJSON(c, http.StatusOK, okResp{OK: true})
		return
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	if err := r.orc.StopService(name); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type healthzResp struct {
	Status   string `json:"status"`
	Services int    `json:"services"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, healthzResp{
		Status:   "ok",
		Services: len(r.orc.Supervisor().Statuses()),
	})
}
