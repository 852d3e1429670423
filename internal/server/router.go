package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mdstack/conductor/internal/metrics"
	"github.com/mdstack/conductor/internal/orchestrator"
	"github.com/mdstack/conductor/internal/ports"
	"github.com/mdstack/conductor/internal/session"
)

// Router provides the embeddable HTTP surface of the daemon.
// Endpoints (all under basePath):
//   GET    /health
//   GET    /api/status
//   GET    /api/urls
//   GET    /api/sessions              list sessions
//   POST   /api/sessions              body: {"doc": "...", "mode": "shared|dedicated"}
//   GET    /api/sessions/:doc
//   DELETE /api/sessions/:doc
//   GET    /api/monitors              list monitored docs
//   GET    /api/monitors/:doc         per-document monitor status
//   POST   /api/monitors/:doc
//   DELETE /api/monitors/:doc
//   GET    /api/logs/:name?lines=N    recent output of a supervised process
//   GET    /api/files                 list documents
//   POST   /api/files                 body: {"name": "..."}
//   DELETE /api/files/:name           deletes the doc and its session
//   GET    /metrics
//
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	orch     *orchestrator.Orchestrator
	basePath string
}

func NewRouter(orch *orchestrator.Orchestrator, basePath string) *Router {
	return &Router{orch: orch, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)

	group.GET("/health", r.handleHealth)
	group.GET("/api/status", r.handleStatus)
	group.GET("/api/urls", r.handleURLs)

	group.GET("/api/sessions", r.handleSessionList)
	group.POST("/api/sessions", r.handleSessionCreate)
	group.GET("/api/sessions/:doc", r.handleSessionGet)
	group.DELETE("/api/sessions/:doc", r.handleSessionDestroy)

	group.GET("/api/monitors", r.handleMonitorList)
	group.GET("/api/monitors/:doc", r.handleMonitorGet)
	group.POST("/api/monitors/:doc", r.handleMonitorStart)
	group.DELETE("/api/monitors/:doc", r.handleMonitorStop)

	group.GET("/api/logs/:name", r.handleLogs)

	group.GET("/api/files", r.handleFileList)
	group.POST("/api/files", r.handleFileCreate)
	group.DELETE("/api/files/:name", r.handleFileDelete)

	group.GET("/metrics", gin.WrapH(metrics.Handler()))

	if ed := r.orch.Config().Editor; ed.Enabled && ed.Dir != "" {
		g.NoRoute(editorStatic(ed.Dir))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via the returned http.Server.
func NewServer(addr, basePath string, orch *orchestrator.Orchestrator) *http.Server {
	r := NewRouter(orch, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.orch.Status())
}

func (r *Router) handleURLs(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.orch.URLs())
}

type sessionReq struct {
	Doc  string `json:"doc"`
	Mode string `json:"mode"`
}

func (r *Router) handleSessionCreate(c *gin.Context) {
	var req sessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeName(req.Doc) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid doc: allowed [A-Za-z0-9._-] and no '..'"})
		return
	}
	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	info, err := r.orch.Sessions().Create(req.Doc, mode)
	if err != nil {
		if errors.Is(err, ports.ErrExhausted) {
			writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleSessionList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.orch.Sessions().List())
}

func (r *Router) handleSessionGet(c *gin.Context) {
	doc := c.Param("doc")
	info, ok := r.orch.Sessions().Get(doc)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no session for doc " + doc})
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleSessionDestroy(c *gin.Context) {
	r.orch.Sessions().Destroy(c.Param("doc"))
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleMonitorList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.orch.Sessions().MonitorDocs())
}

type monitorResp struct {
	Doc     string `json:"doc"`
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

func (r *Router) handleMonitorGet(c *gin.Context) {
	doc := c.Param("doc")
	st, ok := r.orch.Sessions().Monitor(doc)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no monitor for doc " + doc})
		return
	}
	writeJSON(c, http.StatusOK, monitorResp{Doc: doc, Name: st.Name, Running: st.Running})
}

func (r *Router) handleMonitorStart(c *gin.Context) {
	doc := c.Param("doc")
	if !isSafeName(doc) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid doc name"})
		return
	}
	if !r.orch.Sessions().StartMonitor(doc) {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: "monitor failed to start for " + doc})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleMonitorStop(c *gin.Context) {
	r.orch.Sessions().StopMonitor(c.Param("doc"))
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type logsResp struct {
	Name  string   `json:"name"`
	Lines []string `json:"lines"`
}

func (r *Router) handleLogs(c *gin.Context) {
	name := c.Param("name")
	n := 100
	if s := c.Query("lines"); s != "" {
		if v, err := parsePositiveInt(s); err == nil {
			n = v
		}
	}
	if _, ok := r.orch.Processes().Status(name); !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown process " + name})
		return
	}
	writeJSON(c, http.StatusOK, logsResp{Name: name, Lines: r.orch.Processes().Output(name, n)})
}

func editorStatic(dir string) gin.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Status(http.StatusNotFound)
			return
		}
		fs.ServeHTTP(c.Writer, c.Request)
	}
}
