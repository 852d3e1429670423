// Package orchestrator wires the subsystems together: the process table, the
// port allocator, the session coordinator, and the managed base services
// (sync server and shared runtime). It is the single construction and
// shutdown point; everything else holds references it hands out.
package orchestrator

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/mdstack/conductor/internal/config"
	"github.com/mdstack/conductor/internal/history"
	"github.com/mdstack/conductor/internal/history/factory"
	"github.com/mdstack/conductor/internal/ports"
	"github.com/mdstack/conductor/internal/process"
	"github.com/mdstack/conductor/internal/session"
)

// Orchestrator owns the environment lifecycle. Construct with New, bring the
// base services up with Start, tear everything down with Stop.
type Orchestrator struct {
	cfg      *config.Config
	procs    *process.Manager
	alloc    *ports.Allocator
	sessions *session.Coordinator
	sink     history.Sink
}

func New(cfg *config.Config) (*Orchestrator, error) {
	alloc, err := ports.New(cfg.Ports.Base, cfg.Ports.Span)
	if err != nil {
		return nil, fmt.Errorf("port range: %w", err)
	}

	procs := process.NewManager()
	if cfg.StopGrace > 0 {
		procs.SetStopGrace(cfg.StopGrace)
	}

	o := &Orchestrator{
		cfg:      cfg,
		procs:    procs,
		alloc:    alloc,
		sessions: session.NewCoordinator(cfg, procs, alloc),
	}

	// History is best-effort end to end: a bad DSN degrades to no audit
	// trail, never to a daemon that will not start.
	if cfg.HistoryDSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.HistoryDSN)
		if err != nil {
			slog.Warn("history sink disabled", "dsn", cfg.HistoryDSN, "err", err)
		} else {
			o.sink = sink
			procs.SetHistorySinks(sink)
			o.sessions.SetHistorySinks(sink)
		}
	}
	return o, nil
}

// Processes exposes the process table for status queries and log reads.
func (o *Orchestrator) Processes() *process.Manager { return o.procs }

// Sessions exposes the session coordinator.
func (o *Orchestrator) Sessions() *session.Coordinator { return o.sessions }

// Config returns the configuration the orchestrator was built with.
func (o *Orchestrator) Config() *config.Config { return o.cfg }

// DocsDir is the document storage directory served by the files API.
func (o *Orchestrator) DocsDir() string { return o.cfg.DocsDir }

// Start brings up the managed base services. A base service that fails to
// come up is logged and left in the table as a failed record; the daemon
// still serves its API so the operator can inspect and retry.
func (o *Orchestrator) Start() error {
	if o.cfg.DocsDir != "" {
		if err := os.MkdirAll(o.cfg.DocsDir, 0o755); err != nil {
			return fmt.Errorf("docs dir: %w", err)
		}
	}

	if prog, ok := o.cfg.Sync.Program(); ok {
		o.startManaged(session.SyncProcName, prog, map[string]string{
			"port": strconv.Itoa(prog.Port),
			"docs": o.cfg.DocsDir,
		})
	} else {
		slog.Info("sync server is remote, not starting", "url", o.cfg.Sync.URL())
	}

	if prog, ok := o.cfg.Runtime.Program(); ok {
		o.startManaged(session.SharedRuntimeProcName, prog, map[string]string{
			"port": strconv.Itoa(prog.Port),
		})
	} else {
		slog.Info("runtime is remote, not starting", "url", o.cfg.Runtime.URL())
	}
	return nil
}

func (o *Orchestrator) startManaged(name string, prog config.ManagedProgram, vars map[string]string) {
	st, err := o.procs.Start(process.Spec{
		Name:         name,
		Command:      config.Expand(prog.Command, vars),
		WorkDir:      prog.PackageDir,
		ReadyMarker:  prog.ReadyMarker,
		ReadyTimeout: prog.ReadyTimeout,
		Log:          o.cfg.ProcessLog,
	})
	if err != nil {
		slog.Error("base service rejected", "name", name, "err", err)
		return
	}
	if !st.Running() {
		slog.Error("base service failed to start", "name", name, "state", st.State, "reason", st.Reason)
	}
}

// Stop tears the whole environment down: sessions first (so dedicated
// runtimes release their ports), then every remaining process. After Stop
// the process table is empty.
func (o *Orchestrator) Stop() {
	o.sessions.DestroyAll()
	o.procs.StopAll()
	if c, ok := o.sink.(io.Closer); ok && c != nil {
		_ = c.Close()
	}
	slog.Info("orchestrator stopped")
}

// URLs are the client-facing addresses of the base services.
type URLs struct {
	Sync    string `json:"sync"`
	Runtime string `json:"runtime"`
}

func (o *Orchestrator) URLs() URLs {
	return URLs{Sync: o.cfg.Sync.URL(), Runtime: o.cfg.Runtime.URL()}
}

// Report is the full status snapshot served by the API.
type Report struct {
	Processes []process.Status `json:"processes"`
	Sessions  []session.Info   `json:"sessions"`
	Monitors  []string         `json:"monitors"`
	URLs      URLs             `json:"urls"`
}

func (o *Orchestrator) Status() Report {
	return Report{
		Processes: o.procs.Statuses(),
		Sessions:  o.sessions.List(),
		Monitors:  o.sessions.MonitorDocs(),
		URLs:      o.URLs(),
	}
}
