package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mdstack/conductor/internal/config"
	"github.com/mdstack/conductor/internal/history"
	"github.com/mdstack/conductor/internal/metrics"
	"github.com/mdstack/conductor/internal/ports"
	"github.com/mdstack/conductor/internal/process"
)

// Coordinator owns the session and monitor tables. The table mutex guards
// only the maps; the blocking work of an operation (spawning and stopping
// children, which can take up to a readiness timeout or a stop grace) runs
// under a per-document lock, so operations on different documents proceed
// concurrently and status queries never wait on a spawn in flight.
type Coordinator struct {
	cfg   *config.Config
	procs *process.Manager
	alloc *ports.Allocator

	mu       sync.Mutex
	sessions map[string]*Session
	monitors map[string]string // doc -> monitor process name
	docLocks map[string]*docLock
	sinks    []history.Sink
}

// docLock serializes create/destroy/monitor operations per document. The
// refcount lets the entry be dropped once the last waiter is gone, so the
// map does not grow with every document ever touched.
type docLock struct {
	sync.Mutex
	refs int
}

func NewCoordinator(cfg *config.Config, procs *process.Manager, alloc *ports.Allocator) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		procs:    procs,
		alloc:    alloc,
		sessions: make(map[string]*Session),
		monitors: make(map[string]string),
		docLocks: make(map[string]*docLock),
	}
}

func (c *Coordinator) lockDoc(doc string) *docLock {
	c.mu.Lock()
	l := c.docLocks[doc]
	if l == nil {
		l = &docLock{}
		c.docLocks[doc] = l
	}
	l.refs++
	c.mu.Unlock()
	l.Lock()
	return l
}

func (c *Coordinator) unlockDoc(doc string, l *docLock) {
	l.Unlock()
	c.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(c.docLocks, doc)
	}
	c.mu.Unlock()
}

// SetHistorySinks configures best-effort session-event sinks.
func (c *Coordinator) SetHistorySinks(sinks ...history.Sink) {
	c.mu.Lock()
	c.sinks = append([]history.Sink(nil), sinks...)
	c.mu.Unlock()
}

// Create establishes the session for a document. Creating a session that
// already exists with the same mode returns it unchanged; a different mode
// destroys the old session first, so the caller always ends up with a
// session of the requested mode. The only error paths are an empty document
// id and port-range exhaustion for dedicated mode.
func (c *Coordinator) Create(doc string, mode Mode) (Info, error) {
	if doc == "" {
		return Info{}, errors.New("document id required")
	}
	if mode == "" {
		mode = ModeShared
	}

	l := c.lockDoc(doc)
	defer c.unlockDoc(doc, l)

	c.mu.Lock()
	existing := c.sessions[doc]
	c.mu.Unlock()
	if existing != nil {
		if existing.Mode == mode {
			return c.info(existing), nil
		}
		slog.Info("session mode switch, recreating", "doc", doc, "from", existing.Mode, "to", mode)
		c.teardown(existing)
	}

	s := &Session{Doc: doc, Mode: mode, CreatedAt: time.Now()}

	// Monitor start is non-fatal: a session without its monitor is degraded,
	// not absent. The process record stays queryable either way.
	if c.cfg.Monitor.Enabled {
		s.MonitorProc = MonitorProcName(doc)
		c.startMonitorUnderDocLock(doc)
	}

	if mode == ModeDedicated {
		port, err := c.alloc.Allocate()
		if err != nil {
			// The session record does not exist yet; the caller decides
			// whether to retry, fall back to shared, or give up. Any monitor
			// started above stays registered and will be reaped with the
			// next successful create or at shutdown.
			return Info{}, err
		}
		s.Binding = c.spawnDedicated(doc, port)
	} else {
		s.Binding = SharedBinding{Addr: c.cfg.Runtime.URL()}
	}

	c.mu.Lock()
	c.sessions[doc] = s
	active := len(c.sessions)
	c.mu.Unlock()
	metrics.SetSessionsActive(active)
	metrics.IncSessionCreated(string(mode))
	c.record(history.EventSessionCreated, doc, string(mode))
	slog.Info("session created", "doc", doc, "mode", mode)
	return c.info(s), nil
}

// spawnDedicated starts a per-document runtime on the reserved port. On any
// spawn failure the port goes straight back to the allocator and the session
// carries no binding; the failed process record remains for diagnosis.
func (c *Coordinator) spawnDedicated(doc string, port int) Binding {
	prog, managed := c.cfg.Runtime.Program()
	if !managed {
		slog.Warn("dedicated runtime requested but runtime is remote", "doc", doc)
		c.alloc.Release(port)
		return nil
	}

	name := RuntimeProcName(doc)
	cmd := config.Expand(prog.Command, map[string]string{"port": strconv.Itoa(port)})
	st, err := c.procs.Start(process.Spec{
		Name:         name,
		Command:      cmd,
		WorkDir:      prog.PackageDir,
		ReadyMarker:  prog.ReadyMarker,
		ReadyTimeout: prog.ReadyTimeout,
		Log:          c.cfg.ProcessLog,
	})
	if err != nil || !st.Running() {
		reason := st.Reason
		if err != nil {
			reason = err.Error()
		}
		slog.Error("dedicated runtime failed to start", "doc", doc, "port", port, "reason", reason)
		c.alloc.Release(port)
		return nil
	}
	return DedicatedBinding{Addr: config.RuntimeURL(port), Port: port, Proc: name}
}

// Destroy tears down the document's session: dedicated runtime first, its
// port only after the process is confirmed dead, then the monitor. Unknown
// documents are a no-op success.
func (c *Coordinator) Destroy(doc string) bool {
	l := c.lockDoc(doc)
	defer c.unlockDoc(doc, l)

	c.mu.Lock()
	s := c.sessions[doc]
	c.mu.Unlock()
	if s == nil {
		return true
	}
	c.teardown(s)
	return true
}

// teardown stops the session's children and removes it from the tables.
// Caller holds the document lock, never the table mutex.
func (c *Coordinator) teardown(s *Session) {
	if b, ok := s.Binding.(DedicatedBinding); ok {
		// Stop blocks until the child is dead; releasing earlier could hand
		// the port to a new runtime while the old one still holds it.
		c.procs.Stop(b.Proc)
		c.alloc.Release(b.Port)
	}
	if s.MonitorProc != "" {
		c.procs.Stop(s.MonitorProc)
	}
	c.mu.Lock()
	delete(c.monitors, s.Doc)
	delete(c.sessions, s.Doc)
	active := len(c.sessions)
	c.mu.Unlock()
	metrics.SetSessionsActive(active)
	c.record(history.EventSessionDestroyed, s.Doc, string(s.Mode))
	slog.Info("session destroyed", "doc", s.Doc)
}

// DestroyAll tears down every session; used at shutdown before the process
// table itself is drained.
func (c *Coordinator) DestroyAll() {
	c.mu.Lock()
	docs := make([]string, 0, len(c.sessions))
	for doc := range c.sessions {
		docs = append(docs, doc)
	}
	c.mu.Unlock()
	for _, doc := range docs {
		c.Destroy(doc)
	}
}

// Get returns the session projection for one document.
func (c *Coordinator) Get(doc string) (Info, bool) {
	c.mu.Lock()
	s, ok := c.sessions[doc]
	c.mu.Unlock()
	if !ok {
		return Info{}, false
	}
	return c.info(s), true
}

// List returns every active session, sorted by document id.
func (c *Coordinator) List() []Info {
	c.mu.Lock()
	snapshot := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		snapshot = append(snapshot, s)
	}
	c.mu.Unlock()
	out := make([]Info, 0, len(snapshot))
	for _, s := range snapshot {
		out = append(out, c.info(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Doc < out[j].Doc })
	return out
}

// Has reports whether a session exists for the document.
func (c *Coordinator) Has(doc string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[doc]
	return ok
}

// StartMonitor starts a standalone monitor for the document, outside of any
// session. Returns false when monitors are disabled or the spawn failed.
func (c *Coordinator) StartMonitor(doc string) bool {
	if doc == "" {
		return false
	}
	l := c.lockDoc(doc)
	defer c.unlockDoc(doc, l)
	return c.startMonitorUnderDocLock(doc)
}

func (c *Coordinator) startMonitorUnderDocLock(doc string) bool {
	if !c.cfg.Monitor.Enabled {
		slog.Warn("monitor requested but monitors are disabled", "doc", doc)
		return false
	}
	name := MonitorProcName(doc)
	c.mu.Lock()
	registered, ok := c.monitors[doc]
	c.mu.Unlock()
	if ok && c.procs.IsRunning(registered) {
		return true
	}

	prog := c.cfg.Monitor.Program
	cmd := config.Expand(prog.Command, map[string]string{
		"doc":      doc,
		"sync_url": c.cfg.Sync.URL(),
	})
	st, err := c.procs.Start(process.Spec{
		Name:         name,
		Command:      cmd,
		WorkDir:      prog.PackageDir,
		ReadyMarker:  prog.ReadyMarker,
		ReadyTimeout: prog.ReadyTimeout,
		Log:          c.cfg.ProcessLog,
	})
	if err != nil || !st.Running() {
		slog.Error("monitor failed to start", "doc", doc, "err", err, "state", st.State)
		return false
	}
	c.mu.Lock()
	c.monitors[doc] = name
	c.mu.Unlock()
	return true
}

// StopMonitor stops the document's monitor. Idempotent.
func (c *Coordinator) StopMonitor(doc string) bool {
	l := c.lockDoc(doc)
	defer c.unlockDoc(doc, l)
	c.procs.Stop(MonitorProcName(doc))
	c.mu.Lock()
	delete(c.monitors, doc)
	c.mu.Unlock()
	return true
}

// MonitorRunning reports live status of the document's monitor process.
func (c *Coordinator) MonitorRunning(doc string) bool {
	return c.procs.IsRunning(MonitorProcName(doc))
}

// Monitor returns the registered monitor for the document with its live
// running flag. ok is false when no monitor is registered.
func (c *Coordinator) Monitor(doc string) (MonitorStatus, bool) {
	c.mu.Lock()
	name, ok := c.monitors[doc]
	c.mu.Unlock()
	if !ok {
		return MonitorStatus{}, false
	}
	return MonitorStatus{
		Enabled: c.cfg.Monitor.Enabled,
		Name:    name,
		Running: c.procs.IsRunning(name),
	}, true
}

// MonitorDocs lists documents with a registered monitor, sorted.
func (c *Coordinator) MonitorDocs() []string {
	c.mu.Lock()
	out := make([]string, 0, len(c.monitors))
	for doc := range c.monitors {
		out = append(out, doc)
	}
	c.mu.Unlock()
	sort.Strings(out)
	return out
}

// info projects a session record plus live process state. Session fields are
// immutable once the record is in the table, so no lock is needed here.
func (c *Coordinator) info(s *Session) Info {
	info := Info{
		Doc:       s.Doc,
		Sync:      c.cfg.Sync.URL(),
		CreatedAt: s.CreatedAt,
		Monitor:   MonitorStatus{Enabled: c.cfg.Monitor.Enabled},
	}
	if s.MonitorProc != "" {
		info.Monitor.Name = s.MonitorProc
		info.Monitor.Running = c.procs.IsRunning(s.MonitorProc)
	}
	switch b := s.Binding.(type) {
	case DedicatedBinding:
		info.Runtime = RuntimeStatus{
			URL:       b.Addr,
			Dedicated: true,
			Port:      b.Port,
			Running:   c.procs.IsRunning(b.Proc),
		}
	case SharedBinding:
		running := true
		if c.cfg.Runtime.IsManaged() {
			running = c.procs.IsRunning(SharedRuntimeProcName)
		}
		info.Runtime = RuntimeStatus{URL: b.Addr, Running: running}
	default:
		// dedicated spawn failed; the session exists without a usable runtime
		info.Runtime = RuntimeStatus{Dedicated: s.Mode == ModeDedicated}
	}
	return info
}

func (c *Coordinator) record(t history.EventType, doc, detail string) {
	c.mu.Lock()
	sinks := append([]history.Sink(nil), c.sinks...)
	c.mu.Unlock()
	if len(sinks) == 0 {
		return
	}
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Name:       doc,
		Detail:     detail,
	}
	for _, s := range sinks {
		if err := s.Send(context.Background(), e); err != nil {
			slog.Debug("history sink send failed", "type", t, "err", err)
		}
	}
}
