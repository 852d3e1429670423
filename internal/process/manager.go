package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mdstack/conductor/internal/history"
	"github.com/mdstack/conductor/internal/metrics"
)

const (
	// DefaultStopGrace bounds how long Stop waits for a graceful exit
	// before escalating to a kill. Independent of the readiness timeout.
	DefaultStopGrace = 5 * time.Second

	// killConfirmWait bounds the wait for reaping after a kill; if the OS
	// already reaped the child this still resolves as stopped.
	killConfirmWait = 2 * time.Second

	maxLineBytes = 1024 * 1024
)

// Manager owns the process table. Start/Stop on the same name are
// serialized; operations on different names are independent. Failures to
// come up are expressed through the returned record's state, never as
// errors: "service unavailable" is an expected outcome the caller branches
// on. Errors are reserved for contract violations (malformed specs).
type Manager struct {
	mu        sync.Mutex
	procs     map[string]*Process
	stopGrace time.Duration
	sinks     []history.Sink
}

func NewManager() *Manager {
	return &Manager{procs: make(map[string]*Process), stopGrace: DefaultStopGrace}
}

// SetStopGrace overrides the graceful-stop window.
func (m *Manager) SetStopGrace(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.stopGrace = d
	m.mu.Unlock()
}

// SetHistorySinks configures best-effort lifecycle-event sinks.
// Passing none clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.mu.Lock()
	m.sinks = append([]history.Sink(nil), sinks...)
	m.mu.Unlock()
}

// Start spawns the named process and blocks until it becomes running, fails,
// or the readiness timeout elapses. Starting a name that already has a
// non-terminal record returns that record unchanged and spawns nothing.
func (m *Manager) Start(spec Spec) (Status, error) {
	if spec.Name == "" {
		return Status{}, errors.New("spec.name required")
	}
	if strings.TrimSpace(spec.Command) == "" {
		return Status{}, fmt.Errorf("process %s: command required", spec.Name)
	}
	ready := spec.matcher()
	if ready == nil {
		return Status{}, fmt.Errorf("process %s: readiness marker or matcher required", spec.Name)
	}
	if spec.ReadyTimeout <= 0 {
		spec.ReadyTimeout = DefaultReadyTimeout
	}

	m.mu.Lock()
	if existing, ok := m.procs[spec.Name]; ok {
		if st := existing.Snapshot(); !st.State.Terminal() {
			m.mu.Unlock()
			return st, nil
		}
	}
	p := newProcess(spec)
	m.procs[spec.Name] = p
	m.mu.Unlock()

	p.opMu.Lock()
	defer p.opMu.Unlock()
	return m.spawn(p, spec, ready), nil
}

func (m *Manager) spawn(p *Process, spec Spec, ready Matcher) Status {
	if spec.WorkDir != "" {
		if fi, err := os.Stat(spec.WorkDir); err != nil || !fi.IsDir() {
			slog.Error("process start failed: working directory not found",
				"name", spec.Name, "workdir", spec.WorkDir)
			p.fail("working directory not found: " + spec.WorkDir)
			metrics.IncFailure(spec.Name, "missing-workdir")
			m.record(history.EventFailed, p.Snapshot(), "missing workdir")
			return p.Snapshot()
		}
	}

	cmd := spec.buildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	configureSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.fail("stdout pipe: " + err.Error())
		metrics.IncFailure(spec.Name, "spawn")
		return p.Snapshot()
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		p.fail("stderr pipe: " + err.Error())
		metrics.IncFailure(spec.Name, "spawn")
		return p.Snapshot()
	}

	if err := cmd.Start(); err != nil {
		slog.Error("process spawn failed", "name", spec.Name, "err", err)
		p.fail("spawn failed: " + err.Error())
		metrics.IncFailure(spec.Name, "spawn")
		m.record(history.EventFailed, p.Snapshot(), err.Error())
		return p.Snapshot()
	}
	p.setStarted(cmd)
	slog.Debug("process spawned", "name", spec.Name, "pid", cmd.Process.Pid)

	outW, errW, _ := spec.Log.Writers(spec.Name)
	p.setWriters(outW, errW)

	readyCh := make(chan struct{}, 1)
	scan := func(r io.Reader, mirror io.Writer) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			line := sc.Text()
			p.appendLine(line)
			if mirror != nil {
				_, _ = io.WriteString(mirror, line+"\n")
			}
			if ready.Match(line) {
				select {
				case readyCh <- struct{}{}:
				default:
				}
			}
		}
		if err := sc.Err(); err != nil {
			// An oversized line (or read error) stops the scanner with the
			// pipe still open. Keep draining to EOF so the child never
			// blocks on a full pipe and the waiter can reap it.
			slog.Warn("process output scan aborted, draining stream",
				"name", spec.Name, "err", err)
			_, _ = io.Copy(io.Discard, r)
		}
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() { defer readers.Done(); scan(stdout, outW) }()
	go func() { defer readers.Done(); scan(stderr, errW) }()
	go func() {
		// Reap only after both pipes hit EOF; Wait would otherwise race
		// the readers for the pipe contents.
		readers.Wait()
		werr := cmd.Wait()
		code := 0
		if werr != nil {
			var ee *exec.ExitError
			if errors.As(werr, &ee) {
				code = ee.ExitCode()
			} else {
				code = -1
			}
		}
		final := p.markExited(code, werr)
		p.closeWriters()
		close(p.waitDone)
		if final == StateFailed {
			slog.Warn("process exited unexpectedly", "name", spec.Name, "exit_code", code)
			m.record(history.EventExited, p.Snapshot(), fmt.Sprintf("exit code %d", code))
		}
	}()

	started := time.Now()
	timer := time.NewTimer(spec.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-readyCh:
		p.transition(StateRunning)
		select {
		case <-p.waitDone:
			// died right after printing the marker
			p.fail("exited immediately after becoming ready")
			metrics.IncFailure(spec.Name, "early-exit")
			m.record(history.EventFailed, p.Snapshot(), "exited after ready")
		default:
			slog.Info("process ready", "name", spec.Name, "pid", cmd.Process.Pid,
				"after", time.Since(started).Round(time.Millisecond))
			metrics.IncStart(spec.Name)
			metrics.ObserveReadyDuration(spec.Name, time.Since(started).Seconds())
			m.record(history.EventReady, p.Snapshot(), "")
		}
	case <-p.waitDone:
		slog.Error("process exited before becoming ready", "name", spec.Name)
		p.fail("exited before becoming ready")
		metrics.IncFailure(spec.Name, "early-exit")
		m.record(history.EventFailed, p.Snapshot(), "early exit")
	case <-timer.C:
		slog.Error("process not ready within timeout", "name", spec.Name, "timeout", spec.ReadyTimeout)
		m.killAndReap(p)
		p.fail(fmt.Sprintf("not ready within %s", spec.ReadyTimeout))
		metrics.IncFailure(spec.Name, "timeout")
		m.record(history.EventFailed, p.Snapshot(), "readiness timeout")
	}
	return p.Snapshot()
}

// Stop terminates the named process (SIGTERM, then SIGKILL after the grace
// period) and removes its record once the child is confirmed dead. Unknown
// names are a no-op success.
func (m *Manager) Stop(name string) bool {
	m.mu.Lock()
	p := m.procs[name]
	m.mu.Unlock()
	if p == nil {
		return true
	}

	p.opMu.Lock()
	st := p.Snapshot()
	if !st.State.Terminal() && st.PID > 0 {
		p.transition(StateStopping)
		terminateGroup(st.PID)
		select {
		case <-p.waitDone:
		case <-time.After(m.grace()):
			slog.Warn("process did not exit within grace period, killing",
				"name", name, "pid", st.PID)
			killGroup(st.PID)
			select {
			case <-p.waitDone:
			case <-time.After(killConfirmWait):
				// already reaped by the OS; count as stopped
			}
		}
		p.transition(StateStopped)
		metrics.IncStop(name)
		m.record(history.EventStopped, p.Snapshot(), "")
		slog.Info("process stopped", "name", name)
	}
	p.opMu.Unlock()

	m.mu.Lock()
	if m.procs[name] == p {
		delete(m.procs, name)
	}
	m.mu.Unlock()
	return true
}

// StopAll stops every tracked process. Stops are independent; one hanging
// child does not block the others. Used at system shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.procs))
	for n := range m.procs {
		names = append(names, n)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_ = m.Stop(name)
		}(n)
	}
	wg.Wait()
}

// IsRunning reports whether the named process currently has a running record.
func (m *Manager) IsRunning(name string) bool {
	st, ok := m.Status(name)
	return ok && st.Running()
}

// Status returns the snapshot for one name.
func (m *Manager) Status(name string) (Status, bool) {
	m.mu.Lock()
	p := m.procs[name]
	m.mu.Unlock()
	if p == nil {
		return Status{}, false
	}
	return p.Snapshot(), true
}

// Statuses returns snapshots for every tracked process, sorted by name.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	ps := make([]*Process, 0, len(m.procs))
	for _, p := range m.procs {
		ps = append(ps, p)
	}
	m.mu.Unlock()
	out := make([]Status, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// States returns a name -> state snapshot of the whole table.
func (m *Manager) States() map[string]State {
	sts := m.Statuses()
	out := make(map[string]State, len(sts))
	for _, st := range sts {
		out[st.Name] = st.State
	}
	return out
}

// Output returns up to n recent output lines of the named process.
func (m *Manager) Output(name string, n int) []string {
	m.mu.Lock()
	p := m.procs[name]
	m.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Output(n)
}

func (m *Manager) grace() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopGrace
}

func (m *Manager) killAndReap(p *Process) {
	if pid := p.pid(); pid > 0 {
		killGroup(pid)
	}
	select {
	case <-p.waitDone:
	case <-time.After(killConfirmWait):
	}
}

func (m *Manager) record(t history.EventType, st Status, detail string) {
	m.mu.Lock()
	sinks := append([]history.Sink(nil), m.sinks...)
	m.mu.Unlock()
	if len(sinks) == 0 {
		return
	}
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Name:       st.Name,
		PID:        st.PID,
		Detail:     detail,
	}
	for _, s := range sinks {
		if err := s.Send(context.Background(), e); err != nil {
			slog.Debug("history sink send failed", "type", t, "err", err)
		}
	}
}
