package process

import (
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/mdstack/conductor/internal/metrics"
)

// Status is a point-in-time snapshot of a process record.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Reason    string    `json:"reason,omitempty"` // set on failed records
}

// Running reports whether the snapshot was taken in the running state.
func (s Status) Running() bool { return s.State == StateRunning }

// Process is one supervised child. All fields are guarded by mu and mutated
// only by the owning Manager; concurrent reads go through Snapshot.
type Process struct {
	mu         sync.Mutex
	spec       Spec
	cmd        *exec.Cmd
	state      State
	failReason string
	startedAt  time.Time
	exitCode   *int
	out        *ring
	waitDone   chan struct{} // closed by the waiter once the child is reaped
	outW, errW io.WriteCloser

	// opMu serializes mutating operations (start/stop) on this name.
	opMu sync.Mutex
}

func newProcess(spec Spec) *Process {
	return &Process{
		spec:     spec,
		state:    StateStarting,
		out:      newRing(spec.OutputLines),
		waitDone: make(chan struct{}),
	}
}

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Name:      p.spec.Name,
		State:     p.state,
		StartedAt: p.startedAt,
		ExitCode:  p.exitCode,
		Reason:    p.failReason,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		st.PID = p.cmd.Process.Pid
	}
	return st
}

func (p *Process) setStarted(cmd *exec.Cmd) {
	p.mu.Lock()
	p.cmd = cmd
	p.startedAt = time.Now()
	p.mu.Unlock()
}

// transition moves the record to the given state. Transitions out of a
// terminal state are ignored; that resolves the readiness race losers
// (a late timeout or exit observation must not overwrite the winner).
func (p *Process) transition(to State) bool {
	p.mu.Lock()
	from := p.state
	if from.Terminal() || from == to {
		p.mu.Unlock()
		return false
	}
	p.state = to
	p.mu.Unlock()
	metrics.RecordStateTransition(p.spec.Name, from.String(), to.String())
	return true
}

// fail marks the record failed with a diagnostic reason (kept alongside the
// state because failures are reported via state, not raised).
func (p *Process) fail(reason string) bool {
	p.mu.Lock()
	from := p.state
	if from.Terminal() {
		p.mu.Unlock()
		return false
	}
	p.state = StateFailed
	p.failReason = reason
	p.mu.Unlock()
	metrics.RecordStateTransition(p.spec.Name, from.String(), StateFailed.String())
	return true
}

func (p *Process) pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *Process) appendLine(line string) {
	p.mu.Lock()
	p.out.append(line)
	p.mu.Unlock()
}

// Output returns up to n of the most recent output lines (both streams,
// interleaved in arrival order). n <= 0 returns everything buffered.
func (p *Process) Output(n int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.tail(n)
}

// markExited records the exit of the child. The final state depends on what
// the record was doing: an exit while running is a failure, an exit while
// stopping is the expected stop, and an exit while starting is left for the
// start call's readiness race to classify.
func (p *Process) markExited(code int, exitErr error) State {
	p.mu.Lock()
	c := code
	p.exitCode = &c
	from := p.state
	var to State
	switch from {
	case StateRunning:
		to = StateFailed
		p.failReason = "exited unexpectedly"
		if exitErr != nil {
			p.failReason = "exited unexpectedly: " + exitErr.Error()
		}
		p.state = to
	case StateStopping:
		to = StateStopped
		p.state = to
	default:
		// starting: Start decides; terminal: nothing to do
	}
	p.mu.Unlock()
	if to == "" {
		return from
	}
	metrics.RecordStateTransition(p.spec.Name, from.String(), to.String())
	if to == StateFailed {
		metrics.IncFailure(p.spec.Name, "unexpected-exit")
	}
	return to
}

func (p *Process) setWriters(outW, errW io.WriteCloser) {
	p.mu.Lock()
	p.outW, p.errW = outW, errW
	p.mu.Unlock()
}

func (p *Process) closeWriters() {
	p.mu.Lock()
	outW, errW := p.outW, p.errW
	p.outW, p.errW = nil, nil
	p.mu.Unlock()
	if outW != nil {
		_ = outW.Close()
	}
	if errW != nil {
		_ = errW.Close()
	}
}
