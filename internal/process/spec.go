package process

import (
	"os/exec"
	"strings"
	"time"

	"github.com/mdstack/conductor/internal/logger"
)

// Defaults applied by the Manager when a Spec leaves them zero.
const (
	DefaultReadyTimeout = 10 * time.Second
	DefaultOutputLines  = 500
)

// Spec describes a child process to supervise. Name is the primary key in
// the process table; Command and WorkDir are immutable after spawn.
type Spec struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`            // command line; run via /bin/sh -c when it uses shell syntax
	WorkDir string   `json:"work_dir,omitempty"` // must exist, otherwise the start fails without spawning
	Env     []string `json:"env,omitempty"`      // extra KEY=VALUE entries appended to the parent env

	// Ready decides, line by line, when the process counts as running.
	// Nil with a non-empty ReadyMarker means Substring(ReadyMarker).
	Ready        Matcher       `json:"-"`
	ReadyMarker  string        `json:"ready_marker,omitempty"`
	ReadyTimeout time.Duration `json:"ready_timeout,omitempty"`

	// OutputLines bounds the in-memory ring of recent output; 0 means
	// DefaultOutputLines.
	OutputLines int `json:"output_lines,omitempty"`

	// Log optionally mirrors both streams to rotating files.
	Log logger.Config `json:"log,omitempty"`
}

func (s *Spec) matcher() Matcher {
	if s.Ready != nil {
		return s.Ready
	}
	if s.ReadyMarker != "" {
		return Substring(s.ReadyMarker)
	}
	return nil
}

// buildCommand constructs the *exec.Cmd for s.Command. Commands containing
// shell metacharacters run under /bin/sh -c; plain argv-style commands are
// executed directly so signals reach the program, not a wrapping shell.
func (s *Spec) buildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204 -- command lines come from resolved configuration
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204 -- command lines come from resolved configuration
	return exec.Command(name, args...)
}
