package process

// State is the lifecycle state of a supervised process.
//
// Transitions:
//
//	starting -> running   readiness marker observed before the timeout
//	starting -> failed    timeout, early exit, or spawn failure
//	running  -> stopping  stop requested
//	running  -> failed    unexpected exit
//	stopping -> stopped   exited within the grace period (or after kill)
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateStopped || s == StateFailed }

func (s State) String() string { return string(s) }
