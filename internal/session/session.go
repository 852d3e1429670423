// Package session models the per-document bundle of resources: an optional
// monitor process plus a runtime binding, created on demand and torn down
// explicitly. A session owns exactly what it created; it never owns the
// shared runtime or the sync server.
package session

import (
	"fmt"
	"time"
)

// Mode selects the runtime binding of a session.
type Mode string

const (
	ModeShared    Mode = "shared"
	ModeDedicated Mode = "dedicated"
)

// ParseMode validates an externally supplied mode string. Empty defaults to
// shared; anything else unknown is a caller-visible rejection.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", string(ModeShared):
		return ModeShared, nil
	case string(ModeDedicated):
		return ModeDedicated, nil
	}
	return "", fmt.Errorf("invalid runtime mode %q: must be %q or %q", s, ModeShared, ModeDedicated)
}

// Deterministic process names for per-document children.
func MonitorProcName(doc string) string { return "monitor:" + doc }
func RuntimeProcName(doc string) string { return "runtime:" + doc }

// Names of the always-on managed services in the process table.
const (
	SyncProcName          = "sync"
	SharedRuntimeProcName = "runtime"
)

// Binding is the runtime attachment of a session: a reference to the shared
// runtime, or a dedicated process owned by the session.
type Binding interface {
	Address() string
	Dedicated() bool
}

// SharedBinding points at the pre-existing shared runtime; the session owns
// nothing through it.
type SharedBinding struct {
	Addr string
}

func (b SharedBinding) Address() string { return b.Addr }
func (b SharedBinding) Dedicated() bool { return false }

// DedicatedBinding owns a runtime process and its reserved port.
type DedicatedBinding struct {
	Addr string
	Port int
	Proc string
}

func (b DedicatedBinding) Address() string { return b.Addr }
func (b DedicatedBinding) Dedicated() bool { return true }

// Session is the coordinator's record for one document.
type Session struct {
	Doc         string
	Mode        Mode
	MonitorProc string  // "" when monitors are disabled
	Binding     Binding // nil when a dedicated runtime could not be spawned
	CreatedAt   time.Time
}

// Info is the external projection of a session, combining the record with
// live process-running status.
type Info struct {
	Doc       string        `json:"doc"`
	Sync      string        `json:"sync"`
	Monitor   MonitorStatus `json:"monitor"`
	Runtime   RuntimeStatus `json:"runtime"`
	CreatedAt time.Time     `json:"created_at"`
}

type MonitorStatus struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name,omitempty"`
	Running bool   `json:"running"`
}

type RuntimeStatus struct {
	URL       string `json:"url,omitempty"`
	Dedicated bool   `json:"dedicated"`
	Port      int    `json:"port,omitempty"`
	Running   bool   `json:"running"`
}
