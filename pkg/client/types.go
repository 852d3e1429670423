package client

import "time"

// ProcessStatus mirrors the daemon's process snapshot.
type ProcessStatus struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// MonitorStatus is the monitor part of a session.
type MonitorStatus struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name,omitempty"`
	Running bool   `json:"running"`
}

// RuntimeStatus is the runtime binding part of a session.
type RuntimeStatus struct {
	URL       string `json:"url,omitempty"`
	Dedicated bool   `json:"dedicated"`
	Port      int    `json:"port,omitempty"`
	Running   bool   `json:"running"`
}

// Session mirrors the daemon's session projection.
type Session struct {
	Doc       string        `json:"doc"`
	Sync      string        `json:"sync"`
	Monitor   MonitorStatus `json:"monitor"`
	Runtime   RuntimeStatus `json:"runtime"`
	CreatedAt time.Time     `json:"created_at"`
}

// URLs are the client-facing base-service addresses.
type URLs struct {
	Sync    string `json:"sync"`
	Runtime string `json:"runtime"`
}

// Report is the full status snapshot.
type Report struct {
	Processes []ProcessStatus `json:"processes"`
	Sessions  []Session       `json:"sessions"`
	Monitors  []string        `json:"monitors"`
	URLs      URLs            `json:"urls"`
}

// Monitor is the per-document monitor status.
type Monitor struct {
	Doc     string `json:"doc"`
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// SessionRequest creates or switches a session.
type SessionRequest struct {
	Doc  string `json:"doc"`
	Mode string `json:"mode,omitempty"`
}

// Logs is the recent output of one supervised process.
type Logs struct {
	Name  string   `json:"name"`
	Lines []string `json:"lines"`
}

// File is one document in the storage directory.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
