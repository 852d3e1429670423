// Package conductor is the embeddable facade over the daemon's subsystems:
// configuration, the orchestrator, the HTTP surface, metrics and logging.
// Programs that want the daemon in-process use this package instead of the
// internal ones.
package conductor

import (
	"net/http"

	"github.com/mdstack/conductor/internal/config"
	"github.com/mdstack/conductor/internal/logger"
	"github.com/mdstack/conductor/internal/metrics"
	"github.com/mdstack/conductor/internal/orchestrator"
	"github.com/mdstack/conductor/internal/ports"
	"github.com/mdstack/conductor/internal/process"
	"github.com/mdstack/conductor/internal/server"
	"github.com/mdstack/conductor/internal/session"
)

// Re-exported types so embedders never import internal packages.
type (
	Config         = config.Config
	ManagedProgram = config.ManagedProgram
	Service        = config.Service

	Orchestrator = orchestrator.Orchestrator
	Report       = orchestrator.Report
	URLs         = orchestrator.URLs

	ProcessSpec   = process.Spec
	ProcessStatus = process.Status
	ProcessState  = process.State

	SessionMode = session.Mode
	SessionInfo = session.Info
)

const (
	ModeShared    = session.ModeShared
	ModeDedicated = session.ModeDedicated
)

// ErrPortsExhausted is returned by dedicated session creation when every
// port in the configured range is reserved.
var ErrPortsExhausted = ports.ErrExhausted

// DefaultConfig returns the all-managed local-development configuration.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads a TOML config file and resolves it over the defaults.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// New constructs an orchestrator from the configuration. Call Start to bring
// the managed base services up and Stop to tear everything down.
func New(cfg *Config) (*Orchestrator, error) { return orchestrator.New(cfg) }

// NewHTTPServer starts the daemon API on addr and returns the server for
// shutdown control.
func NewHTTPServer(addr, basePath string, orch *Orchestrator) *http.Server {
	return server.NewServer(addr, basePath, orch)
}

// NewHTTPHandler returns the daemon API as an http.Handler for mounting in
// an existing server or mux.
func NewHTTPHandler(basePath string, orch *Orchestrator) http.Handler {
	return server.NewRouter(orch, basePath).Handler()
}

// RegisterMetricsDefault registers the Prometheus collectors with the
// default registry.
func RegisterMetricsDefault() error { return metrics.RegisterDefault() }

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler { return metrics.Handler() }

// SetupLogger installs the process-wide slog handler at the given level
// ("debug", "info", "warn", "error").
func SetupLogger(level string) { logger.Setup(level) }
