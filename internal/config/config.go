// Package config assembles the immutable configuration the daemon runs
// with: which dependencies are managed (spawned and supervised) versus
// remote (pre-existing address), the port range for dedicated runtimes, and
// the ambient settings (API address, logging, history DSN).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mdstack/conductor/internal/logger"
)

// Defaults mirror the conventional local-development layout.
const (
	DefaultHTTPAddr    = ":8080"
	DefaultSyncPort    = 4444
	DefaultRuntimePort = 8000
	DefaultPortBase    = 9100
	DefaultPortSpan    = 100
	DefaultDocsDir     = "./docs"

	DefaultSyncCommand    = "node bin/cli.js --port {port} {docs}"
	DefaultRuntimeCommand = "uv run python -m runtime_server --port {port}"
	DefaultMonitorCommand = "node bin/cli.js --doc {doc} {sync_url}"

	DefaultSyncMarker    = "Server started"
	DefaultRuntimeMarker = "Uvicorn running"
	DefaultMonitorMarker = "Monitor ready"

	DefaultSyncTimeout    = 10 * time.Second
	DefaultRuntimeTimeout = 15 * time.Second
	DefaultMonitorTimeout = 10 * time.Second
)

// ManagedProgram holds the spawn parameters for a dependency this daemon
// owns: where its package lives, how to launch it, and how readiness is
// recognized. Command is a template; {port}, {docs}, {doc} and {sync_url}
// are substituted at spawn time.
type ManagedProgram struct {
	PackageDir   string
	Port         int
	Command      string
	ReadyMarker  string
	ReadyTimeout time.Duration
}

// Service is the managed-vs-remote variant for a supervised dependency.
// Exactly one arm is populated, so "managed but no spawn params" cannot be
// represented. Use ManagedService or RemoteService to construct.
type Service struct {
	managed *ManagedProgram
	url     string
}

func ManagedService(p ManagedProgram, url string) Service {
	return Service{managed: &p, url: url}
}

func RemoteService(url string) Service {
	return Service{url: url}
}

// Program returns the spawn parameters and true when the service is managed.
func (s Service) Program() (ManagedProgram, bool) {
	if s.managed == nil {
		return ManagedProgram{}, false
	}
	return *s.managed, true
}

func (s Service) IsManaged() bool { return s.managed != nil }

// URL is the service's network address, managed or not.
func (s Service) URL() string { return s.url }

// Monitor configures the per-document monitor subsystem. Monitors are
// either managed or globally disabled; there is no remote arm.
type Monitor struct {
	Enabled bool
	Program ManagedProgram
}

// Editor configures static serving of the editor UI.
type Editor struct {
	Enabled bool
	Dir     string
}

// PortRange is the allocation window for dedicated runtime ports.
type PortRange struct {
	Base int
	Span int
}

// Config is the resolved, immutable configuration.
type Config struct {
	HTTPAddr   string
	LogLevel   string
	HistoryDSN string
	StopGrace  time.Duration

	ProcessLog logger.Config
	Ports      PortRange

	Sync    Service
	DocsDir string // document storage used by the managed sync server and the files API
	Runtime Service
	Monitor Monitor
	Editor  Editor
}

// SyncURL and RuntimeURL derive local addresses for managed services.
func SyncURL(port int) string    { return fmt.Sprintf("ws://localhost:%d", port) }
func RuntimeURL(port int) string { return fmt.Sprintf("http://127.0.0.1:%d", port) }

// Expand substitutes {key} placeholders in a command template.
func Expand(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Default returns the all-managed local-development configuration.
func Default() *Config {
	return resolve(defaultFile())
}

// Load reads a TOML config file and resolves it over the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	fc := defaultFile()
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}
	return resolve(fc), nil
}

// fileConfig is the on-disk TOML shape.
type fileConfig struct {
	HTTPAddr   string        `mapstructure:"http_addr"`
	LogLevel   string        `mapstructure:"log_level"`
	HistoryDSN string        `mapstructure:"history_dsn"`
	StopGrace  time.Duration `mapstructure:"stop_grace"`

	ProcessLog logger.Config  `mapstructure:"process_log"`
	Ports      portsSection   `mapstructure:"ports"`
	Sync       serviceSection `mapstructure:"sync"`
	Runtime    serviceSection `mapstructure:"runtime"`
	Monitor    monitorSection `mapstructure:"monitor"`
	Editor     editorSection  `mapstructure:"editor"`
}

type portsSection struct {
	Base int `mapstructure:"base"`
	Span int `mapstructure:"span"`
}

type serviceSection struct {
	Mode         string        `mapstructure:"mode"` // "managed" or "remote"
	URL          string        `mapstructure:"url"`
	PackageDir   string        `mapstructure:"package_dir"`
	Port         int           `mapstructure:"port"`
	Command      string        `mapstructure:"command"`
	ReadyMarker  string        `mapstructure:"ready_marker"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	DocsDir      string        `mapstructure:"docs_dir"` // sync only
}

type monitorSection struct {
	Enabled      *bool         `mapstructure:"enabled"`
	PackageDir   string        `mapstructure:"package_dir"`
	Command      string        `mapstructure:"command"`
	ReadyMarker  string        `mapstructure:"ready_marker"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
}

type editorSection struct {
	Enabled *bool  `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

func defaultFile() fileConfig {
	enabled := true
	return fileConfig{
		HTTPAddr: DefaultHTTPAddr,
		LogLevel: "info",
		Ports:    portsSection{Base: DefaultPortBase, Span: DefaultPortSpan},
		Sync: serviceSection{
			Mode:         "managed",
			PackageDir:   "./packages/sync-server",
			Port:         DefaultSyncPort,
			Command:      DefaultSyncCommand,
			ReadyMarker:  DefaultSyncMarker,
			ReadyTimeout: DefaultSyncTimeout,
			DocsDir:      DefaultDocsDir,
		},
		Runtime: serviceSection{
			Mode:         "managed",
			PackageDir:   "./packages/runtime",
			Port:         DefaultRuntimePort,
			Command:      DefaultRuntimeCommand,
			ReadyMarker:  DefaultRuntimeMarker,
			ReadyTimeout: DefaultRuntimeTimeout,
		},
		Monitor: monitorSection{
			Enabled:      &enabled,
			PackageDir:   "./packages/monitor",
			Command:      DefaultMonitorCommand,
			ReadyMarker:  DefaultMonitorMarker,
			ReadyTimeout: DefaultMonitorTimeout,
		},
		Editor: editorSection{Enabled: &enabled, Dir: "./packages/editor/dist"},
	}
}

func (fc fileConfig) validate() error {
	for name, s := range map[string]serviceSection{"sync": fc.Sync, "runtime": fc.Runtime} {
		switch s.Mode {
		case "", "managed", "remote":
		default:
			return fmt.Errorf("%s.mode must be \"managed\" or \"remote\", got %q", name, s.Mode)
		}
	}
	if fc.Ports.Base <= 0 || fc.Ports.Span <= 0 {
		return fmt.Errorf("ports.base and ports.span must be positive")
	}
	return nil
}

func resolve(fc fileConfig) *Config {
	cfg := &Config{
		HTTPAddr:   fc.HTTPAddr,
		LogLevel:   fc.LogLevel,
		HistoryDSN: fc.HistoryDSN,
		StopGrace:  fc.StopGrace,
		ProcessLog: fc.ProcessLog,
		Ports:      PortRange{Base: fc.Ports.Base, Span: fc.Ports.Span},
		DocsDir:    fc.Sync.DocsDir,
	}

	cfg.Sync = resolveService(fc.Sync, SyncURL)
	cfg.Runtime = resolveService(fc.Runtime, RuntimeURL)

	cfg.Monitor = Monitor{
		Enabled: fc.Monitor.Enabled == nil || *fc.Monitor.Enabled,
		Program: ManagedProgram{
			PackageDir:   fc.Monitor.PackageDir,
			Command:      fc.Monitor.Command,
			ReadyMarker:  fc.Monitor.ReadyMarker,
			ReadyTimeout: fc.Monitor.ReadyTimeout,
		},
	}
	cfg.Editor = Editor{
		Enabled: fc.Editor.Enabled == nil || *fc.Editor.Enabled,
		Dir:     fc.Editor.Dir,
	}
	return cfg
}

func resolveService(s serviceSection, localURL func(int) string) Service {
	switch s.Mode {
	case "remote":
		url := s.URL
		if url == "" {
			// Remote with no explicit address: assume the conventional
			// local port (the "don't start it, it is already there" case).
			url = localURL(s.Port)
		}
		return RemoteService(url)
	default: // managed
		return ManagedService(ManagedProgram{
			PackageDir:   s.PackageDir,
			Port:         s.Port,
			Command:      s.Command,
			ReadyMarker:  s.ReadyMarker,
			ReadyTimeout: s.ReadyTimeout,
		}, localURL(s.Port))
	}
}
