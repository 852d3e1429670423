package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdstack/conductor/internal/config"
	"github.com/mdstack/conductor/internal/session"
)

func managedTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Ports:   config.PortRange{Base: 9600, Span: 4},
		DocsDir: filepath.Join(t.TempDir(), "docs"),
		Sync: config.ManagedService(config.ManagedProgram{
			Port:         4444,
			Command:      "echo sync-ready; sleep 60",
			ReadyMarker:  "sync-ready",
			ReadyTimeout: 5 * time.Second,
		}, "ws://localhost:4444"),
		Runtime: config.ManagedService(config.ManagedProgram{
			Port:         8000,
			Command:      "echo runtime-ready; sleep 60",
			ReadyMarker:  "runtime-ready",
			ReadyTimeout: 5 * time.Second,
		}, "http://127.0.0.1:8000"),
		Monitor: config.Monitor{
			Enabled: true,
			Program: config.ManagedProgram{
				Command:      "echo monitor-ready; sleep 60",
				ReadyMarker:  "monitor-ready",
				ReadyTimeout: 5 * time.Second,
			},
		},
	}
}

func TestNewRejectsBadPortRange(t *testing.T) {
	cfg := managedTestConfig(t)
	cfg.Ports = config.PortRange{Base: 0, Span: 0}
	if _, err := New(cfg); err == nil {
		t.Fatalf("invalid port range accepted")
	}
}

func TestStartBringsUpBaseServices(t *testing.T) {
	o, err := New(managedTestConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer o.Stop()
	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !o.Processes().IsRunning(session.SyncProcName) {
		t.Fatalf("sync not running")
	}
	if !o.Processes().IsRunning(session.SharedRuntimeProcName) {
		t.Fatalf("shared runtime not running")
	}
	if _, err := os.Stat(o.DocsDir()); err != nil {
		t.Fatalf("docs dir not created: %v", err)
	}
}

func TestRemoteServicesAreNotSpawned(t *testing.T) {
	cfg := managedTestConfig(t)
	cfg.Sync = config.RemoteService("ws://elsewhere:4444")
	cfg.Runtime = config.RemoteService("http://elsewhere:8000")
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer o.Stop()
	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := o.Processes().Statuses(); len(got) != 0 {
		t.Fatalf("remote config spawned processes: %v", got)
	}
	urls := o.URLs()
	if urls.Sync != "ws://elsewhere:4444" || urls.Runtime != "http://elsewhere:8000" {
		t.Fatalf("urls = %+v", urls)
	}
}

func TestStopIsComplete(t *testing.T) {
	o, err := New(managedTestConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := o.Sessions().Create("a.md", session.ModeDedicated); err != nil {
		t.Fatalf("create session: %v", err)
	}
	o.Stop()
	if got := o.Processes().Statuses(); len(got) != 0 {
		t.Fatalf("process table not empty after stop: %v", got)
	}
	if got := o.Sessions().List(); len(got) != 0 {
		t.Fatalf("sessions remain after stop: %v", got)
	}
}

func TestStatusReport(t *testing.T) {
	o, err := New(managedTestConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer o.Stop()
	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := o.Sessions().Create("r.md", session.ModeShared); err != nil {
		t.Fatalf("create session: %v", err)
	}
	report := o.Status()
	if len(report.Processes) == 0 {
		t.Fatalf("report has no processes")
	}
	if len(report.Sessions) != 1 || report.Sessions[0].Doc != "r.md" {
		t.Fatalf("report sessions = %v", report.Sessions)
	}
	if report.URLs.Sync == "" || report.URLs.Runtime == "" {
		t.Fatalf("report urls incomplete: %+v", report.URLs)
	}
}

func TestBadHistoryDSNIsNonFatal(t *testing.T) {
	cfg := managedTestConfig(t)
	cfg.Sync = config.RemoteService("ws://x:1")
	cfg.Runtime = config.RemoteService("http://x:2")
	cfg.HistoryDSN = "bogus://nowhere"
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("bad history DSN must not fail construction: %v", err)
	}
	o.Stop()
}
