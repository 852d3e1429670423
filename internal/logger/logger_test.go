package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatalf("empty config reports enabled")
	}
	if !(Config{Dir: "/tmp"}).Enabled() || !(Config{StdoutPath: "/tmp/x.log"}).Enabled() {
		t.Fatalf("configured mirror reports disabled")
	}
}

func TestWritersCreateFiles(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	outW, errW, err := c.Writers("monitor:notes.md")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("writers are nil with Dir set")
	}
	if _, err := outW.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()

	// ':' is not a safe filename character
	data, err := os.ReadFile(filepath.Join(dir, "monitor_notes.md.stdout.log"))
	if err != nil {
		t.Fatalf("read mirror: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("mirror content = %q", data)
	}
}

func TestWritersDisabled(t *testing.T) {
	outW, errW, err := (Config{}).Writers("x")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatalf("writers created without destinations")
	}
}

func TestExplicitPathsOverrideDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir, StdoutPath: filepath.Join(dir, "custom.log")}
	outW, errW, err := c.Writers("svc")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if _, err := outW.Write([]byte("x\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()
	if _, err := os.Stat(filepath.Join(dir, "custom.log")); err != nil {
		t.Fatalf("explicit stdout path ignored: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupInstallsDefault(t *testing.T) {
	l := Setup("debug")
	if l == nil || slog.Default() != l {
		t.Fatalf("Setup did not install the default logger")
	}
}
