package process

import (
	"testing"
)

func TestBuildCommandPlainArgv(t *testing.T) {
	s := Spec{Command: "sleep 5"}
	cmd := s.buildCommand()
	if len(cmd.Args) != 2 || cmd.Args[0] != "sleep" || cmd.Args[1] != "5" {
		t.Fatalf("args = %v, want direct exec", cmd.Args)
	}
}

func TestBuildCommandShellSyntax(t *testing.T) {
	s := Spec{Command: "echo a; sleep 5"}
	cmd := s.buildCommand()
	if len(cmd.Args) != 3 || cmd.Args[0] != "/bin/sh" || cmd.Args[1] != "-c" {
		t.Fatalf("args = %v, want /bin/sh -c", cmd.Args)
	}
}

func TestMatcherPrecedence(t *testing.T) {
	custom := MatcherFunc(func(string) bool { return true })
	s := Spec{Ready: custom, ReadyMarker: "marker"}
	if !s.matcher().Match("anything") {
		t.Fatalf("explicit matcher must win over marker")
	}

	s = Spec{ReadyMarker: "listening on"}
	m := s.matcher()
	if !m.Match("now listening on :8080") || m.Match("starting up") {
		t.Fatalf("substring matcher misbehaved")
	}

	s = Spec{}
	if s.matcher() != nil {
		t.Fatalf("no marker and no matcher must yield nil")
	}
}
