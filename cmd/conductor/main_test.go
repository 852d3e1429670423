package main

import "testing"

func TestBuildRootWiresSubcommands(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{
		"serve":   false,
		"status":  false,
		"session": false,
		"monitor": false,
		"logs":    false,
	}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("subcommand %q not registered", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatalf("--config flag missing")
	}
	if root.PersistentFlags().Lookup("api-url") == nil {
		t.Fatalf("--api-url flag missing")
	}
}

func TestSessionSubcommands(t *testing.T) {
	flags := &GlobalFlags{}
	cmd := createSessionCommand(flags)
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"create", "list", "destroy"} {
		if !names[want] {
			t.Fatalf("session %s missing", want)
		}
	}
}
