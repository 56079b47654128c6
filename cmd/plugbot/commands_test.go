package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("plugbot %v error = %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestPluginsCommand(t *testing.T) {
	out := execute(t, "plugins")
	for _, want := range []string{"core", "pick", "help", "perm", "locale", "1. (collect members)", "namespaces: members, picks"} {
		if !strings.Contains(out, want) {
			t.Fatalf("plugins output missing %q:\n%s", want, out)
		}
	}
}

func TestBridgesCommand(t *testing.T) {
	out := execute(t, "bridges")
	if !strings.Contains(out, "console *") || !strings.Contains(out, "telegram") {
		t.Fatalf("bridges output:\n%s", out)
	}
}

func TestStoreCommands(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dataDir, "manager"), 0o700); err != nil {
		t.Fatal(err)
	}
	body := `{"g1":{"u1":{"kind":"admin"}}}`
	if err := os.WriteFile(filepath.Join(dataDir, "manager", "perm.json"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	out := execute(t, "--data-dir", dataDir, "store", "show", "manager.perm")
	if !strings.Contains(out, `"kind": "admin"`) {
		t.Fatalf("store show output:\n%s", out)
	}
	out = execute(t, "--data-dir", dataDir, "store", "show", "pick.picks")
	if !strings.Contains(out, "(empty)") {
		t.Fatalf("store show empty output:\n%s", out)
	}
	out = execute(t, "--data-dir", dataDir, "store", "show", "pick")
	if !strings.Contains(out, "pick.members") || !strings.Contains(out, "pick.picks") {
		t.Fatalf("store show inner output:\n%s", out)
	}
	out = execute(t, "--data-dir", dataDir, "store", "ls")
	for _, want := range []string{"manager.locale", "manager.perm", "pick.members", "pick.picks"} {
		if !strings.Contains(out, want) {
			t.Fatalf("store ls output missing %q:\n%s", want, out)
		}
	}
}

func TestInitWritesConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	out := execute(t, "--data-dir", filepath.Join(dir, "data"), "init", cfg)
	if !strings.Contains(out, "initialized "+cfg) {
		t.Fatalf("init output:\n%s", out)
	}
	body, err := os.ReadFile(cfg)
	if err != nil || !strings.Contains(string(body), "active_bridge:") {
		t.Fatalf("config = %s, %v", body, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "locales")); err != nil {
		t.Fatalf("locales dir not created: %v", err)
	}

	viper.Reset()
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"init", cfg})
	if err := root.Execute(); err == nil {
		t.Fatalf("second init without --force succeeded")
	}
}
