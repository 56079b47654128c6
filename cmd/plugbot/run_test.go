package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quailyquaily/plugbot/bridge"
	"github.com/quailyquaily/plugbot/bridge/console"
	"github.com/quailyquaily/plugbot/internal/fsstore"
	"github.com/quailyquaily/plugbot/internal/logutil"
	"github.com/quailyquaily/plugbot/plugin"
)

func consoleBot(t *testing.T, dataDir, localesDir, script string, out *bytes.Buffer) botOptions {
	t.Helper()
	b := console.New(strings.NewReader(script), out, console.Options{
		ChatID:  "c1",
		User:    bridge.User{ID: "u1", Username: "ann"},
		BotName: "plugbot",
	})
	return botOptions{
		DataDir:    dataDir,
		LocalesDir: localesDir,
		Bridge:     b,
		Plugins:    builtinPlugins(),
		Config: plugin.Config{
			SelfPronoun: "plugbot",
			CmdPrefix:   "!",
			Owners:      []string{"u1"},
		},
		WatchLocales:  true,
		RecordMissing: true,
		MetricsListen: "127.0.0.1:0",
		DrainTimeout:  5 * time.Second,
		Logger:        logutil.Discard(),
	}
}

func TestRunBotConsole(t *testing.T) {
	dataDir := t.TempDir()
	localesDir := t.TempDir()
	var out bytes.Buffer
	opts := consoleBot(t, dataDir, localesDir, "!help\nhello there\n!pick\n!perm\n!nope@plugbot\n", &out)

	if err := runBot(context.Background(), opts); err != nil {
		t.Fatalf("runBot() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Here is the help of plugbot:",
		"!pick: Get your pick of the day",
		"Your pick today is @ann",
		"No permissions recorded in this chat",
		"Undefined handler for command nope",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("console output %q missing %q", got, want)
		}
	}

	members, err := os.ReadFile(filepath.Join(dataDir, "pick", "members.json"))
	if err != nil {
		t.Fatalf("members file not flushed: %v", err)
	}
	if !strings.Contains(string(members), `"u1"`) {
		t.Fatalf("members file = %s", members)
	}
	locales, err := os.ReadFile(filepath.Join(dataDir, "manager", "locale.json"))
	if err != nil || !strings.Contains(string(locales), `"c1"`) {
		t.Fatalf("locale file = %s, %v", locales, err)
	}
	missing, err := os.ReadFile(filepath.Join(localesDir, "raw.yaml"))
	if err != nil || !strings.Contains(string(missing), "Your pick today is %1") {
		t.Fatalf("raw.yaml = %s, %v", missing, err)
	}
}

func TestRunBotRefusesLockedDataDir(t *testing.T) {
	dataDir := t.TempDir()
	lockPath, err := fsstore.DirLockPath(dataDir)
	if err != nil {
		t.Fatalf("DirLockPath() error = %v", err)
	}
	var out bytes.Buffer
	opts := consoleBot(t, dataDir, t.TempDir(), "!help\n", &out)
	opts.MetricsListen = ""

	err = fsstore.WithLock(context.Background(), lockPath, func() error {
		return runBot(context.Background(), opts)
	})
	if !errors.Is(err, fsstore.ErrLockHeld) {
		t.Fatalf("runBot() under a held lock error = %v, want ErrLockHeld", err)
	}
	if out.Len() != 0 {
		t.Fatalf("bot answered while locked out: %q", out.String())
	}
}

func TestPollLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := console.New(strings.NewReader(""), &bytes.Buffer{}, console.Options{})
	if err := b.Login(ctx); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := pollLoop(ctx, b, nil, logutil.Discard()); err != nil {
		t.Fatalf("pollLoop() error = %v", err)
	}
}

func TestConfirm(t *testing.T) {
	cases := map[string]bool{"y\n": true, "YES\n": true, "\n": false, "no\n": false, "": false}
	for in, want := range cases {
		var out bytes.Buffer
		got, err := confirm(strings.NewReader(in), &out, "Write config?")
		if err != nil || got != want {
			t.Fatalf("confirm(%q) = %v, %v; want %v", in, got, err, want)
		}
		if !strings.Contains(out.String(), "Write config? [y/N]") {
			t.Fatalf("prompt = %q", out.String())
		}
	}
}
