package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/quailyquaily/plugbot/bridge"
	"github.com/quailyquaily/plugbot/i18n"
	"github.com/quailyquaily/plugbot/internal/logutil"
	"github.com/quailyquaily/plugbot/plugin"
	"github.com/quailyquaily/plugbot/store"
)

type fakeChat struct {
	id string

	mu   sync.Mutex
	sent []string
}

func (c *fakeChat) ID() string { return c.id }

func (c *fakeChat) Send(_ context.Context, msg bridge.Outgoing) (bridge.Sent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg.Text)
	return bridge.Sent{ID: "s", ChatID: c.id}, nil
}

func (c *fakeChat) Delete(context.Context, string) error { return nil }

func (c *fakeChat) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fixture struct {
	t       *testing.T
	store   *store.Manager
	catalog *i18n.Catalog
	d       *Dispatcher
	chat    *fakeChat
}

func newFixture(t *testing.T, opts Options, plugins ...*plugin.Manifest) *fixture {
	t.Helper()
	localesDir := t.TempDir()
	m := store.NewManager(nil, store.Options{Dir: t.TempDir(), Logger: logutil.Discard()})
	catalog := i18n.NewCatalog(localesDir, nil, logutil.Discard())
	opts.Store = m
	opts.Catalog = catalog
	opts.Logger = logutil.Discard()
	if opts.Config.CmdPrefix == "" {
		opts.Config.CmdPrefix = "/"
	}
	if opts.Config.Addresser == "" {
		opts.Config.Addresser = "mybot"
	}
	d, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := d.Load(context.Background(), plugins...); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	t.Cleanup(func() {
		_ = m.Drain(context.Background())
	})
	return &fixture{t: t, store: m, catalog: catalog, d: d, chat: &fakeChat{id: "g1"}}
}

func (f *fixture) send(from *bridge.User, text string) error {
	f.t.Helper()
	return f.d.Dispatch(context.Background(), bridge.Polled{
		Message: &bridge.Message{ID: "m1", ChatID: f.chat.id, Text: text, From: from},
		Chat:    f.chat,
	})
}

func (f *fixture) manager() *plugin.ManagerDB {
	f.t.Helper()
	scope, err := f.store.Open(context.Background(), plugin.ManagerNamespace)
	if err != nil {
		f.t.Fatalf("Open(manager) error = %v", err)
	}
	return plugin.NewManagerDB(scope)
}

func (f *fixture) setPermission(userID string, p plugin.Permission) {
	f.t.Helper()
	mgr := f.manager()
	if err := mgr.SetPermission(f.chat.id, userID, p); err != nil {
		f.t.Fatalf("SetPermission() error = %v", err)
	}
	f.store.Commit(mgr.Scope())
}

var ann = &bridge.User{ID: "u1", Username: "ann"}

func helpPlugin(runs *int) *plugin.Manifest {
	return &plugin.Manifest{
		Name: "helper",
		Commands: []plugin.Command{{
			Name:       "help",
			Permission: plugin.Anyone(),
			Handler: func(ctx context.Context, app *plugin.App, _ *bridge.Message, args string) error {
				*runs++
				_, err := app.Chat.SendTmpl(ctx, "help for %1", args)
				return err
			},
		}},
	}
}

func TestDispatchCommandAddressing(t *testing.T) {
	t.Parallel()

	runs := 0
	f := newFixture(t, Options{}, helpPlugin(&runs))

	if err := f.send(ann, "/help@mybot topic"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if runs != 1 {
		t.Fatalf("help runs = %d, want 1", runs)
	}
	if err := f.send(ann, "/help@otherbot"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := f.send(ann, "/nope"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if runs != 1 {
		t.Fatalf("help runs = %d, want 1 after message for another bot", runs)
	}
	got := f.chat.texts()
	if len(got) != 1 || got[0] != "help for topic" {
		t.Fatalf("replies = %q, want only the help reply", got)
	}

	if err := f.send(ann, "/nope@MyBot"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	got = f.chat.texts()
	if len(got) != 2 || got[1] != "Undefined handler for command nope" {
		t.Fatalf("replies = %q, want undefined handler reply", got)
	}
}

func TestDispatchCommandPermission(t *testing.T) {
	t.Parallel()

	runs := 0
	p := &plugin.Manifest{
		Name: "guarded",
		Commands: []plugin.Command{{
			Name:       "secret",
			Permission: plugin.Custom(5),
			Handler: func(context.Context, *plugin.App, *bridge.Message, string) error {
				runs++
				return nil
			},
		}},
	}
	f := newFixture(t, Options{Config: plugin.Config{Owners: []string{"boss"}}}, p)

	f.setPermission("u1", plugin.Custom(3))
	if err := f.send(ann, "/secret"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if runs != 0 {
		t.Fatalf("custom(3) ran a custom(5) command")
	}
	if len(f.chat.texts()) != 0 {
		t.Fatalf("permission failure must be silent, got %q", f.chat.texts())
	}

	f.setPermission("u1", plugin.Admin())
	if err := f.send(ann, "/secret"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if runs != 1 {
		t.Fatalf("admin did not run a custom(5) command")
	}

	if err := f.send(&bridge.User{ID: "boss"}, "/secret"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if runs != 2 {
		t.Fatalf("owner did not run a custom(5) command")
	}

	if err := f.send(nil, "/secret"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if runs != 2 {
		t.Fatalf("senderless message ran a custom(5) command")
	}
}

type chainRecorder struct {
	mu  sync.Mutex
	ran []string
}

func (r *chainRecorder) handler(name string, result bool) plugin.MessageFunc {
	return func(context.Context, *plugin.App, *bridge.Message) (bool, error) {
		r.mu.Lock()
		r.ran = append(r.ran, name)
		r.mu.Unlock()
		return result, nil
	}
}

func (r *chainRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.ran, ",")
}

func TestDispatchChainShortCircuit(t *testing.T) {
	t.Parallel()

	rec := &chainRecorder{}
	p := &plugin.Manifest{
		Name: "chain",
		Messages: []plugin.Message{
			{Name: "A", Permission: plugin.Anyone(), Handler: rec.handler("A", true)},
			{Name: "B", Permission: plugin.Anyone(), After: []string{"A"}, Endpoint: true, Handler: rec.handler("B", true)},
			{Name: "C", Permission: plugin.Anyone(), After: []string{"B"}, Handler: rec.handler("C", true)},
		},
	}
	f := newFixture(t, Options{}, p)
	if err := f.send(ann, "hello"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := rec.String(); got != "A,B" {
		t.Fatalf("ran = %s, want A,B", got)
	}
}

func TestDispatchChainSkipsFailedDependencies(t *testing.T) {
	t.Parallel()

	rec := &chainRecorder{}
	p := &plugin.Manifest{
		Name: "chain",
		Messages: []plugin.Message{
			{Name: "A", Permission: plugin.Anyone(), Handler: rec.handler("A", false)},
			{Name: "B", Permission: plugin.Anyone(), After: []string{"A"}, Handler: rec.handler("B", true)},
			{Name: "C", Permission: plugin.Anyone(), After: []string{"B"}, Handler: rec.handler("C", true)},
			{Name: "D", Permission: plugin.Admin(), Handler: rec.handler("D", true)},
			{Name: "E", Permission: plugin.Anyone(), After: []string{"D"}, Handler: rec.handler("E", true)},
			{Name: "F", Permission: plugin.Anyone(), Handler: rec.handler("F", true)},
		},
	}
	f := newFixture(t, Options{}, p)
	if err := f.send(ann, "hello"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	got := rec.String()
	if strings.Contains(got, "B") || strings.Contains(got, "C") {
		t.Fatalf("ran = %s; B and C depend on A which did not pass", got)
	}
	if strings.Contains(got, "D") || strings.Contains(got, "E") {
		t.Fatalf("ran = %s; D needs admin and E depends on D", got)
	}
	if !strings.Contains(got, "A") || !strings.Contains(got, "F") {
		t.Fatalf("ran = %s, want A and F", got)
	}
}

func TestDispatchPersistsLocaleAndTranslates(t *testing.T) {
	t.Parallel()

	runs := 0
	f := newFixture(t, Options{}, helpPlugin(&runs))
	if err := f.send(ann, "/help x"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	locale, err := f.manager().Locale("g1")
	if err != nil || locale != i18n.RawLocale {
		t.Fatalf("Locale() = %q, %v, want raw", locale, err)
	}
	ctx := context.Background()
	if err := f.store.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	file, _ := f.store.FilePath(plugin.ManagerNamespace, "locale")
	if raw, err := os.ReadFile(file); err != nil || !strings.Contains(string(raw), `"g1":"raw"`) {
		t.Fatalf("locale file = %s, %v", raw, err)
	}

	if err := os.WriteFile(filepath.Join(f.catalog.Dir(), "fr.json"), []byte(`{"help for %1":"aide pour %1"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	mgr := f.manager()
	if err := mgr.SetLocale("g1", "fr"); err != nil {
		t.Fatalf("SetLocale() error = %v", err)
	}
	f.store.Commit(mgr.Scope())
	if err := f.send(ann, "/help x"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	got := f.chat.texts()
	if got[len(got)-1] != "aide pour x" {
		t.Fatalf("reply = %q, want translated", got[len(got)-1])
	}
}

func TestDispatchUnknownLocaleFallsBackToRaw(t *testing.T) {
	t.Parallel()

	runs := 0
	f := newFixture(t, Options{}, helpPlugin(&runs))
	mgr := f.manager()
	_ = mgr.SetLocale("g1", "xx")
	f.store.Commit(mgr.Scope())
	if err := f.send(ann, "/help y"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := f.chat.texts(); len(got) != 1 || got[0] != "help for y" {
		t.Fatalf("replies = %q", got)
	}
}

func counterPlugin(fail bool) *plugin.Manifest {
	return &plugin.Manifest{
		Name:       "counter",
		Namespaces: []store.Decl{store.Declare[int]("hits", nil, "chat")},
		Messages: []plugin.Message{{
			Name:       "count",
			Permission: plugin.Anyone(),
			Handler: func(_ context.Context, app *plugin.App, msg *bridge.Message) (bool, error) {
				hits := store.TableOf[int](app.DB("hits"))
				n, _, err := hits.Get(msg.ChatID)
				if err != nil {
					return false, err
				}
				if err := hits.Set(n+1, msg.ChatID); err != nil {
					return false, err
				}
				if fail {
					return false, errors.New("boom")
				}
				return false, nil
			},
		}},
	}
}

func readHits(t *testing.T, m *store.Manager) int {
	t.Helper()
	scope, err := m.Open(context.Background(), "counter", "hits")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	n, _, err := store.TableOf[int](scope.DB()).Get("g1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return n
}

func TestDispatchCommitsHandlerNamespaces(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, counterPlugin(false))
	for i := 0; i < 3; i++ {
		if err := f.send(ann, "hi"); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}
	if n := readHits(t, f.store); n != 3 {
		t.Fatalf("hits = %d, want 3", n)
	}
}

func TestDispatchHandlerFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, counterPlugin(true))
	if err := f.send(ann, "hi"); err != nil {
		t.Fatalf("Dispatch() error = %v, want failure logged only", err)
	}
	if n := readHits(t, f.store); n != 0 {
		t.Fatalf("hits = %d, failed handler must not commit", n)
	}

	die := newFixture(t, Options{DieOnHandlerError: true}, counterPlugin(true))
	if err := die.send(ann, "hi"); !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("Dispatch() error = %v, want ErrHandlerFailed", err)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	t.Parallel()

	rec := &chainRecorder{}
	p := &plugin.Manifest{
		Name: "panicky",
		Messages: []plugin.Message{
			{Name: "boom", Permission: plugin.Anyone(), Handler: func(context.Context, *plugin.App, *bridge.Message) (bool, error) {
				panic("kaboom")
			}},
			{Name: "after", Permission: plugin.Anyone(), After: []string{"boom"}, Handler: rec.handler("after", true)},
			{Name: "other", Permission: plugin.Anyone(), Handler: rec.handler("other", true)},
		},
	}
	f := newFixture(t, Options{}, p)
	if err := f.send(ann, "hi"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := rec.String(); got != "other" {
		t.Fatalf("ran = %s, want other only", got)
	}
}

func TestDispatchPeerNamespaces(t *testing.T) {
	t.Parallel()

	var seen int
	reader := &plugin.Manifest{
		Name:  "reader",
		Peers: []string{"counter"},
		Messages: []plugin.Message{{
			Name:       "read",
			Permission: plugin.Anyone(),
			After:      []string{"count"},
			Handler: func(_ context.Context, app *plugin.App, msg *bridge.Message) (bool, error) {
				n, _, err := store.TableOf[int](app.PeerDB("counter", "hits")).Get(msg.ChatID)
				seen = n
				return true, err
			},
		}},
	}
	writer := counterPlugin(false)
	writer.Messages[0].Handler = func(_ context.Context, app *plugin.App, msg *bridge.Message) (bool, error) {
		return true, app.DB("hits").Set(7, msg.ChatID)
	}
	f := newFixture(t, Options{}, writer, reader)
	if err := f.send(ann, "hi"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if seen != 7 {
		t.Fatalf("peer read = %d, want 7 committed by the earlier handler", seen)
	}
}

func TestLoadRejectsBadPlugins(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *plugin.App, *bridge.Message) (bool, error) { return false, nil }
	cmd := func(context.Context, *plugin.App, *bridge.Message, string) error { return nil }
	cases := map[string][]*plugin.Manifest{
		"cycle": {{
			Name: "p",
			Messages: []plugin.Message{
				{Name: "a", After: []string{"b"}, Handler: noop},
				{Name: "b", After: []string{"a"}, Handler: noop},
			},
		}},
		"duplicate command": {
			{Name: "p", Commands: []plugin.Command{{Name: "x", Handler: cmd}}},
			{Name: "q", Commands: []plugin.Command{{Name: "x", Handler: cmd}}},
		},
		"duplicate plugin": {{Name: "p"}, {Name: "p"}},
		"unknown peer":     {{Name: "p", Peers: []string{"ghost"}}},
		"reserved name":    {{Name: plugin.ManagerNamespace}},
	}
	for name, plugins := range cases {
		m := store.NewManager(nil, store.Options{Dir: t.TempDir(), Logger: logutil.Discard()})
		d, err := New(Options{Store: m, Logger: logutil.Discard()})
		if err != nil {
			t.Fatalf("%s: New() error = %v", name, err)
		}
		if err := d.Load(context.Background(), plugins...); err == nil {
			t.Fatalf("%s: Load() error = nil", name)
		}
	}
}

func TestLoadRunsInitHooks(t *testing.T) {
	t.Parallel()

	var got []string
	p := &plugin.Manifest{
		Name: "p",
		Init: func(_ context.Context, host plugin.Host) error {
			for _, m := range host.Plugins() {
				got = append(got, m.Name)
			}
			return nil
		},
	}
	f := newFixture(t, Options{}, p, &plugin.Manifest{Name: "q"})
	if strings.Join(got, ",") != "p,q" {
		t.Fatalf("Init saw %v", got)
	}
	if f.d.Config().CmdPrefix != "/" {
		t.Fatalf("Config() = %+v", f.d.Config())
	}
}
