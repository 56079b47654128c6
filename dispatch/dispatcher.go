// Package dispatch routes polled messages to plugin handlers: it resolves
// the chat's locale and the sender's permission, runs a command or the
// ordered message chain, and commits the namespaces each handler touched.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quailyquaily/plugbot/bridge"
	"github.com/quailyquaily/plugbot/i18n"
	"github.com/quailyquaily/plugbot/internal/logutil"
	"github.com/quailyquaily/plugbot/plugin"
	"github.com/quailyquaily/plugbot/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultCmdPrefix = "!"

type Options struct {
	Store   *store.Manager
	Catalog *i18n.Catalog
	Logger  *slog.Logger
	Config  plugin.Config
	// DieOnHandlerError makes Dispatch return ErrHandlerFailed instead of
	// logging and carrying on.
	DieOnHandlerError bool
}

type commandEntry struct {
	plugin *plugin.Manifest
	def    plugin.Command
}

type messageEntry struct {
	plugin *plugin.Manifest
	def    plugin.Message
}

type Dispatcher struct {
	store   *store.Manager
	catalog *i18n.Catalog
	logger  *slog.Logger
	die     bool

	mu     sync.RWMutex
	cfg    plugin.Config
	owners map[string]struct{}

	loaded   bool
	plugins  []*plugin.Manifest
	byName   map[string]*plugin.Manifest
	commands map[string]commandEntry
	chain    []messageEntry
}

// New builds a dispatcher and registers the manager namespace.
func New(opts Options) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("dispatch: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = i18n.NewCatalog("", nil, logger)
	}
	if err := opts.Store.Register(plugin.ManagerTree()); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		store:    opts.Store,
		catalog:  catalog,
		logger:   logger,
		die:      opts.DieOnHandlerError,
		byName:   map[string]*plugin.Manifest{},
		commands: map[string]commandEntry{},
	}
	d.SetConfig(opts.Config)
	return d, nil
}

// SetConfig replaces the bot-wide settings, e.g. once the bridge knows the
// bot's own address.
func (d *Dispatcher) SetConfig(cfg plugin.Config) {
	if strings.TrimSpace(cfg.CmdPrefix) == "" {
		cfg.CmdPrefix = DefaultCmdPrefix
	}
	owners := make(map[string]struct{}, len(cfg.Owners))
	for _, id := range cfg.Owners {
		if id = strings.TrimSpace(id); id != "" {
			owners[id] = struct{}{}
		}
	}
	d.mu.Lock()
	d.cfg = cfg
	d.owners = owners
	d.mu.Unlock()
}

// Load registers plugins, builds the command table and the message chain,
// then runs every init hook. It may only be called once.
func (d *Dispatcher) Load(ctx context.Context, plugins ...*plugin.Manifest) error {
	logger, end := logutil.Region(d.logger, "load_plugins")
	defer end()
	d.mu.Lock()
	if d.loaded {
		d.mu.Unlock()
		return fmt.Errorf("dispatch: plugins already loaded")
	}
	d.loaded = true
	d.mu.Unlock()

	var messages []plugin.Message
	owner := map[string]*plugin.Manifest{}
	for _, p := range plugins {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := d.byName[p.Name]; dup {
			return fmt.Errorf("%w: plugin %s", ErrDuplicate, p.Name)
		}
		d.byName[p.Name] = p
		d.plugins = append(d.plugins, p)
		if tree := p.Tree(); tree != nil {
			if err := d.store.Register(tree); err != nil {
				return fmt.Errorf("dispatch: plugin %s: %w", p.Name, err)
			}
		}
		for _, c := range p.Commands {
			if prev, dup := d.commands[c.Name]; dup {
				return fmt.Errorf("%w: command %s in %s and %s", ErrDuplicate, c.Name, prev.plugin.Name, p.Name)
			}
			d.commands[c.Name] = commandEntry{plugin: p, def: c}
		}
		for _, m := range p.Messages {
			if prev, dup := owner[m.Name]; dup {
				return fmt.Errorf("%w: message handler %s in %s and %s", ErrDuplicate, m.Name, prev.Name, p.Name)
			}
			owner[m.Name] = p
			messages = append(messages, m)
		}
		logger.Debug("plugin_registered", "plugin", p.Name, "commands", len(p.Commands), "messages", len(p.Messages))
	}
	for _, p := range plugins {
		for _, peer := range p.Peers {
			if peer == plugin.ManagerNamespace {
				continue
			}
			if !d.store.Registry().Has(peer) {
				return fmt.Errorf("dispatch: plugin %s: peer %s has no namespaces", p.Name, peer)
			}
		}
	}

	ordered, err := Order(messages)
	if err != nil {
		return err
	}
	d.chain = make([]messageEntry, 0, len(ordered))
	for _, m := range ordered {
		d.chain = append(d.chain, messageEntry{plugin: owner[m.Name], def: m})
	}
	logger.Info("plugins_loaded", "plugins", len(plugins), "commands", len(d.commands), "chain", d.Chain())

	for _, p := range plugins {
		if p.Init == nil {
			continue
		}
		if err := p.Init(ctx, d); err != nil {
			return fmt.Errorf("dispatch: init %s: %w", p.Name, err)
		}
	}
	return nil
}

func (d *Dispatcher) Plugins() []*plugin.Manifest {
	return append([]*plugin.Manifest(nil), d.plugins...)
}

func (d *Dispatcher) Store() *store.Manager {
	return d.store
}

func (d *Dispatcher) Catalog() *i18n.Catalog {
	return d.catalog
}

func (d *Dispatcher) Config() plugin.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *Dispatcher) Logger() *slog.Logger {
	return d.logger
}

// Chain is the resolved message handler order.
func (d *Dispatcher) Chain() []string {
	out := make([]string, 0, len(d.chain))
	for _, e := range d.chain {
		out = append(out, e.def.Name)
	}
	return out
}

func (d *Dispatcher) Commands() []string {
	out := make([]string, 0, len(d.commands))
	for name := range d.commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// invocation is the state shared by the handlers of one dispatch.
type invocation struct {
	msg    *bridge.Message
	chat   *plugin.Chat
	engine *i18n.Engine
	mgr    *plugin.ManagerDB
	level  plugin.Permission
	cfg    plugin.Config
	logger *slog.Logger
}

// noPerm reports whether the sender falls short of required. Messages
// without a sender are treated as coming from an anyone-level user.
func (inv *invocation) noPerm(required plugin.Permission) bool {
	return !required.IsAnyone() && inv.level.Less(required)
}

// Dispatch handles one polled message. It returns an error only for faults
// the caller should stop on: an unreadable manager namespace, or a failed
// handler when DieOnHandlerError is set.
func (d *Dispatcher) Dispatch(ctx context.Context, polled bridge.Polled) (err error) {
	msg := polled.Message
	if msg == nil || polled.Chat == nil {
		return nil
	}
	start := time.Now()
	chatID := polled.Chat.ID()
	id := uuid.NewString()
	ctx, span := tracer.Start(ctx, "dispatch.message",
		trace.WithAttributes(
			attribute.String("dispatch.id", id),
			attribute.String("chat.id", chatID),
		),
	)
	route := routeChain
	defer func() {
		span.SetAttributes(attribute.String("dispatch.route", route))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		messagesTotal.WithLabelValues(route).Inc()
		dispatchDuration.Observe(time.Since(start).Seconds())
	}()

	cfg := d.Config()
	logger := d.logger.With("dispatch_id", id, "chat_id", chatID, "message_id", msg.ID)

	mgrScope, err := d.store.Open(ctx, plugin.ManagerNamespace)
	if err != nil {
		return fmt.Errorf("dispatch: open manager namespace: %w", err)
	}
	defer d.store.Commit(mgrScope)
	mgr := plugin.NewManagerDB(mgrScope)

	locale, err := mgr.Locale(chatID)
	if err != nil {
		return fmt.Errorf("dispatch: chat locale: %w", err)
	}
	engine, err := d.catalog.Engine(locale)
	if err != nil {
		logger.Warn("dispatch_locale_unavailable", "locale", locale, "error", err.Error())
		engine, _ = d.catalog.Engine(i18n.RawLocale)
	}

	level, err := d.senderLevel(mgr, chatID, msg.From)
	if err != nil {
		return fmt.Errorf("dispatch: sender permission: %w", err)
	}
	inv := &invocation{
		msg:    msg,
		chat:   plugin.NewChat(polled.Chat, engine),
		engine: engine,
		mgr:    mgr,
		level:  level,
		cfg:    cfg,
		logger: logger,
	}

	if cmd, ok := ParseCommand(msg.Text, cfg.CmdPrefix); ok {
		route, err = d.dispatchCommand(ctx, inv, cmd)
		return err
	}
	return d.runChain(ctx, inv)
}

func (d *Dispatcher) senderLevel(mgr *plugin.ManagerDB, chatID string, from *bridge.User) (plugin.Permission, error) {
	if from == nil {
		return plugin.Anyone(), nil
	}
	d.mu.RLock()
	_, owner := d.owners[from.ID]
	d.mu.RUnlock()
	if owner {
		return plugin.Admin(), nil
	}
	return mgr.Permission(chatID, from.ID)
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, inv *invocation, cmd Command) (string, error) {
	if cmd.Addressed() && !sameAddress(cmd.Addressee, inv.cfg.Addresser) {
		return routeIgnored, nil
	}
	entry, ok := d.commands[cmd.Name]
	if !ok {
		inv.logger.Info("dispatch_unknown_command", "command", cmd.Name, "addressed", cmd.Addressed())
		if cmd.Addressed() {
			if _, err := inv.chat.SendTmpl(ctx, "Undefined handler for command %1", cmd.Name); err != nil {
				inv.logger.Warn("dispatch_reply_failed", "error", err.Error())
			}
		}
		return routeUnknown, nil
	}
	if inv.noPerm(entry.def.Permission) {
		inv.logger.Debug("dispatch_permission_denied", "command", cmd.Name, "required", entry.def.Permission.String(), "level", inv.level.String())
		return routeDenied, nil
	}

	name := "command:" + cmd.Name
	err := d.runHandler(ctx, inv, entry.plugin, name, func(ctx context.Context, app *plugin.App) (bool, error) {
		return true, entry.def.Handler(ctx, app, inv.msg, cmd.Args)
	})
	if err != nil {
		return routeCommand, d.handlerFailed(inv.logger, name, err)
	}
	return routeCommand, nil
}

func (d *Dispatcher) runChain(ctx context.Context, inv *invocation) error {
	passed := make(map[string]bool, len(d.chain))
	for _, entry := range d.chain {
		name := entry.def.Name
		ready := true
		for _, dep := range entry.def.After {
			ok, ran := passed[dep]
			if !ran {
				inv.logger.Error("dispatch_internal_fault", "kind", "internal-error", "handler", name, "missing_dependency", dep)
				ready = false
				continue
			}
			if !ok {
				ready = false
			}
		}
		if !ready || inv.noPerm(entry.def.Permission) {
			passed[name] = false
			continue
		}

		var handled bool
		err := d.runHandler(ctx, inv, entry.plugin, name, func(ctx context.Context, app *plugin.App) (bool, error) {
			var err error
			handled, err = entry.def.Handler(ctx, app, inv.msg)
			return handled, err
		})
		if err != nil {
			passed[name] = false
			if ferr := d.handlerFailed(inv.logger, name, err); ferr != nil {
				return ferr
			}
			continue
		}
		passed[name] = handled
		if entry.def.Endpoint && handled {
			inv.logger.Debug("dispatch_chain_stopped", "endpoint", name)
			break
		}
	}
	return nil
}

// runHandler opens the plugin's namespaces, runs fn and commits on success.
// Panics in fn are returned as errors.
func (d *Dispatcher) runHandler(ctx context.Context, inv *invocation, p *plugin.Manifest, name string, fn func(context.Context, *plugin.App) (bool, error)) error {
	ctx, span := tracer.Start(ctx, "dispatch.handler",
		trace.WithAttributes(
			attribute.String("handler.name", name),
			attribute.String("handler.plugin", p.Name),
		),
	)
	defer span.End()

	app, err := d.newApp(ctx, inv, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	handled, err := invoke(ctx, app, fn)
	if err != nil {
		handlerRunsTotal.WithLabelValues(name, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Bool("handler.handled", handled))
	result := "pass"
	if !handled {
		result = "skip"
	}
	handlerRunsTotal.WithLabelValues(name, result).Inc()
	for _, s := range app.Scopes() {
		d.store.Commit(s)
	}
	return nil
}

func invoke(ctx context.Context, app *plugin.App, fn func(context.Context, *plugin.App) (bool, error)) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, app)
}

func (d *Dispatcher) newApp(ctx context.Context, inv *invocation, p *plugin.Manifest) (*plugin.App, error) {
	opts := plugin.AppOptions{
		Plugin:  p.Name,
		Chat:    inv.chat,
		I18n:    inv.engine,
		Logger:  inv.logger.With("plugin", p.Name),
		Config:  inv.cfg,
		Manager: inv.mgr,
	}
	if len(p.Namespaces) > 0 {
		self, err := d.store.Open(ctx, p.Name)
		if err != nil {
			return nil, err
		}
		opts.Self = self
	}
	for _, peer := range p.Peers {
		if peer == plugin.ManagerNamespace {
			continue
		}
		scope, err := d.store.Open(ctx, peer)
		if err != nil {
			return nil, err
		}
		if opts.Peers == nil {
			opts.Peers = map[string]*store.Scope{}
		}
		opts.Peers[peer] = scope
	}
	return plugin.NewApp(opts), nil
}

func (d *Dispatcher) handlerFailed(logger *slog.Logger, name string, err error) error {
	logger.Error("dispatch_handler_failed", "handler", name, "error", err.Error())
	if d.die {
		return fmt.Errorf("%w: %s: %w", ErrHandlerFailed, name, err)
	}
	return nil
}
