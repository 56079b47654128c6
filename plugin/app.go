package plugin

import (
	"log/slog"

	"github.com/quailyquaily/plugbot/i18n"
	"github.com/quailyquaily/plugbot/store"
)

// App is what one handler invocation sees: its own namespaces, the peers it
// declared, the translated chat and the chat's manager state.
type App struct {
	Plugin string
	Chat   *Chat
	I18n   *i18n.Engine
	Logger *slog.Logger
	Config Config

	self    *store.Scope
	peers   map[string]*store.Scope
	manager *ManagerDB
}

type AppOptions struct {
	Plugin  string
	Chat    *Chat
	I18n    *i18n.Engine
	Logger  *slog.Logger
	Config  Config
	Self    *store.Scope
	Peers   map[string]*store.Scope
	Manager *ManagerDB
}

func NewApp(opts AppOptions) *App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		Plugin:  opts.Plugin,
		Chat:    opts.Chat,
		I18n:    opts.I18n,
		Logger:  logger,
		Config:  opts.Config,
		self:    opts.Self,
		peers:   opts.Peers,
		manager: opts.Manager,
	}
}

// Self is the plugin's own scope, nil when it declares no namespaces.
func (a *App) Self() *store.Scope {
	return a.self
}

func (a *App) Peer(name string) *store.Scope {
	return a.peers[name]
}

// DB returns one of the plugin's own namespaces.
func (a *App) DB(ns ...string) *store.Db {
	if a.self == nil {
		return nil
	}
	return a.self.Lookup(ns...)
}

func (a *App) PeerDB(plugin string, ns ...string) *store.Db {
	peer := a.Peer(plugin)
	if peer == nil {
		return nil
	}
	return peer.Lookup(ns...)
}

func (a *App) Manager() *ManagerDB {
	return a.manager
}

// Scopes lists every scope the App holds, for committing.
func (a *App) Scopes() []*store.Scope {
	var out []*store.Scope
	if a.self != nil {
		out = append(out, a.self)
	}
	for _, s := range a.peers {
		out = append(out, s)
	}
	return out
}
