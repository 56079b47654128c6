// Package plugin is the contract between the dispatcher and bot plugins:
// manifests, listener descriptors, permissions and the per-invocation App.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/plugbot/bridge"
	"github.com/quailyquaily/plugbot/i18n"
	"github.com/quailyquaily/plugbot/store"
)

type CommandFunc func(ctx context.Context, app *App, msg *bridge.Message, args string) error

// MessageFunc reports whether it considered the message handled.
type MessageFunc func(ctx context.Context, app *App, msg *bridge.Message) (bool, error)

type Command struct {
	Name       string
	Doc        string
	DocLong    string
	Permission Permission
	Handler    CommandFunc
}

type Message struct {
	Name       string
	Doc        string
	DocLong    string
	Permission Permission
	// Endpoint stops the chain when the handler returns true.
	Endpoint bool
	// After names the message handlers that must run and pass first.
	After   []string
	Handler MessageFunc
}

// Host is what plugin init hooks see of the running bot.
type Host interface {
	Plugins() []*Manifest
	Store() *store.Manager
	Catalog() *i18n.Catalog
	Config() Config
	Logger() *slog.Logger
}

type Manifest struct {
	Name       string
	Doc        string
	Namespaces []store.Decl
	// Peers are other plugins whose namespaces this plugin may open.
	Peers    []string
	Commands []Command
	Messages []Message
	Init     func(ctx context.Context, host Host) error
}

// Validate checks what the dispatcher relies on.
func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("plugin: nil manifest")
	}
	name := strings.TrimSpace(m.Name)
	if name == "" || name != m.Name || strings.ContainsAny(name, "./\\ ") {
		return fmt.Errorf("plugin: bad plugin name %q", m.Name)
	}
	if name == ManagerNamespace {
		return fmt.Errorf("plugin: %s is reserved", name)
	}
	for _, c := range m.Commands {
		if strings.TrimSpace(c.Name) == "" || strings.ContainsAny(c.Name, " \t@") {
			return fmt.Errorf("plugin %s: bad command name %q", m.Name, c.Name)
		}
		if c.Handler == nil {
			return fmt.Errorf("plugin %s: command %s has no handler", m.Name, c.Name)
		}
	}
	for _, h := range m.Messages {
		if strings.TrimSpace(h.Name) == "" {
			return fmt.Errorf("plugin %s: message handler without a name", m.Name)
		}
		if h.Handler == nil {
			return fmt.Errorf("plugin %s: message handler %s has no handler", m.Name, h.Name)
		}
	}
	for _, p := range m.Peers {
		if p == m.Name {
			return fmt.Errorf("plugin %s: lists itself as a peer", m.Name)
		}
	}
	return nil
}

// Tree is the registry subtree of the plugin's namespaces, nil when it
// declares none.
func (m *Manifest) Tree() store.Tree {
	if len(m.Namespaces) == 0 {
		return nil
	}
	return store.Inner(map[string]store.Tree{m.Name: store.Namespaces(m.Namespaces...)})
}

// Config is the bot-wide settings plugins may read.
type Config struct {
	SelfPronoun string
	CmdPrefix   string
	Addresser   string
	Owners      []string
}
