// Package core is the built-in plugin: help, per-chat permissions and the
// chat locale.
package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/quailyquaily/plugbot/bridge"
	"github.com/quailyquaily/plugbot/i18n"
	"github.com/quailyquaily/plugbot/plugin"
)

const Name = "core"

type core struct {
	mu      sync.RWMutex
	index   []helpLine
	topics  map[string]string
	catalog *i18n.Catalog
}

type helpLine struct {
	name    string
	doc     string
	command bool
}

// Manifest returns a fresh core plugin. Its help index is built by Init from
// every loaded plugin, itself included.
func Manifest() *plugin.Manifest {
	c := &core{topics: map[string]string{}}
	return &plugin.Manifest{
		Name: Name,
		Doc:  "Core functionalities of the bot",
		Commands: []plugin.Command{
			{
				Name:       "help",
				Doc:        "get help",
				DocLong:    "%1help [topic] to get help of a topic, if topic not present, the help index would be displayed instead",
				Permission: plugin.Anyone(),
				Handler:    c.handleHelp,
			},
			{
				Name:       "perm",
				Doc:        "show or change permission levels in this chat",
				DocLong:    "%1perm lists recorded levels. %1perm <user> <level> sets one, or reply to a message with %1perm <level>. Levels: anyone, admin or a number",
				Permission: plugin.Admin(),
				Handler:    c.handlePerm,
			},
			{
				Name:       "locale",
				Doc:        "show or change the language of this chat",
				DocLong:    "%1locale shows the current and available locales, %1locale <name> switches to one",
				Permission: plugin.Admin(),
				Handler:    c.handleLocale,
			},
		},
		Init: c.init,
	}
}

func (c *core) init(_ context.Context, host plugin.Host) error {
	var commands, messages []helpLine
	topics := map[string]string{}
	for _, p := range host.Plugins() {
		for _, cmd := range p.Commands {
			commands = append(commands, helpLine{name: cmd.Name, doc: cmd.Doc, command: true})
			topics[cmd.Name] = longDoc(cmd.DocLong, cmd.Doc)
		}
		for _, m := range p.Messages {
			messages = append(messages, helpLine{name: m.Name, doc: m.Doc})
			topics[m.Name] = longDoc(m.DocLong, m.Doc)
		}
	}
	c.mu.Lock()
	c.index = append(commands, messages...)
	c.topics = topics
	c.catalog = host.Catalog()
	c.mu.Unlock()
	host.Logger().Debug("core_help_indexed", "commands", len(commands), "messages", len(messages))
	return nil
}

func longDoc(long, short string) string {
	if strings.TrimSpace(long) != "" {
		return long
	}
	return short
}

func (c *core) handleHelp(ctx context.Context, app *plugin.App, _ *bridge.Message, args string) error {
	topic := strings.TrimSpace(args)
	if topic == "" {
		_, err := app.Chat.SendRaw(ctx, bridge.Outgoing{Text: c.renderIndex(app)})
		return err
	}
	c.mu.RLock()
	doc, ok := c.topics[topic]
	c.mu.RUnlock()
	if !ok {
		_, err := app.Chat.SendTmpl(ctx, "No help found for %1", topic)
		return err
	}
	text := topic + ":\n" + app.I18n.Tmpl(doc, app.Config.CmdPrefix)
	_, err := app.Chat.SendRaw(ctx, bridge.Outgoing{Text: text})
	return err
}

func (c *core) renderIndex(app *plugin.App) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var b strings.Builder
	b.WriteString(app.I18n.Tmpl("Here is the help of %1:", app.Config.SelfPronoun))
	var messages []helpLine
	for _, line := range c.index {
		if !line.command {
			messages = append(messages, line)
			continue
		}
		fmt.Fprintf(&b, "\n%s%s: %s", app.Config.CmdPrefix, line.name, app.I18n.Tr(line.doc))
	}
	b.WriteString("\n---\n")
	b.WriteString(app.I18n.Tmpl("%1 Message listeners:", len(messages)))
	for _, line := range messages {
		fmt.Fprintf(&b, "\n%s: %s", line.name, app.I18n.Tr(line.doc))
	}
	return b.String()
}

func (c *core) handlePerm(ctx context.Context, app *plugin.App, msg *bridge.Message, args string) error {
	mgr := app.Manager()
	chatID := app.Chat.ID()
	fields := strings.Fields(args)

	var user, level string
	switch {
	case len(fields) == 0:
		return c.listPerms(ctx, app, mgr, chatID)
	case len(fields) == 1 && msg.ReplyTo != nil && msg.ReplyTo.From != nil:
		user, level = msg.ReplyTo.From.ID, fields[0]
	case len(fields) == 2:
		user, level = fields[0], fields[1]
	default:
		_, err := app.Chat.SendTmpl(ctx, "Usage: %1perm <user> <level>", app.Config.CmdPrefix)
		return err
	}

	p, err := plugin.ParsePermission(level)
	if err != nil {
		_, err := app.Chat.SendTmpl(ctx, "Unknown permission level %1", level)
		return err
	}
	if err := mgr.SetPermission(chatID, user, p); err != nil {
		return err
	}
	app.Logger.Info("core_permission_set", "user", user, "level", p.String())
	_, err = app.Chat.SendTmpl(ctx, "Permission of %1 is now %2", user, p.String())
	return err
}

func (c *core) listPerms(ctx context.Context, app *plugin.App, mgr *plugin.ManagerDB, chatID string) error {
	perms, err := mgr.Permissions(chatID)
	if err != nil {
		return err
	}
	if len(perms) == 0 {
		_, err := app.Chat.Send(ctx, "No permissions recorded in this chat")
		return err
	}
	users := make([]string, 0, len(perms))
	for u := range perms {
		users = append(users, u)
	}
	slices.Sort(users)
	var b strings.Builder
	b.WriteString(app.I18n.Tr("Permissions in this chat:"))
	for _, u := range users {
		fmt.Fprintf(&b, "\n%s: %s", u, perms[u].String())
	}
	_, err = app.Chat.SendRaw(ctx, bridge.Outgoing{Text: b.String()})
	return err
}

func (c *core) handleLocale(ctx context.Context, app *plugin.App, _ *bridge.Message, args string) error {
	c.mu.RLock()
	catalog := c.catalog
	c.mu.RUnlock()
	if catalog == nil {
		return fmt.Errorf("core: locale catalog not initialised")
	}
	available, err := catalog.Available()
	if err != nil {
		return err
	}
	mgr := app.Manager()
	chatID := app.Chat.ID()

	want := strings.TrimSpace(args)
	if want == "" {
		current, err := mgr.Locale(chatID)
		if err != nil {
			return err
		}
		_, err = app.Chat.SendTmpl(ctx, "Current locale: %1. Available: %2", current, strings.Join(available, ", "))
		return err
	}
	if !slices.Contains(available, want) {
		_, err := app.Chat.SendTmpl(ctx, "Unknown locale %1", want)
		return err
	}
	if _, err := catalog.Engine(want); err != nil {
		if _, serr := app.Chat.SendTmpl(ctx, "Locale %1 could not be loaded", want); serr != nil {
			app.Logger.Warn("core_reply_failed", "error", serr.Error())
		}
		return fmt.Errorf("core: load locale %s: %w", want, err)
	}
	if err := mgr.SetLocale(chatID, want); err != nil {
		return err
	}
	app.Logger.Info("core_locale_set", "locale", want)
	// The confirmation goes out in the old locale; the next message uses the new one.
	_, err = app.Chat.SendTmpl(ctx, "Locale set to %1", want)
	return err
}
