package plugin

import (
	"context"

	"github.com/quailyquaily/plugbot/bridge"
	"github.com/quailyquaily/plugbot/i18n"
)

// Chat wraps a bridge chat so outgoing text is translated for the chat's
// locale.
type Chat struct {
	raw  bridge.Chat
	i18n *i18n.Engine
}

func NewChat(raw bridge.Chat, engine *i18n.Engine) *Chat {
	return &Chat{raw: raw, i18n: engine}
}

func (c *Chat) ID() string {
	return c.raw.ID()
}

func (c *Chat) Raw() bridge.Chat {
	return c.raw
}

// Send translates key and sends it.
func (c *Chat) Send(ctx context.Context, key string) (bridge.Sent, error) {
	return c.raw.Send(ctx, bridge.Outgoing{Text: c.i18n.Tr(key)})
}

// SendTmpl translates template and fills %1..%n with args.
func (c *Chat) SendTmpl(ctx context.Context, template string, args ...any) (bridge.Sent, error) {
	return c.raw.Send(ctx, bridge.Outgoing{Text: c.i18n.Tmpl(template, args...)})
}

// Reply is SendTmpl as a reply to msg.
func (c *Chat) Reply(ctx context.Context, msg *bridge.Message, template string, args ...any) (bridge.Sent, error) {
	out := bridge.Outgoing{Text: c.i18n.Tmpl(template, args...)}
	if msg != nil {
		out.ReplyTo = msg.ID
	}
	return c.raw.Send(ctx, out)
}

// SendRaw sends msg untranslated.
func (c *Chat) SendRaw(ctx context.Context, msg bridge.Outgoing) (bridge.Sent, error) {
	return c.raw.Send(ctx, msg)
}

func (c *Chat) Delete(ctx context.Context, messageID string) error {
	return c.raw.Delete(ctx, messageID)
}
