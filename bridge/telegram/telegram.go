// Package telegram is a long-polling Telegram Bot API bridge.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/quailyquaily/plugbot/bridge"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	maxMessageLen  = 4096
)

type Config struct {
	Token       string
	BaseURL     string
	PollTimeout time.Duration
	// SendRate limits outgoing API calls per second; SendBurst is the bucket.
	SendRate   float64
	SendBurst  int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Bridge struct {
	api     *api
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	self    *bridge.User
	cancel  context.CancelFunc
	done    chan struct{}
	updates chan bridge.Polled
}

func New(cfg Config) *Bridge {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = 20
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		api:     newAPI(cfg.HTTPClient, cfg.BaseURL, strings.TrimSpace(cfg.Token)),
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		updates: make(chan bridge.Polled, 64),
	}
}

func (b *Bridge) Name() string { return "telegram" }

func (b *Bridge) Self() *bridge.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.self
}

// Login checks the token with getMe and starts long polling.
func (b *Bridge) Login(ctx context.Context) error {
	if b.api.token == "" {
		return fmt.Errorf("telegram: missing bot token")
	}
	me, err := b.api.getMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: login: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return nil
	}
	b.self = &bridge.User{
		ID:          strconv.FormatInt(me.ID, 10),
		Username:    me.Username,
		DisplayName: displayName(me),
		IsBot:       true,
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.pollLoop(pollCtx, b.done)
	b.logger.Info("telegram_login", "username", me.Username, "id", me.ID)
	return nil
}

// Logout stops polling and waits for the poller to exit.
func (b *Bridge) Logout(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) Poll(ctx context.Context) (bridge.Polled, error) {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done == nil {
		return bridge.Polled{}, fmt.Errorf("telegram: poll before login")
	}
	select {
	case p := <-b.updates:
		return p, nil
	case <-ctx.Done():
		return bridge.Polled{}, ctx.Err()
	case <-done:
		select {
		case p := <-b.updates:
			return p, nil
		default:
			return bridge.Polled{}, bridge.ErrClosed
		}
	}
}

func (b *Bridge) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	var offset int64
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		updates, next, err := b.api.getUpdates(ctx, offset, b.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isPollTimeout(err) {
				continue
			}
			b.logger.Warn("telegram_get_updates_error", "error", err.Error(), "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		offset = next
		for _, u := range updates {
			polled, ok := b.convert(u)
			if !ok {
				continue
			}
			select {
			case b.updates <- polled:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bridge) convert(u update) (bridge.Polled, bool) {
	m := u.Message
	if m == nil {
		m = u.ChannelPost
	}
	if m == nil || m.Chat == nil {
		return bridge.Polled{}, false
	}
	msg := toMessage(m)
	if msg.Text == "" {
		return bridge.Polled{}, false
	}
	return bridge.Polled{Message: msg, Chat: &chat{b: b, id: m.Chat.ID}}, true
}

func toMessage(m *message) *bridge.Message {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	out := &bridge.Message{
		ID:   strconv.FormatInt(m.MessageID, 10),
		Text: text,
	}
	if m.Chat != nil {
		out.ChatID = strconv.FormatInt(m.Chat.ID, 10)
		out.ChatKind = m.Chat.Type
	}
	if m.Date > 0 {
		out.Time = time.Unix(m.Date, 0)
	}
	if m.From != nil {
		out.From = &bridge.User{
			ID:          strconv.FormatInt(m.From.ID, 10),
			Username:    m.From.Username,
			DisplayName: displayName(m.From),
			IsBot:       m.From.IsBot,
		}
	}
	if m.ReplyTo != nil {
		out.ReplyTo = toMessage(m.ReplyTo)
	}
	return out
}

type chat struct {
	b  *Bridge
	id int64
}

func (c *chat) ID() string {
	return strconv.FormatInt(c.id, 10)
}

// Send splits long text into several messages; the first one replies to
// msg.ReplyTo and the last one is returned.
func (c *chat) Send(ctx context.Context, msg bridge.Outgoing) (bridge.Sent, error) {
	var replyTo int64
	if strings.TrimSpace(msg.ReplyTo) != "" {
		id, err := strconv.ParseInt(msg.ReplyTo, 10, 64)
		if err != nil {
			return bridge.Sent{}, fmt.Errorf("telegram: bad reply id %q", msg.ReplyTo)
		}
		replyTo = id
	}
	text := msg.Text
	if strings.TrimSpace(text) == "" {
		return bridge.Sent{}, errors.New("telegram: empty message")
	}
	var sent bridge.Sent
	for _, chunk := range splitText(text, maxMessageLen) {
		if err := c.b.limiter.Wait(ctx); err != nil {
			return sent, err
		}
		out, err := c.b.api.sendMessage(ctx, c.id, chunk, replyTo)
		if err != nil {
			return sent, err
		}
		replyTo = 0
		sent = bridge.Sent{ID: strconv.FormatInt(out.MessageID, 10), ChatID: c.ID()}
	}
	return sent, nil
}

func (c *chat) Delete(ctx context.Context, messageID string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(messageID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad message id %q", messageID)
	}
	if err := c.b.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.b.api.deleteMessage(ctx, c.id, id)
}

// splitText cuts text into chunks of at most max bytes on rune boundaries.
func splitText(text string, max int) []string {
	var out []string
	for len(text) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
