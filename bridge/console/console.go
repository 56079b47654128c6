// Package console is a line-oriented bridge: each input line is one message
// from a fixed user in a fixed chat, replies go to the output writer.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quailyquaily/plugbot/bridge"
)

type Options struct {
	ChatID string
	User   bridge.User
	// BotName is the username reported by Self.
	BotName string
}

type Bridge struct {
	in   io.Reader
	out  io.Writer
	opts Options

	outMu sync.Mutex
	seq   atomic.Int64

	startOnce sync.Once
	lines     chan string
}

func New(in io.Reader, out io.Writer, opts Options) *Bridge {
	if strings.TrimSpace(opts.ChatID) == "" {
		opts.ChatID = "console"
	}
	if strings.TrimSpace(opts.User.ID) == "" {
		opts.User.ID = "local"
	}
	if strings.TrimSpace(opts.BotName) == "" {
		opts.BotName = "plugbot"
	}
	return &Bridge{in: in, out: out, opts: opts, lines: make(chan string)}
}

func (b *Bridge) Name() string { return "console" }

func (b *Bridge) Self() *bridge.User {
	return &bridge.User{ID: "bot", Username: b.opts.BotName, IsBot: true}
}

func (b *Bridge) Login(context.Context) error {
	b.startOnce.Do(func() {
		go b.readLines()
	})
	return nil
}

func (b *Bridge) Logout(context.Context) error {
	return nil
}

func (b *Bridge) readLines() {
	defer close(b.lines)
	scanner := bufio.NewScanner(b.in)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.lines <- line
	}
}

func (b *Bridge) Poll(ctx context.Context) (bridge.Polled, error) {
	select {
	case <-ctx.Done():
		return bridge.Polled{}, ctx.Err()
	case line, ok := <-b.lines:
		if !ok {
			return bridge.Polled{}, bridge.ErrClosed
		}
		user := b.opts.User
		msg := &bridge.Message{
			ID:       b.nextID(),
			ChatID:   b.opts.ChatID,
			ChatKind: "private",
			Text:     line,
			From:     &user,
			Time:     time.Now(),
		}
		return bridge.Polled{Message: msg, Chat: &chat{b: b}}, nil
	}
}

func (b *Bridge) nextID() string {
	return strconv.FormatInt(b.seq.Add(1), 10)
}

type chat struct {
	b *Bridge
}

func (c *chat) ID() string { return c.b.opts.ChatID }

func (c *chat) Send(_ context.Context, msg bridge.Outgoing) (bridge.Sent, error) {
	id := c.b.nextID()
	c.b.outMu.Lock()
	defer c.b.outMu.Unlock()
	if _, err := fmt.Fprintf(c.b.out, "[%s] %s\n", id, msg.Text); err != nil {
		return bridge.Sent{}, err
	}
	return bridge.Sent{ID: id, ChatID: c.ID()}, nil
}

func (c *chat) Delete(_ context.Context, messageID string) error {
	c.b.outMu.Lock()
	defer c.b.outMu.Unlock()
	_, err := fmt.Fprintf(c.b.out, "[%s] (deleted)\n", messageID)
	return err
}
