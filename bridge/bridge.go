// Package bridge defines what the dispatcher needs from a chat platform.
package bridge

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Poll once the bridge will deliver no more messages.
var ErrClosed = errors.New("bridge: closed")

type User struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// Name is the best human-readable label for the user.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.ID
}

type Message struct {
	ID     string
	ChatID string
	// ChatKind is the platform's chat type, e.g. private or group.
	ChatKind string
	Text     string
	// From is nil for messages without a known sender, such as channel posts.
	From    *User
	ReplyTo *Message
	Time    time.Time
}

type Outgoing struct {
	Text    string
	ReplyTo string
}

type Sent struct {
	ID     string
	ChatID string
}

type Chat interface {
	ID() string
	Send(ctx context.Context, msg Outgoing) (Sent, error)
	Delete(ctx context.Context, messageID string) error
}

type Polled struct {
	Message *Message
	Chat    Chat
}

type Bridge interface {
	Name() string
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	// Poll blocks until a message arrives, ctx ends or the bridge closes.
	Poll(ctx context.Context) (Polled, error)
	// Self is the bot account, known after Login.
	Self() *User
}
