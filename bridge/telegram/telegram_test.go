package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quailyquaily/plugbot/bridge"
)

type fakeAPI struct {
	mu      sync.Mutex
	served  bool
	sent    []sendMessageRequest
	deleted []deleteMessageRequest
	offsets []int64
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		if !strings.HasPrefix(r.URL.Path, "/botTOKEN/") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		switch method {
		case "getMe":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":42,"is_bot":true,"username":"mybot","first_name":"My"}}`)
		case "getUpdates":
			var req getUpdatesRequest
			_ = json.Unmarshal(body, &req)
			f.mu.Lock()
			f.offsets = append(f.offsets, req.Offset)
			first := !f.served
			f.served = true
			f.mu.Unlock()
			if !first {
				select {
				case <-r.Context().Done():
				case <-time.After(50 * time.Millisecond):
				}
				_, _ = io.WriteString(w, `{"ok":true,"result":[]}`)
				return
			}
			_, _ = io.WriteString(w, `{"ok":true,"result":[
				{"update_id":10,"message":{"message_id":1,"date":1700000000,"chat":{"id":-5,"type":"group"},"from":{"id":7,"username":"ann","first_name":"Ann"},"text":"hi"}},
				{"update_id":11,"channel_post":{"message_id":2,"chat":{"id":-6,"type":"channel"},"text":"news"}},
				{"update_id":12,"message":{"message_id":3,"chat":{"id":-5,"type":"group"},"from":{"id":7}}}
			]}`)
		case "sendMessage":
			var req sendMessageRequest
			_ = json.Unmarshal(body, &req)
			f.mu.Lock()
			f.sent = append(f.sent, req)
			id := 100 + len(f.sent)
			f.mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":`+itoa(id)+`}}`)
		case "deleteMessage":
			var req deleteMessageRequest
			_ = json.Unmarshal(body, &req)
			f.mu.Lock()
			f.deleted = append(f.deleted, req)
			f.mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
		default:
			t.Errorf("unexpected method %s", method)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newTestBridge(t *testing.T, token string) (*Bridge, *fakeAPI) {
	t.Helper()
	fake := &fakeAPI{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	b := New(Config{
		Token:       token,
		BaseURL:     srv.URL,
		PollTimeout: time.Second,
		SendRate:    1000,
		SendBurst:   10,
		HTTPClient:  srv.Client(),
	})
	return b, fake
}

func TestBridgeLoginPollSend(t *testing.T) {
	t.Parallel()

	b, fake := newTestBridge(t, "TOKEN")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Login(ctx); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	defer func() {
		if err := b.Logout(ctx); err != nil {
			t.Fatalf("Logout() error = %v", err)
		}
	}()
	if self := b.Self(); self == nil || self.Username != "mybot" {
		t.Fatalf("Self() = %+v, want mybot", self)
	}

	first, err := b.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	msg := first.Message
	if msg.Text != "hi" || msg.ChatID != "-5" || msg.ChatKind != "group" {
		t.Fatalf("Poll() message = %+v", msg)
	}
	if msg.From == nil || msg.From.ID != "7" || msg.From.Name() != "Ann" {
		t.Fatalf("Poll() sender = %+v", msg.From)
	}

	second, err := b.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if second.Message.From != nil || second.Message.Text != "news" {
		t.Fatalf("channel post = %+v, want senderless news", second.Message)
	}

	sent, err := first.Chat.Send(ctx, bridge.Outgoing{Text: "hello", ReplyTo: msg.ID})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sent.ID != "101" || sent.ChatID != "-5" {
		t.Fatalf("Send() = %+v", sent)
	}
	if err := first.Chat.Delete(ctx, sent.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.sent) != 1 || fake.sent[0].ChatID != -5 || fake.sent[0].ReplyToMessageID != 1 {
		t.Fatalf("sent = %+v", fake.sent)
	}
	if len(fake.deleted) != 1 || fake.deleted[0].MessageID != 101 {
		t.Fatalf("deleted = %+v", fake.deleted)
	}
}

func TestBridgeOffsetAdvances(t *testing.T) {
	t.Parallel()

	b, fake := newTestBridge(t, "TOKEN")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Login(ctx); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := b.Poll(ctx); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	for {
		fake.mu.Lock()
		n := len(fake.offsets)
		var last int64
		if n > 0 {
			last = fake.offsets[n-1]
		}
		fake.mu.Unlock()
		if n >= 2 {
			if last != 13 {
				t.Fatalf("offset = %d, want 13", last)
			}
			break
		}
		if ctx.Err() != nil {
			t.Fatalf("poller did not request again")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := b.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	for {
		if _, err := b.Poll(ctx); err != nil {
			if !errors.Is(err, bridge.ErrClosed) {
				t.Fatalf("Poll() after Logout error = %v, want ErrClosed", err)
			}
			return
		}
	}
}

func TestBridgeLoginRejectsBadToken(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, "WRONG")
	err := b.Login(context.Background())
	var reqErr *requestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Login() error = %v, want 401 request error", err)
	}
	if !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("Login() error = %q", err.Error())
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("é", 5)
	chunks := splitText(text, 3)
	if strings.Join(chunks, "") != text {
		t.Fatalf("splitText() lost text: %q", chunks)
	}
	for _, c := range chunks {
		if len(c) > 3 {
			t.Fatalf("chunk %q longer than 3 bytes", c)
		}
	}
	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("splitText(short) = %q", got)
	}
}

func TestTransportErrorHidesToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	b := New(Config{Token: "123:SECRET-token", BaseURL: base})
	err := b.Login(context.Background())
	if err == nil {
		t.Fatalf("Login() against a closed server succeeded")
	}
	if strings.Contains(err.Error(), "SECRET-token") {
		t.Fatalf("error leaks the token: %v", err)
	}
	var te *transportError
	if !errors.As(err, &te) || te.Method != "getMe" {
		t.Fatalf("Login() error = %v, want a getMe transport error", err)
	}
}
