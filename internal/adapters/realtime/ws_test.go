package realtime_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"tripdeals/internal/adapters/realtime"
	"tripdeals/internal/app"
	"tripdeals/internal/domain"
)

type echoChat struct{}

func (echoChat) Handle(ctx context.Context, sessionID, message string) (app.ChatResponse, error) {
	return app.ChatResponse{SessionID: sessionID, Message: "you said " + message}, nil
}

type client struct {
	t  *testing.T
	nc net.Conn
	rw io.ReadWriter
}

func dial(t *testing.T, url string) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	nc, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { nc.Close() })
	var r io.Reader = nc
	if br != nil {
		r = br
	}
	return &client{t: t, nc: nc, rw: struct {
		io.Reader
		io.Writer
	}{bufio.NewReader(r), nc}}
}

func (c *client) send(v any) {
	c.t.Helper()
	b, _ := json.Marshal(v)
	if err := wsutil.WriteClientMessage(c.nc, ws.OpText, b); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *client) read() map[string]any {
	c.t.Helper()
	_ = c.nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	b, _, err := wsutil.ReadServerData(c.rw)
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		c.t.Fatalf("decode: %v", err)
	}
	return m
}

func TestWebsocket_Protocol(t *testing.T) {
	b := realtime.NewBroker(time.Second)
	srv := httptest.NewServer(realtime.NewHandler(b, echoChat{}, time.Second))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?session_id=s42"

	c := dial(t, url)
	if m := c.read(); m["type"] != "connected" || m["session_id"] != "s42" {
		t.Fatalf("unexpected welcome: %v", m)
	}

	c.send(map[string]any{"type": "subscribe_deals", "deal_type": "hotel"})
	if m := c.read(); m["type"] != "subscribed" || m["subscription"] != "deals:hotel" {
		t.Fatalf("unexpected subscribe ack: %v", m)
	}

	b.PublishDeal(context.Background(), domain.Listing{
		Snapshot: domain.Snapshot{ID: "HT1", Type: domain.DealHotel},
		Score:    domain.DealScore{Promo: 30},
	})
	if m := c.read(); m["type"] != "new_deal" || m["deal_id"] != "HT1" {
		t.Fatalf("unexpected deal frame: %v", m)
	}

	c.send(map[string]any{"type": "ping"})
	if m := c.read(); m["type"] != "pong" {
		t.Fatalf("expected pong, got %v", m)
	}

	c.send(map[string]any{"type": "chat", "message": "hello"})
	m := c.read()
	data, _ := m["data"].(map[string]any)
	if m["type"] != "chat_response" || data["message"] != "you said hello" || data["session_id"] != "s42" {
		t.Fatalf("unexpected chat response: %v", m)
	}

	c.send(map[string]any{"type": "subscribe_watch"})
	if m := c.read(); m["type"] != "error" {
		t.Fatalf("expected error for missing watch_id, got %v", m)
	}
}

func TestWebsocket_DisconnectUnregisters(t *testing.T) {
	b := realtime.NewBroker(time.Second)
	srv := httptest.NewServer(realtime.NewHandler(b, nil, time.Second))
	defer srv.Close()

	c := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	c.read() // welcome
	if b.ConnectionCount() != 1 {
		t.Fatalf("expected 1 connection, got %d", b.ConnectionCount())
	}
	c.nc.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.ConnectionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection not unregistered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebsocket_SilentClientIsDropped(t *testing.T) {
	b := realtime.NewBroker(time.Second)
	h := realtime.NewHandler(b, nil, time.Second).WithIdleTimeout(200 * time.Millisecond)
	srv := httptest.NewServer(h)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	// an active client outlives several idle windows
	active := dial(t, url)
	active.read() // welcome
	for i := 0; i < 8; i++ {
		active.send(map[string]any{"type": "ping"})
		if m := active.read(); m["type"] != "pong" {
			t.Fatalf("expected pong, got %v", m)
		}
		time.Sleep(60 * time.Millisecond)
	}
	if b.ConnectionCount() != 1 {
		t.Fatalf("active client dropped, count %d", b.ConnectionCount())
	}

	active.nc.Close()
	waitConnections(t, b, 0)

	// a client that stops reading never answers the server's pings
	silent := dial(t, url)
	silent.read() // welcome
	if b.ConnectionCount() != 1 {
		t.Fatalf("expected 1 connection, got %d", b.ConnectionCount())
	}
	waitConnections(t, b, 0)
}

func waitConnections(t *testing.T, b *realtime.Broker, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ConnectionCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("connection count %d, want %d", b.ConnectionCount(), want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
