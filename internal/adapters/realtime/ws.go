package realtime

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tripdeals/internal/app"
	"tripdeals/internal/domain"
)

// Chatter answers chat frames. *app.ChatService satisfies it.
type Chatter interface {
	Handle(ctx context.Context, sessionID, message string) (app.ChatResponse, error)
}

// wsConn serializes writes to one websocket.
type wsConn struct {
	id           string
	nc           net.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.nc.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return wsutil.WriteServerMessage(c.nc, ws.OpText, frame)
}

// controlWriter carries pong and close replies written by the frame reader
// through the same lock as Send.
type controlWriter struct{ c *wsConn }

func (w controlWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	_ = w.c.nc.SetWriteDeadline(time.Now().Add(w.c.writeTimeout))
	return w.c.nc.Write(p)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return ws.WriteFrame(c.nc, ws.NewPingFrame(nil))
}

// idleReader pushes the read deadline forward whenever the peer sends
// anything, pongs included.
type idleReader struct {
	r    io.Reader
	nc   net.Conn
	idle time.Duration
}

func (r idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		_ = r.nc.SetReadDeadline(time.Now().Add(r.idle))
	}
	return n, err
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.nc.Close() })
	return err
}

// Handler upgrades GET /events to a websocket and runs the client protocol.
type Handler struct {
	broker       *Broker
	chat         Chatter
	writeTimeout time.Duration
	idleTimeout  time.Duration
}

const defaultIdleTimeout = 60 * time.Second

func NewHandler(b *Broker, chat Chatter, writeTimeout time.Duration) *Handler {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Handler{broker: b, chat: chat, writeTimeout: writeTimeout, idleTimeout: defaultIdleTimeout}
}

// WithIdleTimeout sets how long a silent client is kept. The server pings
// at half that interval.
func (h *Handler) WithIdleTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.idleTimeout = d
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = "session-" + uuid.NewString()[:8]
	}

	nc, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsConn{id: uuid.NewString(), nc: nc, writeTimeout: h.writeTimeout}
	var rd io.Reader = nc
	if rw != nil {
		rd = rw.Reader
	}
	_ = nc.SetReadDeadline(time.Now().Add(h.idleTimeout))
	src := struct {
		io.Reader
		io.Writer
	}{idleReader{r: rd, nc: nc, idle: h.idleTimeout}, controlWriter{c}}

	// ctx lives until the read loop below returns
	ctx := r.Context()
	if err := h.broker.Connect(ctx, c, sessionID); err != nil {
		return
	}
	defer h.broker.Disconnect(c)

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(c, done)

	for {
		data, op, err := wsutil.ReadClientData(src)
		if err != nil {
			return // closed by peer, broken or idle
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}
		h.dispatch(ctx, c, sessionID, data)
	}
}

func (h *Handler) keepAlive(c *wsConn, done <-chan struct{}) {
	t := time.NewTicker(h.idleTimeout / 2)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, c Conn, sessionID string, data []byte) {
	in, err := decodeInbound(data)
	if err != nil {
		h.reply(ctx, c, &ErrorMessage{Envelope: newEnvelope(MsgError), Message: "invalid JSON"})
		return
	}

	switch in.Type {
	case MsgPing:
		h.reply(ctx, c, &Envelope{Type: MsgPong})

	case MsgSubscribeDeals:
		topic := TopicAll
		switch dt := domain.DealType(strings.ToLower(in.DealType)); dt {
		case domain.DealFlight, domain.DealHotel:
			topic = DealTopic(dt)
		case "", "all":
		default:
			h.reply(ctx, c, &ErrorMessage{Envelope: newEnvelope(MsgError), Message: "deal_type must be flight, hotel or all"})
			return
		}
		h.subscribe(ctx, c, topic)

	case MsgSubscribeWatch:
		if in.WatchID == "" {
			h.reply(ctx, c, &ErrorMessage{Envelope: newEnvelope(MsgError), Message: "watch_id is required"})
			return
		}
		h.subscribe(ctx, c, WatchTopic(in.WatchID))

	case MsgChat:
		if h.chat == nil {
			h.reply(ctx, c, &ErrorMessage{Envelope: newEnvelope(MsgError), Message: "chat unavailable"})
			return
		}
		resp, err := h.chat.Handle(ctx, sessionID, in.Message)
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("chat over websocket failed")
			h.reply(ctx, c, &ErrorMessage{Envelope: newEnvelope(MsgError), Message: "chat failed"})
			return
		}
		h.reply(ctx, c, &ChatResponseMessage{Envelope: newEnvelope(MsgChatResponse), Data: resp})

	default:
		h.reply(ctx, c, &ErrorMessage{Envelope: newEnvelope(MsgError), Message: "unknown message type " + in.Type})
	}
}

func (h *Handler) subscribe(ctx context.Context, c Conn, topic string) {
	if !h.broker.Subscribe(c, topic) {
		return
	}
	h.reply(ctx, c, &SubscribedMessage{Envelope: newEnvelope(MsgSubscribed), Subscription: topic})
}

func (h *Handler) reply(ctx context.Context, c Conn, msg Message) {
	_ = h.broker.Send(ctx, c, msg)
}
