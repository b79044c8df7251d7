package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tripdeals/internal/adapters/observability"
	"tripdeals/internal/domain"
)

// Conn is one live client connection. Send must be safe for concurrent use.
type Conn interface {
	ID() string
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// Broker owns topic membership and fans messages out to connections.
// All membership state is guarded by mu; fan-out holds the read lock so
// connect and disconnect cannot reshape a subscriber set mid-delivery.
type Broker struct {
	mu       sync.RWMutex
	members  map[Conn]map[string]struct{} // conn -> topics
	topics   map[string]map[Conn]struct{}
	sessions map[string]Conn

	sendTimeout time.Duration
	fanout      int
	now         func() time.Time
}

func NewBroker(sendTimeout time.Duration) *Broker {
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &Broker{
		members:     map[Conn]map[string]struct{}{},
		topics:      map[string]map[Conn]struct{}{},
		sessions:    map[string]Conn{},
		sendTimeout: sendTimeout,
		fanout:      32,
		now:         time.Now,
	}
}

// Connect registers c, subscribes it to "all" and sends the welcome frame.
// A session that reconnects is rebound to the new connection.
func (b *Broker) Connect(ctx context.Context, c Conn, sessionID string) error {
	b.mu.Lock()
	if _, ok := b.members[c]; !ok {
		b.members[c] = map[string]struct{}{}
	}
	b.subscribeLocked(c, TopicAll)
	if sessionID != "" {
		b.sessions[sessionID] = c
	}
	n := len(b.members)
	b.mu.Unlock()

	observability.SetConnections(n)
	log.Debug().Str("conn_id", c.ID()).Str("session_id", sessionID).Int("connections", n).Msg("realtime connect")

	return b.Send(ctx, c, &ConnectedMessage{Envelope: newEnvelope(MsgConnected), SessionID: sessionID})
}

// Subscribe adds c to topic. It reports false when c is not connected.
func (b *Broker) Subscribe(c Conn, topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[c]; !ok {
		return false
	}
	b.subscribeLocked(c, topic)
	return true
}

func (b *Broker) subscribeLocked(c Conn, topic string) {
	set, ok := b.topics[topic]
	if !ok {
		set = map[Conn]struct{}{}
		b.topics[topic] = set
	}
	set[c] = struct{}{}
	b.members[c][topic] = struct{}{}
}

// Disconnect removes c from every topic and session and closes it.
// Calling it again is a no-op.
func (b *Broker) Disconnect(c Conn) {
	b.mu.Lock()
	topics, ok := b.members[c]
	if !ok {
		b.mu.Unlock()
		return
	}
	for t := range topics {
		if set := b.topics[t]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(b.topics, t)
			}
		}
	}
	for sid, sc := range b.sessions {
		if sc == c {
			delete(b.sessions, sid)
		}
	}
	delete(b.members, c)
	n := len(b.members)
	b.mu.Unlock()

	observability.SetConnections(n)
	if err := c.Close(); err != nil {
		log.Debug().Err(err).Str("conn_id", c.ID()).Msg("close connection")
	}
}

// Broadcast delivers msg to every subscriber of "all" and of topic.
// A recipient whose send fails is disconnected; the others still receive it.
func (b *Broker) Broadcast(ctx context.Context, msg Message, topic string) {
	b.deliver(ctx, msg, TopicAll, topic)
}

// Publish delivers msg to subscribers of topic only.
func (b *Broker) Publish(ctx context.Context, msg Message, topic string) {
	b.deliver(ctx, msg, topic)
}

// SendToSession unicasts msg. No-op when the session has no live connection.
func (b *Broker) SendToSession(ctx context.Context, sessionID string, msg Message) {
	b.mu.RLock()
	c, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	_ = b.Send(ctx, c, msg)
}

// Send writes msg to a single connection, disconnecting it on failure.
func (b *Broker) Send(ctx context.Context, c Conn, msg Message) error {
	msg.stamp(b.now())
	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.kind(), err)
	}
	sctx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()
	if err := c.Send(sctx, frame); err != nil {
		observability.ObserveDelivery(msg.kind(), false)
		b.Disconnect(c)
		return err
	}
	observability.ObserveDelivery(msg.kind(), true)
	return nil
}

func (b *Broker) deliver(ctx context.Context, msg Message, topics ...string) {
	msg.stamp(b.now())
	frame, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.kind()).Msg("encode realtime message")
		return
	}

	var (
		failedMu sync.Mutex
		failed   []Conn
	)

	b.mu.RLock()
	recipients := map[Conn]struct{}{}
	for _, t := range topics {
		for c := range b.topics[t] {
			recipients[c] = struct{}{}
		}
	}
	var g errgroup.Group
	g.SetLimit(b.fanout)
	for c := range recipients {
		c := c
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, b.sendTimeout)
			defer cancel()
			if err := c.Send(sctx, frame); err != nil {
				log.Debug().Err(err).Str("conn_id", c.ID()).Msg("realtime send failed")
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	b.mu.RUnlock()

	for i := len(failed); i < len(recipients); i++ {
		observability.ObserveDelivery(msg.kind(), true)
	}
	for _, c := range failed {
		observability.ObserveDelivery(msg.kind(), false)
		b.Disconnect(c)
	}
}

func (b *Broker) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.members)
}

// Close disconnects every connection.
func (b *Broker) Close() {
	b.mu.RLock()
	all := make([]Conn, 0, len(b.members))
	for c := range b.members {
		all = append(all, c)
	}
	b.mu.RUnlock()
	for _, c := range all {
		b.Disconnect(c)
	}
}

// PublishDeal implements domain.Publisher.
func (b *Broker) PublishDeal(ctx context.Context, l domain.Listing) {
	b.Broadcast(ctx, NewDeal(l), DealTopic(l.Type))
}

// PublishWatchEvent implements domain.Publisher. Alerts go to the watch
// topic only.
func (b *Broker) PublishWatchEvent(ctx context.Context, ev domain.WatchEvent) {
	b.Publish(ctx, WatchAlert(ev), WatchTopic(ev.WatchID))
}

var _ domain.Publisher = (*Broker)(nil)
