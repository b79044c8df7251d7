package realtime

import (
	"encoding/json"
	"time"

	"tripdeals/internal/domain"
)

const (
	TopicAll = "all"

	// client -> server
	MsgSubscribeDeals = "subscribe_deals"
	MsgSubscribeWatch = "subscribe_watch"
	MsgChat           = "chat"
	MsgPing           = "ping"

	// server -> client
	MsgConnected    = "connected"
	MsgSubscribed   = "subscribed"
	MsgNewDeal      = "new_deal"
	MsgWatchAlert   = "watch_alert"
	MsgChatResponse = "chat_response"
	MsgPong         = "pong"
	MsgError        = "error"
)

func DealTopic(t domain.DealType) string { return "deals:" + string(t) }
func WatchTopic(watchID string) string   { return "watch:" + watchID }

// Message is any server-to-client frame. The broker stamps it on send.
type Message interface {
	stamp(t time.Time)
	kind() string
}

type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Envelope) stamp(t time.Time) { e.Timestamp = t.UTC() }
func (e *Envelope) kind() string      { return e.Type }

type ConnectedMessage struct {
	Envelope
	SessionID string `json:"session_id"`
}

type SubscribedMessage struct {
	Envelope
	Subscription string `json:"subscription"`
}

type NewDealMessage struct {
	Envelope
	DealType domain.DealType `json:"deal_type"`
	DealID   string          `json:"deal_id"`
	Score    int             `json:"score"`
	WhyThis  string          `json:"why_this"`
}

type WatchAlertMessage struct {
	Envelope
	WatchID       string                `json:"watch_id"`
	EventType     domain.WatchEventType `json:"event_type"`
	DealID        string                `json:"deal_id"`
	PreviousValue float64               `json:"previous_value"`
	CurrentValue  float64               `json:"current_value"`
	Threshold     float64               `json:"threshold"`
	Message       string                `json:"message"`
}

type ChatResponseMessage struct {
	Envelope
	Data any `json:"data"`
}

type ErrorMessage struct {
	Envelope
	Message string `json:"message"`
}

func newEnvelope(typ string) Envelope { return Envelope{Type: typ} }

func NewDeal(l domain.Listing) *NewDealMessage {
	return &NewDealMessage{
		Envelope: newEnvelope(MsgNewDeal),
		DealType: l.Type,
		DealID:   l.ID,
		Score:    l.Score.Total(),
		WhyThis:  l.WhyThis,
	}
}

func WatchAlert(ev domain.WatchEvent) *WatchAlertMessage {
	return &WatchAlertMessage{
		Envelope:      newEnvelope(MsgWatchAlert),
		WatchID:       ev.WatchID,
		EventType:     ev.EventType,
		DealID:        ev.DealID,
		PreviousValue: ev.PreviousValue,
		CurrentValue:  ev.CurrentValue,
		Threshold:     ev.Threshold,
		Message:       ev.Message,
	}
}

// Inbound is a client frame. Unused fields stay empty.
type Inbound struct {
	Type     string `json:"type"`
	DealType string `json:"deal_type,omitempty"`
	WatchID  string `json:"watch_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

func decodeInbound(b []byte) (Inbound, error) {
	var in Inbound
	err := json.Unmarshal(b, &in)
	return in, err
}
