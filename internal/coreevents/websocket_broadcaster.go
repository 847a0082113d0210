package coreevents

import (
	"context"
	"encoding/json"
)

// channelBroadcaster is the one method WebSocketBroadcaster needs from the
// Client Registry. Declaring it locally (rather than importing wsgateway)
// keeps coreevents free of any dependency on the WebSocket transport layer
// — wsgateway.Registry satisfies this interface structurally.
type channelBroadcaster interface {
	BroadcastToChannel(channel string, message []byte) int
}

// wsMessage and wsEventContent mirror wsgateway's Message envelope and
// event-frame content shape so this package can encode a full Message
// envelope without importing wsgateway.
type wsMessage struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

type wsEventContent struct {
	Channel string `json:"channel"`
	Payload any     `json:"payload"`
}

// WebSocketBroadcaster maps events to their channel and wire message, then
// delegates delivery to the Client Registry (spec.md §4.9's second
// provided Event Broadcaster implementation).
type WebSocketBroadcaster struct {
	target channelBroadcaster
}

// NewWebSocketBroadcaster wraps any channelBroadcaster — in practice a
// *wsgateway.Registry — as an Event Broadcaster.
func NewWebSocketBroadcaster(target channelBroadcaster) *WebSocketBroadcaster {
	return &WebSocketBroadcaster{target: target}
}

func (b *WebSocketBroadcaster) Publish(_ context.Context, event Event) error {
	channel := Channel(event)
	content, err := json.Marshal(wsEventContent{Channel: channel, Payload: event.Payload()})
	if err != nil {
		return err
	}
	data, err := json.Marshal(wsMessage{Type: "event", Content: content})
	if err != nil {
		return err
	}
	b.target.BroadcastToChannel(channel, data)
	return nil
}

func (b *WebSocketBroadcaster) Close() error { return nil }
