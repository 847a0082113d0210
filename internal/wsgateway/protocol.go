// Package wsgateway implements the Client Registry (C7) and WebSocket
// Bridge (C8): it tracks connected WebSocket peers and their channel
// subscriptions, and translates between the wire protocol of spec.md §6
// and registry operations. Grounded on the teacher's
// internal/gateway/websocket package, with the envelope shape adapted from
// the teacher's {type, action, payload} to the bit-exact {type, content}
// schema this core's protocol requires.
package wsgateway

import "encoding/json"

// Message is the wire envelope for every frame exchanged over the
// WebSocket connection, in both directions.
type Message struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"

	TypeConnected    = "connected"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeEvent        = "event"
	TypePong         = "pong"
	TypeError        = "error"
	TypeShutdown     = "shutdown"
)

type channelContent struct {
	Channel string `json:"channel"`
}

type connectedContent struct {
	ClientID string `json:"client_id"`
}

type eventContent struct {
	Channel string `json:"channel"`
	Payload any     `json:"payload"`
}

type errorContent struct {
	Error string `json:"error"`
}

type shutdownContent struct {
	Reason string `json:"reason"`
}

func marshalContent(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func newConnected(clientID string) Message {
	return Message{Type: TypeConnected, Content: marshalContent(connectedContent{ClientID: clientID})}
}

func newSubscribed(channel string) Message {
	return Message{Type: TypeSubscribed, Content: marshalContent(channelContent{Channel: channel})}
}

func newUnsubscribed(channel string) Message {
	return Message{Type: TypeUnsubscribed, Content: marshalContent(channelContent{Channel: channel})}
}

func newEvent(channel string, payload any) Message {
	return Message{Type: TypeEvent, Content: marshalContent(eventContent{Channel: channel, Payload: payload})}
}

func newPong() Message {
	return Message{Type: TypePong}
}

func newError(msg string) Message {
	return Message{Type: TypeError, Content: marshalContent(errorContent{Error: msg})}
}

func newShutdown(reason string) Message {
	return Message{Type: TypeShutdown, Content: marshalContent(shutdownContent{Reason: reason})}
}

func parseChannelContent(raw json.RawMessage) (string, error) {
	var c channelContent
	if err := json.Unmarshal(raw, &c); err != nil {
		return "", err
	}
	return c.Channel, nil
}
