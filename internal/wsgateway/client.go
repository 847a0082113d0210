package wsgateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/agentcore/internal/corelog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Client runs the per-connection read and write pumps for one upgraded
// WebSocket (C8). Grounded on the teacher's gateway/websocket.Client, with
// the WritePump sending one frame per message and the ReadPump's dispatch rewired to
// the three control messages spec.md §6 defines (subscribe, unsubscribe,
// ping) instead of the teacher's task/session/user subscription surface.
type Client struct {
	handle   *ClientHandle
	conn     *websocket.Conn
	registry *Registry
	logger   *corelog.Logger
}

// NewClient wraps an upgraded connection and a freshly registered client
// handle.
func NewClient(conn *websocket.Conn, handle *ClientHandle, registry *Registry, log *corelog.Logger) *Client {
	return &Client{
		conn:     conn,
		handle:   handle,
		registry: registry,
		logger:   log.WithFields(zap.String("client_id", handle.ID)),
	}
}

// ReadPump reads control frames until the peer closes the connection or a
// protocol-level error occurs, then unregisters the client. Malformed
// frames get an error reply, per spec.md §4.8, and never close the
// connection by themselves.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.registry.RemoveClient(c.handle.ID)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}

		switch msg.Type {
		case TypeSubscribe:
			c.handleSubscribe(msg)
		case TypeUnsubscribe:
			c.handleUnsubscribe(msg)
		case TypePing:
			c.send(newPong())
		default:
			c.sendError("unknown message type: " + msg.Type)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Client) handleSubscribe(msg Message) {
	channel, err := parseChannelContent(msg.Content)
	if err != nil || channel == "" {
		c.sendError("subscribe requires a non-empty channel")
		return
	}
	c.registry.Subscribe(c.handle.ID, channel)
	c.send(newSubscribed(channel))
}

func (c *Client) handleUnsubscribe(msg Message) {
	channel, err := parseChannelContent(msg.Content)
	if err != nil || channel == "" {
		c.sendError("unsubscribe requires a non-empty channel")
		return
	}
	c.registry.Unsubscribe(c.handle.ID, channel)
	c.send(newUnsubscribed(channel))
}

func (c *Client) sendError(message string) {
	c.send(newError(message))
}

func (c *Client) send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal outbound message", zap.Error(err))
		return
	}
	c.handle.queue.push(data)
}

// WritePump drains the client's outbound queue (via its Outbound channel)
// into WebSocket text frames, sending periodic pings to detect dead peers.
// Messages already queued behind the first are written in the same loop
// iteration, each as its own text frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	out := c.handle.Outbound()
	for {
		select {
		case message, ok := <-out:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// §6's wire format is one JSON object per text frame; unlike the
			// teacher's newline-batched WritePump, already-queued messages
			// each get their own NextWriter/Close rather than being joined
			// into a single frame.
			if err := c.writeFrame(message); err != nil {
				return
			}
			n := len(out)
			for i := 0; i < n; i++ {
				if err := c.writeFrame(<-out); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeFrame sends message as its own WebSocket text frame, with a fresh
// write deadline per frame.
func (c *Client) writeFrame(message []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if _, err := w.Write(message); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
