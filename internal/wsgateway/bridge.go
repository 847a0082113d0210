package wsgateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/agentcore/internal/corelog"
)

// Bridge upgrades incoming HTTP connections to WebSocket and wires each one
// to the Registry. This is the entry point C11's Server Host mounts at
// `/ws`.
type Bridge struct {
	registry *Registry
	upgrader websocket.Upgrader
	logger   *corelog.Logger
}

// NewBridge creates a Bridge over registry. Origin checking is left
// permissive — per spec.md's non-goals, the core performs no traffic
// authentication, since it is a single-user local tool.
func NewBridge(registry *Registry, log *corelog.Logger) *Bridge {
	return &Bridge{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log.WithFields(zap.String("component", "ws_bridge")),
	}
}

// ServeUpgrade upgrades r and runs the connection's read/write pumps until
// it closes. Intended to be called from an HTTP handler (e.g. a gin route)
// so the framework owns the request lifecycle; ServeUpgrade blocks for the
// lifetime of the connection.
func (b *Bridge) ServeUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	handle := b.registry.AddClient()
	client := NewClient(conn, handle, b.registry, b.logger)

	connected, _ := json.Marshal(newConnected(handle.ID))
	handle.queue.push(connected)

	go client.WritePump()
	client.ReadPump(ctx)
	return nil
}

// Registry exposes the underlying Client Registry so the Server Host can
// wire it into an Event Broadcaster backend.
func (b *Bridge) Registry() *Registry { return b.registry }
