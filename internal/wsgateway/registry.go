package wsgateway

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/agentcore/internal/corelog"
)

// ClientHandle is the Client record of spec.md §3: a connected peer's
// identity, outbound queue, and subscription set. The registry owns and
// mutates it; the WebSocket Bridge's write pump borrows the queue's
// receive side for the connection's lifetime (I6).
type ClientHandle struct {
	ID string

	queue *unboundedQueue
	outC  chan []byte // fed by a pump goroutine draining queue; lets WritePump select

	mu            sync.RWMutex
	subscriptions map[string]bool
	wildcard      bool
}

// Outbound returns the channel the WebSocket Bridge's write pump should
// range/select over. It is closed once the underlying queue is closed and
// fully drained.
func (c *ClientHandle) Outbound() <-chan []byte { return c.outC }

func (c *ClientHandle) runPump() {
	defer close(c.outC)
	for {
		item, ok := c.queue.pop()
		if !ok {
			return
		}
		c.outC <- item
	}
}

func (c *ClientHandle) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wildcard || c.subscriptions[channel]
}

// Registry is the Client Registry (C7): it tracks every connected
// WebSocket client and its channel subscriptions, and fans broadcasts out
// to matching clients. Grounded on the teacher's gateway/websocket.Hub,
// generalized from task-id subscription to arbitrary channel-name
// subscription plus the `*` wildcard, and from a bounded per-client
// channel to an unboundedQueue per spec.md's backpressure policy.
//
// Concurrency: a single RWMutex guards the client map (write-preferring in
// effect since registration/removal are rare relative to broadcasts); each
// client's own subscription set has its own lock so a slow subscriber
// lookup never blocks registry-wide broadcasts for longer than a map scan.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*ClientHandle
	logger  *corelog.Logger
}

// NewRegistry creates an empty Client Registry.
func NewRegistry(log *corelog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*ClientHandle),
		logger:  log,
	}
}

// AddClient registers a new client and returns its handle. The caller
// (the WebSocket Bridge) is responsible for draining the handle's queue
// via Outbound for the lifetime of the connection.
func (r *Registry) AddClient() *ClientHandle {
	c := &ClientHandle{
		ID:            uuid.NewString(),
		queue:         newUnboundedQueue(),
		outC:          make(chan []byte, 16),
		subscriptions: make(map[string]bool),
	}
	go c.runPump()
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()
	r.logger.Debug("client registered", zap.String("client_id", c.ID))
	return c
}

// RemoveClient unregisters a client and closes its queue, waking its write
// pump so it can exit.
func (r *Registry) RemoveClient(clientID string) {
	r.mu.Lock()
	c, ok := r.clients[clientID]
	if ok {
		delete(r.clients, clientID)
	}
	r.mu.Unlock()
	if ok {
		c.queue.close()
		r.logger.Debug("client unregistered", zap.String("client_id", clientID))
	}
}

// Subscribe adds channel to clientID's subscription set. `*` sets the
// wildcard flag instead of being stored literally.
func (r *Registry) Subscribe(clientID, channel string) bool {
	r.mu.RLock()
	c, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	c.mu.Lock()
	if channel == "*" {
		c.wildcard = true
	} else {
		c.subscriptions[channel] = true
	}
	c.mu.Unlock()
	return true
}

// Unsubscribe removes channel from clientID's subscription set (R1: a
// subscribe followed by an unsubscribe of the same channel restores the
// prior subscription set).
func (r *Registry) Unsubscribe(clientID, channel string) bool {
	r.mu.RLock()
	c, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	c.mu.Lock()
	if channel == "*" {
		c.wildcard = false
	} else {
		delete(c.subscriptions, channel)
	}
	c.mu.Unlock()
	return true
}

// Broadcast enqueues message to every client subscribed to channel or to
// `*`, returning how many clients it was delivered to (P4). A client whose
// queue has already been closed (it is mid-disconnect) is simply not
// counted — the receiving side is responsible for its own cleanup, per
// spec.md §4.7's send-failure policy.
func (r *Registry) Broadcast(channel string, message []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, c := range r.clients {
		if !c.isSubscribed(channel) {
			continue
		}
		if c.queue.push(message) {
			delivered++
		} else {
			r.logger.Debug("dropped broadcast to closed client queue", zap.String("client_id", c.ID))
		}
	}
	return delivered
}

// BroadcastToChannel implements the small interface coreevents.channelBroadcaster
// expects, so the Event Broadcaster's WebSocket backend can depend on
// Registry without this package importing coreevents.
func (r *Registry) BroadcastToChannel(channel string, message []byte) int {
	return r.Broadcast(channel, message)
}

// BroadcastAll enqueues message to every client regardless of subscription.
func (r *Registry) BroadcastAll(message []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for _, c := range r.clients {
		if c.queue.push(message) {
			delivered++
		}
	}
	return delivered
}

// SendTo enqueues message to a single client, returning false if the
// client is unknown or its queue is closed.
func (r *Registry) SendTo(clientID string, message []byte) bool {
	r.mu.RLock()
	c, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return c.queue.push(message)
}

// DisconnectAll enqueues a shutdown frame to every connected client, closes
// each client's queue, and empties the registry (I7, P7). Closing the queue
// does not discard the shutdown frame: the write pump still drains it
// before its outbound channel closes. The registry is empty when
// DisconnectAll returns, and the count is the number of clients the frame
// was enqueued to.
func (r *Registry) DisconnectAll(reason string) int {
	encoded, err := json.Marshal(newShutdown(reason))
	if err != nil {
		r.logger.Error("failed to encode shutdown frame", zap.Error(err))
		encoded = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, c := range r.clients {
		if encoded != nil && c.queue.push(encoded) {
			count++
		}
		c.queue.close()
		delete(r.clients, id)
	}
	return count
}

// Count returns the number of currently registered clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
