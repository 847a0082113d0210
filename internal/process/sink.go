package process

import (
	"context"
	"sync"
	"time"

	"github.com/kandev/agentcore/internal/coreevents"
)

// Chunk is the Output chunk of spec.md §3: a timestamped, lossily-decoded
// slice of a process's output on one stream. Chunks are ephemeral — never
// persisted by the core — and a sink that wants history must keep its own
// copy (see CollectorSink).
type Chunk struct {
	ProcessID string
	Stream    coreevents.OutputStream
	Text      string
	Timestamp time.Time
}

// Sink is the Output Sink contract of spec.md §4.5: a non-blocking
// consumer of chunks that is closed exactly once when its process's pump
// finishes (I5). Implementations must never block the pump — the design
// deliberately trades memory growth for never dropping a chunk (§4.5,
// §9's "Broadcast fan-out without head-of-line blocking").
type Sink interface {
	Send(chunk Chunk) error
	Close() error
}

// NullSink discards every chunk. Used when a caller spawns a process with
// no interest in its output.
type NullSink struct{}

func (NullSink) Send(Chunk) error { return nil }
func (NullSink) Close() error     { return nil }

// CollectorSink appends every chunk to in-memory stdout/stderr buffers and
// exposes them joined as strings — the sink scenario tests (S1, B2, B3)
// assert against.
type CollectorSink struct {
	mu     sync.Mutex
	stdout []string
	stderr []string
	closed bool
	closes int
}

func NewCollectorSink() *CollectorSink { return &CollectorSink{} }

func (c *CollectorSink) Send(chunk Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch chunk.Stream {
	case coreevents.StreamStderr:
		c.stderr = append(c.stderr, chunk.Text)
	default:
		c.stdout = append(c.stdout, chunk.Text)
	}
	return nil
}

func (c *CollectorSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closes++
	return nil
}

// Stdout returns every stdout chunk concatenated in arrival order.
func (c *CollectorSink) Stdout() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := ""
	for _, s := range c.stdout {
		out += s
	}
	return out
}

// Stderr returns every stderr chunk concatenated in arrival order.
func (c *CollectorSink) Stderr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := ""
	for _, s := range c.stderr {
		out += s
	}
	return out
}

// CloseCount reports how many times Close has been called — tests use
// this to assert I5's "exactly once" guarantee.
func (c *CollectorSink) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// ChannelError is returned by ChannelSink.Send once the sink has been
// closed.
type ChannelError struct{ msg string }

func (e *ChannelError) Error() string { return e.msg }

// chunkQueue is an unbounded FIFO of chunks: push never blocks or drops.
// Mirrors wsgateway's unboundedQueue/ClientHandle pump pair, kept local to
// this package rather than imported from wsgateway, which should not be a
// dependency of the process package.
type chunkQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Chunk
	closed bool
}

func newChunkQueue() *chunkQueue {
	q := &chunkQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *chunkQueue) push(item Chunk) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.buf = append(q.buf, item)
	q.cond.Signal()
	return true
}

func (q *chunkQueue) pop() (Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return Chunk{}, false
	}
	item := q.buf[0]
	q.buf = q.buf[1:]
	return item, true
}

func (q *chunkQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// ChannelSink forwards chunks onto a Go channel for a caller that wants to
// consume output programmatically (e.g. an embedding host's own log
// viewer) rather than via the event taxonomy. Send enqueues onto an
// unbounded chunkQueue and returns immediately; a background goroutine
// drains that queue into the small delivery channel NewChannelSink
// returns, so a slow receiver grows the queue's backlog rather than ever
// blocking or dropping a Send (§4.5's unbounded Channel sink).
type ChannelSink struct {
	queue  *chunkQueue
	ch     chan Chunk
	mu     sync.Mutex
	closed bool
}

// NewChannelSink creates a sink and starts its drain pump.
func NewChannelSink() (*ChannelSink, <-chan Chunk) {
	q := newChunkQueue()
	out := make(chan Chunk, 16)
	s := &ChannelSink{queue: q, ch: out}
	go s.pump()
	return s, out
}

func (s *ChannelSink) pump() {
	defer close(s.ch)
	for {
		item, ok := s.queue.pop()
		if !ok {
			return
		}
		s.ch <- item
	}
}

func (s *ChannelSink) Send(chunk Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &ChannelError{msg: "channel sink closed"}
	}
	s.queue.push(chunk)
	return nil
}

func (s *ChannelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.queue.close()
	return nil
}

// EventSink converts every chunk into a coreevents.ProcessOutput event and
// publishes it via a Broadcaster — this is the "WebSocket Fan-out" /
// "Embedder" sink of spec.md §4.5; which concrete Broadcaster it wraps
// (in-memory, NATS, WebSocket) is opaque to it.
type EventSink struct {
	broadcaster coreevents.Broadcaster
}

// NewEventSink wraps broadcaster as an output sink.
func NewEventSink(broadcaster coreevents.Broadcaster) *EventSink {
	return &EventSink{broadcaster: broadcaster}
}

func (s *EventSink) Send(chunk Chunk) error {
	event := coreevents.NewProcessOutput(chunk.ProcessID, chunk.Stream, chunk.Text, chunk.Timestamp)
	// Fire-and-forget per spec.md §7: publishing must never fail the pump.
	_ = s.broadcaster.Publish(context.Background(), event)
	return nil
}

func (s *EventSink) Close() error { return nil }

// multiSink fans a single chunk/close out to several sinks, so the
// Executor can hand a process both a collector (for local introspection)
// and an EventSink (for subscribers) without either depending on the
// other.
type multiSink struct {
	sinks []Sink
}

func newMultiSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return NullSink{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &multiSink{sinks: filtered}
}

func (m *multiSink) Send(chunk Chunk) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Send(chunk); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
