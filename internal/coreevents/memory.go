package coreevents

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/agentcore/internal/corelog"
)

// MemoryBroadcaster is an in-process, single-writer multi-reader fan-out
// for embedded scenarios (spec.md §4.9's "in-process topic"). Grounded on
// the teacher's internal/events/bus.MemoryEventBus: subject patterns
// support the NATS-style wildcards `*` (one token) and `>` (rest of the
// subject), compiled to an anchored regexp once at subscribe time.
type MemoryBroadcaster struct {
	mu            sync.RWMutex
	subscriptions map[string][]*memorySub
	closed        bool
	logger        *corelog.Logger
}

type memorySub struct {
	pattern *regexp.Regexp // nil when the subject has no wildcard
	subject string
	handler func(Event)
	active  bool
	mu      sync.Mutex
}

// Subscription lets a caller stop receiving events for a prior Subscribe
// call.
type Subscription interface {
	Unsubscribe()
}

func (s *memorySub) Unsubscribe() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// NewMemoryBroadcaster creates an empty in-process broadcaster.
func NewMemoryBroadcaster(log *corelog.Logger) *MemoryBroadcaster {
	return &MemoryBroadcaster{
		subscriptions: make(map[string][]*memorySub),
		logger:        log,
	}
}

// Subscribe registers handler for every channel matching subject. A
// subject containing no wildcard matches only the identical channel name.
func (b *MemoryBroadcaster) Subscribe(subject string, handler func(Event)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("broadcaster is closed")
	}

	sub := &memorySub{
		subject: subject,
		pattern: compileChannelPattern(subject),
		handler: handler,
		active:  true,
	}
	b.subscriptions[subject] = append(b.subscriptions[subject], sub)
	return sub, nil
}

// Publish fans event out to every subscription whose subject matches the
// event's derived channel. Handlers run in their own goroutine so one slow
// subscriber never blocks another (mirrors the teacher's per-handler
// goroutine dispatch in MemoryEventBus.Publish).
func (b *MemoryBroadcaster) Publish(ctx context.Context, event Event) error {
	channel := Channel(event)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("broadcaster is closed")
	}

	for pattern, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.mu.Lock()
			active := sub.active
			sub.mu.Unlock()
			if !active {
				continue
			}
			if !channelMatches(channel, pattern, sub.pattern) {
				continue
			}
			go func(s *memorySub) {
				defer func() {
					if r := recover(); r != nil {
						b.logSafe().Error("event subscriber panicked",
							zap.Any("recover", r), zap.String("channel", channel))
					}
				}()
				s.handler(event)
			}(sub)
		}
	}
	return nil
}

func (b *MemoryBroadcaster) logSafe() *corelog.Logger {
	if b.logger == nil {
		return corelog.Default()
	}
	return b.logger
}

// Close marks the broadcaster closed; further Publish/Subscribe calls
// fail. Existing subscriptions are left as-is — there is nothing to drain
// since delivery is already fire-and-forget.
func (b *MemoryBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func compileChannelPattern(subject string) *regexp.Regexp {
	if !strings.Contains(subject, "*") && !strings.Contains(subject, ">") {
		return nil
	}
	escaped := regexp.QuoteMeta(subject)
	escaped = strings.ReplaceAll(escaped, `\*`, `[^.]+`)
	escaped = strings.ReplaceAll(escaped, `\>`, `.+`)
	escaped = "^" + escaped + "$"
	re, err := regexp.Compile(escaped)
	if err != nil {
		return nil
	}
	return re
}

func channelMatches(channel, subject string, pattern *regexp.Regexp) bool {
	if channel == subject {
		return true
	}
	if subject == "*" {
		return true
	}
	if pattern == nil {
		return false
	}
	return pattern.MatchString(channel)
}
