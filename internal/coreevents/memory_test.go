package coreevents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroadcasterExactSubjectDelivery(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	var received collector

	_, err := b.Subscribe("process-output-proc-1", received.handle)
	require.NoError(t, err)

	event := NewProcessOutput("proc-1", StreamStdout, "hello", time.Now())
	require.NoError(t, b.Publish(context.Background(), event))

	require.Eventually(t, func() bool { return received.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestMemoryBroadcasterWildcardSubjects(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	var received collector

	_, err := b.Subscribe("process-output-*", received.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), NewProcessOutput("proc-a", StreamStdout, "a", time.Now())))
	require.NoError(t, b.Publish(context.Background(), NewProcessOutput("proc-b", StreamStdout, "b", time.Now())))

	require.Eventually(t, func() bool { return received.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestMemoryBroadcasterCatchAllWildcard(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	var received collector

	_, err := b.Subscribe("*", received.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), NewDataChanged("task", ActionCreated, "t1", nil, time.Now())))

	require.Eventually(t, func() bool { return received.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestMemoryBroadcasterUnsubscribeStopsDelivery(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	var received collector

	sub, err := b.Subscribe("process-output-proc-1", received.handle)
	require.NoError(t, err)
	sub.Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), NewProcessOutput("proc-1", StreamStdout, "x", time.Now())))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, received.count())
}

func TestMemoryBroadcasterPublishAfterCloseFails(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	require.NoError(t, b.Close())

	err := b.Publish(context.Background(), NewDataChanged("task", ActionDeleted, "t1", nil, time.Now()))
	require.Error(t, err)
}

func TestMemoryBroadcasterSubscribeAfterCloseFails(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	require.NoError(t, b.Close())

	_, err := b.Subscribe("anything", func(Event) {})
	require.Error(t, err)
}

func TestMemoryBroadcasterHandlerPanicDoesNotCrashPublisher(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	_, err := b.Subscribe("process-output-proc-1", func(Event) { panic("boom") })
	require.NoError(t, err)

	var received collector
	_, err = b.Subscribe("process-output-proc-1", received.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), NewProcessOutput("proc-1", StreamStdout, "x", time.Now())))
	require.Eventually(t, func() bool { return received.count() == 1 }, time.Second, 10*time.Millisecond)
}

type collector struct {
	mu   sync.Mutex
	hits int
}

func (c *collector) handle(Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits++
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}
