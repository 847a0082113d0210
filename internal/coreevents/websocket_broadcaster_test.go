package coreevents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannelBroadcaster struct {
	lastChannel string
	lastPayload []byte
	calls       int
}

func (f *fakeChannelBroadcaster) BroadcastToChannel(channel string, message []byte) int {
	f.lastChannel = channel
	f.lastPayload = message
	f.calls++
	return 1
}

func TestWebSocketBroadcasterDelegatesToTarget(t *testing.T) {
	target := &fakeChannelBroadcaster{}
	b := NewWebSocketBroadcaster(target)

	event := NewProcessOutput("proc-1", StreamStdout, "hello", time.Now())
	require.NoError(t, b.Publish(context.Background(), event))

	assert.Equal(t, 1, target.calls)
	assert.Equal(t, "process-output-proc-1", target.lastChannel)

	var msg wsMessage
	require.NoError(t, json.Unmarshal(target.lastPayload, &msg))
	assert.Equal(t, "event", msg.Type)

	var content wsEventContent
	require.NoError(t, json.Unmarshal(msg.Content, &content))
	assert.Equal(t, "process-output-proc-1", content.Channel)
}

func TestWebSocketBroadcasterCloseIsNoop(t *testing.T) {
	b := NewWebSocketBroadcaster(&fakeChannelBroadcaster{})
	assert.NoError(t, b.Close())
}
