package process

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoConfig(text string) SpawnConfig {
	if runtime.GOOS == "windows" {
		return SpawnConfig{Command: "cmd", Args: []string{"/c", "echo", text}}
	}
	return SpawnConfig{Command: "echo", Args: []string{text}}
}

func sleepConfig(seconds string) SpawnConfig {
	if runtime.GOOS == "windows" {
		return SpawnConfig{Command: "timeout", Args: []string{"/t", seconds}}
	}
	return SpawnConfig{Command: "sleep", Args: []string{seconds}}
}

func waitForStatus(t *testing.T, exec *Executor, id string, want State, timeout time.Duration) Status {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, err := exec.Status(id)
		require.NoError(t, err)
		if status.State == want {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("process %q did not reach state %q in time", id, want)
	return Status{}
}

func TestExecutorSpawnEchoRoundTrip(t *testing.T) {
	collector := NewCollectorSink()
	exec := NewExecutor(func(string) Sink { return collector }, nil)

	status, err := exec.Spawn(context.Background(), "proc-1", echoConfig("hello"))
	require.NoError(t, err)
	assert.Equal(t, StateRunning, status.State)

	final := waitForStatus(t, exec, "proc-1", StateCompleted, 2*time.Second)
	require.NotNil(t, final.ExitCode)
	assert.Equal(t, 0, *final.ExitCode)
	assert.Contains(t, collector.Stdout(), "hello")
	assert.Equal(t, 1, collector.CloseCount())
}

func TestExecutorSpawnDuplicateIDRejected(t *testing.T) {
	exec := NewExecutor(nil, nil)

	_, err := exec.Spawn(context.Background(), "dup", sleepConfig("5"))
	require.NoError(t, err)
	defer exec.Kill("dup")

	_, err = exec.Spawn(context.Background(), "dup", sleepConfig("5"))
	require.Error(t, err)
	var procErr *Error
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, KindAlreadyExists, procErr.Kind)
}

func TestExecutorSpawnEmptyCommandRejectedBeforeOSTouch(t *testing.T) {
	exec := NewExecutor(nil, nil)

	_, err := exec.Spawn(context.Background(), "no-command", SpawnConfig{Command: ""})
	require.Error(t, err)
	var procErr *Error
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, KindValidation, procErr.Kind)

	// The record must never have been created: no OS process was ever
	// touched, so there is nothing to look up or kill.
	_, statusErr := exec.Status("no-command")
	require.Error(t, statusErr)
	var notFoundErr *Error
	require.ErrorAs(t, statusErr, &notFoundErr)
	assert.Equal(t, KindNotFound, notFoundErr.Kind)
}

func TestExecutorKillLongRunner(t *testing.T) {
	exec := NewExecutor(nil, nil)

	_, err := exec.Spawn(context.Background(), "long", sleepConfig("30"))
	require.NoError(t, err)

	require.NoError(t, exec.Kill("long"))
	status := waitForStatus(t, exec, "long", StateKilled, 3*time.Second)
	assert.Equal(t, StateKilled, status.State)

	// Idempotent: killing twice is a no-op, not an error (I2/R2).
	require.NoError(t, exec.Kill("long"))
}

func TestExecutorKillUnknownProcess(t *testing.T) {
	exec := NewExecutor(nil, nil)
	err := exec.Kill("missing")
	require.Error(t, err)
	var procErr *Error
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, KindNotFound, procErr.Kind)
}

func TestExecutorWriteAfterExitFails(t *testing.T) {
	exec := NewExecutor(nil, nil)

	_, err := exec.Spawn(context.Background(), "short", echoConfig("bye"))
	require.NoError(t, err)
	waitForStatus(t, exec, "short", StateCompleted, 2*time.Second)

	err = exec.Write("short", []byte("too late"))
	require.Error(t, err)
	var procErr *Error
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, KindProcessExited, procErr.Kind)
}

func TestExecutorResizeOnPipeBackendFails(t *testing.T) {
	exec := NewExecutor(nil, nil)

	_, err := exec.Spawn(context.Background(), "pipe-proc", sleepConfig("5"))
	require.NoError(t, err)
	defer exec.Kill("pipe-proc")

	err = exec.Resize("pipe-proc", 100, 40)
	require.Error(t, err)
}

func TestExecutorWaitBlocksUntilExit(t *testing.T) {
	exec := NewExecutor(nil, nil)

	_, err := exec.Spawn(context.Background(), "waiter", echoConfig("done"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, err := exec.Wait(ctx, "waiter")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status.State)
}

func TestExecutorStatusPublishedOnEveryTransition(t *testing.T) {
	var mu transitionLog
	exec := NewExecutor(nil, func(id string, state State, exitCode *int) {
		mu.add(id, state)
	})

	_, err := exec.Spawn(context.Background(), "tracked", echoConfig("x"))
	require.NoError(t, err)
	waitForStatus(t, exec, "tracked", StateCompleted, 2*time.Second)

	states := mu.states("tracked")
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, StateRunning, states[0])
	assert.Equal(t, StateCompleted, states[len(states)-1])
}

func TestExecutorCloseRemovesRecord(t *testing.T) {
	exec := NewExecutor(nil, nil)

	_, err := exec.Spawn(context.Background(), "closeme", sleepConfig("10"))
	require.NoError(t, err)
	assert.True(t, exec.Exists("closeme"))

	require.NoError(t, exec.Close("closeme"))
	assert.False(t, exec.Exists("closeme"))

	// Closing again is a safe no-op.
	require.NoError(t, exec.Close("closeme"))
}

func TestExecutorKillAllAndCloseAll(t *testing.T) {
	exec := NewExecutor(nil, nil)

	_, err := exec.Spawn(context.Background(), "a", sleepConfig("30"))
	require.NoError(t, err)
	_, err = exec.Spawn(context.Background(), "b", sleepConfig("30"))
	require.NoError(t, err)
	assert.Equal(t, 2, exec.Count())

	exec.KillAll()
	exec.CloseAll(2 * time.Second)
	assert.Equal(t, 0, exec.Count())
}

// transitionLog records every published state transition per process id,
// guarded by a mutex since publishStatus fires from pump goroutines.
type transitionLog struct {
	mu   sync.Mutex
	data map[string][]State
}

func (t *transitionLog) add(id string, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data == nil {
		t.data = make(map[string][]State)
	}
	t.data[id] = append(t.data[id], state)
}

func (t *transitionLog) states(id string) []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]State, len(t.data[id]))
	copy(out, t.data[id])
	return out
}
