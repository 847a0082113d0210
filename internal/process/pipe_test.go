package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCaptureCollectsStdoutAndExitCode(t *testing.T) {
	stdout, _, exitCode, err := RunCapture(context.Background(), SpawnConfig{
		Command: "echo",
		Args:    []string{"captured"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout, "captured")
}

func TestRunCaptureNonZeroExit(t *testing.T) {
	_, _, exitCode, err := RunCapture(context.Background(), SpawnConfig{
		Command: "sh",
		Args:    []string{"-c", "exit 7"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, exitCode)
}

func TestRunCaptureAsyncDeliversResult(t *testing.T) {
	ch := RunCaptureAsync(context.Background(), SpawnConfig{
		Command: "echo",
		Args:    []string{"async"},
	})

	select {
	case result := <-ch:
		require.NoError(t, result.Err)
		assert.Equal(t, 0, result.ExitCode)
		assert.Contains(t, result.Stdout, "async")
	case <-time.After(2 * time.Second):
		t.Fatal("RunCaptureAsync did not deliver a result in time")
	}
}

func TestBuildEnvOverridesWinOverParent(t *testing.T) {
	t.Setenv("AGENTCORE_TEST_VAR", "parent-value")
	env := buildEnv(SpawnConfig{
		InheritEnv: true,
		Env:        map[string]string{"AGENTCORE_TEST_VAR": "override-value"},
	})

	found := false
	for _, entry := range env {
		if entry == "AGENTCORE_TEST_VAR=override-value" {
			found = true
		}
	}
	assert.True(t, found, "override should win over inherited parent value")
}

func TestBuildEnvWithoutInheritStartsEmpty(t *testing.T) {
	t.Setenv("AGENTCORE_TEST_ONLY_PARENT", "should-not-appear")
	env := buildEnv(SpawnConfig{InheritEnv: false, Env: map[string]string{"ONLY": "mine"}})

	assert.Equal(t, []string{"ONLY=mine"}, env)
}

func TestPipeProcessWriteAndCapture(t *testing.T) {
	proc, err := startPipeProcess(context.Background(), SpawnConfig{Command: "cat"})
	require.NoError(t, err)

	_, err = proc.Write([]byte("roundtrip\n"))
	require.NoError(t, err)
	require.NoError(t, proc.Close())

	buf := make([]byte, 64)
	n, _ := proc.stdout.Read(buf)
	assert.Contains(t, string(buf[:n]), "roundtrip")

	_, err = proc.Wait()
	require.NoError(t, err)
}

func TestPipeProcessResizeUnsupported(t *testing.T) {
	proc, err := startPipeProcess(context.Background(), SpawnConfig{Command: "cat"})
	require.NoError(t, err)
	defer proc.Kill()

	err = proc.Resize(80, 24)
	require.Error(t, err)
}

func TestPipeProcessKillTerminatesProcessGroup(t *testing.T) {
	proc, err := startPipeProcess(context.Background(), SpawnConfig{
		Command: "sleep",
		Args:    []string{"30"},
	})
	require.NoError(t, err)

	require.NoError(t, proc.Kill())

	done := make(chan struct{})
	go func() {
		_, _ = proc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("killed process did not exit in time")
	}
}

func TestRunCaptureMissingBinaryReturnsError(t *testing.T) {
	// A command that cannot be found never starts, so RunCapture reports
	// the start failure as an error rather than as an exit code.
	_, _, _, err := RunCapture(context.Background(), SpawnConfig{Command: "definitely-not-a-real-binary"})
	require.Error(t, err)
}
