//go:build !windows

package process

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossuary-pi/ossuary/pkg/logging"
)

func launchTestCommand(t *testing.T, command string) (*os.Process, chan error) {
	t.Helper()

	execute := NewShellExecuteCmd(ExecutionConfig{Command: command}, "test", logging.NewNullLogger())
	proc, stdout, err := execute(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		stdout.Close()
		signalGroupKill(proc.Pid)
	})

	done := make(chan error, 1)
	go func() {
		_, waitErr := proc.Wait()
		done <- waitErr
	}()
	return proc, done
}

func TestTerminateGroup_GracefulExit(t *testing.T) {
	proc, done := launchTestCommand(t, "sleep 30")

	survived, err := TerminateGroup(context.Background(), proc.Pid, done, 5*time.Second, logging.NewNullLogger())

	require.NoError(t, err)
	assert.False(t, survived, "sleep should exit on the graceful signal")
	assert.False(t, groupAlive(proc.Pid))
}

func TestTerminateGroup_MultiProcessTree(t *testing.T) {
	// Parent spawns two children; the whole group must be gone afterwards.
	proc, done := launchTestCommand(t, "sleep 30 & sleep 30 & wait")

	_, err := TerminateGroup(context.Background(), proc.Pid, done, 5*time.Second, logging.NewNullLogger())

	require.NoError(t, err)
	assert.False(t, groupAlive(proc.Pid), "no descendants may survive teardown")
}

func TestTerminateGroup_SignalIgnoringChild(t *testing.T) {
	// A child that traps the graceful signal must be force killed.
	proc, done := launchTestCommand(t, `trap "" TERM; sleep 30`)

	survived, err := TerminateGroup(context.Background(), proc.Pid, done, 500*time.Millisecond, logging.NewNullLogger())

	require.NoError(t, err)
	assert.True(t, survived, "trap TERM child survives the graceful phase")
	assert.False(t, groupAlive(proc.Pid))
}

func TestTerminateGroup_InvalidPID(t *testing.T) {
	_, err := TerminateGroup(context.Background(), 0, nil, time.Second, logging.NewNullLogger())
	assert.Error(t, err)
}

func TestNewShellExecuteCmd_ExitCode(t *testing.T) {
	execute := NewShellExecuteCmd(ExecutionConfig{Command: "exit 3"}, "test", logging.NewNullLogger())

	proc, stdout, err := execute(context.Background())
	require.NoError(t, err)
	defer stdout.Close()

	state, err := proc.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, state.ExitCode())
}

func TestNewShellExecuteCmd_EnvironmentOverride(t *testing.T) {
	execute := NewShellExecuteCmd(ExecutionConfig{
		Command:     `test "$OSSUARY_TEST_VAR" = "expected"`,
		Environment: map[string]string{"OSSUARY_TEST_VAR": "expected"},
	}, "test", logging.NewNullLogger())

	proc, stdout, err := execute(context.Background())
	require.NoError(t, err)
	defer stdout.Close()

	state, err := proc.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, state.ExitCode(), "override must be visible to the child")
}

func TestNewShellExecuteCmd_RejectsEmptyCommand(t *testing.T) {
	execute := NewShellExecuteCmd(ExecutionConfig{Command: ""}, "test", logging.NewNullLogger())

	_, _, err := execute(context.Background())
	assert.Error(t, err)
}

func TestNewShellExecuteCmd_ChildOutlivesLaunchContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	execute := NewShellExecuteCmd(ExecutionConfig{Command: "sleep 30"}, "test", logging.NewNullLogger())
	proc, stdout, err := execute(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		stdout.Close()
		signalGroupKill(proc.Pid)
	})

	done := make(chan error, 1)
	go func() {
		_, waitErr := proc.Wait()
		done <- waitErr
	}()

	// Cancelling the launch context must not kill the child: teardown goes
	// through the graceful group signal, driven by the caller.
	cancel()
	time.Sleep(200 * time.Millisecond)
	assert.True(t, groupAlive(proc.Pid))

	survived, err := TerminateGroup(context.Background(), proc.Pid, done, 5*time.Second, logging.NewNullLogger())
	require.NoError(t, err)
	assert.False(t, survived, "sleep should still honor the graceful signal")
}
