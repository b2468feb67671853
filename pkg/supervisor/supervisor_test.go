//go:build !windows

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossuary-pi/ossuary/pkg/configstore"
	"github.com/ossuary-pi/ossuary/pkg/errors"
	"github.com/ossuary-pi/ossuary/pkg/logging"
	"github.com/ossuary-pi/ossuary/pkg/logsink"
	"github.com/ossuary-pi/ossuary/pkg/processfile"
	"github.com/ossuary-pi/ossuary/pkg/processstate"
)

type fakeProber struct {
	err error
}

func (p *fakeProber) Probe(ctx context.Context) error {
	return p.err
}

type harness struct {
	supervisor *Supervisor
	store      *configstore.Store
	pidFiles   *processfile.Manager
	sinkPath   string
	cancel     context.CancelFunc
	finished   chan struct{}
	runErr     error
}

func newHarness(t *testing.T, config configstore.Config) *harness {
	t.Helper()
	logger := logging.NewNullLogger()
	dir := t.TempDir()

	store := configstore.NewStore(filepath.Join(dir, "config.json"), logger)
	require.NoError(t, store.Save(config))

	sinkPath := filepath.Join(dir, "startup.log")
	sink, err := logsink.Open(sinkPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	pidFiles := processfile.NewManager(processfile.Config{BaseDirectory: dir}, logger)

	supervisor, err := New(Options{
		Store:              store,
		Sink:               sink,
		PIDFiles:           pidFiles,
		Prober:             &fakeProber{},
		PollInterval:       25 * time.Millisecond,
		NetworkWaitCeiling: 50 * time.Millisecond,
		DisplayWaitCeiling: 50 * time.Millisecond,
		GracefulTimeout:    2 * time.Second,
		SettleDelay:        time.Millisecond,
	}, logger)
	require.NoError(t, err)

	return &harness{
		supervisor: supervisor,
		store:      store,
		pidFiles:   pidFiles,
		sinkPath:   sinkPath,
		finished:   make(chan struct{}),
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.runErr = h.supervisor.Run(ctx)
		close(h.finished)
	}()
	t.Cleanup(func() {
		h.supervisor.Stop()
		select {
		case <-h.finished:
		case <-time.After(10 * time.Second):
			cancel()
			<-h.finished
		}
	})
}

func (h *harness) waitFor(t *testing.T, timeout time.Duration, condition func(Status) bool) Status {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		status := h.supervisor.Status()
		if condition(status) {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached within %s, status: %+v", timeout, status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Options{}, logging.NewNullLogger())
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestSupervisor_EmptyCommandStaysIdle(t *testing.T) {
	h := newHarness(t, configstore.Config{})
	h.start(t)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, StateIdle, h.supervisor.Status().State)
	assert.Equal(t, 0, h.supervisor.Status().ChildPID)
}

func TestSupervisor_PicksUpCommandWithinPollInterval(t *testing.T) {
	h := newHarness(t, configstore.Config{})
	h.start(t)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, StateIdle, h.supervisor.Status().State)

	require.NoError(t, h.store.Save(configstore.Config{StartupCommand: "sleep 30"}))
	status := h.waitFor(t, 5*time.Second, func(s Status) bool { return s.State == StateRunning })
	assert.NotZero(t, status.ChildPID)
	assert.Equal(t, "sleep 30", status.Command)
}

func TestSupervisor_WritesChildPIDFile(t *testing.T) {
	h := newHarness(t, configstore.Config{StartupCommand: "sleep 30"})
	h.start(t)

	status := h.waitFor(t, 5*time.Second, func(s Status) bool { return s.State == StateRunning })
	pid, err := h.pidFiles.Read(processfile.CommandFile)
	require.NoError(t, err)
	assert.Equal(t, status.ChildPID, pid)
}

func TestSupervisor_CrashRestartsAndCountsExits(t *testing.T) {
	h := newHarness(t, configstore.Config{
		StartupCommand:      "exit 3",
		RestartDelaySeconds: 1,
	})
	h.start(t)

	status := h.waitFor(t, 10*time.Second, func(s Status) bool { return s.RestartCount >= 2 })
	assert.Equal(t, 3, status.LastExitCode)
}

func TestSupervisor_ReloadUnchangedCommandKeepsChild(t *testing.T) {
	h := newHarness(t, configstore.Config{StartupCommand: "sleep 30"})
	h.start(t)

	status := h.waitFor(t, 5*time.Second, func(s Status) bool { return s.State == StateRunning })
	pid := status.ChildPID

	h.supervisor.Reload()
	h.supervisor.Reload()
	time.Sleep(200 * time.Millisecond)

	after := h.supervisor.Status()
	assert.Equal(t, StateRunning, after.State)
	assert.Equal(t, pid, after.ChildPID)
	assert.Equal(t, 0, after.RestartCount)
}

func TestSupervisor_ChangedCommandReplacesChildOnce(t *testing.T) {
	h := newHarness(t, configstore.Config{StartupCommand: "sleep 30"})
	h.start(t)

	status := h.waitFor(t, 5*time.Second, func(s Status) bool { return s.State == StateRunning })
	oldPID := status.ChildPID

	require.NoError(t, h.store.Save(configstore.Config{StartupCommand: "sleep 31"}))
	h.supervisor.Reload()

	after := h.waitFor(t, 5*time.Second, func(s Status) bool {
		return s.State == StateRunning && s.ChildPID != oldPID
	})
	assert.Equal(t, "sleep 31", after.Command)
	assert.Equal(t, 0, after.RestartCount)

	running, err := processstate.IsProcessRunning(oldPID)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestSupervisor_EmptiedCommandStopsChildAndGoesIdle(t *testing.T) {
	h := newHarness(t, configstore.Config{StartupCommand: "sleep 30"})
	h.start(t)

	status := h.waitFor(t, 5*time.Second, func(s Status) bool { return s.State == StateRunning })
	oldPID := status.ChildPID

	require.NoError(t, h.store.Save(configstore.Config{}))
	h.supervisor.Reload()

	h.waitFor(t, 5*time.Second, func(s Status) bool { return s.State == StateIdle })
	running, err := processstate.IsProcessRunning(oldPID)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestSupervisor_GarbageConfigKeepsPreviousRecord(t *testing.T) {
	h := newHarness(t, configstore.Config{StartupCommand: "sleep 30"})
	h.start(t)

	status := h.waitFor(t, 5*time.Second, func(s Status) bool { return s.State == StateRunning })
	pid := status.ChildPID

	require.NoError(t, os.WriteFile(h.store.Path(), []byte("{\"startup_comm"), 0644))
	time.Sleep(150 * time.Millisecond)

	after := h.supervisor.Status()
	assert.Equal(t, StateRunning, after.State)
	assert.Equal(t, pid, after.ChildPID)
	assert.Equal(t, "sleep 30", after.Command)
}

func TestSupervisor_StopTerminatesChildAndCleansUp(t *testing.T) {
	h := newHarness(t, configstore.Config{StartupCommand: "sleep 30"})
	h.start(t)

	status := h.waitFor(t, 5*time.Second, func(s Status) bool { return s.State == StateRunning })
	pid := status.ChildPID

	h.supervisor.Stop()
	select {
	case <-h.finished:
		require.NoError(t, h.runErr)
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	running, err := processstate.IsProcessRunning(pid)
	require.NoError(t, err)
	assert.False(t, running)

	_, err = os.Stat(h.pidFiles.Path(processfile.CommandFile))
	assert.True(t, os.IsNotExist(err))
}

func TestSupervisor_UnreachableNetworkProceedsAfterCeiling(t *testing.T) {
	h := newHarness(t, configstore.Config{StartupCommand: "sleep 30"})
	h.supervisor.options.Prober = &fakeProber{err: errors.NewNetworkError("unreachable", nil)}
	h.start(t)

	h.waitFor(t, 5*time.Second, func(s Status) bool { return s.State == StateRunning })
}

func TestSupervisor_ChildOutputReachesSink(t *testing.T) {
	h := newHarness(t, configstore.Config{
		StartupCommand:      "echo hello-from-child; sleep 30",
		RestartDelaySeconds: 1,
	})
	h.start(t)

	h.waitFor(t, 5*time.Second, func(s Status) bool { return s.State == StateRunning })

	deadline := time.Now().Add(5 * time.Second)
	for {
		lines, err := logsink.TailFile(h.sinkPath, 50)
		require.NoError(t, err)
		found := false
		for _, line := range lines {
			if strings.Contains(line, "command: hello-from-child") {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("child output never reached sink, lines: %v", lines)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestCooldownDelay_ShortWithinBudgetLongBeyond(t *testing.T) {
	h := newHarness(t, configstore.Config{
		RestartDelaySeconds:     2,
		LongRestartDelaySeconds: 30,
		MaxRapidRestarts:        3,
	})
	config, err := h.store.Load()
	require.NoError(t, err)

	tests := []struct {
		name     string
		restarts int
		expected time.Duration
	}{
		{name: "no restarts", restarts: 0, expected: 2 * time.Second},
		{name: "at budget", restarts: 3, expected: 2 * time.Second},
		{name: "beyond budget", restarts: 4, expected: 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.supervisor.mu.Lock()
			h.supervisor.restartCount = tt.restarts
			h.supervisor.mu.Unlock()
			assert.Equal(t, tt.expected, h.supervisor.cooldownDelay(config))
		})
	}
}

func TestSupervisor_ExitRestartScenario(t *testing.T) {
	// sleep briefly then exit nonzero: the supervisor must observe the exit,
	// record the code and relaunch after the short delay.
	h := newHarness(t, configstore.Config{
		StartupCommand:      "sleep 1; exit 3",
		RestartDelaySeconds: 1,
	})
	h.start(t)

	first := h.waitFor(t, 5*time.Second, func(s Status) bool { return s.State == StateRunning })
	h.waitFor(t, 10*time.Second, func(s Status) bool { return s.RestartCount == 1 })
	second := h.waitFor(t, 10*time.Second, func(s Status) bool {
		return s.State == StateRunning && s.ChildPID != first.ChildPID
	})
	assert.Equal(t, 3, second.LastExitCode)
}

func TestSupervisor_CounterResetsAfterLongCooldown(t *testing.T) {
	h := newHarness(t, configstore.Config{
		StartupCommand:          "exit 3",
		RestartDelaySeconds:     1,
		LongRestartDelaySeconds: 2,
		MaxRapidRestarts:        1,
	})
	h.start(t)

	h.waitFor(t, 10*time.Second, func(s Status) bool { return s.RestartCount == 2 })

	// After the long cooldown the counter starts a fresh budget: it falls
	// back below the threshold on relaunch and never climbs past it.
	maxSeen := 0
	sawReset := false
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		count := h.supervisor.Status().RestartCount
		if count > maxSeen {
			maxSeen = count
		}
		if count < 2 {
			sawReset = true
		}
		if sawReset && maxSeen == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, sawReset, "restart counter never reset after the long cooldown")
	assert.Equal(t, 2, maxSeen, "restart counter climbed past the rapid-restart budget")
}

type recordingKiller struct {
	mu       sync.Mutex
	patterns []string
}

func (k *recordingKiller) kill(ctx context.Context, pattern string, logger logging.Logger) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.patterns = append(k.patterns, pattern)
	return nil
}

func (k *recordingKiller) snapshot() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.patterns...)
}

func TestSupervisor_BrowserSweepUsesLaunchIdentity(t *testing.T) {
	// A stand-in browser on PATH so a browser-classified command actually runs.
	binDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "chromium"), []byte("#!/bin/sh\nsleep 30\n"), 0755))

	h := newHarness(t, configstore.Config{
		StartupCommand: "chromium",
		Environment:    map[string]string{"PATH": binDir + ":" + os.Getenv("PATH")},
	})
	killer := &recordingKiller{}
	h.supervisor.killByName = killer.kill
	h.start(t)

	h.waitFor(t, 10*time.Second, func(s Status) bool { return s.State == StateRunning })

	// Replace the browser command with a non-browser one. The teardown sweep
	// must target the identity the old child was launched with, not whatever
	// the new config says.
	require.NoError(t, h.store.Save(configstore.Config{StartupCommand: "sleep 30"}))
	h.supervisor.Reload()
	h.waitFor(t, 10*time.Second, func(s Status) bool {
		return s.State == StateRunning && s.Command == "sleep 30"
	})

	// One stale kill before the browser launch, one sweep after its teardown.
	assert.Equal(t, []string{"chromium", "chromium"}, killer.snapshot())
}
