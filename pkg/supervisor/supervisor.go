package supervisor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ossuary-pi/ossuary/pkg/configstore"
	"github.com/ossuary-pi/ossuary/pkg/display"
	"github.com/ossuary-pi/ossuary/pkg/errors"
	"github.com/ossuary-pi/ossuary/pkg/logging"
	"github.com/ossuary-pi/ossuary/pkg/logsink"
	"github.com/ossuary-pi/ossuary/pkg/netprobe"
	"github.com/ossuary-pi/ossuary/pkg/process"
	"github.com/ossuary-pi/ossuary/pkg/processfile"
)

const (
	// DefaultPollInterval bounds how long a config edit can go unnoticed.
	DefaultPollInterval = 5 * time.Second

	// DefaultWaitCeiling bounds each prerequisite wait; on expiry the
	// supervisor proceeds anyway and lets the child fail on its own terms.
	DefaultWaitCeiling = 60 * time.Second

	// DefaultSettleDelay separates a stale browser kill from the relaunch.
	DefaultSettleDelay = 1 * time.Second
)

// Options configures a Supervisor. Zero values pick sensible defaults.
type Options struct {
	Store    *configstore.Store
	Sink     *logsink.Sink
	PIDFiles *processfile.Manager
	Prober   netprobe.Prober
	Detector *display.Detector

	PollInterval       time.Duration
	NetworkWaitCeiling time.Duration
	DisplayWaitCeiling time.Duration
	GracefulTimeout    time.Duration
	SettleDelay        time.Duration
}

// Supervisor runs the startup command lifecycle: it polls the config store,
// waits for prerequisites, launches the command in its own process group,
// restarts it with backoff when it exits and reacts to stop and reload
// requests. Run drives a single-goroutine state machine; Stop and Reload
// only enqueue messages and are safe from signal handlers.
type Supervisor struct {
	options Options
	logger  logging.Logger

	commands   chan messageType
	killByName killByNameFunc

	mu           sync.RWMutex
	state        State
	config       configstore.Config
	activeChild  *child
	childPID     int
	restartCount int
	lastExitCode int
}

type waitResult struct {
	exitCode int
	err      error
}

// child is the active managed process. identity is the browser identity the
// command was launched with (empty for non-browser commands); teardown sweeps
// by that identity, not by whatever the config says at teardown time.
type child struct {
	pid      int
	done     chan waitResult
	identity string
}

type killByNameFunc func(ctx context.Context, pattern string, logger logging.Logger) error

// New creates a supervisor. Store is required; other collaborators default
// to their production implementations when nil.
func New(options Options, logger logging.Logger) (*Supervisor, error) {
	if options.Store == nil {
		return nil, errors.NewValidationError("config store is required", nil)
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	if options.Prober == nil {
		options.Prober = netprobe.NewTCPProber(netprobe.DefaultAddress, 0)
	}
	if options.Detector == nil {
		options.Detector = display.NewDetector(logger)
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.NetworkWaitCeiling <= 0 {
		options.NetworkWaitCeiling = DefaultWaitCeiling
	}
	if options.DisplayWaitCeiling <= 0 {
		options.DisplayWaitCeiling = DefaultWaitCeiling
	}
	if options.SettleDelay <= 0 {
		options.SettleDelay = DefaultSettleDelay
	}
	return &Supervisor{
		options:      options,
		logger:       logging.NewLogger("supervisor", logger),
		commands:     make(chan messageType, 8),
		killByName:   process.KillByName,
		state:        StateIdle,
		lastExitCode: -1,
	}, nil
}

// Stop requests shutdown. It never blocks.
func (s *Supervisor) Stop() {
	s.enqueue(messageStop)
}

// Reload requests an immediate re-read of the config store. It never blocks.
func (s *Supervisor) Reload() {
	s.enqueue(messageReload)
}

func (s *Supervisor) enqueue(msg messageType) {
	select {
	case s.commands <- msg:
	default:
	}
}

// Status returns a snapshot of the current lifecycle state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		State:        s.state,
		Command:      s.config.StartupCommand,
		ChildPID:     s.childPID,
		RestartCount: s.restartCount,
		LastExitCode: s.lastExitCode,
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) currentConfig() configstore.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Run executes the supervisor loop until Stop is requested or ctx is
// cancelled. A nil error means a clean shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	config, err := s.options.Store.Load()
	if err != nil {
		s.logger.Warnf("initial config load failed, starting idle: %v", err)
	}
	s.mu.Lock()
	s.config = config
	s.mu.Unlock()

	s.sinkf("supervisor starting, config path %s", s.options.Store.Path())

	for {
		var next State
		switch s.Status().State {
		case StateIdle:
			next = s.runIdle(ctx)
		case StateWaitingPrereqs:
			next = s.runWaitingPrereqs(ctx)
		case StateRunning:
			next = s.runChild(ctx)
		case StateCooldown:
			next = s.runCooldown(ctx)
		case StateShuttingDown:
			s.removeChildPIDFile()
			s.sinkf("supervisor stopped")
			return nil
		}
		s.setState(next)
	}
}

// runIdle polls the store until a non-empty command appears.
func (s *Supervisor) runIdle(ctx context.Context) State {
	ticker := time.NewTicker(s.options.PollInterval)
	defer ticker.Stop()

	if s.currentConfig().StartupCommand != "" {
		return StateWaitingPrereqs
	}
	for {
		select {
		case <-ctx.Done():
			return StateShuttingDown
		case msg := <-s.commands:
			if msg == messageStop {
				return StateShuttingDown
			}
			if s.refreshConfig() && s.currentConfig().StartupCommand != "" {
				return StateWaitingPrereqs
			}
		case <-ticker.C:
			if s.refreshConfig() && s.currentConfig().StartupCommand != "" {
				return StateWaitingPrereqs
			}
		}
	}
}

// refreshConfig re-reads the store. A parse failure keeps the previous
// record so that a config caught mid-write never disturbs a running child.
// It reports whether the command text changed.
func (s *Supervisor) refreshConfig() bool {
	config, err := s.options.Store.Load()
	if err != nil {
		if errors.IsConfigError(err) {
			s.logger.Warnf("config unreadable, keeping previous: %v", err)
		} else {
			s.logger.Warnf("config load failed, keeping previous: %v", err)
		}
		return false
	}
	s.mu.Lock()
	changed := config.StartupCommand != s.config.StartupCommand
	s.config = config
	s.mu.Unlock()
	if changed {
		s.logger.Infof("startup command changed")
	}
	return changed
}

// runWaitingPrereqs waits for network, and a display server for GUI-class
// commands. Both waits are bounded; on ceiling expiry the supervisor logs a
// warning and proceeds anyway.
func (s *Supervisor) runWaitingPrereqs(ctx context.Context) State {
	command := s.currentConfig().StartupCommand
	if command == "" {
		return StateIdle
	}

	prereqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := make(chan struct{}, 1)
	go func() {
		if err := netprobe.WaitReachable(prereqCtx, s.options.Prober, s.options.NetworkWaitCeiling, s.logger); err != nil {
			if errors.IsTimeoutError(err) {
				s.sinkf("network not reachable after %s, proceeding anyway", s.options.NetworkWaitCeiling)
			}
		}
		if display.IsGUICommand(command) {
			if _, err := s.options.Detector.WaitReady(prereqCtx, s.options.DisplayWaitCeiling); err != nil {
				if errors.IsTimeoutError(err) {
					s.sinkf("no display server after %s, proceeding anyway", s.options.DisplayWaitCeiling)
				}
			}
		}
		ready <- struct{}{}
	}()

	ticker := time.NewTicker(s.options.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return StateShuttingDown
		case <-ready:
			return s.launch(ctx)
		case msg := <-s.commands:
			if msg == messageStop {
				return StateShuttingDown
			}
			if s.refreshConfig() {
				s.resetRestartCount()
				return StateWaitingPrereqs
			}
		case <-ticker.C:
			if s.refreshConfig() {
				s.resetRestartCount()
				return StateWaitingPrereqs
			}
		}
	}
}

// launch starts the configured command and transitions to running. A start
// failure is handled like a crash: it is logged and routed through cooldown.
func (s *Supervisor) launch(ctx context.Context) State {
	config := s.currentConfig()
	command := config.StartupCommand
	if command == "" {
		return StateIdle
	}

	gui := display.IsGUICommand(command)
	identity, _ := display.BrowserIdentity(command)
	environment := map[string]string{}
	if gui {
		family := s.options.Detector.Detect()
		for key, value := range s.options.Detector.Environment(family) {
			environment[key] = value
		}
		if identity != "" {
			s.killStaleBrowser(ctx, identity)
		}
	}
	for key, value := range config.Environment {
		environment[key] = value
	}

	execute := process.NewShellExecuteCmd(process.ExecutionConfig{
		Command:     command,
		Environment: environment,
	}, "startup", s.logger)

	proc, stdout, err := execute(ctx)
	if err != nil {
		s.sinkf("failed to start command: %v", err)
		s.recordExit(-1)
		return StateCooldown
	}

	s.mu.Lock()
	s.childPID = proc.Pid
	s.mu.Unlock()
	s.writeChildPIDFile(proc.Pid)
	s.sinkf("started command (pid %d): %s", proc.Pid, command)

	done := make(chan waitResult, 1)
	go func() {
		state, waitErr := proc.Wait()
		code := -1
		if state != nil {
			code = state.ExitCode()
		}
		done <- waitResult{exitCode: code, err: waitErr}
	}()
	if stdout != nil && s.options.Sink != nil {
		go s.forwardOutput(stdout)
	}

	s.mu.Lock()
	s.activeChild = &child{pid: proc.Pid, done: done, identity: identity}
	s.mu.Unlock()
	return StateRunning
}

func (s *Supervisor) forwardOutput(stdout io.ReadCloser) {
	defer stdout.Close()
	s.options.Sink.ForwardLines("command", stdout)
}

// killStaleBrowser clears leftover browser processes from a previous boot or
// crash, then waits a settle delay before the relaunch.
func (s *Supervisor) killStaleBrowser(ctx context.Context, identity string) {
	if err := s.killByName(ctx, identity, s.logger); err != nil {
		s.logger.Warnf("stale browser cleanup failed: %v", err)
		return
	}
	select {
	case <-time.After(s.options.SettleDelay):
	case <-ctx.Done():
	}
}

// runChild supervises the active child: it watches for exit, keeps polling
// the store and reacts to stop and reload requests.
func (s *Supervisor) runChild(ctx context.Context) State {
	s.mu.RLock()
	active := s.activeChild
	s.mu.RUnlock()
	if active == nil {
		return StateIdle
	}

	ticker := time.NewTicker(s.options.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.teardownChild(context.Background())
			return StateShuttingDown
		case result := <-active.done:
			s.clearChild()
			s.recordExit(result.exitCode)
			config := s.currentConfig()
			s.sinkf("command exited with code %d, restarting in %s (restart %d)",
				result.exitCode, s.cooldownDelay(config), s.Status().RestartCount)
			return StateCooldown
		case msg := <-s.commands:
			if msg == messageStop {
				s.teardownChild(ctx)
				return StateShuttingDown
			}
			if next, changed := s.applyReload(ctx); changed {
				return next
			}
		case <-ticker.C:
			if next, changed := s.applyReload(ctx); changed {
				return next
			}
		}
	}
}

// applyReload re-reads the store while a child is running. An unchanged
// command leaves the child untouched; a changed command tears the child down
// exactly once and resets the restart counter.
func (s *Supervisor) applyReload(ctx context.Context) (State, bool) {
	if !s.refreshConfig() {
		return StateRunning, false
	}
	s.sinkf("startup command changed, replacing running command")
	s.teardownChild(ctx)
	s.resetRestartCount()
	if s.currentConfig().StartupCommand == "" {
		return StateIdle, true
	}
	return StateWaitingPrereqs, true
}

// teardownChild terminates the active process group, escalating from TERM to
// KILL, and for browser children sweeps stragglers by name.
func (s *Supervisor) teardownChild(ctx context.Context) {
	s.mu.RLock()
	active := s.activeChild
	s.mu.RUnlock()
	if active == nil {
		return
	}

	fwd := make(chan error, 1)
	go func() {
		result := <-active.done
		s.mu.Lock()
		s.lastExitCode = result.exitCode
		s.mu.Unlock()
		fwd <- result.err
	}()

	survived, err := process.TerminateGroup(ctx, active.pid, fwd, s.options.GracefulTimeout, s.logger)
	if err != nil {
		s.logger.Errorf("teardown of pid %d failed: %v", active.pid, err)
	} else if survived {
		s.logger.Warnf("process group %d needed forced kill", active.pid)
	}
	if active.identity != "" {
		if err := s.killByName(ctx, active.identity, s.logger); err != nil {
			s.logger.Debugf("browser sweep after teardown: %v", err)
		}
	}
	s.clearChild()
	s.sinkf("command stopped (pid %d)", active.pid)
}

func (s *Supervisor) clearChild() {
	s.mu.Lock()
	s.activeChild = nil
	s.childPID = 0
	s.mu.Unlock()
	s.removeChildPIDFile()
}

func (s *Supervisor) recordExit(code int) {
	s.mu.Lock()
	s.lastExitCode = code
	s.restartCount++
	s.mu.Unlock()
}

func (s *Supervisor) resetRestartCount() {
	s.mu.Lock()
	s.restartCount = 0
	s.mu.Unlock()
}

// cooldownDelay picks the delay for the next cooldown: the short delay while
// the restart count is within the rapid-restart budget, the long delay once
// it is exceeded.
func (s *Supervisor) cooldownDelay(config configstore.Config) time.Duration {
	s.mu.RLock()
	count := s.restartCount
	s.mu.RUnlock()
	if count > config.MaxRapidRestarts {
		return config.LongRestartDelay()
	}
	return config.RestartDelay()
}

// runCooldown waits out the restart delay, still honoring stop, reload and
// the config poll. After a long delay the restart counter resets so the next
// crash burst starts a fresh budget.
func (s *Supervisor) runCooldown(ctx context.Context) State {
	config := s.currentConfig()
	long := s.Status().RestartCount > config.MaxRapidRestarts
	delay := config.RestartDelay()
	if long {
		delay = config.LongRestartDelay()
		s.sinkf("restart budget exhausted, backing off for %s", delay)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	ticker := time.NewTicker(s.options.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return StateShuttingDown
		case <-timer.C:
			if long {
				s.resetRestartCount()
			}
			if s.currentConfig().StartupCommand == "" {
				return StateIdle
			}
			return StateWaitingPrereqs
		case msg := <-s.commands:
			if msg == messageStop {
				return StateShuttingDown
			}
			if s.refreshConfig() {
				s.resetRestartCount()
				if s.currentConfig().StartupCommand == "" {
					return StateIdle
				}
				return StateWaitingPrereqs
			}
		case <-ticker.C:
			if s.refreshConfig() {
				s.resetRestartCount()
				if s.currentConfig().StartupCommand == "" {
					return StateIdle
				}
				return StateWaitingPrereqs
			}
		}
	}
}

func (s *Supervisor) writeChildPIDFile(pid int) {
	if s.options.PIDFiles == nil {
		return
	}
	if err := s.options.PIDFiles.Write(processfile.CommandFile, pid); err != nil {
		s.logger.Warnf("failed to write command pid file: %v", err)
	}
}

func (s *Supervisor) removeChildPIDFile() {
	if s.options.PIDFiles == nil {
		return
	}
	if err := s.options.PIDFiles.Remove(processfile.CommandFile); err != nil {
		s.logger.Warnf("failed to remove command pid file: %v", err)
	}
}

func (s *Supervisor) sinkf(format string, args ...interface{}) {
	s.logger.Infof(format, args...)
	if s.options.Sink != nil {
		s.options.Sink.Appendf("supervisor", format, args...)
	}
}
