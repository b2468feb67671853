package process

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sort"

	"github.com/ossuary-pi/ossuary/pkg/errors"
	"github.com/ossuary-pi/ossuary/pkg/logging"
)

// ExecutionConfig describes a managed command launch. Command is user-supplied
// shell text and runs via the platform shell; Environment is a structured
// override map applied on top of the supervisor's environment, scoped to the
// child invocation only.
type ExecutionConfig struct {
	Command          string            `yaml:"command"`
	Environment      map[string]string `yaml:"environment,omitempty"`
	WorkingDirectory string            `yaml:"working_directory,omitempty"`
}

// ShellExecuteCmd launches the configured command and returns the process
// handle plus its combined stdout+stderr stream.
type ShellExecuteCmd func(ctx context.Context) (*os.Process, io.ReadCloser, error)

// NewShellExecuteCmd builds a launch closure for the given execution config.
// The child runs in its own process group so the whole tree can be torn down
// together.
func NewShellExecuteCmd(execution ExecutionConfig, id string, logger logging.Logger) ShellExecuteCmd {
	return func(ctx context.Context) (*os.Process, io.ReadCloser, error) {
		if ctx == nil {
			return nil, nil, errors.NewValidationError("context cannot be nil", nil).WithContext("id", id)
		}

		if err := ValidateExecutionConfig(execution); err != nil {
			return nil, nil, errors.NewValidationError("invalid execution configuration", err).WithContext("id", id)
		}

		shell, flag := shellInvocation()
		// The child is deliberately not bound to ctx: a cancellation would
		// SIGKILL the leader and bypass the graceful group teardown. The
		// caller owns the child's lifetime via TerminateGroup.
		cmd := exec.Command(shell, flag, execution.Command)
		if execution.WorkingDirectory != "" {
			cmd.Dir = execution.WorkingDirectory
		}
		cmd.Env = mergeEnvironment(os.Environ(), execution.Environment)

		// Platform-specific group setup is in execute_unix.go / execute_windows.go.
		setupProcessAttributes(cmd)

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, errors.NewProcessError("failed to create stdout pipe", err).WithContext("id", id)
		}
		cmd.Stderr = cmd.Stdout

		logger.Debugf("Executing command, id: %s, shell: %s, command: %q, env overrides: %d",
			id, shell, execution.Command, len(execution.Environment))

		if err := cmd.Start(); err != nil {
			return nil, nil, errors.NewProcessError("failed to start command", err).WithContext("id", id).WithContext("command", execution.Command)
		}

		logger.Infof("Command started, id: %s, PID: %d", id, cmd.Process.Pid)

		// Reap the shell through cmd.Wait elsewhere; the caller owns the wait.
		return cmd.Process, stdout, nil
	}
}

// mergeEnvironment appends the override map to a base environment in sorted
// key order. Later entries win, so overrides shadow inherited values.
func mergeEnvironment(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(keys))
	env = append(env, base...)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
