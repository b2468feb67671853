package supervisor

// State is the supervisor's lifecycle state.
type State string

const (
	// StateIdle means no command is configured; the supervisor only polls.
	StateIdle State = "idle"

	// StateWaitingPrereqs means a command is configured and the supervisor is
	// waiting for network (and, for GUI-class commands, a display server).
	StateWaitingPrereqs State = "waiting_prereqs"

	// StateRunning means the managed child is active.
	StateRunning State = "running"

	// StateCooldown is the inter-restart delay after a child exit.
	StateCooldown State = "cooldown"

	// StateShuttingDown is terminal, entered on a stop request.
	StateShuttingDown State = "shutting_down"
)

// Status is a point-in-time snapshot of the supervised process record.
type Status struct {
	State        State  `json:"state"`
	Command      string `json:"command"`
	ChildPID     int    `json:"child_pid"`
	RestartCount int    `json:"restart_count"`
	LastExitCode int    `json:"last_exit_code"`
}

type messageType int

const (
	messageStop messageType = iota
	messageReload
)
