package executor

import "github.com/google/uuid"

// Request describes one invocation of the remote helper for a single
// entity/command pair (§4.A).
type Request struct {
	// Entity is the daemon/client identity the command runs against, e.g.
	// "mgr.a" or "rgw.default.svc". Used to derive the config-store lookup
	// key when Image is empty.
	Entity string
	// Command is the helper subcommand: "ls", "deploy", "rm-daemon",
	// "unit", "pull", "inspect-image", "check-host", ...
	Command string
	// Args are appended verbatim after the fsid flag.
	Args []string
	// Stdin, if non-nil, is passed to the helper (JSON payload for
	// deploy's --config-and-keyrings, for instance).
	Stdin []byte
	// Image overrides config-store image resolution when non-empty.
	Image string
	// NoFSID suppresses the --fsid flag (bootstrap-time commands that
	// don't have a cluster identity yet).
	NoFSID bool
	// ErrorOK converts what would otherwise be a RemoteExecutionError
	// into a non-nil Result with Code != 0 and no error return.
	ErrorOK bool
	// CorrelationID tags this call for log correlation across the dial,
	// dispatch, and result-handling sites; NewRequest stamps a fresh one,
	// and SSHRemote.Run fills it in when it is empty.
	CorrelationID string
}

// NewRequest builds a Request with a fresh correlation id, the way a
// caller that wants its remote calls traceable through the logs would
// construct one instead of the zero value.
func NewRequest(entity, command string, args []string) Request {
	return Request{Entity: entity, Command: command, Args: args, CorrelationID: uuid.NewString()}
}

// Result is the outcome of a Run call.
type Result struct {
	Stdout string
	Stderr string
	Code   int
}

// HostCheckResult is the outcome of CheckHost (§4.D add_host precondition).
type HostCheckResult struct {
	Hostname string
	Addr     string
	OK       bool
	Reason   string
}

// Facts is a per-host inspection blob gathered via GatherFacts (§4 Data
// Model supplement): OS, CPU architecture, kernel release, and free
// memory, the same inspection the original collects during
// check-host/bootstrap. Cached with a 300s timeout and used for
// placement arch filtering and `host ls --format json` reporting.
type Facts struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	Kernel       string `json:"kernel"`
	MemoryFreeKB uint64 `json:"memory_free_kb"`
}
