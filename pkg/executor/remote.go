// Package executor runs helper commands on remote hosts over SSH (§4.A).
// One Remote is shared across the engine; it keeps at most one cached
// connection per host address and dispatches through either a root or a
// packaged strategy. Grounded on the teacher's pkg/executor.SSHExecutor
// (auth precedence, one-session-per-call), generalized from a fixed
// Executor interface covering MongoDB file/process operations into the
// single `Run` entry point the design calls for, plus the host-check and
// connection-lifecycle methods the inventory and placement layers need.
package executor

import "context"

// AddressResolver resolves a hostname to the address to dial, mirroring
// inventory's hostname -> addr mapping. Returning ok=false means "dial the
// hostname verbatim" (§4.A).
type AddressResolver interface {
	ResolveAddr(host string) (addr string, ok bool)
}

// ImageResolver fetches the container image configured for an entity, the
// way a mon-command lookup against the cluster config store would (§4.A).
type ImageResolver interface {
	GetImage(entity string) (string, error)
}

// Remote is the abstraction every higher package depends on instead of
// talking SSH directly.
type Remote interface {
	Run(ctx context.Context, host string, req Request) (Result, error)
	CheckHost(ctx context.Context, host string) (HostCheckResult, error)
	// GatherFacts collects host's OS/arch/kernel/free-memory inspection
	// blob (§4 Data Model supplement's Facts).
	GatherFacts(ctx context.Context, host string) (Facts, error)
	Close(host string) error
	CloseAll()
}

// DispatchMode selects how a Request's argument vector reaches the remote
// helper (§4.A).
type DispatchMode int

const (
	// DispatchRoot ships the helper payload inline through a remote
	// language interpreter (bootstrap hosts with no packaged helper yet).
	DispatchRoot DispatchMode = iota
	// DispatchPackaged invokes an already-installed helper binary via sudo.
	DispatchPackaged
)

func (m DispatchMode) String() string {
	if m == DispatchPackaged {
		return "packaged"
	}
	return "root"
}

// gatewayTypes are daemon types addressed through a client identity rather
// than their own type.id (§4.A: "client. prefix for gateway/mirror
// daemons, raw otherwise").
var gatewayTypes = map[string]bool{
	"rgw":           true,
	"nfs":           true,
	"iscsi":         true,
	"rbd-mirror":    true,
	"cephfs-mirror": true,
}

// deriveEntity maps a "type.id" entity name to the identity used to look
// up its image: gateway/mirror daemons are addressed as a client,
// everything else uses its own type.id verbatim (§4.A, §4.F.2).
func deriveEntity(entity string) string {
	typ, _, found := cutFirst(entity, '.')
	if !found || !gatewayTypes[typ] {
		return entity
	}
	return "client." + entity
}

func cutFirst(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}
