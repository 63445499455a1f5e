// Package clusterops models the mon-command RPC surface the engine calls
// into the storage cluster for keyring issuance, config rendering, image
// bookkeeping, and the upgrade safety gate. Every method stands in for an
// RPC the original system issues against its monitor quorum; this repo
// has no monitor quorum of its own; the interface boundary is what lets
// pkg/daemon, pkg/service, and pkg/upgrade be tested without one.
package clusterops

import "context"

// Scope selects which level a container-image override applies at
// (§4.H.3: global, per-type, per-daemon).
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeType
	ScopeDaemon
)

func (s Scope) String() string {
	switch s {
	case ScopeType:
		return "type"
	case ScopeDaemon:
		return "daemon"
	default:
		return "global"
	}
}

// ClusterOps is the dependency pkg/daemon, pkg/service, and pkg/upgrade
// inject instead of talking to a real monitor quorum.
type ClusterOps interface {
	// AuthGet fetches an existing keyring for entity (§4.F.2).
	AuthGet(entity string) (string, error)
	// AuthGetOrCreate fetches or mints a keyring for entity with the given
	// capabilities (§4.F.2, crash keyrings).
	AuthGetOrCreate(entity string, caps map[string]string) (string, error)
	// MinimalConfig renders the minimal cluster config handed to a
	// non-scrape daemon on deploy (§4.F.1).
	MinimalConfig() ([]byte, error)
	// OSDFSID resolves a storage daemon's volume uuid from the osd map
	// (§4.F.3).
	OSDFSID(id string) (string, error)
	// GetImage resolves the configured image for entity; satisfies
	// executor.ImageResolver so a ClusterOps can be handed straight to
	// executor.NewSSHRemote.
	GetImage(entity string) (string, error)
	// SetContainerImage / ClearContainerImage manage the global/per-type/
	// per-daemon image override hierarchy the upgrade engine walks
	// (§4.H.3.c, §4.H.4).
	SetContainerImage(scope Scope, name, image string) error
	ClearContainerImage(scope Scope, name string) error
	// OkToStop is the safety gate the upgrade engine consults before
	// redeploying a {mon,osd,mds} daemon (§4.H.3.a).
	OkToStop(ctx context.Context, daemonType string, names []string) (bool, error)
	// ActiveManager / StandbyManagers / FailoverManager drive the
	// manager-failover step of an upgrade (§4.H.3.b).
	ActiveManager() (string, error)
	StandbyManagers() ([]string, error)
	FailoverManager() error
	// InspectTargetImage pulls/inspects imageRef on host, resolving a
	// concrete image id and version (§4.H.1, §4.H.3).
	InspectTargetImage(ctx context.Context, host, imageRef string) (imageID, version string, err error)
}
