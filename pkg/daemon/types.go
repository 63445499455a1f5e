// Package daemon implements the single-daemon lifecycle of §4.F: compose
// config, acquire keyrings, deploy/remove/act on one daemon on one host.
// Grounded on the teacher's pkg/deploy four-step pipeline
// (initialize/prepare/finalize), generalized from "deploy one MongoDB
// node" into "deploy one typed daemon".
package daemon

import "time"

// Status mirrors §3's DaemonDescription.status tri-state plus "unknown",
// represented as a nil *Status rather than a fourth sentinel value.
type Status int

const (
	StatusError   Status = -1
	StatusStopped Status = 0
	StatusRunning Status = 1
)

// Description is one observed or managed daemon (§3).
type Description struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	Host        string    `json:"host"`
	Style       string    `json:"style,omitempty"`
	FSID        string    `json:"fsid,omitempty"`
	ContainerID string    `json:"container_id,omitempty"`
	ImageName   string    `json:"image_name,omitempty"`
	ImageID     string    `json:"image_id,omitempty"`
	Version     string    `json:"version,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	LastRefresh time.Time `json:"last_refresh"`
}

// Name returns the stable "type.id" identity (§3: "name() is type.id and
// is stable").
func (d Description) Name() string {
	return d.Type + "." + d.ID
}

// ClientFileSpec ships one rendered file to every host carrying a label,
// generalized from the original's `_client_files` handling (§4 data
// model supplement); consumed by scrape-style daemons for static config.
type ClientFileSpec struct {
	Label       string
	Path        string
	Content     []byte
	Permissions uint32
}

// CreateOptions configures Lifecycle.Create (§4.F.1-5).
type CreateOptions struct {
	Keyring     string
	ExtraConfig map[string]string
	ExtraArgs   []string
	Reconfig    bool
	OSDFSIDHint string
	// Network is the placement entry's network (§4.E: "for monitors each
	// placement entry must carry a network"), rendered into a mon's
	// config as public network/addrv/addr. Ignored for every other
	// daemon type.
	Network string
	// ClientFiles are shipped alongside a scrape-style daemon's
	// generated config (§4 Data Model supplement's ClientFile).
	ClientFiles []ClientFileSpec
}

// Action is one of the per-daemon operations §4.F.3 names.
type Action string

const (
	ActionStart     Action = "start"
	ActionStop      Action = "stop"
	ActionRestart   Action = "restart"
	ActionRedeploy  Action = "redeploy"
	ActionReconfig  Action = "reconfig"
)

// scrapeDaemonTypes are daemons whose config is a generated scrape target
// list rather than the mon-command minimal cluster config (§4.F.1).
var scrapeDaemonTypes = map[string]bool{
	"prometheus": true,
	"node-exporter": true,
	"alertmanager": true,
}

func isScrapeDaemon(daemonType string) bool {
	return scrapeDaemonTypes[daemonType]
}

// crashDaemonType is the one daemon type that does not also receive a
// per-host crash keyring on create (§4.F.2: "for all but the crash
// daemon").
const crashDaemonType = "crash"

// storageDaemonTypes attach an osd uuid on create (§4.F.3).
var storageDaemonTypes = map[string]bool{
	"osd": true,
}

func isStorageDaemon(daemonType string) bool {
	return storageDaemonTypes[daemonType]
}
