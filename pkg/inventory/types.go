// Package inventory implements the durable host registry and daemon
// cache refresh logic of §4.D. Grounded on the teacher's pkg/meta
// (durable cluster/node metadata, JSON-backed Manager) and pkg/topology
// (host-set queries), generalized from a single fixed cluster topology
// into a mutable, user-managed host registry with label-based filtering.
package inventory

import (
	"regexp"
	"time"

	"github.com/zph/fleetd/pkg/daemon"
	"github.com/zph/fleetd/pkg/ferrors"
)

// HostEntry is one inventory record (§3 Host, minus the hostname which is
// the map key).
type HostEntry struct {
	Addr   string          `json:"addr"`
	Labels map[string]bool `json:"labels"`
}

// hostnamePart is one part of the RFC-952 subset the spec pins hostnames to: up to
// 250 chars overall, dot-separated parts of 1-63 chars drawn from
// [a-zA-Z0-9-] (§3).
var hostnamePart = regexp.MustCompile(`^[a-zA-Z0-9-]{1,63}$`)

// ValidateHostname enforces §3's Host grammar.
func ValidateHostname(name string) error {
	if len(name) == 0 || len(name) > 250 {
		return ferrors.New(ferrors.KindValidation, "hostname must be 1-250 characters")
	}
	parts := splitDot(name)
	for _, p := range parts {
		if !hostnamePart.MatchString(p) {
			return ferrors.New(ferrors.KindValidation, "hostname part %q is invalid: "+name)
		}
	}
	return nil
}

func splitDot(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// Filter selects a subset of cached daemons (§4.D "get_daemons").
type Filter struct {
	Type            string
	ID              string
	ServiceNamePrefix string
	Host            string
	Style           string
	FSID            string
}

func (f Filter) matches(d daemon.Description) bool {
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.ID != "" && d.ID != f.ID {
		return false
	}
	if f.Host != "" && d.Host != f.Host {
		return false
	}
	if f.ServiceNamePrefix != "" && !hasPrefix(d.ID, f.ServiceNamePrefix) {
		return false
	}
	return true
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Device is a per-host storage device record (§3 InventoryCache entry,
// device inventory instantiation).
type Device struct {
	Path        string    `json:"path"`
	Size        uint64    `json:"size"`
	Rotational  bool      `json:"rotational"`
	Available   bool      `json:"available"`
	LastRefresh time.Time `json:"last_refresh"`
}
