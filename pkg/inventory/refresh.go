package inventory

import (
	"context"
	"time"

	"github.com/zph/fleetd/pkg/daemon"
	"github.com/zph/fleetd/pkg/executor"
	"github.com/zph/fleetd/pkg/ferrors"
)

// refreshTimeLayout matches the spec's literal stamping format (§4.D:
// "stamp each entry with the current UTC timestamp in
// %Y-%m-%dT%H:%M:%S.%f"); Go's RFC3339Nano is the closest stdlib layout
// and is what every cached entry's LastRefresh uses on the wire via
// time.Time's own JSON marshaling, so this layout exists only for any
// caller that wants the literal string form (e.g. CLI --format plain).
const refreshTimeLayout = "2006-01-02T15:04:05.000000"

// styleFilter is the fixed style prefix §4.D filters to: "every entry...
// by style prefix cephadm".
const styleFilter = "cephadm"

// GetDaemons implements §4.D's refresh-then-filter read path.
func (inv *Inventory) GetDaemons(ctx context.Context, filter Filter, refresh, maybeRefresh bool) ([]daemon.Description, error) {
	hosts := inv.hostsToQuery(filter)
	errs := ferrors.NewMultiError()

	for _, h := range hosts {
		shouldRefresh := refresh || (maybeRefresh && inv.daemons.Outdated(h))
		if !shouldRefresh {
			continue
		}
		if err := inv.refreshHost(ctx, h); err != nil {
			errs.Add(h, err)
		}
	}

	var out []daemon.Description
	for _, h := range hosts {
		entry, ok := inv.daemons.Get(h)
		if !ok || entry.LastRefresh.IsZero() {
			out = append(out, daemon.Description{Type: "*", ID: "*", Host: h})
			continue
		}
		for _, d := range entry.Data {
			if matchesStyleAndFSID(d, filter) && filter.matches(d) {
				out = append(out, d)
			}
		}
	}

	if errs.HasErrors() {
		return out, errs
	}
	return out, nil
}

func (inv *Inventory) hostsToQuery(filter Filter) []string {
	if filter.Host != "" {
		return []string{filter.Host}
	}
	return inv.Hosts()
}

func matchesStyleAndFSID(d daemon.Description, filter Filter) bool {
	if len(d.Style) < len(styleFilter) || d.Style[:len(styleFilter)] != styleFilter {
		return false
	}
	if filter.FSID != "" && d.FSID != filter.FSID {
		return false
	}
	return true
}

// refreshHost calls the remote `ls` and replaces the host's cache entry
// (§4.D refresh action).
func (inv *Inventory) refreshHost(ctx context.Context, host string) error {
	res, err := inv.remote.Run(ctx, host, executor.Request{Entity: "mgr", Command: "ls"})
	if err != nil {
		return err
	}
	entries, err := executor.DecodeLs(res.Stdout)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	descriptions := make([]daemon.Description, 0, len(entries))
	for _, e := range entries {
		typ, id := splitName(e.Name)
		descriptions = append(descriptions, daemon.Description{
			Type:        typ,
			ID:          id,
			Host:        host,
			Style:       e.Style,
			FSID:        e.Fsid,
			ContainerID: e.ContainerID,
			ImageName:   e.Image,
			ImageID:     e.ImageID,
			Version:     e.Version,
			LastRefresh: now,
		})
	}
	inv.daemons.Set(host, descriptions)
	return inv.daemons.Persist(inv.configStore, "host.daemons")
}

func splitName(name string) (typ, id string) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}
