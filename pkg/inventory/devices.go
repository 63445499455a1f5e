package inventory

import (
	"context"
	"time"

	"github.com/zph/fleetd/pkg/executor"
	"github.com/zph/fleetd/pkg/ferrors"
)

// GetDevices returns the device inventory for hosts (all registered hosts
// if hosts is empty), refreshing first when refresh is true. Mirrors
// GetDaemons' refresh-then-read shape over the long-timeout device cache
// instead of the short-timeout daemon cache (§4.B: "device inventory...
// with a long timeout").
func (inv *Inventory) GetDevices(ctx context.Context, hosts []string, refresh bool) ([]Device, error) {
	if len(hosts) == 0 {
		hosts = inv.Hosts()
	}
	errs := ferrors.NewMultiError()

	for _, h := range hosts {
		if !refresh && !inv.devices.Outdated(h) {
			continue
		}
		if err := inv.refreshDevices(ctx, h); err != nil {
			errs.Add(h, err)
		}
	}

	var out []Device
	for _, h := range hosts {
		entry, ok := inv.devices.Get(h)
		if !ok {
			continue
		}
		out = append(out, entry.Data...)
	}

	if errs.HasErrors() {
		return out, errs
	}
	return out, nil
}

func (inv *Inventory) refreshDevices(ctx context.Context, host string) error {
	res, err := inv.remote.Run(ctx, host, executor.Request{Entity: "mgr", Command: "device-ls"})
	if err != nil {
		return err
	}
	entries, err := executor.DecodeDeviceList(res.Stdout)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	devices := make([]Device, 0, len(entries))
	for _, e := range entries {
		devices = append(devices, Device{
			Path:        e.Path,
			Size:        e.Size,
			Rotational:  e.Rotational,
			Available:   e.Available,
			LastRefresh: now,
		})
	}
	inv.devices.Set(host, devices)
	return inv.devices.Persist(inv.configStore, "host.devices")
}
