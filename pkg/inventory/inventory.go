package inventory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/zph/fleetd/pkg/cache"
	"github.com/zph/fleetd/pkg/configstore"
	"github.com/zph/fleetd/pkg/daemon"
	"github.com/zph/fleetd/pkg/executor"
	"github.com/zph/fleetd/pkg/ferrors"
	"github.com/zph/fleetd/pkg/log"
)

const inventoryKey = "inventory"

// Waker is the narrow interface mutators kick after persisting (§4.D:
// "every mutator persists the inventory and kicks the serve loop");
// pkg/serve.Gate satisfies it without inventory importing pkg/serve.
type Waker interface {
	Wake()
}

type noopWaker struct{}

func (noopWaker) Wake() {}

// Inventory is the durable host registry plus the daemon/device caches
// keyed by it (§3 ownership: "the engine owns the inventory, both
// caches, open host connections"). Grounded on the teacher's pkg/meta
// Manager (JSON-backed Save/Load/persist-then-notify), generalized from a
// fixed set of cluster nodes into user-mutable hosts with labels.
type Inventory struct {
	mu    sync.RWMutex
	hosts map[string]HostEntry

	configStore configstore.Store
	daemons     *cache.Store[[]daemon.Description]
	devices     *cache.Store[[]Device]
	facts       *cache.Store[executor.Facts]
	remote      executor.Remote
	gate        Waker

	daemonCacheTimeout time.Duration

	log log.Logger
}

// New constructs an empty Inventory. Call Load to hydrate from cs.
func New(cs configstore.Store, remote executor.Remote, gate Waker, daemonCacheTimeout, deviceCacheTimeout, factsCacheTimeout time.Duration) *Inventory {
	if gate == nil {
		gate = noopWaker{}
	}
	return &Inventory{
		hosts:              make(map[string]HostEntry),
		configStore:        cs,
		daemons:            cache.New[[]daemon.Description](daemonCacheTimeout),
		devices:            cache.New[[]Device](deviceCacheTimeout),
		facts:              cache.New[executor.Facts](factsCacheTimeout),
		remote:             remote,
		gate:               gate,
		daemonCacheTimeout: daemonCacheTimeout,
		log:                log.With("inventory", nil),
	}
}

// Load hydrates the inventory and the daemon, device and facts caches from
// the config store.
func (inv *Inventory) Load() error {
	data, ok, err := inv.configStore.Get(inventoryKey)
	if err != nil {
		return err
	}
	if ok {
		inv.mu.Lock()
		err := json.Unmarshal(data, &inv.hosts)
		inv.mu.Unlock()
		if err != nil {
			return err
		}
	}
	if err := inv.daemons.Load(inv.configStore, "host.daemons"); err != nil {
		return err
	}
	if err := inv.devices.Load(inv.configStore, "host.devices"); err != nil {
		return err
	}
	return inv.facts.Load(inv.configStore, "host.facts")
}

func (inv *Inventory) persist() error {
	inv.mu.RLock()
	data, err := json.Marshal(inv.hosts)
	inv.mu.RUnlock()
	if err != nil {
		return err
	}
	return inv.configStore.Set(inventoryKey, data)
}

// AddHost validates the hostname grammar, synchronously checks the host
// is reachable and reports the expected name, then admits it (§4.D).
func (inv *Inventory) AddHost(host, addr string, labels []string) error {
	if err := ValidateHostname(host); err != nil {
		return err
	}

	checkHost := host
	if addr != "" {
		checkHost = addr
	}
	result, err := inv.remote.CheckHost(context.Background(), checkHost)
	if err != nil {
		return ferrors.Wrap(ferrors.KindHostValidation, "check-host failed for "+host, err)
	}
	if !result.OK {
		return ferrors.New(ferrors.KindHostValidation, "check-host failed for "+host+": "+result.Reason)
	}

	labelSet := make(map[string]bool, len(labels))
	for _, l := range labels {
		labelSet[l] = true
	}

	inv.mu.Lock()
	inv.hosts[host] = HostEntry{Addr: addr, Labels: labelSet}
	inv.mu.Unlock()

	if err := inv.persist(); err != nil {
		return err
	}

	if err := inv.refreshFacts(context.Background(), host); err != nil {
		inv.log.WithField("host", host).WithError(err).Warn("gather facts for new host failed")
	}

	inv.gate.Wake()
	return nil
}

// RemoveHost deregisters a host, drops its cache entries and connection
// (§4.D, §8 round-trip: "add_host(X); remove_host(X) leaves inventory...
// unchanged from pre-state").
func (inv *Inventory) RemoveHost(host string) error {
	inv.mu.Lock()
	_, existed := inv.hosts[host]
	delete(inv.hosts, host)
	inv.mu.Unlock()
	if !existed {
		return ferrors.New(ferrors.KindNotFound, "unknown host "+host)
	}

	inv.daemons.Remove(host)
	inv.devices.Remove(host)
	inv.facts.Remove(host)
	_ = inv.remote.Close(host)

	if err := inv.persist(); err != nil {
		return err
	}
	inv.gate.Wake()
	return nil
}

// UpdateHostAddr changes a host's address, dropping its cached connection
// so the next call dials the new address (§4.D, §5 resource policy).
func (inv *Inventory) UpdateHostAddr(host, addr string) error {
	inv.mu.Lock()
	entry, ok := inv.hosts[host]
	if !ok {
		inv.mu.Unlock()
		return ferrors.New(ferrors.KindNotFound, "unknown host "+host)
	}
	entry.Addr = addr
	inv.hosts[host] = entry
	inv.mu.Unlock()

	_ = inv.remote.Close(host)

	if err := inv.persist(); err != nil {
		return err
	}
	inv.gate.Wake()
	return nil
}

// AddHostLabel adds a label to a host.
func (inv *Inventory) AddHostLabel(host, label string) error {
	return inv.mutateLabels(host, func(labels map[string]bool) { labels[label] = true })
}

// RemoveHostLabel removes a label from a host.
func (inv *Inventory) RemoveHostLabel(host, label string) error {
	return inv.mutateLabels(host, func(labels map[string]bool) { delete(labels, label) })
}

func (inv *Inventory) mutateLabels(host string, mutate func(map[string]bool)) error {
	inv.mu.Lock()
	entry, ok := inv.hosts[host]
	if !ok {
		inv.mu.Unlock()
		return ferrors.New(ferrors.KindNotFound, "unknown host "+host)
	}
	if entry.Labels == nil {
		entry.Labels = make(map[string]bool)
	}
	mutate(entry.Labels)
	inv.hosts[host] = entry
	inv.mu.Unlock()

	if err := inv.persist(); err != nil {
		return err
	}
	inv.gate.Wake()
	return nil
}

// Hosts returns a snapshot of every registered hostname.
func (inv *Inventory) Hosts() []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]string, 0, len(inv.hosts))
	for h := range inv.hosts {
		out = append(out, h)
	}
	return out
}

// HostsWithLabel returns every host carrying label (used by
// pkg/placement's label-selector rule).
func (inv *Inventory) HostsWithLabel(label string) []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	var out []string
	for h, e := range inv.hosts {
		if e.Labels[label] {
			out = append(out, h)
		}
	}
	return out
}

// Get returns the entry for host, and whether it is registered.
func (inv *Inventory) Get(host string) (HostEntry, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	e, ok := inv.hosts[host]
	return e, ok
}

// DaemonCache exposes the underlying daemon cache for pkg/daemon.Lifecycle
// and pkg/service to share.
func (inv *Inventory) DaemonCache() *cache.Store[[]daemon.Description] { return inv.daemons }

// DeviceCache exposes the underlying device cache.
func (inv *Inventory) DeviceCache() *cache.Store[[]Device] { return inv.devices }

// FactsCache exposes the underlying facts cache.
func (inv *Inventory) FactsCache() *cache.Store[executor.Facts] { return inv.facts }

// GetFacts returns host's cached inspection facts, refreshing first when
// refresh is true or the cache entry has gone stale (§4 Data Model
// supplement's Facts, 300s cache timeout).
func (inv *Inventory) GetFacts(ctx context.Context, host string, refresh bool) (executor.Facts, error) {
	if refresh || inv.facts.Outdated(host) {
		if err := inv.refreshFacts(ctx, host); err != nil {
			return executor.Facts{}, err
		}
	}
	entry, ok := inv.facts.Get(host)
	if !ok {
		return executor.Facts{}, nil
	}
	return entry.Data, nil
}

// PeekFacts returns host's cached facts without triggering a refresh, for
// display paths like `host ls --format json`.
func (inv *Inventory) PeekFacts(host string) (executor.Facts, bool) {
	entry, ok := inv.facts.Get(host)
	if !ok {
		return executor.Facts{}, false
	}
	return entry.Data, true
}

func (inv *Inventory) refreshFacts(ctx context.Context, host string) error {
	facts, err := inv.remote.GatherFacts(ctx, host)
	if err != nil {
		return err
	}
	inv.facts.Set(host, facts)
	return inv.facts.Persist(inv.configStore, "host.facts")
}

// HostsWithArch returns every registered host whose cached facts report
// arch, satisfying pkg/placement's ArchLister capability interface. Hosts
// with no facts cached yet are excluded rather than assumed to match.
func (inv *Inventory) HostsWithArch(arch string) []string {
	var out []string
	for _, h := range inv.Hosts() {
		entry, ok := inv.facts.Get(h)
		if !ok {
			continue
		}
		if entry.Data.Arch == arch {
			out = append(out, h)
		}
	}
	return out
}
