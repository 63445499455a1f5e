package serve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zph/fleetd/pkg/daemon"
	"github.com/zph/fleetd/pkg/executor"
	"github.com/zph/fleetd/pkg/inventory"
	"github.com/zph/fleetd/pkg/log"
	"github.com/zph/fleetd/pkg/upgrade"
)

// defaultInterval is §4.I's 600s default sleep.
const defaultInterval = 600 * time.Second

// hostCheckConcurrency bounds the host-check fan-out.
const hostCheckConcurrency = 8

const (
	healthHostCheckFailed = "CEPHADM_HOST_CHECK_FAILED"
	healthRefreshFailed   = "CEPHADM_REFRESH_FAILED"
	healthStrayHost       = "CEPHADM_STRAY_HOST"
	healthStrayDaemon     = "CEPHADM_STRAY_DAEMON"
)

// HealthSink receives named health check transitions, the same narrow
// shape as upgrade.HealthSink; kept as its own type so pkg/serve doesn't
// need to import pkg/upgrade just for this interface.
type HealthSink interface {
	Set(name, detail string)
	Clear(name string)
}

// ClusterView is the cluster's own view of what daemons exist, queried
// independently of the orchestrator's inventory (e.g. a mon-command like
// "node ls"). Stray detection diffs this against the inventory.
type ClusterView interface {
	ReportedDaemons(ctx context.Context) ([]daemon.Description, error)
}

// Loop is the serve loop of §4.I: one background goroutine performing,
// once per wake, a host check, a daemon refresh, stray detection, and an
// upgrade step.
type Loop struct {
	Interval time.Duration
	Gate     *Gate

	Inventory *inventory.Inventory
	Remote    executor.Remote
	Cluster   ClusterView
	Engine    *upgrade.Engine
	Health    HealthSink

	log log.Logger
}

// NewLoop constructs a Loop with §4.I's default interval. Cluster and
// Engine may be nil: stray detection and upgrade stepping are then
// skipped for that tick.
func NewLoop(inv *inventory.Inventory, remote executor.Remote, cluster ClusterView, engine *upgrade.Engine, health HealthSink, gate *Gate) *Loop {
	return &Loop{
		Interval:  defaultInterval,
		Gate:      gate,
		Inventory: inv,
		Remote:    remote,
		Cluster:   cluster,
		Engine:    engine,
		Health:    health,
		log:       log.With("serve", nil),
	}
}

// Run blocks, ticking once per wake until ctx is canceled. No busy-wait:
// every iteration blocks in select on either the interval timer or the
// gate (§5: "the serve loop waits on an event gate, bounded by the sleep
// interval").
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(l.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-l.Gate.C():
		}

		l.tick(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(l.Interval)
	}
}

// tick runs the four steps of §4.I in order, short-circuiting after a
// refresh failure (sleep + continue) per the spec's failure handling.
func (l *Loop) tick(ctx context.Context) {
	l.checkHosts(ctx)

	if err := l.refreshDaemons(ctx); err != nil {
		l.log.WithError(err).Warn("daemon refresh failed, skipping rest of tick")
		return
	}

	l.detectStray(ctx)

	if l.Engine == nil {
		return
	}
	state := l.Engine.States.State()
	if state == nil || state.Paused {
		return
	}
	if _, err := l.Engine.Step(ctx); err != nil {
		l.log.WithError(err).Warn("upgrade step failed")
	}
}

// checkHosts fans `check-host` out to every inventoried host, bounded by
// hostCheckConcurrency, and aggregates failures into
// CEPHADM_HOST_CHECK_FAILED (§4.I.1).
func (l *Loop) checkHosts(ctx context.Context) {
	hosts := l.Inventory.Hosts()
	if len(hosts) == 0 {
		l.Health.Clear(healthHostCheckFailed)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hostCheckConcurrency)

	var mu sync.Mutex
	var failed []string
	for _, h := range hosts {
		host := h
		g.Go(func() error {
			res, err := l.Remote.CheckHost(gctx, host)
			if err != nil || !res.OK {
				mu.Lock()
				failed = append(failed, host)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		l.Health.Set(healthHostCheckFailed, fmt.Sprintf("%d host(s) failed check: %s", len(failed), strings.Join(failed, ", ")))
	} else {
		l.Health.Clear(healthHostCheckFailed)
	}
}

// refreshDaemons performs §4.I.2's maybe_refresh=true pass across every
// host. Per-host failures are collected into inventory's MultiError;
// any failure raises CEPHADM_REFRESH_FAILED for the whole pass.
func (l *Loop) refreshDaemons(ctx context.Context) error {
	_, err := l.Inventory.GetDaemons(ctx, inventory.Filter{}, false, true)
	if err != nil {
		l.Health.Set(healthRefreshFailed, err.Error())
		return err
	}
	l.Health.Clear(healthRefreshFailed)
	return nil
}

// detectStray implements §4.I.3: a reported daemon whose host isn't in
// the inventory at all makes that host a stray host; a reported daemon on
// a known host that the inventory doesn't manage makes the daemon itself
// a stray daemon.
func (l *Loop) detectStray(ctx context.Context) {
	if l.Cluster == nil {
		return
	}
	reported, err := l.Cluster.ReportedDaemons(ctx)
	if err != nil {
		l.log.WithError(err).Warn("stray detection fetch failed")
		return
	}

	knownHosts := make(map[string]bool)
	for _, h := range l.Inventory.Hosts() {
		knownHosts[h] = true
	}
	managed, err := l.Inventory.GetDaemons(ctx, inventory.Filter{}, false, false)
	if err != nil {
		l.log.WithError(err).Warn("could not load managed daemons for stray comparison")
		return
	}
	managedSet := make(map[string]bool, len(managed))
	for _, d := range managed {
		managedSet[d.Host+"/"+d.Name()] = true
	}

	strayHostSet := map[string]bool{}
	var strayDaemons []string
	for _, d := range reported {
		if !knownHosts[d.Host] {
			strayHostSet[d.Host] = true
			continue
		}
		if !managedSet[d.Host+"/"+d.Name()] {
			strayDaemons = append(strayDaemons, d.Host+"/"+d.Name())
		}
	}

	if len(strayHostSet) > 0 {
		hosts := make([]string, 0, len(strayHostSet))
		for h := range strayHostSet {
			hosts = append(hosts, h)
		}
		sort.Strings(hosts)
		l.Health.Set(healthStrayHost, fmt.Sprintf("%d stray host(s): %s", len(hosts), strings.Join(hosts, ", ")))
	} else {
		l.Health.Clear(healthStrayHost)
	}

	if len(strayDaemons) > 0 {
		sort.Strings(strayDaemons)
		l.Health.Set(healthStrayDaemon, fmt.Sprintf("%d stray daemon(s): %s", len(strayDaemons), strings.Join(strayDaemons, ", ")))
	} else {
		l.Health.Clear(healthStrayDaemon)
	}
}
