package upgrade

import (
	"context"
	"fmt"
	"time"

	"github.com/zph/fleetd/pkg/clusterops"
	"github.com/zph/fleetd/pkg/daemon"
	"github.com/zph/fleetd/pkg/inventory"
	"github.com/zph/fleetd/pkg/log"
)

// daemonTypeOrder is §4.H.3's fixed processing order.
var daemonTypeOrder = []string{"mgr", "mon", "osd", "rgw", "mds"}

// okToStopTypes are the daemon types the safety gate applies to
// (§4.H.3.a).
var okToStopTypes = map[string]bool{"mon": true, "osd": true, "mds": true}

const (
	okToStopAttempts = 4
	okToStopDelay    = 15 * time.Second
)

// Engine drives one Step per serve tick, generalized from the teacher's
// UpgraderInterface phase workflow (ValidatePrerequisites/step
// functions/Pause/Resume over MongoDB's config-server/shard/mongos
// phases) into the spec's fixed daemon-type order, one Step call per
// tick instead of one blocking Upgrade(ctx) call, so the engine yields
// to the serve loop between every daemon it touches.
type Engine struct {
	States    *StateManager
	Inventory *inventory.Inventory
	Ops       clusterops.ClusterOps
	Lifecycle *daemon.Lifecycle
	Health    HealthSink

	// OkToStopAttempts/OkToStopDelay override the §4.H.3.a safety-gate
	// cadence (default 4 attempts, 15s apart); tests shrink the delay.
	OkToStopAttempts int
	OkToStopDelay    time.Duration

	log log.Logger
}

// NewEngine constructs an Engine over its dependencies with the spec's
// default safety-gate cadence.
func NewEngine(states *StateManager, inv *inventory.Inventory, ops clusterops.ClusterOps, lc *daemon.Lifecycle, health HealthSink) *Engine {
	return &Engine{
		States: states, Inventory: inv, Ops: ops, Lifecycle: lc, Health: health,
		OkToStopAttempts: okToStopAttempts, OkToStopDelay: okToStopDelay,
		log: log.With("upgrade", nil),
	}
}

// Step implements §4.H's single-pass-per-tick algorithm. It returns
// done=true once the upgrade_state has been cleared (upgrade complete or
// absent); otherwise it performs at most one yield-worthy action (pull,
// redeploy, or failover) and returns so the serve loop can re-enter next
// tick.
func (e *Engine) Step(ctx context.Context) (bool, error) {
	state := e.States.State()
	if state == nil {
		return true, nil
	}
	if state.Paused {
		return false, nil
	}

	if state.TargetID == "" {
		hosts := e.Inventory.Hosts()
		if len(hosts) == 0 {
			return false, nil
		}
		imageID, ver, err := e.Ops.InspectTargetImage(ctx, hosts[0], state.TargetName)
		if err != nil {
			return false, err
		}
		state.TargetID = imageID
		state.TargetVersion = ver
		if err := e.States.Save(state); err != nil {
			return false, err
		}
	}

	for _, daemonType := range daemonTypeOrder {
		daemons, err := e.Inventory.GetDaemons(ctx, inventory.Filter{Type: daemonType}, false, true)
		if err != nil {
			return false, err
		}
		if len(daemons) == 0 {
			continue
		}

		var activeMgr string
		if daemonType == "mgr" {
			activeMgr, _ = e.Ops.ActiveManager()
		}

		allAtTarget := true
		needUpgradeSelf := false

		for _, d := range daemons {
			if d.ImageID == "" {
				return false, nil
			}
			if d.ImageID == state.TargetID {
				continue
			}
			allAtTarget = false

			if daemonType == "mgr" && d.Name() == activeMgr {
				needUpgradeSelf = true
				continue
			}

			_, err := e.upgradeOneDaemon(ctx, state, daemonType, d)
			return false, err
		}

		if needUpgradeSelf {
			return false, e.failoverActiveManager()
		}

		if allAtTarget {
			if err := e.Ops.SetContainerImage(clusterops.ScopeType, daemonType, state.TargetName); err != nil {
				return false, err
			}
			for _, d := range daemons {
				_ = e.Ops.ClearContainerImage(clusterops.ScopeDaemon, d.Name())
			}
		}
	}

	if err := e.Ops.SetContainerImage(clusterops.ScopeGlobal, "", state.TargetName); err != nil {
		return false, err
	}
	for _, t := range daemonTypeOrder {
		_ = e.Ops.ClearContainerImage(clusterops.ScopeType, t)
	}
	if err := e.States.Stop(); err != nil {
		return false, err
	}
	return true, nil
}

// upgradeOneDaemon handles one non-self, not-yet-upgraded daemon: inspect,
// gate, redeploy. A true return means this pass ends here without error
// (the pull failed and the state was paused, the target id was corrected,
// the ok-to-stop gate did not clear, or the daemon was redeployed); an
// error return means the pass failed outright.
func (e *Engine) upgradeOneDaemon(ctx context.Context, state *State, daemonType string, d daemon.Description) (bool, error) {
	observedID, _, err := e.Ops.InspectTargetImage(ctx, d.Host, state.TargetName)
	if err != nil {
		e.Health.Set(healthUpgradeFailedPull, err.Error())
		if failErr := e.States.Fail(err.Error()); failErr != nil {
			return false, failErr
		}
		return true, nil
	}
	e.Health.Clear(healthUpgradeFailedPull)

	if observedID != state.TargetID {
		state.TargetID = observedID
		return true, e.States.Save(state)
	}

	if okToStopTypes[daemonType] {
		ok, err := okToStopGate(ctx, func(ctx context.Context) (bool, error) {
			return e.Ops.OkToStop(ctx, daemonType, []string{d.Name()})
		}, e.OkToStopAttempts, e.OkToStopDelay)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
	}

	if err := e.Ops.SetContainerImage(clusterops.ScopeDaemon, d.Name(), state.TargetName); err != nil {
		return false, err
	}
	if err := e.Lifecycle.Action(ctx, d.Type, d.ID, d.Host, daemon.ActionRedeploy); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) failoverActiveManager() error {
	standbys, err := e.Ops.StandbyManagers()
	if err != nil {
		return err
	}
	if len(standbys) == 0 {
		e.Health.Set(healthNoStandbyMgr, "no standby manager available for failover")
		if err := e.States.Fail("no standby manager available"); err != nil {
			return err
		}
		return fmt.Errorf("%s", healthNoStandbyMgr)
	}
	e.Health.Clear(healthNoStandbyMgr)
	return e.Ops.FailoverManager()
}
