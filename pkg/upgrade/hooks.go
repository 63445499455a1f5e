package upgrade

import (
	"context"
	"time"
)

// HealthSink receives upgrade health check transitions (§4.H failure
// handling: "emit a health check... any raised alert is cleared on the
// next successful step of the same kind"). Adapted from the teacher's
// HookRegistry/CommandHook machinery (exec.Command-based hook execution
// with Slack/webhook notification helpers) which has no analogue here —
// this domain raises and clears named health checks through the cluster
// RPC surface rather than shelling out to user scripts.
type HealthSink interface {
	Set(name, detail string)
	Clear(name string)
}

const (
	healthUpgradeFailedPull = "UPGRADE_FAILED_PULL"
	healthNoStandbyMgr      = "UPGRADE_NO_STANDBY_MGR"
)

// okToStopGate retries ops.OkToStop up to attempts times, waiting delay
// between attempts, per §4.H.3.a's safety gate ("up to 4 attempts, 15
// seconds between attempts"). Adapted from the teacher's WaitManager.Wait
// polling idiom, generalized from a fixed wait-then-proceed into a
// retry-until-ok-or-exhausted loop.
func okToStopGate(ctx context.Context, check func(ctx context.Context) (bool, error), attempts int, delay time.Duration) (bool, error) {
	for i := 0; i < attempts; i++ {
		ok, err := check(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return false, nil
}
