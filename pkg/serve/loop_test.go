package serve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zph/fleetd/pkg/clusterops"
	"github.com/zph/fleetd/pkg/configstore"
	"github.com/zph/fleetd/pkg/daemon"
	"github.com/zph/fleetd/pkg/executor"
	"github.com/zph/fleetd/pkg/inventory"
	"github.com/zph/fleetd/pkg/upgrade"
)

type fakeHealth struct {
	set   map[string]string
	clear map[string]bool
}

func newFakeHealth() *fakeHealth {
	return &fakeHealth{set: map[string]string{}, clear: map[string]bool{}}
}
func (h *fakeHealth) Set(name, detail string) { h.set[name] = detail; delete(h.clear, name) }
func (h *fakeHealth) Clear(name string)        { h.clear[name] = true; delete(h.set, name) }

type fakeClusterView struct {
	daemons []daemon.Description
	err     error
	calls   int
}

func (f *fakeClusterView) ReportedDaemons(ctx context.Context) ([]daemon.Description, error) {
	f.calls++
	return f.daemons, f.err
}

func newTestLoop(t *testing.T) (*Loop, *inventory.Inventory, *executor.FakeRemote, *fakeHealth) {
	remote := executor.NewFakeRemote()
	inv := inventory.New(configstore.NewMemStore(), remote, nil, time.Minute, 10*time.Minute, 5*time.Minute)
	health := newFakeHealth()
	l := NewLoop(inv, remote, nil, nil, health, NewGate())
	return l, inv, remote, health
}

func TestTick_HostCheckFailureSetsHealth(t *testing.T) {
	l, inv, remote, health := newTestLoop(t)
	require.NoError(t, inv.AddHost("h1", "", nil))
	remote.HostChecks["h1"] = executor.HostCheckResult{Hostname: "h1", OK: false, Reason: "unreachable"}

	l.checkHosts(context.Background())

	assert.Contains(t, health.set, healthHostCheckFailed)
}

func TestTick_HostCheckAllOkClearsHealth(t *testing.T) {
	l, inv, _, health := newTestLoop(t)
	require.NoError(t, inv.AddHost("h1", "", nil))
	health.set[healthHostCheckFailed] = "stale"

	l.checkHosts(context.Background())

	assert.NotContains(t, health.set, healthHostCheckFailed)
	assert.True(t, health.clear[healthHostCheckFailed])
}

func TestTick_RefreshFailureSkipsStrayAndUpgrade(t *testing.T) {
	l, inv, remote, health := newTestLoop(t)
	require.NoError(t, inv.AddHost("h1", "", nil))
	remote.Handler = func(host string, req executor.Request) (executor.Result, error) {
		if req.Command == "ls" {
			return executor.Result{}, assertErr("boom")
		}
		return executor.Result{}, nil
	}
	cluster := &fakeClusterView{}
	l.Cluster = cluster

	l.tick(context.Background())

	assert.Contains(t, health.set, healthRefreshFailed)
	assert.Equal(t, 0, cluster.calls, "stray detection must be skipped after a refresh failure")
}

func TestTick_StrayHostDetected(t *testing.T) {
	l, inv, remote, health := newTestLoop(t)
	require.NoError(t, inv.AddHost("h1", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[]`})
	l.Cluster = &fakeClusterView{daemons: []daemon.Description{
		{Type: "mon", ID: "x", Host: "h9"},
	}}

	l.tick(context.Background())

	assert.Contains(t, health.set["CEPHADM_STRAY_HOST"], "h9")
	assert.NotContains(t, health.set, healthStrayDaemon)
}

func TestTick_StrayDaemonDetected(t *testing.T) {
	l, inv, remote, health := newTestLoop(t)
	require.NoError(t, inv.AddHost("h1", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mon.a"}]`})
	l.Cluster = &fakeClusterView{daemons: []daemon.Description{
		{Type: "mon", ID: "a", Host: "h1"},
		{Type: "mon", ID: "rogue", Host: "h1"},
	}}

	l.tick(context.Background())

	assert.Contains(t, health.set["CEPHADM_STRAY_DAEMON"], "mon.rogue")
	assert.NotContains(t, health.set, healthStrayHost)
}

func TestTick_NoStrayClearsHealth(t *testing.T) {
	l, inv, remote, health := newTestLoop(t)
	require.NoError(t, inv.AddHost("h1", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mon.a"}]`})
	health.set[healthStrayHost] = "stale"
	health.set[healthStrayDaemon] = "stale"
	l.Cluster = &fakeClusterView{daemons: []daemon.Description{
		{Type: "mon", ID: "a", Host: "h1"},
	}}

	l.tick(context.Background())

	assert.NotContains(t, health.set, healthStrayHost)
	assert.NotContains(t, health.set, healthStrayDaemon)
}

func newTestEngineForLoop(t *testing.T, inv *inventory.Inventory, remote *executor.FakeRemote, health HealthSink) *upgrade.Engine {
	ops := clusterops.NewFake()
	lc := daemon.NewLifecycle(remote, ops, inv.DaemonCache(), "fsid-test")
	sm := upgrade.NewStateManager(configstore.NewMemStore())
	e := upgrade.NewEngine(sm, inv, ops, lc, health)
	e.OkToStopDelay = time.Millisecond
	return e
}

func TestTick_UpgradeStepSkippedWhenNoActiveUpgrade(t *testing.T) {
	l, inv, remote, health := newTestLoop(t)
	require.NoError(t, inv.AddHost("h1", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[]`})
	e := newTestEngineForLoop(t, inv, remote, health)
	l.Engine = e

	l.tick(context.Background())
}

func TestTick_UpgradeStepSkippedWhenPaused(t *testing.T) {
	l, inv, remote, health := newTestLoop(t)
	require.NoError(t, inv.AddHost("h1", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[]`})
	e := newTestEngineForLoop(t, inv, remote, health)
	require.NoError(t, e.States.Start("target:v2"))
	require.NoError(t, e.States.Pause())
	l.Engine = e

	l.tick(context.Background())

	assert.True(t, e.States.State().Paused)
}

func TestTick_UpgradeStepInvokedWhenActiveAndNotPaused(t *testing.T) {
	l, inv, remote, health := newTestLoop(t)
	require.NoError(t, inv.AddHost("h1", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{
		Stdout: `[{"style":"cephadm:v1","name":"mgr.a","image_id":"image-id-target:v2"}]`,
	})
	e := newTestEngineForLoop(t, inv, remote, health)
	require.NoError(t, e.States.Start("target:v2"))
	s := e.States.State()
	s.TargetID = "image-id-target:v2"
	require.NoError(t, e.States.Save(s))
	l.Engine = e

	l.tick(context.Background())

	assert.Nil(t, e.States.State(), "all daemons already at target should clear upgrade state")
}

func TestRun_ReturnsPromptlyOnContextCancel(t *testing.T) {
	l, _, _, _ := newTestLoop(t)
	l.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly on cancellation")
	}
}

func TestRun_GateWakesLoopBeforeInterval(t *testing.T) {
	l, inv, remote, health := newTestLoop(t)
	l.Interval = time.Hour
	require.NoError(t, inv.AddHost("h1", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[]`})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	l.Gate.Wake()

	require.Eventually(t, func() bool {
		return health.clear[healthHostCheckFailed]
	}, time.Second, time.Millisecond, "gate wake should trigger an immediate tick")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
