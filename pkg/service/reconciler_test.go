package service

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
	"github.com/zph/fleetd/pkg/ferrors"
	"github.com/zph/fleetd/pkg/inventory"
	"github.com/zph/fleetd/pkg/placement"
)

func newTestReconciler(t *testing.T, connective ManagerConnectivity) (*Reconciler, *inventory.Inventory, *executor.FakeRemote) {
	remote := executor.NewFakeRemote()
	inv := inventory.New(configstore.NewMemStore(), remote, nil, time.Minute, 10*time.Minute, 5*time.Minute)
	ops := clusterops.NewFake()
	lc := daemon.NewLifecycle(remote, ops, inv.DaemonCache(), "fsid-test")
	return NewReconciler(inv, lc, connective), inv, remote
}

func TestApply_DeltaZeroIsNoop(t *testing.T) {
	r, inv, remote := newTestReconciler(t, nil)
	require.NoError(t, inv.AddHost("h1", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.a"}]`})

	spec := &placement.ServiceSpec{Type: "mgr", Placement: placement.Spec{Hosts: []placement.HostEntry{{Hostname: "h1"}}}}
	res, err := r.Apply(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "the requested number exists", res.Status)
}

func TestApply_ScaleUpCreatesOnVacantHosts(t *testing.T) {
	r, inv, remote := newTestReconciler(t, nil)
	require.NoError(t, inv.AddHost("h1", "", nil))
	require.NoError(t, inv.AddHost("h2", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[]`})
	remote.SetResponse("h2", "ls", executor.Result{Stdout: `[]`})

	spec := &placement.ServiceSpec{Type: "mgr", Name: "mgr", Placement: placement.Spec{Hosts: []placement.HostEntry{{Hostname: "h1"}, {Hostname: "h2"}}}}
	res, err := r.Apply(context.Background(), spec)
	require.NoError(t, err)
	assert.Len(t, res.Created, 2)
}

func TestApply_ScaleUpInsufficientHostsIsPlacementError(t *testing.T) {
	r, inv, remote := newTestReconciler(t, nil)
	require.NoError(t, inv.AddHost("h1", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.a"}]`})

	spec := &placement.ServiceSpec{Type: "mgr", Placement: placement.Spec{
		Hosts: []placement.HostEntry{{Hostname: "h1"}, {Hostname: "h1"}},
	}}
	_, err := r.Apply(context.Background(), spec)
	require.Error(t, err)
}

func TestApply_ScaleDownRemovesExcess(t *testing.T) {
	r, inv, remote := newTestReconciler(t, nil)
	require.NoError(t, inv.AddHost("h1", "", nil))
	require.NoError(t, inv.AddHost("h2", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"osd.a"}]`})
	remote.SetResponse("h2", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"osd.b"}]`})

	spec := &placement.ServiceSpec{Type: "osd", Placement: placement.Spec{Hosts: []placement.HostEntry{{Hostname: "h1"}}}}
	res, err := r.Apply(context.Background(), spec)
	require.NoError(t, err)
	assert.Len(t, res.Removed, 1)
}

func TestApply_MonitorDownscaleIsUnsupported(t *testing.T) {
	r, inv, remote := newTestReconciler(t, nil)
	require.NoError(t, inv.AddHost("h1", "", nil))
	require.NoError(t, inv.AddHost("h2", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mon.a"}]`})
	remote.SetResponse("h2", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mon.b"}]`})

	spec := &placement.ServiceSpec{Type: "mon", Placement: placement.Spec{Hosts: []placement.HostEntry{{Hostname: "h1", Network: "10.0.0.0/24"}}}}
	_, err := r.Apply(context.Background(), spec)
	require.Error(t, err)
	assert.True(t, ferrors.Is(err, ferrors.KindUnsupportedOperation))
}

type fakeConnectivity struct {
	unconnected map[string]bool
	active      string
}

func (f fakeConnectivity) Unconnected(names []string) map[string]bool { return f.unconnected }

func (f fakeConnectivity) ActiveManager() (string, error) { return f.active, nil }

func TestApply_ScaleDownPrefersUnconnectedManagers(t *testing.T) {
	connective := fakeConnectivity{unconnected: map[string]bool{"mgr.b": true}}
	r, inv, remote := newTestReconciler(t, connective)
	require.NoError(t, inv.AddHost("h1", "", nil))
	require.NoError(t, inv.AddHost("h2", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.a"}]`})
	remote.SetResponse("h2", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.b"}]`})

	spec := &placement.ServiceSpec{Type: "mgr", Placement: placement.Spec{Hosts: []placement.HostEntry{{Hostname: "h1"}}}}
	res, err := r.Apply(context.Background(), spec)
	require.NoError(t, err)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, "mgr.b", res.Removed[0])
}

func TestApply_ScaleDownNeverDoubleQueuesAVictim(t *testing.T) {
	connective := fakeConnectivity{unconnected: map[string]bool{"mgr.a": true, "mgr.b": true}}
	r, inv, remote := newTestReconciler(t, connective)
	require.NoError(t, inv.AddHost("h1", "", nil))
	require.NoError(t, inv.AddHost("h2", "", nil))
	require.NoError(t, inv.AddHost("h3", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.a"}]`})
	remote.SetResponse("h2", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.b"}]`})
	remote.SetResponse("h3", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.c"}]`})

	spec := &placement.ServiceSpec{Type: "mgr", Placement: placement.Spec{Hosts: []placement.HostEntry{{Hostname: "h3"}}}}
	res, err := r.Apply(context.Background(), spec)
	require.NoError(t, err)
	require.Len(t, res.Removed, 2)
	assert.NotEqual(t, res.Removed[0], res.Removed[1], "the fallback pass must not re-queue a victim already selected by the priority pass")
}

func TestApply_ScaleDownFallbackNeverRemovesActiveManager(t *testing.T) {
	connective := fakeConnectivity{unconnected: map[string]bool{}, active: "mgr.a"}
	r, inv, remote := newTestReconciler(t, connective)
	require.NoError(t, inv.AddHost("h1", "", nil))
	require.NoError(t, inv.AddHost("h2", "", nil))
	require.NoError(t, inv.AddHost("h3", "", nil))
	remote.SetResponse("h1", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.a"}]`})
	remote.SetResponse("h2", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.b"}]`})
	remote.SetResponse("h3", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.c"}]`})

	spec := &placement.ServiceSpec{Type: "mgr", Placement: placement.Spec{Hosts: []placement.HostEntry{{Hostname: "h1"}}}}
	res, err := r.Apply(context.Background(), spec)
	require.NoError(t, err)
	require.Len(t, res.Removed, 2)
	assert.NotContains(t, res.Removed, "mgr.a", "the active manager must never be removed by the fallback pass")
}
