package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zph/fleetd/pkg/configstore"
	"github.com/zph/fleetd/pkg/executor"
)

type countingWaker struct{ n int }

func (w *countingWaker) Wake() { w.n++ }

func newTestInventory() (*Inventory, *executor.FakeRemote, *countingWaker) {
	remote := executor.NewFakeRemote()
	waker := &countingWaker{}
	inv := New(configstore.NewMemStore(), remote, waker, time.Minute, 10*time.Minute, 5*time.Minute)
	return inv, remote, waker
}

func TestAddHost_RejectsInvalidHostname(t *testing.T) {
	inv, _, _ := newTestInventory()
	err := inv.AddHost("bad host", "", nil)
	require.Error(t, err)
}

func TestAddHost_RejectsTooLongHostname(t *testing.T) {
	inv, _, _ := newTestInventory()
	long := ""
	for i := 0; i < 251; i++ {
		long += "a"
	}
	err := inv.AddHost(long, "", nil)
	require.Error(t, err)
}

func TestAddHost_FailsCheckHostLeavesInventoryUnchanged(t *testing.T) {
	inv, remote, _ := newTestInventory()
	remote.HostChecks["node1"] = executor.HostCheckResult{Hostname: "node1", OK: false, Reason: "unreachable"}

	err := inv.AddHost("node1", "", nil)
	require.Error(t, err)
	assert.Empty(t, inv.Hosts())
}

func TestAddHost_SucceedsPersistsAndWakes(t *testing.T) {
	inv, _, waker := newTestInventory()
	err := inv.AddHost("node1", "10.0.0.1", []string{"mgr"})
	require.NoError(t, err)
	assert.Equal(t, 1, waker.n)

	e, ok := inv.Get("node1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", e.Addr)
	assert.True(t, e.Labels["mgr"])
}

func TestAddHost_RemoveHost_RoundTripLeavesNoResidue(t *testing.T) {
	inv, remote, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "", nil))
	inv.DaemonCache().Set("node1", nil)

	require.NoError(t, inv.RemoveHost("node1"))
	assert.Empty(t, inv.Hosts())
	_, ok := inv.DaemonCache().Get("node1")
	assert.False(t, ok)
	assert.True(t, remote.Closed("node1"))
}

func TestRemoveHost_UnknownIsNotFound(t *testing.T) {
	inv, _, _ := newTestInventory()
	err := inv.RemoveHost("nope")
	require.Error(t, err)
}

func TestUpdateHostAddr_ClosesOldConnection(t *testing.T) {
	inv, remote, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "10.0.0.1", nil))
	require.NoError(t, inv.UpdateHostAddr("node1", "10.0.0.2"))

	e, _ := inv.Get("node1")
	assert.Equal(t, "10.0.0.2", e.Addr)
	assert.True(t, remote.Closed("node1"))
}

func TestHostLabels_AddRemove(t *testing.T) {
	inv, _, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "", nil))
	require.NoError(t, inv.AddHostLabel("node1", "mon"))

	assert.Equal(t, []string{"node1"}, inv.HostsWithLabel("mon"))

	require.NoError(t, inv.RemoveHostLabel("node1", "mon"))
	assert.Empty(t, inv.HostsWithLabel("mon"))
}

func TestGetDaemons_NeverRefreshedReturnsSyntheticEntry(t *testing.T) {
	inv, _, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "", nil))

	out, err := inv.GetDaemons(context.Background(), Filter{}, false, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "*", out[0].Type)
	assert.Equal(t, "*", out[0].ID)
}

func TestGetDaemons_RefreshTrueParsesLsAndStampsStyle(t *testing.T) {
	inv, remote, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "", nil))
	remote.SetResponse("node1", "ls", executor.Result{
		Stdout: `[{"style":"cephadm:v1","name":"mgr.a","fsid":"f1","image_name":"img","image_id":"id1","version":"1.0"}]`,
	})

	out, err := inv.GetDaemons(context.Background(), Filter{}, true, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "mgr", out[0].Type)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "cephadm:v1", out[0].Style)
}

func TestGetDaemons_FilterByFSIDExcludesMismatch(t *testing.T) {
	inv, remote, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "", nil))
	remote.SetResponse("node1", "ls", executor.Result{
		Stdout: `[{"style":"cephadm:v1","name":"mgr.a","fsid":"f1"},{"style":"cephadm:v1","name":"mgr.b","fsid":"other"}]`,
	})

	out, err := inv.GetDaemons(context.Background(), Filter{FSID: "f1"}, true, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "mgr.a", out[0].Name())
}

func TestGetDaemons_NonCephadmStyleExcluded(t *testing.T) {
	inv, remote, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "", nil))
	remote.SetResponse("node1", "ls", executor.Result{
		Stdout: `[{"style":"legacy","name":"mgr.a"}]`,
	})

	out, err := inv.GetDaemons(context.Background(), Filter{}, true, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGetDaemons_MaybeRefreshSkipsFreshEntries(t *testing.T) {
	inv, remote, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "", nil))
	remote.SetResponse("node1", "ls", executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.a"}]`})

	_, err := inv.GetDaemons(context.Background(), Filter{}, true, false)
	require.NoError(t, err)
	require.Len(t, remote.Calls, 1)

	_, err = inv.GetDaemons(context.Background(), Filter{}, false, true)
	require.NoError(t, err)
	assert.Len(t, remote.Calls, 1, "fresh entry must not trigger another refresh")
}

func TestGetDaemons_PerHostFailureDoesNotAbortPass(t *testing.T) {
	inv, remote, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "", nil))
	require.NoError(t, inv.AddHost("node2", "", nil))
	remote.Handler = func(host string, req executor.Request) (executor.Result, error) {
		if host == "node1" {
			return executor.Result{}, assertErr("boom")
		}
		return executor.Result{Stdout: `[{"style":"cephadm:v1","name":"mgr.b"}]`}, nil
	}

	out, err := inv.GetDaemons(context.Background(), Filter{}, true, false)
	require.Error(t, err)
	found := false
	for _, d := range out {
		if d.Name() == "mgr.b" {
			found = true
		}
	}
	assert.True(t, found, "node2's results must still be returned despite node1 failing")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
