package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zph/fleetd/pkg/executor"
)

func TestGetDevices_RefreshesAndDecodesDeviceList(t *testing.T) {
	inv, remote, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "", nil))
	remote.SetResponse("node1", "device-ls", executor.Result{Stdout: `[
		{"path": "/dev/sda", "size": 1000, "rotational": true, "available": false},
		{"path": "/dev/sdb", "size": 2000, "rotational": false, "available": true}
	]`})

	devices, err := inv.GetDevices(context.Background(), nil, true)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "/dev/sda", devices[0].Path)
	assert.EqualValues(t, 1000, devices[0].Size)
	assert.True(t, devices[0].Rotational)
	assert.False(t, devices[0].Available)
	assert.False(t, devices[0].LastRefresh.IsZero())

	assert.Equal(t, "/dev/sdb", devices[1].Path)
	assert.True(t, devices[1].Available)
}

func TestGetDevices_SkipsRefreshWhenCacheFresh(t *testing.T) {
	inv, remote, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "", nil))
	remote.SetResponse("node1", "device-ls", executor.Result{Stdout: `[{"path": "/dev/sda", "size": 1, "rotational": false, "available": true}]`})

	_, err := inv.GetDevices(context.Background(), nil, true)
	require.NoError(t, err)
	calls := len(remote.Calls)

	_, err = inv.GetDevices(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Len(t, remote.Calls, calls, "cache still fresh: no second device-ls call")
}

func TestGetDevices_BadJSONIsReportedPerHost(t *testing.T) {
	inv, remote, _ := newTestInventory()
	require.NoError(t, inv.AddHost("node1", "", nil))
	remote.SetResponse("node1", "device-ls", executor.Result{Stdout: "not json"})

	_, err := inv.GetDevices(context.Background(), nil, true)
	require.Error(t, err)
}

func TestGetDevices_UnknownHostFilterReturnsEmpty(t *testing.T) {
	inv, remote, _ := newTestInventory()
	remote.SetResponse("ghost", "device-ls", executor.Result{Stdout: "[]"})
	devices, err := inv.GetDevices(context.Background(), []string{"ghost"}, true)
	require.NoError(t, err)
	assert.Empty(t, devices)
}
