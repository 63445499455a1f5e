package upgrade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zph/fleetd/pkg/configstore"
)

func TestStateManager_StartPersistsAndLoads(t *testing.T) {
	store := configstore.NewMemStore()
	sm := NewStateManager(store)

	require.NoError(t, sm.Start("my-image:v2"))
	assert.Equal(t, "my-image:v2", sm.State().TargetName)

	sm2 := NewStateManager(store)
	require.NoError(t, sm2.Load())
	require.NotNil(t, sm2.State())
	assert.Equal(t, "my-image:v2", sm2.State().TargetName)
}

func TestStateManager_PauseResumeClearsError(t *testing.T) {
	sm := NewStateManager(configstore.NewMemStore())
	require.NoError(t, sm.Start("img"))
	require.NoError(t, sm.Fail("pull failed"))
	assert.True(t, sm.State().Paused)
	assert.Equal(t, "pull failed", sm.State().Error)

	require.NoError(t, sm.Resume())
	assert.False(t, sm.State().Paused)
	assert.Empty(t, sm.State().Error)
}

func TestStateManager_StopDropsState(t *testing.T) {
	sm := NewStateManager(configstore.NewMemStore())
	require.NoError(t, sm.Start("img"))
	require.NoError(t, sm.Stop())
	assert.Nil(t, sm.State())
}

func TestStateManager_PauseOnAbsentStateIsNoop(t *testing.T) {
	sm := NewStateManager(configstore.NewMemStore())
	require.NoError(t, sm.Pause())
	assert.Nil(t, sm.State())
}
