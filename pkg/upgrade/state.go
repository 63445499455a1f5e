package upgrade

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/zph/fleetd/pkg/configstore"
)

const stateKey = "upgrade_state"

// State is §3's UpgradeState singleton. Nil (absent) means no upgrade is
// in progress. Generalized from the teacher's per-node/per-phase
// MongoDB tracking structures (NodeState, PhaseState, FailoverEvent) down
// to the flat shape this domain's single-pass-per-tick algorithm needs —
// everything else is re-derived each tick from live daemon state rather
// than persisted.
type State struct {
	TargetName    string    `json:"target_name"`
	TargetID      string    `json:"target_id,omitempty"`
	TargetVersion string    `json:"target_version,omitempty"`
	ImageID       string    `json:"image_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	Paused        bool      `json:"paused,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StateManager persists State through a ConfigStore key, keeping the
// teacher's StateManager atomic-write idiom (FileStore already does
// write-temp-then-rename under the hood; this layer just owns
// marshal/unmarshal and the in-memory cached copy).
type StateManager struct {
	mu    sync.RWMutex
	store configstore.Store
	state *State
}

// NewStateManager constructs a StateManager over store. Call Load to
// hydrate any persisted state.
func NewStateManager(store configstore.Store) *StateManager {
	return &StateManager{store: store}
}

// Load hydrates state from the store; a missing key leaves State nil (no
// upgrade in progress).
func (sm *StateManager) Load() error {
	data, ok, err := sm.store.Get(stateKey)
	if err != nil {
		return err
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !ok {
		sm.state = nil
		return nil
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	sm.state = &s
	return nil
}

// State returns the current in-memory state, or nil if no upgrade is
// active.
func (sm *StateManager) State() *State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.state == nil {
		return nil
	}
	cp := *sm.state
	return &cp
}

// Save persists s and updates the in-memory copy.
func (sm *StateManager) Save(s *State) error {
	sm.mu.Lock()
	s.UpdatedAt = time.Now().UTC()
	sm.state = s
	cp := *s
	sm.mu.Unlock()

	data, err := json.Marshal(&cp)
	if err != nil {
		return err
	}
	return sm.store.Set(stateKey, data)
}

// Start begins a new upgrade toward targetName (an explicit image ref or a
// bare version string — §4.H "start accepts either an explicit image or a
// version string").
func (sm *StateManager) Start(targetName string) error {
	now := time.Now().UTC()
	return sm.Save(&State{TargetName: targetName, StartedAt: now, UpdatedAt: now})
}

// Pause sets paused=true on the current state.
func (sm *StateManager) Pause() error {
	s := sm.State()
	if s == nil {
		return nil
	}
	s.Paused = true
	return sm.Save(s)
}

// Resume clears paused and any recorded error (§4.H "resuming a paused
// upgrade clears paused").
func (sm *StateManager) Resume() error {
	s := sm.State()
	if s == nil {
		return nil
	}
	s.Paused = false
	s.Error = ""
	return sm.Save(s)
}

// Stop drops the upgrade state entirely (§4.H "stopping drops state").
func (sm *StateManager) Stop() error {
	sm.mu.Lock()
	sm.state = nil
	sm.mu.Unlock()
	return sm.store.Delete(stateKey)
}

// Fail records err on the state and pauses it (§4.H failure handling:
// "pull failures ... move state to paused=true").
func (sm *StateManager) Fail(errMsg string) error {
	s := sm.State()
	if s == nil {
		return nil
	}
	s.Error = errMsg
	s.Paused = true
	return sm.Save(s)
}
