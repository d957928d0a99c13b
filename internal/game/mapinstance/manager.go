package mapinstance

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/wowgo/internal/data"
	"github.com/udisondev/wowgo/internal/model"
)

// SaveTracker is the save-registry surface the manager notifies when a
// live copy starts or stops backing a save. Interface for decoupling.
type SaveTracker interface {
	SetInstanceUsedByMap(instanceID uint32, used bool)
}

// Manager owns every live map copy and allocates their instance ids.
// It implements the teardown signal the save registry's reset sweep
// sends when a copy holding players must go away.
// Thread-safe for concurrent access.
type Manager struct {
	mu        sync.RWMutex
	instances map[uint32]*MapInstance // instance id → copy
	byPlayer  map[uint32]uint32       // character id → instance id
	saves     SaveTracker

	nextID atomic.Uint32
}

// NewManager creates an empty manager. BindSaves must be called before
// copies are created if save tracking is wanted.
func NewManager() *Manager {
	return &Manager{
		instances: make(map[uint32]*MapInstance, 16),
		byPlayer:  make(map[uint32]uint32, 64),
	}
}

// BindSaves attaches the save registry. Separate from construction
// because the registry itself is built with the manager as its grid.
func (m *Manager) BindSaves(t SaveTracker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = t
}

// SeedNextID advances id allocation past the highest id already present
// in storage, so new copies never collide with persisted saves.
func (m *Manager) SeedNextID(maxUsed uint32) {
	for {
		cur := m.nextID.Load()
		if cur >= maxUsed {
			return
		}
		if m.nextID.CompareAndSwap(cur, maxUsed) {
			return
		}
	}
}

func (m *Manager) tracker() SaveTracker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// CreateInstance generates a new live copy of an instanceable map and
// allocates its instance id. The copy immediately counts as using its
// save; callers create the save with the returned id.
func (m *Manager) CreateInstance(mapID uint32, d model.Difficulty) (*MapInstance, error) {
	entry := data.GetMapEntry(mapID)
	if entry == nil {
		return nil, ErrMapNotFound
	}
	if !entry.Instanceable {
		return nil, ErrMapNotInstanceable
	}
	if !d.Valid() {
		return nil, ErrInvalidDifficulty
	}

	id := m.nextID.Add(1)
	inst := newMapInstance(id, mapID, d)

	m.mu.Lock()
	m.instances[id] = inst
	m.mu.Unlock()

	if t := m.tracker(); t != nil {
		t.SetInstanceUsedByMap(id, true)
	}

	slog.Debug("map instance created",
		"instance", id, "map", mapID, "difficulty", d)
	return inst, nil
}

// EnterInstance puts a player inside a live copy.
func (m *Manager) EnterInstance(instanceID, characterID uint32) error {
	m.mu.RLock()
	inst, ok := m.instances[instanceID]
	if !ok {
		m.mu.RUnlock()
		return ErrInstanceNotFound
	}
	if _, inside := m.byPlayer[characterID]; inside {
		m.mu.RUnlock()
		return ErrAlreadyInside
	}
	m.mu.RUnlock()

	if inst.State() != StateActive {
		return ErrInstanceDestroyed
	}
	if !inst.addPlayer(characterID) {
		return ErrAlreadyInside
	}

	m.mu.Lock()
	m.byPlayer[characterID] = instanceID
	m.mu.Unlock()

	slog.Debug("player entered map instance",
		"character", characterID, "instance", instanceID)
	return nil
}

// ExitInstance takes a player out of their current copy. A copy left
// empty lingers for its empty delay before being torn down.
func (m *Manager) ExitInstance(characterID uint32) (*MapInstance, error) {
	m.mu.RLock()
	instanceID, ok := m.byPlayer[characterID]
	inst := m.instances[instanceID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotInside
	}

	if inst == nil {
		m.mu.Lock()
		delete(m.byPlayer, characterID)
		m.mu.Unlock()
		return nil, ErrInstanceNotFound
	}

	removed, empty := inst.removePlayer(characterID)
	if !removed {
		return nil, ErrNotInside
	}

	m.mu.Lock()
	delete(m.byPlayer, characterID)
	m.mu.Unlock()

	slog.Debug("player left map instance",
		"character", characterID, "instance", instanceID, "empty", empty)

	if empty {
		m.scheduleEmptyTeardown(inst)
	}
	return inst, nil
}

// DestroyInstance tears down a live copy and tells the save registry the
// copy no longer backs its save.
func (m *Manager) DestroyInstance(instanceID uint32) error {
	m.mu.Lock()
	inst, ok := m.instances[instanceID]
	if !ok {
		m.mu.Unlock()
		return ErrInstanceNotFound
	}
	delete(m.instances, instanceID)
	for charID, id := range m.byPlayer {
		if id == instanceID {
			delete(m.byPlayer, charID)
		}
	}
	m.mu.Unlock()

	inst.setState(StateDestroyed)

	if t := m.tracker(); t != nil {
		t.SetInstanceUsedByMap(instanceID, false)
	}

	slog.Debug("map instance destroyed",
		"instance", instanceID, "map", inst.MapID())
	return nil
}

// RequestInstanceTeardown is the reset sweep signal: the copy's save has
// been discarded and the live map must go away. A copy of a different
// map under the same id is left alone.
func (m *Manager) RequestInstanceTeardown(mapID, instanceID uint32) {
	m.mu.RLock()
	inst, ok := m.instances[instanceID]
	m.mu.RUnlock()
	if !ok || inst.MapID() != mapID {
		return
	}

	inst.setState(StateDestroying)
	if err := m.DestroyInstance(instanceID); err != nil {
		slog.Error("tear down map instance",
			"instance", instanceID, "map", mapID, "error", err)
	}
}

// GetInstance returns a live copy by id, or nil.
func (m *Manager) GetInstance(instanceID uint32) *MapInstance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.instances[instanceID]
}

// GetPlayerInstance returns the copy a player is inside, or nil.
func (m *Manager) GetPlayerInstance(characterID uint32) *MapInstance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPlayer[characterID]
	if !ok {
		return nil
	}
	return m.instances[id]
}

// IsInside reports whether the player is inside any live copy.
func (m *Manager) IsInside(characterID uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byPlayer[characterID]
	return ok
}

// InstanceCount returns the number of live copies.
func (m *Manager) InstanceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}

// scheduleEmptyTeardown starts the linger timer for a vacant copy.
// A player entering before it fires cancels the teardown.
func (m *Manager) scheduleEmptyTeardown(inst *MapInstance) {
	delay := inst.EmptyDelay()
	if delay <= 0 {
		inst.setState(StateDestroying)
		if err := m.DestroyInstance(inst.ID()); err != nil {
			slog.Error("destroy empty map instance",
				"instance", inst.ID(), "error", err)
		}
		return
	}

	timer := time.AfterFunc(delay, func() {
		if inst.PlayerCount() > 0 {
			return
		}
		if inst.State() == StateDestroyed {
			return
		}
		inst.setState(StateDestroying)
		if err := m.DestroyInstance(inst.ID()); err != nil {
			slog.Error("destroy empty map instance after timeout",
				"instance", inst.ID(), "error", err)
		}
	})
	inst.setEmptyTimer(timer)
}
