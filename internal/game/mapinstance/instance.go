// Package mapinstance tracks the live copies of instanceable maps: the
// actual running dungeons and raids players walk around in. A live copy
// exists only while someone needs it; the save that remembers who is
// bound to the copy lives independently in the save registry.
package mapinstance

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/wowgo/internal/model"
)

// State represents the lifecycle state of a live map copy.
type State int32

const (
	StateActive     State = iota // players can enter
	StateDestroying              // teardown in progress
	StateDestroyed               // fully torn down
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateDestroying:
		return "DESTROYING"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// DefaultEmptyDelay is how long an empty copy lingers before teardown.
// Gives a zoning party time to come back without regenerating the map.
const DefaultEmptyDelay = 5 * time.Minute

// MapInstance is one running copy of an instanceable map.
// Thread-safe for concurrent access.
type MapInstance struct {
	mu sync.RWMutex

	id         uint32
	mapID      uint32
	difficulty model.Difficulty
	createdAt  time.Time
	state      atomic.Int32

	// Players currently physically inside (character id set).
	players map[uint32]struct{}

	emptyTimer *time.Timer
	emptyDelay time.Duration
}

func newMapInstance(id, mapID uint32, d model.Difficulty) *MapInstance {
	inst := &MapInstance{
		id:         id,
		mapID:      mapID,
		difficulty: d,
		createdAt:  time.Now(),
		players:    make(map[uint32]struct{}, 8),
		emptyDelay: DefaultEmptyDelay,
	}
	inst.state.Store(int32(StateActive))
	return inst
}

// ID returns the instance id shared with the save registry and storage.
func (i *MapInstance) ID() uint32 { return i.id }

// MapID returns the map this copy was generated from.
func (i *MapInstance) MapID() uint32 { return i.mapID }

// Difficulty returns the difficulty the copy was generated at.
func (i *MapInstance) Difficulty() model.Difficulty { return i.difficulty }

// CreatedAt returns when the copy was generated.
func (i *MapInstance) CreatedAt() time.Time { return i.createdAt }

// State returns the current lifecycle state.
func (i *MapInstance) State() State { return State(i.state.Load()) }

func (i *MapInstance) setState(s State) { i.state.Store(int32(s)) }

// EmptyDelay returns the teardown delay for an empty copy.
func (i *MapInstance) EmptyDelay() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.emptyDelay
}

// SetEmptyDelay configures the teardown delay for an empty copy.
func (i *MapInstance) SetEmptyDelay(d time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.emptyDelay = d
}

// addPlayer puts a player inside the copy. Returns false if already inside.
// Cancels a pending empty-teardown timer.
func (i *MapInstance) addPlayer(characterID uint32) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.players[characterID]; ok {
		return false
	}
	i.players[characterID] = struct{}{}

	if i.emptyTimer != nil {
		i.emptyTimer.Stop()
		i.emptyTimer = nil
	}
	return true
}

// removePlayer takes a player out of the copy. empty reports whether the
// copy is now vacant and should be scheduled for teardown.
func (i *MapInstance) removePlayer(characterID uint32) (removed, empty bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.players[characterID]; !ok {
		return false, false
	}
	delete(i.players, characterID)
	return true, len(i.players) == 0
}

// HasPlayer reports whether the player is inside this copy.
func (i *MapInstance) HasPlayer(characterID uint32) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.players[characterID]
	return ok
}

// PlayerCount returns the number of players inside.
func (i *MapInstance) PlayerCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.players)
}

// Players returns a copy of the character ids inside.
func (i *MapInstance) Players() []uint32 {
	i.mu.RLock()
	defer i.mu.RUnlock()

	ids := make([]uint32, 0, len(i.players))
	for id := range i.players {
		ids = append(ids, id)
	}
	return ids
}

func (i *MapInstance) setEmptyTimer(t *time.Timer) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.emptyTimer = t
}
