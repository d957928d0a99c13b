package instancesave

import (
	"context"
	"time"

	"github.com/udisondev/wowgo/internal/model"
)

// Save is the record binding one generated instance copy to the players and
// groups currently tied to it. Created either when a new instance copy is
// generated, when a player bound to an existing instance id first logs in,
// or when a bound group is loaded.
//
// A Save holds associations by character/group id only; it owns neither.
// It is destroyed by the registry when both id sets are empty and no live
// map is backed by it.
//
// Save is not internally synchronized: every mutation goes through the
// owning SaveRegistry, which serializes access under its lock.
type Save struct {
	mapID      uint32
	instanceID uint32
	difficulty model.Difficulty
	resetTime  time.Time
	canReset   bool
	usedByMap  bool

	players map[uint32]struct{}
	groups  map[uint32]struct{}
}

func newSave(mapID, instanceID uint32, difficulty model.Difficulty, resetTime time.Time, canReset bool) *Save {
	return &Save{
		mapID:      mapID,
		instanceID: instanceID,
		difficulty: difficulty,
		resetTime:  resetTime,
		canReset:   canReset,
		players:    make(map[uint32]struct{}, 4),
		groups:     make(map[uint32]struct{}, 1),
	}
}

func (s *Save) MapID() uint32                { return s.mapID }
func (s *Save) InstanceID() uint32           { return s.instanceID }
func (s *Save) Difficulty() model.Difficulty { return s.difficulty }

// ResetTime returns the absolute time of the next expiration.
func (s *Save) ResetTime() time.Time { return s.resetTime }

// SetResetTime overwrites the expiration time. Normal operation only moves
// it forward; a forced global reset may move it back.
func (s *Save) SetResetTime(t time.Time) { s.resetTime = t }

// CanReset reports whether the save may be discarded at reset time.
// False while any permanently bound player or group exists, cached here
// so the check works when those players are offline.
func (s *Save) CanReset() bool            { return s.canReset }
func (s *Save) SetCanReset(canReset bool) { s.canReset = canReset }

// UsedByMap reports whether a live map instance is currently backed by
// this save. A map does not always exist for a save: saves are created on
// player login, maps only when someone actually enters.
func (s *Save) UsedByMap() bool { return s.usedByMap }

// SetUsedByMap updates the live-map flag. On transition to false it
// reports whether the save is now eligible for destruction.
func (s *Save) SetUsedByMap(state bool) bool {
	s.usedByMap = state
	if !state {
		return s.unloadable()
	}
	return false
}

// AddPlayer associates a player with the save. Callers are expected not
// to double-add.
func (s *Save) AddPlayer(characterID uint32) {
	s.players[characterID] = struct{}{}
}

// RemovePlayer drops a player association (absent id is a no-op) and
// reports whether the save is now eligible for destruction. The registry
// performs the actual release; the save never destroys itself.
func (s *Save) RemovePlayer(characterID uint32) bool {
	delete(s.players, characterID)
	return s.unloadable()
}

// AddGroup associates a group with the save.
func (s *Save) AddGroup(groupID uint32) {
	s.groups[groupID] = struct{}{}
}

// RemoveGroup drops a group association and reports destroy-eligibility.
func (s *Save) RemoveGroup(groupID uint32) bool {
	delete(s.groups, groupID)
	return s.unloadable()
}

func (s *Save) PlayerCount() int { return len(s.players) }
func (s *Save) GroupCount() int  { return len(s.groups) }

// BoundPlayers returns the ids of all currently associated players.
func (s *Save) BoundPlayers() []uint32 {
	ids := make([]uint32, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	return ids
}

// BoundGroups returns the ids of all currently associated groups.
func (s *Save) BoundGroups() []uint32 {
	ids := make([]uint32, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	return ids
}

// unbindAll clears every player and group association. Used during a
// global reset when the save is being discarded.
func (s *Save) unbindAll() {
	clear(s.players)
	clear(s.groups)
}

func (s *Save) unloadable() bool {
	return len(s.players) == 0 && len(s.groups) == 0 && !s.usedByMap
}

// SaveToDB persists the save's identity row. Called once, when a genuinely
// new instance copy is generated (not when restoring from storage).
func (s *Save) SaveToDB(ctx context.Context, store SaveStore) error {
	return store.InsertInstance(ctx, InstanceRow{
		InstanceID: s.instanceID,
		MapID:      s.mapID,
		Difficulty: s.difficulty,
		ResetTime:  s.ResetTimeForDB().Unix(),
		Permanent:  !s.canReset,
	})
}

// DeleteFromDB removes the persisted row and cascades removal of all
// character and group binds for this instance id. Called only when a
// reset permanently discards the identity.
func (s *Save) DeleteFromDB(ctx context.Context, store SaveStore) error {
	return store.DeleteInstance(ctx, s.instanceID)
}

// ResetTimeForDB returns the reset time as written to storage. Stored
// as-is: the persisted and in-memory values are intentionally identical.
func (s *Save) ResetTimeForDB() time.Time {
	return s.resetTime
}
