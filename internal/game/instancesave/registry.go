package instancesave

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/wowgo/internal/data"
	"github.com/udisondev/wowgo/internal/model"
)

// fallbackResetDelay bounds a fresh copy's lifetime when its map has no
// template configured; templated maps use their own reset delay.
const fallbackResetDelay = 2 * time.Hour

// SaveRegistry is the sole owner of all instance saves. It mediates
// creation and removal, runs the startup cleanup and packing sweeps,
// and executes the resets fired by its scheduler.
//
// The saves index and every Save's association sets are guarded by mu.
// Outbound calls (store, broadcaster, grid) are made with mu released;
// while a global reset sweep is iterating, removal requests are deferred
// instead of mutating the index mid-sweep.
type SaveRegistry struct {
	store       SaveStore
	broadcaster Broadcaster
	grid        MapGrid
	sched       *ResetScheduler

	mu          sync.Mutex
	saves       map[uint32]*Save
	sweepActive bool
	deferred    []uint32
}

// NewSaveRegistry creates a registry with its scheduler. broadcaster and
// grid may be nil; the corresponding signals are then dropped.
func NewSaveRegistry(store SaveStore, broadcaster Broadcaster, grid MapGrid, resetHour int) *SaveRegistry {
	r := &SaveRegistry{
		store:       store,
		broadcaster: broadcaster,
		grid:        grid,
		saves:       make(map[uint32]*Save, 64),
	}
	r.sched = newResetScheduler(store, r, resetHour)
	return r
}

// Scheduler returns the owned reset scheduler.
func (r *SaveRegistry) Scheduler() *ResetScheduler {
	return r.sched
}

// Update drives one scheduler tick, firing every due reset and warning
// event before returning.
func (r *SaveRegistry) Update(ctx context.Context, now time.Time) {
	r.sched.Update(ctx, now)
}

// AddInstanceSave returns the save for instanceID, creating it when
// absent (get-or-create; a second call with the same id returns the
// existing save unchanged). With load=false the save represents a freshly
// generated instance and its row is persisted immediately; load=true
// restores from storage and performs no write.
//
// A zero resetTime is initialized from the global reset cache for
// raid/heroic pairs, or from the map template's reset delay for a fresh
// normal dungeon copy. For non-global maps the per-instance reset event
// is scheduled as well.
func (r *SaveRegistry) AddInstanceSave(ctx context.Context, mapID, instanceID uint32, d model.Difficulty, resetTime time.Time, canReset, load bool) (*Save, error) {
	if instanceID == 0 {
		return nil, ErrInvalidInstanceID
	}
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

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.saves[instanceID]; ok {
		return s, nil
	}

	now := time.Now()
	global := entry.UsesGlobalReset(d)
	if resetTime.IsZero() {
		if global {
			resetTime = r.sched.GetResetTimeFor(mapID, d)
		}
		if resetTime.IsZero() {
			period := GetMaxResetTimeFor(data.GetInstanceTemplate(mapID), d)
			if period <= 0 {
				period = fallbackResetDelay
			}
			resetTime = now.Add(period)
		}
	}
	if !global {
		// A reset time already in the past fires on the next tick: the
		// copy expired while the server was down.
		r.sched.ScheduleReset(true, resetTime,
			ResetEvent{Type: ResetEventDungeon, MapID: mapID, Difficulty: d, InstanceID: instanceID})
	}

	s := newSave(mapID, instanceID, d, resetTime, canReset)
	r.saves[instanceID] = s

	if !load {
		// Best effort: in-memory state stays authoritative when the
		// write fails.
		if err := s.SaveToDB(ctx, r.store); err != nil {
			slog.Error("persist instance save",
				"instance", instanceID, "map", mapID, "error", err)
		}
	}

	slog.Debug("instance save added",
		"instance", instanceID, "map", mapID,
		"difficulty", d, "reset_time", resetTime, "load", load)
	return s, nil
}

// GetInstanceSave returns the save for instanceID, or nil if absent.
func (r *SaveRegistry) GetInstanceSave(instanceID uint32) *Save {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[instanceID]
}

// RemoveInstanceSave erases the save for instanceID from the index, if
// present. During an active reset sweep the removal is deferred until
// the sweep completes.
func (r *SaveRegistry) RemoveInstanceSave(instanceID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(instanceID)
}

func (r *SaveRegistry) removeLocked(instanceID uint32) {
	if r.sweepActive {
		r.deferred = append(r.deferred, instanceID)
		return
	}
	s, ok := r.saves[instanceID]
	if !ok {
		return
	}
	delete(r.saves, instanceID)

	// A released dungeon save takes its queued reset event with it.
	if entry := data.GetMapEntry(s.mapID); entry != nil && !entry.UsesGlobalReset(s.difficulty) {
		r.sched.ScheduleReset(false, time.Time{},
			ResetEvent{Type: ResetEventDungeon, MapID: s.mapID, Difficulty: s.difficulty, InstanceID: instanceID})
	}
}

// BindPlayer associates an online player with a save.
func (r *SaveRegistry) BindPlayer(instanceID, characterID uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.saves[instanceID]
	if !ok {
		return ErrSaveNotFound
	}
	s.AddPlayer(characterID)
	return nil
}

// UnbindPlayer drops a player association (logout, zone-out). The
// durable bind row is untouched. Reports whether the save was released.
func (r *SaveRegistry) UnbindPlayer(instanceID, characterID uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.saves[instanceID]
	if !ok {
		return false
	}
	if s.RemovePlayer(characterID) {
		r.removeLocked(instanceID)
		return true
	}
	return false
}

// BindGroup associates a loaded group with a save.
func (r *SaveRegistry) BindGroup(instanceID, groupID uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.saves[instanceID]
	if !ok {
		return ErrSaveNotFound
	}
	s.AddGroup(groupID)
	return nil
}

// UnbindGroup drops a group association. Reports whether the save was
// released.
func (r *SaveRegistry) UnbindGroup(instanceID, groupID uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.saves[instanceID]
	if !ok {
		return false
	}
	if s.RemoveGroup(groupID) {
		r.removeLocked(instanceID)
		return true
	}
	return false
}

// ReleasePlayerBind drops the association and deletes the durable bind
// row: the player explicitly abandons the instance.
func (r *SaveRegistry) ReleasePlayerBind(ctx context.Context, instanceID, characterID uint32) error {
	r.UnbindPlayer(instanceID, characterID)
	return r.store.DeleteCharacterBind(ctx, characterID, instanceID)
}

// ReleaseGroupBind drops the association and deletes the durable bind row.
func (r *SaveRegistry) ReleaseGroupBind(ctx context.Context, instanceID, groupID uint32) error {
	r.UnbindGroup(instanceID, groupID)
	return r.store.DeleteGroupBind(ctx, groupID, instanceID)
}

// SetInstanceUsedByMap flags whether a live map instance is backed by the
// save. Dropping the flag releases a save nothing references anymore.
func (r *SaveRegistry) SetInstanceUsedByMap(instanceID uint32, used bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.saves[instanceID]
	if !ok {
		return
	}
	if s.SetUsedByMap(used) {
		r.removeLocked(instanceID)
	}
}

// GetNumInstanceSaves returns the number of live saves.
func (r *SaveRegistry) GetNumInstanceSaves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

// GetNumBoundPlayersTotal sums the player associations across all saves.
func (r *SaveRegistry) GetNumBoundPlayersTotal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, s := range r.saves {
		total += s.PlayerCount()
	}
	return total
}

// GetNumBoundGroupsTotal sums the group associations across all saves.
func (r *SaveRegistry) GetNumBoundGroupsTotal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, s := range r.saves {
		total += s.GroupCount()
	}
	return total
}

// DeleteInstanceFromDB removes the persisted rows for one instance id,
// cascading its character and group binds.
func (r *SaveRegistry) DeleteInstanceFromDB(ctx context.Context, instanceID uint32) error {
	return r.store.DeleteInstance(ctx, instanceID)
}

// CleanupInstances runs once at startup, before normal operation:
// deletes persisted instances whose map no longer has a template,
// non-permanent instances whose reset time passed during downtime, and
// bind rows whose instance row is gone, keeping storage consistent with
// current content.
func (r *SaveRegistry) CleanupInstances(ctx context.Context) error {
	validMaps := data.InstanceTemplateMapIDs()
	stale, err := r.store.DeleteInstancesWithoutTemplate(ctx, validMaps)
	if err != nil {
		return err
	}
	expired, err := r.store.DeleteExpiredInstances(ctx, time.Now().Unix())
	if err != nil {
		return err
	}
	staleResets, err := r.store.DeleteResetTimesWithoutTemplate(ctx, validMaps)
	if err != nil {
		return err
	}
	orphans, err := r.store.DeleteOrphanBinds(ctx)
	if err != nil {
		return err
	}
	rows, err := r.store.LoadAllInstances(ctx)
	if err != nil {
		return err
	}
	slog.Info("cleaned up instances",
		"stale_instances", stale, "expired_instances", expired,
		"stale_reset_times", staleResets,
		"orphan_binds", orphans, "remaining", len(rows))
	return nil
}

// PackInstances compacts the persisted instance id space: ids of
// permanently vacated identities are renumbered downward to close gaps.
// Ids still referenced by live saves keep their numbers.
func (r *SaveRegistry) PackInstances(ctx context.Context) error {
	ids, err := r.store.UsedInstanceIDs(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	live := make(map[uint32]struct{}, len(r.saves))
	for id := range r.saves {
		live[id] = struct{}{}
	}
	r.mu.Unlock()

	packed := 0
	next := uint32(1)
	for _, id := range ids {
		if _, ok := live[id]; ok {
			continue
		}
		for {
			if _, ok := live[next]; !ok {
				break
			}
			next++
		}
		if next != id {
			if err := r.store.RenumberInstance(ctx, id, next); err != nil {
				return err
			}
			packed++
		}
		next++
	}

	if packed > 0 {
		slog.Info("packed instance ids", "renumbered", packed)
	}
	return nil
}

// CleanupExpiredInstancesAtTime sweeps every save whose reset time has
// passed and that nothing is holding onto, removing and deleting it.
// Catch-up pass after downtime, not the primary reset path.
func (r *SaveRegistry) CleanupExpiredInstancesAtTime(ctx context.Context, t time.Time) {
	r.mu.Lock()
	var expired []uint32
	for id, s := range r.saves {
		if !s.ResetTime().After(t) && s.CanReset() && !s.UsedByMap() {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		r.removeLocked(id)
	}
	r.mu.Unlock()

	for _, id := range expired {
		if err := r.store.DeleteInstance(ctx, id); err != nil {
			slog.Error("delete expired instance", "instance", id, "error", err)
		}
	}
	if len(expired) > 0 {
		slog.Info("cleaned up expired instances", "count", len(expired))
	}
}

// resetOrWarnAll handles a fired global event for (map, difficulty).
// warn=true broadcasts the remaining time to everyone bound to the pair.
// warn=false discards every resettable save, advances the cached reset
// time to the next cycle and schedules it.
func (r *SaveRegistry) resetOrWarnAll(ctx context.Context, mapID uint32, d model.Difficulty, warn bool, timeLeft time.Duration) {
	if warn {
		r.mu.Lock()
		var players, groups []uint32
		for _, s := range r.saves {
			if s.mapID != mapID || s.difficulty != d {
				continue
			}
			players = append(players, s.BoundPlayers()...)
			groups = append(groups, s.BoundGroups()...)
		}
		r.mu.Unlock()

		if r.broadcaster != nil && (len(players) > 0 || len(groups) > 0) {
			r.broadcaster.SendResetWarning(players, groups, timeLeft)
		}
		slog.Debug("instance reset warning",
			"map", mapID, "difficulty", d, "time_left", timeLeft)
		return
	}

	now := time.Now()

	type target struct {
		id        uint32
		usedByMap bool
	}

	// Mark the sweep and snapshot the saves to reset. Saves with a
	// permanently bound player or group survive with their rows intact.
	r.mu.Lock()
	r.sweepActive = true
	var targets []target
	for id, s := range r.saves {
		if s.mapID == mapID && s.difficulty == d && s.CanReset() {
			targets = append(targets, target{id: id, usedByMap: s.UsedByMap()})
		}
	}
	r.mu.Unlock()

	// Persist and signal outside the lock. Removal requests from grid
	// callbacks are deferred while the sweep is active.
	for _, t := range targets {
		if err := r.store.DeleteInstance(ctx, t.id); err != nil {
			slog.Error("delete instance on global reset",
				"instance", t.id, "error", err)
		}
		if t.usedByMap && r.grid != nil {
			r.grid.RequestInstanceTeardown(mapID, t.id)
		}
	}

	// Drop the reset saves and release deferred removals.
	r.mu.Lock()
	for _, t := range targets {
		if s, ok := r.saves[t.id]; ok {
			s.unbindAll()
			delete(r.saves, t.id)
		}
	}
	r.sweepActive = false
	deferred := r.deferred
	r.deferred = nil
	for _, id := range deferred {
		r.removeLocked(id)
	}
	r.mu.Unlock()

	period := GetMaxResetTimeFor(data.GetInstanceTemplate(mapID), d)
	if period <= 0 {
		slog.Warn("no reset period for map, cycle not rescheduled",
			"map", mapID, "difficulty", d)
		return
	}
	next := r.sched.GetResetTimeFor(mapID, d).Add(period)
	if !next.After(now) {
		next = now.Add(period)
	}
	r.sched.SetResetTimeFor(mapID, d, next)

	// Surviving non-resettable saves roll over to the next cycle's expiry.
	r.mu.Lock()
	for _, s := range r.saves {
		if s.mapID == mapID && s.difficulty == d {
			s.SetResetTime(next)
		}
	}
	r.mu.Unlock()

	if err := r.store.UpsertResetTime(ctx, mapID, d, next.Unix()); err != nil {
		slog.Error("persist reset time",
			"map", mapID, "difficulty", d, "error", err)
	}
	r.sched.scheduleGlobalReset(now, next, mapID, d)

	slog.Info("global instance reset",
		"map", mapID, "difficulty", d,
		"reset", len(targets), "next_reset", next)
}

// resetInstance handles a fired per-instance event: resets exactly one
// dungeon-type save, independent of other copies of the same map.
func (r *SaveRegistry) resetInstance(ctx context.Context, mapID, instanceID uint32) {
	r.mu.Lock()
	s, ok := r.saves[instanceID]
	if !ok || s.mapID != mapID {
		r.mu.Unlock()
		return
	}
	usedByMap := s.UsedByMap()
	s.unbindAll()
	r.removeLocked(instanceID)
	r.mu.Unlock()

	if err := r.store.DeleteInstance(ctx, instanceID); err != nil {
		slog.Error("delete instance on reset",
			"instance", instanceID, "error", err)
	}
	if usedByMap && r.grid != nil {
		r.grid.RequestInstanceTeardown(mapID, instanceID)
	}

	slog.Debug("instance reset", "map", mapID, "instance", instanceID)
}
