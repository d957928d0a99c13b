package main

import (
	"context"

	"github.com/udisondev/wowgo/internal/db"
	"github.com/udisondev/wowgo/internal/game/instancesave"
	"github.com/udisondev/wowgo/internal/model"
)

// instanceStoreAdapter adapts db.InstanceRepository to instancesave.SaveStore.
type instanceStoreAdapter struct {
	repo *db.InstanceRepository
}

func (a *instanceStoreAdapter) InsertInstance(ctx context.Context, row instancesave.InstanceRow) error {
	return a.repo.InsertInstance(ctx, db.InstanceRow{
		InstanceID: row.InstanceID,
		MapID:      row.MapID,
		Difficulty: int16(row.Difficulty),
		ResetTime:  row.ResetTime,
		Permanent:  row.Permanent,
	})
}

func (a *instanceStoreAdapter) DeleteInstance(ctx context.Context, instanceID uint32) error {
	return a.repo.DeleteInstance(ctx, instanceID)
}

func (a *instanceStoreAdapter) LoadAllInstances(ctx context.Context) ([]instancesave.InstanceRow, error) {
	rows, err := a.repo.LoadAllInstances(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]instancesave.InstanceRow, len(rows))
	for i, r := range rows {
		result[i] = instancesave.InstanceRow{
			InstanceID: r.InstanceID,
			MapID:      r.MapID,
			Difficulty: model.Difficulty(r.Difficulty),
			ResetTime:  r.ResetTime,
			Permanent:  r.Permanent,
		}
	}
	return result, nil
}

func (a *instanceStoreAdapter) DeleteCharacterBind(ctx context.Context, characterID, instanceID uint32) error {
	return a.repo.DeleteCharacterBind(ctx, characterID, instanceID)
}

func (a *instanceStoreAdapter) DeleteGroupBind(ctx context.Context, groupID, instanceID uint32) error {
	return a.repo.DeleteGroupBind(ctx, groupID, instanceID)
}

func (a *instanceStoreAdapter) LoadResetTimes(ctx context.Context) ([]instancesave.ResetTimeRow, error) {
	rows, err := a.repo.LoadResetTimes(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]instancesave.ResetTimeRow, len(rows))
	for i, r := range rows {
		result[i] = instancesave.ResetTimeRow{
			MapID:      r.MapID,
			Difficulty: model.Difficulty(r.Difficulty),
			ResetTime:  r.ResetTime,
		}
	}
	return result, nil
}

func (a *instanceStoreAdapter) UpsertResetTime(ctx context.Context, mapID uint32, difficulty model.Difficulty, resetTime int64) error {
	return a.repo.UpsertResetTime(ctx, mapID, int16(difficulty), resetTime)
}

func (a *instanceStoreAdapter) DeleteInstancesWithoutTemplate(ctx context.Context, validMapIDs []uint32) (int64, error) {
	return a.repo.DeleteInstancesWithoutTemplate(ctx, validMapIDs)
}

func (a *instanceStoreAdapter) DeleteExpiredInstances(ctx context.Context, now int64) (int64, error) {
	return a.repo.DeleteExpiredInstances(ctx, now)
}

func (a *instanceStoreAdapter) DeleteResetTimesWithoutTemplate(ctx context.Context, validMapIDs []uint32) (int64, error) {
	return a.repo.DeleteResetTimesWithoutTemplate(ctx, validMapIDs)
}

func (a *instanceStoreAdapter) DeleteOrphanBinds(ctx context.Context) (int64, error) {
	return a.repo.DeleteOrphanBinds(ctx)
}

func (a *instanceStoreAdapter) UsedInstanceIDs(ctx context.Context) ([]uint32, error) {
	return a.repo.UsedInstanceIDs(ctx)
}

func (a *instanceStoreAdapter) RenumberInstance(ctx context.Context, oldID, newID uint32) error {
	return a.repo.RenumberInstance(ctx, oldID, newID)
}
