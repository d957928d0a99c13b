package instancesave

import (
	"context"
	"time"

	"github.com/udisondev/wowgo/internal/model"
)

// SaveStore provides DB persistence for instance saves. Calls are
// blocking: effects are visible before the call returns.
type SaveStore interface {
	InsertInstance(ctx context.Context, row InstanceRow) error
	DeleteInstance(ctx context.Context, instanceID uint32) error
	LoadAllInstances(ctx context.Context) ([]InstanceRow, error)

	DeleteCharacterBind(ctx context.Context, characterID, instanceID uint32) error
	DeleteGroupBind(ctx context.Context, groupID, instanceID uint32) error

	LoadResetTimes(ctx context.Context) ([]ResetTimeRow, error)
	UpsertResetTime(ctx context.Context, mapID uint32, difficulty model.Difficulty, resetTime int64) error

	DeleteInstancesWithoutTemplate(ctx context.Context, validMapIDs []uint32) (int64, error)
	DeleteExpiredInstances(ctx context.Context, now int64) (int64, error)
	DeleteResetTimesWithoutTemplate(ctx context.Context, validMapIDs []uint32) (int64, error)
	DeleteOrphanBinds(ctx context.Context) (int64, error)

	UsedInstanceIDs(ctx context.Context) ([]uint32, error)
	RenumberInstance(ctx context.Context, oldID, newID uint32) error
}

// InstanceRow mirrors db.InstanceRow for decoupling.
type InstanceRow struct {
	InstanceID uint32
	MapID      uint32
	Difficulty model.Difficulty
	ResetTime  int64 // Unix seconds
	Permanent  bool
}

// ResetTimeRow mirrors db.ResetTimeRow for decoupling.
type ResetTimeRow struct {
	MapID      uint32
	Difficulty model.Difficulty
	ResetTime  int64 // Unix seconds
}

// Broadcaster delivers reset warnings to the session layer.
// Called outside the registry lock.
type Broadcaster interface {
	SendResetWarning(playerIDs, groupIDs []uint32, timeLeft time.Duration)
}

// MapGrid receives teardown requests for live instance maps whose save
// was discarded by a reset. Called outside the registry lock; the
// implementation may call back into the registry.
type MapGrid interface {
	RequestInstanceTeardown(mapID, instanceID uint32)
}
