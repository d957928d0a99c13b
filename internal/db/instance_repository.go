package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InstanceRow represents a row from the instance table.
type InstanceRow struct {
	InstanceID uint32
	MapID      uint32
	Difficulty int16
	ResetTime  int64 // Unix seconds
	Permanent  bool
}

// ResetTimeRow represents a row from instance_reset.
type ResetTimeRow struct {
	MapID      uint32
	Difficulty int16
	ResetTime  int64 // Unix seconds
}

// InstanceRepository provides CRUD for the instance save DB tables.
type InstanceRepository struct {
	pool *pgxpool.Pool
}

// NewInstanceRepository creates a new InstanceRepository.
func NewInstanceRepository(pool *pgxpool.Pool) *InstanceRepository {
	return &InstanceRepository{pool: pool}
}

// --- instance ---

// InsertInstance inserts or updates an instance save record.
func (r *InstanceRepository) InsertInstance(ctx context.Context, row InstanceRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO instance (id, map_id, difficulty, reset_time, permanent)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   map_id     = EXCLUDED.map_id,
		   difficulty = EXCLUDED.difficulty,
		   reset_time = EXCLUDED.reset_time,
		   permanent  = EXCLUDED.permanent`,
		int64(row.InstanceID), int64(row.MapID), row.Difficulty, row.ResetTime, row.Permanent)
	if err != nil {
		return fmt.Errorf("upsert instance %d: %w", row.InstanceID, err)
	}
	return nil
}

// DeleteInstance removes an instance record together with all character
// and group binds referencing it, in one transaction.
func (r *InstanceRepository) DeleteInstance(ctx context.Context, instanceID uint32) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete instance %d: %w", instanceID, err)
	}
	defer tx.Rollback(ctx)

	id := int64(instanceID)
	if _, err := tx.Exec(ctx,
		`DELETE FROM character_instance WHERE instance_id = $1`, id); err != nil {
		return fmt.Errorf("delete character binds for instance %d: %w", instanceID, err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM group_instance WHERE instance_id = $1`, id); err != nil {
		return fmt.Errorf("delete group binds for instance %d: %w", instanceID, err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM instance WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete instance %d: %w", instanceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete instance %d: %w", instanceID, err)
	}
	return nil
}

// LoadAllInstances loads all persisted instance save records.
func (r *InstanceRepository) LoadAllInstances(ctx context.Context) ([]InstanceRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, map_id, difficulty, reset_time, permanent FROM instance ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query instance: %w", err)
	}
	defer rows.Close()

	var result []InstanceRow
	for rows.Next() {
		var (
			row    InstanceRow
			id, mp int64
		)
		if err := rows.Scan(&id, &mp, &row.Difficulty, &row.ResetTime, &row.Permanent); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		row.InstanceID = uint32(id)
		row.MapID = uint32(mp)
		result = append(result, row)
	}
	return result, rows.Err()
}

// --- character_instance / group_instance ---

// InsertCharacterBind records a character-to-instance bind.
func (r *InstanceRepository) InsertCharacterBind(ctx context.Context, characterID, instanceID uint32, permanent bool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO character_instance (character_id, instance_id, permanent)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (character_id, instance_id) DO UPDATE SET permanent = EXCLUDED.permanent`,
		int64(characterID), int64(instanceID), permanent)
	if err != nil {
		return fmt.Errorf("upsert character bind %d/%d: %w", characterID, instanceID, err)
	}
	return nil
}

// InsertGroupBind records a group-to-instance bind.
func (r *InstanceRepository) InsertGroupBind(ctx context.Context, groupID, instanceID uint32, permanent bool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO group_instance (group_id, instance_id, permanent)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (group_id, instance_id) DO UPDATE SET permanent = EXCLUDED.permanent`,
		int64(groupID), int64(instanceID), permanent)
	if err != nil {
		return fmt.Errorf("upsert group bind %d/%d: %w", groupID, instanceID, err)
	}
	return nil
}

// DeleteCharacterBind removes a character-to-instance bind.
func (r *InstanceRepository) DeleteCharacterBind(ctx context.Context, characterID, instanceID uint32) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM character_instance WHERE character_id = $1 AND instance_id = $2`,
		int64(characterID), int64(instanceID))
	if err != nil {
		return fmt.Errorf("delete character bind %d/%d: %w", characterID, instanceID, err)
	}
	return nil
}

// DeleteGroupBind removes a group-to-instance bind.
func (r *InstanceRepository) DeleteGroupBind(ctx context.Context, groupID, instanceID uint32) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM group_instance WHERE group_id = $1 AND instance_id = $2`,
		int64(groupID), int64(instanceID))
	if err != nil {
		return fmt.Errorf("delete group bind %d/%d: %w", groupID, instanceID, err)
	}
	return nil
}

// --- instance_reset ---

// LoadResetTimes loads all persisted global reset times.
func (r *InstanceRepository) LoadResetTimes(ctx context.Context) ([]ResetTimeRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT map_id, difficulty, reset_time FROM instance_reset`)
	if err != nil {
		return nil, fmt.Errorf("query instance_reset: %w", err)
	}
	defer rows.Close()

	var result []ResetTimeRow
	for rows.Next() {
		var (
			row ResetTimeRow
			mp  int64
		)
		if err := rows.Scan(&mp, &row.Difficulty, &row.ResetTime); err != nil {
			return nil, fmt.Errorf("scan instance_reset: %w", err)
		}
		row.MapID = uint32(mp)
		result = append(result, row)
	}
	return result, rows.Err()
}

// UpsertResetTime stores the global reset time for a (map, difficulty) pair.
func (r *InstanceRepository) UpsertResetTime(ctx context.Context, mapID uint32, difficulty int16, resetTime int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO instance_reset (map_id, difficulty, reset_time)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (map_id, difficulty) DO UPDATE SET reset_time = EXCLUDED.reset_time`,
		int64(mapID), difficulty, resetTime)
	if err != nil {
		return fmt.Errorf("upsert instance_reset map %d diff %d: %w", mapID, difficulty, err)
	}
	return nil
}

// --- startup cleanup ---

// DeleteInstancesWithoutTemplate removes instance records (and their binds)
// whose map is not in the given template set. Returns the number of
// instance rows removed. Used by the startup cleanup sweep after content
// changes invalidate old maps.
func (r *InstanceRepository) DeleteInstancesWithoutTemplate(ctx context.Context, validMapIDs []uint32) (int64, error) {
	valid := make([]int64, len(validMapIDs))
	for i, id := range validMapIDs {
		valid[i] = int64(id)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin template cleanup: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM character_instance
		 WHERE instance_id IN (SELECT id FROM instance WHERE NOT (map_id = ANY($1)))`,
		valid); err != nil {
		return 0, fmt.Errorf("delete character binds without template: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM group_instance
		 WHERE instance_id IN (SELECT id FROM instance WHERE NOT (map_id = ANY($1)))`,
		valid); err != nil {
		return 0, fmt.Errorf("delete group binds without template: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM instance WHERE NOT (map_id = ANY($1))`, valid)
	if err != nil {
		return 0, fmt.Errorf("delete instances without template: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit template cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredInstances removes non-permanent instance rows (and their
// binds) whose reset time passed at or before now. Startup catch-up for
// resets missed while the server was down. Returns the number of
// instance rows removed.
func (r *InstanceRepository) DeleteExpiredInstances(ctx context.Context, now int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin expired cleanup: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM character_instance
		 WHERE instance_id IN (SELECT id FROM instance WHERE NOT permanent AND reset_time <= $1)`,
		now); err != nil {
		return 0, fmt.Errorf("delete character binds of expired instances: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM group_instance
		 WHERE instance_id IN (SELECT id FROM instance WHERE NOT permanent AND reset_time <= $1)`,
		now); err != nil {
		return 0, fmt.Errorf("delete group binds of expired instances: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM instance WHERE NOT permanent AND reset_time <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired instances: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit expired cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteResetTimesWithoutTemplate removes persisted global reset times
// for maps no longer in content. Returns the number of rows removed.
func (r *InstanceRepository) DeleteResetTimesWithoutTemplate(ctx context.Context, validMapIDs []uint32) (int64, error) {
	valid := make([]int64, len(validMapIDs))
	for i, id := range validMapIDs {
		valid[i] = int64(id)
	}
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM instance_reset WHERE NOT (map_id = ANY($1))`, valid)
	if err != nil {
		return 0, fmt.Errorf("delete reset times without template: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOrphanBinds removes character and group binds whose instance row
// no longer exists. Returns the total number of bind rows removed.
func (r *InstanceRepository) DeleteOrphanBinds(ctx context.Context) (int64, error) {
	tag1, err := r.pool.Exec(ctx,
		`DELETE FROM character_instance ci
		 WHERE NOT EXISTS (SELECT 1 FROM instance i WHERE i.id = ci.instance_id)`)
	if err != nil {
		return 0, fmt.Errorf("delete orphan character binds: %w", err)
	}
	tag2, err := r.pool.Exec(ctx,
		`DELETE FROM group_instance gi
		 WHERE NOT EXISTS (SELECT 1 FROM instance i WHERE i.id = gi.instance_id)`)
	if err != nil {
		return tag1.RowsAffected(), fmt.Errorf("delete orphan group binds: %w", err)
	}
	return tag1.RowsAffected() + tag2.RowsAffected(), nil
}

// --- instance id packing ---

// UsedInstanceIDs returns all persisted instance ids in ascending order.
func (r *InstanceRepository) UsedInstanceIDs(ctx context.Context) ([]uint32, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM instance ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query instance ids: %w", err)
	}
	defer rows.Close()

	var result []uint32
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instance id: %w", err)
		}
		result = append(result, uint32(id))
	}
	return result, rows.Err()
}

// RenumberInstance changes an instance id across all three tables in one
// transaction. The target id must be free.
func (r *InstanceRepository) RenumberInstance(ctx context.Context, oldID, newID uint32) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin renumber instance %d: %w", oldID, err)
	}
	defer tx.Rollback(ctx)

	from, to := int64(oldID), int64(newID)
	if _, err := tx.Exec(ctx,
		`UPDATE instance SET id = $1 WHERE id = $2`, to, from); err != nil {
		return fmt.Errorf("renumber instance %d -> %d: %w", oldID, newID, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE character_instance SET instance_id = $1 WHERE instance_id = $2`, to, from); err != nil {
		return fmt.Errorf("renumber character binds %d -> %d: %w", oldID, newID, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE group_instance SET instance_id = $1 WHERE instance_id = $2`, to, from); err != nil {
		return fmt.Errorf("renumber group binds %d -> %d: %w", oldID, newID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit renumber instance %d: %w", oldID, err)
	}
	return nil
}
