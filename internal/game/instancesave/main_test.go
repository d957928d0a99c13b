package instancesave

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/udisondev/wowgo/internal/data"
	"github.com/udisondev/wowgo/internal/model"
)

func TestMain(m *testing.M) {
	if err := data.LoadMaps(); err != nil {
		fmt.Fprintf(os.Stderr, "LoadMaps failed: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// mockSaveStore implements SaveStore for testing.
type mockSaveStore struct {
	mu         sync.Mutex
	instances  map[uint32]InstanceRow
	charBinds  map[[2]uint32]bool // (characterID, instanceID) → permanent
	groupBinds map[[2]uint32]bool
	resetTimes map[mapDifficulty]int64

	insertCalls int
	deleted     []uint32
	renumbered  [][2]uint32
}

func newMockSaveStore() *mockSaveStore {
	return &mockSaveStore{
		instances:  make(map[uint32]InstanceRow),
		charBinds:  make(map[[2]uint32]bool),
		groupBinds: make(map[[2]uint32]bool),
		resetTimes: make(map[mapDifficulty]int64),
	}
}

func (s *mockSaveStore) InsertInstance(_ context.Context, row InstanceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[row.InstanceID] = row
	s.insertCalls++
	return nil
}

func (s *mockSaveStore) DeleteInstance(_ context.Context, instanceID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, instanceID)
	for key := range s.charBinds {
		if key[1] == instanceID {
			delete(s.charBinds, key)
		}
	}
	for key := range s.groupBinds {
		if key[1] == instanceID {
			delete(s.groupBinds, key)
		}
	}
	s.deleted = append(s.deleted, instanceID)
	return nil
}

func (s *mockSaveStore) LoadAllInstances(_ context.Context) ([]InstanceRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]InstanceRow, 0, len(s.instances))
	for _, row := range s.instances {
		result = append(result, row)
	}
	return result, nil
}

func (s *mockSaveStore) DeleteCharacterBind(_ context.Context, characterID, instanceID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.charBinds, [2]uint32{characterID, instanceID})
	return nil
}

func (s *mockSaveStore) DeleteGroupBind(_ context.Context, groupID, instanceID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupBinds, [2]uint32{groupID, instanceID})
	return nil
}

func (s *mockSaveStore) LoadResetTimes(_ context.Context) ([]ResetTimeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]ResetTimeRow, 0, len(s.resetTimes))
	for key, t := range s.resetTimes {
		result = append(result, ResetTimeRow{MapID: key.mapID, Difficulty: key.difficulty, ResetTime: t})
	}
	return result, nil
}

func (s *mockSaveStore) UpsertResetTime(_ context.Context, mapID uint32, d model.Difficulty, resetTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetTimes[mapDifficulty{mapID, d}] = resetTime
	return nil
}

func (s *mockSaveStore) DeleteInstancesWithoutTemplate(_ context.Context, validMapIDs []uint32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	valid := make(map[uint32]struct{}, len(validMapIDs))
	for _, id := range validMapIDs {
		valid[id] = struct{}{}
	}
	var removed int64
	for id, row := range s.instances {
		if _, ok := valid[row.MapID]; !ok {
			delete(s.instances, id)
			removed++
		}
	}
	return removed, nil
}

func (s *mockSaveStore) DeleteExpiredInstances(_ context.Context, now int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, row := range s.instances {
		if row.Permanent || row.ResetTime > now {
			continue
		}
		delete(s.instances, id)
		for key := range s.charBinds {
			if key[1] == id {
				delete(s.charBinds, key)
			}
		}
		for key := range s.groupBinds {
			if key[1] == id {
				delete(s.groupBinds, key)
			}
		}
		removed++
	}
	return removed, nil
}

func (s *mockSaveStore) DeleteResetTimesWithoutTemplate(_ context.Context, validMapIDs []uint32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	valid := make(map[uint32]struct{}, len(validMapIDs))
	for _, id := range validMapIDs {
		valid[id] = struct{}{}
	}
	var removed int64
	for key := range s.resetTimes {
		if _, ok := valid[key.mapID]; !ok {
			delete(s.resetTimes, key)
			removed++
		}
	}
	return removed, nil
}

func (s *mockSaveStore) DeleteOrphanBinds(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key := range s.charBinds {
		if _, ok := s.instances[key[1]]; !ok {
			delete(s.charBinds, key)
			removed++
		}
	}
	for key := range s.groupBinds {
		if _, ok := s.instances[key[1]]; !ok {
			delete(s.groupBinds, key)
			removed++
		}
	}
	return removed, nil
}

func (s *mockSaveStore) UsedInstanceIDs(_ context.Context) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint32, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *mockSaveStore) RenumberInstance(_ context.Context, oldID, newID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.instances[oldID]
	if !ok {
		return fmt.Errorf("instance %d not found", oldID)
	}
	delete(s.instances, oldID)
	row.InstanceID = newID
	s.instances[newID] = row
	s.renumbered = append(s.renumbered, [2]uint32{oldID, newID})
	return nil
}

func (s *mockSaveStore) hasInstance(instanceID uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.instances[instanceID]
	return ok
}

func (s *mockSaveStore) hasCharBind(characterID, instanceID uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.charBinds[[2]uint32{characterID, instanceID}]
	return ok
}

func (s *mockSaveStore) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertCalls
}
