package data

import (
	"log/slog"
	"time"

	"github.com/udisondev/wowgo/internal/model"
)

// mapDef — static map metadata literal.
type mapDef struct {
	id           uint32
	name         string
	instanceable bool
	raid         bool
	heroic       bool
}

// instanceDef — static instance template literal.
// resetDelay is the normal-difficulty global reset period (raids);
// heroicResetDelay applies to the heroic difficulty of dungeons.
type instanceDef struct {
	mapID            uint32
	name             string
	resetDelay       time.Duration
	heroicResetDelay time.Duration
}

var mapDefs = []mapDef{
	{id: 0, name: "Eastern Kingdoms"},
	{id: 1, name: "Kalimdor"},
	{id: 33, name: "Shadowfang Keep", instanceable: true},
	{id: 36, name: "The Deadmines", instanceable: true},
	{id: 409, name: "Molten Core", instanceable: true, raid: true},
	{id: 469, name: "Blackwing Lair", instanceable: true, raid: true},
	{id: 532, name: "Karazhan", instanceable: true, raid: true},
	{id: 540, name: "The Shattered Halls", instanceable: true, heroic: true},
	{id: 543, name: "Hellfire Ramparts", instanceable: true, heroic: true},
	{id: 545, name: "The Steamvault", instanceable: true, heroic: true},
}

var instanceDefs = []instanceDef{
	{mapID: 33, name: "Shadowfang Keep", resetDelay: 2 * time.Hour},
	{mapID: 36, name: "The Deadmines", resetDelay: 2 * time.Hour},
	{mapID: 409, name: "Molten Core", resetDelay: 7 * 24 * time.Hour},
	{mapID: 469, name: "Blackwing Lair", resetDelay: 7 * 24 * time.Hour},
	{mapID: 532, name: "Karazhan", resetDelay: 7 * 24 * time.Hour},
	{mapID: 540, name: "The Shattered Halls", resetDelay: 2 * time.Hour, heroicResetDelay: 24 * time.Hour},
	{mapID: 543, name: "Hellfire Ramparts", resetDelay: 2 * time.Hour, heroicResetDelay: 24 * time.Hour},
	{mapID: 545, name: "The Steamvault", resetDelay: 2 * time.Hour, heroicResetDelay: 24 * time.Hour},
}

var mapEntries map[uint32]*model.MapEntry

var instanceTemplates map[uint32]*model.InstanceTemplate

// LoadMaps builds the map-entry and instance-template lookup tables
// from the static literals. Called once at startup before any lookup.
func LoadMaps() error {
	mapEntries = make(map[uint32]*model.MapEntry, len(mapDefs))
	for _, def := range mapDefs {
		mapEntries[def.id] = &model.MapEntry{
			ID:           def.id,
			Name:         def.name,
			Instanceable: def.instanceable,
			Raid:         def.raid,
			Heroic:       def.heroic,
		}
	}

	instanceTemplates = make(map[uint32]*model.InstanceTemplate, len(instanceDefs))
	for _, def := range instanceDefs {
		instanceTemplates[def.mapID] = &model.InstanceTemplate{
			MapID:            def.mapID,
			Name:             def.name,
			ResetDelay:       def.resetDelay,
			HeroicResetDelay: def.heroicResetDelay,
		}
	}

	slog.Info("loaded map data",
		"maps", len(mapEntries),
		"instance_templates", len(instanceTemplates))
	return nil
}

// GetMapEntry returns static metadata for a map, or nil if unknown.
func GetMapEntry(mapID uint32) *model.MapEntry {
	return mapEntries[mapID]
}

// GetInstanceTemplate returns the instance template for a map, or nil
// if the map is not instanceable.
func GetInstanceTemplate(mapID uint32) *model.InstanceTemplate {
	return instanceTemplates[mapID]
}

// InstanceTemplateMapIDs returns the map IDs of all registered instance
// templates, for startup cleanup and reset-time bootstrap.
func InstanceTemplateMapIDs() []uint32 {
	ids := make([]uint32, 0, len(instanceTemplates))
	for id := range instanceTemplates {
		ids = append(ids, id)
	}
	return ids
}
