package model

// MapEntry is the static metadata for one map.
// Determines whether instance copies of the map reset individually
// (normal dungeons) or globally per (map, difficulty) pair (raids and
// heroic dungeons).
type MapEntry struct {
	ID           uint32
	Name         string
	Instanceable bool // map is entered through generated instance copies
	Raid         bool // raid map: single difficulty, global weekly reset
	Heroic       bool // dungeon offers a heroic difficulty with a global daily reset
}

// IsDungeon reports whether the map is a normal (non-raid) instanceable dungeon.
func (e *MapEntry) IsDungeon() bool {
	return e.Instanceable && !e.Raid
}

// IsRaid reports whether the map is a raid map.
func (e *MapEntry) IsRaid() bool {
	return e.Raid
}

// UsesGlobalReset reports whether instance copies of the map at the given
// difficulty all reset at the same global time instead of individually.
func (e *MapEntry) UsesGlobalReset(d Difficulty) bool {
	return e.Raid || d == DifficultyHeroic
}
