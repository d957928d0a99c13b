package model

// Difficulty selects which version of an instanceable map a party enters.
// Raid maps only use DifficultyNormal; dungeons may additionally offer
// DifficultyHeroic with a daily global reset.
type Difficulty int16

const (
	DifficultyNormal Difficulty = 0
	DifficultyHeroic Difficulty = 1
)

// Valid reports whether d is a known difficulty value.
func (d Difficulty) Valid() bool {
	return d == DifficultyNormal || d == DifficultyHeroic
}

func (d Difficulty) String() string {
	switch d {
	case DifficultyNormal:
		return "normal"
	case DifficultyHeroic:
		return "heroic"
	default:
		return "unknown"
	}
}
