package model

import "time"

// InstanceTemplate is the static configuration for an instanceable map.
// ResetDelay is the base global reset period; HeroicResetDelay overrides it
// for the heroic difficulty when the map supports one.
type InstanceTemplate struct {
	MapID            uint32
	Name             string
	ResetDelay       time.Duration
	HeroicResetDelay time.Duration
}

// ResetDelayFor returns the global reset period for a difficulty.
// Falls back to ResetDelay when no heroic override is configured.
func (t *InstanceTemplate) ResetDelayFor(d Difficulty) time.Duration {
	if d == DifficultyHeroic && t.HeroicResetDelay > 0 {
		return t.HeroicResetDelay
	}
	return t.ResetDelay
}
