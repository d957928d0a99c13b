package instancesave

import "github.com/udisondev/wowgo/internal/model"

// ResetEventType distinguishes the phases of the reset protocol.
type ResetEventType uint8

const (
	// ResetEventDungeon performs the reset itself: for one instance when
	// InstanceID is set, for the whole (map, difficulty) pair when zero.
	ResetEventDungeon ResetEventType = iota
	// ResetEventInform1..InformLast are staged advance warnings broadcast
	// before a global reset.
	ResetEventInform1
	ResetEventInform2
	ResetEventInform3
	ResetEventInformLast
)

// ResetEvent is one pending entry in the scheduler queue.
// The global reset time is a shared property of each raid/heroic map:
// all instance copies of that map reset together, so global events carry
// InstanceID == 0.
type ResetEvent struct {
	Type       ResetEventType
	MapID      uint32
	Difficulty model.Difficulty
	InstanceID uint32
}

// SameTarget reports whether two events address the same reset target.
// The event type does not participate: cancelling removes whichever
// pending entry targets (map, difficulty, instance).
func (e ResetEvent) SameTarget(o ResetEvent) bool {
	return e.MapID == o.MapID && e.Difficulty == o.Difficulty && e.InstanceID == o.InstanceID
}
