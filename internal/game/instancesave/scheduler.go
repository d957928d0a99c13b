package instancesave

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/udisondev/wowgo/internal/data"
	"github.com/udisondev/wowgo/internal/model"
)

// Warning offsets before a global reset at T. Policy constants: the
// staged broadcasts fire at T-1h, T-30m, T-5m and T-1m.
var informDelays = [...]time.Duration{
	ResetEventInform1:    time.Hour,
	ResetEventInform2:    30 * time.Minute,
	ResetEventInform3:    5 * time.Minute,
	ResetEventInformLast: time.Minute,
}

// resetWorker is the narrow registry surface the scheduler dispatches
// fired events into.
type resetWorker interface {
	resetOrWarnAll(ctx context.Context, mapID uint32, d model.Difficulty, warn bool, timeLeft time.Duration)
	resetInstance(ctx context.Context, mapID, instanceID uint32)
}

type mapDifficulty struct {
	mapID      uint32
	difficulty model.Difficulty
}

type scheduledEvent struct {
	at    time.Time
	event ResetEvent
}

// ResetScheduler owns the global reset-time cache and the time-ordered
// queue of pending reset and warning events. It knows nothing about
// saves beyond the worker callback it fires events into.
type ResetScheduler struct {
	store     SaveStore
	worker    resetWorker
	resetHour int // hour of day global reset cycles are aligned to

	mu         sync.Mutex
	resetTimes map[mapDifficulty]time.Time
	queue      []scheduledEvent // ordered by at; equal keys keep insertion order
}

func newResetScheduler(store SaveStore, worker resetWorker, resetHour int) *ResetScheduler {
	return &ResetScheduler{
		store:      store,
		worker:     worker,
		resetHour:  resetHour,
		resetTimes: make(map[mapDifficulty]time.Time, 16),
	}
}

// GetResetTimeFor returns the cached global reset time for a
// (map, difficulty) pair, or the zero time if never set.
func (s *ResetScheduler) GetResetTimeFor(mapID uint32, d model.Difficulty) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetTimes[mapDifficulty{mapID, d}]
}

// SetResetTimeFor unconditionally overwrites the cached reset time.
func (s *ResetScheduler) SetResetTimeFor(mapID uint32, d model.Difficulty, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetTimes[mapDifficulty{mapID, d}] = t
}

// GetMaxResetTimeFor returns the global reset period for a map template
// at the given difficulty, or 0 when the template is unknown.
func GetMaxResetTimeFor(tmpl *model.InstanceTemplate, d model.Difficulty) time.Duration {
	if tmpl == nil {
		return 0
	}
	return tmpl.ResetDelayFor(d)
}

// ScheduleReset inserts (add=true) or cancels (add=false) a pending
// event. Cancellation removes the first queued entry targeting the same
// (map, difficulty, instance) regardless of the timestamp it was stored
// under; no match is a no-op.
func (s *ResetScheduler) ScheduleReset(add bool, t time.Time, event ResetEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		i := sort.Search(len(s.queue), func(i int) bool { return s.queue[i].at.After(t) })
		s.queue = slices.Insert(s.queue, i, scheduledEvent{at: t, event: event})
		return
	}
	for i := range s.queue {
		if s.queue[i].event.SameTarget(event) {
			s.queue = slices.Delete(s.queue, i, i+1)
			return
		}
	}
}

// QueueLen returns the number of pending events.
func (s *ResetScheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Update fires every event due at or before now, in non-decreasing
// timestamp order. Dispatch is synchronous: each handler runs to
// completion before the next due event is popped, so handlers may
// reschedule follow-up events while Update is draining the queue.
func (s *ResetScheduler) Update(ctx context.Context, now time.Time) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.queue[0].at.After(now) {
			s.mu.Unlock()
			return
		}
		e := s.queue[0].event
		s.queue = slices.Delete(s.queue, 0, 1)

		var timeLeft time.Duration
		if e.Type != ResetEventDungeon {
			timeLeft = s.resetTimes[mapDifficulty{e.MapID, e.Difficulty}].Sub(now)
			if timeLeft < 0 {
				timeLeft = 0
			}
		}
		s.mu.Unlock()

		switch {
		case e.Type == ResetEventDungeon && e.InstanceID != 0:
			s.worker.resetInstance(ctx, e.MapID, e.InstanceID)
		case e.Type == ResetEventDungeon:
			s.worker.resetOrWarnAll(ctx, e.MapID, e.Difficulty, false, 0)
		default:
			s.worker.resetOrWarnAll(ctx, e.MapID, e.Difficulty, true, timeLeft)
		}
	}
}

// LoadResetTimes is the startup bootstrap: for every raid and heroic
// map-difficulty pair in static content it determines the persisted or
// default reset baseline, advances baselines missed during downtime by
// whole periods, populates the cache and enqueues the reset plus the
// still-future warning events ahead of it.
func (s *ResetScheduler) LoadResetTimes(ctx context.Context, now time.Time) error {
	rows, err := s.store.LoadResetTimes(ctx)
	if err != nil {
		return fmt.Errorf("load reset times: %w", err)
	}
	persisted := make(map[mapDifficulty]time.Time, len(rows))
	for _, row := range rows {
		persisted[mapDifficulty{row.MapID, row.Difficulty}] = time.Unix(row.ResetTime, 0)
	}

	pairs := 0
	for _, mapID := range data.InstanceTemplateMapIDs() {
		entry := data.GetMapEntry(mapID)
		tmpl := data.GetInstanceTemplate(mapID)
		if entry == nil || tmpl == nil {
			continue
		}
		for _, d := range []model.Difficulty{model.DifficultyNormal, model.DifficultyHeroic} {
			if d == model.DifficultyNormal && !entry.Raid {
				continue
			}
			if d == model.DifficultyHeroic && !entry.Heroic {
				continue
			}
			period := GetMaxResetTimeFor(tmpl, d)
			if period <= 0 {
				continue
			}

			t, had := persisted[mapDifficulty{mapID, d}]
			if t.IsZero() {
				t = s.alignToResetHour(now)
			}
			moved := false
			for !t.After(now) {
				t = t.Add(period)
				moved = true
			}
			if !had || moved {
				if err := s.store.UpsertResetTime(ctx, mapID, d, t.Unix()); err != nil {
					slog.Error("persist reset time",
						"map", mapID, "difficulty", d, "error", err)
				}
			}

			s.SetResetTimeFor(mapID, d, t)
			s.scheduleGlobalReset(now, t, mapID, d)
			pairs++
		}
	}

	slog.Info("instance reset times loaded", "pairs", pairs, "queued", s.QueueLen())
	return nil
}

// scheduleGlobalReset enqueues the global reset for (map, difficulty) at
// t and the warning events still ahead of now.
func (s *ResetScheduler) scheduleGlobalReset(now, t time.Time, mapID uint32, d model.Difficulty) {
	s.ScheduleReset(true, t, ResetEvent{Type: ResetEventDungeon, MapID: mapID, Difficulty: d})
	for typ := ResetEventInform1; typ <= ResetEventInformLast; typ++ {
		warnAt := t.Add(-informDelays[typ])
		if warnAt.After(now) {
			s.ScheduleReset(true, warnAt, ResetEvent{Type: typ, MapID: mapID, Difficulty: d})
		}
	}
}

// alignToResetHour returns today's occurrence of the configured reset
// hour; callers advance it by whole periods until it is in the future.
func (s *ResetScheduler) alignToResetHour(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), s.resetHour, 0, 0, 0, now.Location())
}
