package instancesave

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/wowgo/internal/model"
)

type firedEvent struct {
	warn       bool
	reset      bool
	perInst    bool
	mapID      uint32
	difficulty model.Difficulty
	instanceID uint32
	timeLeft   time.Duration
}

// recordingWorker captures dispatched events instead of executing them.
type recordingWorker struct {
	fired []firedEvent
}

func (w *recordingWorker) resetOrWarnAll(_ context.Context, mapID uint32, d model.Difficulty, warn bool, timeLeft time.Duration) {
	w.fired = append(w.fired, firedEvent{
		warn: warn, reset: !warn,
		mapID: mapID, difficulty: d, timeLeft: timeLeft,
	})
}

func (w *recordingWorker) resetInstance(_ context.Context, mapID, instanceID uint32) {
	w.fired = append(w.fired, firedEvent{
		perInst: true, mapID: mapID, instanceID: instanceID,
	})
}

func newTestScheduler(store *mockSaveStore) (*ResetScheduler, *recordingWorker) {
	w := &recordingWorker{}
	return newResetScheduler(store, w, 4), w
}

func TestScheduler_ResetTimeCache(t *testing.T) {
	s, _ := newTestScheduler(newMockSaveStore())

	assert.True(t, s.GetResetTimeFor(409, model.DifficultyNormal).IsZero(),
		"unset pair returns the zero sentinel")

	want := time.Unix(1800000000, 0)
	s.SetResetTimeFor(409, model.DifficultyNormal, want)
	assert.Equal(t, want, s.GetResetTimeFor(409, model.DifficultyNormal))

	assert.True(t, s.GetResetTimeFor(409, model.DifficultyHeroic).IsZero(),
		"other difficulty unaffected")
}

func TestScheduler_ScheduleReset_CancelIgnoresTimestamp(t *testing.T) {
	s, _ := newTestScheduler(newMockSaveStore())
	now := time.Now()

	event := ResetEvent{Type: ResetEventDungeon, MapID: 36, Difficulty: model.DifficultyNormal, InstanceID: 100}
	s.ScheduleReset(true, now.Add(time.Hour), event)
	require.Equal(t, 1, s.QueueLen())

	// Cancellation does not know the original timestamp.
	s.ScheduleReset(false, now.Add(30*time.Minute), event)
	assert.Equal(t, 0, s.QueueLen())
}

func TestScheduler_ScheduleReset_CancelRemovesExactlyOne(t *testing.T) {
	s, _ := newTestScheduler(newMockSaveStore())
	now := time.Now()

	// All five entries of a global cycle share the same target.
	event := ResetEvent{MapID: 409, Difficulty: model.DifficultyNormal}
	s.ScheduleReset(true, now.Add(time.Hour), ResetEvent{Type: ResetEventInform1, MapID: 409, Difficulty: model.DifficultyNormal})
	s.ScheduleReset(true, now.Add(2*time.Hour), ResetEvent{Type: ResetEventDungeon, MapID: 409, Difficulty: model.DifficultyNormal})
	require.Equal(t, 2, s.QueueLen())

	s.ScheduleReset(false, time.Time{}, event)
	assert.Equal(t, 1, s.QueueLen())

	s.ScheduleReset(false, time.Time{}, event)
	assert.Equal(t, 0, s.QueueLen())

	// No match left: no-op.
	s.ScheduleReset(false, time.Time{}, event)
	assert.Equal(t, 0, s.QueueLen())
}

func TestScheduler_Update_FiresInTimestampOrder(t *testing.T) {
	s, w := newTestScheduler(newMockSaveStore())
	now := time.Now()

	// Insert out of order.
	s.ScheduleReset(true, now.Add(-time.Second), ResetEvent{Type: ResetEventDungeon, MapID: 36, Difficulty: model.DifficultyNormal, InstanceID: 2})
	s.ScheduleReset(true, now.Add(-3*time.Second), ResetEvent{Type: ResetEventDungeon, MapID: 36, Difficulty: model.DifficultyNormal, InstanceID: 1})
	s.ScheduleReset(true, now.Add(-2*time.Second), ResetEvent{Type: ResetEventDungeon, MapID: 36, Difficulty: model.DifficultyNormal, InstanceID: 3})
	s.ScheduleReset(true, now.Add(time.Hour), ResetEvent{Type: ResetEventDungeon, MapID: 36, Difficulty: model.DifficultyNormal, InstanceID: 4})

	s.Update(context.Background(), now)

	require.Len(t, w.fired, 3, "future event stays queued")
	assert.Equal(t, uint32(1), w.fired[0].instanceID)
	assert.Equal(t, uint32(3), w.fired[1].instanceID)
	assert.Equal(t, uint32(2), w.fired[2].instanceID)
	assert.Equal(t, 1, s.QueueLen())
}

func TestScheduler_Update_SameTimestampKeepsInsertionOrder(t *testing.T) {
	s, w := newTestScheduler(newMockSaveStore())
	now := time.Now()
	at := now.Add(-time.Second)

	for id := uint32(1); id <= 3; id++ {
		s.ScheduleReset(true, at, ResetEvent{Type: ResetEventDungeon, MapID: 36, Difficulty: model.DifficultyNormal, InstanceID: id})
	}

	s.Update(context.Background(), now)

	require.Len(t, w.fired, 3)
	for i, f := range w.fired {
		assert.Equal(t, uint32(i+1), f.instanceID)
	}
}

func TestScheduler_Update_WarnCarriesTimeLeft(t *testing.T) {
	s, w := newTestScheduler(newMockSaveStore())
	now := time.Now()
	resetAt := now.Add(time.Hour)

	s.SetResetTimeFor(409, model.DifficultyNormal, resetAt)
	s.ScheduleReset(true, now, ResetEvent{Type: ResetEventInform1, MapID: 409, Difficulty: model.DifficultyNormal})

	s.Update(context.Background(), now)

	require.Len(t, w.fired, 1)
	assert.True(t, w.fired[0].warn)
	assert.Equal(t, time.Hour, w.fired[0].timeLeft)
}

func TestScheduler_Update_GlobalResetEvent(t *testing.T) {
	s, w := newTestScheduler(newMockSaveStore())
	now := time.Now()

	// InstanceID zero: the reset applies to the whole (map, difficulty) pair.
	s.ScheduleReset(true, now, ResetEvent{Type: ResetEventDungeon, MapID: 409, Difficulty: model.DifficultyNormal})
	s.Update(context.Background(), now)

	require.Len(t, w.fired, 1)
	assert.True(t, w.fired[0].reset)
	assert.Equal(t, uint32(409), w.fired[0].mapID)
}

func TestScheduler_LoadResetTimes_Bootstrap(t *testing.T) {
	store := newMockSaveStore()
	s, _ := newTestScheduler(store)
	now := time.Now()

	require.NoError(t, s.LoadResetTimes(context.Background(), now))

	// Three raids plus three heroic dungeons in static content.
	for _, mapID := range []uint32{409, 469, 532} {
		reset := s.GetResetTimeFor(mapID, model.DifficultyNormal)
		assert.True(t, reset.After(now), "raid %d baseline in the future", mapID)
	}
	for _, mapID := range []uint32{540, 543, 545} {
		reset := s.GetResetTimeFor(mapID, model.DifficultyHeroic)
		assert.True(t, reset.After(now), "heroic %d baseline in the future", mapID)
		assert.True(t, reset.Sub(now) <= 24*time.Hour, "heroic %d resets within a day", mapID)
	}

	// Baselines are persisted back.
	assert.Len(t, store.resetTimes, 6)
	assert.GreaterOrEqual(t, s.QueueLen(), 6, "at least the reset event per pair queued")
}

func TestScheduler_LoadResetTimes_CatchUpAfterDowntime(t *testing.T) {
	store := newMockSaveStore()
	now := time.Now()

	// Persisted baseline three weeks stale.
	stale := now.Add(-21 * 24 * time.Hour).Truncate(time.Second)
	store.resetTimes[mapDifficulty{409, model.DifficultyNormal}] = stale.Unix()

	s, _ := newTestScheduler(store)
	require.NoError(t, s.LoadResetTimes(context.Background(), now))

	reset := s.GetResetTimeFor(409, model.DifficultyNormal)
	assert.True(t, reset.After(now))
	assert.True(t, reset.Sub(now) <= 7*24*time.Hour, "advanced by whole periods only")

	// Phase stays aligned with the stale baseline.
	assert.Zero(t, reset.Sub(stale)%(7*24*time.Hour))
}

func TestScheduler_LoadResetTimes_KeepsFutureBaseline(t *testing.T) {
	store := newMockSaveStore()
	now := time.Now()

	future := now.Add(48 * time.Hour).Truncate(time.Second)
	store.resetTimes[mapDifficulty{409, model.DifficultyNormal}] = future.Unix()

	s, _ := newTestScheduler(store)
	require.NoError(t, s.LoadResetTimes(context.Background(), now))

	assert.Equal(t, future.Unix(), s.GetResetTimeFor(409, model.DifficultyNormal).Unix())
}

func TestGetMaxResetTimeFor(t *testing.T) {
	assert.Zero(t, GetMaxResetTimeFor(nil, model.DifficultyNormal))

	tmpl := &model.InstanceTemplate{MapID: 540, ResetDelay: 2 * time.Hour, HeroicResetDelay: 24 * time.Hour}
	assert.Equal(t, 2*time.Hour, GetMaxResetTimeFor(tmpl, model.DifficultyNormal))
	assert.Equal(t, 24*time.Hour, GetMaxResetTimeFor(tmpl, model.DifficultyHeroic))
}
