package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study_delivery_bot/internal/domain/schedule"
)

func TestTick_FiresDueScheduleOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0", "e1")
	env.subscriber(t, 100)
	def := env.schedule(t, dailyDefinition("daily", src.ID))
	require.Equal(t, schedule.StatusActive, def.Status)
	require.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), *def.NextExecution)

	env.now = time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
	summary, err := env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 0, summary.Fired)
	assert.Empty(t, env.notifier.messages())

	env.now = time.Date(2024, 1, 1, 9, 0, 30, 0, time.UTC)
	summary, err = env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.TickID)
	assert.Equal(t, 1, summary.Fired)
	assert.Equal(t, 1, summary.Deliveries.Sent)

	got := env.reload(t, def)
	require.NotNil(t, got.LastExecution)
	assert.Equal(t, env.now, *got.LastExecution)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), *got.NextExecution)

	summary, err = env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Fired)
	assert.Len(t, env.notifier.messages(), 1)
}

func TestTick_CatchesUpOnceAfterDowntime(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0", "e1")
	env.subscriber(t, 100)
	def := env.schedule(t, dailyDefinition("daily", src.ID))

	env.now = time.Date(2024, 1, 4, 12, 0, 0, 0, time.UTC)
	summary, err := env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Deliveries.Sent, "missed occurrences are not replayed")
	assert.Equal(t, time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC), *env.reload(t, def).NextExecution)

	records, err := env.store.Deliveries().ListBySchedule(ctx, def.ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, date(2024, time.January, 1), records[0].DeliveryDate)
}

func TestTick_ActivatesUpcomingSchedule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	env.subscriber(t, 100)
	def := dailyDefinition("later", src.ID)
	def.StartDate = date(2024, time.January, 3)
	env.schedule(t, def)
	require.Equal(t, schedule.StatusUpcoming, def.Status)

	env.now = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	summary, err := env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Activated)
	assert.Equal(t, schedule.StatusUpcoming, env.reload(t, def).Status)

	env.now = time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	summary, err = env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Activated)
	assert.Equal(t, 1, summary.Fired)
	assert.Equal(t, schedule.StatusActive, env.reload(t, def).Status)
}

func TestTick_CompletesAfterEndDate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	env.subscriber(t, 100)
	def := dailyDefinition("short", src.ID)
	end := date(2024, time.January, 1)
	def.EndDate = &end
	env.schedule(t, def)

	env.now = time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC)
	summary, err := env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fired)
	assert.Equal(t, 1, summary.Completed)

	got := env.reload(t, def)
	assert.Equal(t, schedule.StatusCompleted, got.Status)
	assert.Nil(t, got.NextExecution)
}

func TestTick_AllAtOnceCompletesAfterFiring(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0", "e1")
	env.subscriber(t, 100)
	def := dailyDefinition("bundle", src.ID)
	def.Mode = schedule.ModeAllAtOnce
	env.schedule(t, def)

	env.now = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	summary, err := env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, schedule.StatusCompleted, env.reload(t, def).Status)
}

func TestTick_IgnoresPausedSchedules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	env.subscriber(t, 100)
	def := env.schedule(t, dailyDefinition("daily", src.ID))
	_, err := env.admin.PauseSchedule(ctx, testAdminID, def.ID)
	require.NoError(t, err)

	env.now = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	summary, err := env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Checked)
	assert.Empty(t, env.notifier.messages())
}

func TestTick_SubscriberFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	env.subscriber(t, 100)
	env.subscriber(t, 200)
	env.schedule(t, dailyDefinition("daily", src.ID))
	env.notifier.failFor = map[int64]bool{100: true}
	env.notifier.permanent = true

	env.now = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	summary, err := env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Deliveries.Recipients)
	assert.Equal(t, 1, summary.Deliveries.Sent)
	assert.Equal(t, 1, summary.Deliveries.Failed)
	assert.Equal(t, int64(200), env.notifier.last(t).Recipient)
}

func TestTick_SkipsWhenLeaseHeld(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	env.subscriber(t, 100)
	env.schedule(t, dailyDefinition("daily", src.ID))

	unlock, err := env.locker.TryLock(ctx, engineLockKey, time.Hour)
	require.NoError(t, err)

	env.now = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	summary, err := env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Empty(t, env.notifier.messages())

	_, err = env.runner.TriggerNow(ctx, 1)
	assert.ErrorIs(t, err, ErrEngineBusy)

	require.NoError(t, unlock(ctx))
	summary, err = env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, summary.Skipped)
	assert.Equal(t, 1, summary.Fired)
}

func TestTriggerNow_UsesLocalDateAndGuardsRegularFiring(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0", "e1")
	sub := env.subscriber(t, 100)
	def := dailyDefinition("kolkata", src.ID)
	def.Timezone = "Asia/Kolkata"
	def.DeliveryTime = schedule.TimeOfDay{Hour: 9, Minute: 30}
	env.schedule(t, def)

	// 20:00 UTC is already 01:30 on Jan 2 in Kolkata.
	env.now = time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	fs, err := env.runner.TriggerNow(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fs.Sent)

	rec, err := env.store.Deliveries().GetByDay(ctx, sub.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 2), rec.DeliveryDate)

	got := env.reload(t, def)
	assert.True(t, got.HasFired())
	assert.Equal(t, time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC), *got.NextExecution, "next execution is unchanged")

	fs, err = env.runner.TriggerNow(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fs.AlreadyDelivered)

	env.now = time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC)
	summary, err := env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fired)
	assert.Equal(t, 1, summary.Deliveries.AlreadyDelivered)
	assert.Len(t, env.notifier.messages(), 1)
}

func TestTriggerNow_RejectsCompletedSchedule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	env.subscriber(t, 100)
	def := dailyDefinition("bundle", src.ID)
	def.Mode = schedule.ModeAllAtOnce
	env.schedule(t, def)

	env.now = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := env.runner.Tick(ctx)
	require.NoError(t, err)

	_, err = env.runner.TriggerNow(ctx, def.ID)
	assert.ErrorIs(t, err, ErrScheduleCompleted)
}

func TestTriggerNow_RejectsInactiveSchedule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	env.subscriber(t, 100)

	later := dailyDefinition("later", src.ID)
	later.Mode = schedule.ModeAllAtOnce
	later.StartDate = date(2024, time.January, 5)
	env.schedule(t, later)
	require.Equal(t, schedule.StatusUpcoming, later.Status)

	_, err := env.runner.TriggerNow(ctx, later.ID)
	assert.ErrorIs(t, err, ErrScheduleNotActive)
	assert.False(t, env.reload(t, later).HasFired())

	paused := env.schedule(t, dailyDefinition("paused", src.ID))
	_, err = env.admin.PauseSchedule(ctx, testAdminID, paused.ID)
	require.NoError(t, err)
	_, err = env.runner.TriggerNow(ctx, paused.ID)
	assert.ErrorIs(t, err, ErrScheduleNotActive)
	assert.Empty(t, env.notifier.messages())

	// The all_at_once bundle still runs to completion on its start date.
	env.now = time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	summary, err := env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, schedule.StatusCompleted, env.reload(t, later).Status)
}

func TestTriggerNow_CompletesAllAtOnceSchedule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0", "e1")
	env.subscriber(t, 100)
	def := dailyDefinition("bundle", src.ID)
	def.Mode = schedule.ModeAllAtOnce
	env.schedule(t, def)

	fs, err := env.runner.TriggerNow(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fs.Sent)

	got := env.reload(t, def)
	assert.Equal(t, schedule.StatusCompleted, got.Status)
	assert.Nil(t, got.NextExecution)

	env.now = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	summary, err := env.runner.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Fired)
	assert.Len(t, env.notifier.messages(), 1)
}
