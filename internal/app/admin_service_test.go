package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study_delivery_bot/internal/domain/content"
	"study_delivery_bot/internal/domain/delivery"
	"study_delivery_bot/internal/domain/schedule"
	idb "study_delivery_bot/internal/infra/database"
)

func TestAdminService_RequiresAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	const stranger int64 = 7

	_, err := env.admin.CreateSource(ctx, stranger, "english", "")
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	assert.ErrorIs(t, env.admin.CreateSchedule(ctx, stranger, dailyDefinition("daily", 1)), ErrAdminNotAuthorized)
	_, err = env.admin.TriggerNow(ctx, stranger, 1)
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	_, err = env.admin.ResetSubscriber(ctx, stranger, 100)
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	_, err = env.admin.GetMetrics(ctx, stranger, 100)
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
}

func TestAdminService_Sources(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	src, err := env.admin.CreateSource(ctx, testAdminID, "  Current Affairs ", "")
	require.NoError(t, err)
	assert.Equal(t, "current_affairs", src.Name)

	_, err = env.admin.CreateSource(ctx, testAdminID, "current affairs", "")
	assert.ErrorIs(t, err, idb.ErrDuplicateSourceName)

	_, err = env.admin.AddItem(ctx, testAdminID, "current_affairs", content.KindVideo, "not a url", "")
	assert.ErrorIs(t, err, ErrInvalidItem)
	_, err = env.admin.AddItem(ctx, testAdminID, "current_affairs", content.Kind("audio"), "x", "")
	assert.ErrorIs(t, err, ErrInvalidItem)
	_, err = env.admin.AddItem(ctx, testAdminID, "missing", content.KindText, "read", "")
	assert.ErrorIs(t, err, idb.ErrSourceNotFound)

	first, err := env.admin.AddItem(ctx, testAdminID, "Current Affairs", content.KindVideo, "https://youtu.be/a", "")
	require.NoError(t, err)
	second, err := env.admin.AddItem(ctx, testAdminID, "current_affairs", content.KindText, "Read today's editorial", "")
	require.NoError(t, err)
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, 1, second.Position)

	overview, err := env.admin.ListSources(ctx, testAdminID)
	require.NoError(t, err)
	require.Len(t, overview, 1)
	assert.Equal(t, 2, overview[0].Items)
}

func TestAdminService_DeleteSource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	used := env.source(t, "english", "e0")
	env.source(t, "spare", "s0")
	def := env.schedule(t, dailyDefinition("daily", used.ID))

	err := env.admin.DeleteSource(ctx, testAdminID, "english")
	assert.ErrorIs(t, err, ErrSourceInUse)

	_, err = env.admin.PauseSchedule(ctx, testAdminID, def.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, env.admin.DeleteSource(ctx, testAdminID, "english"), ErrSourceInUse, "paused schedules still count")

	require.NoError(t, env.admin.DeleteSource(ctx, testAdminID, "spare"))
	_, err = env.store.Contents().GetSourceByName(ctx, "spare")
	assert.ErrorIs(t, err, idb.ErrSourceNotFound)
}

func TestAdminService_CreateScheduleValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	empty := env.source(t, "history")

	tests := []struct {
		name   string
		mutate func(def *schedule.Definition)
	}{
		{"no sources", func(def *schedule.Definition) { def.SourceIDs = nil }},
		{"unknown source", func(def *schedule.Definition) { def.SourceIDs = []int64{999} }},
		{"empty source", func(def *schedule.Definition) { def.CycleSourceIDs = []int64{empty.ID} }},
		{"duplicate source", func(def *schedule.Definition) { def.CycleSourceIDs = []int64{src.ID} }},
		{"missing name", func(def *schedule.Definition) { def.Name = " " }},
		{"unknown timezone", func(def *schedule.Definition) { def.Timezone = "Mars/Olympus" }},
		{"bad frequency", func(def *schedule.Definition) { def.Frequency = "hourly" }},
		{"bad delivery time", func(def *schedule.Definition) { def.DeliveryTime = schedule.TimeOfDay{Hour: 25} }},
		{"no start date", func(def *schedule.Definition) { def.StartDate = schedule.Date{} }},
		{"weekdays without days", func(def *schedule.Definition) {
			def.Frequency = schedule.FrequencyWeekdays
			def.SelectedDays = 0
		}},
		{"end before start", func(def *schedule.Definition) {
			end := date(2023, time.December, 31)
			def.EndDate = &end
		}},
		{"already over", func(def *schedule.Definition) {
			def.StartDate = date(2023, time.December, 1)
			end := date(2023, time.December, 31)
			def.EndDate = &end
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := dailyDefinition("daily", src.ID)
			tt.mutate(def)
			err := env.admin.CreateSchedule(ctx, testAdminID, def)
			assert.ErrorIs(t, err, ErrInvalidSchedule)
		})
	}

	all, err := env.admin.ListSchedules(ctx, testAdminID)
	require.NoError(t, err)
	assert.Empty(t, all, "nothing is stored for an invalid definition")
}

func TestAdminService_CreateScheduleNormalizesEveryDay(t *testing.T) {
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	def := dailyDefinition("daily", src.ID)
	def.SelectedDays = schedule.NewWeekdaySet(schedule.Monday)

	env.schedule(t, def)
	got := env.reload(t, def)
	assert.Equal(t, schedule.AllWeekdays(), got.SelectedDays)
	assert.Equal(t, schedule.StatusActive, got.Status)
	assert.False(t, got.HasFired())
}

func TestAdminService_UpdateSchedule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	env.subscriber(t, 100)
	def := env.schedule(t, dailyDefinition("daily", src.ID))

	edit := env.reload(t, def)
	edit.DeliveryTime = schedule.TimeOfDay{Hour: 18}
	require.NoError(t, env.admin.UpdateSchedule(ctx, testAdminID, edit))
	assert.Equal(t, time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC), *env.reload(t, def).NextExecution)

	_, err := env.admin.TriggerNow(ctx, testAdminID, def.ID)
	require.NoError(t, err)

	edit = env.reload(t, def)
	edit.DeliveryTime = schedule.TimeOfDay{Hour: 7}
	assert.ErrorIs(t, env.admin.UpdateSchedule(ctx, testAdminID, edit), ErrScheduleAlreadyFired)
}

func TestAdminService_UpdateScheduleFromSpec(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	english := env.source(t, "english", "e0")
	history := env.source(t, "history", "h0")
	def := env.schedule(t, dailyDefinition("daily", english.ID))

	edit, err := env.admin.BuildDefinition(ctx, ScheduleSpec{
		Name:    "evening",
		Sources: []string{"english"},
		Cycle:   []string{"history"},
		Time:    "18:30",
		Start:   "2024-01-01",
		Mode:    "sequential",
	})
	require.NoError(t, err)
	edit.ID = def.ID
	require.NoError(t, env.admin.UpdateSchedule(ctx, testAdminID, edit))

	got := env.reload(t, def)
	assert.Equal(t, "evening", got.Name)
	assert.Equal(t, []int64{history.ID}, got.CycleSourceIDs)
	assert.Equal(t, "Asia/Kolkata", got.Timezone, "default time zone applies")
	assert.Equal(t, time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC), *got.NextExecution)

	edit.ID = 999
	assert.ErrorIs(t, env.admin.UpdateSchedule(ctx, testAdminID, edit), idb.ErrScheduleNotFound)
	assert.ErrorIs(t, env.admin.UpdateSchedule(ctx, 7, edit), ErrAdminNotAuthorized)
}

func TestAdminService_GetScheduleHistory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0", "e1", "e2")
	sub := env.subscriber(t, 100)
	def := env.schedule(t, dailyDefinition("daily", src.ID))
	other := env.schedule(t, dailyDefinition("other", src.ID))

	for day := 1; day <= 2; day++ {
		_, err := env.executor.Execute(ctx, def, sub, date(2024, time.January, day))
		require.NoError(t, err)
	}
	env.notifier.failures = 3
	_, err := env.executor.Execute(ctx, def, sub, date(2024, time.January, 3))
	require.NoError(t, err)
	_, err = env.executor.Execute(ctx, other, sub, date(2024, time.January, 3))
	require.NoError(t, err)

	h, err := env.admin.GetScheduleHistory(ctx, testAdminID, def.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, def.ID, h.Schedule.ID)
	require.Len(t, h.Records, 2)
	assert.Equal(t, 3, h.Records[0].DayNumber)
	assert.Equal(t, delivery.StatusFailed, h.Records[0].Status)
	assert.Equal(t, 3, h.Records[0].Attempts)
	assert.Contains(t, h.Records[0].LastError, "telegram unavailable")
	assert.Equal(t, 2, h.Records[1].DayNumber)

	h, err = env.admin.GetScheduleHistory(ctx, testAdminID, other.ID, 20)
	require.NoError(t, err)
	require.Len(t, h.Records, 1)
	assert.Equal(t, 4, h.Records[0].DayNumber)

	_, err = env.admin.GetScheduleHistory(ctx, testAdminID, 999, 20)
	assert.ErrorIs(t, err, idb.ErrScheduleNotFound)
	_, err = env.admin.GetScheduleHistory(ctx, 7, def.ID, 20)
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
}

func TestAdminService_PauseResume(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	def := env.schedule(t, dailyDefinition("daily", src.ID))

	paused, err := env.admin.PauseSchedule(ctx, testAdminID, def.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusPaused, paused.Status)

	_, err = env.admin.PauseSchedule(ctx, testAdminID, def.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	env.now = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	resumed, err := env.admin.ResumeSchedule(ctx, testAdminID, def.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusActive, resumed.Status)
	assert.Equal(t, time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC), *resumed.NextExecution)

	_, err = env.admin.ResumeSchedule(ctx, testAdminID, def.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdminService_ResumeAfterEndDateCompletes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	def := dailyDefinition("short", src.ID)
	end := date(2024, time.January, 2)
	def.EndDate = &end
	env.schedule(t, def)

	_, err := env.admin.PauseSchedule(ctx, testAdminID, def.ID)
	require.NoError(t, err)
	env.now = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	resumed, err := env.admin.ResumeSchedule(ctx, testAdminID, def.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCompleted, resumed.Status)
	assert.Nil(t, resumed.NextExecution)
}

func TestAdminService_ResetSubscriber(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0", "e1", "e2")
	sub := env.subscriber(t, 100)
	def := env.schedule(t, dailyDefinition("daily", src.ID))

	for day := 1; day <= 2; day++ {
		_, err := env.executor.Execute(ctx, def, sub, date(2024, time.January, day))
		require.NoError(t, err)
	}
	_, err := env.executor.Acknowledge(ctx, sub.ID, 2, delivery.AckDone)
	require.NoError(t, err)

	deleted, err := env.admin.ResetSubscriber(ctx, testAdminID, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	st := env.state(t, sub)
	assert.Zero(t, st.CurrentDay)
	assert.Zero(t, st.Streak)
	assert.Zero(t, env.cycleCursor(t, sub, def))

	res, err := env.executor.Execute(ctx, def, sub, date(2024, time.January, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Record.DayNumber)
	assert.Equal(t, "https://youtu.be/e0", res.Record.Contents[0].Ref)

	_, err = env.admin.ResetSubscriber(ctx, testAdminID, 999)
	assert.ErrorIs(t, err, idb.ErrSubscriberNotFound)
}

func TestAdminService_GetMetrics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := env.source(t, "english", "e0")
	sub := env.subscriber(t, 100)
	def := env.schedule(t, dailyDefinition("daily", src.ID))

	for day := 1; day <= 3; day++ {
		_, err := env.executor.Execute(ctx, def, sub, date(2024, time.January, day))
		require.NoError(t, err)
	}
	for _, day := range []int{2, 3} {
		_, err := env.executor.Acknowledge(ctx, sub.ID, day, delivery.AckDone)
		require.NoError(t, err)
	}

	m, err := env.admin.GetMetrics(ctx, testAdminID, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, m.CurrentDay)
	assert.Equal(t, 2, m.Streak)
	assert.Equal(t, 3, m.Total)
	assert.Equal(t, 2, m.Done)
	assert.InDelta(t, 66.666, m.OverallCompletion, 0.01)
	assert.Equal(t, 7, m.Window)
}

func TestAdminService_BlockSubscriber(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.subscriber(t, 100)
	env.subscriber(t, 200)

	sub, err := env.admin.SetSubscriberBlocked(ctx, testAdminID, 100, true)
	require.NoError(t, err)
	assert.True(t, sub.IsBlocked)

	active, err := env.store.Subscribers().ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(200), active[0].ChatID)

	_, _, err = env.subs.Register(ctx, 100, "Asha", "asha")
	assert.ErrorIs(t, err, ErrSubscriberInactive)

	_, err = env.admin.SetSubscriberBlocked(ctx, testAdminID, 100, false)
	require.NoError(t, err)
	all, err := env.admin.ListSubscribers(ctx, testAdminID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.True(t, all[0].Receives())
}

func TestAdminService_BuildDefinition(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	english := env.source(t, "english", "e0")
	history := env.source(t, "history", "h0")

	def, err := env.admin.BuildDefinition(ctx, ScheduleSpec{
		Name:      "upsc",
		Sources:   []string{"English"},
		Cycle:     []string{"history"},
		Frequency: "Weekdays",
		Days:      "mon,wed,fri",
		Time:      "07:30",
		Start:     "2024-01-01",
		End:       "2024-06-30",
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{english.ID}, def.SourceIDs)
	assert.Equal(t, []int64{history.ID}, def.CycleSourceIDs)
	assert.Equal(t, schedule.FrequencyWeekdays, def.Frequency)
	assert.Equal(t, schedule.NewWeekdaySet(schedule.Monday, schedule.Wednesday, schedule.Friday), def.SelectedDays)
	assert.Equal(t, schedule.TimeOfDay{Hour: 7, Minute: 30}, def.DeliveryTime)
	assert.Equal(t, "Asia/Kolkata", def.Timezone, "default time zone applies")
	require.NotNil(t, def.EndDate)
	assert.Equal(t, "2024-06-30", def.EndDate.String())

	require.NoError(t, env.admin.CreateSchedule(ctx, testAdminID, def))
	assert.Equal(t, schedule.ModeSequential, def.Mode)

	for _, spec := range []ScheduleSpec{
		{Name: "x", Sources: []string{"missing"}, Time: "09:00", Start: "2024-01-01"},
		{Name: "x", Sources: []string{"english"}, Time: "9am", Start: "2024-01-01"},
		{Name: "x", Sources: []string{"english"}, Time: "09:00", Start: "01/01/2024"},
		{Name: "x", Sources: []string{"english"}, Time: "09:00", Start: "2024-01-01", Days: "funday"},
	} {
		_, err := env.admin.BuildDefinition(ctx, spec)
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	}
}
