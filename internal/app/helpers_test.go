package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"study_delivery_bot/internal/domain/content"
	"study_delivery_bot/internal/domain/notifier"
	"study_delivery_bot/internal/domain/schedule"
	"study_delivery_bot/internal/domain/subscriber"
	"study_delivery_bot/internal/infra/database"
	"study_delivery_bot/internal/infra/lock"
)

const testAdminID int64 = 42

type sentMessage struct {
	Recipient int64
	Item      *content.Item
	Caption   string
	Buttons   [][]notifier.Button
}

// fakeNotifier records messages. It fails the next `failures` calls, and
// every call for recipients listed in failFor. beforeSend runs ahead of
// every call, while the executor is between reserving and recording a day.
type fakeNotifier struct {
	mu         sync.Mutex
	failures   int
	permanent  bool
	failFor    map[int64]bool
	calls      int
	sent       []sentMessage
	beforeSend func(m sentMessage)
}

func (f *fakeNotifier) Send(_ context.Context, recipient int64, item *content.Item, caption string) (string, error) {
	return f.record(sentMessage{Recipient: recipient, Item: item, Caption: caption})
}

func (f *fakeNotifier) SendWithButtons(_ context.Context, recipient int64, item *content.Item, caption string, buttons [][]notifier.Button) (string, error) {
	return f.record(sentMessage{Recipient: recipient, Item: item, Caption: caption, Buttons: buttons})
}

func (f *fakeNotifier) record(m sentMessage) (string, error) {
	if f.beforeSend != nil {
		f.beforeSend(m)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFor[m.Recipient] || f.failures > 0 {
		if f.failures > 0 {
			f.failures--
		}
		return "", &notifier.DeliveryError{Recipient: m.Recipient, Permanent: f.permanent, Err: fmt.Errorf("telegram unavailable")}
	}
	f.sent = append(f.sent, m)
	return strconv.Itoa(len(f.sent)), nil
}

func (f *fakeNotifier) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeNotifier) last(t *testing.T) sentMessage {
	t.Helper()
	msgs := f.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

type testEnv struct {
	store    *database.SQLStore
	notifier *fakeNotifier
	locker   *lock.LocalLocker
	executor *DeliveryExecutor
	runner   *EngineRunner
	admin    *AdminService
	subs     *SubscriberService
	now      time.Time
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestStore(t *testing.T) *database.SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := database.Open(database.DriverSQLite, path, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
	return database.NewSQLStore(db)
}

// newTestEnv wires the services over a fresh SQLite store. The clock starts
// at 2024-01-01 08:00 UTC, a Monday, and only moves when env.now is set.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newTestStore(t),
		notifier: &fakeNotifier{},
		locker:   lock.NewLocalLocker(),
		now:      time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	retry := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
	log := testLogger()

	env.executor = NewDeliveryExecutor(env.store, env.notifier, retry, time.Second, log)
	env.executor.now = clock
	env.runner = NewEngineRunner(env.store, env.executor, env.locker, time.Minute, log)
	env.runner.now = clock
	env.admin = NewAdminService(env.store, env.runner, testAdminID, 7, "Asia/Kolkata")
	env.admin.now = clock
	env.subs = NewSubscriberService(env.store, env.executor, 7, log)
	return env
}

// source creates a source whose items are video links https://youtu.be/<ref>.
func (env *testEnv) source(t *testing.T, name string, refs ...string) *content.Source {
	t.Helper()
	ctx := context.Background()
	src, err := env.admin.CreateSource(ctx, testAdminID, name, "")
	require.NoError(t, err)
	for _, ref := range refs {
		_, err := env.admin.AddItem(ctx, testAdminID, name, content.KindVideo, "https://youtu.be/"+ref, "")
		require.NoError(t, err)
	}
	return src
}

func (env *testEnv) subscriber(t *testing.T, chatID int64) *subscriber.Subscriber {
	t.Helper()
	sub, _, err := env.subs.Register(context.Background(), chatID, "Asha", "asha")
	require.NoError(t, err)
	return sub
}

func (env *testEnv) schedule(t *testing.T, def *schedule.Definition) *schedule.Definition {
	t.Helper()
	require.NoError(t, env.admin.CreateSchedule(context.Background(), testAdminID, def))
	return def
}

func (env *testEnv) reload(t *testing.T, def *schedule.Definition) *schedule.Definition {
	t.Helper()
	got, err := env.store.Schedules().GetByID(context.Background(), def.ID)
	require.NoError(t, err)
	return got
}

func (env *testEnv) state(t *testing.T, sub *subscriber.Subscriber) *subscriber.DeliveryState {
	t.Helper()
	st, err := env.store.Subscribers().GetState(context.Background(), sub.ID)
	require.NoError(t, err)
	return st
}

func (env *testEnv) cycleCursor(t *testing.T, sub *subscriber.Subscriber, def *schedule.Definition) int {
	t.Helper()
	idx, err := env.store.Contents().GetCycleCursor(context.Background(), sub.ID, def.ID)
	require.NoError(t, err)
	return idx
}

// dailyDefinition fires every day at 09:00 UTC starting 2024-01-01.
func dailyDefinition(name string, sourceIDs ...int64) *schedule.Definition {
	return &schedule.Definition{
		Name:         name,
		SourceIDs:    sourceIDs,
		Frequency:    schedule.FrequencyEvery,
		StartDate:    date(2024, time.January, 1),
		DeliveryTime: schedule.TimeOfDay{Hour: 9},
		Timezone:     "UTC",
		Mode:         schedule.ModeSequential,
	}
}

func date(y int, m time.Month, d int) schedule.Date {
	return schedule.Date{Year: y, Month: m, Day: d}
}
