package notify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omriShneor/babycare_bot/internal/database"
	"github.com/omriShneor/babycare_bot/internal/i18n"
	"github.com/omriShneor/babycare_bot/internal/metrics"
	"github.com/omriShneor/babycare_bot/internal/mocks"
	"github.com/omriShneor/babycare_bot/internal/reminder"
	"github.com/omriShneor/babycare_bot/internal/source"
	"github.com/omriShneor/babycare_bot/internal/store"
)

var t0 = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store     *store.Store
	db        *database.DB
	messenger *mocks.MockMessenger
	now       time.Time
	dispatch  *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p, err := store.NewFilePersister(filepath.Join(t.TempDir(), "reminders.json"))
	require.NoError(t, err)
	s := store.New(p, nil)
	require.NoError(t, s.Load(context.Background()))

	f := &fixture{
		store:     s,
		db:        database.NewTestDB(t),
		messenger: &mocks.MockMessenger{},
		now:       t0,
	}
	f.dispatch = NewDispatcher(Config{
		Reminders:  s,
		Messenger:  f.messenger,
		Catalog:    i18n.MustLoad("he"),
		Users:      f.db,
		Deliveries: f.db,
		Metrics:    metrics.MustNewMetrics(prometheus.NewRegistry()),
		Now:        func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) add(t *testing.T, owner int64, name string, kind reminder.Kind, unit reminder.Unit, amount int) reminder.Reminder {
	t.Helper()
	r, err := reminder.New(name, kind, reminder.Interval{Unit: unit, Amount: amount}, t0)
	require.NoError(t, err)
	added, err := f.store.Add(context.Background(), owner, r)
	require.NoError(t, err)
	return added
}

func TestAckToken(t *testing.T) {
	assert.Equal(t, "ack:12", AckToken(12))

	id, ok := ParseAckToken("ack:12")
	assert.True(t, ok)
	assert.Equal(t, 12, id)

	_, ok = ParseAckToken("ack:x")
	assert.False(t, ok)
	_, ok = ParseAckToken("pick:12")
	assert.False(t, ok)
}

func TestTick_NothingDue(t *testing.T) {
	f := newFixture(t)
	f.add(t, 1, "water", reminder.KindFixed, reminder.UnitHour, 1)

	result, err := f.dispatch.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{}, result)
	f.messenger.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestTick_DeliversInUserLanguage(t *testing.T) {
	f := newFixture(t)
	database.CreateTestUser(t, f.db, 1, "en", "")
	feed := f.add(t, 1, "feed baby", reminder.KindResetting, reminder.UnitHour, 3)
	f.add(t, 2, "water", reminder.KindFixed, reminder.UnitHour, 1)

	f.messenger.On("Send", mock.Anything, int64(1), source.Outbound{
		Text:    "⏰ Reminder: feed baby",
		Buttons: [][]source.Button{{{Label: "✅ Done", Data: AckToken(feed.ID)}}},
	}).Return(nil).Once()
	f.messenger.On("Send", mock.Anything, int64(2), source.Outbound{
		Text: "⏰ תזכורת: water",
	}).Return(nil).Once()

	f.now = t0.Add(3 * time.Hour)
	result, err := f.dispatch.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{Due: 2, Sent: 2}, result)
	f.messenger.AssertExpectations(t)

	deliveries, err := f.db.ListDeliveries(0, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	for _, d := range deliveries {
		assert.Equal(t, database.DeliverySent, d.Status)
	}
}

func TestTick_FailedDeliveryIsRecordedNotRetried(t *testing.T) {
	f := newFixture(t)
	water := f.add(t, 1, "water", reminder.KindFixed, reminder.UnitHour, 1)

	f.messenger.On("Send", mock.Anything, int64(1), mock.Anything).Return(errors.New("flood wait")).Once()

	f.now = t0.Add(time.Hour)
	result, err := f.dispatch.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{Due: 1, Failed: 1}, result)

	got, err := f.store.Get(1, water.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now, got.LastTriggerAt, "fixed reminders restart even when delivery fails")

	deliveries, err := f.db.ListDeliveries(1, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, database.DeliveryFailed, deliveries[0].Status)
	assert.Equal(t, "flood wait", deliveries[0].Error)

	f.now = t0.Add(time.Hour + time.Minute)
	result, err = f.dispatch.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Due)
	f.messenger.AssertNumberOfCalls(t, "Send", 1)
}

func TestTick_OnceIsDeliveredAtMostOnce(t *testing.T) {
	f := newFixture(t)
	f.add(t, 1, "vitamin", reminder.KindOnce, reminder.UnitMinute, 30)
	f.messenger.On("Send", mock.Anything, int64(1), mock.Anything).Return(errors.New("network down")).Once()

	f.now = t0.Add(30 * time.Minute)
	result, err := f.dispatch.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, f.store.Len())

	f.now = t0.Add(2 * time.Hour)
	result, err = f.dispatch.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Due)
	f.messenger.AssertNumberOfCalls(t, "Send", 1)
}

func TestTick_ResettingRepeatsUntilDone(t *testing.T) {
	f := newFixture(t)
	feed := f.add(t, 1, "feed baby", reminder.KindResetting, reminder.UnitHour, 3)
	f.messenger.On("Send", mock.Anything, int64(1), mock.Anything).Return(nil)

	f.now = t0.Add(3 * time.Hour)
	_, err := f.dispatch.Tick(context.Background())
	require.NoError(t, err)

	f.now = t0.Add(3*time.Hour + time.Minute)
	result, err := f.dispatch.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	_, err = f.store.MarkDone(context.Background(), 1, feed.ID, t0.Add(3*time.Hour+5*time.Minute))
	require.NoError(t, err)

	f.now = t0.Add(6 * time.Hour)
	result, err = f.dispatch.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Due)
	f.messenger.AssertNumberOfCalls(t, "Send", 2)
}

func TestTick_UserLookupFailureFallsBackToReminderLanguage(t *testing.T) {
	f := newFixture(t)
	db := &mocks.MockDB{}
	db.On("GetUser", int64(1)).Return(nil, errors.New("database is locked"))
	db.On("RecordDelivery", mock.Anything).Return(nil)

	r, err := reminder.New("water", reminder.KindFixed, reminder.Interval{Unit: reminder.UnitHour, Amount: 1}, t0)
	require.NoError(t, err)
	r.Language = "en"
	_, err = f.store.Add(context.Background(), 1, r)
	require.NoError(t, err)

	d := NewDispatcher(Config{
		Reminders:  f.store,
		Messenger:  f.messenger,
		Catalog:    i18n.MustLoad("he"),
		Users:      db,
		Deliveries: db,
		Now:        func() time.Time { return t0.Add(time.Hour) },
	})
	f.messenger.On("Send", mock.Anything, int64(1), source.Outbound{Text: "⏰ Reminder: water"}).Return(nil).Once()

	result, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	f.messenger.AssertExpectations(t)
	db.AssertExpectations(t)
}
