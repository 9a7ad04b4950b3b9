package bot_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omriShneor/babycare_bot/internal/bot"
	"github.com/omriShneor/babycare_bot/internal/intake"
	"github.com/omriShneor/babycare_bot/internal/notify"
	"github.com/omriShneor/babycare_bot/internal/reminder"
	"github.com/omriShneor/babycare_bot/internal/source"
	"github.com/omriShneor/babycare_bot/internal/testutil"
)

const chat int64 = 4242

func TestStart_RegistersUserAndShowsMenu(t *testing.T) {
	ts := testutil.NewTestServer(t)

	ts.Say(chat, "/start")

	last := ts.Messenger.Last()
	assert.Equal(t, chat, last.ChatID)
	assert.Equal(t, ts.T("welcome"), last.Message.Text)
	require.Len(t, last.Message.Buttons, 2)
	assert.Equal(t, intake.TokenMenuNew, last.Message.Buttons[0][0].Data)

	user, err := ts.DB.GetUser(chat)
	require.NoError(t, err)
	assert.Equal(t, "Test User", user.DisplayName)
}

func TestHelpAndUnknownCommand(t *testing.T) {
	ts := testutil.NewTestServer(t)

	ts.Say(chat, "/help")
	assert.Equal(t, ts.T("help"), ts.Messenger.Last().Message.Text)

	ts.Say(chat, "/frobnicate")
	assert.Equal(t, ts.T("unknown_command"), ts.Messenger.Last().Message.Text)
}

func TestNewReminderThroughButtons(t *testing.T) {
	ts := testutil.NewTestServer(t)

	ts.Say(chat, "/new")
	assert.Equal(t, ts.T("ask_name"), ts.Messenger.Last().Message.Text)

	ts.Say(chat, "feed baby")
	assert.Equal(t, ts.T("ask_kind"), ts.Messenger.Last().Message.Text)

	ts.Press(chat, "kind:resetting", 0)
	assert.Equal(t, ts.T("ask_unit"), ts.Messenger.Last().Message.Text)

	ts.Press(chat, "unit:hour", 0)
	assert.Equal(t, "How many hours?", ts.Messenger.Last().Message.Text)

	ts.Say(chat, "3")
	assert.Equal(t, ts.T("reminder_added"), ts.Messenger.Last().Message.Text)

	list := ts.Store.List(chat)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].ID)
	assert.Equal(t, "feed baby", list[0].Name)
	assert.Equal(t, reminder.KindResetting, list[0].Kind)
	assert.Equal(t, 3, list[0].Amount)
	assert.Equal(t, "en", list[0].Language)
	assert.Equal(t, testutil.DefaultStart, list[0].LastDoneAt)
}

func TestQuickAdd(t *testing.T) {
	ts := testutil.NewTestServer(t)

	ts.Say(chat, "/add 15 take out the laundry")
	assert.Equal(t, ts.T("reminder_set", 15), ts.Messenger.Last().Message.Text)

	list := ts.Store.List(chat)
	require.Len(t, list, 1)
	assert.Equal(t, reminder.KindOnce, list[0].Kind)
	assert.Equal(t, "take out the laundry", list[0].Name)
	assert.Equal(t, testutil.DefaultStart.Add(15*time.Minute), list[0].ScheduledAt)

	for _, bad := range []string{"/add", "/add 15", "/add soon laundry", "/add -5 laundry", "/add 200000000 laundry"} {
		ts.Say(chat, bad)
		assert.Equal(t, ts.T("invalid_add_format"), ts.Messenger.Last().Message.Text, bad)
	}
	assert.Len(t, ts.Store.List(chat), 1)
}

func TestQuickPeriodic(t *testing.T) {
	ts := testutil.NewTestServer(t)

	ts.Say(chat, "/periodic 3 hours feed baby")
	assert.Equal(t, ts.T("reminder_added"), ts.Messenger.Last().Message.Text)

	list := ts.Store.List(chat)
	require.Len(t, list, 1)
	assert.Equal(t, reminder.KindResetting, list[0].Kind)
	assert.Equal(t, reminder.UnitHour, list[0].Unit)

	for _, bad := range []string{"/periodic 3 hours", "/periodic x hours feed", "/periodic 3 parsecs feed", "/periodic 0 hours feed", "/periodic 20000 weeks feed"} {
		ts.Say(chat, bad)
		assert.Equal(t, ts.T("invalid_interval_format"), ts.Messenger.Last().Message.Text, bad)
	}
}

func TestQuickDaily_DefaultTimezone(t *testing.T) {
	ts := testutil.NewTestServer(t)

	ts.Say(chat, "/daily 09:30 vitamin D")
	assert.Equal(t, ts.T("reminder_added"), ts.Messenger.Last().Message.Text)

	list := ts.Store.List(chat)
	require.Len(t, list, 1)
	assert.Equal(t, reminder.KindFixed, list[0].Kind)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC), reminder.NextTriggerAt(list[0]))

	ts.Say(chat, "/daily 25:00 vitamin D")
	assert.Equal(t, ts.T("invalid_time_format"), ts.Messenger.Last().Message.Text)
}

func TestQuickDaily_UserTimezone(t *testing.T) {
	if _, err := time.LoadLocation("Asia/Jerusalem"); err != nil {
		t.Skip("tzdata not available")
	}
	ts := testutil.NewTestServer(t)

	ts.Say(chat, "/tz Asia/Jerusalem")
	assert.Equal(t, ts.T("timezone_changed", "Asia/Jerusalem"), ts.Messenger.Last().Message.Text)

	// 09:30 in Jerusalem is 07:30 UTC, already past at 08:00 UTC
	ts.Say(chat, "/daily 09:30 vitamin D")
	list := ts.Store.List(chat)
	require.Len(t, list, 1)
	assert.Equal(t, time.Date(2024, 3, 11, 7, 30, 0, 0, time.UTC), reminder.NextTriggerAt(list[0]))

	ts.Say(chat, "/list")
	assert.Contains(t, ts.Messenger.Last().Message.Text, "next: 2024-03-11 09:30")
}

func TestTimezone_Invalid(t *testing.T) {
	ts := testutil.NewTestServer(t)

	for _, tz := range []string{"/tz", "/tz Jerusalem", "/tz Mars/Olympus_Mons"} {
		ts.Say(chat, tz)
		assert.Equal(t, ts.T("invalid_timezone"), ts.Messenger.Last().Message.Text, tz)
	}
}

func TestList(t *testing.T) {
	ts := testutil.NewTestServer(t)

	ts.Say(chat, "/list")
	assert.Equal(t, ts.T("no_reminders"), ts.Messenger.Last().Message.Text)

	testutil.NewReminderBuilder("water").Fixed().Every(2, reminder.UnitHour).CreatedAt(testutil.DefaultStart).MustAdd(t, ts.Store, chat)
	testutil.NewReminderBuilder("vitamin").Once().Every(30, reminder.UnitMinute).CreatedAt(testutil.DefaultStart).MustAdd(t, ts.Store, chat)

	ts.Press(chat, intake.TokenMenuList, 0)
	text := ts.Messenger.Last().Message.Text
	assert.Equal(t,
		"📋 Your reminders:\n"+
			"#1 water - Fixed interval, every 2 hours, next: 2024-03-10 10:00\n"+
			"#2 vitamin - One time, at 2024-03-10 08:30",
		text)
}

func TestLanguageSwitch(t *testing.T) {
	ts := testutil.NewTestServer(t)
	ts.Say(chat, "/start")

	ts.Say(chat, "/lang")
	last := ts.Messenger.Last()
	require.Len(t, last.Message.Buttons, 2)
	assert.Equal(t, "lang:he", last.Message.Buttons[0][0].Data)

	ts.Press(chat, "lang:he", 77)
	edited := ts.Messenger.Last()
	assert.True(t, edited.Edited)
	assert.Equal(t, 77, edited.MessageID)
	assert.Equal(t, ts.Catalog.T("he", "language_changed"), edited.Message.Text)

	user, err := ts.DB.GetUser(chat)
	require.NoError(t, err)
	assert.Equal(t, "he", user.Language)

	ts.Say(chat, "/help")
	assert.Equal(t, ts.Catalog.T("he", "help"), ts.Messenger.Last().Message.Text)

	ts.Press(chat, "lang:fr", 0)
	assert.Equal(t, ts.Catalog.T("he", "use_menu"), ts.Messenger.Last().Message.Text)
}

func TestAcknowledge_FromNotification(t *testing.T) {
	ts := testutil.NewTestServer(t)
	feed := testutil.NewReminderBuilder("feed baby").Resetting().Every(3, reminder.UnitHour).CreatedAt(testutil.DefaultStart).MustAdd(t, ts.Store, chat)

	// Pressing done works in the middle of creating another reminder
	ts.Say(chat, "/new")
	ts.Clock.Advance(3*time.Hour + 5*time.Minute)
	ts.Press(chat, notify.AckToken(feed.ID), 12)

	last := ts.Messenger.Last()
	assert.True(t, last.Edited)
	assert.Equal(t, ts.T("reminder_done", "feed baby"), last.Message.Text)

	got, err := ts.Store.Get(chat, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, ts.Clock.Now(), got.LastDoneAt)
	assert.Equal(t, intake.AwaitingName, ts.Router.Machine().State(chat).Step)

	ts.Press(chat, notify.AckToken(5), 13)
	assert.Equal(t, ts.T("reminder_not_found", 5), ts.Messenger.Last().Message.Text)
}

func TestDeleteMissingID(t *testing.T) {
	ts := testutil.NewTestServer(t)
	testutil.NewReminderBuilder("water").Fixed().Every(2, reminder.UnitHour).CreatedAt(testutil.DefaultStart).MustAdd(t, ts.Store, chat)

	ts.Say(chat, "/delete")
	last := ts.Messenger.Last()
	assert.Equal(t, ts.T("choose_reminder_to_cancel"), last.Message.Text)
	require.Len(t, last.Message.Buttons, 2)
	assert.Equal(t, "pick:1", last.Message.Buttons[0][0].Data)

	ts.Say(chat, "5")
	assert.Equal(t, ts.T("reminder_not_found", 5), ts.Messenger.Last().Message.Text)
	assert.Equal(t, intake.Idle, ts.Router.Machine().State(chat).Step)
	assert.Len(t, ts.Store.List(chat), 1)
}

func TestCancelCommand(t *testing.T) {
	ts := testutil.NewTestServer(t)

	ts.Say(chat, "/cancel")
	assert.Equal(t, ts.T("nothing_to_cancel"), ts.Messenger.Last().Message.Text)

	ts.Say(chat, "/new")
	ts.Say(chat, "/cancel")
	assert.Equal(t, ts.T("intake_cancelled"), ts.Messenger.Last().Message.Text)
	assert.Equal(t, intake.Idle, ts.Router.Machine().State(chat).Step)
}

func TestReplyFailureIsReturned(t *testing.T) {
	ts := testutil.NewTestServer(t)
	ts.Messenger.FailWith(errors.New("flood wait"))

	ev := source.NewMessageEvent(chat, "Test User", "/help", ts.Clock.Now())
	err := ts.Router.Handle(t.Context(), ev)
	assert.Error(t, err)
}

func TestIntakeCompletedMetric(t *testing.T) {
	ts := testutil.NewTestServer(t)

	ts.Say(chat, "/periodic 3 hours feed baby")
	ts.Say(chat, "/add 10 vitamin")

	families, err := ts.Registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() == "babycare_intake_completed_total" {
			for _, m := range f.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), total)
}

func TestWakeupForOnceReminders(t *testing.T) {
	ts := testutil.NewTestServer(t)

	var wakeups []time.Time
	router := bot.NewRouter(bot.Config{
		Reminders:       ts.Store,
		Users:           ts.DB,
		Messenger:       ts.Messenger,
		Catalog:         ts.Catalog,
		DefaultTimezone: "UTC",
		Now:             ts.Clock.Now,
		Wakeup:          func(at time.Time) { wakeups = append(wakeups, at) },
	})

	for _, text := range []string{"/add 20 vitamin", "/periodic 3 hours feed baby", "/add x broken"} {
		ev := source.NewMessageEvent(chat, "Test User", text, ts.Clock.Now())
		require.NoError(t, router.Handle(t.Context(), ev))
	}

	assert.Equal(t, []time.Time{testutil.DefaultStart.Add(20 * time.Minute)}, wakeups)
}
