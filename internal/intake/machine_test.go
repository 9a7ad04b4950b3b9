package intake

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omriShneor/babycare_bot/internal/i18n"
	"github.com/omriShneor/babycare_bot/internal/reminder"
	"github.com/omriShneor/babycare_bot/internal/store"
)

const chat = int64(1001)

var t0 = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

func newMachine(t *testing.T) (*Machine, *store.Store) {
	t.Helper()
	p, err := store.NewFilePersister(filepath.Join(t.TempDir(), "reminders.json"))
	require.NoError(t, err)
	s := store.New(p, nil)
	require.NoError(t, s.Load(context.Background()))
	return NewMachine(s, nil), s
}

func text(s string) Input  { return Input{Text: s, At: t0} }
func token(s string) Input { return Input{Token: s, At: t0} }

// walkToAmount drives a new chat to AwaitingAmount
func walkToAmount(t *testing.T, m *Machine, kind reminder.Kind, unit reminder.Unit) {
	t.Helper()
	ctx := context.Background()
	assert.Equal(t, "ask_name", m.Begin(chat).Key)
	assert.Equal(t, "ask_kind", m.Handle(ctx, chat, text("feed baby")).Key)
	assert.Equal(t, "ask_unit", m.Handle(ctx, chat, token("kind:"+string(kind))).Key)
	assert.Equal(t, "ask_amount", m.Handle(ctx, chat, token("unit:"+string(unit))).Key)
	require.Equal(t, AwaitingAmount, m.State(chat).Step)
}

func TestMachine_HappyPath(t *testing.T) {
	m, s := newMachine(t)
	walkToAmount(t, m, reminder.KindResetting, reminder.UnitHour)

	reply := m.Handle(context.Background(), chat, text("3"))
	assert.Equal(t, "reminder_added", reply.Key)
	require.NotNil(t, reply.Added)
	assert.Equal(t, 1, reply.Added.ID)
	assert.Equal(t, Idle, m.State(chat).Step)

	list := s.List(chat)
	require.Len(t, list, 1)
	assert.Equal(t, "feed baby", list[0].Name)
	assert.Equal(t, reminder.KindResetting, list[0].Kind)
	assert.Equal(t, reminder.UnitHour, list[0].Unit)
	assert.Equal(t, 3, list[0].Amount)
	assert.Equal(t, t0, list[0].LastDoneAt)
}

func TestMachine_AmountIsRetriedUntilValid(t *testing.T) {
	m, s := newMachine(t)
	walkToAmount(t, m, reminder.KindFixed, reminder.UnitMinute)
	draft := m.State(chat).Draft

	for _, bad := range []string{"abc", "", "0", "-4", "2.5", "three", "99999999999999999999"} {
		reply := m.Handle(context.Background(), chat, text(bad))
		assert.Equal(t, "invalid_amount", reply.Key, bad)
		assert.Equal(t, AwaitingAmount, m.State(chat).Step, bad)
		assert.Equal(t, draft, m.State(chat).Draft, bad)
	}
	assert.Zero(t, s.Len())

	reply := m.Handle(context.Background(), chat, text(" 45 "))
	assert.Equal(t, "reminder_added", reply.Key)
	assert.Equal(t, Idle, m.State(chat).Step)
	require.Len(t, s.List(chat), 1)
	assert.Equal(t, 45, s.List(chat)[0].Amount)
}

func TestMachine_AmountTooLongIsRetried(t *testing.T) {
	m, s := newMachine(t)
	walkToAmount(t, m, reminder.KindResetting, reminder.UnitWeek)

	reply := m.Handle(context.Background(), chat, text("20000"))
	assert.Equal(t, "invalid_amount", reply.Key)
	assert.Nil(t, reply.Added)
	assert.Equal(t, AwaitingAmount, m.State(chat).Step)
	assert.Zero(t, s.Len())

	reply = m.Handle(context.Background(), chat, text("2"))
	assert.Equal(t, "reminder_added", reply.Key)
	require.Len(t, s.List(chat), 1)
	assert.Equal(t, 14*24*time.Hour, s.List(chat)[0].Interval().Duration())
}

func TestMachine_InvalidEventsLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t)

	m.Begin(chat)
	reply := m.Handle(ctx, chat, token("kind:fixed"))
	assert.Equal(t, "use_menu", reply.Key)
	assert.Equal(t, AwaitingName, m.State(chat).Step)

	m.Handle(ctx, chat, text("water"))
	before := m.State(chat)

	for _, in := range []Input{text("fixed"), token("unit:hour"), token("kind:sometimes"), token("menu:new")} {
		reply := m.Handle(ctx, chat, in)
		assert.Equal(t, "use_menu", reply.Key)
		assert.Equal(t, before, m.State(chat))
	}

	m.Handle(ctx, chat, token("kind:fixed"))
	reply = m.Handle(ctx, chat, token("unit:fortnight"))
	assert.Equal(t, "use_menu", reply.Key)
	assert.Equal(t, AwaitingUnit, m.State(chat).Step)

	m.Handle(ctx, chat, token("unit:day"))
	reply = m.Handle(ctx, chat, token("unit:day"))
	assert.Equal(t, "use_menu", reply.Key)
	assert.Equal(t, AwaitingAmount, m.State(chat).Step)
}

func TestMachine_IdleTextShowsMenu(t *testing.T) {
	m, _ := newMachine(t)

	reply := m.Handle(context.Background(), chat, text("hello"))
	assert.Equal(t, "use_menu", reply.Key)
	assert.Equal(t, MainMenu(), reply.Buttons)
	assert.Equal(t, Idle, m.State(chat).Step)
}

func TestMachine_EmptyNameIsRejected(t *testing.T) {
	m, _ := newMachine(t)
	m.Begin(chat)

	reply := m.Handle(context.Background(), chat, text("   "))
	assert.Equal(t, "invalid_name", reply.Key)
	assert.Equal(t, AwaitingName, m.State(chat).Step)
}

func TestMachine_CancelFromAnyStep(t *testing.T) {
	ctx := context.Background()
	m, s := newMachine(t)

	assert.Equal(t, "nothing_to_cancel", m.Handle(ctx, chat, token(TokenCancel)).Key)

	m.Begin(chat)
	assert.Equal(t, "intake_cancelled", m.Handle(ctx, chat, token(TokenCancel)).Key)
	assert.Equal(t, Idle, m.State(chat).Step)

	walkToAmount(t, m, reminder.KindOnce, reminder.UnitMinute)
	assert.Equal(t, "intake_cancelled", m.Cancel(chat).Key)
	assert.Equal(t, Idle, m.State(chat).Step)
	assert.Zero(t, s.Len())
}

func TestMachine_MenuTokensStartFlows(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t)

	assert.Equal(t, "ask_name", m.Handle(ctx, chat, token(TokenMenuNew)).Key)
	m.Cancel(chat)

	assert.Equal(t, "no_reminders", m.Handle(ctx, chat, token(TokenMenuDelete)).Key)
	assert.Equal(t, Idle, m.State(chat).Step)
}

func addReminders(t *testing.T, s *store.Store, names ...string) {
	t.Helper()
	for _, name := range names {
		r, err := reminder.New(name, reminder.KindResetting, reminder.Interval{Unit: reminder.UnitHour, Amount: 3}, t0)
		require.NoError(t, err)
		_, err = s.Add(context.Background(), chat, r)
		require.NoError(t, err)
	}
}

func TestMachine_DeleteMissingIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	m, s := newMachine(t)
	addReminders(t, s, "a", "b", "c")
	before := s.List(chat)

	reply := m.BeginSelection(chat, ActionDelete)
	assert.Equal(t, "choose_reminder_to_cancel", reply.Key)
	assert.Len(t, reply.Buttons, 4, "one row per reminder plus cancel")
	assert.Equal(t, "pick:1", reply.Buttons[0][0].Data)

	reply = m.Handle(ctx, chat, token("pick:5"))
	assert.Equal(t, "reminder_not_found", reply.Key)
	assert.Equal(t, []any{5}, reply.Args)
	assert.Equal(t, Idle, m.State(chat).Step)
	assert.Equal(t, before, s.List(chat))
}

func TestMachine_DeleteByPick(t *testing.T) {
	ctx := context.Background()
	m, s := newMachine(t)
	addReminders(t, s, "a", "b")

	m.BeginSelection(chat, ActionDelete)
	reply := m.Handle(ctx, chat, token("pick:2"))
	assert.Equal(t, "reminder_cancelled", reply.Key)
	require.Len(t, s.List(chat), 1)
	assert.Equal(t, "a", s.List(chat)[0].Name)
}

func TestMachine_DoneByTypedName(t *testing.T) {
	ctx := context.Background()
	m, s := newMachine(t)
	addReminders(t, s, "water", "Feed Baby")

	m.BeginSelection(chat, ActionDone)
	at := t0.Add(3*time.Hour + 5*time.Minute)
	reply := m.Handle(ctx, chat, Input{Text: "feed baby", At: at})
	assert.Equal(t, "reminder_done", reply.Key)
	assert.Equal(t, []any{"Feed Baby"}, reply.Args)

	got, err := s.Get(chat, 2)
	require.NoError(t, err)
	assert.Equal(t, at, got.LastDoneAt)
}

func TestMachine_SelectionRejectsUnknownName(t *testing.T) {
	m, s := newMachine(t)
	addReminders(t, s, "water")

	m.BeginSelection(chat, ActionDone)
	reply := m.Handle(context.Background(), chat, text("laundry"))
	assert.Equal(t, "use_menu", reply.Key)
	assert.Equal(t, AwaitingSelection, m.State(chat).Step)
}

func TestMachine_ChatsAreIndependent(t *testing.T) {
	m, _ := newMachine(t)
	m.Begin(chat)
	assert.Equal(t, Idle, m.State(chat+1).Step)
}

func TestReply_Render(t *testing.T) {
	c := i18n.MustLoad("he")
	m, _ := newMachine(t)
	ctx := context.Background()

	m.Begin(chat)
	m.Handle(ctx, chat, text("water"))
	m.Handle(ctx, chat, token("kind:fixed"))
	reply := m.Handle(ctx, chat, token("unit:hour"))

	out := reply.Render(c, "en")
	assert.Equal(t, "How many hours?", out.Text)
	require.Len(t, out.Buttons, 1)
	assert.Equal(t, "✖️ Cancel", out.Buttons[0][0].Label)
	assert.Equal(t, TokenCancel, out.Buttons[0][0].Data)

	out = Reply{Key: "reminder_not_found", Args: []any{5}}.Render(c, "he")
	assert.Equal(t, "תזכורת #5 לא נמצאה.", out.Text)
	assert.Empty(t, out.Buttons)
}

func TestMachine_ConcurrentMenuPressesStartOneFlow(t *testing.T) {
	m, _ := newMachine(t)

	const presses = 20
	replies := make(chan string, presses)
	var wg sync.WaitGroup
	for range presses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replies <- m.Handle(context.Background(), chat, token(TokenMenuNew)).Key
		}()
	}
	wg.Wait()
	close(replies)

	started := 0
	for key := range replies {
		if key == "ask_name" {
			started++
		} else {
			assert.Equal(t, "use_menu", key)
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, AwaitingName, m.State(chat).Step)
}
