package intake

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omriShneor/babycare_bot/internal/reminder"
	"github.com/omriShneor/babycare_bot/internal/store"
)

// Step is where a chat is in the conversation
type Step int

const (
	Idle Step = iota
	AwaitingName
	AwaitingKind
	AwaitingUnit
	AwaitingAmount
	AwaitingSelection
)

func (s Step) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingName:
		return "awaiting_name"
	case AwaitingKind:
		return "awaiting_kind"
	case AwaitingUnit:
		return "awaiting_unit"
	case AwaitingAmount:
		return "awaiting_amount"
	case AwaitingSelection:
		return "awaiting_selection"
	}
	return "unknown"
}

// Action is what happens to the reminder picked in AwaitingSelection
type Action string

const (
	ActionDone   Action = "done"
	ActionDelete Action = "delete"
)

// Callback tokens understood by the machine
const (
	TokenCancel     = "cancel"
	TokenMenuNew    = "menu:new"
	TokenMenuDone   = "menu:done"
	TokenMenuDelete = "menu:delete"
	TokenMenuList   = "menu:list"
	prefixKind      = "kind:"
	prefixUnit      = "unit:"
	prefixPick      = "pick:"
)

// Draft is the reminder being collected
type Draft struct {
	Name   string
	Kind   reminder.Kind
	Unit   reminder.Unit
	Amount int
}

// State is one chat's position in the conversation
type State struct {
	Step   Step
	Draft  Draft
	Action Action
}

// Input is a free-text message or a button token. Language is recorded on reminders created
// from it.
type Input struct {
	Text     string
	Token    string
	At       time.Time
	Language string
}

// Reminders is the part of the store the machine commits to
type Reminders interface {
	Add(ctx context.Context, owner int64, r reminder.Reminder) (reminder.Reminder, error)
	List(owner int64) []reminder.Reminder
	Remove(ctx context.Context, owner int64, id int) (reminder.Reminder, error)
	MarkDone(ctx context.Context, owner int64, id int, when time.Time) (reminder.Reminder, error)
}

// Machine tracks the conversation of every chat. A state only changes on a valid event;
// anything else is answered with "use the menu" and leaves the state as it was.
type Machine struct {
	reminders Reminders
	logger    *zap.Logger

	mu     sync.Mutex
	states map[int64]State
}

// NewMachine creates a machine committing finished drafts to reminders
func NewMachine(reminders Reminders, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		reminders: reminders,
		logger:    logger.Named("intake"),
		states:    make(map[int64]State),
	}
}

// State returns the chat's current state
func (m *Machine) State(chat int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[chat]
}

// Begin starts collecting a new reminder, discarding any conversation in progress
func (m *Machine) Begin(chat int64) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beginLocked(chat)
}

func (m *Machine) beginLocked(chat int64) Reply {
	m.setLocked(chat, State{Step: AwaitingName})
	return Reply{Key: "ask_name", Buttons: cancelRow()}
}

// BeginSelection presents the chat's reminders to pick one for action
func (m *Machine) BeginSelection(chat int64, action Action) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beginSelectionLocked(chat, action)
}

func (m *Machine) beginSelectionLocked(chat int64, action Action) Reply {
	list := m.reminders.List(chat)
	if len(list) == 0 {
		m.setLocked(chat, State{})
		return Reply{Key: "no_reminders"}
	}

	m.setLocked(chat, State{Step: AwaitingSelection, Action: action})
	rows := make([][]Button, 0, len(list)+1)
	for _, r := range list {
		rows = append(rows, []Button{{
			Label: "#" + strconv.Itoa(r.ID) + " " + r.Name,
			Data:  prefixPick + strconv.Itoa(r.ID),
		}})
	}
	rows = append(rows, cancelRow()...)

	key := "choose_reminder_to_cancel"
	if action == ActionDone {
		key = "choose_reminder_done"
	}
	return Reply{Key: key, Buttons: rows}
}

// Cancel returns the chat to Idle
func (m *Machine) Cancel(chat int64) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelLocked(chat)
}

func (m *Machine) cancelLocked(chat int64) Reply {
	if m.states[chat].Step == Idle {
		return Reply{Key: "nothing_to_cancel"}
	}
	m.setLocked(chat, State{})
	return Reply{Key: "intake_cancelled"}
}

// Handle feeds one event to the chat's state
func (m *Machine) Handle(ctx context.Context, chat int64, in Input) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in.Token == TokenCancel {
		return m.cancelLocked(chat)
	}

	st := m.states[chat]
	if st.Step == Idle {
		switch in.Token {
		case TokenMenuNew:
			return m.beginLocked(chat)
		case TokenMenuDone:
			return m.beginSelectionLocked(chat, ActionDone)
		case TokenMenuDelete:
			return m.beginSelectionLocked(chat, ActionDelete)
		}
	}

	var reply Reply
	var handled bool
	switch st.Step {
	case AwaitingName:
		reply, handled = m.onName(chat, st, in)
	case AwaitingKind:
		reply, handled = m.onKind(chat, st, in)
	case AwaitingUnit:
		reply, handled = m.onUnit(chat, st, in)
	case AwaitingAmount:
		reply, handled = m.onAmount(ctx, chat, st, in)
	case AwaitingSelection:
		reply, handled = m.onSelection(ctx, chat, st, in)
	}
	if !handled {
		m.logger.Debug("event not valid for step",
			zap.Int64("chat_id", chat),
			zap.Stringer("step", st.Step),
			zap.String("token", in.Token))
		return useMenu(st.Step)
	}
	return reply
}

func (m *Machine) onName(chat int64, st State, in Input) (Reply, bool) {
	if in.Token != "" {
		return Reply{}, false
	}
	name := strings.TrimSpace(in.Text)
	if name == "" {
		return Reply{Key: "invalid_name", Buttons: cancelRow()}, true
	}

	st.Draft.Name = name
	st.Step = AwaitingKind
	m.setLocked(chat, st)

	row := make([]Button, 0, len(reminder.Kinds))
	for _, k := range reminder.Kinds {
		row = append(row, Button{LabelKey: "kind_" + string(k), Data: prefixKind + string(k)})
	}
	return Reply{Key: "ask_kind", Buttons: append([][]Button{row}, cancelRow()...)}, true
}

func (m *Machine) onKind(chat int64, st State, in Input) (Reply, bool) {
	value, ok := strings.CutPrefix(in.Token, prefixKind)
	if !ok {
		return Reply{}, false
	}
	kind, err := reminder.ParseKind(value)
	if err != nil {
		return Reply{}, false
	}

	st.Draft.Kind = kind
	st.Step = AwaitingUnit
	m.setLocked(chat, st)
	return Reply{Key: "ask_unit", Buttons: unitRows()}, true
}

func (m *Machine) onUnit(chat int64, st State, in Input) (Reply, bool) {
	value, ok := strings.CutPrefix(in.Token, prefixUnit)
	if !ok {
		return Reply{}, false
	}
	unit, err := reminder.ParseUnit(value)
	if err != nil {
		return Reply{}, false
	}

	st.Draft.Unit = unit
	st.Step = AwaitingAmount
	m.setLocked(chat, st)
	return Reply{Key: "ask_amount", Args: []any{Msg{Key: "unit_" + string(unit)}}, Buttons: cancelRow()}, true
}

func (m *Machine) onAmount(ctx context.Context, chat int64, st State, in Input) (Reply, bool) {
	if in.Token != "" {
		return Reply{}, false
	}
	amount, err := strconv.Atoi(strings.TrimSpace(in.Text))
	if err != nil || amount <= 0 {
		return Reply{Key: "invalid_amount", Buttons: cancelRow()}, true
	}

	interval, err := reminder.NewInterval(st.Draft.Unit, amount)
	if err != nil {
		return Reply{Key: "invalid_amount", Buttons: cancelRow()}, true
	}
	r, err := reminder.New(st.Draft.Name, st.Draft.Kind, interval, in.At)
	if err != nil {
		m.logger.Error("draft did not produce a valid reminder", zap.Int64("chat_id", chat), zap.Error(err))
		m.setLocked(chat, State{})
		return Reply{Key: "intake_cancelled"}, true
	}
	r.Language = in.Language

	added, err := m.reminders.Add(ctx, chat, r)
	if err != nil {
		// Draft is kept so the user can resend the amount.
		m.logger.Error("failed to add reminder", zap.Int64("chat_id", chat), zap.Error(err))
		return Reply{Key: "storage_error", Buttons: cancelRow()}, true
	}

	m.setLocked(chat, State{})
	return Reply{Key: "reminder_added", Added: &added}, true
}

func (m *Machine) onSelection(ctx context.Context, chat int64, st State, in Input) (Reply, bool) {
	var id int
	switch {
	case strings.HasPrefix(in.Token, prefixPick):
		n, err := strconv.Atoi(strings.TrimPrefix(in.Token, prefixPick))
		if err != nil {
			return Reply{}, false
		}
		id = n
	case in.Token == "":
		text := strings.TrimPrefix(strings.TrimSpace(in.Text), "#")
		if n, err := strconv.Atoi(text); err == nil {
			id = n
			break
		}
		found := false
		for _, r := range m.reminders.List(chat) {
			if strings.EqualFold(r.Name, text) {
				id, found = r.ID, true
				break
			}
		}
		if !found {
			return Reply{}, false
		}
	default:
		return Reply{}, false
	}

	var (
		r   reminder.Reminder
		err error
	)
	if st.Action == ActionDone {
		r, err = m.reminders.MarkDone(ctx, chat, id, in.At)
	} else {
		r, err = m.reminders.Remove(ctx, chat, id)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		m.setLocked(chat, State{})
		return Reply{Key: "reminder_not_found", Args: []any{id}}, true
	case err != nil:
		m.logger.Error("failed to apply selection",
			zap.Int64("chat_id", chat),
			zap.Int("id", id),
			zap.String("action", string(st.Action)),
			zap.Error(err))
		m.setLocked(chat, State{})
		return Reply{Key: "storage_error"}, true
	}

	m.setLocked(chat, State{})
	if st.Action == ActionDone {
		return Reply{Key: "reminder_done", Args: []any{r.Name}}, true
	}
	return Reply{Key: "reminder_cancelled"}, true
}

func (m *Machine) setLocked(chat int64, st State) {
	if st.Step == Idle {
		delete(m.states, chat)
		return
	}
	m.states[chat] = st
}

func useMenu(step Step) Reply {
	if step == Idle {
		return Reply{Key: "use_menu", Buttons: MainMenu()}
	}
	return Reply{Key: "use_menu", Buttons: cancelRow()}
}

func cancelRow() [][]Button {
	return [][]Button{{{LabelKey: "button_cancel", Data: TokenCancel}}}
}

func unitRows() [][]Button {
	row := make([]Button, 0, len(reminder.Units))
	for _, u := range reminder.Units {
		row = append(row, Button{LabelKey: "unit_" + string(u), Data: prefixUnit + string(u)})
	}
	return append([][]Button{row}, cancelRow()...)
}

// MainMenu is the idle menu
func MainMenu() [][]Button {
	return [][]Button{
		{{LabelKey: "menu_new", Data: TokenMenuNew}, {LabelKey: "menu_list", Data: TokenMenuList}},
		{{LabelKey: "menu_done", Data: TokenMenuDone}, {LabelKey: "menu_delete", Data: TokenMenuDelete}},
	}
}
