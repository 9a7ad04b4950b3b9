package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omriShneor/babycare_bot/internal/database"
	"github.com/omriShneor/babycare_bot/internal/i18n"
	"github.com/omriShneor/babycare_bot/internal/intake"
	"github.com/omriShneor/babycare_bot/internal/metrics"
	"github.com/omriShneor/babycare_bot/internal/notify"
	"github.com/omriShneor/babycare_bot/internal/reminder"
	"github.com/omriShneor/babycare_bot/internal/source"
	"github.com/omriShneor/babycare_bot/internal/store"
)

const langPrefix = "lang:"

// Reminders is the store as used by the router
type Reminders interface {
	intake.Reminders
}

// Users stores per-chat settings
type Users interface {
	UpsertUser(chatID, accessHash int64, displayName string) error
	GetUser(chatID int64) (*database.User, error)
	SetUserLanguage(chatID int64, language string) error
	SetUserTimezone(chatID int64, timezone string) error
}

// Config wires a Router. Metrics and Wakeup are optional.
type Config struct {
	Reminders       Reminders
	Users           Users
	Messenger       source.Messenger
	Catalog         *i18n.Catalog
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
	DefaultTimezone string
	Now             func() time.Time
	// Wakeup asks for a due-check at the trigger time of a new one-time reminder, so it does
	// not wait for the next periodic tick.
	Wakeup func(at time.Time)
}

// Router turns inbound events into store operations and replies
type Router struct {
	reminders       Reminders
	users           Users
	messenger       source.Messenger
	catalog         *i18n.Catalog
	metrics         *metrics.Metrics
	machine         *intake.Machine
	logger          *zap.Logger
	defaultTimezone string
	now             func() time.Time
	wakeup          func(at time.Time)
}

func NewRouter(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Router{
		reminders:       cfg.Reminders,
		users:           cfg.Users,
		messenger:       cfg.Messenger,
		catalog:         cfg.Catalog,
		metrics:         cfg.Metrics,
		machine:         intake.NewMachine(cfg.Reminders, logger),
		logger:          logger.Named("router"),
		defaultTimezone: cfg.DefaultTimezone,
		now:             now,
		wakeup:          cfg.Wakeup,
	}
}

// Machine exposes the intake machine, for status endpoints and tests
func (r *Router) Machine() *intake.Machine {
	return r.machine
}

// Handle processes one event to completion. The returned error is a failure to reply.
func (r *Router) Handle(ctx context.Context, ev source.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	ev.Timestamp = ev.Timestamp.UTC()

	r.logger.Debug("handling event",
		zap.Int64("chat_id", ev.ChatID),
		zap.String("kind", string(ev.Kind)),
		zap.String("command", ev.Command),
		zap.String("data", ev.Data))

	switch ev.Kind {
	case source.EventCommand:
		return r.handleCommand(ctx, ev)
	case source.EventCallback:
		return r.handleCallback(ctx, ev)
	default:
		return r.handleText(ctx, ev)
	}
}

func (r *Router) handleCommand(ctx context.Context, ev source.Event) error {
	lang := r.language(ev.ChatID)

	switch ev.Command {
	case "start":
		if err := r.users.UpsertUser(ev.ChatID, 0, ev.SenderName); err != nil {
			r.logger.Error("failed to register user", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
		}
		return r.reply(ctx, ev.ChatID, lang, intake.Reply{Key: "welcome", Buttons: intake.MainMenu()})
	case "help":
		return r.reply(ctx, ev.ChatID, lang, intake.Reply{Key: "help"})
	case "lang":
		return r.reply(ctx, ev.ChatID, lang, languageMenu())
	case "new":
		return r.reply(ctx, ev.ChatID, lang, r.machine.Begin(ev.ChatID))
	case "list":
		return r.sendList(ctx, ev.ChatID, lang)
	case "done":
		return r.reply(ctx, ev.ChatID, lang, r.machine.BeginSelection(ev.ChatID, intake.ActionDone))
	case "delete":
		return r.reply(ctx, ev.ChatID, lang, r.machine.BeginSelection(ev.ChatID, intake.ActionDelete))
	case "cancel":
		return r.reply(ctx, ev.ChatID, lang, r.machine.Cancel(ev.ChatID))
	case "add":
		return r.reply(ctx, ev.ChatID, lang, r.quickAdd(ctx, ev, lang))
	case "daily":
		return r.reply(ctx, ev.ChatID, lang, r.quickDaily(ctx, ev, lang))
	case "periodic":
		return r.reply(ctx, ev.ChatID, lang, r.quickPeriodic(ctx, ev, lang))
	case "tz":
		return r.reply(ctx, ev.ChatID, lang, r.setTimezone(ev))
	}
	return r.reply(ctx, ev.ChatID, lang, intake.Reply{Key: "unknown_command"})
}

func (r *Router) handleCallback(ctx context.Context, ev source.Event) error {
	lang := r.language(ev.ChatID)

	if code, ok := strings.CutPrefix(ev.Data, langPrefix); ok {
		return r.setLanguage(ctx, ev, code)
	}
	if id, ok := notify.ParseAckToken(ev.Data); ok {
		return r.acknowledge(ctx, ev, lang, id)
	}
	if ev.Data == intake.TokenMenuList {
		return r.sendList(ctx, ev.ChatID, lang)
	}

	return r.reply(ctx, ev.ChatID, lang, r.machine.Handle(ctx, ev.ChatID, intake.Input{
		Token:    ev.Data,
		At:       ev.Timestamp,
		Language: lang,
	}))
}

func (r *Router) handleText(ctx context.Context, ev source.Event) error {
	lang := r.language(ev.ChatID)
	return r.reply(ctx, ev.ChatID, lang, r.machine.Handle(ctx, ev.ChatID, intake.Input{
		Text:     ev.Text,
		At:       ev.Timestamp,
		Language: lang,
	}))
}

func (r *Router) setLanguage(ctx context.Context, ev source.Event, code string) error {
	if !r.catalog.Supported(code) {
		return r.reply(ctx, ev.ChatID, r.language(ev.ChatID), intake.Reply{Key: "use_menu"})
	}
	if err := r.users.SetUserLanguage(ev.ChatID, code); err != nil {
		r.logger.Error("failed to set language", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
		return r.reply(ctx, ev.ChatID, code, intake.Reply{Key: "storage_error"})
	}
	return r.edit(ctx, ev, code, intake.Reply{Key: "language_changed"})
}

// acknowledge handles the done button of a due notification, whatever the intake step
func (r *Router) acknowledge(ctx context.Context, ev source.Event, lang string, id int) error {
	done, err := r.reminders.MarkDone(ctx, ev.ChatID, id, ev.Timestamp)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return r.edit(ctx, ev, lang, intake.Reply{Key: "reminder_not_found", Args: []any{id}})
	case err != nil:
		r.logger.Error("failed to mark reminder done", zap.Int64("chat_id", ev.ChatID), zap.Int("id", id), zap.Error(err))
		return r.reply(ctx, ev.ChatID, lang, intake.Reply{Key: "storage_error"})
	}
	return r.edit(ctx, ev, lang, intake.Reply{Key: "reminder_done", Args: []any{done.Name}})
}

func (r *Router) setTimezone(ev source.Event) intake.Reply {
	tz := ev.ArgText(0)
	if !validTimezone(tz) {
		return intake.Reply{Key: "invalid_timezone"}
	}
	if err := r.users.SetUserTimezone(ev.ChatID, tz); err != nil {
		r.logger.Error("failed to set timezone", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
		return intake.Reply{Key: "storage_error"}
	}
	return intake.Reply{Key: "timezone_changed", Args: []any{tz}}
}

// reply renders and sends a reply, counting committed reminders
func (r *Router) reply(ctx context.Context, chatID int64, lang string, rep intake.Reply) error {
	if rep.Added != nil {
		r.metrics.IntakeCompleted(string(rep.Added.Kind))
		if r.wakeup != nil && rep.Added.Kind == reminder.KindOnce {
			r.wakeup(reminder.NextTriggerAt(*rep.Added))
		}
	}
	if err := r.messenger.Send(ctx, chatID, rep.Render(r.catalog, lang)); err != nil {
		r.logger.Warn("failed to send reply", zap.Int64("chat_id", chatID), zap.String("key", rep.Key), zap.Error(err))
		return err
	}
	return nil
}

// edit replaces the message carrying the pressed button, or sends when there is none
func (r *Router) edit(ctx context.Context, ev source.Event, lang string, rep intake.Reply) error {
	if ev.MessageID == 0 {
		return r.reply(ctx, ev.ChatID, lang, rep)
	}
	if err := r.messenger.Edit(ctx, ev.ChatID, ev.MessageID, rep.Render(r.catalog, lang)); err != nil {
		r.logger.Warn("failed to edit message", zap.Int64("chat_id", ev.ChatID), zap.Int("message_id", ev.MessageID), zap.Error(err))
		return err
	}
	return nil
}

// language is the chat's supported language, or the default
func (r *Router) language(chatID int64) string {
	user, err := r.users.GetUser(chatID)
	if err != nil {
		if !errors.Is(err, database.ErrUserNotFound) {
			r.logger.Warn("failed to load user settings", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		return r.catalog.Default()
	}
	return r.catalog.Resolve(user.Language)
}

// timezone is the chat's timezone, or the configured default
func (r *Router) timezone(chatID int64) string {
	user, err := r.users.GetUser(chatID)
	if err != nil || user.Timezone == "" {
		return r.defaultTimezone
	}
	return user.Timezone
}

func languageMenu() intake.Reply {
	return intake.Reply{
		Key: "ask_language",
		Buttons: [][]intake.Button{
			{{Label: "עברית", Data: langPrefix + "he"}},
			{{Label: "English", Data: langPrefix + "en"}},
		},
	}
}

func kindLabel(k reminder.Kind) intake.Msg {
	return intake.Msg{Key: "kind_" + string(k)}
}

func unitLabel(u reminder.Unit) intake.Msg {
	return intake.Msg{Key: "unit_" + string(u)}
}
