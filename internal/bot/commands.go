package bot

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/omriShneor/babycare_bot/internal/intake"
	"github.com/omriShneor/babycare_bot/internal/reminder"
	"github.com/omriShneor/babycare_bot/internal/source"
	"github.com/omriShneor/babycare_bot/internal/timeutil"
)

// quickAdd handles "/add <minutes> <text>": a one-time reminder in N minutes
func (r *Router) quickAdd(ctx context.Context, ev source.Event, lang string) intake.Reply {
	if len(ev.Args) < 2 {
		return intake.Reply{Key: "invalid_add_format"}
	}
	minutes, err := strconv.Atoi(ev.Args[0])
	if err != nil || minutes <= 0 {
		return intake.Reply{Key: "invalid_add_format"}
	}

	rem, err := reminder.New(ev.ArgText(1), reminder.KindOnce, reminder.Interval{Unit: reminder.UnitMinute, Amount: minutes}, ev.Timestamp)
	if err != nil {
		return intake.Reply{Key: "invalid_add_format"}
	}
	rep := r.commit(ctx, ev.ChatID, lang, rem)
	if rep.Added != nil {
		rep.Key = "reminder_set"
		rep.Args = []any{minutes}
	}
	return rep
}

// quickDaily handles "/daily <HH:MM> <text>": a fixed reminder every day at a wall-clock time
// in the chat's timezone. The schedule is kept as absolute instants, so it follows the clock
// time of the day it was created on.
func (r *Router) quickDaily(ctx context.Context, ev source.Event, lang string) intake.Reply {
	if len(ev.Args) < 2 {
		return intake.Reply{Key: "invalid_time_format"}
	}
	hour, minute, err := timeutil.ParseClock(ev.Args[0])
	if err != nil {
		return intake.Reply{Key: "invalid_time_format"}
	}

	day := reminder.Interval{Unit: reminder.UnitDay, Amount: 1}
	loc, _ := timeutil.ResolveLocation(r.timezone(ev.ChatID))
	first := timeutil.NextClockOccurrence(ev.Timestamp, hour, minute, loc)

	rem, err := reminder.New(ev.ArgText(1), reminder.KindFixed, day, ev.Timestamp)
	if err != nil {
		return intake.Reply{Key: "invalid_time_format"}
	}
	// Anchor one interval before the first occurrence so that is when it first fires.
	rem.LastTriggerAt = first.Add(-day.Duration())
	return r.commit(ctx, ev.ChatID, lang, rem)
}

// quickPeriodic handles "/periodic <amount> <unit> <text>": a resetting reminder
func (r *Router) quickPeriodic(ctx context.Context, ev source.Event, lang string) intake.Reply {
	if len(ev.Args) < 3 {
		return intake.Reply{Key: "invalid_interval_format"}
	}
	amount, err := strconv.Atoi(ev.Args[0])
	if err != nil {
		return intake.Reply{Key: "invalid_interval_format"}
	}
	unit, err := reminder.ParseUnit(ev.Args[1])
	if err != nil {
		return intake.Reply{Key: "invalid_interval_format"}
	}
	interval, err := reminder.NewInterval(unit, amount)
	if err != nil {
		return intake.Reply{Key: "invalid_interval_format"}
	}

	rem, err := reminder.New(ev.ArgText(2), reminder.KindResetting, interval, ev.Timestamp)
	if err != nil {
		return intake.Reply{Key: "invalid_interval_format"}
	}
	return r.commit(ctx, ev.ChatID, lang, rem)
}

func (r *Router) commit(ctx context.Context, chatID int64, lang string, rem reminder.Reminder) intake.Reply {
	rem.Language = lang
	added, err := r.reminders.Add(ctx, chatID, rem)
	if err != nil {
		r.logger.Error("failed to add reminder", zap.Int64("chat_id", chatID), zap.Error(err))
		return intake.Reply{Key: "storage_error"}
	}
	return intake.Reply{Key: "reminder_added", Added: &added}
}

// sendList sends the chat's reminders with their next trigger in the chat's timezone
func (r *Router) sendList(ctx context.Context, chatID int64, lang string) error {
	list := r.reminders.List(chatID)
	if len(list) == 0 {
		return r.reply(ctx, chatID, lang, intake.Reply{Key: "no_reminders", Buttons: intake.MainMenu()})
	}

	tz := r.timezone(chatID)
	lines := []string{r.catalog.T(lang, "reminders_header")}
	for _, rem := range list {
		next := timeutil.FormatLocal(reminder.NextTriggerAt(rem), tz)
		var line intake.Msg
		if rem.Kind == reminder.KindOnce {
			line = intake.Msg{Key: "reminder_line_once", Args: []any{rem.ID, rem.Name, kindLabel(rem.Kind), next}}
		} else {
			line = intake.Msg{Key: "reminder_line", Args: []any{rem.ID, rem.Name, kindLabel(rem.Kind), rem.Amount, unitLabel(rem.Unit), next}}
		}
		lines = append(lines, line.Render(r.catalog, lang))
	}

	msg := source.Outbound{Text: strings.Join(lines, "\n")}
	if err := r.messenger.Send(ctx, chatID, msg); err != nil {
		r.logger.Warn("failed to send list", zap.Int64("chat_id", chatID), zap.Error(err))
		return err
	}
	return nil
}

func validTimezone(tz string) bool {
	if tz == "UTC" {
		return true
	}
	return strings.Contains(tz, "/") && timeutil.ValidTimezone(tz)
}
