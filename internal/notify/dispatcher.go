package notify

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omriShneor/babycare_bot/internal/database"
	"github.com/omriShneor/babycare_bot/internal/i18n"
	"github.com/omriShneor/babycare_bot/internal/metrics"
	"github.com/omriShneor/babycare_bot/internal/reminder"
	"github.com/omriShneor/babycare_bot/internal/source"
	"github.com/omriShneor/babycare_bot/internal/store"
)

// AckPrefix starts the token of the "done" button attached to a due notification
const AckPrefix = "ack:"

// AckToken is the callback token acknowledging reminder id
func AckToken(id int) string {
	return AckPrefix + strconv.Itoa(id)
}

// ParseAckToken extracts the reminder id from an ack token
func ParseAckToken(token string) (int, bool) {
	rest, ok := strings.CutPrefix(token, AckPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return id, true
}

// DueSource fires due reminders
type DueSource interface {
	CollectDue(ctx context.Context, now time.Time) ([]store.Due, error)
	Len() int
}

// Users looks up chat settings
type Users interface {
	GetUser(chatID int64) (*database.User, error)
}

// DeliveryLog records delivery outcomes
type DeliveryLog interface {
	RecordDelivery(d *database.Delivery) error
}

// Config wires a Dispatcher. Users, Deliveries and Metrics are optional.
type Config struct {
	Reminders  DueSource
	Messenger  source.Messenger
	Catalog    *i18n.Catalog
	Users      Users
	Deliveries DeliveryLog
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// Dispatcher runs the periodic due-check and delivers notifications
type Dispatcher struct {
	reminders  DueSource
	messenger  source.Messenger
	catalog    *i18n.Catalog
	users      Users
	deliveries DeliveryLog
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TickResult summarizes one tick
type TickResult struct {
	Due    int
	Sent   int
	Failed int
}

func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		reminders:  cfg.Reminders,
		messenger:  cfg.Messenger,
		catalog:    cfg.Catalog,
		users:      cfg.Users,
		deliveries: cfg.Deliveries,
		metrics:    cfg.Metrics,
		logger:     logger.Named("dispatcher"),
		now:        now,
	}
}

// Tick fires every due reminder and sends one notification per reminder. Firing is committed
// before anything is sent, so a failed send is logged and recorded but never retried: fixed
// reminders wait a full interval, resetting reminders come up again on the next tick, and
// once reminders are gone.
func (d *Dispatcher) Tick(ctx context.Context) (TickResult, error) {
	start := time.Now()
	defer func() {
		d.metrics.ObserveTick(time.Since(start))
		d.metrics.SetStored(d.reminders.Len())
	}()

	now := d.now().UTC()
	due, err := d.reminders.CollectDue(ctx, now)
	if err != nil {
		d.logger.Error("failed to collect due reminders", zap.Error(err))
		return TickResult{}, err
	}

	result := TickResult{Due: len(due)}
	for _, item := range due {
		d.metrics.ReminderFired(string(item.Reminder.Kind))

		if err := d.deliver(ctx, item); err != nil {
			result.Failed++
			d.record(item, now, database.DeliveryFailed, err)
			d.logger.Warn("failed to deliver reminder",
				zap.Int64("chat_id", item.OwnerID),
				zap.Int("id", item.Reminder.ID),
				zap.Error(err))
			continue
		}
		result.Sent++
		d.record(item, now, database.DeliverySent, nil)
	}

	if result.Due > 0 {
		d.logger.Info("tick complete",
			zap.Int("due", result.Due),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, item store.Due) error {
	lang := d.language(item)
	msg := source.Outbound{Text: d.catalog.T(lang, "reminder_due", item.Reminder.Name)}
	if item.Reminder.Kind == reminder.KindResetting {
		msg.Buttons = [][]source.Button{{{
			Label: d.catalog.T(lang, "button_done"),
			Data:  AckToken(item.Reminder.ID),
		}}}
	}
	return d.messenger.Send(ctx, item.OwnerID, msg)
}

// language prefers the chat's setting, then the language the reminder was created in
func (d *Dispatcher) language(item store.Due) string {
	if d.users != nil {
		user, err := d.users.GetUser(item.OwnerID)
		switch {
		case err == nil && d.catalog.Supported(user.Language):
			return user.Language
		case err != nil && !errors.Is(err, database.ErrUserNotFound):
			d.logger.Warn("failed to load user settings", zap.Int64("chat_id", item.OwnerID), zap.Error(err))
		}
	}
	return d.catalog.Resolve(item.Reminder.Language)
}

func (d *Dispatcher) record(item store.Due, firedAt time.Time, status database.DeliveryStatus, sendErr error) {
	d.metrics.Delivery(string(status))
	if d.deliveries == nil {
		return
	}

	delivery := &database.Delivery{
		ChatID:       item.OwnerID,
		ReminderID:   item.Reminder.ID,
		ReminderName: item.Reminder.Name,
		Kind:         string(item.Reminder.Kind),
		FiredAt:      firedAt,
		Status:       status,
	}
	if sendErr != nil {
		delivery.Error = sendErr.Error()
	}
	if err := d.deliveries.RecordDelivery(delivery); err != nil {
		d.logger.Error("failed to record delivery", zap.Int64("chat_id", item.OwnerID), zap.Error(err))
	}
}
