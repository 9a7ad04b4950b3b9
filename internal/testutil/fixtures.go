package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omriShneor/babycare_bot/internal/reminder"
	"github.com/omriShneor/babycare_bot/internal/store"
)

// ReminderBuilder helps create test reminders
type ReminderBuilder struct {
	name     string
	kind     reminder.Kind
	unit     reminder.Unit
	amount   int
	at       time.Time
	language string
}

// NewReminderBuilder creates a builder for an hourly fixed reminder created now
func NewReminderBuilder(name string) *ReminderBuilder {
	return &ReminderBuilder{
		name:   name,
		kind:   reminder.KindFixed,
		unit:   reminder.UnitHour,
		amount: 1,
		at:     time.Now().UTC(),
	}
}

// Once makes it a one-time reminder
func (b *ReminderBuilder) Once() *ReminderBuilder {
	b.kind = reminder.KindOnce
	return b
}

// Fixed makes it a fixed-interval reminder
func (b *ReminderBuilder) Fixed() *ReminderBuilder {
	b.kind = reminder.KindFixed
	return b
}

// Resetting makes it a reminder that restarts when marked done
func (b *ReminderBuilder) Resetting() *ReminderBuilder {
	b.kind = reminder.KindResetting
	return b
}

// Every sets the interval
func (b *ReminderBuilder) Every(amount int, unit reminder.Unit) *ReminderBuilder {
	b.amount = amount
	b.unit = unit
	return b
}

// CreatedAt sets the creation time that anchors the schedule
func (b *ReminderBuilder) CreatedAt(t time.Time) *ReminderBuilder {
	b.at = t
	return b
}

// InLanguage records the language the reminder was created in
func (b *ReminderBuilder) InLanguage(lang string) *ReminderBuilder {
	b.language = lang
	return b
}

// Build returns the reminder without storing it
func (b *ReminderBuilder) Build() (reminder.Reminder, error) {
	interval, err := reminder.NewInterval(b.unit, b.amount)
	if err != nil {
		return reminder.Reminder{}, err
	}
	r, err := reminder.New(b.name, b.kind, interval, b.at)
	if err != nil {
		return reminder.Reminder{}, err
	}
	r.Language = b.language
	return r, nil
}

// MustAdd stores the reminder for owner, failing the test on error
func (b *ReminderBuilder) MustAdd(t *testing.T, s *store.Store, owner int64) reminder.Reminder {
	t.Helper()
	r, err := b.Build()
	require.NoError(t, err, "failed to build reminder")
	added, err := s.Add(context.Background(), owner, r)
	require.NoError(t, err, "failed to add reminder")
	return added
}
