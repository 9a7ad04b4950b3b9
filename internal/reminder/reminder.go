package reminder

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind selects how a reminder recurs
type Kind string

const (
	// KindOnce fires a single time at ScheduledAt and is then removed
	KindOnce Kind = "once"
	// KindFixed recurs every interval from its own last firing
	KindFixed Kind = "fixed"
	// KindResetting recurs an interval after the user last marked it done
	KindResetting Kind = "resetting"
)

// Kinds lists the kinds in menu order
var Kinds = []Kind{KindOnce, KindFixed, KindResetting}

// Unit is the unit an interval amount is expressed in
type Unit string

const (
	UnitMinute Unit = "minute"
	UnitHour   Unit = "hour"
	UnitDay    Unit = "day"
	UnitWeek   Unit = "week"
)

// Units lists the units in menu order
var Units = []Unit{UnitMinute, UnitHour, UnitDay, UnitWeek}

var (
	ErrInvalidInterval = errors.New("interval must be a positive duration")
	ErrInvalidName     = errors.New("reminder name is required")
	ErrInvalidKind     = errors.New("unknown reminder kind")
	ErrInvalidUnit     = errors.New("unknown interval unit")
)

// unitAliases maps user-typed unit words (English and Hebrew) to units
var unitAliases = map[string]Unit{
	"m": UnitMinute, "min": UnitMinute, "mins": UnitMinute, "minute": UnitMinute, "minutes": UnitMinute,
	"דקה": UnitMinute, "דקות": UnitMinute,
	"h": UnitHour, "hr": UnitHour, "hrs": UnitHour, "hour": UnitHour, "hours": UnitHour,
	"שעה": UnitHour, "שעות": UnitHour,
	"d": UnitDay, "day": UnitDay, "days": UnitDay,
	"יום": UnitDay, "ימים": UnitDay,
	"w": UnitWeek, "week": UnitWeek, "weeks": UnitWeek,
	"שבוע": UnitWeek, "שבועות": UnitWeek,
}

// ParseKind validates a kind string
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindOnce, KindFixed, KindResetting:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// ParseUnit accepts canonical unit names as well as common English and Hebrew aliases
func ParseUnit(s string) (Unit, error) {
	if u, ok := unitAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return u, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
}

// Seconds returns the length of one unit in seconds, or 0 for an unknown unit
func (u Unit) Seconds() int64 {
	switch u {
	case UnitMinute:
		return 60
	case UnitHour:
		return 60 * 60
	case UnitDay:
		return 24 * 60 * 60
	case UnitWeek:
		return 7 * 24 * 60 * 60
	}
	return 0
}

// Interval is an amount of units, normalized to seconds by Seconds
type Interval struct {
	Unit   Unit
	Amount int
}

// NewInterval builds an interval, rejecting non-positive amounts and unknown units
func NewInterval(unit Unit, amount int) (Interval, error) {
	i := Interval{Unit: unit, Amount: amount}
	if err := i.Validate(); err != nil {
		return Interval{}, err
	}
	return i, nil
}

// Validate reports whether the interval is a positive duration
func (i Interval) Validate() error {
	if i.Unit.Seconds() == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidUnit, i.Unit)
	}
	if i.Amount <= 0 {
		return ErrInvalidInterval
	}
	// The length in seconds must fit a time.Duration.
	if int64(i.Amount) > math.MaxInt64/int64(time.Second)/i.Unit.Seconds() {
		return fmt.Errorf("%w: %d %s is too long", ErrInvalidInterval, i.Amount, i.Unit)
	}
	return nil
}

// Seconds returns the interval length in seconds
func (i Interval) Seconds() int64 {
	return i.Unit.Seconds() * int64(i.Amount)
}

// Duration returns the interval as a time.Duration
func (i Interval) Duration() time.Duration {
	return time.Duration(i.Seconds()) * time.Second
}

// Reminder is one scheduled notification owned by a chat.
// OwnerID is not serialized; the owner is the key of the persisted document.
type Reminder struct {
	ID            int       `json:"id"`
	OwnerID       int64     `json:"-"`
	Name          string    `json:"name"`
	Kind          Kind      `json:"kind"`
	Unit          Unit      `json:"unit"`
	Amount        int       `json:"amount"`
	LastTriggerAt time.Time `json:"last_trigger_at,omitzero"`
	LastDoneAt    time.Time `json:"last_done_at,omitzero"`
	ScheduledAt   time.Time `json:"scheduled_at,omitzero"`
	Language      string    `json:"language,omitempty"`
}

// Interval returns the reminder's interval
func (r Reminder) Interval() Interval {
	return Interval{Unit: r.Unit, Amount: r.Amount}
}

// Validate checks that the reminder is fully created
func (r Reminder) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return err
	}
	if err := r.Interval().Validate(); err != nil {
		return err
	}
	return nil
}

// New builds a complete reminder created at now. The anchor timestamp for the kind is set so
// the first firing happens one interval after creation.
func New(name string, kind Kind, interval Interval, now time.Time) (Reminder, error) {
	now = now.UTC()
	r := Reminder{
		Name:   strings.TrimSpace(name),
		Kind:   kind,
		Unit:   interval.Unit,
		Amount: interval.Amount,
	}
	if err := r.Validate(); err != nil {
		return Reminder{}, err
	}

	switch kind {
	case KindOnce:
		r.ScheduledAt = now.Add(interval.Duration())
	case KindFixed:
		r.LastTriggerAt = now
	case KindResetting:
		r.LastDoneAt = now
	}
	return r, nil
}
