package reminder

import "time"

// NextTriggerAt returns the absolute instant at which the reminder becomes due
func NextTriggerAt(r Reminder) time.Time {
	switch r.Kind {
	case KindFixed:
		return r.LastTriggerAt.Add(r.Interval().Duration())
	case KindResetting:
		return r.LastDoneAt.Add(r.Interval().Duration())
	default:
		return r.ScheduledAt
	}
}

// IsDue reports whether the reminder is due at now
func IsDue(r Reminder, now time.Time) bool {
	return !now.Before(NextTriggerAt(r))
}

// Fire applies a firing at now. Fixed reminders restart their interval, resetting reminders
// only record the firing (last_done_at is untouched), and once reminders report that they are
// consumed and must be removed.
func Fire(r Reminder, now time.Time) (fired Reminder, keep bool) {
	now = now.UTC()
	switch r.Kind {
	case KindFixed:
		r.LastTriggerAt = now
		return r, true
	case KindResetting:
		r.LastTriggerAt = now
		return r, true
	default:
		return r, false
	}
}

// MarkDone applies a user acknowledgement at when. Only resetting reminders move their next
// trigger; a once reminder acknowledged early is consumed.
func MarkDone(r Reminder, when time.Time) (done Reminder, keep bool) {
	r.LastDoneAt = when.UTC()
	if r.Kind == KindOnce {
		return r, false
	}
	return r, true
}

// Touch sets the timestamp that anchors the reminder's schedule
func Touch(r Reminder, when time.Time) Reminder {
	when = when.UTC()
	switch r.Kind {
	case KindResetting:
		r.LastDoneAt = when
	default:
		r.LastTriggerAt = when
	}
	return r
}
