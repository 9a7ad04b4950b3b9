package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omriShneor/babycare_bot/internal/reminder"
)

var (
	ErrNotFound        = errors.New("reminder not found")
	ErrNoDocument      = errors.New("no reminders document")
	ErrCorruptDocument = errors.New("reminders document is corrupt")
)

// Due is a reminder reported by CollectDue. Consumed is set for once reminders, which are
// already removed from the store when reported.
type Due struct {
	OwnerID  int64
	Reminder reminder.Reminder
	Consumed bool
}

// Store owns the persisted reminders. Every mutation is a read-modify-write of the whole
// document under one lock; when the write fails the in-memory table is rolled back.
type Store struct {
	mu        sync.Mutex
	persister Persister
	table     *reminder.Table
	nextID    map[int64]int
	logger    *zap.Logger
}

// New creates an empty store backed by persister. Call Load to read existing state.
func New(persister Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		persister: persister,
		table:     reminder.NewTable(),
		nextID:    make(map[int64]int),
		logger:    logger.Named("store"),
	}
}

// Load replaces the in-memory state with the persisted document. A missing document yields an
// empty store. An unparseable document also yields an empty store, is quarantined, and is
// reported as ErrCorruptDocument so the caller can warn instead of losing data silently.
// Records that are not valid reminders are skipped with a warning; the original document is
// quarantined and the usable records are written back.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.persister.Load(ctx)
	if errors.Is(err, ErrNoDocument) {
		s.table = reminder.NewTable()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load reminders: %w", err)
	}

	table := reminder.NewTable()
	if err := json.Unmarshal(data, table); err != nil {
		s.table = reminder.NewTable()
		if moved, qerr := s.persister.Quarantine(ctx); qerr != nil {
			s.logger.Error("failed to quarantine corrupt document", zap.Error(qerr))
		} else {
			s.logger.Warn("corrupt reminders document moved aside", zap.String("path", moved))
		}
		return fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	clean, skipped := s.sanitize(table)
	s.table = clean
	if skipped > 0 {
		// Keep the original for inspection and persist only the usable records.
		if moved, qerr := s.persister.Quarantine(ctx); qerr != nil {
			s.logger.Error("failed to quarantine reminders document", zap.Error(qerr))
		} else {
			s.logger.Warn("reminders document with invalid records moved aside",
				zap.String("path", moved),
				zap.Int("skipped", skipped))
		}
		if err := s.persistLocked(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("reminders loaded",
		zap.Int("owners", len(clean.Owners())),
		zap.Int("reminders", clean.Len()))
	return nil
}

// sanitize drops records that are not fully created reminders or that reuse an id within
// their owner's list
func (s *Store) sanitize(table *reminder.Table) (*reminder.Table, int) {
	clean := reminder.NewTable()
	skipped := 0
	for _, owner := range table.Owners() {
		seen := make(map[int]bool)
		for _, r := range table.List(owner) {
			err := r.Validate()
			if err == nil && r.ID <= 0 {
				err = fmt.Errorf("invalid id %d", r.ID)
			}
			if err == nil && seen[r.ID] {
				err = fmt.Errorf("duplicate id %d", r.ID)
			}
			if err != nil {
				s.logger.Warn("skipping invalid reminder record",
					zap.Int64("chat_id", owner),
					zap.Int("id", r.ID),
					zap.String("name", r.Name),
					zap.Error(err))
				skipped++
				continue
			}
			seen[r.ID] = true
			clean.Append(owner, r)
		}
	}
	return clean, skipped
}

// Save persists the whole table
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

// Snapshot returns a copy of the current table
func (s *Store) Snapshot() *reminder.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Clone()
}

// Len returns the number of stored reminders
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Len()
}

// List returns the owner's reminders in creation order
func (s *Store) List(owner int64) []reminder.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.List(owner)
}

// Get returns one reminder
func (s *Store) Get(owner int64, id int) (reminder.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.table.Find(owner, id)
	if !ok {
		return reminder.Reminder{}, ErrNotFound
	}
	return r, nil
}

// Add validates a complete reminder, assigns the owner's next unused id and persists it
func (s *Store) Add(ctx context.Context, owner int64, r reminder.Reminder) (reminder.Reminder, error) {
	if err := r.Validate(); err != nil {
		return reminder.Reminder{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.allocateIDLocked(owner)
	r.OwnerID = owner
	err := s.mutateLocked(ctx, func(t *reminder.Table) error {
		t.Append(owner, r)
		return nil
	})
	if err != nil {
		return reminder.Reminder{}, err
	}

	s.logger.Info("reminder added",
		zap.Int64("chat_id", owner),
		zap.Int("id", r.ID),
		zap.String("kind", string(r.Kind)))
	return r, nil
}

// Remove deletes a reminder, returning ErrNotFound when it does not exist
func (s *Store) Remove(ctx context.Context, owner int64, id int) (reminder.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed reminder.Reminder
	err := s.mutateLocked(ctx, func(t *reminder.Table) error {
		r, ok := t.Delete(owner, id)
		if !ok {
			return ErrNotFound
		}
		removed = r
		return nil
	})
	if err != nil {
		return reminder.Reminder{}, err
	}
	return removed, nil
}

// UpdateTimestamp sets the timestamp that anchors the reminder's schedule:
// last_done_at for resetting reminders, last_trigger_at otherwise
func (s *Store) UpdateTimestamp(ctx context.Context, owner int64, id int, when time.Time) (reminder.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated reminder.Reminder
	err := s.mutateLocked(ctx, func(t *reminder.Table) error {
		r, ok := t.Find(owner, id)
		if !ok {
			return ErrNotFound
		}
		updated = reminder.Touch(r, when)
		t.Replace(owner, updated)
		return nil
	})
	if err != nil {
		return reminder.Reminder{}, err
	}
	return updated, nil
}

// MarkDone records an acknowledgement. A once reminder acknowledged before it fired is removed.
func (s *Store) MarkDone(ctx context.Context, owner int64, id int, when time.Time) (reminder.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var done reminder.Reminder
	err := s.mutateLocked(ctx, func(t *reminder.Table) error {
		r, ok := t.Find(owner, id)
		if !ok {
			return ErrNotFound
		}
		next, keep := reminder.MarkDone(r, when)
		if keep {
			t.Replace(owner, next)
		} else {
			t.Delete(owner, id)
		}
		done = next
		return nil
	})
	if err != nil {
		return reminder.Reminder{}, err
	}
	return done, nil
}

// CollectDue fires every reminder due at now and persists the result once. Fixed reminders
// restart their interval, resetting reminders stay due until marked done, and once reminders
// are removed before they are returned, so they are reported at most once.
func (s *Store) CollectDue(ctx context.Context, now time.Time) ([]Due, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Due
	for owner, r := range s.table.Due(now) {
		due = append(due, Due{OwnerID: owner, Reminder: r})
	}
	if len(due) == 0 {
		return nil, nil
	}

	err := s.mutateLocked(ctx, func(t *reminder.Table) error {
		for i := range due {
			fired, keep := reminder.Fire(due[i].Reminder, now)
			if keep {
				t.Replace(due[i].OwnerID, fired)
			} else {
				t.Delete(due[i].OwnerID, fired.ID)
				due[i].Consumed = true
			}
			due[i].Reminder = fired
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return due, nil
}

// mutateLocked applies fn to the table and persists it; the table is restored on any error
func (s *Store) mutateLocked(ctx context.Context, fn func(*reminder.Table) error) error {
	prev := s.table.Clone()
	if err := fn(s.table); err != nil {
		s.table = prev
		return err
	}
	if err := s.persistLocked(ctx); err != nil {
		s.table = prev
		return err
	}
	return nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := json.MarshalIndent(s.table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode reminders: %w", err)
	}
	if err := s.persister.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to save reminders: %w", err)
	}
	return nil
}

// allocateIDLocked returns the owner's next id. Ids of deleted reminders are never handed out
// again while the process runs.
func (s *Store) allocateIDLocked(owner int64) int {
	next := max(s.nextID[owner], s.table.MaxID(owner)) + 1
	s.nextID[owner] = next
	return next
}
