package reminder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"time"
)

// Table maps owners to their reminders, preserving owner insertion order and reminder order.
// It is not safe for concurrent use; the store guards it.
type Table struct {
	owners []int64
	lists  map[int64][]Reminder
}

// NewTable returns an empty table
func NewTable() *Table {
	return &Table{lists: make(map[int64][]Reminder)}
}

// Owners returns the owners in insertion order
func (t *Table) Owners() []int64 {
	return append([]int64(nil), t.owners...)
}

// List returns a copy of the owner's reminders
func (t *Table) List(owner int64) []Reminder {
	return append([]Reminder(nil), t.lists[owner]...)
}

// Len returns the number of reminders across all owners
func (t *Table) Len() int {
	n := 0
	for _, l := range t.lists {
		n += len(l)
	}
	return n
}

// Append adds a reminder to the end of the owner's list
func (t *Table) Append(owner int64, r Reminder) {
	if _, ok := t.lists[owner]; !ok {
		t.owners = append(t.owners, owner)
		t.lists[owner] = nil
	}
	r.OwnerID = owner
	t.lists[owner] = append(t.lists[owner], r)
}

// Find looks up a reminder by id
func (t *Table) Find(owner int64, id int) (Reminder, bool) {
	for _, r := range t.lists[owner] {
		if r.ID == id {
			return r, true
		}
	}
	return Reminder{}, false
}

// Replace swaps in a new version of the reminder with the same id
func (t *Table) Replace(owner int64, r Reminder) bool {
	list := t.lists[owner]
	for i := range list {
		if list[i].ID == r.ID {
			r.OwnerID = owner
			list[i] = r
			return true
		}
	}
	return false
}

// Delete removes the reminder with the given id. The owner keeps its (possibly empty) entry.
func (t *Table) Delete(owner int64, id int) (Reminder, bool) {
	list := t.lists[owner]
	for i := range list {
		if list[i].ID == id {
			removed := list[i]
			next := make([]Reminder, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			t.lists[owner] = next
			return removed, true
		}
	}
	return Reminder{}, false
}

// MaxID returns the highest id used by the owner, or 0
func (t *Table) MaxID(owner int64) int {
	highest := 0
	for _, r := range t.lists[owner] {
		highest = max(highest, r.ID)
	}
	return highest
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	c := NewTable()
	c.owners = append(c.owners, t.owners...)
	for owner, list := range t.lists {
		c.lists[owner] = append([]Reminder(nil), list...)
	}
	return c
}

// Due yields every reminder due at now in owner insertion order, then reminder order.
// Each range over the returned sequence re-reads the table.
func (t *Table) Due(now time.Time) iter.Seq2[int64, Reminder] {
	return func(yield func(int64, Reminder) bool) {
		for _, owner := range t.owners {
			for _, r := range t.lists[owner] {
				if !IsDue(r, now) {
					continue
				}
				if !yield(owner, r) {
					return
				}
			}
		}
	}
}

// MarshalJSON writes owners in insertion order
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, owner := range t.owners {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.FormatInt(owner, 10)))
		buf.WriteByte(':')

		list := t.lists[owner]
		if list == nil {
			list = []Reminder{}
		}
		data, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("encode reminders of %d: %w", owner, err)
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads owners in document order
func (t *Table) UnmarshalJSON(data []byte) error {
	*t = *NewTable()
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		owner, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid owner id %q: %w", key, err)
		}

		var list []Reminder
		if err := dec.Decode(&list); err != nil {
			return fmt.Errorf("decode reminders of %d: %w", owner, err)
		}
		if _, ok := t.lists[owner]; !ok {
			t.owners = append(t.owners, owner)
			t.lists[owner] = []Reminder{}
		}
		for _, r := range list {
			r.OwnerID = owner
			t.lists[owner] = append(t.lists[owner], r)
		}
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
