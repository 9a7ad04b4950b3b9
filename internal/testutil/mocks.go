package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/omriShneor/babycare_bot/internal/source"
)

// SentMessage is a message recorded by RecordingMessenger
type SentMessage struct {
	ChatID    int64
	MessageID int // set for edits
	Message   source.Outbound
	Edited    bool
}

// RecordingMessenger simulates the messaging platform for testing
type RecordingMessenger struct {
	mu       sync.Mutex
	messages []SentMessage
	failWith error
}

// NewRecordingMessenger creates a messenger that records everything it is asked to send
func NewRecordingMessenger() *RecordingMessenger {
	return &RecordingMessenger{}
}

func (m *RecordingMessenger) Send(ctx context.Context, chatID int64, msg source.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.messages = append(m.messages, SentMessage{ChatID: chatID, Message: msg})
	return nil
}

func (m *RecordingMessenger) Edit(ctx context.Context, chatID int64, messageID int, msg source.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.messages = append(m.messages, SentMessage{ChatID: chatID, MessageID: messageID, Message: msg, Edited: true})
	return nil
}

// FailWith makes every following call return err; nil restores delivery
func (m *RecordingMessenger) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Messages returns everything recorded so far
func (m *RecordingMessenger) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage{}, m.messages...)
}

// MessagesTo returns the messages recorded for one chat
func (m *RecordingMessenger) MessagesTo(chatID int64) []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentMessage
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

// Last returns the most recent message, or the zero value
func (m *RecordingMessenger) Last() SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return SentMessage{}
	}
	return m.messages[len(m.messages)-1]
}

// Clear forgets recorded messages
func (m *RecordingMessenger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// Clock is a settable time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock stopped at now
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the clock's current time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
