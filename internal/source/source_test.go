package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		command string
		args    []string
		ok      bool
	}{
		{"plain", "/start", "start", []string{}, true},
		{"with bot name", "/list@babycare_bot", "list", []string{}, true},
		{"with args", "/add 15  feed baby", "add", []string{"15", "feed", "baby"}, true},
		{"uppercase", "/HELP", "help", []string{}, true},
		{"not a command", "feed baby", "", nil, false},
		{"bare slash", "/", "", nil, false},
		{"only bot name", "/@bot", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command, args, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.command, command)
			if tt.ok {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestNewMessageEvent(t *testing.T) {
	now := time.Now()

	ev := NewMessageEvent(42, "Dana", "/daily 07:30 vitamin D", now)
	assert.Equal(t, EventCommand, ev.Kind)
	assert.Equal(t, "daily", ev.Command)
	assert.Equal(t, "vitamin D", ev.ArgText(1))
	assert.Equal(t, "", ev.ArgText(5))
	assert.Equal(t, int64(42), ev.ChatID)
	assert.Equal(t, now, ev.Timestamp)

	ev = NewMessageEvent(42, "Dana", "feed baby", now)
	assert.Equal(t, EventText, ev.Kind)
	assert.Empty(t, ev.Command)
	assert.Equal(t, "feed baby", ev.Text)
}

func TestNewCallbackEvent(t *testing.T) {
	ev := NewCallbackEvent(7, "Noa", "kind:fixed", 99, time.Now())
	assert.Equal(t, EventCallback, ev.Kind)
	assert.Equal(t, "kind:fixed", ev.Data)
	assert.Equal(t, 99, ev.MessageID)
}
