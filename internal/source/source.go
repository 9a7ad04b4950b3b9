package source

import (
	"context"
	"strings"
	"time"
)

// EventKind identifies what the user did
type EventKind string

const (
	EventCommand  EventKind = "command"
	EventText     EventKind = "text"
	EventCallback EventKind = "callback"
)

// Event is one inbound user action from the messaging platform
type Event struct {
	Kind       EventKind
	ChatID     int64
	SenderName string
	Command    string   // without the leading slash, lowercased
	Args       []string // whitespace separated command arguments
	Text       string   // raw message text
	Data       string   // callback token of a pressed button
	MessageID  int      // message carrying the pressed button, for edits
	Timestamp  time.Time
}

// Button is an inline button; Data is returned as a callback token when pressed
type Button struct {
	Label string
	Data  string
}

// Outbound is a message to send, with optional rows of inline buttons
type Outbound struct {
	Text    string
	Buttons [][]Button
}

// Messenger delivers messages to a chat
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg Outbound) error
	Edit(ctx context.Context, chatID int64, messageID int, msg Outbound) error
}

// ParseCommand splits "/cmd@botname arg1 arg2" into its command and arguments.
// ok is false when text is not a command.
func ParseCommand(text string) (command string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return "", nil, false
	}

	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	command, _, _ = strings.Cut(fields[0], "@")
	if command == "" {
		return "", nil, false
	}
	return strings.ToLower(command), fields[1:], true
}

// NewMessageEvent classifies a text message as a command or free text
func NewMessageEvent(chatID int64, sender, text string, ts time.Time) Event {
	ev := Event{
		Kind:       EventText,
		ChatID:     chatID,
		SenderName: sender,
		Text:       text,
		Timestamp:  ts,
	}
	if cmd, args, ok := ParseCommand(text); ok {
		ev.Kind = EventCommand
		ev.Command = cmd
		ev.Args = args
	}
	return ev
}

// NewCallbackEvent wraps a pressed button
func NewCallbackEvent(chatID int64, sender, data string, messageID int, ts time.Time) Event {
	return Event{
		Kind:       EventCallback,
		ChatID:     chatID,
		SenderName: sender,
		Data:       data,
		MessageID:  messageID,
		Timestamp:  ts,
	}
}

// ArgText returns the arguments after skip joined back into free text
func (e Event) ArgText(skip int) string {
	if skip >= len(e.Args) {
		return ""
	}
	return strings.Join(e.Args[skip:], " ")
}
