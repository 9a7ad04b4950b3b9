package intake

import (
	"github.com/omriShneor/babycare_bot/internal/i18n"
	"github.com/omriShneor/babycare_bot/internal/reminder"
	"github.com/omriShneor/babycare_bot/internal/source"
)

// Msg is a message key with arguments. A Msg used as an argument is translated before
// formatting.
type Msg struct {
	Key  string
	Args []any
}

// Button is rendered with the translation of LabelKey, or Label verbatim when LabelKey is empty
type Button struct {
	LabelKey string
	Label    string
	Data     string
}

// Reply is the machine's answer to an event. Added is set when a reminder was committed.
type Reply struct {
	Key     string
	Args    []any
	Buttons [][]Button
	Added   *reminder.Reminder
}

// Render translates the reply into an outbound message
func (r Reply) Render(c *i18n.Catalog, lang string) source.Outbound {
	out := source.Outbound{Text: Msg{Key: r.Key, Args: r.Args}.Render(c, lang)}
	for _, row := range r.Buttons {
		rendered := make([]source.Button, 0, len(row))
		for _, b := range row {
			label := b.Label
			if b.LabelKey != "" {
				label = c.T(lang, b.LabelKey)
			}
			rendered = append(rendered, source.Button{Label: label, Data: b.Data})
		}
		out.Buttons = append(out.Buttons, rendered)
	}
	return out
}

// Render translates the message, translating nested Msg arguments first
func (m Msg) Render(c *i18n.Catalog, lang string) string {
	args := make([]any, len(m.Args))
	for i, a := range m.Args {
		if nested, ok := a.(Msg); ok {
			args[i] = nested.Render(c, lang)
			continue
		}
		args[i] = a
	}
	return c.T(lang, m.Key, args...)
}
