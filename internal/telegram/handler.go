package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/omriShneor/babycare_bot/internal/database"
	"github.com/omriShneor/babycare_bot/internal/source"
)

// onNewMessage queues private text messages (contacts only, no groups or channels)
func (c *Client) onNewMessage(ctx context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
	msg, ok := update.Message.(*tg.Message)
	if !ok {
		return nil
	}
	c.remember(e.Users)

	ev, ok := messageEvent(msg, e.Users)
	if !ok {
		return nil
	}
	c.logger.Debug("message received",
		zap.Int64("chat_id", ev.ChatID),
		zap.String("text", truncateText(ev.Text, 100)))
	c.enqueue(ev)
	return nil
}

// onCallbackQuery answers the button press right away so the client stops its spinner, then
// queues the press for the update loop
func (c *Client) onCallbackQuery(ctx context.Context, e tg.Entities, update *tg.UpdateBotCallbackQuery) error {
	c.remember(e.Users)

	if _, err := c.client.API().MessagesSetBotCallbackAnswer(ctx, &tg.MessagesSetBotCallbackAnswerRequest{
		QueryID: update.QueryID,
	}); err != nil {
		c.logger.Warn("failed to answer callback query", zap.Int64("query_id", update.QueryID), zap.Error(err))
	}

	ev, ok := callbackEvent(update, e.Users)
	if !ok {
		return nil
	}
	c.enqueue(ev)
	return nil
}

// remember caches and persists the access hash of every user in an update
func (c *Client) remember(users map[int64]*tg.User) {
	for id, user := range users {
		if user == nil || user.Bot || user.AccessHash == 0 {
			continue
		}

		c.hashMu.Lock()
		known, seen := c.hashes[id]
		c.hashes[id] = user.AccessHash
		c.hashMu.Unlock()

		if seen && known == user.AccessHash {
			continue
		}
		if c.users == nil {
			continue
		}
		if err := c.users.UpsertUser(id, user.AccessHash, displayName(user)); err != nil {
			c.logger.Warn("failed to persist user", zap.Int64("chat_id", id), zap.Error(err))
		}
	}
}

// inputPeer resolves a private chat from the cache, then the users table
func (c *Client) inputPeer(chatID int64) (*tg.InputPeerUser, error) {
	c.hashMu.Lock()
	hash, ok := c.hashes[chatID]
	c.hashMu.Unlock()
	if ok {
		return &tg.InputPeerUser{UserID: chatID, AccessHash: hash}, nil
	}

	if c.users == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPeer, chatID)
	}
	hash, err := c.users.GetAccessHash(chatID)
	if errors.Is(err, database.ErrUserNotFound) || (err == nil && hash == 0) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPeer, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load access hash: %w", err)
	}

	c.hashMu.Lock()
	c.hashes[chatID] = hash
	c.hashMu.Unlock()
	return &tg.InputPeerUser{UserID: chatID, AccessHash: hash}, nil
}

// messageEvent converts an incoming private message. ok is false for anything the bot ignores:
// outgoing messages, empty text, groups and channels.
func messageEvent(msg *tg.Message, users map[int64]*tg.User) (source.Event, bool) {
	if msg.Out || msg.Message == "" {
		return source.Event{}, false
	}
	peer, ok := msg.PeerID.(*tg.PeerUser)
	if !ok {
		return source.Event{}, false
	}

	name := fmt.Sprintf("User %d", peer.UserID)
	if user, ok := users[peer.UserID]; ok {
		name = displayName(user)
	}
	return source.NewMessageEvent(peer.UserID, name, msg.Message, time.Unix(int64(msg.Date), 0).UTC()), true
}

// callbackEvent converts a pressed inline button. Presses in groups are ignored.
func callbackEvent(update *tg.UpdateBotCallbackQuery, users map[int64]*tg.User) (source.Event, bool) {
	peer, ok := update.Peer.(*tg.PeerUser)
	if !ok || len(update.Data) == 0 {
		return source.Event{}, false
	}

	name := fmt.Sprintf("User %d", update.UserID)
	if user, ok := users[update.UserID]; ok {
		name = displayName(user)
	}
	// Callback queries carry no timestamp; the router stamps the event when it handles it.
	return source.NewCallbackEvent(peer.UserID, name, string(update.Data), update.MsgID, time.Time{}), true
}

// inlineMarkup builds an inline keyboard, or nil when there are no buttons
func inlineMarkup(rows [][]source.Button) tg.ReplyMarkupClass {
	if len(rows) == 0 {
		return nil
	}
	markup := &tg.ReplyInlineMarkup{Rows: make([]tg.KeyboardButtonRow, 0, len(rows))}
	for _, row := range rows {
		buttons := make([]tg.KeyboardButtonClass, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, &tg.KeyboardButtonCallback{Text: b.Label, Data: []byte(b.Data)})
		}
		markup.Rows = append(markup.Rows, tg.KeyboardButtonRow{Buttons: buttons})
	}
	return markup
}

// displayName returns a display name for a user
func displayName(user *tg.User) string {
	if user.FirstName != "" {
		if user.LastName != "" {
			return user.FirstName + " " + user.LastName
		}
		return user.FirstName
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	return fmt.Sprintf("User %d", user.ID)
}

// truncateText shortens text for logging
func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
