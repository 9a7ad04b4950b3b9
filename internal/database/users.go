package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User holds a chat's settings
type User struct {
	ChatID      int64
	AccessHash  int64
	DisplayName string
	Language    string
	Timezone    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpsertUser records a chat seen in an update. A zero accessHash keeps the stored one;
// language and timezone are never touched.
func (d *DB) UpsertUser(chatID, accessHash int64, displayName string) error {
	_, err := d.Exec(`
		INSERT INTO users (chat_id, access_hash, display_name)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			access_hash = CASE WHEN excluded.access_hash != 0 THEN excluded.access_hash ELSE users.access_hash END,
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE users.display_name END,
			updated_at = CURRENT_TIMESTAMP
	`, chatID, accessHash, displayName)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUser returns the chat's settings, or ErrUserNotFound
func (d *DB) GetUser(chatID int64) (*User, error) {
	var u User
	err := d.QueryRow(`
		SELECT chat_id, access_hash, display_name, language, timezone, created_at, updated_at
		FROM users
		WHERE chat_id = ?
	`, chatID).Scan(
		&u.ChatID,
		&u.AccessHash,
		&u.DisplayName,
		&u.Language,
		&u.Timezone,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetAllUsers returns all users in the database
func (d *DB) GetAllUsers() ([]User, error) {
	rows, err := d.Query(`
		SELECT chat_id, access_hash, display_name, language, timezone, created_at, updated_at
		FROM users
		ORDER BY chat_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.ChatID,
			&u.AccessHash,
			&u.DisplayName,
			&u.Language,
			&u.Timezone,
			&u.CreatedAt,
			&u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// SetUserLanguage stores the chat's language, creating the user if needed
func (d *DB) SetUserLanguage(chatID int64, language string) error {
	_, err := d.Exec(`
		INSERT INTO users (chat_id, language)
		VALUES (?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			language = excluded.language,
			updated_at = CURRENT_TIMESTAMP
	`, chatID, language)
	if err != nil {
		return fmt.Errorf("failed to update user language: %w", err)
	}
	return nil
}

// SetUserTimezone stores the chat's timezone, creating the user if needed
func (d *DB) SetUserTimezone(chatID int64, timezone string) error {
	_, err := d.Exec(`
		INSERT INTO users (chat_id, timezone)
		VALUES (?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			timezone = excluded.timezone,
			updated_at = CURRENT_TIMESTAMP
	`, chatID, timezone)
	if err != nil {
		return fmt.Errorf("failed to update user timezone: %w", err)
	}
	return nil
}

// GetAccessHash returns the stored access hash of a chat, or ErrUserNotFound
func (d *DB) GetAccessHash(chatID int64) (int64, error) {
	var hash int64
	err := d.QueryRow(`SELECT access_hash FROM users WHERE chat_id = ?`, chatID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get access hash: %w", err)
	}
	return hash, nil
}
