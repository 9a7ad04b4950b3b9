package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates an in-memory SQLite database for testing.
// The database is automatically closed when the test completes.
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:", nil)
	require.NoError(t, err, "failed to create test database")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// CreateTestUser registers a chat with the given settings
func CreateTestUser(t *testing.T, db *DB, chatID int64, language, timezone string) *User {
	t.Helper()

	require.NoError(t, db.UpsertUser(chatID, chatID*10, "Test User"), "failed to create test user")
	if language != "" {
		require.NoError(t, db.SetUserLanguage(chatID, language))
	}
	if timezone != "" {
		require.NoError(t, db.SetUserTimezone(chatID, timezone))
	}

	user, err := db.GetUser(chatID)
	require.NoError(t, err)
	return user
}
