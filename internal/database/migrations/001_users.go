package migrations

import "database/sql"

func init() {
	Register(Migration{
		Version: 1,
		Name:    "users",
		Up:      createUsers,
	})
}

// users holds per-chat settings. access_hash is what the bot API needs to message a user
// outside of an update, so it must survive restarts.
func createUsers(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			chat_id INTEGER PRIMARY KEY,
			access_hash INTEGER NOT NULL DEFAULT 0,
			display_name TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}
