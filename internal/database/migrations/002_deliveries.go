package migrations

import "database/sql"

func init() {
	Register(Migration{
		Version: 2,
		Name:    "deliveries",
		Up:      createDeliveries,
	})
}

func createDeliveries(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			reminder_id INTEGER NOT NULL,
			reminder_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			fired_at DATETIME NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_deliveries_chat_fired
		ON deliveries(chat_id, fired_at)
	`)
	return err
}
