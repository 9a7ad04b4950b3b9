package database

import (
	"fmt"
	"time"
)

// DeliveryStatus is the outcome of sending a due notification
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// Delivery is one attempt to notify a chat about a due reminder
type Delivery struct {
	ID           int64          `json:"id"`
	ChatID       int64          `json:"chat_id"`
	ReminderID   int            `json:"reminder_id"`
	ReminderName string         `json:"reminder_name"`
	Kind         string         `json:"kind"`
	FiredAt      time.Time      `json:"fired_at"`
	Status       DeliveryStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
}

// RecordDelivery appends to the delivery log and sets d.ID
func (d *DB) RecordDelivery(delivery *Delivery) error {
	result, err := d.Exec(`
		INSERT INTO deliveries (chat_id, reminder_id, reminder_name, kind, fired_at, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, delivery.ChatID, delivery.ReminderID, delivery.ReminderName, delivery.Kind,
		delivery.FiredAt.UTC(), string(delivery.Status), delivery.Error)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get delivery id: %w", err)
	}
	delivery.ID = id
	return nil
}

// ListDeliveries returns the newest deliveries first. chatID 0 lists every chat.
func (d *DB) ListDeliveries(chatID int64, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, chat_id, reminder_id, reminder_name, kind, fired_at, status, error
		FROM deliveries
	`
	args := []any{}
	if chatID != 0 {
		query += ` WHERE chat_id = ?`
		args = append(args, chatID)
	}
	query += ` ORDER BY fired_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		var del Delivery
		var status string
		if err := rows.Scan(
			&del.ID,
			&del.ChatID,
			&del.ReminderID,
			&del.ReminderName,
			&del.Kind,
			&del.FiredAt,
			&status,
			&del.Error,
		); err != nil {
			return nil, err
		}
		del.Status = DeliveryStatus(status)
		deliveries = append(deliveries, del)
	}
	return deliveries, rows.Err()
}
