package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationQueue persists outbound seller notifications for the worker.
type NotificationQueue struct {
	db *pgxpool.Pool
}

func NewNotificationQueue(db *pgxpool.Pool) *NotificationQueue {
	return &NotificationQueue{db: db}
}

func (q *NotificationQueue) Enqueue(ctx context.Context, url string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling notification payload: %w", err)
	}

	_, err = q.db.Exec(ctx,
		`INSERT INTO notification_jobs (url, payload) VALUES ($1, $2)`,
		url, payloadJSON)
	if err != nil {
		return fmt.Errorf("queueing notification: %w", err)
	}
	return nil
}
