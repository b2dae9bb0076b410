package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmkhan10/RouteBase/internal/core/commission"
	"github.com/hmkhan10/RouteBase/internal/core/notifications"
)

const maxAttempts = 5

// StartNotificationWorker delivers queued seller notifications in the
// background. The claim and the outcome update run in one transaction, so
// the SKIP LOCKED row lock is held across the delivery and concurrent
// workers cannot claim the same job.
func StartNotificationWorker(db *pgxpool.Pool, secret string) {
	go func() {
		slog.Info("Notification worker started")
		for {
			processJobs(db, secret)
			time.Sleep(5 * time.Second)
		}
	}()
}

func processJobs(db *pgxpool.Pool, secret string) {
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	if err != nil {
		slog.Error("Worker: failed to begin transaction", "error", err)
		return
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT id, url, payload, attempts
		FROM notification_jobs
		WHERE status = 'PENDING' AND next_run_at <= NOW()
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	var id int64
	var url string
	var payloadBytes []byte
	var attempts int

	if err := tx.QueryRow(ctx, query).Scan(&id, &url, &payloadBytes, &attempts); err != nil {
		return
	}

	var payload interface{}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		slog.Error("Worker: failed to parse payload", "error", err, "job_id", id)
		tx.Exec(ctx, "UPDATE notification_jobs SET status = 'FAILED' WHERE id = $1", id)
		tx.Commit(ctx)
		return
	}

	sendErr := notifications.SendWebhook(url, payload, secret)

	if sendErr != nil {
		slog.Error("Worker: notification failed", "error", sendErr, "attempts", attempts, "job_id", id)
		nextRun := time.Now().Add(time.Duration(attempts*10+10) * time.Second)

		if attempts >= maxAttempts {
			tx.Exec(ctx, "UPDATE notification_jobs SET status = 'FAILED' WHERE id = $1", id)
			slog.Error("Worker: job marked as FAILED (max attempts reached)", "job_id", id)
		} else {
			tx.Exec(ctx, "UPDATE notification_jobs SET status = 'PENDING', attempts = attempts + 1, next_run_at = $2 WHERE id = $1", id, nextRun)
			slog.Info("Worker: scheduled retry", "job_id", id, "next_run", nextRun)
		}
	} else {
		tx.Exec(ctx, "UPDATE notification_jobs SET status = 'COMPLETED' WHERE id = $1", id)
		slog.Info("Worker: notification delivered", "job_id", id)
	}

	if err := tx.Commit(ctx); err != nil {
		slog.Error("Worker: failed to commit job outcome", "error", err, "job_id", id)
	}
}

// StartDailyAggregator re-runs yesterday's commission aggregation on a
// timer. The upsert is idempotent, so running alongside an external cron
// calling the admin endpoint is harmless.
func StartDailyAggregator(svc *commission.Service, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		slog.Info("Commission aggregation worker started", "interval", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := svc.AggregateDailyCommission(context.Background(), nil); err != nil {
				slog.Error("Scheduled commission aggregation failed", "error", err)
			}
		}
	}()
}
