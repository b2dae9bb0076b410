package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/hmkhan10/RouteBase/internal/core/domain"
)

// JobQueue stores notification jobs for asynchronous delivery by the worker.
type JobQueue interface {
	Enqueue(ctx context.Context, url string, payload interface{}) error
}

// QueueNotifier implements the best-effort seller notification capability.
// Delivery happens out of band via the worker, so the settlement path only
// pays for one insert — and even that failure is the caller's to swallow.
type QueueNotifier struct {
	queue JobQueue
}

func NewQueueNotifier(queue JobQueue) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

func (n *QueueNotifier) PaymentReceived(ctx context.Context, seller domain.Seller, txn domain.Transaction) error {
	if seller.NotifyURL == "" {
		slog.Debug("Seller has no notify URL, skipping notification", "seller_id", seller.ID)
		return nil
	}

	payload := map[string]interface{}{
		"event": "payment.completed",
		"data": map[string]interface{}{
			"reference_id":  txn.ReferenceID,
			"amount":        txn.Amount,
			"seller_amount": txn.SellerAmount,
			"platform_fee":  txn.PlatformFee,
			"currency":      txn.Currency,
			"method":        txn.PaymentMethod,
			"buyer_phone":   txn.BuyerPhone,
			"timestamp":     time.Now(),
		},
	}

	return n.queue.Enqueue(ctx, seller.NotifyURL, payload)
}
