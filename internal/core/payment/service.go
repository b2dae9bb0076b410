package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hmkhan10/RouteBase/internal/core/domain"
	"github.com/hmkhan10/RouteBase/internal/core/gateway"
)

// TransactionStore is the ledger of payment attempts. Complete runs the
// whole settlement unit of work (status flip, completed_at stamp, seller
// balance update) under an exclusive row lock and reports whether the
// transaction had already been completed by an earlier callback.
type TransactionStore interface {
	Create(ctx context.Context, txn domain.Transaction) (*domain.Transaction, error)
	GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, referenceID string, to domain.TransactionStatus, message string) (*domain.Transaction, error)
	Complete(ctx context.Context, referenceID, gatewayTxnID string, response map[string]string) (txn *domain.Transaction, alreadyCompleted bool, err error)
}

type SellerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Seller, error)
}

// Gateway is the external payment capability the orchestrator drives.
type Gateway interface {
	CreatePaymentRequest(amount decimal.Decimal, orderID, customerPhone, customerEmail, description string) (*gateway.PaymentRequest, error)
	VerifyCallback(fields map[string]string) gateway.VerificationResult
	CheckStatus(ctx context.Context, orderID string) (*gateway.StatusResult, error)
}

// Notifier delivers best-effort seller notifications. Implementations must
// be safe to fail: errors are logged here and structurally cannot reach the
// settlement path.
type Notifier interface {
	PaymentReceived(ctx context.Context, seller domain.Seller, txn domain.Transaction) error
}

type Service struct {
	transactions   TransactionStore
	sellers        SellerStore
	gateway        Gateway
	notifier       Notifier
	commissionRate decimal.Decimal
}

func NewService(transactions TransactionStore, sellers SellerStore, gw Gateway, notifier Notifier, commissionRate decimal.Decimal) *Service {
	return &Service{
		transactions:   transactions,
		sellers:        sellers,
		gateway:        gw,
		notifier:       notifier,
		commissionRate: commissionRate,
	}
}

type InitiateRequest struct {
	Amount         decimal.Decimal
	SellerID       uuid.UUID
	BuyerPhone     string
	BuyerEmail     string
	Method         domain.PaymentMethod
	IdempotencyKey string
}

type InitiateResult struct {
	Success     bool
	Message     string
	Replayed    bool
	Transaction *domain.Transaction
	Payment     *gateway.PaymentRequest
}

// InitiatePayment splits the amount, records a pending transaction and
// builds the gateway request the caller forwards to the buyer. A repeated
// idempotency key returns the original transaction without touching the
// gateway again.
func (s *Service) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if !domain.ValidMethod(req.Method) {
		return nil, fmt.Errorf("unsupported payment method %q", req.Method)
	}

	seller, err := s.sellers.GetByID(ctx, req.SellerID)
	if err != nil {
		return nil, err
	}
	if !seller.IsActive {
		return nil, fmt.Errorf("seller %s is not active", seller.ID)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.transactions.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			slog.Info("Idempotency hit, returning existing transaction",
				"key", req.IdempotencyKey, "reference_id", existing.ReferenceID)
			return &InitiateResult{
				Success:     existing.Status != domain.StatusFailed,
				Message:     "request already handled",
				Replayed:    true,
				Transaction: existing,
			}, nil
		}
		if !errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, err
		}
	}

	fee, payout, err := domain.Split(req.Amount, s.commissionRate)
	if err != nil {
		return nil, err
	}

	txn := domain.Transaction{
		TransactionID:  uuid.New(),
		ReferenceID:    domain.NewPaymentReference(),
		SellerID:       seller.ID,
		BuyerPhone:     req.BuyerPhone,
		BuyerEmail:     req.BuyerEmail,
		Amount:         req.Amount,
		PlatformFee:    fee,
		SellerAmount:   payout,
		Currency:       "PKR",
		PaymentMethod:  req.Method,
		Status:         domain.StatusPending,
		IdempotencyKey: req.IdempotencyKey,
	}

	created, err := s.transactions.Create(ctx, txn)
	if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		// Lost the race against a concurrent request carrying the same key.
		// The unique constraint is the arbiter; read back the winner.
		existing, lookupErr := s.transactions.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return &InitiateResult{
			Success:     existing.Status != domain.StatusFailed,
			Message:     "request already handled",
			Replayed:    true,
			Transaction: existing,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	paymentReq, err := s.gateway.CreatePaymentRequest(
		req.Amount, created.ReferenceID, req.BuyerPhone, req.BuyerEmail, "Payment to "+seller.Name)
	if err != nil {
		failed, markErr := s.transactions.UpdateStatus(ctx, created.ReferenceID, domain.StatusFailed, err.Error())
		if markErr != nil {
			slog.Error("Failed to mark transaction failed", "reference_id", created.ReferenceID, "error", markErr)
			failed = created
		}
		return &InitiateResult{
			Success:     false,
			Message:     err.Error(),
			Transaction: failed,
		}, nil
	}

	processing, err := s.transactions.UpdateStatus(ctx, created.ReferenceID, domain.StatusProcessing, "")
	if err != nil {
		return nil, err
	}

	slog.Info("Payment initiated",
		"reference_id", processing.ReferenceID, "seller_id", seller.ID,
		"amount", req.Amount, "fee", fee, "payout", payout)

	return &InitiateResult{
		Success:     true,
		Message:     "Payment initiated successfully",
		Transaction: processing,
		Payment:     paymentReq,
	}, nil
}

type CallbackResult struct {
	Success          bool
	Message          string
	AlreadyProcessed bool
	Reason           gateway.FailureReason
	Transaction      *domain.Transaction
}

// HandleCallback settles a transaction from a gateway callback. Replayed
// callbacks for a completed transaction are absorbed: they succeed without
// mutating anything, which is the system's core correctness property.
func (s *Service) HandleCallback(ctx context.Context, fields map[string]string) (*CallbackResult, error) {
	verification := s.gateway.VerifyCallback(fields)

	switch verification.Reason {
	case gateway.ReasonMissingField, gateway.ReasonMalformed:
		return &CallbackResult{Success: false, Message: verification.Message, Reason: verification.Reason}, nil
	case gateway.ReasonHashMismatch:
		return &CallbackResult{
			Success: false,
			Message: verification.Message,
			Reason:  gateway.ReasonHashMismatch,
		}, nil
	}

	if !verification.Success {
		// Authentic decline. Acknowledge it and record the gateway's reason;
		// the gateway will not retry a decline.
		txn, err := s.transactions.GetByReference(ctx, verification.OrderID)
		if err != nil {
			return nil, err
		}
		if txn.Status == domain.StatusCompleted {
			// A decline must never overwrite a completed settlement.
			return &CallbackResult{
				Success:          true,
				Message:          "transaction already completed",
				AlreadyProcessed: true,
				Transaction:      txn,
			}, nil
		}
		if txn.Status == domain.StatusFailed {
			// Re-delivered decline; already recorded, just acknowledge it.
			return &CallbackResult{
				Success:          false,
				Message:          verification.Message,
				AlreadyProcessed: true,
				Reason:           gateway.ReasonDeclined,
				Transaction:      txn,
			}, nil
		}
		failed, err := s.transactions.UpdateStatus(ctx, txn.ReferenceID, domain.StatusFailed, verification.Message)
		if err != nil {
			return nil, err
		}
		return &CallbackResult{
			Success:     false,
			Message:     verification.Message,
			Reason:      gateway.ReasonDeclined,
			Transaction: failed,
		}, nil
	}

	txn, already, err := s.transactions.Complete(ctx, verification.OrderID, verification.GatewayTxnID, verification.Raw)
	if err != nil {
		return nil, err
	}
	if already {
		slog.Warn("Duplicate callback absorbed", "reference_id", txn.ReferenceID)
		return &CallbackResult{
			Success:          true,
			Message:          "transaction already completed",
			AlreadyProcessed: true,
			Transaction:      txn,
		}, nil
	}

	s.notifySeller(ctx, txn)

	slog.Info("Transaction completed", "reference_id", txn.ReferenceID, "amount", txn.Amount)
	return &CallbackResult{
		Success:     true,
		Message:     "Payment completed successfully",
		Transaction: txn,
	}, nil
}

type ReconcileResult struct {
	Success     bool
	Message     string
	Retryable   bool
	Transaction *domain.Transaction
}

// ReconcilePayment resolves a transaction stuck in processing by asking the
// gateway for its authoritative state. A transport failure leaves the
// transaction untouched and is surfaced as retryable.
func (s *Service) ReconcilePayment(ctx context.Context, referenceID string) (*ReconcileResult, error) {
	txn, err := s.transactions.GetByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.StatusProcessing {
		return &ReconcileResult{
			Success:     txn.Status == domain.StatusCompleted,
			Message:     "transaction is " + string(txn.Status),
			Transaction: txn,
		}, nil
	}

	status, err := s.gateway.CheckStatus(ctx, referenceID)
	if err != nil {
		slog.Warn("Status inquiry failed, leaving transaction in processing",
			"reference_id", referenceID, "error", err)
		return &ReconcileResult{
			Success:     false,
			Message:     err.Error(),
			Retryable:   true,
			Transaction: txn,
		}, nil
	}

	if status.Settled() {
		completed, already, err := s.transactions.Complete(ctx, referenceID, referenceID, status.Raw)
		if err != nil {
			return nil, err
		}
		if !already {
			s.notifySeller(ctx, completed)
		}
		return &ReconcileResult{
			Success:     true,
			Message:     "Payment completed successfully",
			Transaction: completed,
		}, nil
	}

	message := status.Message
	if message == "" {
		message = "Payment not settled at gateway"
	}
	failed, err := s.transactions.UpdateStatus(ctx, referenceID, domain.StatusFailed, message)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{
		Success:     false,
		Message:     message,
		Transaction: failed,
	}, nil
}

// notifySeller fires the best-effort notification. Failures are logged with
// context and go no further: a broken notifier must never unwind a
// settlement that has already been committed.
func (s *Service) notifySeller(ctx context.Context, txn *domain.Transaction) {
	if s.notifier == nil {
		return
	}
	seller, err := s.sellers.GetByID(ctx, txn.SellerID)
	if err != nil {
		slog.Error("Notification skipped, seller lookup failed",
			"seller_id", txn.SellerID, "reference_id", txn.ReferenceID, "error", err)
		return
	}
	if err := s.notifier.PaymentReceived(ctx, *seller, *txn); err != nil {
		slog.Error("Seller notification failed",
			"seller_id", seller.ID, "reference_id", txn.ReferenceID, "error", err)
	}
}
