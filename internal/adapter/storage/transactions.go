package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hmkhan10/RouteBase/internal/core/domain"
)

const pgUniqueViolation = "23505"

const transactionColumns = `
	transaction_id, reference_id, seller_id, buyer_phone, buyer_email,
	amount::text, platform_fee::text, seller_amount::text, currency,
	payment_method, status, status_message, COALESCE(idempotency_key, ''),
	gateway_txn_id, gateway_response, created_at, updated_at, completed_at`

type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new payment attempt. Unique violations are mapped to the
// domain errors the orchestrator keys its idempotency handling on.
func (r *TransactionRepository) Create(ctx context.Context, txn domain.Transaction) (*domain.Transaction, error) {
	response, err := json.Marshal(txn.GatewayResponse)
	if err != nil {
		return nil, fmt.Errorf("marshaling gateway response: %w", err)
	}
	if txn.GatewayResponse == nil {
		response = []byte("{}")
	}

	var idempotencyKey *string
	if txn.IdempotencyKey != "" {
		idempotencyKey = &txn.IdempotencyKey
	}

	query := `
		INSERT INTO transactions (
			transaction_id, reference_id, seller_id, buyer_phone, buyer_email,
			amount, platform_fee, seller_amount, currency, payment_method,
			status, status_message, idempotency_key, gateway_txn_id, gateway_response
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING ` + transactionColumns

	row := r.db.QueryRow(ctx, query,
		txn.TransactionID, txn.ReferenceID, txn.SellerID, txn.BuyerPhone, txn.BuyerEmail,
		txn.Amount.String(), txn.PlatformFee.String(), txn.SellerAmount.String(),
		txn.Currency, txn.PaymentMethod, txn.Status, txn.StatusMessage,
		idempotencyKey, txn.GatewayTxnID, response)

	created, err := scanTransaction(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			switch pgErr.ConstraintName {
			case "transactions_idempotency_key_key":
				return nil, domain.ErrDuplicateIdempotencyKey
			default:
				return nil, domain.ErrDuplicateReference
			}
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return created, nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference_id = $1`
	txn, err := scanTransaction(r.db.QueryRow(ctx, query, referenceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	return txn, err
}

func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`
	txn, err := scanTransaction(r.db.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	return txn, err
}

// UpdateStatus applies one guarded state-machine transition under a row lock.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, referenceID string, to domain.TransactionStatus, message string) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var current domain.TransactionStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM transactions WHERE reference_id = $1 FOR UPDATE`,
		referenceID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(current, to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, to)
	}

	row := tx.QueryRow(ctx, `
		UPDATE transactions
		SET status = $2, status_message = $3, updated_at = NOW()
		WHERE reference_id = $1
		RETURNING `+transactionColumns,
		referenceID, to, message)

	updated, err := scanTransaction(row)
	if err != nil {
		return nil, err
	}
	return updated, tx.Commit(ctx)
}

// Complete settles a transaction and credits the seller as one unit of work:
// row lock, already-completed short-circuit, status flip with completed_at,
// then the seller's balance, lifetime earnings and fees paid. The lock is
// held only for these statements, never across a network call.
func (r *TransactionRepository) Complete(ctx context.Context, referenceID, gatewayTxnID string, response map[string]string) (*domain.Transaction, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference_id = $1 FOR UPDATE`,
		referenceID)
	current, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, false, err
	}

	if current.Status == domain.StatusCompleted {
		// Duplicate callback: the first settlement won, return its state.
		return current, true, tx.Commit(ctx)
	}
	if !domain.CanTransition(current.Status, domain.StatusCompleted) {
		return nil, false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, domain.StatusCompleted)
	}

	responseJSON, err := json.Marshal(response)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling gateway response: %w", err)
	}
	if response == nil {
		responseJSON = []byte("{}")
	}

	row = tx.QueryRow(ctx, `
		UPDATE transactions
		SET status = $2, status_message = '', gateway_txn_id = $3,
		    gateway_response = $4, completed_at = NOW(), updated_at = NOW()
		WHERE reference_id = $1
		RETURNING `+transactionColumns,
		referenceID, domain.StatusCompleted, gatewayTxnID, responseJSON)

	completed, err := scanTransaction(row)
	if err != nil {
		return nil, false, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE sellers
		SET balance = balance + $2,
		    total_earned = total_earned + $3,
		    platform_fees_paid = platform_fees_paid + $4,
		    updated_at = NOW()
		WHERE id = $1`,
		completed.SellerID, completed.SellerAmount.String(),
		completed.Amount.String(), completed.PlatformFee.String())
	if err != nil {
		return nil, false, fmt.Errorf("crediting seller: %w", err)
	}

	return completed, false, tx.Commit(ctx)
}

// SumCompleted aggregates completed transactions whose completed_at falls in
// [from, to).
func (r *TransactionRepository) SumCompleted(ctx context.Context, from, to time.Time) (int, decimal.Decimal, decimal.Decimal, error) {
	var count int
	var totalAmount, totalFee string
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(amount), 0)::text,
		       COALESCE(SUM(platform_fee), 0)::text
		FROM transactions
		WHERE status = 'completed' AND completed_at >= $1 AND completed_at < $2`,
		from, to).Scan(&count, &totalAmount, &totalFee)
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, err
	}

	amount, err := decimal.NewFromString(totalAmount)
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, err
	}
	fee, err := decimal.NewFromString(totalFee)
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, err
	}
	return count, amount, fee, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var amount, fee, sellerAmount string
	var response []byte

	err := row.Scan(
		&t.TransactionID, &t.ReferenceID, &t.SellerID, &t.BuyerPhone, &t.BuyerEmail,
		&amount, &fee, &sellerAmount, &t.Currency,
		&t.PaymentMethod, &t.Status, &t.StatusMessage, &t.IdempotencyKey,
		&t.GatewayTxnID, &response, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}

	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if t.PlatformFee, err = decimal.NewFromString(fee); err != nil {
		return nil, err
	}
	if t.SellerAmount, err = decimal.NewFromString(sellerAmount); err != nil {
		return nil, err
	}
	if len(response) > 0 {
		if err := json.Unmarshal(response, &t.GatewayResponse); err != nil {
			return nil, fmt.Errorf("unmarshaling gateway response: %w", err)
		}
	}
	return &t, nil
}
