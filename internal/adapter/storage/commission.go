package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hmkhan10/RouteBase/internal/core/domain"
)

const ledgerColumns = `
	ledger_date, total_transactions, total_amount::text, total_commission::text,
	withdrawn::text, created_at, updated_at`

type CommissionRepository struct {
	db *pgxpool.Pool
}

func NewCommissionRepository(db *pgxpool.Pool) *CommissionRepository {
	return &CommissionRepository{db: db}
}

// UpsertDay writes the recomputed totals for a date. The withdrawn column is
// deliberately absent from the update list: re-aggregation must never move
// money that has already been paid out. The table's check constraint rejects
// a recompute that would drop total_commission below withdrawn.
func (r *CommissionRepository) UpsertDay(ctx context.Context, date time.Time, count int, totalAmount, totalCommission decimal.Decimal) (*domain.CommissionLedger, error) {
	query := `
		INSERT INTO commission_ledger (ledger_date, total_transactions, total_amount, total_commission)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ledger_date) DO UPDATE
		SET total_transactions = EXCLUDED.total_transactions,
		    total_amount = EXCLUDED.total_amount,
		    total_commission = EXCLUDED.total_commission,
		    updated_at = NOW()
		RETURNING ` + ledgerColumns

	ledger, err := scanLedger(r.db.QueryRow(ctx, query,
		date, count, totalAmount.String(), totalCommission.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert commission ledger: %w", err)
	}
	return ledger, nil
}

func (r *CommissionRepository) GetDay(ctx context.Context, date time.Time) (*domain.CommissionLedger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM commission_ledger WHERE ledger_date = $1`
	ledger, err := scanLedger(r.db.QueryRow(ctx, query, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrLedgerNotFound
	}
	return ledger, err
}

// Reserve increments withdrawn under a row lock after checking the
// available balance. The lock is released at commit, before the caller's
// external payout call.
func (r *CommissionRepository) Reserve(ctx context.Context, date time.Time, amount decimal.Decimal) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var totalCommission, withdrawn string
	err = tx.QueryRow(ctx,
		`SELECT total_commission::text, withdrawn::text FROM commission_ledger WHERE ledger_date = $1 FOR UPDATE`,
		date).Scan(&totalCommission, &withdrawn)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrLedgerNotFound
	}
	if err != nil {
		return err
	}

	total, err := decimal.NewFromString(totalCommission)
	if err != nil {
		return err
	}
	used, err := decimal.NewFromString(withdrawn)
	if err != nil {
		return err
	}

	available := total.Sub(used)
	if amount.GreaterThan(available) {
		return fmt.Errorf("%w: available %s, requested %s",
			domain.ErrInsufficientLedgerBalance, available, amount)
	}

	_, err = tx.Exec(ctx,
		`UPDATE commission_ledger SET withdrawn = withdrawn + $2, updated_at = NOW() WHERE ledger_date = $1`,
		date, amount.String())
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Release reverts a reservation after a failed payout.
func (r *CommissionRepository) Release(ctx context.Context, date time.Time, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE commission_ledger SET withdrawn = withdrawn - $2, updated_at = NOW() WHERE ledger_date = $1`,
		date, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLedgerNotFound
	}
	return nil
}

func scanLedger(row pgx.Row) (*domain.CommissionLedger, error) {
	var l domain.CommissionLedger
	var amount, commission, withdrawn string

	err := row.Scan(&l.Date, &l.TotalTransactions, &amount, &commission, &withdrawn,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if l.TotalAmount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if l.TotalCommission, err = decimal.NewFromString(commission); err != nil {
		return nil, err
	}
	if l.Withdrawn, err = decimal.NewFromString(withdrawn); err != nil {
		return nil, err
	}
	return &l, nil
}

const withdrawalColumns = `
	reference_id, amount::text, method, status, status_message, ledger_date,
	recipient_name, recipient_number, recipient_bank, recipient_account,
	gateway_txn_id, gateway_response, created_at, updated_at, completed_at`

type WithdrawalRepository struct {
	db *pgxpool.Pool
}

func NewWithdrawalRepository(db *pgxpool.Pool) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, w domain.Withdrawal) (*domain.Withdrawal, error) {
	query := `
		INSERT INTO withdrawals (
			reference_id, amount, method, status, ledger_date,
			recipient_name, recipient_number, recipient_bank, recipient_account
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + withdrawalColumns

	created, err := scanWithdrawal(r.db.QueryRow(ctx, query,
		w.ReferenceID, w.Amount.String(), w.Method, w.Status, w.LedgerDate,
		w.RecipientName, w.RecipientNumber, w.RecipientBank, w.RecipientAccount))
	if err != nil {
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return created, nil
}

func (r *WithdrawalRepository) Get(ctx context.Context, referenceID string) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE reference_id = $1`
	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, referenceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWithdrawalNotFound
	}
	return w, err
}

// Claim flips a withdrawal from pending to processing in a single statement.
// The status predicate makes the claim atomic: of any number of concurrent
// callers, exactly one gets the row back and the rest see
// ErrWithdrawalNotPending.
func (r *WithdrawalRepository) Claim(ctx context.Context, referenceID string) (*domain.Withdrawal, error) {
	query := `
		UPDATE withdrawals
		SET status = $2, status_message = '', updated_at = NOW()
		WHERE reference_id = $1 AND status = $3
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(r.db.QueryRow(ctx, query,
		referenceID, domain.WithdrawalProcessing, domain.WithdrawalPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWithdrawalNotPending
	}
	return w, err
}

func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, referenceID string, to domain.WithdrawalStatus, message string) (*domain.Withdrawal, error) {
	query := `
		UPDATE withdrawals
		SET status = $2, status_message = $3, updated_at = NOW()
		WHERE reference_id = $1
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, referenceID, to, message))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWithdrawalNotFound
	}
	return w, err
}

func (r *WithdrawalRepository) MarkCompleted(ctx context.Context, referenceID, gatewayTxnID string, response map[string]string) (*domain.Withdrawal, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("marshaling gateway response: %w", err)
	}
	if response == nil {
		responseJSON = []byte("{}")
	}

	query := `
		UPDATE withdrawals
		SET status = $2, gateway_txn_id = $3, gateway_response = $4,
		    completed_at = NOW(), updated_at = NOW()
		WHERE reference_id = $1
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(r.db.QueryRow(ctx, query,
		referenceID, domain.WithdrawalCompleted, gatewayTxnID, responseJSON))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWithdrawalNotFound
	}
	return w, err
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	var amount string
	var response []byte

	err := row.Scan(
		&w.ReferenceID, &amount, &w.Method, &w.Status, &w.StatusMessage, &w.LedgerDate,
		&w.RecipientName, &w.RecipientNumber, &w.RecipientBank, &w.RecipientAccount,
		&w.GatewayTxnID, &response, &w.CreatedAt, &w.UpdatedAt, &w.CompletedAt)
	if err != nil {
		return nil, err
	}

	if w.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if len(response) > 0 {
		if err := json.Unmarshal(response, &w.GatewayResponse); err != nil {
			return nil, fmt.Errorf("unmarshaling gateway response: %w", err)
		}
	}
	return &w, nil
}
