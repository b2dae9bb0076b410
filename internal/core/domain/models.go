package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
)

// CanTransition reports whether a status change is legal.
// completed is terminal: a later callback for the same reference must not
// overwrite it, and failed transactions are only recovered by reconciliation.
func CanTransition(from, to TransactionStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

type PaymentMethod string

const (
	MethodSadaPay   PaymentMethod = "sadapay"
	MethodJazzCash  PaymentMethod = "jazzcash"
	MethodEasyPaisa PaymentMethod = "easypaisa"
	MethodBank      PaymentMethod = "bank"
)

func ValidMethod(m PaymentMethod) bool {
	switch m {
	case MethodSadaPay, MethodJazzCash, MethodEasyPaisa, MethodBank:
		return true
	}
	return false
}

// Seller is a payee. Balance, TotalEarned and PlatformFeesPaid are written
// only inside the transaction-completion unit of work; nothing here is ever
// decremented by the settlement engine.
type Seller struct {
	ID               uuid.UUID
	Name             string
	Phone            string
	Email            string
	WalletNumber     string
	BankName         string
	BankAccount      string
	Balance          decimal.Decimal
	TotalEarned      decimal.Decimal
	PlatformFeesPaid decimal.Decimal
	IsActive         bool
	NotifyURL        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Transaction is one payment attempt, a permanent financial record.
// Invariant: Amount = PlatformFee + SellerAmount, exactly.
type Transaction struct {
	TransactionID   uuid.UUID
	ReferenceID     string
	SellerID        uuid.UUID
	BuyerPhone      string
	BuyerEmail      string
	Amount          decimal.Decimal
	PlatformFee     decimal.Decimal
	SellerAmount    decimal.Decimal
	Currency        string
	PaymentMethod   PaymentMethod
	Status          TransactionStatus
	StatusMessage   string
	IdempotencyKey  string
	GatewayTxnID    string
	GatewayResponse map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// CommissionLedger is one immutable row per calendar date. Aggregation
// overwrites the totals; Withdrawn only moves through the withdrawal path
// and never exceeds TotalCommission.
type CommissionLedger struct {
	Date              time.Time
	TotalTransactions int
	TotalAmount       decimal.Decimal
	TotalCommission   decimal.Decimal
	Withdrawn         decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Available is the commission not yet paid out for this date.
func (l CommissionLedger) Available() decimal.Decimal {
	return l.TotalCommission.Sub(l.Withdrawn)
}

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
)

// Withdrawal moves accumulated commission out to a bank or wallet.
// LedgerDate binds it to one commission_ledger row at creation time; the
// row is never re-resolved from timestamps during processing.
type Withdrawal struct {
	ReferenceID      string
	Amount           decimal.Decimal
	Method           PaymentMethod
	Status           WithdrawalStatus
	StatusMessage    string
	LedgerDate       time.Time
	RecipientName    string
	RecipientNumber  string
	RecipientBank    string
	RecipientAccount string
	GatewayTxnID     string
	GatewayResponse  map[string]string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// BankDetails is the recipient data forwarded to the gateway payout call.
type BankDetails struct {
	BankID        string
	AccountNumber string
	AccountTitle  string
	CNIC          string
	Phone         string
	Email         string
}
