package domain

import "errors"

// Validation failures are rejected before any state is written.
var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidRate   = errors.New("commission rate must be in [0, 1)")
)

// Storage-level business errors surfaced to the services.
var (
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrDuplicateReference        = errors.New("reference id already exists")
	ErrDuplicateIdempotencyKey   = errors.New("idempotency key already exists")
	ErrSellerNotFound            = errors.New("seller not found")
	ErrLedgerNotFound            = errors.New("commission ledger not found")
	ErrInsufficientLedgerBalance = errors.New("insufficient commission balance in ledger")
	ErrWithdrawalNotFound        = errors.New("withdrawal not found")
	ErrWithdrawalNotPending      = errors.New("withdrawal is not pending")
	ErrInvalidTransition         = errors.New("invalid status transition")
)
