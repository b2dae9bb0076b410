package commission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hmkhan10/RouteBase/internal/core/domain"
	"github.com/hmkhan10/RouteBase/internal/core/gateway"
)

// TransactionSummer rolls completed transactions up over a time window.
type TransactionSummer interface {
	SumCompleted(ctx context.Context, from, to time.Time) (count int, totalAmount, totalFee decimal.Decimal, err error)
}

// LedgerStore owns the per-date commission rows. Reserve and Release run
// under an exclusive row lock; UpsertDay overwrites totals but never touches
// the withdrawn column.
type LedgerStore interface {
	UpsertDay(ctx context.Context, date time.Time, count int, totalAmount, totalCommission decimal.Decimal) (*domain.CommissionLedger, error)
	GetDay(ctx context.Context, date time.Time) (*domain.CommissionLedger, error)
	Reserve(ctx context.Context, date time.Time, amount decimal.Decimal) error
	Release(ctx context.Context, date time.Time, amount decimal.Decimal) error
}

// WithdrawalStore persists withdrawals. Claim is the atomic pending-to-
// processing transition: it must succeed for exactly one of any number of
// concurrent callers and return ErrWithdrawalNotPending to the rest.
type WithdrawalStore interface {
	Create(ctx context.Context, w domain.Withdrawal) (*domain.Withdrawal, error)
	Get(ctx context.Context, referenceID string) (*domain.Withdrawal, error)
	Claim(ctx context.Context, referenceID string) (*domain.Withdrawal, error)
	UpdateStatus(ctx context.Context, referenceID string, to domain.WithdrawalStatus, message string) (*domain.Withdrawal, error)
	MarkCompleted(ctx context.Context, referenceID, gatewayTxnID string, response map[string]string) (*domain.Withdrawal, error)
}

// PayoutGateway moves reserved commission out through the external gateway.
type PayoutGateway interface {
	WithdrawToBank(ctx context.Context, amount decimal.Decimal, details domain.BankDetails) (*gateway.PayoutResult, error)
	PayoutToWallet(ctx context.Context, amount decimal.Decimal, walletNumber, description string) (*gateway.PayoutResult, error)
}

type Service struct {
	transactions TransactionSummer
	ledger       LedgerStore
	withdrawals  WithdrawalStore
	gateway      PayoutGateway
	loc          *time.Location
}

func NewService(transactions TransactionSummer, ledger LedgerStore, withdrawals WithdrawalStore, gw PayoutGateway, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		transactions: transactions,
		ledger:       ledger,
		withdrawals:  withdrawals,
		gateway:      gw,
		loc:          loc,
	}
}

type AggregateResult struct {
	Success bool
	Message string
	Ledger  *domain.CommissionLedger
}

// AggregateDailyCommission rolls completed transactions for one calendar day
// (merchant-local) into the day's ledger row. Re-running for the same date
// overwrites the computed totals and leaves withdrawn alone, so backfills
// and cron re-runs are safe.
func (s *Service) AggregateDailyCommission(ctx context.Context, target *time.Time) (*AggregateResult, error) {
	var day time.Time
	if target != nil {
		day = s.dayOf(*target)
	} else {
		day = s.dayOf(time.Now().AddDate(0, 0, -1))
	}
	start := day
	end := day.AddDate(0, 0, 1)

	slog.Info("Starting commission aggregation", "date", day.Format("2006-01-02"))

	count, totalAmount, totalFee, err := s.transactions.SumCompleted(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("summing completed transactions: %w", err)
	}

	ledger, err := s.ledger.UpsertDay(ctx, day, count, totalAmount, totalFee)
	if err != nil {
		return nil, fmt.Errorf("upserting commission ledger for %s: %w", day.Format("2006-01-02"), err)
	}

	slog.Info("Commission aggregated",
		"date", day.Format("2006-01-02"),
		"transactions", count, "volume", totalAmount, "commission", totalFee)

	return &AggregateResult{
		Success: true,
		Message: "commission aggregated",
		Ledger:  ledger,
	}, nil
}

// Ledger returns the commission row for a calendar date.
func (s *Service) Ledger(ctx context.Context, date time.Time) (*domain.CommissionLedger, error) {
	return s.ledger.GetDay(ctx, s.dayOf(date))
}

type WithdrawalRequest struct {
	Amount           decimal.Decimal
	Method           domain.PaymentMethod
	LedgerDate       *time.Time
	RecipientName    string
	RecipientNumber  string
	RecipientBank    string
	RecipientAccount string
}

// RequestWithdrawal records a pending withdrawal bound to a specific ledger
// date. The binding is fixed here; processing never re-resolves the ledger
// row from timestamps. Defaults to yesterday's ledger, the most recent one
// the nightly aggregation can have produced.
func (s *Service) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.Withdrawal, error) {
	if req.Amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !domain.ValidMethod(req.Method) {
		return nil, fmt.Errorf("unsupported withdrawal method %q", req.Method)
	}

	var day time.Time
	if req.LedgerDate != nil {
		day = s.dayOf(*req.LedgerDate)
	} else {
		day = s.dayOf(time.Now().AddDate(0, 0, -1))
	}

	// Fail-fast visibility check; the binding gate is the locked reservation
	// in ProcessWithdrawal.
	ledger, err := s.ledger.GetDay(ctx, day)
	if err != nil {
		return nil, err
	}
	if req.Amount.GreaterThan(ledger.Available()) {
		return nil, fmt.Errorf("%w: available %s", domain.ErrInsufficientLedgerBalance, ledger.Available())
	}

	w := domain.Withdrawal{
		ReferenceID:      domain.NewWithdrawalReference(),
		Amount:           req.Amount,
		Method:           req.Method,
		Status:           domain.WithdrawalPending,
		LedgerDate:       day,
		RecipientName:    req.RecipientName,
		RecipientNumber:  req.RecipientNumber,
		RecipientBank:    req.RecipientBank,
		RecipientAccount: req.RecipientAccount,
	}
	return s.withdrawals.Create(ctx, w)
}

type WithdrawalResult struct {
	Success    bool
	Message    string
	Withdrawal *domain.Withdrawal
}

// ProcessWithdrawal executes a pending withdrawal with a pessimistic
// reservation: the ledger's withdrawn column is incremented under a row lock
// before the external payout call, and decremented again if the payout fails
// for any reason. Two concurrent withdrawals therefore cannot overdraw a
// day's commission. The withdrawal itself is claimed atomically first, so
// concurrent calls for the same reference pay out at most once.
func (s *Service) ProcessWithdrawal(ctx context.Context, referenceID string, bank domain.BankDetails) (*WithdrawalResult, error) {
	w, err := s.withdrawals.Claim(ctx, referenceID)
	if errors.Is(err, domain.ErrWithdrawalNotPending) {
		// Lost the claim or the withdrawal is terminal; report its state.
		current, getErr := s.withdrawals.Get(ctx, referenceID)
		if getErr != nil {
			return nil, getErr
		}
		switch current.Status {
		case domain.WithdrawalCompleted:
			return &WithdrawalResult{Success: true, Message: "withdrawal already completed", Withdrawal: current}, nil
		case domain.WithdrawalFailed:
			return &WithdrawalResult{Success: false, Message: "withdrawal has failed: " + current.StatusMessage, Withdrawal: current}, nil
		default:
			return &WithdrawalResult{Success: false, Message: "withdrawal is already being processed", Withdrawal: current}, nil
		}
	}
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Reserve(ctx, w.LedgerDate, w.Amount); err != nil {
		if errors.Is(err, domain.ErrLedgerNotFound) || errors.Is(err, domain.ErrInsufficientLedgerBalance) {
			failed, markErr := s.withdrawals.UpdateStatus(ctx, referenceID, domain.WithdrawalFailed, err.Error())
			if markErr != nil {
				return nil, markErr
			}
			return &WithdrawalResult{Success: false, Message: err.Error(), Withdrawal: failed}, nil
		}
		// Infrastructure failure before any money moved: release the claim so
		// the withdrawal can be retried.
		if _, markErr := s.withdrawals.UpdateStatus(ctx, referenceID, domain.WithdrawalPending, ""); markErr != nil {
			slog.Error("Failed to release withdrawal claim",
				"reference_id", referenceID, "error", markErr)
		}
		return nil, err
	}

	result, gwErr := s.payout(ctx, w, bank)
	if gwErr != nil || !result.Success {
		message := "payout failed"
		if gwErr != nil {
			message = gwErr.Error()
		} else if result.Message != "" {
			message = result.Message
		}

		s.compensate(ctx, w)

		failed, markErr := s.withdrawals.UpdateStatus(ctx, referenceID, domain.WithdrawalFailed, message)
		if markErr != nil {
			return nil, markErr
		}
		slog.Warn("Withdrawal failed, reservation reverted",
			"reference_id", referenceID, "amount", w.Amount, "error", message)
		return &WithdrawalResult{Success: false, Message: message, Withdrawal: failed}, nil
	}

	completed, err := s.withdrawals.MarkCompleted(ctx, referenceID, result.GatewayTxnID, result.Raw)
	if err != nil {
		return nil, err
	}

	slog.Info("Withdrawal completed",
		"reference_id", referenceID, "amount", w.Amount, "gateway_txn_id", result.GatewayTxnID)
	return &WithdrawalResult{Success: true, Message: "Withdrawal completed", Withdrawal: completed}, nil
}

func (s *Service) payout(ctx context.Context, w *domain.Withdrawal, bank domain.BankDetails) (*gateway.PayoutResult, error) {
	if w.Method == domain.MethodBank {
		return s.gateway.WithdrawToBank(ctx, w.Amount, bank)
	}
	return s.gateway.PayoutToWallet(ctx, w.Amount, w.RecipientNumber, "Commission withdrawal "+w.ReferenceID)
}

func (s *Service) compensate(ctx context.Context, w *domain.Withdrawal) {
	if err := s.ledger.Release(ctx, w.LedgerDate, w.Amount); err != nil {
		// The reservation is now stranded; this needs operator attention.
		slog.Error("Failed to revert ledger reservation",
			"reference_id", w.ReferenceID, "ledger_date", w.LedgerDate.Format("2006-01-02"),
			"amount", w.Amount, "error", err)
	}
}

func (s *Service) dayOf(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}
