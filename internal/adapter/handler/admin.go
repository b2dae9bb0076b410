package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/hmkhan10/RouteBase/internal/core/commission"
	"github.com/hmkhan10/RouteBase/internal/core/domain"
)

const dateLayout = "2006-01-02"

type AdminHandler struct {
	Commission *commission.Service
	// Loc interprets date parameters. Ledger dates are merchant-local
	// calendar days; parsing them in UTC would resolve to the previous day
	// for timezones west of UTC.
	Loc *time.Location
}

func (h *AdminHandler) parseDate(value string) (time.Time, error) {
	loc := h.Loc
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(dateLayout, value, loc)
}

type AggregateRequest struct {
	Date string `json:"date"` // "2006-01-02", optional; defaults to yesterday
}

func (h *AdminHandler) AggregateCommission(c *fiber.Ctx) error {
	var req AggregateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
		}
	}

	var target *time.Time
	if req.Date != "" {
		parsed, err := h.parseDate(req.Date)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid date, use YYYY-MM-DD"})
		}
		target = &parsed
	}

	result, err := h.Commission.AggregateDailyCommission(c.Context(), target)
	if err != nil {
		slog.Error("Commission aggregation failed", "error", err, "date", req.Date)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Aggregation failed"})
	}

	return c.JSON(fiber.Map{
		"success": result.Success,
		"message": result.Message,
		"ledger":  ledgerBody(result.Ledger),
	})
}

func (h *AdminHandler) GetLedger(c *fiber.Ctx) error {
	date, err := h.parseDate(c.Params("date"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid date, use YYYY-MM-DD"})
	}

	ledger, err := h.Commission.Ledger(c.Context(), date)
	if err != nil {
		if errors.Is(err, domain.ErrLedgerNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Ledger not found"})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch ledger"})
	}

	return c.JSON(ledgerBody(ledger))
}

type WithdrawalRequestBody struct {
	Amount           string `json:"amount"`
	Method           string `json:"method"`
	LedgerDate       string `json:"ledger_date"` // optional; defaults to yesterday
	RecipientName    string `json:"recipient_name"`
	RecipientNumber  string `json:"recipient_number"`
	RecipientBank    string `json:"recipient_bank"`
	RecipientAccount string `json:"recipient_account"`
}

func (h *AdminHandler) RequestWithdrawal(c *fiber.Ctx) error {
	var req WithdrawalRequestBody
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid amount"})
	}

	var ledgerDate *time.Time
	if req.LedgerDate != "" {
		parsed, err := h.parseDate(req.LedgerDate)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid ledger_date, use YYYY-MM-DD"})
		}
		ledgerDate = &parsed
	}

	w, err := h.Commission.RequestWithdrawal(c.Context(), commission.WithdrawalRequest{
		Amount:           amount,
		Method:           domain.PaymentMethod(req.Method),
		LedgerDate:       ledgerDate,
		RecipientName:    req.RecipientName,
		RecipientNumber:  req.RecipientNumber,
		RecipientBank:    req.RecipientBank,
		RecipientAccount: req.RecipientAccount,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLedgerNotFound):
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, domain.ErrInsufficientLedgerBalance),
			errors.Is(err, domain.ErrInvalidAmount):
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		slog.Error("Withdrawal request failed", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Withdrawal request failed"})
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"reference_id": w.ReferenceID,
		"amount":       w.Amount,
		"method":       w.Method,
		"status":       w.Status,
		"ledger_date":  w.LedgerDate.Format(dateLayout),
	})
}

type ProcessWithdrawalRequest struct {
	BankID        string `json:"bank_id"`
	AccountNumber string `json:"account_number"`
	AccountTitle  string `json:"account_title"`
	CNIC          string `json:"cnic"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
}

func (h *AdminHandler) ProcessWithdrawal(c *fiber.Ctx) error {
	referenceID := c.Params("reference")

	var req ProcessWithdrawalRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
		}
	}

	result, err := h.Commission.ProcessWithdrawal(c.Context(), referenceID, domain.BankDetails{
		BankID:        req.BankID,
		AccountNumber: req.AccountNumber,
		AccountTitle:  req.AccountTitle,
		CNIC:          req.CNIC,
		Phone:         req.Phone,
		Email:         req.Email,
	})
	if err != nil {
		if errors.Is(err, domain.ErrWithdrawalNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Withdrawal not found"})
		}
		slog.Error("Withdrawal processing failed", "error", err, "reference_id", referenceID)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Withdrawal processing failed"})
	}

	return c.JSON(fiber.Map{
		"success":      result.Success,
		"message":      result.Message,
		"reference_id": result.Withdrawal.ReferenceID,
		"status":       result.Withdrawal.Status,
	})
}

func ledgerBody(l *domain.CommissionLedger) fiber.Map {
	return fiber.Map{
		"date":               l.Date.Format(dateLayout),
		"total_transactions": l.TotalTransactions,
		"total_amount":       l.TotalAmount,
		"total_commission":   l.TotalCommission,
		"withdrawn":          l.Withdrawn,
		"available":          l.Available(),
	}
}
