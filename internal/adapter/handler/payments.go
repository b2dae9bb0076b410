package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hmkhan10/RouteBase/internal/adapter/storage"
	"github.com/hmkhan10/RouteBase/internal/core/domain"
	"github.com/hmkhan10/RouteBase/internal/core/gateway"
	"github.com/hmkhan10/RouteBase/internal/core/payment"
)

type PaymentHandler struct {
	Service *payment.Service
	Repo    *storage.TransactionRepository
}

type InitiatePaymentRequest struct {
	Amount         string `json:"amount"`
	SellerID       string `json:"seller_id"`
	BuyerPhone     string `json:"buyer_phone"`
	BuyerEmail     string `json:"buyer_email"`
	Method         string `json:"method"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *PaymentHandler) InitiatePayment(c *fiber.Ctx) error {
	var req InitiatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Warn("Invalid payment body received", "error", err)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid amount"})
	}

	sellerUUID, err := uuid.Parse(req.SellerID)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid Seller ID"})
	}

	result, err := h.Service.InitiatePayment(c.Context(), payment.InitiateRequest{
		Amount:         amount,
		SellerID:       sellerUUID,
		BuyerPhone:     req.BuyerPhone,
		BuyerEmail:     req.BuyerEmail,
		Method:         domain.PaymentMethod(req.Method),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSellerNotFound):
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidRate):
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		slog.Error("Payment initiation failed", "error", err, "seller_id", req.SellerID)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Payment initiation failed"})
	}

	body := fiber.Map{
		"success":        result.Success,
		"message":        result.Message,
		"transaction_id": result.Transaction.TransactionID,
		"reference_id":   result.Transaction.ReferenceID,
		"status":         result.Transaction.Status,
	}
	if result.Payment != nil {
		body["payment"] = fiber.Map{
			"redirect_url": result.Payment.RedirectURL,
			"method":       result.Payment.Method,
			"fields":       result.Payment.Fields,
		}
	}

	status := http.StatusOK
	if !result.Success && !result.Replayed {
		status = http.StatusBadGateway
	}
	return c.Status(status).JSON(body)
}

// HandleCallback receives the gateway's form-encoded settlement callback.
// Declines and replays are acknowledged with 200 — the gateway does not
// retry on acknowledgment, only on 5xx.
func (h *PaymentHandler) HandleCallback(c *fiber.Ctx) error {
	fields := make(map[string]string)
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		fields[string(key)] = string(value)
	})
	if len(fields) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Empty callback payload"})
	}

	result, err := h.Service.HandleCallback(c.Context(), fields)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		slog.Error("Callback handling failed", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Callback handling failed"})
	}

	switch result.Reason {
	case gateway.ReasonMissingField, gateway.ReasonMalformed, gateway.ReasonHashMismatch:
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   result.Message,
		})
	}

	body := fiber.Map{
		"success": result.Success,
		"message": result.Message,
	}
	if result.Transaction != nil {
		body["reference_id"] = result.Transaction.ReferenceID
		body["status"] = result.Transaction.Status
	}
	return c.JSON(body)
}

func (h *PaymentHandler) GetStatus(c *fiber.Ctx) error {
	referenceID := c.Params("reference")

	txn, err := h.Repo.GetByReference(c.Context(), referenceID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch transaction"})
	}

	return c.JSON(fiber.Map{
		"transaction_id": txn.TransactionID,
		"reference_id":   txn.ReferenceID,
		"amount":         txn.Amount,
		"platform_fee":   txn.PlatformFee,
		"seller_amount":  txn.SellerAmount,
		"currency":       txn.Currency,
		"status":         txn.Status,
		"status_message": txn.StatusMessage,
		"completed_at":   txn.CompletedAt,
	})
}

// Reconcile resolves a transaction stuck in processing via a gateway status
// inquiry.
func (h *PaymentHandler) Reconcile(c *fiber.Ctx) error {
	referenceID := c.Params("reference")

	result, err := h.Service.ReconcilePayment(c.Context(), referenceID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
		}
		slog.Error("Reconciliation failed", "error", err, "reference_id", referenceID)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Reconciliation failed"})
	}

	status := http.StatusOK
	if result.Retryable {
		status = http.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"success":   result.Success,
		"message":   result.Message,
		"retryable": result.Retryable,
		"status":    result.Transaction.Status,
	})
}
