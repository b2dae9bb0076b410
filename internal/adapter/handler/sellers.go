package handler

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/hmkhan10/RouteBase/internal/adapter/storage"
	"github.com/hmkhan10/RouteBase/internal/core/domain"
	"github.com/hmkhan10/RouteBase/internal/core/security"
)

type SellerHandler struct {
	Repo *storage.SellerRepository
}

// CreateSellerRequest defines what the user sends us
type CreateSellerRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	WalletNumber string `json:"wallet_number"`
	BankName     string `json:"bank_name"`
	BankAccount  string `json:"bank_account"`
	NotifyURL    string `json:"notify_url"`
}

func (h *SellerHandler) CreateSeller(c *fiber.Ctx) error {
	var req CreateSellerRequest

	if err := c.BodyParser(&req); err != nil {
		slog.Warn("Invalid seller body", "error", err)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Name is required"})
	}
	if len(req.Phone) < 10 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid phone number"})
	}
	if req.WalletNumber == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Wallet number is required"})
	}

	seller, err := h.Repo.Create(c.Context(), domain.Seller{
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		WalletNumber: req.WalletNumber,
		BankName:     req.BankName,
		BankAccount:  req.BankAccount,
		IsActive:     true,
		NotifyURL:    req.NotifyURL,
	})
	if err != nil {
		slog.Error("Failed to create seller", "error", err, "name", req.Name)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not create seller"})
	}

	slog.Info("Seller created", "id", seller.ID, "name", req.Name)

	return c.Status(http.StatusCreated).JSON(seller)
}

func (h *SellerHandler) GenerateKey(c *fiber.Ctx) error {
	sellerIDParam := c.Params("id")

	sellerUUID, err := uuid.Parse(sellerIDParam)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid Seller ID format"})
	}

	realKey, keyHash, err := security.GenerateAPIKey()
	if err != nil {
		slog.Error("Crypto error generating key", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Crypto error"})
	}

	err = h.Repo.SaveAPIKey(c.Context(), sellerUUID, keyHash, "rb_live_")
	if err != nil {
		slog.Error("Failed to save API key", "error", err, "seller_id", sellerUUID)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save key"})
	}

	slog.Info("API key generated", "seller_id", sellerUUID)

	// Show the key once only; we store the hash.
	return c.JSON(fiber.Map{
		"api_key": realKey,
		"warning": "Save this now! We won't show it again.",
	})
}
