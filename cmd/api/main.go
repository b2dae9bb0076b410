package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/hmkhan10/RouteBase/internal/adapter/handler"
	"github.com/hmkhan10/RouteBase/internal/adapter/middleware"
	"github.com/hmkhan10/RouteBase/internal/adapter/storage"
	"github.com/hmkhan10/RouteBase/internal/core/commission"
	"github.com/hmkhan10/RouteBase/internal/core/config"
	"github.com/hmkhan10/RouteBase/internal/core/gateway"
	"github.com/hmkhan10/RouteBase/internal/core/notifications"
	"github.com/hmkhan10/RouteBase/internal/core/payment"
	"github.com/hmkhan10/RouteBase/internal/core/worker"
)

func main() {
	cfg := config.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	dbPool, err := storage.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Database connection failed", "error", err)
		os.Exit(1)
	}

	// Repos
	sellerRepo := storage.NewSellerRepository(dbPool)
	transactionRepo := storage.NewTransactionRepository(dbPool)
	commissionRepo := storage.NewCommissionRepository(dbPool)
	withdrawalRepo := storage.NewWithdrawalRepository(dbPool)
	notifyQueue := storage.NewNotificationQueue(dbPool)

	// Services
	gatewayClient := gateway.NewClient(cfg.Gateway)
	notifier := notifications.NewQueueNotifier(notifyQueue)
	paymentService := payment.NewService(transactionRepo, sellerRepo, gatewayClient, notifier, cfg.CommissionRate)
	commissionService := commission.NewService(transactionRepo, commissionRepo, withdrawalRepo, gatewayClient, cfg.MerchantTimezone)

	// Handlers
	sellerHandler := &handler.SellerHandler{Repo: sellerRepo}
	paymentHandler := &handler.PaymentHandler{Service: paymentService, Repo: transactionRepo}
	adminHandler := &handler.AdminHandler{Commission: commissionService, Loc: cfg.MerchantTimezone}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/v1")

	// Public
	api.Post("/sellers", sellerHandler.CreateSeller)
	api.Post("/sellers/:id/keys", sellerHandler.GenerateKey)
	api.Post("/payments", paymentHandler.InitiatePayment)
	api.Post("/payments/callback", paymentHandler.HandleCallback)
	api.Get("/payments/:reference", paymentHandler.GetStatus)

	// Protected admin surface
	admin := api.Group("/admin", middleware.Protected(dbPool))
	admin.Post("/payments/:reference/reconcile", paymentHandler.Reconcile)
	admin.Post("/commission/aggregate", adminHandler.AggregateCommission)
	admin.Get("/commission/:date", adminHandler.GetLedger)
	admin.Post("/withdrawals", adminHandler.RequestWithdrawal)
	admin.Post("/withdrawals/:reference/process", adminHandler.ProcessWithdrawal)

	// Background workers
	worker.StartNotificationWorker(dbPool, cfg.NotifySecret)
	worker.StartDailyAggregator(commissionService, time.Hour)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("Server starting", "env", cfg.Env, "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
	}()

	<-stop
	slog.Info("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}

	dbPool.Close()
	slog.Info("Database connection closed")

	slog.Info("Server exited")
}
