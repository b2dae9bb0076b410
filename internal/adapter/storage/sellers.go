package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hmkhan10/RouteBase/internal/core/domain"
)

const sellerColumns = `
	id, name, phone, email, wallet_number, bank_name, bank_account,
	balance::text, total_earned::text, platform_fees_paid::text,
	is_active, notify_url, created_at, updated_at`

type SellerRepository struct {
	db *pgxpool.Pool
}

func NewSellerRepository(db *pgxpool.Pool) *SellerRepository {
	return &SellerRepository{db: db}
}

func (r *SellerRepository) Create(ctx context.Context, s domain.Seller) (*domain.Seller, error) {
	query := `
		INSERT INTO sellers (name, phone, email, wallet_number, bank_name, bank_account, is_active, notify_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + sellerColumns

	seller, err := scanSeller(r.db.QueryRow(ctx, query,
		s.Name, s.Phone, s.Email, s.WalletNumber, s.BankName, s.BankAccount, s.IsActive, s.NotifyURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create seller: %w", err)
	}
	return seller, nil
}

func (r *SellerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE id = $1`
	seller, err := scanSeller(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSellerNotFound
	}
	return seller, err
}

// SaveAPIKey stores the hashed admin key for the seller
func (r *SellerRepository) SaveAPIKey(ctx context.Context, sellerID uuid.UUID, keyHash string, keyPrefix string) error {
	query := `INSERT INTO api_keys (seller_id, key_hash, key_prefix) VALUES ($1, $2, $3)`

	_, err := r.db.Exec(ctx, query, sellerID, keyHash, keyPrefix)
	if err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}

func scanSeller(row pgx.Row) (*domain.Seller, error) {
	var s domain.Seller
	var balance, earned, fees string

	err := row.Scan(
		&s.ID, &s.Name, &s.Phone, &s.Email, &s.WalletNumber, &s.BankName, &s.BankAccount,
		&balance, &earned, &fees, &s.IsActive, &s.NotifyURL, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if s.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, err
	}
	if s.TotalEarned, err = decimal.NewFromString(earned); err != nil {
		return nil, err
	}
	if s.PlatformFeesPaid, err = decimal.NewFromString(fees); err != nil {
		return nil, err
	}
	return &s, nil
}
