package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ecommerce-payments/internal/models"
)

// BasketRepository reads baskets and moves them through checkout.
type BasketRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Basket, error)
	Freeze(ctx context.Context, id int64) error
}

// PostgreSQLBasketRepository is the Postgres implementation of BasketRepository.
type PostgreSQLBasketRepository struct {
	db *sql.DB
}

// NewPostgreSQLBasketRepository returns a repository over db.
func NewPostgreSQLBasketRepository(db *sql.DB) *PostgreSQLBasketRepository {
	return &PostgreSQLBasketRepository{db: db}
}

// FindByID returns ErrNotFound when no basket has id.
func (r *PostgreSQLBasketRepository) FindByID(ctx context.Context, id int64) (*models.Basket, error) {
	query := `
		SELECT id, owner_username, currency, total_incl_tax, status, date_submitted
		FROM baskets
		WHERE id = $1`

	basket := &models.Basket{}
	var submitted sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&basket.ID,
		&basket.OwnerUsername,
		&basket.Currency,
		&basket.TotalInclTax,
		&basket.Status,
		&submitted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("basket %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding basket %d: %w", id, err)
	}
	if submitted.Valid {
		basket.DateSubmitted = &submitted.Time
	}
	return basket, nil
}

// Freeze locks the basket contents for checkout. Submitted baskets cannot be frozen.
func (r *PostgreSQLBasketRepository) Freeze(ctx context.Context, id int64) error {
	query := `UPDATE baskets SET status = $2 WHERE id = $1 AND status <> $3`

	res, err := r.db.ExecContext(ctx, query, id, models.BasketFrozen, models.BasketSubmitted)
	if err != nil {
		return fmt.Errorf("freezing basket %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("freezing basket %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("freezing basket %d: %w", id, ErrConflict)
	}
	return nil
}
