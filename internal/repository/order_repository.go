package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ecommerce-payments/internal/models"
)

// OrderRepository persists placed orders.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
}

// PostgreSQLOrderRepository is the Postgres implementation of OrderRepository.
type PostgreSQLOrderRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgreSQLOrderRepository returns a repository over db.
func NewPostgreSQLOrderRepository(db *sql.DB) *PostgreSQLOrderRepository {
	return &PostgreSQLOrderRepository{db: db, now: time.Now}
}

// Create submits the order's basket and inserts the order with its billing address,
// payment sources and payment events in a single transaction. It returns
// ErrDuplicateSource when one of the order's payment sources is already recorded, and
// ErrConflict when the basket was already submitted or the order number or basket is taken.
func (r *PostgreSQLOrderRepository) Create(ctx context.Context, order *models.Order) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	placedAt := r.now().UTC()

	res, err := tx.ExecContext(ctx,
		`UPDATE baskets SET status = $2, date_submitted = $3 WHERE id = $1 AND status <> $2`,
		order.BasketID, models.BasketSubmitted, placedAt)
	if err != nil {
		return fmt.Errorf("submitting basket %d: %w", order.BasketID, err)
	}
	if n, rowsErr := res.RowsAffected(); rowsErr != nil {
		return fmt.Errorf("submitting basket %d: %w", order.BasketID, rowsErr)
	} else if n == 0 {
		recorded, lookupErr := sourceRecorded(ctx, tx, order.Sources)
		if lookupErr != nil {
			return fmt.Errorf("basket %d already submitted: %w", order.BasketID, lookupErr)
		}
		if recorded {
			return fmt.Errorf("basket %d already submitted: %w", order.BasketID, ErrDuplicateSource)
		}
		return fmt.Errorf("basket %d already submitted: %w", order.BasketID, ErrConflict)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			number, basket_id, user_username, currency, total_incl_tax, total_excl_tax,
			shipping_method, shipping_incl_tax, status, date_placed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		order.Number,
		order.BasketID,
		order.User,
		order.Currency,
		order.TotalInclTax,
		order.TotalExclTax,
		order.ShippingMethod,
		order.ShippingInclTax,
		order.Status,
		placedAt,
	).Scan(&order.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", order.Number, ErrConflict)
		}
		return fmt.Errorf("inserting order %s: %w", order.Number, err)
	}
	order.DatePlaced = placedAt

	if a := order.BillingAddress; a != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_billing_addresses (
				order_id, first_name, last_name, line1, line2, line4, postcode, state, country
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			order.ID, a.FirstName, a.LastName, a.Line1, a.Line2, a.Line4, a.Postcode, a.State, a.Country.ISO3166Alpha2)
		if err != nil {
			return fmt.Errorf("inserting billing address for order %s: %w", order.Number, err)
		}
	}

	for i := range order.Sources {
		s := &order.Sources[i]
		s.OrderID = order.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO payment_sources (
				order_id, source_type, currency, amount_allocated, amount_debited, reference, label
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			s.OrderID, s.SourceType, s.Currency, s.AmountAllocated, s.AmountDebited, s.Reference, s.Label,
		).Scan(&s.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("payment source %s/%s: %w", s.SourceType, s.Reference, ErrDuplicateSource)
			}
			return fmt.Errorf("inserting payment source for order %s: %w", order.Number, err)
		}
	}

	for i := range order.PaymentEvents {
		e := &order.PaymentEvents[i]
		e.OrderID = order.ID
		e.CreatedAt = placedAt
		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_payment_events (
				order_id, event_type, amount, reference, processor_name, created_at
			) VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			e.OrderID, e.EventType, e.Amount, e.Reference, e.ProcessorName, e.CreatedAt,
		).Scan(&e.ID)
		if err != nil {
			return fmt.Errorf("inserting payment event for order %s: %w", order.Number, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing order %s: %w", order.Number, err)
	}
	return nil
}

// sourceRecorded reports whether any of sources is already stored.
func sourceRecorded(ctx context.Context, tx *sql.Tx, sources []models.Source) (bool, error) {
	for _, s := range sources {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM payment_sources WHERE source_type = $1 AND reference = $2)`,
			s.SourceType, s.Reference,
		).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("looking up payment source %s/%s: %w", s.SourceType, s.Reference, err)
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}
