package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would break a uniqueness or state constraint.
	ErrConflict = errors.New("conflict")
	// ErrDuplicateSource is returned when an order already carries a payment source with
	// the same source type and reference. It wraps ErrConflict.
	ErrDuplicateSource = fmt.Errorf("payment source already recorded: %w", ErrConflict)
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// InitDatabase opens the Postgres pool and creates the tables when missing.
func InitDatabase(ctx context.Context, databaseURL string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err = createTables(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	logger.Info("database initialized")
	return db, nil
}

var tableQueries = []string{
	`CREATE TABLE IF NOT EXISTS baskets (
		id BIGSERIAL PRIMARY KEY,
		owner_username VARCHAR(255) NOT NULL,
		currency CHAR(3) NOT NULL,
		total_incl_tax NUMERIC(12,2) NOT NULL DEFAULT 0,
		status VARCHAR(32) NOT NULL DEFAULT 'Open',
		date_submitted TIMESTAMPTZ
	);`,
	`CREATE TABLE IF NOT EXISTS address_countries (
		iso_3166_1_a2 CHAR(2) PRIMARY KEY,
		name VARCHAR(128) NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS payment_processor_responses (
		id BIGSERIAL PRIMARY KEY,
		processor_name VARCHAR(255) NOT NULL,
		transaction_id VARCHAR(255) NOT NULL,
		basket_id BIGINT REFERENCES baskets(id) ON DELETE SET NULL,
		response TEXT NOT NULL,
		created TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		number VARCHAR(128) UNIQUE NOT NULL,
		basket_id BIGINT UNIQUE REFERENCES baskets(id),
		user_username VARCHAR(255) NOT NULL,
		currency CHAR(3) NOT NULL,
		total_incl_tax NUMERIC(12,2) NOT NULL,
		total_excl_tax NUMERIC(12,2) NOT NULL,
		shipping_method VARCHAR(128) NOT NULL,
		shipping_incl_tax NUMERIC(12,2) NOT NULL DEFAULT 0,
		status VARCHAR(100) NOT NULL,
		date_placed TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS order_billing_addresses (
		order_id BIGINT PRIMARY KEY REFERENCES orders(id) ON DELETE CASCADE,
		first_name VARCHAR(255) NOT NULL,
		last_name VARCHAR(255) NOT NULL,
		line1 VARCHAR(255) NOT NULL,
		line2 VARCHAR(255) NOT NULL,
		line4 VARCHAR(255) NOT NULL,
		postcode VARCHAR(64) NOT NULL,
		state VARCHAR(255) NOT NULL,
		country CHAR(2) NOT NULL REFERENCES address_countries(iso_3166_1_a2)
	);`,
	`CREATE TABLE IF NOT EXISTS payment_sources (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		source_type VARCHAR(128) NOT NULL,
		currency CHAR(3) NOT NULL,
		amount_allocated NUMERIC(12,2) NOT NULL,
		amount_debited NUMERIC(12,2) NOT NULL,
		reference VARCHAR(128) NOT NULL,
		label VARCHAR(128) NOT NULL,
		UNIQUE (source_type, reference)
	);`,
	`CREATE TABLE IF NOT EXISTS order_payment_events (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		event_type VARCHAR(128) NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		reference VARCHAR(128) NOT NULL,
		processor_name VARCHAR(32),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
}

var indexQueries = []string{
	"CREATE INDEX IF NOT EXISTS idx_ppr_transaction ON payment_processor_responses(processor_name, transaction_id);",
	"CREATE INDEX IF NOT EXISTS idx_ppr_created ON payment_processor_responses(created);",
	"CREATE INDEX IF NOT EXISTS idx_ppr_basket ON payment_processor_responses(basket_id);",
}

func createTables(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	for _, query := range tableQueries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	// Indexes only speed up reconciliation queries; a failure is not fatal.
	for _, query := range indexQueries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			logger.Warn("creating index failed", "error", err)
		}
	}
	return nil
}
