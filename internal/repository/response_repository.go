package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ecommerce-payments/internal/models"
)

// ResponseRepository stores the audit trail of processor responses. Rows are never
// updated or deleted here.
type ResponseRepository interface {
	Save(ctx context.Context, response *models.ProcessorResponse) error
}

// PostgreSQLResponseRepository is the Postgres implementation of ResponseRepository.
type PostgreSQLResponseRepository struct {
	db *sql.DB
}

// NewPostgreSQLResponseRepository returns a repository over db.
func NewPostgreSQLResponseRepository(db *sql.DB) *PostgreSQLResponseRepository {
	return &PostgreSQLResponseRepository{db: db}
}

// Save inserts response and fills in its ID and creation time.
func (r *PostgreSQLResponseRepository) Save(ctx context.Context, response *models.ProcessorResponse) error {
	query := `
		INSERT INTO payment_processor_responses (processor_name, transaction_id, basket_id, response)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created`

	var basketID sql.NullInt64
	if response.BasketID != nil {
		basketID = sql.NullInt64{Int64: *response.BasketID, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		response.ProcessorName,
		response.TransactionID,
		basketID,
		response.Response,
	).Scan(&response.ID, &response.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving processor response: %w", err)
	}
	return nil
}
