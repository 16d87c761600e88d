package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ecommerce-payments/internal/models"
)

// CountryRepository looks up countries by ISO 3166-1 alpha-2 code.
type CountryRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Country, error)
}

// PostgreSQLCountryRepository is the Postgres implementation of CountryRepository.
type PostgreSQLCountryRepository struct {
	db *sql.DB
}

// NewPostgreSQLCountryRepository returns a repository over db.
func NewPostgreSQLCountryRepository(db *sql.DB) *PostgreSQLCountryRepository {
	return &PostgreSQLCountryRepository{db: db}
}

// FindByCode matches code case-insensitively and returns ErrNotFound for an unknown code.
func (r *PostgreSQLCountryRepository) FindByCode(ctx context.Context, code string) (*models.Country, error) {
	query := `SELECT iso_3166_1_a2, name FROM address_countries WHERE iso_3166_1_a2 = $1`

	country := &models.Country{}
	err := r.db.QueryRowContext(ctx, query, strings.ToUpper(code)).Scan(&country.ISO3166Alpha2, &country.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("country %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding country %q: %w", code, err)
	}
	return country, nil
}
