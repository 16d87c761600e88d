package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommerce-payments/internal/models"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestResponseRepository_Save(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLResponseRepository(db)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	basketID := int64(42)
	payload := "decision=ACCEPT&req_bill_to_forename=Gus%00"

	mock.ExpectQuery(`INSERT INTO payment_processor_responses`).
		WithArgs("cybersource", "123456", int64(42), payload).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created"}).AddRow(7, created))

	resp := &models.ProcessorResponse{
		ProcessorName: "cybersource",
		TransactionID: "123456",
		BasketID:      &basketID,
		Response:      payload,
	}
	require.NoError(t, repo.Save(context.Background(), resp))
	assert.Equal(t, int64(7), resp.ID)
	assert.Equal(t, created, resp.CreatedAt)
}

func TestResponseRepository_SaveWithoutBasket(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLResponseRepository(db)

	mock.ExpectQuery(`INSERT INTO payment_processor_responses`).
		WithArgs("cybersource", "123456", nil, "decision=ACCEPT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created"}).AddRow(8, time.Now()))

	resp := &models.ProcessorResponse{ProcessorName: "cybersource", TransactionID: "123456", Response: "decision=ACCEPT"}
	require.NoError(t, repo.Save(context.Background(), resp))
	assert.Equal(t, int64(8), resp.ID)
}

func TestResponseRepository_SaveError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLResponseRepository(db)
	boom := errors.New("connection reset")

	mock.ExpectQuery(`INSERT INTO payment_processor_responses`).WillReturnError(boom)

	err := repo.Save(context.Background(), &models.ProcessorResponse{Response: "decision=ACCEPT"})
	assert.ErrorIs(t, err, boom)
}

func TestBasketRepository_FindByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLBasketRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM baskets WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_username", "currency", "total_incl_tax", "status", "date_submitted"}).
			AddRow(42, "gus", "USD", []byte("9.99"), models.BasketFrozen, nil))

	basket, err := repo.FindByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), basket.ID)
	assert.Equal(t, "gus", basket.OwnerUsername)
	assert.True(t, decimal.RequireFromString("9.99").Equal(basket.TotalInclTax))
	assert.Nil(t, basket.DateSubmitted)
}

func TestBasketRepository_FindByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLBasketRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM baskets`).WithArgs(int64(1986)).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 1986)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBasketRepository_Freeze(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLBasketRepository(db)

	mock.ExpectExec(`UPDATE baskets SET status`).
		WithArgs(int64(42), models.BasketFrozen, models.BasketSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE baskets SET status`).
		WithArgs(int64(43), models.BasketFrozen, models.BasketSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Freeze(context.Background(), 42))
	assert.ErrorIs(t, repo.Freeze(context.Background(), 43), ErrConflict)
}

func TestCountryRepository_FindByCode(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLCountryRepository(db)

	mock.ExpectQuery(`SELECT iso_3166_1_a2, name FROM address_countries`).
		WithArgs("US").
		WillReturnRows(sqlmock.NewRows([]string{"iso_3166_1_a2", "name"}).AddRow("US", "United States"))
	mock.ExpectQuery(`SELECT iso_3166_1_a2, name FROM address_countries`).
		WithArgs("ZZ").
		WillReturnError(sql.ErrNoRows)

	country, err := repo.FindByCode(context.Background(), "us")
	require.NoError(t, err)
	assert.Equal(t, "United States", country.Name)

	_, err = repo.FindByCode(context.Background(), "ZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testOrder() *models.Order {
	total := decimal.RequireFromString("9.99")
	return &models.Order{
		Number:          "100042",
		BasketID:        42,
		User:            "gus",
		Currency:        "USD",
		TotalInclTax:    total,
		TotalExclTax:    total,
		ShippingMethod:  "no-shipping-required",
		ShippingInclTax: decimal.Zero,
		Status:          models.OrderOpen,
		BillingAddress: &models.BillingAddress{
			FirstName: "Gustavo",
			LastName:  "Fring",
			Line1:     "308 Negra Arroyo Lane",
			Line4:     "Albuquerque",
			Postcode:  "87104",
			State:     "NM",
			Country:   models.Country{ISO3166Alpha2: "US", Name: "United States"},
		},
		Sources: []models.Source{{
			SourceType:      "cybersource",
			Currency:        "USD",
			AmountAllocated: total,
			AmountDebited:   total,
			Reference:       "123456",
			Label:           "xxxxxxxxxxxx1111",
		}},
		PaymentEvents: []models.PaymentEvent{{
			EventType:     models.EventTypePaid,
			Amount:        total,
			Reference:     "123456",
			ProcessorName: "cybersource",
		}},
	}
}

func TestOrderRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLOrderRepository(db)
	placed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return placed }

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE baskets SET status`).
		WithArgs(int64(42), models.BasketSubmitted, placed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec(`INSERT INTO order_billing_addresses`).
		WithArgs(int64(11), "Gustavo", "Fring", "308 Negra Arroyo Lane", "", "Albuquerque", "87104", "NM", "US").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO payment_sources`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))
	mock.ExpectQuery(`INSERT INTO order_payment_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31))
	mock.ExpectCommit()

	order := testOrder()
	require.NoError(t, repo.Create(context.Background(), order))

	assert.Equal(t, int64(11), order.ID)
	assert.Equal(t, placed, order.DatePlaced)
	assert.Equal(t, int64(21), order.Sources[0].ID)
	assert.Equal(t, int64(11), order.Sources[0].OrderID)
	assert.Equal(t, int64(31), order.PaymentEvents[0].ID)
	assert.Equal(t, int64(11), order.PaymentEvents[0].OrderID)
}

func TestOrderRepository_CreateBasketAlreadySubmitted(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE baskets SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM payment_sources`).
		WithArgs("cybersource", "123456").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), testOrder())
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrDuplicateSource)
}

func TestOrderRepository_CreateAlreadyPaid(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE baskets SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM payment_sources`).
		WithArgs("cybersource", "123456").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), testOrder())
	assert.ErrorIs(t, err, ErrDuplicateSource)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOrderRepository_CreateSourceLookupFails(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE baskets SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM payment_sources`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), testOrder())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestOrderRepository_CreateDuplicateSource(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE baskets SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO orders`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec(`INSERT INTO order_billing_addresses`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO payment_sources`).WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), testOrder())
	assert.ErrorIs(t, err, ErrDuplicateSource)
}

func TestOrderRepository_CreateDuplicateOrder(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE baskets SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO orders`).WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), testOrder())
	assert.ErrorIs(t, err, ErrConflict)
}
