package order

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommerce-payments/internal/events"
	"ecommerce-payments/internal/logger"
	"ecommerce-payments/internal/models"
	"ecommerce-payments/internal/repository"
)

type mockOrderRepository struct {
	created []*models.Order
	err     error
}

func (m *mockOrderRepository) Create(_ context.Context, o *models.Order) error {
	if m.err != nil {
		return m.err
	}
	o.ID = int64(len(m.created) + 1)
	m.created = append(m.created, o)
	return nil
}

type mockPublisher struct {
	events []events.Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, e events.Event) error {
	m.events = append(m.events, e)
	return m.err
}

func testRequest() PlacementRequest {
	total := decimal.RequireFromString("9.99")
	basket := models.Basket{ID: 42, OwnerUsername: "gus", Currency: "USD", TotalInclTax: total}
	return PlacementRequest{
		OrderNumber:    NumberGenerator{}.OrderNumber(basket.ID),
		User:           basket.OwnerUsername,
		Basket:         basket,
		ShippingMethod: NoShippingRequired{},
		ShippingCharge: NoShippingRequired{}.Calculate(basket),
		Total:          models.Price{Currency: "USD", ExclTax: total, InclTax: total},
		Sources:        []models.Source{{SourceType: "cybersource", Reference: "123456", AmountAllocated: total}},
		Events:         []models.PaymentEvent{{EventType: models.EventTypePaid, Reference: "123456", Amount: total}},
	}
}

func TestNumberGenerator(t *testing.T) {
	assert.Equal(t, "100042", NumberGenerator{}.OrderNumber(42))
	assert.Equal(t, "100000", NumberGenerator{}.OrderNumber(0))
}

func TestNoShippingRequired(t *testing.T) {
	m := NoShippingRequired{}
	price := m.Calculate(models.Basket{Currency: "EUR"})

	assert.Equal(t, "no-shipping-required", m.Code())
	assert.Equal(t, "EUR", price.Currency)
	assert.True(t, price.InclTax.IsZero())
	assert.True(t, price.ExclTax.IsZero())
}

func TestService_PlaceOrder(t *testing.T) {
	repo := &mockOrderRepository{}
	pub := &mockPublisher{}
	svc := NewService(repo, pub, logger.Discard())

	o, err := svc.PlaceOrder(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, "100042", o.Number)
	assert.Equal(t, int64(42), o.BasketID)
	assert.Equal(t, "gus", o.User)
	assert.Equal(t, "no-shipping-required", o.ShippingMethod)
	assert.True(t, decimal.RequireFromString("9.99").Equal(o.TotalInclTax))
	assert.Equal(t, models.OrderOpen, o.Status)
	assert.Len(t, o.Sources, 1)
	assert.Len(t, o.PaymentEvents, 1)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.SubjectOrderPlaced, pub.events[0].Subject)
	placed, ok := pub.events[0].Data.(Placed)
	require.True(t, ok)
	assert.Equal(t, "100042", placed.OrderNumber)
}

func TestService_PlaceOrderDefaultsShipping(t *testing.T) {
	svc := NewService(&mockOrderRepository{}, &mockPublisher{}, logger.Discard())
	req := testRequest()
	req.ShippingMethod = nil

	o, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "no-shipping-required", o.ShippingMethod)
}

func TestService_PlaceOrderConflict(t *testing.T) {
	repo := &mockOrderRepository{err: repository.ErrConflict}
	pub := &mockPublisher{}
	svc := NewService(repo, pub, logger.Discard())

	_, err := svc.PlaceOrder(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrUnableToPlaceOrder)
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Empty(t, pub.events)
}

func TestService_PlaceOrderStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewService(&mockOrderRepository{err: boom}, &mockPublisher{}, logger.Discard())

	_, err := svc.PlaceOrder(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrUnableToPlaceOrder)
	assert.ErrorIs(t, err, boom)
}

func TestService_PublishFailureDoesNotFailPlacement(t *testing.T) {
	pub := &mockPublisher{err: errors.New("nats down")}
	svc := NewService(&mockOrderRepository{}, pub, logger.Discard())

	o, err := svc.PlaceOrder(context.Background(), testRequest())
	require.NoError(t, err)
	assert.NotNil(t, o)
	assert.Len(t, pub.events, 1)
}
