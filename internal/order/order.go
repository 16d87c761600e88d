// Package order places orders for paid or free baskets.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"ecommerce-payments/internal/events"
	"ecommerce-payments/internal/models"
	"ecommerce-payments/internal/repository"
)

// ErrUnableToPlaceOrder is returned when an order cannot be created for a basket.
var ErrUnableToPlaceOrder = errors.New("unable to place order")

const orderNumberOffset = 100000

// NumberGenerator derives order numbers from basket ids.
type NumberGenerator struct{}

// OrderNumber offsets basketID by 100000.
func (NumberGenerator) OrderNumber(basketID int64) string {
	return strconv.FormatInt(orderNumberOffset+basketID, 10)
}

// ShippingMethod prices delivery of a basket.
type ShippingMethod interface {
	Code() string
	Calculate(basket models.Basket) models.Price
}

// NoShippingRequired is used for baskets of intangible products.
type NoShippingRequired struct{}

// Code identifies the method on orders.
func (NoShippingRequired) Code() string { return "no-shipping-required" }

// Calculate is always zero in the basket currency.
func (NoShippingRequired) Calculate(basket models.Basket) models.Price {
	return models.Price{Currency: basket.Currency, ExclTax: decimal.Zero, InclTax: decimal.Zero}
}

// PlacementRequest carries everything needed to turn a basket into an order.
// Sources and Events are staged by the payment processor and persisted with the order.
type PlacementRequest struct {
	OrderNumber    string
	User           string
	Basket         models.Basket
	ShippingMethod ShippingMethod
	ShippingCharge models.Price
	BillingAddress *models.BillingAddress
	Total          models.Price
	Sources        []models.Source
	Events         []models.PaymentEvent
}

// Placer creates orders.
type Placer interface {
	PlaceOrder(ctx context.Context, req PlacementRequest) (*models.Order, error)
}

// Placed is the payload of the orders.placed event.
type Placed struct {
	OrderNumber string          `json:"order_number"`
	BasketID    int64           `json:"basket_id"`
	User        string          `json:"user"`
	Currency    string          `json:"currency"`
	Total       decimal.Decimal `json:"total"`
}

// Service places orders through an OrderRepository and announces them.
type Service struct {
	orders    repository.OrderRepository
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService returns a Service that stores orders in orders and announces them on publisher.
func NewService(orders repository.OrderRepository, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{orders: orders, publisher: publisher, logger: logger}
}

// PlaceOrder persists the order, its billing address, sources and events, and submits
// the basket, all or nothing. A basket that was already submitted, or an order or
// source that already exists, yields ErrUnableToPlaceOrder.
func (s *Service) PlaceOrder(ctx context.Context, req PlacementRequest) (*models.Order, error) {
	if req.ShippingMethod == nil {
		req.ShippingMethod = NoShippingRequired{}
		req.ShippingCharge = req.ShippingMethod.Calculate(req.Basket)
	}

	o := &models.Order{
		Number:          req.OrderNumber,
		BasketID:        req.Basket.ID,
		User:            req.User,
		Currency:        req.Total.Currency,
		TotalInclTax:    req.Total.InclTax.Add(req.ShippingCharge.InclTax),
		TotalExclTax:    req.Total.ExclTax.Add(req.ShippingCharge.ExclTax),
		ShippingMethod:  req.ShippingMethod.Code(),
		ShippingInclTax: req.ShippingCharge.InclTax,
		Status:          models.OrderOpen,
		BillingAddress:  req.BillingAddress,
		Sources:         req.Sources,
		PaymentEvents:   req.Events,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("%w: basket %d: %w", ErrUnableToPlaceOrder, req.Basket.ID, err)
	}

	s.logger.Info("order placed", "order_number", o.Number, "basket_id", o.BasketID, "total", o.TotalInclTax.String())

	err := s.publisher.Publish(ctx, events.Event{
		Subject: events.SubjectOrderPlaced,
		Data: Placed{
			OrderNumber: o.Number,
			BasketID:    o.BasketID,
			User:        o.User,
			Currency:    o.Currency,
			Total:       o.TotalInclTax,
		},
	})
	if err != nil {
		s.logger.Error("publishing order placed event failed", "order_number", o.Number, "error", err)
	}
	return o, nil
}
