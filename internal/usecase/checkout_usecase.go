package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"ecommerce-payments/internal/models"
	"ecommerce-payments/internal/order"
	"ecommerce-payments/internal/payment"
	"ecommerce-payments/internal/repository"
)

// CheckoutRequest asks for a basket to be prepared for payment. An empty
// PaymentProcessor selects the default processor.
type CheckoutRequest struct {
	BasketID         int64  `json:"basket_id" binding:"required"`
	PaymentProcessor string `json:"payment_processor"`
	ReceiptPageURL   string `json:"receipt_page_url"`
	CancelPageURL    string `json:"cancel_page_url"`
}

// PaymentData tells the client where to send the buyer and what to post.
type PaymentData struct {
	PaymentProcessorName string                        `json:"payment_processor_name"`
	PaymentFormData      payment.TransactionParameters `json:"payment_form_data"`
	PaymentPageURL       string                        `json:"payment_page_url"`
}

// PlacedOrder identifies an order placed during checkout.
type PlacedOrder struct {
	Number string `json:"number"`
}

// CheckoutResponse carries either the placed order (free baskets) or payment data.
type CheckoutResponse struct {
	BasketID    int64        `json:"id"`
	Order       *PlacedOrder `json:"order"`
	PaymentData *PaymentData `json:"payment_data"`
}

// CheckoutUseCase freezes baskets and hands them to a payment processor, or places the
// order straight away when nothing is owed.
type CheckoutUseCase struct {
	baskets    repository.BasketRepository
	processors *payment.Registry
	placer     order.Placer
	numbers    order.NumberGenerator
	logger     *slog.Logger
}

// NewCheckoutUseCase returns a CheckoutUseCase over baskets and the processor registry.
func NewCheckoutUseCase(baskets repository.BasketRepository, processors *payment.Registry, placer order.Placer, logger *slog.Logger) *CheckoutUseCase {
	return &CheckoutUseCase{
		baskets:    baskets,
		processors: processors,
		placer:     placer,
		logger:     logger,
	}
}

// Checkout returns payment.ErrUnknownProcessor for an unknown processor name,
// repository.ErrNotFound for an unknown basket and repository.ErrConflict for a basket
// that was already submitted.
func (uc *CheckoutUseCase) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	processor := uc.processors.Default()
	if req.PaymentProcessor != "" {
		p, err := uc.processors.Get(req.PaymentProcessor)
		if err != nil {
			return nil, err
		}
		processor = p
	}

	basket, err := uc.baskets.FindByID(ctx, req.BasketID)
	if err != nil {
		return nil, err
	}

	if err := uc.baskets.Freeze(ctx, basket.ID); err != nil {
		return nil, err
	}
	basket.Status = models.BasketFrozen
	uc.logger.Info("froze basket", "basket_id", basket.ID)

	resp := &CheckoutResponse{BasketID: basket.ID}

	if basket.IsFree() {
		placed, err := uc.placeFreeOrder(ctx, basket)
		if err != nil {
			return nil, err
		}
		resp.Order = &PlacedOrder{Number: placed.Number}
		return resp, nil
	}

	params, err := processor.TransactionParameters(*basket, payment.PageOverrides{
		ReceiptPageURL: req.ReceiptPageURL,
		CancelPageURL:  req.CancelPageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("building %s transaction parameters for basket %d: %w", processor.Name(), basket.ID, err)
	}

	resp.PaymentData = &PaymentData{
		PaymentProcessorName: processor.Name(),
		PaymentFormData:      params,
		PaymentPageURL:       processor.PaymentPageURL(),
	}
	return resp, nil
}

func (uc *CheckoutUseCase) placeFreeOrder(ctx context.Context, basket *models.Basket) (*models.Order, error) {
	number := uc.numbers.OrderNumber(basket.ID)
	uc.logger.Info("preparing to place order for free basket", "order_number", number, "basket_id", basket.ID)

	shipping := order.NoShippingRequired{}
	return uc.placer.PlaceOrder(ctx, order.PlacementRequest{
		OrderNumber:    number,
		User:           basket.OwnerUsername,
		Basket:         *basket,
		ShippingMethod: shipping,
		ShippingCharge: shipping.Calculate(*basket),
		Total: models.Price{
			Currency: basket.Currency,
			ExclTax:  basket.TotalInclTax,
			InclTax:  basket.TotalInclTax,
		},
	})
}
