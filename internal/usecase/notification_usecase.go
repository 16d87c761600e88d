package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"ecommerce-payments/internal/events"
	"ecommerce-payments/internal/models"
	"ecommerce-payments/internal/order"
	"ecommerce-payments/internal/payment"
	"ecommerce-payments/internal/repository"
)

// Status is the terminal state of one notification.
type Status string

const (
	StatusInvalidSignature     Status = "invalid_signature"
	StatusRecordFailed         Status = "record_failed"
	StatusBasketNotFound       Status = "basket_not_found"
	StatusPaymentFailed        Status = "payment_failed"
	StatusDuplicate            Status = "duplicate"
	StatusOrderPlacementFailed Status = "order_placement_failed"
	StatusOrderPlaced          Status = "order_placed"
)

// Result describes how a notification was handled. It is never surfaced to the processor.
type Result struct {
	Status        Status
	BasketID      int64
	TransactionID string
	ResponseID    int64
	OrderNumber   string
	Err           error
}

// NotificationClaimer guards against placing two orders for one transaction.
type NotificationClaimer interface {
	Claim(ctx context.Context, processor, transactionID string) (bool, error)
	Release(ctx context.Context, processor, transactionID string) error
}

// PlacementFailure is the payload published when a paid basket could not become an order.
type PlacementFailure struct {
	Processor     string `json:"processor"`
	BasketID      int64  `json:"basket_id"`
	TransactionID string `json:"transaction_id"`
	ResponseID    int64  `json:"response_id"`
	Error         string `json:"error"`
}

// NotificationUseCase handles the notifications a processor posts after a buyer leaves
// its hosted payment page.
type NotificationUseCase struct {
	baskets   repository.BasketRepository
	responses repository.ResponseRepository
	countries repository.CountryRepository
	placer    order.Placer
	claims    NotificationClaimer
	publisher events.Publisher
	numbers   order.NumberGenerator
	logger    *slog.Logger
}

// NewNotificationUseCase wires the stores, order placer, claim guard and publisher.
func NewNotificationUseCase(
	baskets repository.BasketRepository,
	responses repository.ResponseRepository,
	countries repository.CountryRepository,
	placer order.Placer,
	claims NotificationClaimer,
	publisher events.Publisher,
	logger *slog.Logger,
) *NotificationUseCase {
	return &NotificationUseCase{
		baskets:   baskets,
		responses: responses,
		countries: countries,
		placer:    placer,
		claims:    claims,
		publisher: publisher,
		logger:    logger,
	}
}

// Handle validates, records and classifies n, then places an order for an accepted
// payment. Every fault is logged and reported in the Result; none is returned.
func (uc *NotificationUseCase) Handle(ctx context.Context, processor payment.Processor, n payment.Notification) Result {
	log := uc.logger.With("processor", processor.Name())

	// Unauthenticated payloads are never persisted.
	if !processor.IsSignatureValid(n) {
		log.Info("received notification with invalid signature", "notification", n)
		return Result{Status: StatusInvalidSignature, Err: payment.ErrInvalidSignature}
	}

	result := Result{TransactionID: processor.TransactionID(n)}
	log = log.With("transaction_id", result.TransactionID)

	basket := uc.resolveBasket(ctx, log, n[payment.FieldReqReferenceNumber])
	if basket != nil {
		result.BasketID = basket.ID
		log = log.With("basket_id", basket.ID)
	}

	responseID, err := uc.record(ctx, processor.Name(), result.TransactionID, n, basket)
	if err != nil {
		log.Error("recording processor response failed", "error", err)
		result.Status, result.Err = StatusRecordFailed, err
		return result
	}
	result.ResponseID = responseID
	log = log.With("response_id", responseID)

	if basket == nil {
		result.Status = StatusBasketNotFound
		return result
	}

	staged, err := processor.HandleProcessorResponse(n)
	if err != nil {
		log.Warn("payment failed; the payment response was recorded", "error", err)
		result.Status, result.Err = StatusPaymentFailed, err
		return result
	}

	total, err := orderTotal(n)
	if err != nil {
		log.Warn("payment failed; the payment response was recorded", "error", err)
		result.Status, result.Err = StatusPaymentFailed, err
		return result
	}

	claimed, err := uc.claims.Claim(ctx, processor.Name(), result.TransactionID)
	if err != nil {
		log.Warn("claiming notification failed; continuing", "error", err)
	}
	if !claimed {
		log.Info("duplicate notification; order already handled")
		result.Status = StatusDuplicate
		return result
	}

	placed, err := uc.placeOrder(ctx, basket, n, total, staged)
	if errors.Is(err, repository.ErrDuplicateSource) {
		// The claim expired but the order store already holds this payment.
		log.Info("duplicate notification; payment already on an order", "error", err)
		result.Status, result.Err = StatusDuplicate, err
		return result
	}
	if err != nil {
		uc.placementFailed(ctx, log, processor.Name(), &result, err)
		return result
	}

	result.Status = StatusOrderPlaced
	result.OrderNumber = placed.Number
	log.Info("payment received and order placed", "order_number", placed.Number)
	return result
}

func (uc *NotificationUseCase) resolveBasket(ctx context.Context, log *slog.Logger, reference string) *models.Basket {
	id, err := strconv.ParseInt(reference, 10, 64)
	if err != nil {
		log.Error("received payment for non-existent basket", "reference", reference, "error", err)
		return nil
	}

	basket, err := uc.baskets.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Error("received payment for non-existent basket", "reference", reference)
		} else {
			log.Error("loading basket failed", "reference", reference, "error", err)
		}
		return nil
	}
	return basket
}

func (uc *NotificationUseCase) record(ctx context.Context, processorName, transactionID string, n payment.Notification, basket *models.Basket) (int64, error) {
	resp := &models.ProcessorResponse{
		ProcessorName: processorName,
		TransactionID: transactionID,
		Response:      encodeNotification(n),
	}
	if basket != nil {
		resp.BasketID = &basket.ID
	}

	if err := uc.responses.Save(ctx, resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (uc *NotificationUseCase) placeOrder(ctx context.Context, basket *models.Basket, n payment.Notification, total models.Price, staged payment.Staged) (*models.Order, error) {
	address, err := uc.billingAddress(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", order.ErrUnableToPlaceOrder, err)
	}

	shipping := order.NoShippingRequired{}
	return uc.placer.PlaceOrder(ctx, order.PlacementRequest{
		OrderNumber:    uc.numbers.OrderNumber(basket.ID),
		User:           basket.OwnerUsername,
		Basket:         *basket,
		ShippingMethod: shipping,
		ShippingCharge: shipping.Calculate(*basket),
		BillingAddress: address,
		Total:          total,
		Sources:        []models.Source{staged.Source},
		Events:         []models.PaymentEvent{staged.Event},
	})
}

func (uc *NotificationUseCase) billingAddress(ctx context.Context, n payment.Notification) (*models.BillingAddress, error) {
	country, err := uc.countries.FindByCode(ctx, n[payment.FieldBillToCountry])
	if err != nil {
		return nil, fmt.Errorf("billing country: %w", err)
	}

	return &models.BillingAddress{
		FirstName: n[payment.FieldBillToForename],
		LastName:  n[payment.FieldBillToSurname],
		Line1:     n[payment.FieldBillToLine1],
		Line2:     n[payment.FieldBillToLine2],
		Line4:     n[payment.FieldBillToCity],
		Postcode:  n[payment.FieldBillToPostalCode],
		State:     n[payment.FieldBillToState],
		Country:   *country,
	}, nil
}

func (uc *NotificationUseCase) placementFailed(ctx context.Context, log *slog.Logger, processorName string, result *Result, err error) {
	log.Error("payment was received, but an order was not created", "error", err)
	result.Status, result.Err = StatusOrderPlacementFailed, err

	if relErr := uc.claims.Release(ctx, processorName, result.TransactionID); relErr != nil {
		log.Warn("releasing notification claim failed", "error", relErr)
	}

	pubErr := uc.publisher.Publish(ctx, events.Event{
		Subject: events.SubjectOrderPlacementFailed,
		Data: PlacementFailure{
			Processor:     processorName,
			BasketID:      result.BasketID,
			TransactionID: result.TransactionID,
			ResponseID:    result.ResponseID,
			Error:         err.Error(),
		},
	})
	if pubErr != nil {
		log.Error("publishing order placement failure failed", "error", pubErr)
	}
}

// encodeNotification form-encodes n with sorted keys. Percent-encoding keeps NUL bytes and
// invalid UTF-8 intact and storable in a text column.
func encodeNotification(n payment.Notification) string {
	values := make(url.Values, len(n))
	for k, v := range n {
		values.Set(k, v)
	}
	return values.Encode()
}

// orderTotal reads the requested total and tax. A missing tax amount counts as zero.
func orderTotal(n payment.Notification) (models.Price, error) {
	total, err := decimal.NewFromString(n[payment.FieldReqAmount])
	if err != nil {
		return models.Price{}, fmt.Errorf("%w: %s %q", payment.ErrInvalidAmount, payment.FieldReqAmount, n[payment.FieldReqAmount])
	}

	tax := decimal.Zero
	if raw, ok := n[payment.FieldReqTaxAmount]; ok && raw != "" {
		tax, err = decimal.NewFromString(raw)
		if err != nil {
			return models.Price{}, fmt.Errorf("%w: %s %q", payment.ErrInvalidAmount, payment.FieldReqTaxAmount, raw)
		}
	}

	return models.Price{
		Currency: n[payment.FieldReqCurrency],
		ExclTax:  total.Sub(tax),
		InclTax:  total,
	}, nil
}
