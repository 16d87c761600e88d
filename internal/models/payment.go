package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventTypePaid is the payment event type recorded when funds are captured.
const EventTypePaid = "paid"

// ProcessorResponse is the audit record of a notification received from a processor.
// Response holds the notification form-encoded, so every byte of every field survives.
type ProcessorResponse struct {
	ID            int64           `json:"id" db:"id"`
	ProcessorName string          `json:"processor_name" db:"processor_name"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	BasketID      *int64          `json:"basket_id,omitempty" db:"basket_id"`
	Response      string          `json:"response" db:"response"`
	CreatedAt     time.Time       `json:"created_at" db:"created"`
}

// Source tracks the funds contributed by one payment instrument towards an order.
type Source struct {
	ID              int64           `json:"id" db:"id"`
	OrderID         int64           `json:"order_id" db:"order_id"`
	SourceType      string          `json:"source_type" db:"source_type"`
	Currency        string          `json:"currency" db:"currency"`
	AmountAllocated decimal.Decimal `json:"amount_allocated" db:"amount_allocated"`
	AmountDebited   decimal.Decimal `json:"amount_debited" db:"amount_debited"`
	Reference       string          `json:"reference" db:"reference"`
	Label           string          `json:"label" db:"label"`
}

// PaymentEvent is a milestone in the payment lifecycle of an order.
type PaymentEvent struct {
	ID            int64           `json:"id" db:"id"`
	OrderID       int64           `json:"order_id" db:"order_id"`
	EventType     string          `json:"event_type" db:"event_type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Reference     string          `json:"reference" db:"reference"`
	ProcessorName string          `json:"processor_name" db:"processor_name"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
