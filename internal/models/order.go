package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Basket statuses.
const (
	BasketOpen      = "Open"
	BasketFrozen    = "Frozen"
	BasketSubmitted = "Submitted"
)

// Order statuses.
const (
	OrderOpen = "Open"
)

// Basket is the set of products a buyer intends to purchase.
type Basket struct {
	ID            int64           `json:"id" db:"id"`
	OwnerUsername string          `json:"owner" db:"owner_username"`
	Currency      string          `json:"currency" db:"currency"`
	TotalInclTax  decimal.Decimal `json:"total_incl_tax" db:"total_incl_tax"`
	Status        string          `json:"status" db:"status"`
	DateSubmitted *time.Time      `json:"date_submitted,omitempty" db:"date_submitted"`
}

// IsFree reports whether nothing has to be paid for the basket.
func (b Basket) IsFree() bool {
	return b.TotalInclTax.IsZero()
}

// Price is an amount in a currency, with and without tax.
type Price struct {
	Currency string          `json:"currency"`
	ExclTax  decimal.Decimal `json:"excl_tax"`
	InclTax  decimal.Decimal `json:"incl_tax"`
}

// Tax returns the tax component of the price.
func (p Price) Tax() decimal.Decimal {
	return p.InclTax.Sub(p.ExclTax)
}

// Country is an ISO 3166-1 country.
type Country struct {
	ISO3166Alpha2 string `json:"iso_3166_1_a2" db:"iso_3166_1_a2"`
	Name          string `json:"name" db:"name"`
}

// BillingAddress is the address the payment instrument is billed to.
// Line4 holds the city.
type BillingAddress struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Line1     string  `json:"line1"`
	Line2     string  `json:"line2"`
	Line4     string  `json:"line4"`
	Postcode  string  `json:"postcode"`
	State     string  `json:"state"`
	Country   Country `json:"country"`
}

// Order is a placed order with its payment records.
type Order struct {
	ID              int64           `json:"id" db:"id"`
	Number          string          `json:"number" db:"number"`
	BasketID        int64           `json:"basket_id" db:"basket_id"`
	User            string          `json:"user" db:"user_username"`
	Currency        string          `json:"currency" db:"currency"`
	TotalInclTax    decimal.Decimal `json:"total_incl_tax" db:"total_incl_tax"`
	TotalExclTax    decimal.Decimal `json:"total_excl_tax" db:"total_excl_tax"`
	ShippingMethod  string          `json:"shipping_method" db:"shipping_method"`
	ShippingInclTax decimal.Decimal `json:"shipping_incl_tax" db:"shipping_incl_tax"`
	Status          string          `json:"status" db:"status"`
	BillingAddress  *BillingAddress `json:"billing_address,omitempty"`
	Sources         []Source        `json:"sources"`
	PaymentEvents   []PaymentEvent  `json:"payment_events"`
	DatePlaced      time.Time       `json:"date_placed" db:"date_placed"`
}
