package payment

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ecommerce-payments/internal/config"
	"ecommerce-payments/internal/models"
	"ecommerce-payments/internal/signature"
)

// CybersourceName identifies the CyberSource Secure Acceptance integration.
const CybersourceName = "cybersource"

// Secure Acceptance request fields.
const (
	FieldAccessKey          = "access_key"
	FieldProfileID          = "profile_id"
	FieldTransactionUUID    = "transaction_uuid"
	FieldSignedFieldNames   = signature.FieldSignedNames
	FieldUnsignedFieldNames = "unsigned_field_names"
	FieldSignedDateTime     = "signed_date_time"
	FieldLocale             = "locale"
	FieldTransactionType    = "transaction_type"
	FieldReferenceNumber    = "reference_number"
	FieldAmount             = "amount"
	FieldCurrency           = "currency"
	FieldConsumerID         = "consumer_id"
	FieldCancelPage         = "override_custom_cancel_page"
	FieldReceiptPage        = "override_custom_receipt_page"
	FieldSignature          = signature.FieldSignature
)

// Secure Acceptance notification fields.
const (
	FieldDecision           = "decision"
	FieldTransactionID      = "transaction_id"
	FieldReqAmount          = "req_amount"
	FieldAuthAmount         = "auth_amount"
	FieldReqCurrency        = "req_currency"
	FieldReqTaxAmount       = "req_tax_amount"
	FieldReqCardNumber      = "req_card_number"
	FieldReqReferenceNumber = "req_reference_number"
	FieldBillToForename     = "req_bill_to_forename"
	FieldBillToSurname      = "req_bill_to_surname"
	FieldBillToLine1        = "req_bill_to_address_line1"
	FieldBillToLine2        = "req_bill_to_address_line2"
	FieldBillToCity         = "req_bill_to_address_city"
	FieldBillToPostalCode   = "req_bill_to_address_postal_code"
	FieldBillToState        = "req_bill_to_address_state"
	FieldBillToCountry      = "req_bill_to_address_country"
)

const (
	transactionTypeSale = "sale"
	signedDateTimeFmt   = "2006-01-02T15:04:05Z"
)

// Decisions reported by Secure Acceptance, lower-cased.
const (
	decisionAccept  = "accept"
	decisionCancel  = "cancel"
	decisionDecline = "decline"
	decisionError   = "error"
)

// Cybersource integrates CyberSource Secure Acceptance Web/Mobile.
type Cybersource struct {
	profileID      string
	accessKey      string
	secretKey      string
	paymentPageURL string
	receiptPageURL string
	cancelPageURL  string
	locale         string

	now     func() time.Time
	newUUID func() (uuid.UUID, error)
}

// NewCybersource builds the processor from its configuration.
func NewCybersource(cfg config.CybersourceConfig, locale string) (*Cybersource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Cybersource{
		profileID:      cfg.ProfileID,
		accessKey:      cfg.AccessKey,
		secretKey:      cfg.SecretKey,
		paymentPageURL: cfg.PaymentPageURL,
		receiptPageURL: cfg.ReceiptPageURL,
		cancelPageURL:  cfg.CancelPageURL,
		locale:         locale,
		now:            time.Now,
		newUUID:        uuid.NewRandom,
	}, nil
}

// Name returns CybersourceName.
func (c *Cybersource) Name() string { return CybersourceName }

// PaymentPageURL is where the buyer is sent with the transaction parameters.
func (c *Cybersource) PaymentPageURL() string { return c.paymentPageURL }

// TransactionParameters signs every field it emits, signed_field_names included.
func (c *Cybersource) TransactionParameters(basket models.Basket, overrides PageOverrides) (TransactionParameters, error) {
	id, err := c.newUUID()
	if err != nil {
		return nil, fmt.Errorf("generating transaction uuid: %w", err)
	}

	params := TransactionParameters{
		FieldAccessKey:          c.accessKey,
		FieldProfileID:          c.profileID,
		FieldTransactionUUID:    strings.ReplaceAll(id.String(), "-", ""),
		FieldSignedFieldNames:   "",
		FieldUnsignedFieldNames: "",
		FieldSignedDateTime:     c.now().UTC().Format(signedDateTimeFmt),
		FieldLocale:             c.locale,
		FieldTransactionType:    transactionTypeSale,
		FieldReferenceNumber:    strconv.FormatInt(basket.ID, 10),
		FieldAmount:             basket.TotalInclTax.StringFixed(2),
		FieldCurrency:           basket.Currency,
		FieldConsumerID:         basket.OwnerUsername,
	}

	cancelPage := overrides.CancelPageURL
	if cancelPage == "" {
		cancelPage = c.cancelPageURL
	}
	if cancelPage != "" {
		params[FieldCancelPage] = cancelPage
	}

	receiptPage := overrides.ReceiptPageURL
	if receiptPage == "" && c.receiptPageURL != "" {
		receiptPage = fmt.Sprintf("%s?basket_id=%d", c.receiptPageURL, basket.ID)
	}
	if receiptPage != "" {
		params[FieldReceiptPage] = receiptPage
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	params[FieldSignedFieldNames] = strings.Join(names, ",")
	params[FieldSignature] = signature.SignFields(params, c.secretKey)

	return params, nil
}

// IsSignatureValid verifies n against the profile secret key.
func (c *Cybersource) IsSignatureValid(n Notification) bool {
	return signature.Verify(n, c.secretKey)
}

// TransactionID returns the processor transaction id carried by n, empty when absent.
func (c *Cybersource) TransactionID(n Notification) string {
	return n[FieldTransactionID]
}

// HandleProcessorResponse raises a payment error for anything but a fully authorized
// acceptance. Callers own logging of the returned error.
func (c *Cybersource) HandleProcessorResponse(n Notification) (Staged, error) {
	if !c.IsSignatureValid(n) {
		return Staged{}, ErrInvalidSignature
	}

	switch decision := strings.ToLower(n[FieldDecision]); decision {
	case decisionAccept:
	case decisionCancel:
		return Staged{}, ErrUserCancelled
	case decisionDecline:
		return Staged{}, ErrTransactionDeclined
	case decisionError:
		return Staged{}, ErrGatewayError
	default:
		return Staged{}, &UnrecognizedDecisionError{Decision: n[FieldDecision]}
	}

	requested, err := decimal.NewFromString(n[FieldReqAmount])
	if err != nil {
		return Staged{}, fmt.Errorf("%w: %s %q", ErrInvalidAmount, FieldReqAmount, n[FieldReqAmount])
	}
	authorized, err := decimal.NewFromString(n[FieldAuthAmount])
	if err != nil {
		return Staged{}, fmt.Errorf("%w: %s %q", ErrInvalidAmount, FieldAuthAmount, n[FieldAuthAmount])
	}
	if !authorized.Equal(requested) {
		return Staged{}, &PartialAuthorizationError{Requested: requested, Authorized: authorized}
	}

	transactionID := n[FieldTransactionID]
	return Staged{
		Source: models.Source{
			SourceType:      c.Name(),
			Currency:        n[FieldReqCurrency],
			AmountAllocated: requested,
			AmountDebited:   requested,
			Reference:       transactionID,
			Label:           n[FieldReqCardNumber],
		},
		Event: models.PaymentEvent{
			EventType:     models.EventTypePaid,
			Amount:        requested,
			Reference:     transactionID,
			ProcessorName: c.Name(),
		},
	}, nil
}
