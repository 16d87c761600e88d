package payment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrPayment is the root of every payment fault raised while handling a processor response.
var ErrPayment = errors.New("payment error")

var (
	ErrInvalidSignature     = fmt.Errorf("%w: invalid signature", ErrPayment)
	ErrUserCancelled        = fmt.Errorf("%w: user cancelled", ErrPayment)
	ErrTransactionDeclined  = fmt.Errorf("%w: transaction declined", ErrPayment)
	ErrGatewayError         = fmt.Errorf("%w: gateway error", ErrPayment)
	ErrUnrecognizedDecision = fmt.Errorf("%w: unrecognized decision", ErrPayment)
	ErrPartialAuthorization = fmt.Errorf("%w: partial authorization", ErrPayment)
	ErrInvalidAmount        = fmt.Errorf("%w: invalid amount", ErrPayment)
)

// ErrUnknownProcessor is returned when no processor is registered under a name.
var ErrUnknownProcessor = errors.New("unknown payment processor")

// UnrecognizedDecisionError carries a decision outside ACCEPT/CANCEL/DECLINE/ERROR.
type UnrecognizedDecisionError struct {
	Decision string
}

func (e *UnrecognizedDecisionError) Error() string {
	return fmt.Sprintf("%v [%s]", ErrUnrecognizedDecision, e.Decision)
}

func (e *UnrecognizedDecisionError) Unwrap() error { return ErrUnrecognizedDecision }

// PartialAuthorizationError reports an authorized amount that differs from the requested one.
type PartialAuthorizationError struct {
	Requested  decimal.Decimal
	Authorized decimal.Decimal
}

func (e *PartialAuthorizationError) Error() string {
	return fmt.Sprintf("%v: requested %s, authorized %s", ErrPartialAuthorization, e.Requested, e.Authorized)
}

func (e *PartialAuthorizationError) Unwrap() error { return ErrPartialAuthorization }
