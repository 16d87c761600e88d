// Package payment holds the payment processor integrations: building signed transaction
// parameters for a hosted payment page and turning processor notifications into
// payment sources and events.
package payment

import (
	"fmt"
	"sort"

	"ecommerce-payments/internal/models"
)

// TransactionParameters are the form fields posted to a hosted payment page.
type TransactionParameters map[string]string

// Notification is the set of fields posted back by a processor.
type Notification map[string]string

// PageOverrides replace the receipt and cancellation pages configured for a processor.
// Empty values keep the configured defaults.
type PageOverrides struct {
	ReceiptPageURL string
	CancelPageURL  string
}

// Staged holds the payment records produced by an accepted notification. They are not
// persisted until an order is placed with them.
type Staged struct {
	Source models.Source
	Event  models.PaymentEvent
}

// Processor is a payment processor integration.
type Processor interface {
	// Name identifies the processor in audit records, sources and events.
	Name() string
	// PaymentPageURL is the hosted page the transaction parameters are posted to.
	PaymentPageURL() string
	// TransactionParameters returns the signed parameters for purchasing basket.
	TransactionParameters(basket models.Basket, overrides PageOverrides) (TransactionParameters, error)
	// IsSignatureValid reports whether n was signed with the merchant secret.
	IsSignatureValid(n Notification) bool
	// HandleProcessorResponse classifies n and, on acceptance, stages its payment records.
	HandleProcessorResponse(n Notification) (Staged, error)
	// TransactionID extracts the processor's transaction identifier from n.
	TransactionID(n Notification) string
}

// Registry resolves processors by name.
type Registry struct {
	processors  map[string]Processor
	defaultName string
}

// NewRegistry registers processors. The first one is the default unless
// defaultName names another registered processor.
func NewRegistry(defaultName string, processors ...Processor) (*Registry, error) {
	if len(processors) == 0 {
		return nil, fmt.Errorf("no payment processors configured")
	}
	r := &Registry{processors: make(map[string]Processor, len(processors))}
	for _, p := range processors {
		if _, dup := r.processors[p.Name()]; dup {
			return nil, fmt.Errorf("payment processor %q registered twice", p.Name())
		}
		r.processors[p.Name()] = p
	}

	r.defaultName = processors[0].Name()
	if defaultName != "" {
		if _, ok := r.processors[defaultName]; !ok {
			return nil, fmt.Errorf("default %w: %s", ErrUnknownProcessor, defaultName)
		}
		r.defaultName = defaultName
	}
	return r, nil
}

// Get returns the processor registered under name.
func (r *Registry) Get(name string) (Processor, error) {
	p, ok := r.processors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
	return p, nil
}

// Default returns the default processor.
func (r *Registry) Default() Processor {
	return r.processors[r.defaultName]
}

// Names lists the registered processor names in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
