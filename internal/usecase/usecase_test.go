package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ecommerce-payments/internal/config"
	"ecommerce-payments/internal/events"
	"ecommerce-payments/internal/models"
	"ecommerce-payments/internal/order"
	"ecommerce-payments/internal/payment"
	"ecommerce-payments/internal/repository"
	"ecommerce-payments/internal/signature"
)

const testSecret = "cybersource-secret"

var testCybersourceConfig = config.CybersourceConfig{
	ProfileID:      "profile-id",
	AccessKey:      "access-key",
	SecretKey:      testSecret,
	PaymentPageURL: "https://testsecureacceptance.cybersource.com/pay",
	ReceiptPageURL: "https://shop.example.com/receipt/",
	CancelPageURL:  "https://shop.example.com/cancel/",
}

type mockBasketRepository struct {
	mu      sync.Mutex
	baskets map[int64]*models.Basket
	err     error
}

func (m *mockBasketRepository) FindByID(_ context.Context, id int64) (*models.Basket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.baskets[id]
	if !ok {
		return nil, fmt.Errorf("basket %d: %w", id, repository.ErrNotFound)
	}
	copied := *b
	return &copied, nil
}

func (m *mockBasketRepository) Freeze(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.baskets[id]
	if !ok {
		return repository.ErrNotFound
	}
	if b.Status == models.BasketSubmitted {
		return repository.ErrConflict
	}
	b.Status = models.BasketFrozen
	return nil
}

type mockResponseRepository struct {
	mu    sync.Mutex
	saved []models.ProcessorResponse
	err   error
}

func (m *mockResponseRepository) Save(_ context.Context, r *models.ProcessorResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	r.ID = int64(len(m.saved) + 1)
	m.saved = append(m.saved, *r)
	return nil
}

type mockCountryRepository struct{}

func (mockCountryRepository) FindByCode(_ context.Context, code string) (*models.Country, error) {
	if strings.EqualFold(code, "US") {
		return &models.Country{ISO3166Alpha2: "US", Name: "United States"}, nil
	}
	return nil, fmt.Errorf("country %q: %w", code, repository.ErrNotFound)
}

type mockPlacer struct {
	mu       sync.Mutex
	requests []order.PlacementRequest
	err      error
}

func (m *mockPlacer) PlaceOrder(_ context.Context, req order.PlacementRequest) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.requests = append(m.requests, req)
	return &models.Order{ID: int64(len(m.requests)), Number: req.OrderNumber, BasketID: req.Basket.ID}, nil
}

type mockClaimer struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
	err      error
}

func (m *mockClaimer) Claim(_ context.Context, processor, transactionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return true, m.err
	}
	key := processor + ":" + transactionID
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *mockClaimer) Release(_ context.Context, processor, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := processor + ":" + transactionID
	delete(m.claimed, key)
	m.released = append(m.released, key)
	return nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *mockPublisher) Publish(_ context.Context, e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

type fixture struct {
	baskets   *mockBasketRepository
	responses *mockResponseRepository
	placer    *mockPlacer
	claims    *mockClaimer
	publisher *mockPublisher
	processor *payment.Cybersource
	registry  *payment.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	processor, err := payment.NewCybersource(testCybersourceConfig, "en-us")
	require.NoError(t, err)
	registry, err := payment.NewRegistry(payment.CybersourceName, processor)
	require.NoError(t, err)

	return &fixture{
		baskets: &mockBasketRepository{baskets: map[int64]*models.Basket{
			42: {ID: 42, OwnerUsername: "gus", Currency: "USD", TotalInclTax: decimal.RequireFromString("9.99"), Status: models.BasketOpen},
			7:  {ID: 7, OwnerUsername: "gus", Currency: "USD", TotalInclTax: decimal.Zero, Status: models.BasketOpen},
		}},
		responses: &mockResponseRepository{},
		placer:    &mockPlacer{},
		claims:    &mockClaimer{claimed: map[string]bool{}},
		publisher: &mockPublisher{},
		processor: processor,
		registry:  registry,
	}
}

// signedNotification returns an accepted notification for basket 42 signed with
// testSecret after mutate has run.
func signedNotification(mutate func(payment.Notification)) payment.Notification {
	n := payment.Notification{
		payment.FieldDecision:           "ACCEPT",
		payment.FieldReqReferenceNumber: "42",
		payment.FieldTransactionID:      "123456",
		payment.FieldAuthAmount:         "9.99",
		payment.FieldReqAmount:          "9.99",
		payment.FieldReqTaxAmount:       "1.00",
		payment.FieldReqCurrency:        "USD",
		payment.FieldReqCardNumber:      "xxxxxxxxxxxx1111",
		payment.FieldBillToForename:     "Gustavo",
		payment.FieldBillToSurname:      "Fring",
		payment.FieldBillToLine1:        "308 Negra Arroyo Lane",
		payment.FieldBillToLine2:        "",
		payment.FieldBillToCity:         "Albuquerque",
		payment.FieldBillToPostalCode:   "87104",
		payment.FieldBillToState:        "NM",
		payment.FieldBillToCountry:      "US",
	}
	if mutate != nil {
		mutate(n)
	}
	names := make([]string, 0, len(n)+1)
	for k := range n {
		names = append(names, k)
	}
	names = append(names, payment.FieldSignedFieldNames)
	sort.Strings(names)
	n[payment.FieldSignedFieldNames] = strings.Join(names, ",")
	n[payment.FieldSignature] = signature.SignFields(n, testSecret)
	return n
}

var errBoom = errors.New("boom")
