package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ecommerce-payments/internal/cache"
)

const probeTimeout = 5 * time.Second

var errPageUnavailable = errors.New("payment page unavailable")

// Target is a processor whose hosted payment page should be reachable.
type Target struct {
	Name string
	URL  string
}

// StatusCache stores probe results between health checks.
type StatusCache interface {
	Get(ctx context.Context, name string) (*cache.ProcessorStatus, error)
	Set(ctx context.Context, status *cache.ProcessorStatus) error
}

// ProcessorGateway reports whether the hosted payment pages buyers are redirected to
// are reachable. It is informational only; notifications never consult it.
type ProcessorGateway struct {
	targets    []Target
	breakers   map[string]*CircuitBreaker
	cache      StatusCache
	httpClient *http.Client
	logger     *slog.Logger
}

// NewProcessorGateway returns a gateway with one circuit breaker per target.
// statusCache may be nil.
func NewProcessorGateway(targets []Target, statusCache StatusCache, logger *slog.Logger) *ProcessorGateway {
	breakers := make(map[string]*CircuitBreaker, len(targets))
	for _, t := range targets {
		breakers[t.Name] = NewCircuitBreaker(t.Name, defaultBreakerConfig, logger)
	}

	return &ProcessorGateway{
		targets:  targets,
		breakers: breakers,
		cache:    statusCache,
		httpClient: &http.Client{
			Timeout: probeTimeout,
		},
		logger: logger,
	}
}

// Status returns the availability of every target, probing those without a cached result.
func (g *ProcessorGateway) Status(ctx context.Context) []cache.ProcessorStatus {
	statuses := make([]cache.ProcessorStatus, 0, len(g.targets))
	for _, t := range g.targets {
		statuses = append(statuses, g.status(ctx, t))
	}
	return statuses
}

func (g *ProcessorGateway) status(ctx context.Context, t Target) cache.ProcessorStatus {
	if g.cache != nil {
		cached, err := g.cache.Get(ctx, t.Name)
		if err != nil {
			g.logger.Warn("reading cached processor status failed", "processor", t.Name, "error", err)
		}
		if cached != nil {
			return *cached
		}
	}

	status := cache.ProcessorStatus{
		Name:        t.Name,
		URL:         t.URL,
		IsAvailable: g.isUp(ctx, t),
		LastCheck:   time.Now().UTC(),
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, &status); err != nil {
			g.logger.Warn("caching processor status failed", "processor", t.Name, "error", err)
		}
	}
	return status
}

func (g *ProcessorGateway) isUp(ctx context.Context, t Target) bool {
	err := g.breakers[t.Name].Call(func() error { return g.probe(ctx, t) })
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrCircuitOpen):
		g.logger.Debug("skipping processor probe", "processor", t.Name, "error", err)
	default:
		g.logger.Warn("processor probe failed", "processor", t.Name, "url", t.URL, "error", err)
	}
	return false
}

// probe treats any answer below 500 as reachable. Hosted pages reject a bare GET with a
// client error, which still proves the page is served.
func (g *ProcessorGateway) probe(ctx context.Context, t Target) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	g.logger.Debug("processor probe", "processor", t.Name, "status_code", resp.StatusCode)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", errPageUnavailable, resp.StatusCode)
	}
	return nil
}
