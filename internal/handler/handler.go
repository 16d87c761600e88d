package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"ecommerce-payments/internal/cache"
	"ecommerce-payments/internal/payment"
	"ecommerce-payments/internal/repository"
	"ecommerce-payments/internal/usecase"
)

// NotificationHandler processes processor notifications.
type NotificationHandler interface {
	Handle(ctx context.Context, processor payment.Processor, n payment.Notification) usecase.Result
}

// CheckoutHandler prepares baskets for payment.
type CheckoutHandler interface {
	Checkout(ctx context.Context, req usecase.CheckoutRequest) (*usecase.CheckoutResponse, error)
}

// HealthChecker reports processor availability.
type HealthChecker interface {
	Status(ctx context.Context) []cache.ProcessorStatus
}

// Handler serves the payment HTTP API.
type Handler struct {
	notifications NotificationHandler
	checkout      CheckoutHandler
	processors    *payment.Registry
	health        HealthChecker
	logger        *slog.Logger
}

// New returns a Handler wired to its use cases.
func New(
	notifications NotificationHandler,
	checkout CheckoutHandler,
	processors *payment.Registry,
	health HealthChecker,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		notifications: notifications,
		checkout:      checkout,
		processors:    processors,
		health:        health,
		logger:        logger,
	}
}

// Register mounts every route on router.
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.POST("/payment/cybersource/notify/", h.CybersourceNotify)

	v2 := router.Group("/api/v2")
	{
		v2.POST("/checkout/", h.Checkout)
		v2.GET("/payment/processors/", h.Processors)
	}
}

// CybersourceNotify always answers 200 with an empty body, even when handling panics.
// The outcome is only logged, so the processor never retries a notification that was received.
func (h *Handler) CybersourceNotify(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("notification handling panicked",
				"processor", payment.CybersourceName,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
		c.Status(http.StatusOK)
	}()

	processor, err := h.processors.Get(payment.CybersourceName)
	if err != nil {
		h.logger.Error("notification for unconfigured processor", "processor", payment.CybersourceName, "error", err)
		return
	}

	if err := c.Request.ParseForm(); err != nil {
		h.logger.Warn("unreadable notification body", "processor", processor.Name(), "error", err)
		return
	}

	// Repeated fields keep their last value.
	n := make(payment.Notification, len(c.Request.PostForm))
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			n[key] = values[len(values)-1]
		}
	}

	result := h.notifications.Handle(c.Request.Context(), processor, n)
	h.logger.Debug("notification handled",
		"processor", processor.Name(),
		"status", string(result.Status),
		"basket_id", result.BasketID,
		"transaction_id", result.TransactionID,
		"response_id", result.ResponseID,
	)
}

// Checkout freezes a basket and returns the data for the processor's hosted payment page.
func (h *Handler) Checkout(c *gin.Context) {
	var req usecase.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.checkout.Checkout(c.Request.Context(), req)
	if err != nil {
		status := checkoutErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("checkout failed", "basket_id", req.BasketID, "error", err)
			c.JSON(status, gin.H{"error": "checkout failed"})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func checkoutErrorStatus(err error) int {
	switch {
	case errors.Is(err, payment.ErrUnknownProcessor):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Processors lists the configured processor names.
func (h *Handler) Processors(c *gin.Context) {
	c.JSON(http.StatusOK, h.processors.Names())
}

// Health reports service liveness and the availability of each hosted payment page.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"processors": h.health.Status(c.Request.Context()),
	})
}
