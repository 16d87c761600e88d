package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"ecommerce-payments/internal/cache"
	"ecommerce-payments/internal/config"
	"ecommerce-payments/internal/events"
	"ecommerce-payments/internal/gateway"
	"ecommerce-payments/internal/handler"
	"ecommerce-payments/internal/logger"
	"ecommerce-payments/internal/order"
	"ecommerce-payments/internal/repository"
	"ecommerce-payments/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting", "version", Version, "config", cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	db, err := repository.InitDatabase(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	log.Info("redis connected")

	var publisher events.Publisher = events.NewLogPublisher(log)
	if cfg.NatsURL != "" {
		natsPublisher, nc, err := events.Connect(ctx, cfg.NatsURL, log)
		if err != nil {
			return err
		}
		defer nc.Drain()
		publisher = natsPublisher
	} else {
		log.Warn("NATS_URL not set; events are only logged")
	}

	baskets := repository.NewPostgreSQLBasketRepository(db)
	orders := order.NewService(repository.NewPostgreSQLOrderRepository(db), publisher, log)

	notifications := usecase.NewNotificationUseCase(
		baskets,
		repository.NewPostgreSQLResponseRepository(db),
		repository.NewPostgreSQLCountryRepository(db),
		orders,
		cache.NewNotificationGuard(redisClient, cfg.NotificationClaimTTL, log),
		publisher,
		log,
	)
	checkout := usecase.NewCheckoutUseCase(baskets, registry, orders, log)

	targets := make([]gateway.Target, 0, len(registry.Names()))
	for _, name := range registry.Names() {
		p, _ := registry.Get(name)
		targets = append(targets, gateway.Target{Name: name, URL: p.PaymentPageURL()})
	}
	health := gateway.NewProcessorGateway(targets, cache.NewProcessorStatusCache(redisClient), log)

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.New(notifications, checkout, registry, health, log), log)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Info("server started", "addr", cfg.HTTPAddr)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}
