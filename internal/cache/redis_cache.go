package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix = "payments"

	// StatusTTL bounds how long a probed processor status is trusted.
	StatusTTL = 30 * time.Second
)

// ProcessorStatus is the last known reachability of a processor's hosted page.
type ProcessorStatus struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	IsAvailable bool      `json:"is_available"`
	LastCheck   time.Time `json:"last_check"`
}

// NewClient parses redisURL and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NotificationGuard claims (processor, transaction) pairs so a notification that is
// delivered more than once places at most one order.
type NotificationGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewNotificationGuard returns a guard whose claims expire after ttl.
func NewNotificationGuard(client *redis.Client, ttl time.Duration, logger *slog.Logger) *NotificationGuard {
	return &NotificationGuard{client: client, ttl: ttl, logger: logger}
}

// Claim reports whether the caller is the first to handle the transaction. When Redis
// is unreachable the claim is granted and the error is returned for logging; the
// database constraints on orders and payment sources still reject a second order.
func (g *NotificationGuard) Claim(ctx context.Context, processor, transactionID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, claimKey(processor, transactionID), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("claiming %s transaction %s: %w", processor, transactionID, err)
	}
	if !ok {
		g.logger.Info("notification already claimed", "processor", processor, "transaction_id", transactionID)
	}
	return ok, nil
}

// Release drops a claim so a later delivery of the same transaction can retry.
func (g *NotificationGuard) Release(ctx context.Context, processor, transactionID string) error {
	if err := g.client.Del(ctx, claimKey(processor, transactionID)).Err(); err != nil {
		return fmt.Errorf("releasing %s transaction %s: %w", processor, transactionID, err)
	}
	return nil
}

func claimKey(processor, transactionID string) string {
	return fmt.Sprintf("%s:notification:%s:%s", keyPrefix, processor, transactionID)
}

// ProcessorStatusCache keeps processor health results for StatusTTL.
type ProcessorStatusCache struct {
	client *redis.Client
}

// NewProcessorStatusCache returns a status cache backed by client.
func NewProcessorStatusCache(client *redis.Client) *ProcessorStatusCache {
	return &ProcessorStatusCache{client: client}
}

// Get returns nil on a cache miss.
func (c *ProcessorStatusCache) Get(ctx context.Context, name string) (*ProcessorStatus, error) {
	data, err := c.client.Get(ctx, statusKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s status: %w", name, err)
	}

	var status ProcessorStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decoding %s status: %w", name, err)
	}
	return &status, nil
}

// Set stores status, stamping LastCheck when it is zero.
func (c *ProcessorStatusCache) Set(ctx context.Context, status *ProcessorStatus) error {
	if status.LastCheck.IsZero() {
		status.LastCheck = time.Now().UTC()
	}

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encoding %s status: %w", status.Name, err)
	}
	if err := c.client.Set(ctx, statusKey(status.Name), data, StatusTTL).Err(); err != nil {
		return fmt.Errorf("writing %s status: %w", status.Name, err)
	}
	return nil
}

// Invalidate forgets the cached status of name.
func (c *ProcessorStatusCache) Invalidate(ctx context.Context, name string) error {
	if err := c.client.Del(ctx, statusKey(name)).Err(); err != nil {
		return fmt.Errorf("invalidating %s status: %w", name, err)
	}
	return nil
}

func statusKey(name string) string {
	return fmt.Sprintf("%s:processor_status:%s", keyPrefix, name)
}
