// Package events publishes order and payment events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName = "PAYMENTS"

	SubjectOrderPlaced          = "orders.placed"
	SubjectOrderPlacementFailed = "payments.order_placement_failed"
	streamMaxAge                = 15 * 24 * time.Hour
)

var streamSubjects = []string{"orders.>", "payments.>"}

// Event is a typed payload bound for a subject.
type Event struct {
	Subject string
	Data    any
}

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// JetStream is the part of jetstream.JetStream the publisher needs.
type JetStream interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher publishes JSON-encoded events with a unique message id so JetStream
// drops retried publishes inside its duplicate window.
type NATSPublisher struct {
	js     JetStream
	logger *slog.Logger
	newID  func() string
}

// NewNATSPublisher returns a publisher over js.
func NewNATSPublisher(js JetStream, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{js: js, logger: logger, newID: uuid.NewString}
}

// Publish encodes event.Data as JSON and waits for the JetStream ack.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.Subject, err)
	}

	ack, err := p.js.Publish(ctx, event.Subject, payload, jetstream.WithMsgID(p.newID()))
	if err != nil {
		return fmt.Errorf("publishing %s event: %w", event.Subject, err)
	}
	p.logger.Debug("event published", "subject", event.Subject, "stream", ack.Stream, "sequence", ack.Sequence)
	return nil
}

// LogPublisher writes events to the log instead of a broker. It is used when no
// NATS URL is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a publisher that only logs.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs event at info level and never fails.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info("event", "subject", event.Subject, "data", event.Data)
	return nil
}

// Connect dials natsURL, ensures the payments stream exists and returns a publisher
// bound to it along with the underlying connection.
func Connect(ctx context.Context, natsURL string, logger *slog.Logger) (*NATSPublisher, *nats.Conn, error) {
	nc, err := nats.Connect(
		natsURL,
		nats.Name("ecommerce-payments"),
		nats.ReconnectWait(3*time.Second),
		nats.MaxReconnects(-1),
		nats.PingInterval(10*time.Second),
		nats.MaxPingsOutstanding(5),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("initializing jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: streamSubjects,
		MaxAge:   streamMaxAge,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("creating stream %s: %w", StreamName, err)
	}

	logger.Info("connected to jetstream", "stream", StreamName)
	return NewNATSPublisher(js, logger), nc, nil
}
