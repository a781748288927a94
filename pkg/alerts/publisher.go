package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/clinica-juridica/expediente/pkg/integrity"
)

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// DefaultPublishTimeout bounds the delivery of one alert.
const DefaultPublishTimeout = 5 * time.Second

// Publisher publishes integrity alerts to a topic.
type Publisher struct {
	client  producer
	topic   string
	timeout time.Duration
	logger  hclog.Logger
}

var _ integrity.Notifier = (*Publisher)(nil)

// PublisherConfig holds configuration for the publisher.
type PublisherConfig struct {
	Brokers []string
	Topic   string

	// Timeout bounds each publish, including broker retries. Zero means
	// DefaultPublishTimeout.
	Timeout time.Duration

	Logger hclog.Logger
}

// NewPublisher creates a new alert publisher.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPublishTimeout
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),

		// Wait for all in-sync replicas; franz-go is idempotent with this.
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(5),
		kgo.ProducerLinger(10*time.Millisecond),

		// Fail records instead of retrying forever against a dead broker.
		kgo.RecordDeliveryTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return newPublisher(client, cfg.Topic, cfg.Timeout, cfg.Logger), nil
}

func newPublisher(client producer, topic string, timeout time.Duration, logger hclog.Logger) *Publisher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Publisher{
		client:  client,
		topic:   topic,
		timeout: timeout,
		logger:  logger.Named("alerts"),
	}
}

// Notify publishes alert. It implements integrity.Notifier.
func (p *Publisher) Notify(ctx context.Context, alert integrity.Alert) error {
	return p.Publish(ctx, NewAlertMessage(alert, time.Now()))
}

// Publish publishes a pre-built alert message.
func (p *Publisher) Publish(ctx context.Context, msg *AlertMessage) error {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert message: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.partitionKey()),
		Value: msgJSON,
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.Debug("published integrity alert",
		"id", msg.ID,
		"case_id", msg.CaseID,
		"document_id", msg.DocumentID,
		"type", msg.Type,
	)
	return nil
}

// Close closes the publisher.
func (p *Publisher) Close() {
	p.client.Close()
}
