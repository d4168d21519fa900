package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"

	"donations/internal/domain"
)

var (
	retryPublishedCounter = metrics.GetOrCreateCounter(`kafka_writer_total{result="published",type="confirmation_retry"}`)
	retryPublishErrors    = metrics.GetOrCreateCounter(`kafka_writer_total{result="publish_failed",type="confirmation_retry"}`)
)

// MessageWriter is the subset of *kafka.Writer used by RetryPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

const (
	writeTimeout     = time.Second
	writeMaxAttempts = 2
)

// NewWriter creates a synchronous writer that hashes on the message key so
// retries for one payment stay ordered on a partition. Writes fail fast so a
// broker outage does not hold webhook acknowledgements.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.ReferenceHash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           writeTimeout,
		MaxAttempts:            writeMaxAttempts,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
}

// RetryPublisher publishes confirmation retries to Kafka.
type RetryPublisher struct {
	writer MessageWriter
}

// NewRetryPublisher creates a RetryPublisher.
func NewRetryPublisher(writer MessageWriter) *RetryPublisher {
	return &RetryPublisher{writer: writer}
}

// PublishRetry writes a retry keyed by payment id.
func (p *RetryPublisher) PublishRetry(ctx context.Context, retry domain.ConfirmationRetry) error {
	value, err := json.Marshal(retry)
	if err != nil {
		return fmt.Errorf("failed to marshal retry: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(retry.PaymentID),
		Value: value,
	})
	if err != nil {
		retryPublishErrors.Inc()
		return fmt.Errorf("failed to publish retry for payment %s: %w", retry.PaymentID, err)
	}

	retryPublishedCounter.Inc()
	return nil
}

// Enabled reports whether a broker list was configured.
func Enabled(brokers []string) bool {
	return len(brokers) > 0 && strings.TrimSpace(brokers[0]) != ""
}
