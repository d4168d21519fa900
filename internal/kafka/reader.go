package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"

	"donations/internal/domain"
)

var (
	readErrorCounter      = metrics.GetOrCreateCounter(`kafka_reader_total{result="read_error",type="confirmation_retry"}`)
	unmarshalErrorCounter = metrics.GetOrCreateCounter(`kafka_reader_total{result="unmarshal_error",type="confirmation_retry"}`)
	processErrorCounter   = metrics.GetOrCreateCounter(`kafka_reader_total{result="process_error",type="confirmation_retry"}`)
	successCounter        = metrics.GetOrCreateCounter(`kafka_reader_total{result="success",type="confirmation_retry"}`)
)

// MessageReader is the subset of *kafka.Reader used by ConsumeRetries.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// RetryHandler processes one confirmation retry.
type RetryHandler func(ctx context.Context, retry domain.ConfirmationRetry) error

// NewReader creates a consumer-group reader.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   topic,
	})
}

// ConsumeRetries reads retries until ctx is cancelled, waiting for each
// message's NotBefore time before handing it to handle.
func ConsumeRetries(ctx context.Context, reader MessageReader, handle RetryHandler, logger *slog.Logger) {
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.InfoContext(ctx, "context done, stopping retry consumer")
				return
			}
			logger.ErrorContext(ctx, "error reading retry message", "error", err)
			readErrorCounter.Inc()
			continue
		}

		var retry domain.ConfirmationRetry
		if err := json.Unmarshal(m.Value, &retry); err != nil {
			logger.ErrorContext(ctx, "error unmarshalling retry message", "error", err)
			unmarshalErrorCounter.Inc()
			continue
		}

		if !waitUntil(ctx, retry.NotBefore) {
			return
		}

		if err := handle(ctx, retry); err != nil {
			processErrorCounter.Inc()
			continue
		}
		successCounter.Inc()
	}
}

func waitUntil(ctx context.Context, at time.Time) bool {
	delay := time.Until(at)
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
