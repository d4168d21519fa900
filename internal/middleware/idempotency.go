package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	replayedHeader        = "Idempotent-Replayed"
	idempotencyContextKey = "idempotency_key"
	idempotencyTTL        = 24 * time.Hour
)

// ResponseCache stores replayable responses. Get returns nil data on a miss.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// storedResponse is what a repeated request with the same key receives.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// captureWriter tees the response body so it can be stored after the
// handler runs.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key and
// exposes the key to handlers through IdempotencyKeyFrom. Keys are scoped to
// the authenticated caller, so Auth must run first. Server errors are not
// stored, letting the client retry them.
func Idempotency(cache ResponseCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if key == "" || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}
		c.Set(idempotencyContextKey, key)

		ctx := c.Request.Context()
		cacheKey := "idempotency:" + callerScope(c) + ":" + key

		stored, err := loadResponse(ctx, cache, cacheKey)
		if err != nil {
			// Without the cache the request still runs; the provider-side
			// idempotency key keeps the charge single.
			_ = c.Error(err)
			c.Next()
			return
		}
		if stored != nil {
			c.Header(replayedHeader, "true")
			c.Data(stored.Status, stored.ContentType, stored.Body)
			c.Abort()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		status := w.Status()
		if status < http.StatusOK || status >= http.StatusInternalServerError {
			return
		}
		_ = saveResponse(ctx, cache, cacheKey, &storedResponse{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.buf.Bytes(),
		})
	}
}

// IdempotencyKeyFrom returns the request's Idempotency-Key, if any.
func IdempotencyKeyFrom(c *gin.Context) string {
	return c.GetString(idempotencyContextKey)
}

func callerScope(c *gin.Context) string {
	if identity := IdentityFrom(c); identity != nil {
		return identity.ID
	}
	return "anonymous"
}

func loadResponse(ctx context.Context, cache ResponseCache, key string) (*storedResponse, error) {
	data, err := cache.Get(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}

	var stored storedResponse
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func saveResponse(ctx context.Context, cache ResponseCache, key string, stored *storedResponse) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return cache.Set(ctx, key, data, idempotencyTTL)
}
