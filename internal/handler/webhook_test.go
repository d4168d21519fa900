package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"donations/internal/service"
)

func TestMergeBody(t *testing.T) {
	tests := []struct {
		name     string
		query    service.Notification
		body     string
		expected service.Notification
	}{
		{
			name:     "fills missing fields",
			body:     `{"type":"payment","data":{"id":"pay123"}}`,
			expected: service.Notification{Type: "payment", DataID: "pay123"},
		},
		{
			name:     "query wins",
			query:    service.Notification{Topic: "payment", DataID: "pay-query"},
			body:     `{"topic":"merchant_order","data":{"id":"pay-body"}}`,
			expected: service.Notification{Topic: "payment", DataID: "pay-query"},
		},
		{
			name:     "malformed body is ignored",
			query:    service.Notification{Topic: "payment"},
			body:     `{"data":`,
			expected: service.Notification{Topic: "payment"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.query
			mergeBody(strings.NewReader(tt.body), &n)
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestMapError(t *testing.T) {
	code, body := mapError(service.ErrUnauthenticated)
	assert.Equal(t, 401, code)
	assert.Equal(t, "unauthenticated", body.Code)

	code, body = mapError(service.ErrInvalidAmount)
	assert.Equal(t, 400, code)
	assert.Equal(t, "invalid-argument", body.Code)

	code, body = mapError(service.ErrInternal)
	assert.Equal(t, 500, code)
	assert.Equal(t, msgInternal, body.Error)
}
