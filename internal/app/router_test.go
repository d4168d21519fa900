package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donations/internal/config"
	"donations/internal/domain"
	"donations/internal/handler"
	"donations/internal/middleware"
	"donations/internal/service"
	"donations/internal/tests"
)

const testSecret = "test-secret"

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[key], nil
}

func (m *memoryCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = data
	return nil
}

type testServer struct {
	router  *gin.Engine
	gateway *tests.MockGateway
	ledger  *tests.MockDonationLedger
	donors  *tests.MockDonorRepository
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := &testServer{
		gateway: tests.NewMockGateway(),
		ledger:  tests.NewMockDonationLedger(),
		donors:  tests.NewMockDonorRepository(),
	}

	chargeService := service.NewChargeService(s.gateway, s.donors, "https://donations.example.com"+config.WebhookPath, logger)
	confirmationService := service.NewConfirmationService(
		s.gateway, s.ledger, s.donors, tests.NewMockPaymentLocker(), nil, logger, service.ConfirmationOptions{},
	)

	s.router = NewRouter(RouterDeps{
		ChargeHandler:   handler.NewChargeHandler(chargeService),
		WebhookHandler:  handler.NewWebhookHandler(confirmationService),
		DonationHandler: handler.NewDonationHandler(s.ledger),
		ResponseCache:   &memoryCache{items: make(map[string][]byte)},
		Auth:            config.AuthConfig{JWTSecret: testSecret},
	})
	return s
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func donorToken(t *testing.T) string {
	t.Helper()
	return donorTokenFor(t, "u1", "a@b.com")
}

func donorTokenFor(t *testing.T, subject, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Email: email,
		Name:  "Ana",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func chargeRequest(token, body, idempotencyKey string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/charges", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateCharge(t *testing.T) {
	s := newTestServer()
	s.gateway.NextChargeID = "pay123"

	w := s.do(chargeRequest(donorToken(t), `{"amount": 50.00}`, ""))

	require.Equal(t, http.StatusCreated, w.Code)
	var resp handler.QRPayloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pay123", resp.PaymentID)
	assert.Equal(t, "000201-pay123", resp.QRCode)
	assert.Equal(t, "base64-pay123", resp.QRCodeBase64)
	assert.Equal(t, "u1", s.gateway.LastRequest().DonorID)
}

func TestCreateCharge_Errors(t *testing.T) {
	cases := []struct {
		name         string
		token        bool
		body         string
		expectedCode int
		expectedMsg  string
	}{
		{
			name:         "no token",
			body:         `{"amount": 50}`,
			expectedCode: http.StatusUnauthorized,
			expectedMsg:  "Você precisa estar logado para fazer uma doação.",
		},
		{
			name:         "zero amount",
			token:        true,
			body:         `{"amount": 0}`,
			expectedCode: http.StatusBadRequest,
			expectedMsg:  "O valor da doação deve ser maior que zero.",
		},
		{
			name:         "missing amount",
			token:        true,
			body:         `{}`,
			expectedCode: http.StatusBadRequest,
			expectedMsg:  "O valor da doação deve ser maior que zero.",
		},
		{
			name:         "malformed amount",
			token:        true,
			body:         `{"amount": "cinquenta"}`,
			expectedCode: http.StatusBadRequest,
			expectedMsg:  "O valor da doação deve ser maior que zero.",
		},
		{
			name:         "malformed body without token",
			body:         `not json`,
			expectedCode: http.StatusUnauthorized,
			expectedMsg:  "Você precisa estar logado para fazer uma doação.",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			token := ""
			if tt.token {
				token = donorToken(t)
			}

			w := s.do(chargeRequest(token, tt.body, ""))

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, tt.expectedMsg, decodeError(t, w).Error)
			assert.Zero(t, s.gateway.CreateCallCount)
		})
	}
}

func TestCreateCharge_GatewayFailureIsGeneric(t *testing.T) {
	s := newTestServer()
	s.gateway.CreateError = assert.AnError

	w := s.do(chargeRequest(donorToken(t), `{"amount": 50}`, ""))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "internal", resp.Code)
	assert.Equal(t, "Não foi possível gerar o PIX. Tente novamente.", resp.Error)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestCreateCharge_IdempotencyKeyReplaysCharge(t *testing.T) {
	s := newTestServer()
	token := donorToken(t)

	first := s.do(chargeRequest(token, `{"amount": 50}`, "intent-1"))
	second := s.do(chargeRequest(token, `{"amount": 50}`, "intent-1"))

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(1), s.gateway.CreateCallCount)
	assert.Equal(t, service.ProviderIdempotencyKey("u1", "intent-1"), s.gateway.LastRequest().IdempotencyKey)
}

func TestCreateCharge_IdempotencyKeyScopedPerDonorAtProvider(t *testing.T) {
	s := newTestServer()

	w := s.do(chargeRequest(donorTokenFor(t, "u1", "a@b.com"), `{"amount": 50}`, "intent-1"))
	require.Equal(t, http.StatusCreated, w.Code)
	firstKey := s.gateway.LastRequest().IdempotencyKey

	w = s.do(chargeRequest(donorTokenFor(t, "u2", "c@d.com"), `{"amount": 50}`, "intent-1"))
	require.Equal(t, http.StatusCreated, w.Code)
	secondKey := s.gateway.LastRequest().IdempotencyKey

	assert.NotEqual(t, firstKey, secondKey)
	assert.Equal(t, "u2", s.gateway.LastRequest().DonorID)
	assert.Equal(t, int32(2), s.gateway.CreateCallCount)
}

func TestWebhook_AlwaysAcknowledges(t *testing.T) {
	cases := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "non payment topic", method: http.MethodGet, target: "/v1/webhooks/mercadopago?topic=merchant_order&id=1"},
		{name: "unknown payment", method: http.MethodPost, target: "/v1/webhooks/mercadopago?type=payment&data.id=missing"},
		{name: "no parameters", method: http.MethodPost, target: "/v1/webhooks/mercadopago"},
		{name: "garbage body", method: http.MethodPost, target: "/v1/webhooks/mercadopago", body: "{"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()

			w := s.do(httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "OK", w.Body.String())
			assert.Empty(t, s.ledger.Donations())
		})
	}
}

func TestWebhook_ApprovedPaymentRecordedOnce(t *testing.T) {
	s := newTestServer()
	s.donors.AddDonor(&domain.Donor{ID: "u1", DisplayName: "Ana"})
	s.gateway.AddCharge(&domain.Charge{
		ID:                "pay123",
		Status:            domain.ChargeStatusApproved,
		Amount:            50.00,
		PayerEmail:        "a@b.com",
		ExternalReference: "u1",
	})

	w := s.do(httptest.NewRequest(http.MethodPost, "/v1/webhooks/mercadopago?type=payment&data.id=pay123", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	body := `{"type":"payment","data":{"id":"pay123"}}`
	w = s.do(httptest.NewRequest(http.MethodPost, "/v1/webhooks/mercadopago", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, w.Code)

	donations := s.ledger.Donations()
	require.Len(t, donations, 1)
	assert.Equal(t, "u1", donations[0].UserID)
	assert.Equal(t, "Ana", donations[0].UserName)
	assert.Equal(t, 50.00, donations[0].Amount)
	assert.Equal(t, domain.DonationStatusVerified, donations[0].Status)
	assert.Equal(t, "pay123", donations[0].PaymentID)
	assert.Equal(t, "a@b.com", donations[0].PayerEmail)
}

func TestListDonations(t *testing.T) {
	s := newTestServer()
	for _, id := range []string{"pay-1", "pay-2", "pay-3"} {
		require.NoError(t, s.ledger.Append(context.Background(), &domain.Donation{
			UserID:     "u1",
			UserName:   "Ana",
			Amount:     10,
			Status:     domain.DonationStatusVerified,
			PaymentID:  id,
			PayerEmail: "a@b.com",
		}))
	}

	w := s.do(httptest.NewRequest(http.MethodGet, "/v1/donations?limit=2", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp []handler.DonationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "pay-3", resp[0].PaymentID)
	assert.Equal(t, "pay-2", resp[1].PaymentID)
	assert.NotContains(t, w.Body.String(), "a@b.com")
}

func TestListDonations_InvalidLimit(t *testing.T) {
	s := newTestServer()

	for _, limit := range []string{"0", "-1", "abc"} {
		w := s.do(httptest.NewRequest(http.MethodGet, "/v1/donations?limit="+limit, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer()

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
