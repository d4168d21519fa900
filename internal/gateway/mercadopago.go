package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"donations/internal/config"
	"donations/internal/domain"
)

const pixPaymentMethod = "pix"

var (
	createDuration = metrics.GetOrCreateHistogram(`gateway_request_duration_seconds{operation="create_charge"}`)
	getDuration    = metrics.GetOrCreateHistogram(`gateway_request_duration_seconds{operation="get_charge"}`)
)

// MercadoPago is a REST client for the Mercado Pago payments API.
type MercadoPago struct {
	baseURL     string
	accessToken string
	description string
	client      *http.Client
}

// NewMercadoPago creates a client from immutable gateway settings. The
// configured timeout is a hard upper bound on every call.
func NewMercadoPago(cfg config.GatewayConfig) *MercadoPago {
	return &MercadoPago{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		description: cfg.Description,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

type payer struct {
	Email string `json:"email"`
}

type createPaymentRequest struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Description       string  `json:"description"`
	PaymentMethodID   string  `json:"payment_method_id"`
	Payer             payer   `json:"payer"`
	ExternalReference string  `json:"external_reference"`
	NotificationURL   string  `json:"notification_url"`
}

type paymentResponse struct {
	ID                 paymentID `json:"id"`
	Status             string    `json:"status"`
	TransactionAmount  float64   `json:"transaction_amount"`
	ExternalReference  string    `json:"external_reference"`
	Payer              payer     `json:"payer"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// paymentID accepts the provider id as either a JSON number or a string.
type paymentID string

func (p *paymentID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = paymentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = paymentID(n.String())
	return nil
}

// CreateCharge creates a PIX charge bound to req.DonorID through the external
// reference.
func (c *MercadoPago) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	if !(req.Amount > 0) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if err := validateNotificationURL(req.NotificationURL); err != nil {
		return nil, err
	}

	body, err := json.Marshal(createPaymentRequest{
		TransactionAmount: req.Amount,
		Description:       c.description,
		PaymentMethodID:   pixPaymentMethod,
		Payer:             payer{Email: req.DonorEmail},
		ExternalReference: req.DonorID,
		NotificationURL:   req.NotificationURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrInvalidRequest, err)
	}

	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	start := time.Now()
	defer createDuration.UpdateDuration(start)

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-Idempotency-Key", idempotencyKey)

	var resp paymentResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return resp.toCharge(), nil
}

// GetCharge fetches the authoritative state of a charge.
func (c *MercadoPago) GetCharge(ctx context.Context, id string) (*domain.Charge, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty payment id", ErrInvalidRequest)
	}

	start := time.Now()
	defer getDuration.UpdateDuration(start)

	httpReq, err := c.newRequest(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var resp paymentResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return resp.toCharge(), nil
}

func (c *MercadoPago) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGateway, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *MercadoPago) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(data, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	return nil
}

func (r *paymentResponse) toCharge() *domain.Charge {
	return &domain.Charge{
		ID:                string(r.ID),
		Status:            domain.ChargeStatus(r.Status),
		Amount:            r.TransactionAmount,
		PayerEmail:        r.Payer.Email,
		ExternalReference: r.ExternalReference,
		QRCode:            r.PointOfInteraction.TransactionData.QRCode,
		QRCodeBase64:      r.PointOfInteraction.TransactionData.QRCodeBase64,
	}
}

func validateNotificationURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: invalid notification url %s", ErrInvalidRequest, strconv.Quote(raw))
	}
	return nil
}
