package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"donations/internal/middleware"
	"donations/internal/service"
)

// ChargeHandler handles HTTP requests for PIX charge creation.
type ChargeHandler struct {
	chargeService *service.ChargeService
}

// NewChargeHandler creates a new ChargeHandler.
func NewChargeHandler(chargeService *service.ChargeService) *ChargeHandler {
	return &ChargeHandler{chargeService: chargeService}
}

// CreateChargeRequest is the HTTP request body for creating a charge.
type CreateChargeRequest struct {
	Amount *float64 `json:"amount"`
}

// QRPayloadResponse is the HTTP response for a created charge.
type QRPayloadResponse struct {
	PaymentID    string `json:"paymentId"`
	QRCode       string `json:"qrCode"`
	QRCodeBase64 string `json:"qrCodeBase64"`
}

// CreateCharge handles POST /v1/charges
func (h *ChargeHandler) CreateCharge(c *gin.Context) {
	// A malformed body is reported as an invalid amount, but only after the
	// caller has been checked.
	var req CreateChargeRequest
	var amount float64
	if err := c.ShouldBindJSON(&req); err == nil && req.Amount != nil {
		amount = *req.Amount
	}

	payload, err := h.chargeService.RequestCharge(c.Request.Context(), service.RequestChargeInput{
		Caller:         middleware.IdentityFrom(c),
		Amount:         amount,
		IdempotencyKey: middleware.IdempotencyKeyFrom(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, QRPayloadResponse{
		PaymentID:    payload.PaymentID,
		QRCode:       payload.QRCode,
		QRCodeBase64: payload.QRCodeBase64,
	})
}
