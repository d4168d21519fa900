package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"donations/internal/repository"
)

const (
	defaultDonationsLimit = 20
	maxDonationsLimit     = 100
)

// DonationHandler serves the public feed of verified donations.
type DonationHandler struct {
	ledger repository.DonationLedger
}

// NewDonationHandler creates a new DonationHandler.
func NewDonationHandler(ledger repository.DonationLedger) *DonationHandler {
	return &DonationHandler{ledger: ledger}
}

// DonationResponse is the public view of a donation. Payer email is omitted.
type DonationResponse struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserPhoto string    `json:"userPhoto"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	PaymentID string    `json:"paymentId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListRecent handles GET /v1/donations
func (h *DonationHandler) ListRecent(c *gin.Context) {
	limit := defaultDonationsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid-argument", Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxDonationsLimit)
	}

	donations, err := h.ledger.ListRecent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Error: "Não foi possível carregar as doações."})
		return
	}

	response := make([]DonationResponse, 0, len(donations))
	for _, d := range donations {
		response = append(response, DonationResponse{
			UserID:    d.UserID,
			UserName:  d.UserName,
			UserPhoto: d.UserPhoto,
			Amount:    d.Amount,
			Status:    d.Status,
			PaymentID: d.PaymentID,
			CreatedAt: d.CreatedAt,
		})
	}

	respondJSON(c, http.StatusOK, response)
}
