package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"donations/internal/service"
)

const maxNotificationBody = 64 << 10

// WebhookHandler receives payment notifications from the provider.
type WebhookHandler struct {
	confirmationService *service.ConfirmationService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(confirmationService *service.ConfirmationService) *WebhookHandler {
	return &WebhookHandler{confirmationService: confirmationService}
}

// notificationBody is the JSON form some provider notifications use instead
// of query parameters.
type notificationBody struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  struct {
		ID string `json:"id"`
	} `json:"data"`
}

// HandleNotification handles GET|POST /v1/webhooks/mercadopago. The response
// is always 200 OK so the provider stops redelivering.
func (h *WebhookHandler) HandleNotification(c *gin.Context) {
	n := service.Notification{
		Topic:  c.Query("topic"),
		Type:   c.Query("type"),
		ID:     c.Query("id"),
		DataID: c.Query("data.id"),
	}

	if c.Request.Method == http.MethodPost && (!n.IsPayment() || n.PaymentID() == "") {
		mergeBody(c.Request.Body, &n)
	}

	h.confirmationService.HandleNotification(c.Request.Context(), n)

	c.String(http.StatusOK, "OK")
}

// mergeBody fills fields missing from the query string from a JSON body.
func mergeBody(body io.Reader, n *service.Notification) {
	if body == nil {
		return
	}
	var b notificationBody
	if err := json.NewDecoder(io.LimitReader(body, maxNotificationBody)).Decode(&b); err != nil {
		return
	}
	if n.Type == "" {
		n.Type = b.Type
	}
	if n.Topic == "" {
		n.Topic = b.Topic
	}
	if n.DataID == "" {
		n.DataID = b.Data.ID
	}
}
