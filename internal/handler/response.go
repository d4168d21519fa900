package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"donations/internal/repository"
	"donations/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// User-facing messages. Internal details are logged, never returned.
const (
	msgUnauthenticated = "Você precisa estar logado para fazer uma doação."
	msgInvalidAmount   = "O valor da doação deve ser maior que zero."
	msgInternal        = "Não foi possível gerar o PIX. Tente novamente."
	msgNotFound        = "Registro não encontrado."
)

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code, body := mapError(err)
	c.JSON(code, body)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapError maps service/repository errors to an HTTP status and a typed,
// localized body.
func mapError(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorResponse{Code: "unauthenticated", Error: msgUnauthenticated}

	case errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, ErrorResponse{Code: "invalid-argument", Error: msgInvalidAmount}

	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Code: "not-found", Error: msgNotFound}

	// Default to internal server error
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: "internal", Error: msgInternal}
	}
}
