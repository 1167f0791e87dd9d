package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/service"
)

// ErrorResponse represents an error response. Clients branch on Code; the
// message text is display-only.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	kind, reason := service.Describe(err)
	c.JSON(statusForKind(kind), ErrorResponse{Code: string(kind), Message: reason})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// statusForKind maps error kinds to HTTP status codes.
func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict, service.KindInvalidState, service.KindFull:
		return http.StatusConflict
	case service.KindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
