package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harshangpate/hospital-crm/internal/application/service"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

var statusByCode = map[string]int{
	service.CodeInvalidState:           http.StatusConflict,
	service.CodeConcurrentModification: http.StatusConflict,
	service.CodeInvoiceAlreadyPaid:     http.StatusConflict,
	service.CodeBedUnavailable:         http.StatusConflict,
	service.CodeBedNotFound:            http.StatusUnprocessableEntity,
	service.CodeAmbiguousTransition:    http.StatusUnprocessableEntity,
	service.CodeInvalidTarget:          http.StatusUnprocessableEntity,
	service.CodeInvalidEntityType:      http.StatusBadRequest,
	service.CodeInvalidRequest:         http.StatusBadRequest,
	service.CodeNotFound:               http.StatusNotFound,
	service.CodeMissingActor:           http.StatusUnauthorized,
	service.CodeCollaboratorFailed:     http.StatusBadGateway,
}

// StatusFor maps a service error to an HTTP status and stable code
func StatusFor(err error) (int, string) {
	code := service.ErrorCode(err)
	if status, ok := statusByCode[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, service.CodeInternal
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Code: service.CodeInvalidRequest})
}

func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "error", err)
		msg = "internal error"
	}
	c.JSON(status, Response{Success: false, Error: msg, Code: code})
}
