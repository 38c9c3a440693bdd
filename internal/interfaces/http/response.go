package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/receipt-scan/internal/domain/entity"
)

// UserIDHeader carries the caller's identity, set by the fronting auth proxy
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// Response is the success envelope
type Response struct {
	Data interface{} `json:"data"`
}

// ErrorBody describes a failed request
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the failure envelope
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// requireUser rejects requests without an owner
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing "+UserIDHeader+" header")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Data: data})
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// writeError maps domain errors onto status codes
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	var ve *entity.ValidationError
	switch {
	case errors.As(err, &ve):
		abort(c, http.StatusUnprocessableEntity, ve.Code, ve.Message)
	case errors.Is(err, entity.ErrValidation):
		abort(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, entity.ErrNotFound):
		abort(c, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, entity.ErrForbidden):
		abort(c, http.StatusForbidden, "FORBIDDEN", "resource belongs to another user")
	case errors.Is(err, entity.ErrJobNotCancelable):
		abort(c, http.StatusConflict, "JOB_NOT_CANCELABLE", "job already finished")
	case errors.Is(err, entity.ErrJobNotReady):
		abort(c, http.StatusConflict, "JOB_NOT_READY", "job has not completed")
	default:
		h.logger.Error("Request failed", "op", op, "error", err)
		abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
