package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes returned in the "error_code" field.
const (
	CodeAuthRequired   = "AUTH_REQUIRED"
	CodeAuthInvalid    = "AUTH_INVALID"
	CodeAuthExpired    = "AUTH_EXPIRED"
	CodeUserDisabled   = "USER_DISABLED"
	CodeUserExists     = "USER_EXISTS"
	CodeValidation     = "VALIDATION_ERROR"
	CodeRefreshMissing = "REFRESH_MISSING"
	CodeRefreshInvalid = "REFRESH_INVALID"
	CodeRefreshReused  = "REFRESH_REUSED"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
	CodeNotInitialized = "SERVICE_NOT_INITIALIZED"
)

type errorDetail struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: errorDetail{ErrorCode: code, Message: message}})
}
