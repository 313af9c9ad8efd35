package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/workhub/escrow-backend/internal/domain/aggregates"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// RespondDomainError maps aggregate error codes onto HTTP statuses.
// Errors without a code fall back to 400 because every uncoded failure
// in the write path is a request-shaped problem.
func RespondDomainError(c *gin.Context, err error) {
	code := domainagg.CodeOf(err)
	status := http.StatusBadRequest
	switch code {
	case domainagg.CodeValidation:
		status = http.StatusBadRequest
	case domainagg.CodeNotFound:
		status = http.StatusNotFound
	case domainagg.CodeConflict:
		status = http.StatusConflict
	case domainagg.CodeInvariantViolation:
		status = http.StatusUnprocessableEntity
	case domainagg.CodePreconditionFailed:
		status = http.StatusPreconditionFailed
	case domainagg.CodeRetryable:
		status = http.StatusServiceUnavailable
	case domainagg.CodeInternal, domainagg.CodeCompensationFailed:
		status = http.StatusInternalServerError
	}
	apiCode := string(code)
	if apiCode == "" {
		apiCode = "invalid_request"
	}
	RespondError(c, status, apiCode, err)
}
