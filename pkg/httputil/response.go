package httputil

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medihub/access-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

var statusByCode = map[errors.ErrorCode]int{
	errors.ErrNotFound:            http.StatusNotFound,
	errors.ErrBadRequest:          http.StatusBadRequest,
	errors.ErrUnauthorized:        http.StatusUnauthorized,
	errors.ErrForbidden:           http.StatusForbidden,
	errors.ErrInternal:            http.StatusInternalServerError,
	errors.ErrInvalidFormat:       http.StatusBadRequest,
	errors.ErrInvalidCode:         http.StatusBadRequest,
	errors.ErrExpired:             http.StatusGone,
	errors.ErrGenerationExhausted: http.StatusServiceUnavailable,
	errors.ErrTooManyRequests:     http.StatusTooManyRequests,
}

// StatusFor maps an application error code to an HTTP status.
func StatusFor(code errors.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithMessage sends a success response that only carries a message.
func RespondWithMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: message,
	})
}

// RespondWithError sends an error response. Internal details never reach the client.
func RespondWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := errors.ErrInternal
	message := "something went wrong"

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		code = appErr.Code
		status = StatusFor(appErr.Code)
		if appErr.Code != errors.ErrInternal {
			message = appErr.Message
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    status,
			Reason:  code.String(),
			Message: message,
		},
	})
}
