package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the error envelope of every failed API call.
type ErrorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// ResultBody acknowledges a write operation.
type ResultBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AppError represents a structured application error with HTTP status.
type AppError struct {
	HTTPStatus int    // HTTP status code (e.g. 400, 404, 500)
	Message    string // Human-readable error message
	Details    any    // Optional payload, e.g. the upstream error body
}

func (e *AppError) Error() string {
	return e.Message
}

// Pre-defined error constructors

func NewBadRequest(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusBadRequest, Message: msg}
}

func NewUnauthorized(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusUnauthorized, Message: msg}
}

func NewBadGateway(msg string, details any) *AppError {
	return &AppError{HTTPStatus: http.StatusBadGateway, Message: msg, Details: details}
}

func NewGatewayTimeout(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusGatewayTimeout, Message: msg}
}

// NewUpstream passes an upstream status code through unchanged.
func NewUpstream(status int, msg string, details any) *AppError {
	return &AppError{HTTPStatus: status, Message: msg, Details: details}
}

func NewServerError(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusInternalServerError, Message: msg}
}

// --- Gin response helpers ---

// JSON sends a 200 OK response with data as the body.
func JSON(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// RawJSON sends a 200 OK response with an already encoded JSON body.
func RawJSON(c *gin.Context, body []byte) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// Result sends a {success, message} acknowledgement.
func Result(c *gin.Context, status int, success bool, msg string) {
	c.JSON(status, ResultBody{Success: success, Message: msg})
}

// Error sends an error response. If err is an *AppError, its status and
// details are used; otherwise a generic 500 internal server error is returned.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		c.AbortWithStatusJSON(appErr.HTTPStatus, ErrorBody{
			Error:   appErr.Message,
			Details: appErr.Details,
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorBody{
		Error: err.Error(),
	})
}

// Convenience error response functions

func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorBody{Error: msg})
}

func ServerError(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorBody{Error: msg})
}
