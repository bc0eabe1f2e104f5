// Package handlers provides HTTP handler implementations for the chat API.
//
// This file defines the response helpers shared by all endpoints: the
// structured error body, the legacy Ok/Err result envelope, and the mapping
// from service error kinds to HTTP status codes.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{ "request_id": "123e4567-…", "code": "not_found", "message": "chat not found" }
//
// Example legacy envelopes:
//
//	{"Ok": null}
//	{"Ok": "1"}
//	{"Err": { "request_id": "…", "code": "conflict", "message": "chat name taken: conflict" }}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-queue/internal/http/middleware"
	"github.com/tbourn/go-chat-queue/internal/services"
)

// ErrorResponse is the structured error body.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"chat not found"`
}

// OkResult is the legacy success envelope.
type OkResult struct {
	Ok any `json:"Ok" swaggertype:"string" example:"1"`
}

// ErrResult is the legacy failure envelope. Err is either an ErrorResponse
// or, on account creation, the literal "0".
type ErrResult struct {
	Err any `json:"Err"`
}

// Legacy boolean literals.
const (
	legacyTrue  = "1"
	legacyFalse = "0"
)

func newError(c *gin.Context, status int, code, msg string) ErrorResponse {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	return ErrorResponse{RequestID: middleware.GetRequestID(c), Code: code, Message: msg}
}

// fail aborts with a structured error body. 5xx are logged.
func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, newError(c, status, code, msg))
}

// Fail is the exported variant of fail, used by the router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error to a status and writes a structured body.
func failErr(c *gin.Context, err error) {
	status, code, msg := classify(c, err)
	fail(c, status, code, msg)
}

// failLegacy maps a service error and writes it inside {"Err": …}.
func failLegacy(c *gin.Context, err error) {
	status, code, msg := classify(c, err)
	c.AbortWithStatusJSON(status, ErrResult{Err: newError(c, status, code, msg)})
}

// classify maps the service error kinds to HTTP. Messages of internal
// errors are not echoed; the cause goes to the log instead.
func classify(c *gin.Context, err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrInvalid):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, err.Error()
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, ErrCodeConflict, err.Error()
	case errors.Is(err, services.ErrTransient):
		c.Header("Retry-After", "1")
		middleware.LoggerFrom(c).Warn().Err(err).Msg("transient storage error")
		return http.StatusServiceUnavailable, ErrCodeUnavailable, "temporarily unavailable, retry"
	default:
		_ = c.Error(err)
		return http.StatusInternalServerError, ErrCodeInternal, "internal error"
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func okLegacy(c *gin.Context, status int, v any) {
	c.JSON(status, OkResult{Ok: v})
}

func legacyBool(b bool) string {
	if b {
		return legacyTrue
	}
	return legacyFalse
}
