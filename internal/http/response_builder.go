// Package http exposes the notification engine as a JSON API.
//
// This file implements the builder used by every handler to write JSON
// responses with a consistent error envelope.

package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"finwatch/internal/middleware/trace"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *ResponseBuilder) Body(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"internal_error","message":"failed to encode response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(data, '\n'))
}

// ErrorBody is the envelope for every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse creates a standard error response. The request id, when
// known, is echoed so clients can quote it.
func ErrorResponse(r *http.Request, statusCode int, code, message string) *ResponseBuilder {
	detail := ErrorDetail{Code: code, Message: sanitizeInput(message)}
	if r != nil {
		detail.RequestID = trace.GetRequestID(r.Context())
	}
	return NewJSONResponse().Status(statusCode).Body(ErrorBody{Error: detail})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(r *http.Request, message string) *ResponseBuilder {
	return ErrorResponse(r, http.StatusBadRequest, "bad_request", message)
}

// UnauthorizedError creates a 401 response with a bearer challenge.
func UnauthorizedError(r *http.Request, message string) *ResponseBuilder {
	return ErrorResponse(r, http.StatusUnauthorized, "unauthenticated", message).
		Header("WWW-Authenticate", `Bearer realm="finwatch"`)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(r *http.Request, message string) *ResponseBuilder {
	return ErrorResponse(r, http.StatusNotFound, "not_found", message)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError(r *http.Request) *ResponseBuilder {
	return ErrorResponse(r, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Please try again later.")
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(r *http.Request, message string) *ResponseBuilder {
	return ErrorResponse(r, http.StatusInternalServerError, "internal_error", message)
}

// ServiceUnavailableError creates a 503 response.
func ServiceUnavailableError(r *http.Request, message string) *ResponseBuilder {
	return ErrorResponse(r, http.StatusServiceUnavailable, "unavailable", message)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
