// Package http serves the JSON API.
//
// Every response uses one envelope: {success, message, data, error_kind,
// timestamp}. ResponseBuilder constructs it and writeError maps the error
// taxonomy to status codes in one place.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"spendtracker/internal/core"
	applog "spendtracker/internal/log"
)

type Envelope struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	ErrorKind core.Kind `json:"error_kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ResponseBuilder is a fluent builder for envelope responses.
type ResponseBuilder struct {
	statusCode int
	envelope   Envelope
	headers    map[string]string
}

func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		envelope:   Envelope{Success: true},
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	b.envelope.Success = code < 400
	return b
}

func (b *ResponseBuilder) Message(msg string) *ResponseBuilder {
	b.envelope.Message = msg
	return b
}

func (b *ResponseBuilder) Data(v any) *ResponseBuilder {
	b.envelope.Data = v
	return b
}

func (b *ResponseBuilder) Kind(k core.Kind) *ResponseBuilder {
	b.envelope.ErrorKind = k
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json")
	b.envelope.Timestamp = time.Now().UTC()
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.envelope)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	NewResponse().Message(message).Data(data).Write(w)
}

func writeCreated(w http.ResponseWriter, message string, data any) {
	NewResponse().Status(http.StatusCreated).Message(message).Data(data).Write(w)
}

// ErrorResponse builds a failed envelope.
func ErrorResponse(statusCode int, kind core.Kind, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).Kind(kind).Message(message)
}

const (
	msgInternal    = "Internal server error"
	msgUnavailable = "Service temporarily unavailable, please retry"
)

// StatusFor maps err to an HTTP status.
func StatusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindConflict:
		return http.StatusConflict
	}
	if core.IsRetryable(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var sentinels = map[core.Kind]error{
	core.KindValidation:   core.ErrValidation,
	core.KindNotFound:     core.ErrNotFound,
	core.KindUnauthorized: core.ErrUnauthorized,
	core.KindConflict:     core.ErrConflict,
}

// publicMessage returns the reason text after the sentinel, dropping the
// operation prefixes added while wrapping.
func publicMessage(kind core.Kind, err error) string {
	sentinel, ok := sentinels[kind]
	if !ok {
		return msgInternal
	}
	msg := err.Error()
	marker := sentinel.Error() + ": "
	if i := strings.Index(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return sentinel.Error()
}

// writeError logs err and writes the matching envelope. Infrastructure
// details stay in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := StatusFor(err)
	logger := applog.FromContext(r.Context())

	if kind != core.KindInternal {
		logger.WarnContext(r.Context(), "Request rejected",
			applog.FieldErrorKind, kind,
			applog.FieldError, err.Error(),
			applog.FieldPath, r.URL.Path)
		ErrorResponse(status, kind, publicMessage(kind, err)).Write(w)
		return
	}

	msg := msgInternal
	if status == http.StatusServiceUnavailable {
		msg = msgUnavailable
		w.Header().Set("Retry-After", "1")
	}
	logger.ErrorContext(r.Context(), "Request failed",
		applog.FieldErrorKind, kind,
		applog.FieldError, err.Error(),
		applog.FieldPath, r.URL.Path,
		"retryable", errors.Is(err, core.ErrUnavailable))
	ErrorResponse(status, kind, msg).Write(w)
}
