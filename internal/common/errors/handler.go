// internal/common/errors/handler.go
package errors

import (
	"encoding/json"
	"net/http"
	"time"
)

// HTTPHandler translates errors into HTTP responses with a stable envelope.
type HTTPHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

func NewHTTPHandler(logger Logger) *HTTPHandler {
	return &HTTPHandler{logger: logger}
}

// errorEnvelope is the wire shape of every error response.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code             ErrorCode   `json:"code"`
	Message          string      `json:"message"`
	Details          string      `json:"details,omitempty"`
	MissingSteps     interface{} `json:"missingSteps,omitempty"`
	ValidationErrors interface{} `json:"validationErrors,omitempty"`
}

// HTTPStatus maps error codes to HTTP status codes.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidStep, ErrCodeValidationFailed, ErrCodeIncompleteApplication:
		return http.StatusBadRequest
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodePreconditionFailed, ErrCodeInvalidTransition, ErrCodeConflict, ErrCodeVersionConflict:
		return http.StatusConflict
	case ErrCodeUploadFailed:
		return http.StatusBadGateway
	case ErrCodeDatabaseQueryFailed, ErrCodeDatabaseInsertFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError normalizes err to a StandardError, logs it, and writes the
// JSON envelope with the mapped status code.
func (h *HTTPHandler) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := h.normalizeError(err)
	status := HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"code":   stdErr.Code,
		"status": status,
		"path":   r.URL.Path,
		"method": r.Method,
	}
	if stdErr.Details != "" {
		fields["details"] = stdErr.Details
	}
	if status >= 500 {
		h.logger.Error(stdErr.Message, fields)
	} else {
		h.logger.Warn(stdErr.Message, fields)
	}

	body := errorBody{
		Code:    stdErr.Code,
		Message: stdErr.Message,
		Details: stdErr.Details,
	}
	if stdErr.Metadata != nil {
		body.MissingSteps = stdErr.Metadata["missingSteps"]
		body.ValidationErrors = stdErr.Metadata["validationErrors"]
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: body})
}

// normalizeError ensures we always have a StandardError.
func (h *HTTPHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
