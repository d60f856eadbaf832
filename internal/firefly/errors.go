package firefly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/dvloznov/papermes/internal/apperrors"
)

// APIError is returned for every failed ledger call. StatusCode is zero when the
// request never got a response (connection failure, DNS, timeout).
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
	Err        error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// HasStatus reports whether the ledger itself reported the error.
func (e *APIError) HasStatus() bool {
	return e.StatusCode != 0
}

func (e *APIError) Is(target error) bool {
	switch target {
	case apperrors.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case apperrors.ErrDuplicate:
		return e.HasStatus() && strings.Contains(strings.ToLower(e.Message), "duplicate")
	}
	return false
}

// parseError builds an APIError from an error response. The reason is taken from
// the "message" field, then "error", then the raw body, then "HTTP <status>".
func parseError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: body}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"message", "error"} {
			if msg, ok := payload[key].(string); ok && strings.TrimSpace(msg) != "" {
				apiErr.Message = msg
				return apiErr
			}
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		apiErr.Message = text
		return apiErr
	}

	apiErr.Message = fmt.Sprintf("HTTP %d", status)
	return apiErr
}

// transportError wraps a failure that happened before a response was received.
func transportError(err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Message: "request timed out", Err: err}
	}
	return &APIError{Message: fmt.Sprintf("request failed: %v", err), Err: err}
}
