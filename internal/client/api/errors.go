package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized: credentials or token rejected (401/403).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable: server unreachable, timed out or failing (5xx, 408, 429).
	ErrUnavailable = errors.New("server unavailable")
	// ErrRejected: request refused for another reason (validation, duplicate account).
	ErrRejected = errors.New("request rejected")
	// ErrTwoFactorRequired: credentials accepted but a second factor is needed,
	// which this client does not support.
	ErrTwoFactorRequired = errors.New("two-factor authentication required")
	// ErrMalformedResponse: 2xx with a body that does not match the contract.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError describes a non-2xx response. It unwraps to one of the
// sentinel errors above.
type StatusError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.kind, e.StatusCode)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", e.kind, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

// NewStatusError reads (and closes) resp.Body to build a StatusError.
func NewStatusError(resp *http.Response) *StatusError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	return &StatusError{
		StatusCode: resp.StatusCode,
		Message:    serverMessage(body),
		kind:       kindForStatus(resp.StatusCode),
	}
}

func kindForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}

// serverMessage pulls a human message out of the usual error bodies
// ({"message": ...} or {"error": ...}), falling back to the raw text.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// mapTransportError classifies errors from http.Client.Do. Cancellation by the
// caller is passed through; everything else means the server is unreachable.
func mapTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
