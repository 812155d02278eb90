// Package apierr maps named error kinds to HTTP status codes and a stable
// JSON error body, carrying sentinel errors up to the HTTP edge rather than
// choosing status codes ad hoc per handler.
package apierr

import (
	"encoding/json"
	"net/http"
)

type Kind string

const (
	BadRequest      Kind = "BadRequest"
	NotFound        Kind = "NotFound"
	PayloadTooLarge Kind = "PayloadTooLarge"
	QueueFull       Kind = "QueueFull"
	NoHealthyNodes  Kind = "NoHealthyNodes"
	UpstreamTimeout Kind = "UpstreamTimeout"
	UpstreamError   Kind = "UpstreamError"
	BusUnavailable  Kind = "BusUnavailable"
	RuntimeFailure  Kind = "RuntimeFailure"
	ConfigInvalid   Kind = "ConfigInvalid"
	Internal        Kind = "Internal"
)

// Error is a typed API error carrying a stable kind and a human message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var statusByKind = map[Kind]int{
	BadRequest:      http.StatusBadRequest,
	NotFound:        http.StatusNotFound,
	PayloadTooLarge: http.StatusRequestEntityTooLarge,
	QueueFull:       http.StatusServiceUnavailable,
	NoHealthyNodes:  http.StatusServiceUnavailable,
	UpstreamTimeout: http.StatusGatewayTimeout,
	UpstreamError:   http.StatusBadGateway,
	BusUnavailable:  http.StatusServiceUnavailable,
	RuntimeFailure:  http.StatusInternalServerError,
	ConfigInvalid:   http.StatusInternalServerError,
	Internal:        http.StatusInternalServerError,
}

func StatusFor(kind Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Write renders err as the standard JSON error body with the matching HTTP
// status code.
func Write(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(err.Kind))
	json.NewEncoder(w).Encode(map[string]string{
		"error":   string(err.Kind),
		"message": err.Message,
	})
}
