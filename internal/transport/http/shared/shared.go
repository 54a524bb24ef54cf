// Package shared centralizes JSON response and error envelope helpers so
// every handler speaks the same shape.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "linknet/pkg/domain-errors"
)

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError translates a domain error into the JSON error envelope. Unknown
// errors collapse to a 500 without leaking internals.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	message := "internal error"

	var de *dErrors.Error
	if errors.As(err, &de) {
		code = de.Code
		message = de.Message
	}

	WriteJSON(w, dErrors.ToHTTPStatus(code), map[string]any{
		"error":     string(code),
		"message":   message,
		"retryable": dErrors.Retryable(err),
	})
}
