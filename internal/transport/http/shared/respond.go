// Package shared holds the response helpers every handler uses so error
// bodies stay uniform across modules.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "gatelog/pkg/domain-errors"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON serializes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a coded domain error to its HTTP status and writes the
// uniform envelope. Uncoded errors become opaque 500s; messages from coded
// errors are safe to surface.
func WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		WriteJSON(w, http.StatusInternalServerError, errorBody{
			Error:            string(dErrors.CodeInternal),
			ErrorDescription: "internal server error",
		})
		return
	}
	WriteJSON(w, dErrors.ToHTTPStatus(de.Code), errorBody{
		Error:            string(de.Code),
		ErrorDescription: de.Message,
	})
}
