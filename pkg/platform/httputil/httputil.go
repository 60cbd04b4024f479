package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "verity/pkg/domain-errors"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders a coded error. Internal errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.Description = de.Message
		}
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// DecodeJSON decodes a bounded request body into T. Unknown fields are rejected.
func DecodeJSON[T any](r *http.Request) (*T, error) {
	var v T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	return &v, nil
}
