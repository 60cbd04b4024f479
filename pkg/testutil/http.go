// Package testutil holds helpers shared by handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest builds a request whose body is body marshaled to JSON.
// A nil body sends no payload and no Content-Type.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// WithBearer sets the Authorization header when token is not empty.
func WithBearer(req *http.Request, token string) *http.Request {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// DoRequest serves req with handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// DecodeResponse decodes the recorded body into a T.
func DecodeResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "failed to decode response: %s", rr.Body.String())
	return v
}

// AssertError checks the status and the "error" code of an error body.
func AssertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, "unexpected status: %s", rr.Body.String())
	body := DecodeResponse[map[string]string](t, rr)
	assert.Equal(t, code, body["error"], "unexpected error code")
}
