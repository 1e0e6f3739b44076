// Package testutil provides helpers shared by the HTTP handler tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewLocalRequest builds a test request that reports a loopback remote
// address. The debug routes are guarded by tsweb, which only serves local
// callers, and httptest's default RemoteAddr is not loopback.
func NewLocalRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "127.0.0.1:54321"
	return req
}
