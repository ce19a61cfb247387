package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/reports/{id}/download",
		normalizePath("/api/reports/6f1c2b9e-4d3a-4b8e-9a7f-1e2d3c4b5a69/download"))
	assert.Equal(t, "/api/reports", normalizePath("/api/reports"))
}

func TestMiddleware_PassesResponseThrough(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("body"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/6f1c2b9e-4d3a-4b8e-9a7f-1e2d3c4b5a69", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "body", rec.Body.String())
}
