package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIHeaders(t *testing.T) {
	for _, secure := range []bool{false, true} {
		rec := httptest.NewRecorder()
		h := NewAPIHeaders(secure).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/x", nil))

		want := map[string]string{
			"X-Content-Type-Options": "nosniff",
			"X-Frame-Options":        "DENY",
			"Cache-Control":          "no-store",
		}
		for k, v := range want {
			if got := rec.Header().Get(k); got != v {
				t.Errorf("secure=%v: %s = %q, want %q", secure, k, got, v)
			}
		}

		hsts := rec.Header().Get("Strict-Transport-Security")
		if secure && hsts == "" {
			t.Error("expected HSTS header when secure")
		}
		if !secure && hsts != "" {
			t.Errorf("unexpected HSTS header %q", hsts)
		}
	}
}
