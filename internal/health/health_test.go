package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
		t.Errorf("Healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	var r Readiness

	tests := []struct {
		name     string
		set      func()
		wantCode int
		wantBody string
	}{
		{"zero value", func() {}, http.StatusServiceUnavailable, "not ready: starting\n"},
		{"check failed", func() { r.Set(false, "self-check failed") }, http.StatusServiceUnavailable, "not ready: self-check failed\n"},
		{"ready", func() { r.Set(true, "") }, http.StatusOK, "ready\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.set()
			w := httptest.NewRecorder()
			r.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if got := w.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}
