package httpmw

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthOpenWithoutConfiguredToken(t *testing.T) {
	mw := New("", testLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/list", nil)

	mw.RequireAuth(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected an unconfigured gate to pass requests through, got %d", rec.Code)
	}
}

func TestRequireAuthRejectsMissingOrWrongToken(t *testing.T) {
	mw := New("expected-token", testLogger())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"matching token", "Bearer expected-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/list", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			mw.RequireAuth(okHandler()).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestCORSShortCircuitsPreflight(t *testing.T) {
	mw := New("", testLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/list", nil)

	mw.CORS(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected preflight to short-circuit with 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Errorf("expected CORS headers on the preflight response")
	}
}

func TestLoggingCapturesStatus(t *testing.T) {
	mw := New("", testLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)

	mw.Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected the wrapped status to propagate, got %d", rec.Code)
	}
}
