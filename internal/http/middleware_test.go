package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireCompany(t *testing.T) {
	t.Parallel()

	t.Run("rejects requests without the company header", func(t *testing.T) {
		t.Parallel()

		handler := RequireCompany(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("next handler should not run without a company header")
		}))

		req := httptest.NewRequest(http.MethodGet, "/trips", nil)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", recorder.Code)
		}
		var body errorResponse
		if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Message == "" {
			t.Fatal("expected an error message")
		}
	})

	t.Run("injects the company identifier into the context", func(t *testing.T) {
		t.Parallel()

		var got string
		handler := RequireCompany(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = CompanyIDFromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/trips", nil)
		req.Header.Set("X-Company-ID", "  carrier-7  ")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if got != "carrier-7" {
			t.Fatalf("expected trimmed company id, got %q", got)
		}
	})
}

func TestRequestLoggerAttachesLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var sawLogger bool
	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = LoggerFromContext(r.Context()) != nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/routes", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !sawLogger {
		t.Fatal("expected a request scoped logger in the context")
	}
	if !bytes.Contains(buf.Bytes(), []byte("request started")) {
		t.Fatal("expected the request start to be logged")
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"path":"/routes"`)) {
		t.Fatalf("expected the path attribute in log output, got %s", buf.String())
	}
}
