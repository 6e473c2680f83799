package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestIDKeepsCallerID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromRequest(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	req.Header.Set("X-Request-Id", "caller-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "caller-7" {
		t.Fatalf("context id = %q, want caller's", seen)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "caller-7" {
		t.Fatalf("response id = %q, want caller's", got)
	}
}

func TestWithRequestIDMintsWhenAbsent(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromRequest(r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages", nil))

	if seen == "" {
		t.Fatalf("expected a minted id in the context")
	}
	if got := rec.Header().Get("X-Request-Id"); got != seen {
		t.Fatalf("header id %q differs from context id %q", got, seen)
	}
}

func TestRequestIDAbsentWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	if got := RequestIDFromRequest(req); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
