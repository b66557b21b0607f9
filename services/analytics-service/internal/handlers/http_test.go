package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestQueryWindowValidation(t *testing.T) {
	h := New(nil)

	tests := []struct {
		name   string
		header string
		query  string
	}{
		{"missing company", "", ""},
		{"bad from", "co-1", "?from=yesterday"},
		{"bad to", "co-1", "?to=2026/01/01"},
		{"inverted range", "co-1", "?from=2026-02-01&to=2026-01-01"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/daily"+tt.query, nil)
		if tt.header != "" {
			req.Header.Set("X-Company-Id", tt.header)
		}
		rec := httptest.NewRecorder()
		if _, _, _, ok := h.queryWindow(rec, req); ok {
			t.Errorf("%s: expected rejection", tt.name)
			continue
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestQueryWindowDefaultsToThirtyDays(t *testing.T) {
	h := New(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/daily", nil)
	req.Header.Set("X-Company-Id", "co-1")
	rec := httptest.NewRecorder()

	companyID, from, to, ok := h.queryWindow(rec, req)
	if !ok {
		t.Fatalf("expected ok, got %d", rec.Code)
	}
	if companyID != "co-1" {
		t.Fatalf("companyID = %q", companyID)
	}
	if from == "" || to == "" || from > to {
		t.Fatalf("bad default window: from=%q to=%q", from, to)
	}
}
