package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slotbook/slotbook/services/company-service/internal/rates"
)

func TestPutSettingsValidation(t *testing.T) {
	h := New(nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"negative buffer", `{"buffer_time_minutes":-5,"min_advance_minutes":60,"max_advance_minutes":120}`},
		{"negative min advance", `{"min_advance_minutes":-1,"max_advance_minutes":120}`},
		{"max not above min", `{"min_advance_minutes":120,"max_advance_minutes":120}`},
		{"max below min", `{"min_advance_minutes":120,"max_advance_minutes":60}`},
		{"unknown timezone", `{"min_advance_minutes":60,"max_advance_minutes":120,"timezone":"Mars/Olympus"}`},
		{"bad currency", `{"min_advance_minutes":60,"max_advance_minutes":120,"currency":"EURO"}`},
		{"bad json", `{`},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/company/settings", strings.NewReader(tt.body))
		req.Header.Set("X-Company-Id", "co-1")
		rec := httptest.NewRecorder()
		h.Settings(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestSettingsRequiresCompanyHeader(t *testing.T) {
	h := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/company/settings", nil)
	rec := httptest.NewRecorder()
	h.Settings(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestCreateServiceValidation(t *testing.T) {
	h := New(nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"duration_minutes":30}`},
		{"zero duration", `{"name":"Cut","duration_minutes":0}`},
		{"oversized duration", `{"name":"Cut","duration_minutes":2000}`},
		{"negative price", `{"name":"Cut","duration_minutes":30,"price":-1}`},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/services", strings.NewReader(tt.body))
		req.Header.Set("X-Company-Id", "co-1")
		rec := httptest.NewRecorder()
		h.Services(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestWorkingHoursValidation(t *testing.T) {
	h := New(nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"weekday out of range", `{"hours":[{"weekday":7,"start_time":"09:00","end_time":"17:00"}]}`},
		{"bad start format", `{"hours":[{"weekday":1,"start_time":"9:00","end_time":"17:00"}]}`},
		{"bad end format", `{"hours":[{"weekday":1,"start_time":"09:00","end_time":"17h00"}]}`},
		{"start not before end", `{"hours":[{"weekday":1,"start_time":"17:00","end_time":"09:00"}]}`},
		{"equal start end", `{"hours":[{"weekday":1,"start_time":"09:00","end_time":"09:00"}]}`},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/providers/hours?provider_id=prov-1", strings.NewReader(tt.body))
		req.Header.Set("X-Company-Id", "co-1")
		rec := httptest.NewRecorder()
		h.WorkingHours(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestWorkingHoursRequiresProviderID(t *testing.T) {
	h := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers/hours", nil)
	req.Header.Set("X-Company-Id", "co-1")
	rec := httptest.NewRecorder()
	h.WorkingHours(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestRatesEndpoint(t *testing.T) {
	cache := rates.NewCache("", time.Hour, nil)
	h := New(nil, cache)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rates", nil)
	rec := httptest.NewRecorder()
	h.Rates(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"EUR":1`) {
		t.Fatalf("missing base rate: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"stale":true`) {
		t.Fatalf("fallback table should be marked stale: %s", rec.Body.String())
	}
}

func TestClockMinutes(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"00:00", 0, true},
		{"09:30", 570, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"12:60", 0, false},
		{"9:00", 0, false},
		{"ab:cd", 0, false},
	}
	for _, tt := range tests {
		got, ok := clockMinutes(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("clockMinutes(%q) = %d,%v; want %d,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
