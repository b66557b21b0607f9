package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slotbook/slotbook/services/booking-service/internal/availability"
	"github.com/slotbook/slotbook/services/booking-service/internal/engine"
	"github.com/slotbook/slotbook/services/booking-service/internal/policy"
)

type fakeEngineStore struct {
	services map[string]engine.Service
	eligible map[string]bool
	busy     []availability.Interval
}

func (f *fakeEngineStore) ServiceByID(_ context.Context, _, serviceID string) (engine.Service, error) {
	svc, ok := f.services[serviceID]
	if !ok {
		return engine.Service{}, engine.ErrNotFound
	}
	return svc, nil
}

func (f *fakeEngineStore) ProviderEligible(_ context.Context, _, providerID, serviceID string) (bool, error) {
	return f.eligible[providerID+"/"+serviceID], nil
}

func (f *fakeEngineStore) BlockingBookings(context.Context, string, time.Time, time.Time) ([]availability.Interval, error) {
	return f.busy, nil
}

type fakePolicies struct {
	hours map[time.Weekday][]policy.ClockRange
}

func (f *fakePolicies) Resolve(context.Context, string) (policy.Policy, error) {
	return policy.Policy{MaxAdvance: 30 * 24 * time.Hour, Location: time.UTC}, nil
}

func (f *fakePolicies) WorkingHours(_ context.Context, _ string, wd time.Weekday) ([]policy.ClockRange, error) {
	return f.hours[wd], nil
}

func newTestHandler() *BookingHandler {
	store := &fakeEngineStore{
		services: map[string]engine.Service{
			"svc-1": {ID: "svc-1", CompanyID: "co-1", Duration: 30 * time.Minute, Active: true, Public: true},
		},
		eligible: map[string]bool{"prov-1/svc-1": true},
	}
	policies := &fakePolicies{hours: map[time.Weekday][]policy.ClockRange{
		time.Monday: {{Start: "09:00", End: "17:00"}},
	}}
	eng := engine.New(store, policies, func() time.Time {
		return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBookingHandler(nil, nil, eng, logger)
}

func TestSlotsRequiresParams(t *testing.T) {
	h := newTestHandler()

	tests := []string{
		"/api/v1/public/slots",
		"/api/v1/public/slots?provider_id=prov-1&service_id=svc-1",
		"/api/v1/public/slots?provider_id=prov-1&date=2026-03-02",
	}
	for _, target := range tests {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("X-Company-Id", "co-1")
		rec := httptest.NewRecorder()
		h.Slots(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", target, rec.Code)
		}
	}
}

func TestSlotsHappyPath(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&service_id=svc-1&date=2026-03-02", nil)
	req.Header.Set("X-Company-Id", "co-1")
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 31 || len(resp.Slots) != 31 {
		t.Fatalf("count = %d, slots = %d, want 31", resp.Count, len(resp.Slots))
	}
	if resp.Slots[0].StartTime != "2026-03-02T09:00:00Z" {
		t.Fatalf("first slot %s", resp.Slots[0].StartTime)
	}
	if resp.Slots[30].EndTime != "2026-03-02T17:00:00Z" {
		t.Fatalf("last slot end %s", resp.Slots[30].EndTime)
	}
}

func TestSlotsDayOffReturnsEmptyList(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&service_id=svc-1&date=2026-03-03", nil)
	req.Header.Set("X-Company-Id", "co-1")
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 || resp.Slots == nil {
		t.Fatalf("want empty (not null) slot list, got %s", rec.Body.String())
	}
}

func TestSlotsUnknownService(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&service_id=nope&date=2026-03-02", nil)
	req.Header.Set("X-Company-Id", "co-1")
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
}

func TestSlotsInvalidDate(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&service_id=svc-1&date=03-02-2026", nil)
	req.Header.Set("X-Company-Id", "co-1")
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestCreateValidation(t *testing.T) {
	h := newTestHandler()

	tests := []struct {
		name string
		hdr  string
		body string
		want int
	}{
		{"missing company", "", `{"provider_id":"p","service_id":"s","start_time":"2026-03-02T14:00:00Z","client_name":"Jo","client_email":"jo@x.io"}`, http.StatusBadRequest},
		{"bad json", "co-1", `{`, http.StatusBadRequest},
		{"missing fields", "co-1", `{"provider_id":"p"}`, http.StatusBadRequest},
		{"bad start", "co-1", `{"provider_id":"p","service_id":"s","start_time":"tomorrow","client_name":"Jo","client_email":"jo@x.io"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(tt.body))
		if tt.hdr != "" {
			req.Header.Set("X-Company-Id", tt.hdr)
		}
		rec := httptest.NewRecorder()
		h.Create(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/status",
		strings.NewReader(`{"booking_id":"b-1","status":"TELEPORTED"}`))
	req.Header.Set("X-Company-Id", "co-1")
	rec := httptest.NewRecorder()
	h.UpdateStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/slots", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("slots: got %d, want 405", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/book", nil)
	rec = httptest.NewRecorder()
	h.Create(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("create: got %d, want 405", rec.Code)
	}
}
