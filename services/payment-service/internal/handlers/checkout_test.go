package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestHandler(cfg Config) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(nil, nil, logger, cfg)
}

func TestCheckoutNotConfigured(t *testing.T) {
	h := newTestHandler(Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/checkout",
		strings.NewReader(`{"booking_id":"b-1"}`))
	req.Header.Set("X-Company-Id", "co-1")
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("got %d, want 501", rec.Code)
	}
}

func TestCheckoutValidation(t *testing.T) {
	h := newTestHandler(Config{StripeSecretKey: "sk_test_x"})

	tests := []struct {
		name string
		hdr  string
		body string
	}{
		{"missing company", "", `{"booking_id":"b-1"}`},
		{"bad json", "co-1", `{`},
		{"missing booking", "co-1", `{}`},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/checkout", strings.NewReader(tt.body))
		if tt.hdr != "" {
			req.Header.Set("X-Company-Id", tt.hdr)
		}
		rec := httptest.NewRecorder()
		h.Checkout(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestWebhookRequiresConfigAndSignature(t *testing.T) {
	h := newTestHandler(Config{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured: got %d, want 503", rec.Code)
	}

	h = newTestHandler(Config{StripeWebhookSecret: "whsec_test"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	h.StripeWebhook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no signature: got %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec = httptest.NewRecorder()
	h.StripeWebhook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad signature: got %d, want 400", rec.Code)
	}
}

func TestAckCheckoutReturnValidation(t *testing.T) {
	h := newTestHandler(Config{})

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing session", `{"state":"tok","result":"success"}`},
		{"missing state", `{"session_id":"cs_1","result":"success"}`},
		{"bad result", `{"session_id":"cs_1","state":"tok","result":"maybe"}`},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/checkout/ack", strings.NewReader(tt.body))
		rec := httptest.NewRecorder()
		h.AckCheckoutReturn(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestWithQueryParam(t *testing.T) {
	if got := withQueryParam("https://x.io/done", "state", "a b"); got != "https://x.io/done?state=a+b" {
		t.Fatalf("got %s", got)
	}
	if got := withQueryParam("https://x.io/done?k=v", "state", "tok"); got != "https://x.io/done?k=v&state=tok" {
		t.Fatalf("got %s", got)
	}
}
