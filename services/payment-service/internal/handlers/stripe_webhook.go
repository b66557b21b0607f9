package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/slotbook/slotbook/services/payment-service/internal/outbox"
	"github.com/slotbook/slotbook/services/payment-service/internal/storage"
)

// StripeWebhook handles Stripe webhooks (no JWT auth; the signature is
// the auth). The gateway exposes this path publicly.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stripeWebhookSecret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	occurredAt := time.Unix(evt.Created, 0).UTC()
	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", occurredAt.Format(time.RFC3339),
	)

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	// Idempotency: ignore replayed Stripe events.
	if err := h.repo.InsertProviderEvent(r.Context(), tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("payment provider event duplicate ignored", "provider_event_id", evt.ID, "event_type", evtType)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			_ = tx.Commit(r.Context())
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	if err := h.recordAudit(r.Context(), tx, r, "payments.provider.stripe.webhook", "provider", "", map[string]any{
		"provider_event_id": evt.ID,
		"event_type":        evtType,
		"occurred_at":       occurredAt.Format(time.RFC3339),
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}

	switch evtType {
	case "checkout.session.completed":
		if err := h.applyCheckoutOutcome(r.Context(), tx, evt.Data.Raw, occurredAt, true); err != nil {
			http.Error(w, "failed to apply checkout completion", http.StatusInternalServerError)
			return
		}
	case "checkout.session.expired":
		if err := h.applyCheckoutOutcome(r.Context(), tx, evt.Data.Raw, occurredAt, false); err != nil {
			http.Error(w, "failed to apply checkout expiry", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// applyCheckoutOutcome marks the stored session and enqueues the outbox
// event booking-service consumes. Sessions without our metadata are
// logged and skipped: they were not created by this service.
func (h *Handler) applyCheckoutOutcome(ctx context.Context, tx pgx.Tx, raw []byte, occurredAt time.Time, completed bool) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		h.logger.Error("stripe: invalid checkout session payload", "err", err)
		return nil
	}
	companyID := strings.TrimSpace(session.Metadata["company_id"])
	bookingID := strings.TrimSpace(session.Metadata["booking_id"])
	if companyID == "" || bookingID == "" {
		h.logger.Warn("stripe: missing metadata on checkout session (company_id/booking_id)", "stripe_session_id", session.ID)
		return nil
	}

	var markErr error
	var evt outbox.Event
	var evtErr error
	if completed {
		markErr = h.repo.MarkCheckoutSessionCompleted(ctx, tx, session.ID, occurredAt)
		evt, evtErr = outbox.CheckoutCompleted(companyID, bookingID, session.ID, occurredAt)
	} else {
		markErr = h.repo.MarkCheckoutSessionExpired(ctx, tx, session.ID, occurredAt)
		evt, evtErr = outbox.CheckoutExpired(companyID, bookingID, session.ID, occurredAt)
	}
	if markErr != nil {
		return markErr
	}
	if evtErr != nil {
		return evtErr
	}
	return h.outboxRepo.Insert(ctx, tx, evt)
}
