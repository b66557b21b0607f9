package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/slotbook/slotbook/services/booking-service/internal/engine"
	"github.com/slotbook/slotbook/services/booking-service/internal/model"
	"github.com/slotbook/slotbook/services/booking-service/internal/outbox"
	"github.com/slotbook/slotbook/services/booking-service/internal/storage"
)

type BookingHandler struct {
	repo       *storage.BookingRepository
	outboxRepo *outbox.Repository
	engine     *engine.Engine
	logger     *slog.Logger
	now        func() time.Time
}

func NewBookingHandler(repo *storage.BookingRepository, outboxRepo *outbox.Repository, eng *engine.Engine, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		engine:     eng,
		logger:     logger,
		now:        time.Now,
	}
}

type createBookingRequest struct {
	ProviderID  string `json:"provider_id"`
	ServiceID   string `json:"service_id"`
	StartTime   string `json:"start_time"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	Notes       string `json:"notes"`
}

type createBookingResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type cancelBookingResponse struct {
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at"`
}

type statusUpdateRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type statusUpdateResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type slotsResponse struct {
	Slots []slotItem `json:"slots"`
	Count int        `json:"count"`
}

type bookingItem struct {
	BookingID     string `json:"booking_id"`
	ProviderID    string `json:"provider_id"`
	ServiceID     string `json:"service_id"`
	ClientName    string `json:"client_name"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// Slots serves GET /api/v1/public/slots. Policy gates (day off, advance
// window) produce 200 with an empty list; only eligibility problems and
// infrastructure failures are errors.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromRequest(r)
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if companyID == "" || providerID == "" || serviceID == "" || date == "" {
		http.Error(w, "company id, provider_id, service_id, and date are required", http.StatusBadRequest)
		return
	}

	slots, err := h.engine.Availability(r.Context(), engine.Query{
		CompanyID:  companyID,
		ProviderID: providerID,
		ServiceID:  serviceID,
		Date:       date,
	})
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrServiceUnavailable):
			http.Error(w, "service unavailable for booking", http.StatusNotFound)
		case errors.Is(err, engine.ErrProviderNotEligible):
			http.Error(w, "provider not eligible for service", http.StatusNotFound)
		case errors.Is(err, engine.ErrInvalidDate):
			http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		default:
			h.logger.Error("availability computation failed", "err", err)
			http.Error(w, "failed to compute availability", http.StatusInternalServerError)
		}
		return
	}

	resp := slotsResponse{Slots: make([]slotItem, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	resp.Count = len(resp.Slots)
	writeJSON(w, http.StatusOK, resp)
}

// Create serves POST /api/v1/public/book. The commit path is: advisory
// lock on (provider, day), re-validate the slot against the tx-bound
// store, insert PENDING. The bookings exclusion constraint backstops the
// lock; both failure modes surface as 409.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromRequest(r)
	if companyID == "" {
		http.Error(w, "company id required", http.StatusBadRequest)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	if req.ProviderID == "" || req.ServiceID == "" || req.ClientName == "" || req.ClientEmail == "" {
		http.Error(w, "provider_id, service_id, client_name, and client_email are required", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, companyID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if exists && rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	if err := h.repo.AcquireSlotLock(ctx, tx, req.ProviderID, start.UTC().Format("2006-01-02")); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	txStore := storage.EngineStoreTx(tx)
	q := engine.Query{CompanyID: companyID, ProviderID: req.ProviderID, ServiceID: req.ServiceID}

	if err := h.engine.ValidateStart(ctx, txStore, q, start); err != nil {
		switch {
		case errors.Is(err, engine.ErrSlotTaken):
			h.respondError(ctx, tx, companyID, idempotencyKey, w, http.StatusConflict, "slot no longer available")
		case errors.Is(err, engine.ErrServiceUnavailable):
			h.respondError(ctx, tx, companyID, idempotencyKey, w, http.StatusNotFound, "service unavailable for booking")
		case errors.Is(err, engine.ErrProviderNotEligible):
			h.respondError(ctx, tx, companyID, idempotencyKey, w, http.StatusUnprocessableEntity, "provider not eligible for service")
		default:
			h.logger.Error("slot validation failed", "err", err)
			http.Error(w, "failed to validate slot", http.StatusInternalServerError)
		}
		return
	}

	svc, err := txStore.ServiceByID(ctx, companyID, req.ServiceID)
	if err != nil {
		http.Error(w, "failed to load service", http.StatusInternalServerError)
		return
	}

	booking := &model.Booking{
		CompanyID:     companyID,
		ProviderID:    req.ProviderID,
		ServiceID:     req.ServiceID,
		ClientName:    req.ClientName,
		ClientEmail:   req.ClientEmail,
		ClientPhone:   strings.TrimSpace(req.ClientPhone),
		Notes:         strings.TrimSpace(req.Notes),
		StartTime:     start,
		EndTime:       start.Add(svc.Duration),
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentPending,
	}

	id, err := h.repo.Create(ctx, tx, booking)
	if err != nil {
		if storage.IsConflict(err) {
			// The tx is aborted by the constraint violation, so the
			// idempotency outcome cannot be recorded here; a retry will
			// simply hit the same conflict.
			http.Error(w, "slot no longer available", http.StatusConflict)
			return
		}
		h.logger.Error("booking insert failed", "err", err)
		http.Error(w, "failed to create booking", http.StatusInternalServerError)
		return
	}
	booking.ID = id

	evt, err := outbox.BookingCreated(*booking)
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, evt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	respBody, err := json.Marshal(createBookingResponse{BookingID: id, Status: string(model.StatusPending)})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, companyID, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromRequest(r)
	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.Reason = strings.TrimSpace(req.Reason)
	if companyID == "" || req.BookingID == "" {
		http.Error(w, "company id and booking_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := h.repo.GetForUpdate(ctx, tx, companyID, req.BookingID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load booking", http.StatusInternalServerError)
		return
	}

	// Repeated cancels are idempotent.
	if booking.Status == model.StatusCancelled && booking.CancelledAt != nil {
		writeJSON(w, http.StatusOK, cancelBookingResponse{
			BookingID:   booking.ID,
			Status:      string(booking.Status),
			CancelledAt: booking.CancelledAt.UTC().Format(time.RFC3339),
		})
		return
	}

	if err := booking.Transition(model.StatusCancelled, h.now().UTC()); err != nil {
		http.Error(w, "booking cannot be cancelled", http.StatusConflict)
		return
	}
	booking.CancelReason = req.Reason

	if err := h.repo.UpdateStatus(ctx, tx, &booking); err != nil {
		http.Error(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}

	evt, err := outbox.BookingCancelled(booking, req.Reason)
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, evt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cancelBookingResponse{
		BookingID:   booking.ID,
		Status:      string(booking.Status),
		CancelledAt: booking.CancelledAt.UTC().Format(time.RFC3339),
	})
}

// UpdateStatus serves explicit lifecycle transitions (confirm, complete,
// no-show). Illegal edges are 409 with a stable message.
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromRequest(r)
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	target := model.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	if companyID == "" || req.BookingID == "" {
		http.Error(w, "company id and booking_id required", http.StatusBadRequest)
		return
	}
	if !model.ValidStatus(target) {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := h.repo.GetForUpdate(ctx, tx, companyID, req.BookingID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load booking", http.StatusInternalServerError)
		return
	}

	if err := booking.Transition(target, h.now().UTC()); err != nil {
		http.Error(w, "invalid status transition", http.StatusConflict)
		return
	}

	if err := h.repo.UpdateStatus(ctx, tx, &booking); err != nil {
		http.Error(w, "failed to update booking", http.StatusInternalServerError)
		return
	}

	if target == model.StatusCancelled {
		evt, err := outbox.BookingCancelled(booking, "")
		if err != nil {
			http.Error(w, "failed to build event payload", http.StatusInternalServerError)
			return
		}
		if err := h.outboxRepo.Insert(ctx, tx, evt); err != nil {
			http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, statusUpdateResponse{BookingID: booking.ID, Status: string(booking.Status)})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromRequest(r)
	if companyID == "" {
		http.Error(w, "company id required", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.repo.ListByCompany(r.Context(), companyID, limit)
	if err != nil {
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}

	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		item := bookingItem{
			BookingID:     b.ID,
			ProviderID:    b.ProviderID,
			ServiceID:     b.ServiceID,
			ClientName:    b.ClientName,
			StartTime:     b.StartTime.UTC().Format(time.RFC3339),
			EndTime:       b.EndTime.UTC().Format(time.RFC3339),
			Status:        string(b.Status),
			PaymentStatus: string(b.PaymentStatus),
			CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
		}
		if b.CancelledAt != nil {
			item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

// respondError records a terminal error outcome under the idempotency key
// (so retries replay the same answer) and writes it to the client. Slot
// conflicts are terminal for a given key: the retry would race the same
// already-taken slot.
func (h *BookingHandler) respondError(ctx context.Context, tx pgx.Tx, companyID, key string, w http.ResponseWriter, status int, msg string) {
	if key != "" {
		body, err := json.Marshal(map[string]string{"error": msg})
		if err == nil {
			if err := h.repo.FinalizeIdempotency(ctx, tx, companyID, key, "", status, body); err != nil {
				h.logger.Error("failed to finalize idempotency (error outcome)", "err", err)
			} else if err := tx.Commit(ctx); err != nil {
				h.logger.Error("failed to commit idempotency record", "err", err)
			}
		}
	}
	http.Error(w, msg, status)
}

func companyIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Company-Id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("company_id"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
