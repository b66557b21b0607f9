package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotbook/slotbook/services/company-service/internal/rates"
	"github.com/slotbook/slotbook/services/company-service/internal/storage"
)

type Handler struct {
	repo  *storage.Repository
	rates *rates.Cache
}

func New(repo *storage.Repository, rateCache *rates.Cache) *Handler {
	return &Handler{repo: repo, rates: rateCache}
}

func companyIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Company-Id"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Settings serves GET and PUT /api/v1/company/settings. A company that
// has never saved settings gets the platform defaults back on GET.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getSettings(w, r)
	case http.MethodPut:
		h.putSettings(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	s, err := h.repo.GetSettings(r.Context(), companyID)
	if err != nil {
		if storage.IsNotFound(err) {
			s = storage.CompanySettings{
				CompanyID:         companyID,
				BufferTimeMinutes: 0,
				MinAdvanceMinutes: 60,
				MaxAdvanceMinutes: 7 * 24 * 60,
				Currency:          "EUR",
				Timezone:          "UTC",
			}
		} else {
			http.Error(w, "failed to load settings", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"company_id":          s.CompanyID,
		"buffer_time_minutes": s.BufferTimeMinutes,
		"min_advance_minutes": s.MinAdvanceMinutes,
		"max_advance_minutes": s.MaxAdvanceMinutes,
		"currency":            s.Currency,
		"timezone":            s.Timezone,
	})
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		BufferTimeMinutes int    `json:"buffer_time_minutes"`
		MinAdvanceMinutes int    `json:"min_advance_minutes"`
		MaxAdvanceMinutes int    `json:"max_advance_minutes"`
		Currency          string `json:"currency"`
		Timezone          string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	if req.BufferTimeMinutes < 0 {
		http.Error(w, "buffer_time_minutes must not be negative", http.StatusBadRequest)
		return
	}
	if req.MinAdvanceMinutes < 0 {
		http.Error(w, "min_advance_minutes must not be negative", http.StatusBadRequest)
		return
	}
	if req.MaxAdvanceMinutes <= req.MinAdvanceMinutes {
		http.Error(w, "max_advance_minutes must be greater than min_advance_minutes", http.StatusBadRequest)
		return
	}

	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		http.Error(w, "unknown timezone", http.StatusBadRequest)
		return
	}

	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = "EUR"
	}
	if len(req.Currency) != 3 {
		http.Error(w, "currency must be a 3-letter code", http.StatusBadRequest)
		return
	}

	err := h.repo.UpsertSettings(r.Context(), storage.CompanySettings{
		CompanyID:         companyID,
		BufferTimeMinutes: req.BufferTimeMinutes,
		MinAdvanceMinutes: req.MinAdvanceMinutes,
		MaxAdvanceMinutes: req.MaxAdvanceMinutes,
		Currency:          req.Currency,
		Timezone:          req.Timezone,
	})
	if err != nil {
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Services serves GET and POST /api/v1/services.
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listServices(w, r)
	case http.MethodPost:
		h.createService(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	services, err := h.repo.ListServices(r.Context(), companyID, 100)
	if err != nil {
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}
	if services == nil {
		services = []storage.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

type serviceRequest struct {
	Name         string  `json:"name"`
	DurationMins int     `json:"duration_minutes"`
	Price        float64 `json:"price"`
	IsActive     *bool   `json:"is_active"`
	IsPublic     *bool   `json:"is_public"`
}

func (req *serviceRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "name is required"
	}
	if req.DurationMins <= 0 || req.DurationMins > 24*60 {
		return "duration_minutes must be between 1 and 1440"
	}
	if req.Price < 0 {
		return "price must not be negative"
	}
	return ""
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	svc := storage.Service{
		CompanyID:    companyID,
		Name:         req.Name,
		DurationMins: req.DurationMins,
		Price:        strconv.FormatFloat(req.Price, 'f', 2, 64),
		IsActive:     true,
		IsPublic:     true,
	}
	if req.IsActive != nil {
		svc.IsActive = *req.IsActive
	}
	if req.IsPublic != nil {
		svc.IsPublic = *req.IsPublic
	}

	id, err := h.repo.CreateService(r.Context(), svc)
	if err != nil {
		http.Error(w, "failed to create service", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// UpdateService serves PUT /api/v1/services/update?id=...
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	svc := storage.Service{
		ID:           id,
		CompanyID:    companyID,
		Name:         req.Name,
		DurationMins: req.DurationMins,
		Price:        strconv.FormatFloat(req.Price, 'f', 2, 64),
		IsActive:     true,
		IsPublic:     true,
	}
	if req.IsActive != nil {
		svc.IsActive = *req.IsActive
	}
	if req.IsPublic != nil {
		svc.IsPublic = *req.IsPublic
	}

	if err := h.repo.UpdateService(r.Context(), svc); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update service", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Providers serves GET and POST /api/v1/providers.
func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listProviders(w, r)
	case http.MethodPost:
		h.createProvider(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	providers, err := h.repo.ListProviders(r.Context(), companyID, 100)
	if err != nil {
		http.Error(w, "failed to list providers", http.StatusInternalServerError)
		return
	}
	if providers == nil {
		providers = []storage.Provider{}
	}
	writeJSON(w, http.StatusOK, providers)
}

func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		IsActive *bool  `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	id, err := h.repo.CreateProvider(r.Context(), storage.Provider{
		CompanyID: companyID,
		Name:      req.Name,
		Email:     req.Email,
		IsActive:  isActive,
	})
	if err != nil {
		http.Error(w, "failed to create provider", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// UpdateProvider serves PUT /api/v1/providers/update?id=...
func (h *Handler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		IsActive *bool  `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	err := h.repo.UpdateProvider(r.Context(), storage.Provider{
		ID:        id,
		CompanyID: companyID,
		Name:      req.Name,
		Email:     strings.TrimSpace(req.Email),
		IsActive:  isActive,
	})
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "provider not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update provider", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProviderServices serves GET and PUT /api/v1/providers/services?provider_id=...
// PUT replaces the provider's full service assignment set.
func (h *Handler) ProviderServices(w http.ResponseWriter, r *http.Request) {
	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		ids, err := h.repo.ListProviderServices(r.Context(), companyID, providerID)
		if err != nil {
			http.Error(w, "failed to list provider services", http.StatusInternalServerError)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"service_ids": ids})
	case http.MethodPut:
		var req struct {
			ServiceIDs []string `json:"service_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if err := h.repo.ReplaceProviderServices(r.Context(), companyID, providerID, req.ServiceIDs); err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "provider or service not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to assign services", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// WorkingHours serves GET and PUT /api/v1/providers/hours?provider_id=...
// PUT replaces the provider's full weekly schedule.
func (h *Handler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		hours, err := h.repo.ListWorkingHours(r.Context(), companyID, providerID)
		if err != nil {
			http.Error(w, "failed to list working hours", http.StatusInternalServerError)
			return
		}
		out := make([]map[string]any, 0, len(hours))
		for _, wh := range hours {
			out = append(out, map[string]any{
				"weekday":    wh.Weekday,
				"start_time": wh.StartTime,
				"end_time":   wh.EndTime,
			})
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPut:
		var req struct {
			Hours []struct {
				Weekday   int    `json:"weekday"`
				StartTime string `json:"start_time"`
				EndTime   string `json:"end_time"`
			} `json:"hours"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}

		rows := make([]storage.WorkingHoursRow, 0, len(req.Hours))
		for _, item := range req.Hours {
			if item.Weekday < 0 || item.Weekday > 6 {
				http.Error(w, "weekday must be between 0 and 6", http.StatusBadRequest)
				return
			}
			start, ok := clockMinutes(item.StartTime)
			if !ok {
				http.Error(w, "start_time must be HH:mm", http.StatusBadRequest)
				return
			}
			end, ok := clockMinutes(item.EndTime)
			if !ok {
				http.Error(w, "end_time must be HH:mm", http.StatusBadRequest)
				return
			}
			if start >= end {
				http.Error(w, "start_time must be before end_time", http.StatusBadRequest)
				return
			}
			rows = append(rows, storage.WorkingHoursRow{
				Weekday:   item.Weekday,
				StartTime: item.StartTime,
				EndTime:   item.EndTime,
			})
		}

		if err := h.repo.ReplaceWorkingHours(r.Context(), companyID, providerID, rows); err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "provider not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to save working hours", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Rates serves GET /api/v1/rates from the exchange-rate cache.
func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	table, fresh := h.rates.Rates(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"base":  "EUR",
		"rates": table,
		"stale": !fresh,
	})
}

// clockMinutes parses "HH:mm" into minutes since midnight.
func clockMinutes(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	hh := int(s[0]-'0')*10 + int(s[1]-'0')
	mm := int(s[3]-'0')*10 + int(s[4]-'0')
	if hh > 23 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}
