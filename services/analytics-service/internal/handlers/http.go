package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/slotbook/slotbook/libs/db"
)

// Handler serves the read side of the analytics store: per-day booking
// and notification counters aggregated by the consumers.
type Handler struct {
	pool *db.Pool
}

func New(pool *db.Pool) *Handler {
	return &Handler{pool: pool}
}

type dailyBookingRow struct {
	Day            string `json:"day"`
	CreatedCount   int64  `json:"created_count"`
	CancelledCount int64  `json:"cancelled_count"`
	PaidCount      int64  `json:"paid_count"`
}

type dailyNotificationRow struct {
	Day         string `json:"day"`
	Channel     string `json:"channel"`
	SentCount   int64  `json:"sent_count"`
	FailedCount int64  `json:"failed_count"`
}

func (h *Handler) DailyBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	companyID, from, to, ok := h.queryWindow(w, r)
	if !ok {
		return
	}

	rows, err := h.pool.Query(r.Context(), `
		SELECT day::text, created_count, cancelled_count, paid_count
		FROM daily_booking_metrics
		WHERE company_id = $1 AND day >= $2::date AND day <= $3::date
		ORDER BY day
	`, companyID, from, to)
	if err != nil {
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	out := make([]dailyBookingRow, 0)
	for rows.Next() {
		var row dailyBookingRow
		if err := rows.Scan(&row.Day, &row.CreatedCount, &row.CancelledCount, &row.PaidCount); err != nil {
			http.Error(w, "failed to load metrics", http.StatusInternalServerError)
			return
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": out, "count": len(out)})
}

func (h *Handler) DailyNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	companyID, from, to, ok := h.queryWindow(w, r)
	if !ok {
		return
	}

	rows, err := h.pool.Query(r.Context(), `
		SELECT day::text, channel, sent_count, failed_count
		FROM daily_notification_metrics
		WHERE company_id = $1 AND day >= $2::date AND day <= $3::date
		ORDER BY day, channel
	`, companyID, from, to)
	if err != nil {
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	out := make([]dailyNotificationRow, 0)
	for rows.Next() {
		var row dailyNotificationRow
		if err := rows.Scan(&row.Day, &row.Channel, &row.SentCount, &row.FailedCount); err != nil {
			http.Error(w, "failed to load metrics", http.StatusInternalServerError)
			return
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": out, "count": len(out)})
}

// queryWindow validates the tenant header and the from/to date range
// (defaults: the last 30 days).
func (h *Handler) queryWindow(w http.ResponseWriter, r *http.Request) (companyID, from, to string, ok bool) {
	companyID = strings.TrimSpace(r.Header.Get("X-Company-Id"))
	if companyID == "" {
		http.Error(w, "missing company context", http.StatusBadRequest)
		return "", "", "", false
	}

	now := time.Now().UTC()
	from = strings.TrimSpace(r.URL.Query().Get("from"))
	to = strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" {
		from = now.AddDate(0, 0, -30).Format("2006-01-02")
	}
	if to == "" {
		to = now.Format("2006-01-02")
	}
	fromDay, err := time.Parse("2006-01-02", from)
	if err != nil {
		http.Error(w, "invalid from date (want YYYY-MM-DD)", http.StatusBadRequest)
		return "", "", "", false
	}
	toDay, err := time.Parse("2006-01-02", to)
	if err != nil {
		http.Error(w, "invalid to date (want YYYY-MM-DD)", http.StatusBadRequest)
		return "", "", "", false
	}
	if toDay.Before(fromDay) {
		http.Error(w, "to must not precede from", http.StatusBadRequest)
		return "", "", "", false
	}
	return companyID, from, to, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
