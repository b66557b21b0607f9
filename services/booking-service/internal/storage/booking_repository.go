package storage

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/slotbook/slotbook/libs/db"
	"github.com/slotbook/slotbook/services/booking-service/internal/model"
)

type BookingRepository struct {
	db DB
}

func NewBookingRepository(database DB) *BookingRepository {
	return &BookingRepository{db: database}
}

type IdempotencyRecord struct {
	CompanyID       string
	IdempotencyKey  string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// AcquireSlotLock serializes commits for one provider+day. The lock is
// transaction-scoped: it releases automatically on commit or rollback.
func (r *BookingRepository) AcquireSlotLock(ctx context.Context, tx pgx.Tx, providerID string, day string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, slotLockKey(providerID, day))
	return err
}

func slotLockKey(providerID, day string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(providerID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(day))
	return int64(h.Sum64())
}

func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings
			(company_id, provider_id, service_id, client_name, client_email, client_phone, notes,
			start_time, end_time, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, b.CompanyID, b.ProviderID, b.ServiceID, b.ClientName, b.ClientEmail, b.ClientPhone, b.Notes,
		b.StartTime, b.EndTime, b.Status, b.PaymentStatus).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, companyID, bookingID string) (model.Booking, error) {
	row := tx.QueryRow(ctx, selectBooking+`
		WHERE id = $1 AND company_id = $2
		FOR UPDATE
	`, bookingID, companyID)
	return scanBooking(row)
}

// GetByIDForUpdate looks a booking up by id alone. Used by the payment
// event consumer, which carries the company id inside the event payload.
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (model.Booking, error) {
	row := tx.QueryRow(ctx, selectBooking+`
		WHERE id = $1
		FOR UPDATE
	`, bookingID)
	return scanBooking(row)
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, b *model.Booking) error {
	_, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			payment_status = $3,
			cancelled_at = $4,
			cancel_reason = $5,
			updated_at = now()
		WHERE id = $1
	`, b.ID, b.Status, b.PaymentStatus, b.CancelledAt, b.CancelReason)
	return err
}

func (r *BookingRepository) ListByCompany(ctx context.Context, companyID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, selectBooking+`
		WHERE company_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bookings, nil
}

func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, companyID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, companyID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (company_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (company_id, idempotency_key) DO NOTHING
	`, companyID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, companyID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, companyID, key, bookingID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE company_id = $1 AND idempotency_key = $2
	`, companyID, key, bookingID, statusCode, response)
	return err
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, companyID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT company_id::text,
			idempotency_key,
			COALESCE(booking_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE company_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, companyID, key).Scan(
		&rec.CompanyID,
		&rec.IdempotencyKey,
		&rec.BookingID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}

// IsConflict reports the exclusion-constraint violation raised by the
// no-overlap constraint on bookings. It backstops the advisory lock.
func IsConflict(err error) bool {
	return db.IsExclusionViolation(err)
}

func IsNotFound(err error) bool {
	return db.IsNotFound(err)
}

const selectBooking = `
	SELECT id, company_id, provider_id, service_id, client_name, client_email, client_phone,
		COALESCE(notes, ''), start_time, end_time, status, payment_status,
		cancelled_at, COALESCE(cancel_reason, ''), created_at, updated_at
	FROM bookings
`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var cancelledAt *time.Time
	err := row.Scan(
		&b.ID,
		&b.CompanyID,
		&b.ProviderID,
		&b.ServiceID,
		&b.ClientName,
		&b.ClientEmail,
		&b.ClientPhone,
		&b.Notes,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&b.PaymentStatus,
		&cancelledAt,
		&b.CancelReason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.CancelledAt = cancelledAt
	return b, nil
}
