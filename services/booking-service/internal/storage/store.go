package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/slotbook/slotbook/services/booking-service/internal/availability"
	"github.com/slotbook/slotbook/services/booking-service/internal/engine"
	"github.com/slotbook/slotbook/services/booking-service/internal/policy"
)

// querier is the query surface shared by a pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB is what the repositories need from a connection pool. *db.Pool and
// pgxmock both satisfy it.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EngineStore implements engine.Store over a pool or a transaction. The
// tx-bound form (EngineStoreTx) is what commit-time re-validation runs
// against, so it observes rows written earlier in the same transaction.
type EngineStore struct {
	q querier
}

func NewEngineStore(db DB) *EngineStore {
	return &EngineStore{q: db}
}

func EngineStoreTx(tx pgx.Tx) *EngineStore {
	return &EngineStore{q: tx}
}

func (s *EngineStore) ServiceByID(ctx context.Context, companyID, serviceID string) (engine.Service, error) {
	var svc engine.Service
	var durationMinutes int
	err := s.q.QueryRow(ctx, `
		SELECT id, company_id, duration_minutes, is_active, is_public
		FROM services
		WHERE id = $1 AND company_id = $2
	`, serviceID, companyID).Scan(&svc.ID, &svc.CompanyID, &durationMinutes, &svc.Active, &svc.Public)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.Service{}, engine.ErrNotFound
	}
	if err != nil {
		return engine.Service{}, err
	}
	svc.Duration = time.Duration(durationMinutes) * time.Minute
	return svc, nil
}

func (s *EngineStore) ProviderEligible(ctx context.Context, companyID, providerID, serviceID string) (bool, error) {
	var eligible bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM provider_services ps
			JOIN providers p ON p.id = ps.provider_id
			WHERE ps.provider_id = $1
				AND ps.service_id = $2
				AND p.company_id = $3
				AND p.is_active
		)
	`, providerID, serviceID, companyID).Scan(&eligible)
	if err != nil {
		return false, err
	}
	return eligible, nil
}

func (s *EngineStore) BlockingBookings(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := s.q.Query(ctx, `
		SELECT start_time, end_time
		FROM bookings
		WHERE provider_id = $1
			AND status IN ('PENDING', 'CONFIRMED')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		busy = append(busy, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return busy, nil
}

// ConfigSource implements policy.Source against the shared database. It is
// the default build's source of tenant configuration.
type ConfigSource struct {
	q querier
}

func NewConfigSource(db DB) *ConfigSource {
	return &ConfigSource{q: db}
}

func (s *ConfigSource) BookingPolicy(ctx context.Context, companyID string) (policy.RawPolicy, error) {
	var raw policy.RawPolicy
	err := s.q.QueryRow(ctx, `
		SELECT buffer_time_minutes, min_advance_minutes, max_advance_minutes, timezone
		FROM company_settings
		WHERE company_id = $1
	`, companyID).Scan(&raw.BufferTimeMinutes, &raw.MinAdvanceMinutes, &raw.MaxAdvanceMinutes, &raw.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return policy.RawPolicy{}, policy.ErrNotConfigured
	}
	if err != nil {
		return policy.RawPolicy{}, err
	}
	return raw, nil
}

func (s *ConfigSource) WorkingHours(ctx context.Context, providerID string, weekday time.Weekday) ([]policy.ClockRange, error) {
	rows, err := s.q.Query(ctx, `
		SELECT start_time, end_time
		FROM working_hours
		WHERE provider_id = $1 AND weekday = $2
		ORDER BY start_time ASC
	`, providerID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []policy.ClockRange
	for rows.Next() {
		var r policy.ClockRange
		if err := rows.Scan(&r.Start, &r.End); err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ranges, nil
}
