package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/slotbook/slotbook/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

type CompanySettings struct {
	CompanyID         string
	BufferTimeMinutes int
	MinAdvanceMinutes int
	MaxAdvanceMinutes int
	Currency          string
	Timezone          string
}

func (r *Repository) GetSettings(ctx context.Context, companyID string) (CompanySettings, error) {
	var s CompanySettings
	err := r.pool.QueryRow(ctx, `
		SELECT company_id::text, buffer_time_minutes, min_advance_minutes, max_advance_minutes, currency, timezone
		FROM company_settings
		WHERE company_id = $1
	`, companyID).Scan(&s.CompanyID, &s.BufferTimeMinutes, &s.MinAdvanceMinutes, &s.MaxAdvanceMinutes, &s.Currency, &s.Timezone)
	return s, err
}

func (r *Repository) UpsertSettings(ctx context.Context, s CompanySettings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO company_settings (company_id, buffer_time_minutes, min_advance_minutes, max_advance_minutes, currency, timezone)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (company_id) DO UPDATE
		SET buffer_time_minutes = EXCLUDED.buffer_time_minutes,
			min_advance_minutes = EXCLUDED.min_advance_minutes,
			max_advance_minutes = EXCLUDED.max_advance_minutes,
			currency = EXCLUDED.currency,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`, s.CompanyID, s.BufferTimeMinutes, s.MinAdvanceMinutes, s.MaxAdvanceMinutes, s.Currency, s.Timezone)
	return err
}

type Service struct {
	ID           string
	CompanyID    string
	Name         string
	DurationMins int
	Price        string
	IsActive     bool
	IsPublic     bool
	CreatedAt    time.Time
}

func (r *Repository) CreateService(ctx context.Context, svc Service) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, company_id, name, duration_minutes, price, is_active, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, svc.CompanyID, svc.Name, svc.DurationMins, svc.Price, svc.IsActive, svc.IsPublic)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdateService(ctx context.Context, svc Service) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE services
		SET name = $3,
			duration_minutes = $4,
			price = $5,
			is_active = $6,
			is_public = $7,
			updated_at = now()
		WHERE id = $1 AND company_id = $2
	`, svc.ID, svc.CompanyID, svc.Name, svc.DurationMins, svc.Price, svc.IsActive, svc.IsPublic)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListServices(ctx context.Context, companyID string, limit int) ([]Service, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, company_id::text, name, duration_minutes, price::text, is_active, is_public, created_at
		FROM services
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.Name, &s.DurationMins, &s.Price, &s.IsActive, &s.IsPublic, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type Provider struct {
	ID        string
	CompanyID string
	Name      string
	Email     string
	IsActive  bool
	CreatedAt time.Time
}

func (r *Repository) CreateProvider(ctx context.Context, p Provider) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO providers (id, company_id, name, email, is_active)
		VALUES ($1, $2, $3, $4, $5)
	`, id, p.CompanyID, p.Name, p.Email, p.IsActive)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdateProvider(ctx context.Context, p Provider) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE providers
		SET name = $3,
			email = $4,
			is_active = $5,
			updated_at = now()
		WHERE id = $1 AND company_id = $2
	`, p.ID, p.CompanyID, p.Name, p.Email, p.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListProviders(ctx context.Context, companyID string, limit int) ([]Provider, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, company_id::text, name, email, is_active, created_at
		FROM providers
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Email, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ReplaceProviderServices swaps the provider's assigned service set in one
// transaction: the old set is gone and the new one present, or neither.
func (r *Repository) ReplaceProviderServices(ctx context.Context, companyID, providerID string, serviceIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1 AND company_id = $2)
	`, providerID, companyID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM provider_services WHERE provider_id = $1
	`, providerID); err != nil {
		return err
	}

	for _, serviceID := range serviceIDs {
		tag, err := tx.Exec(ctx, `
			INSERT INTO provider_services (provider_id, service_id)
			SELECT $1, id FROM services WHERE id = $2 AND company_id = $3
		`, providerID, serviceID, companyID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) ListProviderServices(ctx context.Context, companyID, providerID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ps.service_id::text
		FROM provider_services ps
		JOIN providers p ON p.id = ps.provider_id
		WHERE ps.provider_id = $1 AND p.company_id = $2
		ORDER BY ps.service_id
	`, providerID, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type WorkingHoursRow struct {
	Weekday   int
	StartTime string // "HH:mm"
	EndTime   string
}

func (r *Repository) ListWorkingHours(ctx context.Context, companyID, providerID string) ([]WorkingHoursRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT h.weekday, h.start_time, h.end_time
		FROM working_hours h
		JOIN providers p ON p.id = h.provider_id
		WHERE h.provider_id = $1 AND p.company_id = $2
		ORDER BY h.weekday ASC, h.start_time ASC
	`, providerID, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkingHoursRow
	for rows.Next() {
		var wh WorkingHoursRow
		if err := rows.Scan(&wh.Weekday, &wh.StartTime, &wh.EndTime); err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// WorkingHoursForWeekday lists a provider's ranges for one weekday. Used by
// the gRPC config surface, where the caller identifies providers directly.
func (r *Repository) WorkingHoursForWeekday(ctx context.Context, providerID string, weekday int) ([]WorkingHoursRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_time, end_time
		FROM working_hours
		WHERE provider_id = $1 AND weekday = $2
		ORDER BY start_time ASC
	`, providerID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkingHoursRow
	for rows.Next() {
		var wh WorkingHoursRow
		if err := rows.Scan(&wh.Weekday, &wh.StartTime, &wh.EndTime); err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ReplaceWorkingHours replaces the provider's full weekly schedule in one
// transaction (delete-then-insert, all-or-nothing).
func (r *Repository) ReplaceWorkingHours(ctx context.Context, companyID, providerID string, rows []WorkingHoursRow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1 AND company_id = $2)
	`, providerID, companyID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM working_hours WHERE provider_id = $1
	`, providerID); err != nil {
		return err
	}

	for _, wh := range rows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO working_hours (provider_id, weekday, start_time, end_time)
			VALUES ($1, $2, $3, $4)
		`, providerID, wh.Weekday, wh.StartTime, wh.EndTime); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func IsNotFound(err error) bool {
	return db.IsNotFound(err)
}
