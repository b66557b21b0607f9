package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/slotbook/slotbook/services/booking-service/internal/engine"
	"github.com/slotbook/slotbook/services/booking-service/internal/model"
	"github.com/slotbook/slotbook/services/booking-service/internal/policy"
)

func TestCreateMapsExclusionViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewBookingRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23P01"})
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	if err := repo.AcquireSlotLock(ctx, tx, "prov-1", "2026-03-02"); err != nil {
		t.Fatalf("lock: %v", err)
	}

	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	_, err = repo.Create(ctx, tx, &model.Booking{
		CompanyID:     "co-1",
		ProviderID:    "prov-1",
		ServiceID:     "svc-1",
		ClientName:    "Jo",
		StartTime:     start,
		EndTime:       start.Add(30 * time.Minute),
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentPending,
	})
	if !IsConflict(err) {
		t.Fatalf("got %v, want exclusion-constraint conflict", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSlotLockKeyStableAndDistinct(t *testing.T) {
	a := slotLockKey("prov-1", "2026-03-02")
	if b := slotLockKey("prov-1", "2026-03-02"); a != b {
		t.Fatal("lock key not stable for identical inputs")
	}
	if b := slotLockKey("prov-2", "2026-03-02"); a == b {
		t.Fatal("lock key collides across providers")
	}
	if b := slotLockKey("prov-1", "2026-03-03"); a == b {
		t.Fatal("lock key collides across days")
	}
}

func TestEngineStoreServiceByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewEngineStore(mock)
	ctx := context.Background()

	rows := pgxmock.NewRows([]string{"id", "company_id", "duration_minutes", "is_active", "is_public"}).
		AddRow("svc-1", "co-1", 45, true, true)
	mock.ExpectQuery("SELECT id, company_id, duration_minutes").
		WithArgs("svc-1", "co-1").
		WillReturnRows(rows)

	svc, err := store.ServiceByID(ctx, "co-1", "svc-1")
	if err != nil {
		t.Fatalf("service by id: %v", err)
	}
	if svc.Duration != 45*time.Minute {
		t.Fatalf("duration = %v", svc.Duration)
	}

	mock.ExpectQuery("SELECT id, company_id, duration_minutes").
		WithArgs("missing", "co-1").
		WillReturnError(pgx.ErrNoRows)
	if _, err := store.ServiceByID(ctx, "co-1", "missing"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("got %v, want engine.ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConfigSourceBookingPolicyNotConfigured(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	source := NewConfigSource(mock)

	mock.ExpectQuery("SELECT buffer_time_minutes").
		WithArgs("co-1").
		WillReturnError(pgx.ErrNoRows)

	_, err = source.BookingPolicy(context.Background(), "co-1")
	if !errors.Is(err, policy.ErrNotConfigured) {
		t.Fatalf("got %v, want policy.ErrNotConfigured", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBlockingBookings(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewEngineStore(mock)
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	s1 := from.Add(10 * time.Hour)

	rows := pgxmock.NewRows([]string{"start_time", "end_time"}).
		AddRow(s1, s1.Add(30*time.Minute))
	mock.ExpectQuery("SELECT start_time, end_time").
		WithArgs("prov-1", from, to).
		WillReturnRows(rows)

	busy, err := store.BlockingBookings(context.Background(), "prov-1", from, to)
	if err != nil {
		t.Fatalf("blocking bookings: %v", err)
	}
	if len(busy) != 1 || !busy[0].Start.Equal(s1) {
		t.Fatalf("unexpected intervals: %+v", busy)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
