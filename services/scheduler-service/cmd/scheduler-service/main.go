package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/slotbook/slotbook/libs/config"
	"github.com/slotbook/slotbook/libs/db"
	"github.com/slotbook/slotbook/libs/httpx"
	"github.com/slotbook/slotbook/libs/kafkax"
	otelx "github.com/slotbook/slotbook/libs/otel"
	"github.com/slotbook/slotbook/libs/runtime"
	"github.com/slotbook/slotbook/services/scheduler-service/internal/consumer"
	"github.com/slotbook/slotbook/services/scheduler-service/internal/inbox"
	"github.com/slotbook/slotbook/services/scheduler-service/internal/jobs"
	"github.com/slotbook/slotbook/services/scheduler-service/internal/outbox"
)

type bookingEvent struct {
	BookingID   string `json:"booking_id"`
	CompanyID   string `json:"company_id"`
	ServiceID   string `json:"service_id"`
	ProviderID  string `json:"provider_id"`
	StartTime   string `json:"start_time"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
}

func main() {
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	jobsRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	worker := jobs.NewWorker(pool, jobsRepo, outboxRepo, logger, jobs.WorkerConfig{
		Interval:  config.Duration("SCHEDULER_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("SCHEDULER_BATCH_SIZE", 50),
		Backoff:   config.Duration("SCHEDULER_RETRY_BACKOFF", time.Minute),
	})
	go worker.Run(ctx)

	reminderLead := config.Duration("REMINDER_LEAD", 24*time.Hour)
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "scheduler-service")

	createdConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "booking.created.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		evt, start, ok := parseBookingEvent(logger, msg.Value)
		if !ok {
			return nil
		}

		remindAt, ok := jobs.ReminderTime(start, reminderLead, time.Now().UTC())
		if !ok {
			logger.Info("booking starts too soon for a reminder", "booking_id", evt.BookingID)
			return nil
		}

		templateData := map[string]any{
			"client_name": evt.ClientName,
			"service_id":  evt.ServiceID,
			"provider_id": evt.ProviderID,
			"start_time":  start.UTC().Format(time.RFC3339),
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		scheduled := 0
		if email := strings.TrimSpace(evt.ClientEmail); email != "" {
			if err := jobsRepo.Insert(ctx, tx, jobs.Job{
				IdempotencyKey: evt.BookingID + ":email",
				BookingID:      evt.BookingID,
				CompanyID:      evt.CompanyID,
				Channel:        "email",
				Recipient:      email,
				RemindAt:       remindAt,
				TemplateData:   templateData,
			}); err != nil {
				return err
			}
			scheduled++
		}
		if phone := strings.TrimSpace(evt.ClientPhone); phone != "" {
			if err := jobsRepo.Insert(ctx, tx, jobs.Job{
				IdempotencyKey: evt.BookingID + ":sms",
				BookingID:      evt.BookingID,
				CompanyID:      evt.CompanyID,
				Channel:        "sms",
				Recipient:      phone,
				RemindAt:       remindAt,
				TemplateData:   templateData,
			}); err != nil {
				return err
			}
			scheduled++
		}
		if scheduled == 0 {
			logger.Info("booking has no reminder contact", "booking_id", evt.BookingID)
			return tx.Commit(ctx)
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		logger.Info("reminders scheduled", "booking_id", evt.BookingID, "count", scheduled, "remind_at", remindAt.Format(time.RFC3339))
		return nil
	})
	go createdConsumer.Run(ctx)

	cancelledConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "booking.cancelled.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var evt bookingEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid booking payload", "err", err)
			return nil
		}
		if evt.BookingID == "" {
			logger.Error("missing booking_id on cancellation")
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := jobsRepo.CancelForBooking(ctx, tx, evt.BookingID); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		logger.Info("reminders cancelled", "booking_id", evt.BookingID)
		return nil
	})
	go cancelledConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "scheduler")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func parseBookingEvent(logger *slog.Logger, raw []byte) (bookingEvent, time.Time, bool) {
	var evt bookingEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		logger.Error("invalid booking payload", "err", err)
		return bookingEvent{}, time.Time{}, false
	}
	if evt.BookingID == "" || evt.CompanyID == "" || evt.StartTime == "" {
		logger.Error("missing booking fields")
		return bookingEvent{}, time.Time{}, false
	}
	start, err := time.Parse(time.RFC3339, evt.StartTime)
	if err != nil {
		logger.Error("invalid start_time", "err", err)
		return bookingEvent{}, time.Time{}, false
	}
	return evt, start, true
}
