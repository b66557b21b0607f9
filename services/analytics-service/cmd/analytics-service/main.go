package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/slotbook/slotbook/libs/config"
	"github.com/slotbook/slotbook/libs/db"
	"github.com/slotbook/slotbook/libs/httpx"
	"github.com/slotbook/slotbook/libs/kafkax"
	otelx "github.com/slotbook/slotbook/libs/otel"
	"github.com/slotbook/slotbook/libs/runtime"
	"github.com/slotbook/slotbook/services/analytics-service/internal/consumer"
	"github.com/slotbook/slotbook/services/analytics-service/internal/handlers"
	"github.com/slotbook/slotbook/services/analytics-service/internal/inbox"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8087")
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
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "analytics-service")

	newConsumer := func(topic string, handler consumer.Handler) *consumer.Consumer {
		return consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handler)
	}

	handleBookingEvent := func(ctx context.Context, msg kafka.Message, kind string) error {
		var payload struct {
			BookingID string `json:"booking_id"`
			CompanyID string `json:"company_id"`
			StartTime string `json:"start_time"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid booking payload", "err", err)
			return nil
		}
		if payload.BookingID == "" || payload.CompanyID == "" || payload.StartTime == "" {
			logger.Error("missing booking fields")
			return nil
		}
		startTime, err := time.Parse(time.RFC3339, payload.StartTime)
		if err != nil {
			logger.Error("invalid start_time", "err", err)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)

		tx, err := pool.Begin(ctx)
		if err != nil {
			logger.Error("db begin failed", "err", err)
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx, `
			INSERT INTO booking_events (event_id, event_type, company_id, booking_id, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (event_id) DO NOTHING
		`, meta.EventID, meta.EventType, payload.CompanyID, payload.BookingID, startTime.UTC())
		if err != nil {
			logger.Error("failed to insert booking event", "err", err)
			return err
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Commit(ctx)
			return nil
		}

		createdInc := 0
		cancelledInc := 0
		switch kind {
		case "created":
			createdInc = 1
		case "cancelled":
			cancelledInc = 1
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO daily_booking_metrics (company_id, day, created_count, cancelled_count, paid_count)
			VALUES ($1, $2::date, $3, $4, 0)
			ON CONFLICT (company_id, day)
			DO UPDATE SET created_count = daily_booking_metrics.created_count + EXCLUDED.created_count,
			              cancelled_count = daily_booking_metrics.cancelled_count + EXCLUDED.cancelled_count,
			              updated_at = now()
		`, payload.CompanyID, startTime.UTC(), createdInc, cancelledInc); err != nil {
			logger.Error("failed to update daily metrics", "err", err)
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			logger.Error("failed to commit booking metric", "err", err)
			return err
		}

		logger.Info("booking metric recorded", "booking_id", payload.BookingID, "company_id", payload.CompanyID, "event_type", meta.EventType)
		return nil
	}

	createdConsumer := newConsumer("booking.created.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleBookingEvent(ctx, msg, "created")
	})
	go createdConsumer.Run(ctx)

	cancelledConsumer := newConsumer("booking.cancelled.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleBookingEvent(ctx, msg, "cancelled")
	})
	go cancelledConsumer.Run(ctx)

	paidConsumer := newConsumer("payments.checkout.completed.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			BookingID  string `json:"booking_id"`
			CompanyID  string `json:"company_id"`
			OccurredAt string `json:"occurred_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid checkout payload", "err", err)
			return nil
		}
		if payload.BookingID == "" || payload.CompanyID == "" {
			logger.Error("missing checkout fields")
			return nil
		}
		day := time.Now().UTC()
		if t, err := time.Parse(time.RFC3339, payload.OccurredAt); err == nil {
			day = t.UTC()
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO daily_booking_metrics (company_id, day, created_count, cancelled_count, paid_count)
			VALUES ($1, $2::date, 0, 0, 1)
			ON CONFLICT (company_id, day)
			DO UPDATE SET paid_count = daily_booking_metrics.paid_count + 1,
			              updated_at = now()
		`, payload.CompanyID, day)
		if err != nil {
			logger.Error("failed to update paid metrics", "err", err)
			return err
		}
		logger.Info("payment metric recorded", "booking_id", payload.BookingID, "company_id", payload.CompanyID)
		return nil
	})
	go paidConsumer.Run(ctx)

	handleNotificationEvent := func(ctx context.Context, msg kafka.Message, status string) error {
		var payload struct {
			BookingID   string `json:"booking_id"`
			CompanyID   string `json:"company_id"`
			Channel     string `json:"channel"`
			SentAt      string `json:"sent_at"`
			FailedAt    string `json:"failed_at"`
			ErrorReason string `json:"error_reason"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid notification payload", "err", err)
			return nil
		}
		ts := payload.SentAt
		if status == "failed" {
			ts = payload.FailedAt
		}
		if payload.BookingID == "" || payload.Channel == "" || ts == "" {
			logger.Error("missing notification fields")
			return nil
		}
		occurredAt, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			logger.Error("invalid notification timestamp", "err", err)
			return nil
		}

		if _, err := pool.Exec(ctx, `
			INSERT INTO notification_metrics (booking_id, company_id, channel, occurred_at, status)
			VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5)
		`, payload.BookingID, payload.CompanyID, payload.Channel, occurredAt.UTC(), status); err != nil {
			logger.Error("failed to write notification metrics", "err", err)
			return err
		}

		if payload.CompanyID != "" {
			sentInc := 0
			failedInc := 0
			if status == "sent" {
				sentInc = 1
			} else {
				failedInc = 1
			}
			if _, err := pool.Exec(ctx, `
				INSERT INTO daily_notification_metrics (company_id, day, channel, sent_count, failed_count)
				VALUES ($1, $2::date, $3, $4, $5)
				ON CONFLICT (company_id, day, channel)
				DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
				              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
				              updated_at = now()
			`, payload.CompanyID, occurredAt.UTC(), payload.Channel, sentInc, failedInc); err != nil {
				logger.Error("failed to update daily notification metrics", "err", err)
				return err
			}
		}

		logger.Info("notification metric recorded", "booking_id", payload.BookingID, "channel", payload.Channel, "status", status)
		return nil
	}

	sentConsumer := newConsumer("notification.sent.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleNotificationEvent(ctx, msg, "sent")
	})
	go sentConsumer.Run(ctx)

	failedConsumer := newConsumer("notification.failed.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleNotificationEvent(ctx, msg, "failed")
	})
	go failedConsumer.Run(ctx)

	dlqConsumer := newConsumer("scheduler.reminder.dlq.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			BookingID   string `json:"booking_id"`
			CompanyID   string `json:"company_id"`
			Channel     string `json:"channel"`
			Recipient   string `json:"recipient"`
			RemindAt    string `json:"remind_at"`
			ErrorReason string `json:"error_reason"`
			FailedAt    string `json:"failed_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid dlq payload", "err", err)
			return nil
		}
		if payload.BookingID == "" || payload.CompanyID == "" || payload.Channel == "" || payload.ErrorReason == "" {
			logger.Error("missing dlq fields")
			return nil
		}
		remindAt, err := time.Parse(time.RFC3339, payload.RemindAt)
		if err != nil {
			logger.Error("invalid remind_at", "err", err)
			return nil
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO scheduler_dlq_events (booking_id, company_id, channel, recipient, remind_at, error_reason, failed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, payload.BookingID, payload.CompanyID, payload.Channel, payload.Recipient, remindAt, payload.ErrorReason, payload.FailedAt)
		if err != nil {
			logger.Error("failed to write dlq event", "err", err)
			return err
		}

		logger.Warn("scheduler dlq recorded", "booking_id", payload.BookingID, "channel", payload.Channel)
		return nil
	})
	go dlqConsumer.Run(ctx)

	authAuditConsumer := newConsumer("auth.audit.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			EventType string          `json:"event_type"`
			ActorID   string          `json:"actor_id"`
			Metadata  json.RawMessage `json:"metadata"`
			CreatedAt string          `json:"created_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid auth audit payload", "err", err)
			return nil
		}
		if payload.EventType == "" || payload.CreatedAt == "" {
			logger.Error("missing auth audit fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.CreatedAt); err != nil {
			logger.Error("invalid auth audit created_at", "err", err)
			return nil
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO security_audit_events (event_type, actor_id, metadata, created_at)
			VALUES ($1, NULLIF($2, ''), $3, $4)
		`, payload.EventType, payload.ActorID, payload.Metadata, payload.CreatedAt)
		if err != nil {
			logger.Error("failed to write security audit event", "err", err)
			return err
		}

		logger.Info("security audit recorded", "event_type", payload.EventType)
		return nil
	})
	go authAuditConsumer.Run(ctx)

	analyticsHandler := handlers.New(pool)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/analytics/daily", analyticsHandler.DailyBookings)
	mux.HandleFunc("/api/v1/analytics/notifications", analyticsHandler.DailyNotifications)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
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
