package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/slotbook/slotbook/libs/kafkax"
	"github.com/slotbook/slotbook/services/booking-service/internal/inbox"
	"github.com/slotbook/slotbook/services/booking-service/internal/model"
	"github.com/slotbook/slotbook/services/booking-service/internal/storage"
)

const (
	TopicCheckoutCompleted = "payments.checkout.completed.v1"
	TopicCheckoutExpired   = "payments.checkout.expired.v1"
)

// checkoutEvent is the payment-service event payload this consumer reacts to.
type checkoutEvent struct {
	BookingID string `json:"booking_id"`
	CompanyID string `json:"company_id"`
	SessionID string `json:"session_id"`
}

// Consumer applies payment outcomes to bookings: completed checkout
// confirms a PENDING booking, expired checkout cancels it.
type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
	inbox  *inbox.Repository
	repo   *storage.BookingRepository
	topic  string
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, inboxRepo *inbox.Repository, repo *storage.BookingRepository, cfg Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader: reader,
		logger: logger,
		inbox:  inboxRepo,
		repo:   repo,
		topic:  cfg.Topic,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)

		ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err)
			span.RecordError(err)
			span.End()
			continue
		}
		if !ok {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			span.End()
			continue
		}

		if err := c.handle(ctxSpan, msg); err != nil {
			c.logger.Error("payment event handling failed", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
		}
		span.End()
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var evt checkoutEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("decode checkout event: %w", err)
	}
	if evt.BookingID == "" {
		return errors.New("checkout event without booking_id")
	}

	switch msg.Topic {
	case TopicCheckoutCompleted:
		return c.applyOutcome(ctx, evt.BookingID, model.StatusConfirmed, model.PaymentPaid, "")
	case TopicCheckoutExpired:
		return c.applyOutcome(ctx, evt.BookingID, model.StatusCancelled, model.PaymentFailed, "checkout expired")
	default:
		c.logger.Warn("unexpected topic", "topic", msg.Topic)
		return nil
	}
}

func (c *Consumer) applyOutcome(ctx context.Context, bookingID string, to model.Status, payment model.PaymentStatus, reason string) error {
	tx, err := c.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := c.repo.GetByIDForUpdate(ctx, tx, bookingID)
	if storage.IsNotFound(err) {
		c.logger.Warn("payment event for unknown booking", "booking_id", bookingID)
		return nil
	}
	if err != nil {
		return err
	}

	if err := b.Transition(to, time.Now().UTC()); err != nil {
		// A booking cancelled by the tenant before the payment settled is
		// normal; log and drop rather than retry forever.
		c.logger.Warn("payment outcome not applicable",
			"booking_id", bookingID, "status", b.Status, "target", to, "err", err)
		return nil
	}
	b.PaymentStatus = payment
	if reason != "" {
		b.CancelReason = reason
	}

	if err := c.repo.UpdateStatus(ctx, tx, &b); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
