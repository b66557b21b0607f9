package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"

	"github.com/slotbook/slotbook/libs/db"
	"github.com/slotbook/slotbook/services/payment-service/internal/outbox"
	"github.com/slotbook/slotbook/services/payment-service/internal/storage"
)

// StripeReconciler heals checkout sessions whose webhook was lost: any
// session still 'created' after minAge is checked against Stripe and
// settled the same way the webhook would have settled it.
type StripeReconciler struct {
	pool        *db.Pool
	repo        *storage.Repository
	outboxRepo  *outbox.Repository
	logger      *slog.Logger
	stripeKey   string
	batchSize   int
	minAge      time.Duration
	advisoryKey int64
}

type StripeReconcilerConfig struct {
	StripeSecretKey string
	BatchSize       int
	MinSessionAge   time.Duration
	AdvisoryLockKey int64
}

func NewStripeReconciler(pool *db.Pool, repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg StripeReconcilerConfig) *StripeReconciler {
	bs := cfg.BatchSize
	if bs <= 0 {
		bs = 50
	}
	minAge := cfg.MinSessionAge
	if minAge <= 0 {
		minAge = 30 * time.Minute
	}
	lockKey := cfg.AdvisoryLockKey
	if lockKey == 0 {
		lockKey = 4242002
	}
	return &StripeReconciler{
		pool:        pool,
		repo:        repo,
		outboxRepo:  outboxRepo,
		logger:      logger,
		stripeKey:   strings.TrimSpace(cfg.StripeSecretKey),
		batchSize:   bs,
		minAge:      minAge,
		advisoryKey: lockKey,
	}
}

func (r *StripeReconciler) Run(ctx context.Context, interval time.Duration) {
	if r.stripeKey == "" {
		r.logger.Warn("stripe reconcile disabled: STRIPE_SECRET_KEY missing")
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	// Best-effort leader election: only the instance holding the
	// advisory lock reconciles.
	for {
		if ctx.Err() != nil {
			return
		}
		var locked bool
		if err := r.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.advisoryKey).Scan(&locked); err != nil {
			r.logger.Error("stripe reconcile: failed to acquire advisory lock", "err", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if !locked {
			r.logger.Info("stripe reconcile: advisory lock held by another instance", "lock_key", r.advisoryKey)
			time.Sleep(30 * time.Second)
			continue
		}
		r.logger.Info("stripe reconcile: advisory lock acquired", "lock_key", r.advisoryKey)
		defer func() {
			_, _ = r.pool.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, r.advisoryKey)
		}()
		break
	}

	stripe.Key = r.stripeKey
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on startup to self-heal faster after downtime.
	r.reconcileOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

func (r *StripeReconciler) reconcileOnce(ctx context.Context) {
	sessions, err := r.repo.ListOpenCheckoutSessions(ctx, r.minAge, r.batchSize)
	if err != nil {
		r.logger.Error("stripe reconcile: failed to list sessions", "err", err)
		return
	}

	for _, s := range sessions {
		if ctx.Err() != nil {
			return
		}

		stripeSess, err := checkoutsession.Get(s.StripeSessionID, nil)
		if err != nil {
			r.logger.Warn("stripe reconcile: failed to fetch session", "err", err, "stripe_session_id", s.StripeSessionID)
			continue
		}

		var completed bool
		switch {
		case stripeSess.Status == stripe.CheckoutSessionStatusComplete:
			completed = true
		case stripeSess.Status == stripe.CheckoutSessionStatusExpired:
			completed = false
		default:
			// Still open at Stripe; leave it for the webhook.
			continue
		}

		if err := r.settle(ctx, s, completed); err != nil {
			r.logger.Warn("stripe reconcile: settle failed", "err", err, "stripe_session_id", s.StripeSessionID, "booking_id", s.BookingID)
		}
	}
}

func (r *StripeReconciler) settle(ctx context.Context, s storage.CheckoutSession, completed bool) error {
	now := time.Now().UTC()

	tx, err := r.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var evt outbox.Event
	if completed {
		if err := r.repo.MarkCheckoutSessionCompleted(ctx, tx, s.StripeSessionID, now); err != nil {
			return err
		}
		if evt, err = outbox.CheckoutCompleted(s.CompanyID, s.BookingID, s.StripeSessionID, now); err != nil {
			return err
		}
	} else {
		if err := r.repo.MarkCheckoutSessionExpired(ctx, tx, s.StripeSessionID, now); err != nil {
			return err
		}
		if evt, err = outbox.CheckoutExpired(s.CompanyID, s.BookingID, s.StripeSessionID, now); err != nil {
			return err
		}
	}

	if err := r.outboxRepo.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
