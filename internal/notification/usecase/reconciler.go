package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	authusecase "notification-bridge/internal/auth/usecase"
	"notification-bridge/internal/notification/domain"
	"notification-bridge/internal/notification/repository"
	"notification-bridge/pkg/fcm"
	"notification-bridge/pkg/metrics"
	"notification-bridge/pkg/store"
)

// Gateway delivers one push to a batch of device tokens.
type Gateway interface {
	SendToDevices(ctx context.Context, tokens []string, notification fcm.NotificationData) (*fcm.BatchResult, error)
}

// OutcomePublisher receives an event after every terminal write.
type OutcomePublisher interface {
	Publish(ctx context.Context, payload any, attrs map[string]string) error
}

type Options struct {
	// Owner identifies this process in notification leases.
	Owner string
	// MaxAttempts is the number of failed attempts before a notification is marked failed.
	// Zero or less retries forever.
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	ClaimTTL       time.Duration
	Message        MessageDefaults
}

// Reconciler turns pending notifications into sent or failed ones.
// Dispatches run one at a time per process.
type Reconciler struct {
	repo      repository.NotificationRepository
	resolver  authusecase.RecipientResolver
	gateway   Gateway
	publisher OutcomePublisher
	opts      Options
	log       *zap.SugaredLogger
	now       func() time.Time

	mu      sync.Mutex
	retries *retryQueue
	// delivered holds pushes that went out but whose sent write has not landed yet.
	delivered map[string]*delivery
}

type delivery struct {
	result  domain.DeliveryResult
	outcome string
	writes  int
}

// NewReconciler wires a reconciler. publisher may be nil.
func NewReconciler(
	repo repository.NotificationRepository,
	resolver authusecase.RecipientResolver,
	gateway Gateway,
	publisher OutcomePublisher,
	opts Options,
	log *zap.SugaredLogger,
) *Reconciler {
	return &Reconciler{
		repo:      repo,
		resolver:  resolver,
		gateway:   gateway,
		publisher: publisher,
		opts:      opts,
		log:       log,
		now:       time.Now,
		retries:   newRetryQueue(),
		delivered: make(map[string]*delivery),
	}
}

// Run consumes the unsent notifications feed until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	defer r.retries.stop()

	r.log.Info("Starting notifications listener")
	return r.repo.WatchUnsent(ctx, r.HandleChanges)
}

// HandleChanges processes one change batch. Errors are logged per notification.
func (r *Reconciler) HandleChanges(ctx context.Context, changes []repository.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range changes {
		n := c.Notification
		if c.Kind == store.Removed {
			r.forget(n.ID)
			continue
		}
		if n.IsTerminal() {
			continue
		}

		now := r.now()
		if !n.Due(now) {
			r.retries.schedule(ctx, n.ID, n.NextAttemptAt.Sub(now), r.retry)
			continue
		}

		r.log.Infow("Processing notification", "notificationId", n.ID, "targetUserId", n.TargetUserID, "change", c.Kind.String())
		if err := r.dispatch(ctx, n.ID); err != nil {
			r.log.Errorw("Notification dispatch failed", "notificationId", n.ID, "error", err)
		}
	}
}

// Process runs a single dispatch attempt for id.
func (r *Reconciler) Process(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dispatch(ctx, id)
}

func (r *Reconciler) retry(ctx context.Context, id string) {
	if ctx.Err() != nil {
		return
	}
	r.log.Infow("Retrying notification", "notificationId", id)
	if err := r.Process(ctx, id); err != nil {
		r.log.Errorw("Notification dispatch failed", "notificationId", id, "error", err)
	}
}

func (r *Reconciler) dispatch(ctx context.Context, id string) error {
	now := r.now()
	n, claimed, err := r.repo.Claim(ctx, id, r.opts.Owner, now, r.opts.ClaimTTL)
	if err != nil {
		r.retries.schedule(ctx, id, r.opts.RetryBaseDelay, r.retry)
		return err
	}
	if !claimed {
		if n == nil || n.IsTerminal() {
			delete(r.delivered, id)
		}
		r.deferUnclaimed(ctx, n, now)
		return nil
	}
	r.retries.cancel(id)

	if d, ok := r.delivered[n.ID]; ok {
		r.log.Infow("Push already delivered, retrying sent write", "notificationId", n.ID, "write", d.writes+1)
		return r.complete(ctx, n, d.result, d.outcome)
	}

	tokens, err := r.resolver.Resolve(ctx, n.TargetUserID)
	if err != nil {
		return r.fail(ctx, n, fmt.Errorf("resolve recipients for %s: %w", n.TargetUserID, err))
	}

	if len(tokens) == 0 {
		r.log.Infow("No tokens found, marking as sent", "notificationId", n.ID, "targetUserId", n.TargetUserID)
		return r.complete(ctx, n, domain.DeliveryResult{Note: domain.NoTokensNote}, metrics.OutcomeSkipped)
	}

	result, err := r.gateway.SendToDevices(ctx, tokens, BuildMessage(n, r.opts.Message))
	if err != nil {
		return r.fail(ctx, n, fmt.Errorf("send push: %w", err))
	}

	metrics.RecordTokens(result.SuccessCount, result.FailureCount)
	r.log.Infow("Push delivered", "notificationId", n.ID, "success", result.SuccessCount, "failure", result.FailureCount)

	return r.complete(ctx, n, domain.DeliveryResult{
		SuccessCount: result.SuccessCount,
		FailureCount: result.FailureCount,
	}, metrics.OutcomeSent)
}

// deferUnclaimed schedules a re-check when the record is waiting on backoff or on another lease.
func (r *Reconciler) deferUnclaimed(ctx context.Context, n *domain.Notification, now time.Time) {
	if n == nil || n.IsTerminal() {
		return
	}
	switch {
	case !n.Due(now):
		r.retries.schedule(ctx, n.ID, n.NextAttemptAt.Sub(now), r.retry)
	case n.ClaimedByOther(r.opts.Owner, now):
		r.log.Infow("Notification leased by another dispatcher", "notificationId", n.ID, "owner", n.ClaimedBy)
		r.retries.schedule(ctx, n.ID, n.ClaimedUntil.Sub(now), r.retry)
	}
}

// complete writes the sent state. A failed write keeps the delivery so the
// retry only repeats the write, never the push.
func (r *Reconciler) complete(ctx context.Context, n *domain.Notification, result domain.DeliveryResult, outcome string) error {
	if err := r.repo.MarkSent(ctx, n.ID, r.opts.Owner, result); err != nil {
		if errors.Is(err, repository.ErrClaimLost) {
			r.forget(n.ID)
			return fmt.Errorf("mark notification sent: %w", err)
		}
		d, ok := r.delivered[n.ID]
		if !ok {
			d = &delivery{result: result, outcome: outcome}
			r.delivered[n.ID] = d
		}
		d.writes++
		delay := r.backoff(d.writes)
		r.log.Warnw("Sent write failed, will retry", "notificationId", n.ID, "write", d.writes, "delay", delay, "error", err)
		r.retries.schedule(ctx, n.ID, delay, r.retry)
		return fmt.Errorf("mark notification sent: %w", err)
	}
	delete(r.delivered, n.ID)
	metrics.RecordDispatch(outcome)

	r.publish(ctx, domain.Outcome{
		NotificationID: n.ID,
		TargetUserID:   n.TargetUserID,
		Status:         domain.StatusSent,
		SuccessCount:   result.SuccessCount,
		FailureCount:   result.FailureCount,
		Note:           result.Note,
		Attempts:       n.Attempts + 1,
	})
	return nil
}

// fail records a failed attempt. Sends rejected by the open breaker never
// reached the provider and do not count as attempts.
func (r *Reconciler) fail(ctx context.Context, n *domain.Notification, cause error) error {
	failure := domain.Failure{
		Attempts: n.Attempts + 1,
		Err:      cause.Error(),
	}
	rejected := errors.Is(cause, fcm.ErrUnavailable)
	if rejected {
		failure.Attempts = n.Attempts
	}

	var delay time.Duration
	if !rejected && r.opts.MaxAttempts > 0 && failure.Attempts >= r.opts.MaxAttempts {
		failure.Terminal = true
	} else {
		delay = r.backoff(max(failure.Attempts, 1))
		at := r.now().Add(delay)
		failure.NextAttemptAt = &at
	}

	if err := r.repo.RecordFailure(ctx, n.ID, r.opts.Owner, failure); err != nil {
		r.retries.schedule(ctx, n.ID, r.opts.RetryBaseDelay, r.retry)
		return fmt.Errorf("%w; record failure: %w", cause, err)
	}

	if failure.Terminal {
		metrics.RecordDispatch(metrics.OutcomeFailed)
		r.log.Warnw("Notification failed permanently", "notificationId", n.ID, "attempts", failure.Attempts)
		r.publish(ctx, domain.Outcome{
			NotificationID: n.ID,
			TargetUserID:   n.TargetUserID,
			Status:         domain.StatusFailed,
			Attempts:       failure.Attempts,
			Error:          failure.Err,
		})
		return cause
	}

	metrics.RecordDispatch(metrics.OutcomeRetry)
	r.log.Infow("Notification will retry", "notificationId", n.ID, "attempt", failure.Attempts, "delay", delay)
	r.retries.schedule(ctx, n.ID, delay, r.retry)
	return cause
}

func (r *Reconciler) forget(id string) {
	delete(r.delivered, id)
	r.retries.cancel(id)
}

// backoff returns base * 2^(attempt-1), capped at RetryMaxDelay.
func (r *Reconciler) backoff(attempt int) time.Duration {
	delay := r.opts.RetryBaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		if r.opts.RetryMaxDelay > 0 && delay >= r.opts.RetryMaxDelay {
			break
		}
		delay *= 2
	}
	if r.opts.RetryMaxDelay > 0 && delay > r.opts.RetryMaxDelay {
		delay = r.opts.RetryMaxDelay
	}
	return delay
}

func (r *Reconciler) publish(ctx context.Context, outcome domain.Outcome) {
	if r.publisher == nil {
		return
	}
	attrs := map[string]string{
		"notificationId": outcome.NotificationID,
		"status":         string(outcome.Status),
	}
	if err := r.publisher.Publish(ctx, outcome, attrs); err != nil {
		r.log.Warnw("Failed to publish dispatch outcome", "notificationId", outcome.NotificationID, "error", err)
	}
}
