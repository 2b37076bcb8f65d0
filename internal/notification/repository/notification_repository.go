package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"notification-bridge/internal/notification/domain"
	"notification-bridge/pkg/store"
)

// ErrClaimLost is returned when a terminal or failure write finds the record
// no longer pending or leased to someone else.
var ErrClaimLost = errors.New("notification claim lost")

// Change is a decoded notification change.
type Change struct {
	Kind         store.ChangeKind
	Notification *domain.Notification
}

// NotificationRepository defines the persistence operations of the reconciler
type NotificationRepository interface {
	// Create stores a new notification and returns its generated id
	Create(ctx context.Context, n *domain.Notification) (string, error)

	// FindByID returns nil, nil when the notification does not exist
	FindByID(ctx context.Context, id string) (*domain.Notification, error)

	// WatchUnsent streams changes of every notification whose status is not sent, until ctx is done
	WatchUnsent(ctx context.Context, fn func(ctx context.Context, changes []Change)) error

	// Claim atomically leases a claimable notification to owner.
	// It returns the freshly read record (nil if it does not exist) and whether the lease was taken.
	Claim(ctx context.Context, id, owner string, now time.Time, ttl time.Duration) (*domain.Notification, bool, error)

	// MarkSent moves a notification leased by owner to sent
	MarkSent(ctx context.Context, id, owner string, result domain.DeliveryResult) error

	// RecordFailure stores a failed attempt for a notification leased by owner and releases the lease
	RecordFailure(ctx context.Context, id, owner string, failure domain.Failure) error
}

type notificationRepository struct {
	client     *firestore.Client
	collection string
	watcher    *store.Watcher
	log        *zap.SugaredLogger
}

// NewNotificationRepository creates a Firestore backed NotificationRepository
func NewNotificationRepository(client *firestore.Client, collection string, watcher *store.Watcher, log *zap.SugaredLogger) NotificationRepository {
	return &notificationRepository{
		client:     client,
		collection: collection,
		watcher:    watcher,
		log:        log,
	}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) (string, error) {
	if n.Status == "" {
		n.Status = domain.StatusPending
	}

	ref, _, err := r.client.Collection(r.collection).Add(ctx, n)
	if err != nil {
		return "", fmt.Errorf("create notification: %w", err)
	}
	n.ID = ref.ID
	return ref.ID, nil
}

func (r *notificationRepository) FindByID(ctx context.Context, id string) (*domain.Notification, error) {
	snap, err := r.client.Collection(r.collection).Doc(id).Get(ctx)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get notification %s: %w", id, err)
	}
	return decode(snap)
}

func (r *notificationRepository) WatchUnsent(ctx context.Context, fn func(ctx context.Context, changes []Change)) error {
	q := r.client.Collection(r.collection).Where("status", "!=", string(domain.StatusSent))

	return r.watcher.Watch(ctx, r.collection, q, func(ctx context.Context, changes []store.Change) {
		decoded := make([]Change, 0, len(changes))
		for _, c := range changes {
			n, err := decode(c.Doc)
			if err != nil {
				r.log.Errorw("Skipping undecodable notification", "notificationId", c.Doc.Ref.ID, "error", err)
				continue
			}
			decoded = append(decoded, Change{Kind: c.Kind, Notification: n})
		}
		if len(decoded) > 0 {
			fn(ctx, decoded)
		}
	})
}

func (r *notificationRepository) Claim(ctx context.Context, id, owner string, now time.Time, ttl time.Duration) (*domain.Notification, bool, error) {
	ref := r.client.Collection(r.collection).Doc(id)

	var (
		current *domain.Notification
		claimed bool
	)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, claimed = nil, false

		snap, err := tx.Get(ref)
		if err != nil {
			if store.IsNotFound(err) {
				return nil
			}
			return err
		}
		n, err := decode(snap)
		if err != nil {
			return err
		}
		current = n
		if !n.Claimable(owner, now) {
			return nil
		}

		until := now.Add(ttl)
		if err := tx.Update(ref, []firestore.Update{
			{Path: "claimedBy", Value: owner},
			{Path: "claimedUntil", Value: until},
		}); err != nil {
			return err
		}
		n.ClaimedBy = owner
		n.ClaimedUntil = &until
		claimed = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("claim notification %s: %w", id, err)
	}
	return current, claimed, nil
}

func (r *notificationRepository) MarkSent(ctx context.Context, id, owner string, result domain.DeliveryResult) error {
	updates := []firestore.Update{
		{Path: "status", Value: string(domain.StatusSent)},
		{Path: "sentAt", Value: firestore.ServerTimestamp},
		{Path: "claimedBy", Value: firestore.Delete},
		{Path: "claimedUntil", Value: firestore.Delete},
		{Path: "nextAttemptAt", Value: firestore.Delete},
	}
	if result.Note != "" {
		updates = append(updates, firestore.Update{Path: "note", Value: result.Note})
	} else {
		updates = append(updates,
			firestore.Update{Path: "successCount", Value: result.SuccessCount},
			firestore.Update{Path: "failureCount", Value: result.FailureCount},
		)
	}
	return r.updateLeased(ctx, id, owner, updates)
}

func (r *notificationRepository) RecordFailure(ctx context.Context, id, owner string, failure domain.Failure) error {
	updates := []firestore.Update{
		{Path: "attempts", Value: failure.Attempts},
		{Path: "lastError", Value: failure.Err},
		{Path: "claimedBy", Value: firestore.Delete},
		{Path: "claimedUntil", Value: firestore.Delete},
	}
	if failure.Terminal {
		updates = append(updates,
			firestore.Update{Path: "status", Value: string(domain.StatusFailed)},
			firestore.Update{Path: "nextAttemptAt", Value: firestore.Delete},
		)
	} else if failure.NextAttemptAt != nil {
		updates = append(updates, firestore.Update{Path: "nextAttemptAt", Value: *failure.NextAttemptAt})
	}
	return r.updateLeased(ctx, id, owner, updates)
}

// updateLeased applies updates only while the record is pending and leased to owner.
func (r *notificationRepository) updateLeased(ctx context.Context, id, owner string, updates []firestore.Update) error {
	ref := r.client.Collection(r.collection).Doc(id)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if store.IsNotFound(err) {
				return ErrClaimLost
			}
			return err
		}
		n, err := decode(snap)
		if err != nil {
			return err
		}
		if n.IsTerminal() || n.ClaimedBy != owner {
			return ErrClaimLost
		}
		return tx.Update(ref, updates)
	})
	if err != nil {
		return fmt.Errorf("update notification %s: %w", id, err)
	}
	return nil
}

func decode(snap *firestore.DocumentSnapshot) (*domain.Notification, error) {
	var n domain.Notification
	if err := snap.DataTo(&n); err != nil {
		return nil, fmt.Errorf("decode notification %s: %w", snap.Ref.ID, err)
	}
	n.ID = snap.Ref.ID
	return &n, nil
}
