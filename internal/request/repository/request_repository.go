package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	notifdomain "notification-bridge/internal/notification/domain"
	"notification-bridge/internal/request/domain"
	"notification-bridge/pkg/store"
)

// Change is a decoded request change.
type Change struct {
	Kind    store.ChangeKind
	Request *domain.Request
}

// PlanFunc computes the new timeline and the intents to create from a freshly read request.
// It may run more than once when the transaction retries.
type PlanFunc func(req *domain.Request) (domain.Timeline, []*notifdomain.Notification)

// RequestRepository defines the request operations of the timeline watcher
type RequestRepository interface {
	// WatchAll streams changes of every request, until ctx is done
	WatchAll(ctx context.Context, fn func(ctx context.Context, changes []Change)) error

	// ApplyTimeline re-reads the request, runs plan against it and, when plan returns intents,
	// creates them and writes the new timeline in one transaction.
	// It returns the number of intents created.
	ApplyTimeline(ctx context.Context, id string, plan PlanFunc) (int, error)
}

type requestRepository struct {
	client        *firestore.Client
	collection    string
	notifications string
	watcher       *store.Watcher
	log           *zap.SugaredLogger
}

// NewRequestRepository creates a Firestore backed RequestRepository.
// Intents are created in the notifications collection.
func NewRequestRepository(client *firestore.Client, collection, notifications string, watcher *store.Watcher, log *zap.SugaredLogger) RequestRepository {
	return &requestRepository{
		client:        client,
		collection:    collection,
		notifications: notifications,
		watcher:       watcher,
		log:           log,
	}
}

func (r *requestRepository) WatchAll(ctx context.Context, fn func(ctx context.Context, changes []Change)) error {
	q := r.client.Collection(r.collection).Query

	return r.watcher.Watch(ctx, r.collection, q, func(ctx context.Context, changes []store.Change) {
		decoded := make([]Change, 0, len(changes))
		for _, c := range changes {
			decoded = append(decoded, Change{Kind: c.Kind, Request: decode(c.Doc)})
		}
		fn(ctx, decoded)
	})
}

func (r *requestRepository) ApplyTimeline(ctx context.Context, id string, plan PlanFunc) (int, error) {
	ref := r.client.Collection(r.collection).Doc(id)
	intents := r.client.Collection(r.notifications)

	var created int
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = 0

		snap, err := tx.Get(ref)
		if err != nil {
			if store.IsNotFound(err) {
				return nil
			}
			return err
		}

		timeline, pending := plan(decode(snap))
		if len(pending) == 0 {
			return nil
		}

		for _, n := range pending {
			if err := tx.Create(intents.NewDoc(), n); err != nil {
				return err
			}
		}
		if err := tx.Update(ref, []firestore.Update{{Path: "timeline", Value: timeline.ToData()}}); err != nil {
			return err
		}
		created = len(pending)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("apply timeline of request %s: %w", id, err)
	}
	return created, nil
}

func decode(snap *firestore.DocumentSnapshot) *domain.Request {
	return domain.FromData(snap.Ref.ID, snap.Data())
}
