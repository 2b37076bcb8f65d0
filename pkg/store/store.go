// Package store holds the Firestore plumbing shared by the repositories: the change
// subscription loop and error classification.
package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"notification-bridge/pkg/metrics"
)

type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Change is one document change inside a snapshot batch.
type Change struct {
	Kind ChangeKind
	Doc  *firestore.DocumentSnapshot
}

// Handler receives one batch at a time. It must not block on other batches.
type Handler func(ctx context.Context, changes []Change)

// Watcher runs query subscriptions and re-opens them after failures.
type Watcher struct {
	ResubscribeDelay time.Duration
	Log              *zap.SugaredLogger
}

// Watch delivers change batches for q to fn, serially, until ctx is done.
// The first batch after each (re)subscription contains every matching document as Added.
func (w *Watcher) Watch(ctx context.Context, name string, q firestore.Query, fn Handler) error {
	for {
		it := q.Snapshots(ctx)
		err := consume(ctx, it, fn)
		it.Stop()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.WatchErrors.WithLabelValues(name).Inc()
		w.Log.Errorw("Firestore listener error, resubscribing", "collection", name, "error", err, "delay", w.ResubscribeDelay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.ResubscribeDelay):
		}
	}
}

func consume(ctx context.Context, it *firestore.QuerySnapshotIterator, fn Handler) error {
	for {
		snap, err := it.Next()
		if err != nil {
			return err
		}
		if len(snap.Changes) == 0 {
			continue
		}

		changes := make([]Change, 0, len(snap.Changes))
		for _, c := range snap.Changes {
			changes = append(changes, Change{Kind: kindOf(c.Kind), Doc: c.Doc})
		}
		fn(ctx, changes)
	}
}

func kindOf(k firestore.DocumentChangeKind) ChangeKind {
	switch k {
	case firestore.DocumentAdded:
		return Added
	case firestore.DocumentRemoved:
		return Removed
	default:
		return Modified
	}
}

// IsNotFound reports whether err is Firestore's missing-document error.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
