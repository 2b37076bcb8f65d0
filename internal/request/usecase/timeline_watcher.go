package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	notifdomain "notification-bridge/internal/notification/domain"
	"notification-bridge/internal/request/domain"
	"notification-bridge/internal/request/repository"
	"notification-bridge/pkg/metrics"
	"notification-bridge/pkg/store"
)

const IntentType = "request_update"

// Intent is a notification planned for one (step, role) pair.
type Intent struct {
	Role         domain.Role
	Step         int
	Notification *notifdomain.Notification
}

// PlanTimeline returns the flipped timeline and the intents it implies.
// req is not modified. When no flag is pending it returns the original timeline and no intents.
func PlanTimeline(req *domain.Request) (domain.Timeline, []Intent) {
	var (
		next    domain.Timeline
		intents []Intent
	)

	for i, step := range req.Timeline {
		for _, role := range domain.Roles {
			if !step.Pending(role) {
				continue
			}
			target := req.RecipientFor(role)
			if target == "" {
				continue
			}

			if next == nil {
				next = req.Timeline.Clone()
			}
			next[i].NotificationsSent[role] = true

			title, body := copyFor(role, req.ID, step)
			intents = append(intents, Intent{
				Role: role,
				Step: i,
				Notification: notifdomain.NewIntent(target, title, body, IntentType, map[string]interface{}{
					"requestId": req.ID,
				}),
			})
		}
	}

	if next == nil {
		return req.Timeline, nil
	}
	return next, intents
}

func copyFor(role domain.Role, requestID string, step domain.TimelineStep) (string, string) {
	switch role {
	case domain.RoleAdmin:
		return "New Request Update: " + step.Title, fmt.Sprintf("Request #%s: %s", requestID, step.Description)
	case domain.RoleStudent:
		return "Order Update: " + step.Title, step.Description
	default:
		return "Assignment Update: " + step.Title, step.Description
	}
}

// TimelineWatcher emits notification intents for request timeline steps.
type TimelineWatcher struct {
	repo repository.RequestRepository
	log  *zap.SugaredLogger
}

func NewTimelineWatcher(repo repository.RequestRepository, log *zap.SugaredLogger) *TimelineWatcher {
	return &TimelineWatcher{repo: repo, log: log}
}

// Run consumes the request feed until ctx is done.
func (w *TimelineWatcher) Run(ctx context.Context) error {
	w.log.Info("Starting requests listener")
	return w.repo.WatchAll(ctx, w.HandleChanges)
}

// HandleChanges processes one change batch, one request at a time.
func (w *TimelineWatcher) HandleChanges(ctx context.Context, changes []repository.Change) {
	for _, c := range changes {
		if c.Kind == store.Removed {
			continue
		}
		if err := w.HandleRequest(ctx, c.Request); err != nil {
			w.log.Errorw("Timeline update failed", "requestId", c.Request.ID, "error", err)
		}
	}
}

// HandleRequest emits the intents pending in req. The snapshot only decides whether to act;
// the decision is recomputed against the stored request inside the write.
func (w *TimelineWatcher) HandleRequest(ctx context.Context, req *domain.Request) error {
	if _, intents := PlanTimeline(req); len(intents) == 0 {
		return nil
	}

	var planned []Intent
	created, err := w.repo.ApplyTimeline(ctx, req.ID, func(current *domain.Request) (domain.Timeline, []*notifdomain.Notification) {
		timeline, intents := PlanTimeline(current)
		planned = intents

		out := make([]*notifdomain.Notification, 0, len(intents))
		for _, in := range intents {
			out = append(out, in.Notification)
		}
		return timeline, out
	})
	if err != nil {
		return err
	}
	if created == 0 {
		return nil
	}

	for _, in := range planned {
		metrics.TimelineIntentsEmitted.WithLabelValues(string(in.Role)).Inc()
		w.log.Infow("Timeline intent created",
			"requestId", req.ID,
			"step", in.Step,
			"role", in.Role,
			"targetUserId", in.Notification.TargetUserID,
		)
	}
	w.log.Infow("Timeline flags updated", "requestId", req.ID, "intents", created)
	return nil
}
