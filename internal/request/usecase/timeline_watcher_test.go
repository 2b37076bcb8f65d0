package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	notifdomain "notification-bridge/internal/notification/domain"
	"notification-bridge/internal/request/domain"
	"notification-bridge/internal/request/repository"
	"notification-bridge/pkg/logger"
	"notification-bridge/pkg/metrics"
	"notification-bridge/pkg/store"
)

// memoryRequests applies plans against stored raw documents, like the Firestore transaction does.
type memoryRequests struct {
	docs     map[string]map[string]interface{}
	created  []*notifdomain.Notification
	applies  int
	writes   int
	applyErr error
}

func (m *memoryRequests) WatchAll(ctx context.Context, fn func(ctx context.Context, changes []repository.Change)) error {
	changes := make([]repository.Change, 0, len(m.docs))
	for id, data := range m.docs {
		changes = append(changes, repository.Change{Kind: store.Added, Request: domain.FromData(id, data)})
	}
	fn(ctx, changes)
	<-ctx.Done()
	return ctx.Err()
}

func (m *memoryRequests) ApplyTimeline(ctx context.Context, id string, plan repository.PlanFunc) (int, error) {
	m.applies++
	if m.applyErr != nil {
		return 0, m.applyErr
	}
	data, ok := m.docs[id]
	if !ok {
		return 0, nil
	}

	timeline, intents := plan(domain.FromData(id, data))
	if len(intents) == 0 {
		return 0, nil
	}
	m.created = append(m.created, intents...)
	data["timeline"] = timeline.ToData()
	m.writes++
	return len(intents), nil
}

func (m *memoryRequests) request(id string) *domain.Request {
	return domain.FromData(id, m.docs[id])
}

func step(title, description string, flags map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"title":             title,
		"description":       description,
		"notificationsSent": flags,
	}
}

func requestDoc(studentID, writerID string, steps ...interface{}) map[string]interface{} {
	doc := map[string]interface{}{
		"studentId": studentID,
		"timeline":  steps,
	}
	if writerID != "" {
		doc["assignedWriterId"] = writerID
	}
	return doc
}

func TestTimelineWatcher_AdminAndStudent(t *testing.T) {
	repo := &memoryRequests{docs: map[string]map[string]interface{}{
		"r1": requestDoc("s1", "", step("Review", "Draft ready", map[string]interface{}{"admin": false, "student": false})),
	}}
	w := NewTimelineWatcher(repo, logger.Nop())
	adminBefore := testutil.ToFloat64(metrics.TimelineIntentsEmitted.WithLabelValues("admin"))

	require.NoError(t, w.HandleRequest(context.Background(), repo.request("r1")))

	assert.Equal(t, 1, repo.writes)
	require.Len(t, repo.created, 2)

	admin := repo.created[0]
	assert.Equal(t, "admin", admin.TargetUserID)
	assert.Equal(t, "New Request Update: Review", admin.Title)
	assert.Equal(t, "Request #r1: Draft ready", admin.Body)
	assert.Equal(t, "request_update", admin.Type)
	assert.Equal(t, map[string]interface{}{"requestId": "r1"}, admin.Payload)
	assert.Equal(t, notifdomain.StatusPending, admin.Status)

	student := repo.created[1]
	assert.Equal(t, "s1", student.TargetUserID)
	assert.Equal(t, "Order Update: Review", student.Title)
	assert.Equal(t, "Draft ready", student.Body)

	stored := repo.request("r1").Timeline[0].NotificationsSent
	assert.Equal(t, map[domain.Role]bool{domain.RoleAdmin: true, domain.RoleStudent: true}, stored)
	assert.Equal(t, adminBefore+1, testutil.ToFloat64(metrics.TimelineIntentsEmitted.WithLabelValues("admin")))
}

func TestTimelineWatcher_OneWritePerEvent(t *testing.T) {
	repo := &memoryRequests{docs: map[string]map[string]interface{}{
		"r1": requestDoc("s1", "w1",
			step("Created", "Order placed", map[string]interface{}{"admin": false, "student": false, "writer": false}),
			step("Assigned", "Writer picked", map[string]interface{}{"admin": true, "student": false, "writer": false}),
		),
	}}
	w := NewTimelineWatcher(repo, logger.Nop())

	require.NoError(t, w.HandleRequest(context.Background(), repo.request("r1")))

	assert.Equal(t, 1, repo.writes)
	require.Len(t, repo.created, 5)
	assert.Equal(t, "Assignment Update: Created", repo.created[2].Title)
	assert.Equal(t, "w1", repo.created[2].TargetUserID)
}

func TestTimelineWatcher_WriterRequiresAssignment(t *testing.T) {
	repo := &memoryRequests{docs: map[string]map[string]interface{}{
		"r1": requestDoc("s1", "", step("Review", "Draft ready", map[string]interface{}{"writer": false})),
	}}
	w := NewTimelineWatcher(repo, logger.Nop())

	require.NoError(t, w.HandleRequest(context.Background(), repo.request("r1")))

	assert.Zero(t, repo.applies)
	assert.Empty(t, repo.created)
	assert.True(t, repo.request("r1").Timeline[0].Pending(domain.RoleWriter), "flag stays false until a writer is assigned")

	repo.docs["r1"]["assignedWriterId"] = "w1"
	require.NoError(t, w.HandleRequest(context.Background(), repo.request("r1")))
	require.Len(t, repo.created, 1)
	assert.Equal(t, "w1", repo.created[0].TargetUserID)
}

func TestTimelineWatcher_NothingPending(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]interface{}
	}{
		{name: "all sent", doc: requestDoc("s1", "w1", step("Review", "d", map[string]interface{}{"admin": true, "student": true}))},
		{name: "flags absent", doc: requestDoc("s1", "", map[string]interface{}{"title": "Review"})},
		{name: "no timeline", doc: map[string]interface{}{"studentId": "s1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memoryRequests{docs: map[string]map[string]interface{}{"r1": tt.doc}}
			w := NewTimelineWatcher(repo, logger.Nop())

			require.NoError(t, w.HandleRequest(context.Background(), repo.request("r1")))
			assert.Zero(t, repo.applies)
			assert.Zero(t, repo.writes)
		})
	}
}

func TestTimelineWatcher_StaleSnapshot(t *testing.T) {
	repo := &memoryRequests{docs: map[string]map[string]interface{}{
		"r1": requestDoc("s1", "", step("Review", "d", map[string]interface{}{"admin": false})),
	}}
	w := NewTimelineWatcher(repo, logger.Nop())
	stale := repo.request("r1")

	require.NoError(t, w.HandleRequest(context.Background(), stale))
	require.NoError(t, w.HandleRequest(context.Background(), stale))

	assert.Equal(t, 2, repo.applies)
	assert.Equal(t, 1, repo.writes)
	assert.Len(t, repo.created, 1)
}

func TestTimelineWatcher_ApplyError(t *testing.T) {
	boom := errors.New("transaction aborted")
	repo := &memoryRequests{
		docs:     map[string]map[string]interface{}{"r1": requestDoc("s1", "", step("Review", "d", map[string]interface{}{"admin": false}))},
		applyErr: boom,
	}
	w := NewTimelineWatcher(repo, logger.Nop())

	assert.ErrorIs(t, w.HandleRequest(context.Background(), repo.request("r1")), boom)
	assert.True(t, repo.request("r1").Timeline[0].Pending(domain.RoleAdmin))
}

func TestTimelineWatcher_RunSkipsRemoved(t *testing.T) {
	repo := &memoryRequests{docs: map[string]map[string]interface{}{
		"r1": requestDoc("s1", "", step("Review", "d", map[string]interface{}{"student": false})),
	}}
	w := NewTimelineWatcher(repo, logger.Nop())

	w.HandleChanges(context.Background(), []repository.Change{{Kind: store.Removed, Request: repo.request("r1")}})
	assert.Zero(t, repo.applies)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
	assert.Len(t, repo.created, 1)
}

func TestPlanTimeline_DoesNotMutateInput(t *testing.T) {
	req := domain.FromData("r1", requestDoc("s1", "", step("Review", "d", map[string]interface{}{"admin": false})))

	next, intents := PlanTimeline(req)

	require.Len(t, intents, 1)
	assert.True(t, next[0].NotificationsSent[domain.RoleAdmin])
	assert.False(t, req.Timeline[0].NotificationsSent[domain.RoleAdmin])
}

func TestPlanTimeline_StudentWithoutID(t *testing.T) {
	req := domain.FromData("r1", requestDoc("", "", step("Review", "d", map[string]interface{}{"student": false})))

	_, intents := PlanTimeline(req)
	assert.Empty(t, intents)
}
