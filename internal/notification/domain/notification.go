package domain

import "time"

// Status is the dispatch state of a notification.
// Transitions: pending -> sent, pending -> failed. Both targets are terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

const (
	DefaultType  = "general"
	NoTokensNote = "no tokens found"
)

// Notification is a persisted intent to push one message to a target.
// TargetUserID is either a user id or the "admin" broadcast target.
type Notification struct {
	ID           string                 `firestore:"-"`
	TargetUserID string                 `firestore:"targetUserId"`
	Title        string                 `firestore:"title"`
	Body         string                 `firestore:"body"`
	Type         string                 `firestore:"type,omitempty"`
	Payload      map[string]interface{} `firestore:"payload,omitempty"`
	Status       Status                 `firestore:"status"`
	IsRead       bool                   `firestore:"isRead"`
	CreatedAt    time.Time              `firestore:"createdAt,serverTimestamp"`
	SentAt       *time.Time             `firestore:"sentAt,omitempty"`
	SuccessCount int                    `firestore:"successCount,omitempty"`
	FailureCount int                    `firestore:"failureCount,omitempty"`
	Note         string                 `firestore:"note,omitempty"`

	// Retry bookkeeping.
	Attempts      int        `firestore:"attempts,omitempty"`
	LastError     string     `firestore:"lastError,omitempty"`
	NextAttemptAt *time.Time `firestore:"nextAttemptAt,omitempty"`

	// Lease held by the dispatcher instance working on the record.
	ClaimedBy    string     `firestore:"claimedBy,omitempty"`
	ClaimedUntil *time.Time `firestore:"claimedUntil,omitempty"`
}

// NewIntent builds a pending notification. Delivery happens when the reconciler sees it.
func NewIntent(targetID, title, body, notificationType string, payload map[string]interface{}) *Notification {
	return &Notification{
		TargetUserID: targetID,
		Title:        title,
		Body:         body,
		Type:         notificationType,
		Payload:      payload,
		Status:       StatusPending,
	}
}

func (n *Notification) IsTerminal() bool {
	return n.Status == StatusSent || n.Status == StatusFailed
}

// EffectiveType falls back to DefaultType.
func (n *Notification) EffectiveType() string {
	if n.Type == "" {
		return DefaultType
	}
	return n.Type
}

// Due reports whether the backoff window, if any, has elapsed.
func (n *Notification) Due(now time.Time) bool {
	return n.NextAttemptAt == nil || !now.Before(*n.NextAttemptAt)
}

// ClaimedByOther reports whether another dispatcher holds a live lease.
func (n *Notification) ClaimedByOther(owner string, now time.Time) bool {
	if n.ClaimedBy == "" || n.ClaimedBy == owner || n.ClaimedUntil == nil {
		return false
	}
	return now.Before(*n.ClaimedUntil)
}

// Claimable reports whether owner may start a dispatch now.
func (n *Notification) Claimable(owner string, now time.Time) bool {
	return !n.IsTerminal() && n.Due(now) && !n.ClaimedByOther(owner, now)
}

// DeliveryResult is what gets written when a notification becomes sent.
type DeliveryResult struct {
	SuccessCount int
	FailureCount int
	Note         string
}

// Failure is what gets written after a failed dispatch attempt.
type Failure struct {
	Attempts      int
	Err           string
	NextAttemptAt *time.Time // nil when Terminal
	Terminal      bool
}

// Outcome is the event published after a terminal write.
type Outcome struct {
	NotificationID string `json:"notificationId"`
	TargetUserID   string `json:"targetUserId"`
	Status         Status `json:"status"`
	SuccessCount   int    `json:"successCount"`
	FailureCount   int    `json:"failureCount"`
	Note           string `json:"note,omitempty"`
	Attempts       int    `json:"attempts"`
	Error          string `json:"error,omitempty"`
}
