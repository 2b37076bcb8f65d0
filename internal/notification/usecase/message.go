package usecase

import (
	"fmt"
	"time"

	"notification-bridge/internal/notification/domain"
	"notification-bridge/pkg/fcm"
)

// Data keys the mobile client routes on. Payload entries never override them.
const (
	ClickActionKey    = "click_action"
	NotificationIDKey = "notificationId"
	ClickAction       = "FLUTTER_NOTIFICATION_CLICK"
)

// MessageDefaults fills the push when the record leaves fields empty.
type MessageDefaults struct {
	Title            string
	Body             string
	AndroidChannelID string
}

// BuildMessage turns a notification record into the push sent to every token.
func BuildMessage(n *domain.Notification, defaults MessageDefaults) fcm.NotificationData {
	title := n.Title
	if title == "" {
		title = defaults.Title
	}
	body := n.Body
	if body == "" {
		body = defaults.Body
	}

	data := map[string]string{
		"targetUserId": n.TargetUserID,
		"type":         n.EffectiveType(),
	}
	for k, v := range n.Payload {
		data[k] = stringify(v)
	}
	data[ClickActionKey] = ClickAction
	data[NotificationIDKey] = n.ID

	return fcm.NotificationData{
		Title:   title,
		Body:    body,
		Data:    data,
		Android: &fcm.AndroidOptions{ChannelID: defaults.AndroidChannelID},
	}
}

// stringify renders a payload scalar for the string-only data block.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
