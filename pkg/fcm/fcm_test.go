package fcm

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-bridge/pkg/logger"
)

type mockSender struct {
	calls    []*messaging.MulticastMessage
	response *messaging.BatchResponse
	err      error
}

func (m *mockSender) SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	m.calls = append(m.calls, message)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func testClient(sender multicastSender, opts Options) *Client {
	return newClient(sender, opts, logger.Nop())
}

func TestSendToDevices_SingleMulticast(t *testing.T) {
	sender := &mockSender{response: &messaging.BatchResponse{
		SuccessCount: 1,
		FailureCount: 1,
		Responses: []*messaging.SendResponse{
			{Success: true, MessageID: "m1"},
			{Success: false, Error: errors.New("registration-token-not-registered")},
		},
	}}
	client := testClient(sender, Options{})

	result, err := client.SendToDevices(context.Background(), []string{"tkA", "tkB"}, NotificationData{
		Title:   "T",
		Body:    "B",
		Data:    map[string]string{"notificationId": "n1"},
		Android: &AndroidOptions{ChannelID: "order_updates_channel"},
	})
	require.NoError(t, err)

	require.Len(t, sender.calls, 1)
	msg := sender.calls[0]
	assert.Equal(t, []string{"tkA", "tkB"}, msg.Tokens)
	assert.Equal(t, "T", msg.Notification.Title)
	assert.Equal(t, "B", msg.Notification.Body)
	assert.Equal(t, "n1", msg.Data["notificationId"])
	require.NotNil(t, msg.Android)
	assert.Equal(t, "high", msg.Android.Priority)
	assert.Equal(t, "order_updates_channel", msg.Android.Notification.ChannelID)
	assert.True(t, msg.Android.Notification.DefaultSound)
	assert.Equal(t, messaging.VisibilityPublic, msg.Android.Notification.Visibility)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	assert.Equal(t, []string{"tkB"}, result.FailedTokens)
}

func TestSendToDevices_NoTokens(t *testing.T) {
	sender := &mockSender{}
	client := testClient(sender, Options{})

	_, err := client.SendToDevices(context.Background(), nil, NotificationData{Title: "T"})
	assert.ErrorIs(t, err, ErrNoTokens)
	assert.Empty(t, sender.calls)
}

func TestSendToDevices_TransportError(t *testing.T) {
	transport := errors.New("connection reset")
	sender := &mockSender{err: transport}
	client := testClient(sender, Options{})

	_, err := client.SendToDevices(context.Background(), []string{"tkA"}, NotificationData{})
	assert.ErrorIs(t, err, transport)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestSendToDevices_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	sender := &mockSender{err: errors.New("unavailable")}
	client := testClient(sender, Options{BreakerMaxFailures: 2, BreakerTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := client.SendToDevices(context.Background(), []string{"tkA"}, NotificationData{})
		require.Error(t, err)
	}

	_, err := client.SendToDevices(context.Background(), []string{"tkA"}, NotificationData{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, sender.calls, 2, "open breaker must not reach the provider")
}

func TestSendToDevices_RateLimiterHonoursContext(t *testing.T) {
	sender := &mockSender{response: &messaging.BatchResponse{SuccessCount: 1}}
	client := testClient(sender, Options{RateLimit: 0.001, RateBurst: 1})

	_, err := client.SendToDevices(context.Background(), []string{"tkA"}, NotificationData{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.SendToDevices(ctx, []string{"tkA"}, NotificationData{})
	assert.Error(t, err)
	assert.Len(t, sender.calls, 1)
}

func TestBuildMulticast_WithoutAndroid(t *testing.T) {
	msg := buildMulticast([]string{"tk"}, NotificationData{Title: "T"})
	assert.Nil(t, msg.Android)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "short", maskToken("short"))
	assert.Equal(t, "abcdefghijklmnopqrst...", maskToken("abcdefghijklmnopqrstuvwxyz"))
}
