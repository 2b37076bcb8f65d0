package fcm

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"notification-bridge/pkg/metrics"
)

// ErrNoTokens is returned when a send is attempted without any device token.
var ErrNoTokens = errors.New("fcm: no device tokens")

// ErrUnavailable marks sends rejected locally by the open circuit breaker.
// The provider was never called.
var ErrUnavailable = errors.New("fcm: circuit open")

// multicastSender is the part of messaging.Client the gateway needs.
type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Options tunes the protection around provider calls.
type Options struct {
	RateLimit          float64 // multicast calls per second, <= 0 disables limiting
	RateBurst          int
	BreakerMaxFailures uint32 // consecutive transport failures that open the breaker
	BreakerTimeout     time.Duration
}

// Client wraps Firebase Cloud Messaging functionality
type Client struct {
	messagingClient multicastSender
	limiter         *rate.Limiter
	breaker         *gobreaker.CircuitBreaker
	log             *zap.SugaredLogger
}

// NewClient creates a new FCM client from an initialized Firebase app
func NewClient(ctx context.Context, app *firebase.App, opts Options, log *zap.SugaredLogger) (*Client, error) {
	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	log.Info("FCM client initialized")
	return newClient(messagingClient, opts, log), nil
}

func newClient(sender multicastSender, opts Options, log *zap.SugaredLogger) *Client {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	maxFailures := opts.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fcm",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnw("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		messagingClient: sender,
		limiter:         rate.NewLimiter(limit, burst),
		breaker:         breaker,
		log:             log,
	}
}

// AndroidOptions is the Android platform block of a push.
type AndroidOptions struct {
	ChannelID string
}

// NotificationData contains the data to send in a push notification
type NotificationData struct {
	Title   string
	Body    string
	Data    map[string]string // Custom data payload
	Android *AndroidOptions
}

// BatchResult is the per-token outcome of one multicast call.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	FailedTokens []string
}

// SendToDevices sends one multicast push to every token.
// Per-token failures are reported in the result; only transport failures return an error.
func (c *Client) SendToDevices(ctx context.Context, tokens []string, notification NotificationData) (*BatchResult, error) {
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fcm rate limiter: %w", err)
	}

	message := buildMulticast(tokens, notification)

	timer := metrics.StartSendTimer()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.messagingClient.SendEachForMulticast(ctx, message)
	})
	timer.ObserveDuration()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to send FCM multicast message: %w", err)
	}

	response := out.(*messaging.BatchResponse)
	c.log.Infow("Multicast sent", "success", response.SuccessCount, "failure", response.FailureCount)

	result := &BatchResult{
		SuccessCount: response.SuccessCount,
		FailureCount: response.FailureCount,
	}
	for i, resp := range response.Responses {
		if resp == nil || resp.Success || i >= len(tokens) {
			continue
		}
		result.FailedTokens = append(result.FailedTokens, tokens[i])
		c.log.Warnw("Failed to send to token", "token", maskToken(tokens[i]), "error", resp.Error)
	}

	return result, nil
}

func buildMulticast(tokens []string, notification NotificationData) *messaging.MulticastMessage {
	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: notification.Data,
	}

	if notification.Android != nil {
		message.Android = &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID:    notification.Android.ChannelID,
				Priority:     messaging.PriorityHigh,
				DefaultSound: true,
				Visibility:   messaging.VisibilityPublic,
			},
		}
	}
	return message
}

func maskToken(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}
