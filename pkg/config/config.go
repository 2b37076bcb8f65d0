package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port string
	Env  string

	// Service account material: base64 JSON in the environment wins over the local file.
	FirebaseServiceAccount  string
	FirebaseCredentialsFile string
	FirebaseProjectID       string

	NotificationsCollection string
	RequestsCollection      string
	UsersCollection         string

	DispatchMaxAttempts    int
	DispatchRetryBaseDelay time.Duration
	DispatchRetryMaxDelay  time.Duration
	DispatchClaimTTL       time.Duration
	WatchResubscribeDelay  time.Duration

	FCMRateLimit          float64
	FCMRateBurst          int
	FCMBreakerMaxFailures uint32
	FCMBreakerTimeout     time.Duration
	FCMDefaultTitle       string
	FCMDefaultBody        string
	FCMAndroidChannelID   string

	// OutcomeTopic enables Pub/Sub outcome events when set.
	OutcomeTopic string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return &Config{
		Port:                    v.GetString("PORT"),
		Env:                     v.GetString("APP_ENV"),
		FirebaseServiceAccount:  v.GetString("FIREBASE_SERVICE_ACCOUNT"),
		FirebaseCredentialsFile: v.GetString("FIREBASE_CREDENTIALS_FILE"),
		FirebaseProjectID:       v.GetString("FIREBASE_PROJECT_ID"),
		NotificationsCollection: v.GetString("NOTIFICATIONS_COLLECTION"),
		RequestsCollection:      v.GetString("REQUESTS_COLLECTION"),
		UsersCollection:         v.GetString("USERS_COLLECTION"),
		DispatchMaxAttempts:     v.GetInt("DISPATCH_MAX_ATTEMPTS"),
		DispatchRetryBaseDelay:  v.GetDuration("DISPATCH_RETRY_BASE_DELAY"),
		DispatchRetryMaxDelay:   v.GetDuration("DISPATCH_RETRY_MAX_DELAY"),
		DispatchClaimTTL:        v.GetDuration("DISPATCH_CLAIM_TTL"),
		WatchResubscribeDelay:   v.GetDuration("WATCH_RESUBSCRIBE_DELAY"),
		FCMRateLimit:            v.GetFloat64("FCM_RATE_LIMIT"),
		FCMRateBurst:            v.GetInt("FCM_RATE_BURST"),
		FCMBreakerMaxFailures:   v.GetUint32("FCM_BREAKER_MAX_FAILURES"),
		FCMBreakerTimeout:       v.GetDuration("FCM_BREAKER_TIMEOUT"),
		FCMDefaultTitle:         v.GetString("FCM_DEFAULT_TITLE"),
		FCMDefaultBody:          v.GetString("FCM_DEFAULT_BODY"),
		FCMAndroidChannelID:     v.GetString("FCM_ANDROID_CHANNEL_ID"),
		OutcomeTopic:            v.GetString("OUTCOME_TOPIC"),
	}
}

// IsDevelopment reports whether APP_ENV selects the development logger.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "service-account.json")
	v.SetDefault("NOTIFICATIONS_COLLECTION", "notifications")
	v.SetDefault("REQUESTS_COLLECTION", "requests")
	v.SetDefault("USERS_COLLECTION", "users")
	v.SetDefault("DISPATCH_MAX_ATTEMPTS", 0)
	v.SetDefault("DISPATCH_RETRY_BASE_DELAY", 2*time.Second)
	v.SetDefault("DISPATCH_RETRY_MAX_DELAY", 5*time.Minute)
	v.SetDefault("DISPATCH_CLAIM_TTL", 2*time.Minute)
	v.SetDefault("WATCH_RESUBSCRIBE_DELAY", 5*time.Second)
	v.SetDefault("FCM_RATE_LIMIT", 10.0)
	v.SetDefault("FCM_RATE_BURST", 10)
	v.SetDefault("FCM_BREAKER_MAX_FAILURES", 5)
	v.SetDefault("FCM_BREAKER_TIMEOUT", 30*time.Second)
	v.SetDefault("FCM_DEFAULT_TITLE", "Update from AssignMates")
	v.SetDefault("FCM_DEFAULT_BODY", "You have a new update regarding your assignment.")
	v.SetDefault("FCM_ANDROID_CHANNEL_ID", "order_updates_channel")
	v.SetDefault("OUTCOME_TOPIC", "")
}
