package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	api "notification-bridge/cmd/api"
	authRepo "notification-bridge/internal/auth/repository"
	authUsecase "notification-bridge/internal/auth/usecase"
	"notification-bridge/internal/dispatch"
	notifRepo "notification-bridge/internal/notification/repository"
	notifUsecase "notification-bridge/internal/notification/usecase"
	requestRepo "notification-bridge/internal/request/repository"
	requestUsecase "notification-bridge/internal/request/usecase"
	"notification-bridge/pkg/config"
	"notification-bridge/pkg/credentials"
	"notification-bridge/pkg/fcm"
	"notification-bridge/pkg/logger"
	"notification-bridge/pkg/publisher"
	"notification-bridge/pkg/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log, err := logger.New(cfg.IsDevelopment())
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds, err := credentials.Load(ctx, cfg.FirebaseServiceAccount, cfg.FirebaseCredentialsFile)
	if err != nil {
		log.Fatalw("Failed to load Firebase credentials", "error", err)
	}
	log.Infow("Firebase credentials loaded", "source", creds.Source, "projectId", creds.ProjectID)

	app, err := creds.NewFirebaseApp(ctx, cfg.FirebaseProjectID)
	if err != nil {
		log.Fatalw("Failed to initialize Firebase", "error", err)
	}

	db, err := app.Firestore(ctx)
	if err != nil {
		log.Fatalw("Failed to connect to Firestore", "error", err)
	}
	defer db.Close()

	fcmClient, err := fcm.NewClient(ctx, app, fcm.Options{
		RateLimit:          cfg.FCMRateLimit,
		RateBurst:          cfg.FCMRateBurst,
		BreakerMaxFailures: cfg.FCMBreakerMaxFailures,
		BreakerTimeout:     cfg.FCMBreakerTimeout,
	}, log.Named("fcm"))
	if err != nil {
		log.Fatalw("Failed to initialize FCM client", "error", err)
	}

	// Outcome events are optional
	var outcomes notifUsecase.OutcomePublisher
	if cfg.OutcomeTopic != "" {
		projectID := cfg.FirebaseProjectID
		if projectID == "" {
			projectID = creds.ProjectID
		}
		pub, err := publisher.New(ctx, projectID, cfg.OutcomeTopic, creds.ClientOption())
		if err != nil {
			log.Warnw("Outcome publishing disabled", "topic", cfg.OutcomeTopic, "error", err)
		} else {
			defer pub.Close()
			outcomes = pub
			log.Infow("Outcome publishing enabled", "topic", cfg.OutcomeTopic)
		}
	}

	watcher := &store.Watcher{ResubscribeDelay: cfg.WatchResubscribeDelay, Log: log.Named("watch")}

	// Initialize repositories (dependency injection)
	userRepository := authRepo.NewUserRepository(db, cfg.UsersCollection)
	notificationRepository := notifRepo.NewNotificationRepository(db, cfg.NotificationsCollection, watcher, log.Named("notifications"))
	requestRepository := requestRepo.NewRequestRepository(db, cfg.RequestsCollection, cfg.NotificationsCollection, watcher, log.Named("requests"))

	owner := uuid.NewString()
	reconciler := notifUsecase.NewReconciler(
		notificationRepository,
		authUsecase.NewRecipientResolver(userRepository),
		fcmClient,
		outcomes,
		notifUsecase.Options{
			Owner:          owner,
			MaxAttempts:    cfg.DispatchMaxAttempts,
			RetryBaseDelay: cfg.DispatchRetryBaseDelay,
			RetryMaxDelay:  cfg.DispatchRetryMaxDelay,
			ClaimTTL:       cfg.DispatchClaimTTL,
			Message: notifUsecase.MessageDefaults{
				Title:            cfg.FCMDefaultTitle,
				Body:             cfg.FCMDefaultBody,
				AndroidChannelID: cfg.FCMAndroidChannelID,
			},
		},
		log.Named("reconciler"),
	)
	timeline := requestUsecase.NewTimelineWatcher(requestRepository, log.Named("timeline"))

	engine := dispatch.NewEngine(log.Named("engine"))
	engine.Register("notifications", reconciler)
	engine.Register("requests", timeline)
	if err := engine.Start(ctx); err != nil {
		log.Fatalw("Failed to start dispatch engine", "error", err)
	}
	log.Infow("Dispatcher running", "owner", owner)

	server := api.NewHandler(engine, log.Named("http")).Server(":" + cfg.Port)
	go func() {
		log.Infow("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("HTTP server failed", "error", err)
			stop()
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case <-engine.Done():
		log.Errorw("Dispatch engine exited", "error", engine.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP server shutdown", "error", err)
	}
	if err := engine.Stop(); err != nil {
		log.Errorw("Dispatch engine stopped with error", "error", err)
	}
	log.Info("Bye")
}
