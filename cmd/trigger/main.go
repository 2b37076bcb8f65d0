// Command trigger creates a pending test notification so a running bridge can pick it up.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	notifdomain "notification-bridge/internal/notification/domain"
	notifRepo "notification-bridge/internal/notification/repository"
	"notification-bridge/pkg/config"
	"notification-bridge/pkg/credentials"
	"notification-bridge/pkg/logger"
)

// intentStore is the part of the notification repository the command writes through.
type intentStore interface {
	Create(ctx context.Context, n *notifdomain.Notification) (string, error)
}

// connectFunc opens the store. The returned func releases it.
type connectFunc func(ctx context.Context, cfg *config.Config) (intentStore, func(), error)

func main() {
	if err := newRootCmd(connectFirestore).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(connect connectFunc) *cobra.Command {
	var target, title, body, notificationType string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Create a pending test notification",
		Long:  `Adds a pending notification record. A running bridge delivers it and marks it sent.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			st, release, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			n := notifdomain.NewIntent(target, title, body, notificationType, nil)
			id, err := st.Create(cmd.Context(), n)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Test notification added: %s (target %s)\n", id, target)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "admin", "target user id, or admin to broadcast to every admin")
	cmd.Flags().StringVar(&title, "title", "Test Notification 🔔", "notification title")
	cmd.Flags().StringVar(&body, "body", "This is a test from the notification bridge!", "notification body")
	cmd.Flags().StringVar(&notificationType, "type", notifdomain.DefaultType, "notification type")
	return cmd
}

func connectFirestore(ctx context.Context, cfg *config.Config) (intentStore, func(), error) {
	log, err := logger.New(cfg.IsDevelopment())
	if err != nil {
		return nil, nil, err
	}

	creds, err := credentials.Load(ctx, cfg.FirebaseServiceAccount, cfg.FirebaseCredentialsFile)
	if err != nil {
		return nil, nil, err
	}
	app, err := creds.NewFirebaseApp(ctx, cfg.FirebaseProjectID)
	if err != nil {
		return nil, nil, err
	}
	db, err := app.Firestore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Firestore: %w", err)
	}

	repo := notifRepo.NewNotificationRepository(db, cfg.NotificationsCollection, nil, log)
	return repo, func() {
		db.Close()
		_ = log.Sync()
	}, nil
}
