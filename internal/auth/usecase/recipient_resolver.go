package usecase

import (
	"context"

	authdomain "notification-bridge/internal/auth/domain"
	"notification-bridge/internal/auth/repository"
)

// RecipientResolver turns a notification target into device tokens
type RecipientResolver interface {
	// Resolve returns an empty list, not an error, when nobody is reachable.
	// The admin target expands to every admin profile; duplicates are kept.
	Resolve(ctx context.Context, targetID string) ([]string, error)
}

type recipientResolver struct {
	userRepo repository.UserRepository
}

// NewRecipientResolver creates a resolver backed by the profile store
func NewRecipientResolver(userRepo repository.UserRepository) RecipientResolver {
	return &recipientResolver{userRepo: userRepo}
}

func (r *recipientResolver) Resolve(ctx context.Context, targetID string) ([]string, error) {
	if targetID == authdomain.RoleAdmin {
		admins, err := r.userRepo.FindByRole(ctx, authdomain.RoleAdmin)
		if err != nil {
			return nil, err
		}

		tokens := make([]string, 0, len(admins))
		for _, admin := range admins {
			if admin.FCMToken != "" {
				tokens = append(tokens, admin.FCMToken)
			}
		}
		return tokens, nil
	}

	user, err := r.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.FCMToken == "" {
		return []string{}, nil
	}
	return []string{user.FCMToken}, nil
}
