package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	authdomain "notification-bridge/internal/auth/domain"
	"notification-bridge/pkg/store"
)

// UserRepository defines the read-only profile lookups the dispatcher needs
type UserRepository interface {
	// FindByID returns nil, nil when the profile does not exist
	FindByID(ctx context.Context, id string) (*authdomain.User, error)

	// FindByRole returns every profile with the given role
	FindByRole(ctx context.Context, role string) ([]*authdomain.User, error)
}

// userRepository implements UserRepository on a Firestore collection
type userRepository struct {
	client     *firestore.Client
	collection string
}

// NewUserRepository creates a new instance of userRepository
func NewUserRepository(client *firestore.Client, collection string) UserRepository {
	return &userRepository{
		client:     client,
		collection: collection,
	}
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*authdomain.User, error) {
	if id == "" {
		return nil, nil
	}

	snap, err := r.client.Collection(r.collection).Doc(id).Get(ctx)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	return userFromData(snap.Ref.ID, snap.Data()), nil
}

func (r *userRepository) FindByRole(ctx context.Context, role string) ([]*authdomain.User, error) {
	iter := r.client.Collection(r.collection).Where("role", "==", role).Documents(ctx)
	defer iter.Stop()

	var users []*authdomain.User
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query users with role %s: %w", role, err)
		}

		users = append(users, userFromData(snap.Ref.ID, snap.Data()))
	}
	return users, nil
}

// userFromData reads each field on its own so a malformed profile field never
// hides the rest of the profile or the other profiles in a query.
func userFromData(id string, data map[string]interface{}) *authdomain.User {
	user := &authdomain.User{ID: id}
	user.Name, _ = data["name"].(string)
	user.Email, _ = data["email"].(string)
	user.Role, _ = data["role"].(string)
	user.FCMToken, _ = data["fcmToken"].(string)
	return user
}
