package domain

// RoleAdmin is both the admin profile role and the broadcast target id.
const RoleAdmin = "admin"

// User is the read-only profile the dispatcher resolves delivery tokens from.
type User struct {
	ID       string `firestore:"-"`
	Name     string `firestore:"name,omitempty"`
	Email    string `firestore:"email,omitempty"`
	Role     string `firestore:"role,omitempty"`
	FCMToken string `firestore:"fcmToken,omitempty"` // empty until the user registers a device
}
