// Package storetest connects tests to a local Firestore emulator.
package storetest

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const projectID = "notification-bridge-test"

// Client returns a client bound to the emulator at FIRESTORE_EMULATOR_HOST and
// skips the test when the variable is unset.
func Client(t *testing.T) *firestore.Client {
	t.Helper()

	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	client, err := firestore.NewClient(context.Background(), projectID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// Collection returns a collection name no other test uses.
func Collection(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
