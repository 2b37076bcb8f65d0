package store

import (
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Added, kindOf(firestore.DocumentAdded))
	assert.Equal(t, Modified, kindOf(firestore.DocumentModified))
	assert.Equal(t, Removed, kindOf(firestore.DocumentRemoved))
}

func TestChangeKind_String(t *testing.T) {
	assert.Equal(t, "added", Added.String())
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, "removed", Removed.String())
	assert.Equal(t, "unknown", ChangeKind(42).String())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(status.Error(codes.NotFound, "no such document")))
	assert.False(t, IsNotFound(status.Error(codes.Unavailable, "try later")))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsNotFound(fmt.Errorf("wrapped: %w", errors.New("plain"))))
}
