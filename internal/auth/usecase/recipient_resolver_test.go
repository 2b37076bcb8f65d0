package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authdomain "notification-bridge/internal/auth/domain"
)

type mockUserRepository struct {
	users     map[string]*authdomain.User
	err       error
	roleCalls int
	idCalls   int
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*authdomain.User, error) {
	m.idCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.users[id], nil
}

func (m *mockUserRepository) FindByRole(ctx context.Context, role string) ([]*authdomain.User, error) {
	m.roleCalls++
	if m.err != nil {
		return nil, m.err
	}
	var out []*authdomain.User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestResolve_AdminBroadcast(t *testing.T) {
	repo := &mockUserRepository{users: map[string]*authdomain.User{
		"a1": {ID: "a1", Role: "admin", FCMToken: "tkA"},
		"a2": {ID: "a2", Role: "admin", FCMToken: "tkB"},
		"a3": {ID: "a3", Role: "admin"},
		"s1": {ID: "s1", Role: "student", FCMToken: "tkS"},
	}}

	tokens, err := NewRecipientResolver(repo).Resolve(context.Background(), "admin")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"tkA", "tkB"}, tokens)
	assert.Equal(t, 1, repo.roleCalls)
	assert.Zero(t, repo.idCalls)
}

func TestResolve_AdminDuplicatesPreserved(t *testing.T) {
	repo := &mockUserRepository{users: map[string]*authdomain.User{
		"a1": {ID: "a1", Role: "admin", FCMToken: "shared"},
		"a2": {ID: "a2", Role: "admin", FCMToken: "shared"},
	}}

	tokens, err := NewRecipientResolver(repo).Resolve(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"shared", "shared"}, tokens)
}

func TestResolve_SingleUser(t *testing.T) {
	repo := &mockUserRepository{users: map[string]*authdomain.User{
		"u1": {ID: "u1", Role: "student", FCMToken: "tk1"},
		"u2": {ID: "u2", Role: "student"},
	}}
	resolver := NewRecipientResolver(repo)

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{name: "user with token", target: "u1", want: []string{"tk1"}},
		{name: "user without token", target: "u2", want: []string{}},
		{name: "unknown user", target: "ghost", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := resolver.Resolve(context.Background(), tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tokens)
		})
	}
}

func TestResolve_PropagatesLookupErrors(t *testing.T) {
	lookup := errors.New("firestore unavailable")
	resolver := NewRecipientResolver(&mockUserRepository{err: lookup})

	_, err := resolver.Resolve(context.Background(), "admin")
	assert.ErrorIs(t, err, lookup)

	_, err = resolver.Resolve(context.Background(), "u1")
	assert.ErrorIs(t, err, lookup)
}
