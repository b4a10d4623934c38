package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"noteszone/internal/user/repository"
	"noteszone/pkg/apperr"
	"noteszone/pkg/token"
	"noteszone/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUserStore struct {
	users map[string]*store.User
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]*store.User)}
}

func (m *mockUserStore) Create(_ context.Context, user *store.User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	user.CreatedAt = time.Now()
	m.users[user.ID] = user
	return nil
}

func (m *mockUserStore) FindByEmail(_ context.Context, email string) (*store.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserStore) FindByID(_ context.Context, id string) (*store.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func newService() *AuthService {
	return NewAuthService(newMockUserStore(), token.NewManager("test-secret", time.Hour))
}

func TestRegisterIssuesVerifiableToken(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	res, err := svc.Register(ctx, " Alice ", "Alice@Example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, "Alice", res.User.Name)
	assert.NotEqual(t, "password1", res.User.PasswordHash)

	id, err := svc.VerifyToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, token.Identity{ID: res.User.ID, Email: "alice@example.com", Name: "Alice"}, id)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice@example.com", "password1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Alice 2", "ALICE@example.com", "password2")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	_, err := newService().Register(context.Background(), "Alice", "alice@example.com", "abc")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "Password is too short", apperr.MessageOf(err))
}

func TestRegisterRejectsOverlongPasswordWithoutHashDetails(t *testing.T) {
	_, err := newService().Register(context.Background(), "Alice", "alice@example.com", strings.Repeat("x", 73))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "Password is too long", apperr.MessageOf(err))
	assert.NotContains(t, apperr.MessageOf(err), "bcrypt")
}

func TestAuthenticate(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "Alice", "alice@example.com", "password1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  bool
	}{
		{"valid", "alice@example.com", "password1", false},
		{"case insensitive email", "ALICE@example.com", "password1", false},
		{"wrong password", "alice@example.com", "password2", true},
		{"unknown email", "nobody@example.com", "password1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Authenticate(ctx, tt.email, tt.password)
			if tt.wantErr {
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				assert.Equal(t, "Invalid credentials", apperr.MessageOf(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, res.Token)
		})
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	_, err := newService().VerifyToken("garbage")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestMeAndFindByEmail(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	res, err := svc.Register(ctx, "Bob", "bob@example.com", "password1")
	require.NoError(t, err)

	me, err := svc.Me(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", me.Name)

	_, err = svc.Me(ctx, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	target, err := svc.FindByEmail(ctx, " BOB@example.com ")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, target.ID)

	_, err = svc.FindByEmail(ctx, "nobody@example.com")
	assert.Equal(t, "Target user not found", apperr.MessageOf(err))
}
