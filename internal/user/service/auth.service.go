package service

import (
	"context"
	"errors"
	"strings"

	"noteszone/internal/user/repository"
	"noteszone/pkg/apperr"
	"noteszone/pkg/hash"
	"noteszone/pkg/token"
	"noteszone/store"

	"github.com/google/uuid"
)

type UserStore interface {
	Create(ctx context.Context, user *store.User) error
	FindByEmail(ctx context.Context, email string) (*store.User, error)
	FindByID(ctx context.Context, id string) (*store.User, error)
}

type TokenIssuer interface {
	Issue(id token.Identity) (string, error)
	Verify(credential string) (token.Identity, error)
}

// AuthResult is returned by register and login.
type AuthResult struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

// AuthService is the account directory: it registers users, checks
// credentials and verifies session tokens.
type AuthService struct {
	users  UserStore
	tokens TokenIssuer
}

func NewAuthService(users UserStore, tokens TokenIssuer) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	hashed, err := hash.Hash(password)
	switch {
	case errors.Is(err, hash.ErrPasswordTooShort):
		return nil, apperr.Validation("Password is too short")
	case errors.Is(err, hash.ErrPasswordTooLong):
		return nil, apperr.Validation("Password is too long")
	case err != nil:
		return nil, apperr.Internal(err)
	}
	user := &store.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        NormalizeEmail(email),
		PasswordHash: hashed,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperr.Validation("Email already registered")
		}
		return nil, apperr.Internal(err)
	}
	return s.issue(user)
}

func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Validation("Invalid credentials")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := hash.Compare(user.PasswordHash, password); err != nil {
		return nil, apperr.Validation("Invalid credentials")
	}
	return s.issue(user)
}

// VerifyToken checks signature and expiry and returns the encoded identity.
func (s *AuthService) VerifyToken(credential string) (token.Identity, error) {
	id, err := s.tokens.Verify(credential)
	if err != nil {
		return token.Identity{}, apperr.Unauthorized("Invalid or expired token")
	}
	return id, nil
}

// Verify satisfies token.Verifier.
func (s *AuthService) Verify(credential string) (token.Identity, error) {
	return s.VerifyToken(credential)
}

func (s *AuthService) Me(ctx context.Context, userID string) (*store.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// FindByEmail resolves a share target.
func (s *AuthService) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Target user not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}

func (s *AuthService) issue(user *store.User) (*AuthResult, error) {
	signed, err := s.tokens.Issue(token.Identity{ID: user.ID, Email: user.Email, Name: user.Name})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &AuthResult{Token: signed, User: user}, nil
}
