package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/crossledger/crossledger/internal/platform/httpx"
	"github.com/crossledger/crossledger/internal/shared"
)

// Domain errors surfaced to the HTTP layer.
var (
	ErrEmailTaken         = fmt.Errorf("users: email already registered: %w", httpx.ErrDuplicate)
	ErrInvalidCredentials = fmt.Errorf("users: invalid credentials: %w", httpx.ErrUnauthorized)
	ErrNotFound           = fmt.Errorf("users: %w", httpx.ErrNotFound)
	ErrWeakPassword       = fmt.Errorf("users: password must be at least 8 characters: %w", httpx.ErrValidation)
)

// Service manages user accounts and API-key authentication.
type Service struct {
	repo  Repository
	cache *KeyCache
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// WithKeyCache enables Redis-backed API-key memoisation.
func (s *Service) WithKeyCache(cache *KeyCache) *Service {
	s.cache = cache
	return s
}

// Create registers a user. The password is bcrypt-hashed and a fresh
// API key is issued.
func (s *Service) Create(ctx context.Context, email, name, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(password) < 8 {
		return User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	created, err := s.repo.Insert(ctx, User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		APIKey:       uuid.NewString(),
	})
	if err != nil {
		if errors.Is(err, errEmailTaken) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return created, nil
}

// Authenticate verifies credentials and returns the account with its
// API key. Unknown email and wrong password are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, errUserMissing) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// ActorForAPIKey resolves a bearer API key to an actor identity.
func (s *Service) ActorForAPIKey(ctx context.Context, apiKey string) (shared.Actor, error) {
	if actor, ok := s.cache.Get(ctx, apiKey); ok {
		return actor, nil
	}
	u, err := s.repo.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, errUserMissing) {
			return shared.Actor{}, ErrInvalidCredentials
		}
		return shared.Actor{}, err
	}
	actor := shared.Actor{ID: u.ID, Email: u.Email, Name: u.Name}
	s.cache.Set(ctx, apiKey, actor)
	return actor, nil
}

// RotateAPIKey replaces the account's API key and returns the new
// one. The old key stops working immediately.
func (s *Service) RotateAPIKey(ctx context.Context, userID int64) (string, error) {
	current, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errUserMissing) {
			return "", ErrNotFound
		}
		return "", err
	}
	key := uuid.NewString()
	if err := s.repo.UpdateAPIKey(ctx, userID, key); err != nil {
		if errors.Is(err, errUserMissing) {
			return "", ErrNotFound
		}
		return "", err
	}
	if err := s.cache.Invalidate(ctx, current.APIKey); err != nil {
		return "", err
	}
	return key, nil
}
