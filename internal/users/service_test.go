package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memRepo struct {
	nextID  int64
	byID    map[int64]User
	byEmail map[string]User
	byKey   map[string]User
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID:  1,
		byID:    make(map[int64]User),
		byEmail: make(map[string]User),
		byKey:   make(map[string]User),
	}
}

func (m *memRepo) store(u User) {
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	m.byKey[u.APIKey] = u
}

func (m *memRepo) Insert(ctx context.Context, u User) (User, error) {
	if _, exists := m.byEmail[u.Email]; exists {
		return User{}, errEmailTaken
	}
	u.ID = m.nextID
	m.nextID++
	m.store(u)
	return u, nil
}

func (m *memRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return User{}, errUserMissing
	}
	return u, nil
}

func (m *memRepo) GetByAPIKey(ctx context.Context, apiKey string) (User, error) {
	u, ok := m.byKey[apiKey]
	if !ok {
		return User{}, errUserMissing
	}
	return u, nil
}

func (m *memRepo) GetByID(ctx context.Context, id int64) (User, error) {
	u, ok := m.byID[id]
	if !ok {
		return User{}, errUserMissing
	}
	return u, nil
}

func (m *memRepo) UpdateAPIKey(ctx context.Context, id int64, apiKey string) error {
	u, ok := m.byID[id]
	if !ok {
		return errUserMissing
	}
	delete(m.byKey, u.APIKey)
	u.APIKey = apiKey
	m.store(u)
	return nil
}

func TestCreateHashesPasswordAndIssuesKey(t *testing.T) {
	service := NewService(newMemRepo())
	ctx := context.Background()

	created, err := service.Create(ctx, " Jo@Example.COM ", "Jo", "correct horse")
	require.NoError(t, err)
	require.Equal(t, "jo@example.com", created.Email)
	require.NotEmpty(t, created.APIKey)
	require.NotEqual(t, "correct horse", created.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("correct horse")))

	_, err = service.Create(ctx, "jo@example.com", "Jo", "another pass")
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = service.Create(ctx, "short@example.com", "S", "short")
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestAuthenticate(t *testing.T) {
	service := NewService(newMemRepo())
	ctx := context.Background()

	created, err := service.Create(ctx, "jo@example.com", "Jo", "correct horse")
	require.NoError(t, err)

	u, err := service.Authenticate(ctx, "jo@example.com", "correct horse")
	require.NoError(t, err)
	require.Equal(t, created.ID, u.ID)

	_, err = service.Authenticate(ctx, "jo@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = service.Authenticate(ctx, "nobody@example.com", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRotateAPIKey(t *testing.T) {
	service := NewService(newMemRepo())
	ctx := context.Background()

	created, err := service.Create(ctx, "jo@example.com", "Jo", "correct horse")
	require.NoError(t, err)

	actor, err := service.ActorForAPIKey(ctx, created.APIKey)
	require.NoError(t, err)
	require.Equal(t, created.ID, actor.ID)

	newKey, err := service.RotateAPIKey(ctx, created.ID)
	require.NoError(t, err)
	require.NotEqual(t, created.APIKey, newKey)

	_, err = service.ActorForAPIKey(ctx, created.APIKey)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = service.ActorForAPIKey(ctx, newKey)
	require.NoError(t, err)
}
