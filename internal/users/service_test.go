package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vialibre/vialibre/internal/shared"
	_ "github.com/vialibre/vialibre/testing"
)

type mockRepository struct {
	users  map[string]User
	hashes map[string]string
	roles  map[string][]RoleRef
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:  make(map[string]User),
		hashes: make(map[string]string),
		roles:  make(map[string][]RoleRef),
	}
}

func (m *mockRepository) List(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, id string) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *mockRepository) GetByUsername(ctx context.Context, username string) (User, string, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, m.hashes[u.ID], nil
		}
	}
	return User{}, "", shared.ErrNotFound
}

func (m *mockRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (m *mockRepository) Create(ctx context.Context, u User, passwordHash string) error {
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	m.users[u.ID] = u
	m.hashes[u.ID] = passwordHash
	return nil
}

func (m *mockRepository) Update(ctx context.Context, u User) error {
	if _, ok := m.users[u.ID]; !ok {
		return shared.ErrNotFound
	}
	m.users[u.ID] = u
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockRepository) PasswordHash(ctx context.Context, id string) (string, error) {
	hash, ok := m.hashes[id]
	if !ok {
		return "", shared.ErrNotFound
	}
	return hash, nil
}

func (m *mockRepository) SetPassword(ctx context.Context, id, hash string) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	m.hashes[id] = hash
	return nil
}

func (m *mockRepository) TouchLastConnection(ctx context.Context, id string) error {
	return nil
}

func (m *mockRepository) RolesFor(ctx context.Context, userID string) ([]RoleRef, error) {
	return m.roles[userID], nil
}

func TestCreateHashesPassword(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	u, err := svc.Create(context.Background(), CreateInput{
		Username: "elena",
		Email:    "Elena@Vialibre.Local",
		Password: "super-secreto",
		IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "elena@vialibre.local", u.Email)
	assert.NotEmpty(t, u.ID)

	hash := repo.hashes[u.ID]
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "super-secreto", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("super-secreto")))
}

func TestCreateRejectsWeakPassword(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Create(context.Background(), CreateInput{
		Username: "elena",
		Email:    "elena@vialibre.local",
		Password: "corta",
	})
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestCreateRequiresUsernameAndEmail(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Create(context.Background(), CreateInput{Password: "super-secreto"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateDuplicateUsername(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), CreateInput{
		Username: "elena", Email: "a@vialibre.local", Password: "super-secreto"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{
		Username: "elena", Email: "b@vialibre.local", Password: "super-secreto"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUpdateProfilePartialPatch(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	u, err := svc.Create(context.Background(), CreateInput{
		Username: "elena", Email: "elena@vialibre.local", Password: "super-secreto",
		FirstName: "Elena", LastName: "Estudiante", Phone: "0991112222"})
	require.NoError(t, err)

	phone := "0993334444"
	lat := -0.2105
	updated, err := svc.UpdateProfile(context.Background(), u.ID, ProfileUpdate{
		Phone:       &phone,
		GPSLatitude: &lat,
	})
	require.NoError(t, err)

	assert.Equal(t, "0993334444", updated.Phone)
	require.NotNil(t, updated.GPSLatitude)
	assert.Equal(t, lat, *updated.GPSLatitude)
	// Untouched fields survive.
	assert.Equal(t, "Elena", updated.FirstName)
	assert.Equal(t, "Estudiante", updated.LastName)
}

func TestCheckPassword(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	u, err := svc.Create(context.Background(), CreateInput{
		Username: "elena", Email: "elena@vialibre.local", Password: "super-secreto"})
	require.NoError(t, err)

	assert.NoError(t, svc.CheckPassword(context.Background(), u.ID, "super-secreto"))
	assert.Error(t, svc.CheckPassword(context.Background(), u.ID, "incorrecta"))
}

func TestSetPasswordEnforcesMinimum(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	u, err := svc.Create(context.Background(), CreateInput{
		Username: "elena", Email: "elena@vialibre.local", Password: "super-secreto"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.SetPassword(context.Background(), u.ID, "corta"), ErrWeakPassword)
	require.NoError(t, svc.SetPassword(context.Background(), u.ID, "nueva-clave-larga"))
	assert.NoError(t, svc.CheckPassword(context.Background(), u.ID, "nueva-clave-larga"))
}

func TestGetAttachesRoles(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	u, err := svc.Create(context.Background(), CreateInput{
		Username: "elena", Email: "elena@vialibre.local", Password: "super-secreto"})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Roles)
	assert.Empty(t, got.Roles)

	repo.roles[u.ID] = []RoleRef{{ID: "r1", Name: "Estudiante", Slug: "estudiante"}}
	got, err = svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, got.Roles, 1)
	assert.Equal(t, "estudiante", got.Roles[0].Slug)
}
