package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vialibre/vialibre/internal/shared"
	_ "github.com/vialibre/vialibre/testing"
)

type mockRepository struct {
	roles     map[string]Role
	users     map[string]bool
	resources map[string]bool
	links     map[string]map[string]bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles:     make(map[string]Role),
		users:     make(map[string]bool),
		resources: make(map[string]bool),
		links:     make(map[string]map[string]bool),
	}
}

func (m *mockRepository) List(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, id string) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (m *mockRepository) Create(ctx context.Context, role Role) error {
	m.roles[role.ID] = role
	return nil
}

func (m *mockRepository) Update(ctx context.Context, role Role) error {
	if _, ok := m.roles[role.ID]; !ok {
		return shared.ErrNotFound
	}
	m.roles[role.ID] = role
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

func (m *mockRepository) link(roleID string, ids []string, known map[string]bool) ([]string, error) {
	if _, ok := m.roles[roleID]; !ok {
		return nil, shared.ErrNotFound
	}
	if m.links[roleID] == nil {
		m.links[roleID] = make(map[string]bool)
	}
	var accepted []string
	for _, id := range ids {
		if !known[id] {
			continue
		}
		m.links[roleID][id] = true
		accepted = append(accepted, id)
	}
	return accepted, nil
}

func (m *mockRepository) LinkUsers(ctx context.Context, roleID string, userIDs []string) ([]string, error) {
	return m.link(roleID, userIDs, m.users)
}

func (m *mockRepository) LinkResources(ctx context.Context, roleID string, resourceIDs []string) ([]string, error) {
	return m.link(roleID, resourceIDs, m.resources)
}

func TestCreateRole(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	role, err := svc.Create(context.Background(), "  Conductor  ", "", "maneja buses")
	require.NoError(t, err)
	assert.Equal(t, "Conductor", role.Name)
	assert.Equal(t, "conductor", role.Slug)
	assert.NotEmpty(t, role.ID)
	assert.False(t, role.CreatedAt.IsZero())
}

func TestCreateRoleRequiresName(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Create(context.Background(), "   ", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateRoleSlugFromMultiWordName(t *testing.T) {
	svc := NewService(newMockRepository())

	role, err := svc.Create(context.Background(), "Jefe de Operaciones", "", "")
	require.NoError(t, err)
	assert.Equal(t, "jefe-de-operaciones", role.Slug)
}

func TestAssignUsersDropsUnknownIDs(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	role, err := svc.Create(context.Background(), "Estudiante", "", "")
	require.NoError(t, err)

	repo.users["11111111-1111-1111-1111-111111111111"] = true

	got, err := svc.AssignUsers(context.Background(), role.ID, []string{
		"11111111-1111-1111-1111-111111111111",
		"99999999-9999-9999-9999-999999999999",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"11111111-1111-1111-1111-111111111111"}, got.Assigned)
}

func TestAssignUsersIdempotent(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	role, err := svc.Create(context.Background(), "Estudiante", "", "")
	require.NoError(t, err)

	userID := "11111111-1111-1111-1111-111111111111"
	repo.users[userID] = true

	first, err := svc.AssignUsers(context.Background(), role.ID, []string{userID})
	require.NoError(t, err)
	second, err := svc.AssignUsers(context.Background(), role.ID, []string{userID})
	require.NoError(t, err)

	assert.Equal(t, first.Assigned, second.Assigned)
	assert.Len(t, repo.links[role.ID], 1)
}

func TestAssignUsersUnknownRole(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.AssignUsers(context.Background(), "missing", []string{"x"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignResourcesEmptyResultIsNotNil(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	role, err := svc.Create(context.Background(), "Conductor", "", "")
	require.NoError(t, err)

	got, err := svc.AssignResources(context.Background(), role.ID, []string{"nope"})
	require.NoError(t, err)
	assert.NotNil(t, got.Assigned)
	assert.Empty(t, got.Assigned)
}
