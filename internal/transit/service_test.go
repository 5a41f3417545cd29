package transit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vialibre/vialibre/internal/shared"
	_ "github.com/vialibre/vialibre/testing"
)

type mockRepository struct {
	routes    map[string]Route
	buses     map[string]Bus
	stops     map[string]Stop
	routeBus  map[string][]string
	plateSeen map[string]bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		routes:    make(map[string]Route),
		buses:     make(map[string]Bus),
		stops:     make(map[string]Stop),
		routeBus:  make(map[string][]string),
		plateSeen: make(map[string]bool),
	}
}

func (m *mockRepository) ListRoutes(ctx context.Context) ([]Route, error) {
	out := make([]Route, 0, len(m.routes))
	for _, r := range m.routes {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRepository) GetRoute(ctx context.Context, id string) (Route, error) {
	r, ok := m.routes[id]
	if !ok {
		return Route{}, shared.ErrNotFound
	}
	r.Buses = []Bus{}
	for _, busID := range m.routeBus[id] {
		if b, ok := m.buses[busID]; ok {
			r.Buses = append(r.Buses, b)
		}
	}
	return r, nil
}

func (m *mockRepository) CreateRoute(ctx context.Context, r Route) error {
	m.routes[r.ID] = r
	return nil
}

func (m *mockRepository) UpdateRoute(ctx context.Context, r Route) error {
	if _, ok := m.routes[r.ID]; !ok {
		return shared.ErrNotFound
	}
	m.routes[r.ID] = r
	return nil
}

func (m *mockRepository) DeleteRoute(ctx context.Context, id string) error {
	if _, ok := m.routes[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.routes, id)
	return nil
}

func (m *mockRepository) SetRouteBuses(ctx context.Context, routeID string, busIDs []string) error {
	if _, ok := m.routes[routeID]; !ok {
		return shared.ErrNotFound
	}
	var kept []string
	for _, id := range busIDs {
		if _, ok := m.buses[id]; ok {
			kept = append(kept, id)
		}
	}
	m.routeBus[routeID] = kept
	return nil
}

func (m *mockRepository) ListBuses(ctx context.Context) ([]Bus, error) {
	out := make([]Bus, 0, len(m.buses))
	for _, b := range m.buses {
		out = append(out, b)
	}
	return out, nil
}

func (m *mockRepository) GetBus(ctx context.Context, id string) (Bus, error) {
	b, ok := m.buses[id]
	if !ok {
		return Bus{}, shared.ErrNotFound
	}
	return b, nil
}

func (m *mockRepository) CreateBus(ctx context.Context, b Bus) error {
	if m.plateSeen[b.Plate] {
		return ErrDuplicate
	}
	m.plateSeen[b.Plate] = true
	m.buses[b.ID] = b
	return nil
}

func (m *mockRepository) UpdateBus(ctx context.Context, b Bus) error {
	if _, ok := m.buses[b.ID]; !ok {
		return shared.ErrNotFound
	}
	m.buses[b.ID] = b
	return nil
}

func (m *mockRepository) DeleteBus(ctx context.Context, id string) error {
	if _, ok := m.buses[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.buses, id)
	return nil
}

func (m *mockRepository) ListStops(ctx context.Context, routeID string, activeOnly bool) ([]Stop, error) {
	var out []Stop
	for _, s := range m.stops {
		if routeID != "" && s.RouteID != routeID {
			continue
		}
		if activeOnly && !s.Active {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *mockRepository) GetStop(ctx context.Context, id string) (Stop, error) {
	s, ok := m.stops[id]
	if !ok {
		return Stop{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *mockRepository) CreateStop(ctx context.Context, s Stop) error {
	m.stops[s.ID] = s
	return nil
}

func (m *mockRepository) UpdateStop(ctx context.Context, s Stop) error {
	if _, ok := m.stops[s.ID]; !ok {
		return shared.ErrNotFound
	}
	m.stops[s.ID] = s
	return nil
}

func (m *mockRepository) DeleteStop(ctx context.Context, id string) error {
	if _, ok := m.stops[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.stops, id)
	return nil
}

func (m *mockRepository) StopsInBox(ctx context.Context, latMin, latMax, lngMin, lngMax float64) ([]Stop, error) {
	var out []Stop
	for _, s := range m.stops {
		if !s.Active {
			continue
		}
		if s.Latitude < latMin || s.Latitude > latMax || s.Longitude < lngMin || s.Longitude > lngMax {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func addStop(repo *mockRepository, id, routeID string, lat, lng float64, active bool) {
	repo.stops[id] = Stop{ID: id, RouteID: routeID, Name: id, Latitude: lat, Longitude: lng, Active: active}
}

func TestCreateBusUppercasesPlate(t *testing.T) {
	svc := NewService(newMockRepository())

	b, err := svc.CreateBus(context.Background(), Bus{Plate: " abc-123 ", Brand: "Volvo"})
	require.NoError(t, err)
	assert.Equal(t, "ABC-123", b.Plate)
	assert.NotEmpty(t, b.ID)
}

func TestCreateBusDuplicatePlate(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.CreateBus(context.Background(), Bus{Plate: "ABC-123"})
	require.NoError(t, err)
	_, err = svc.CreateBus(context.Background(), Bus{Plate: "abc-123"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCreateRouteLinksBuses(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	bus, err := svc.CreateBus(context.Background(), Bus{Plate: "ABC-123"})
	require.NoError(t, err)

	rt, err := svc.CreateRoute(context.Background(), "Ruta Norte", nil, nil, []string{bus.ID, "unknown"})
	require.NoError(t, err)
	require.Len(t, rt.Buses, 1)
	assert.Equal(t, bus.ID, rt.Buses[0].ID)
}

func TestCreateRouteRequiresName(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.CreateRoute(context.Background(), "   ", nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestToggleStop(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	addStop(repo, "s1", "r1", -0.21, -78.49, true)

	st, err := svc.ToggleStop(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, st.Active)

	st, err = svc.ToggleStop(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, st.Active)
}

func TestNearbyStopsOrderedByDistance(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	// Center near the university stop; distances grow northwards.
	addStop(repo, "cercana", "r1", -0.2105, -78.4883, true)
	addStop(repo, "media", "r1", -0.2000, -78.4880, true)
	addStop(repo, "lejana", "r1", -0.1830, -78.4850, true)
	addStop(repo, "fuera", "r1", -0.0948, -78.4895, true)
	addStop(repo, "inactiva", "r1", -0.2106, -78.4884, false)

	got, err := svc.NearbyStops(context.Background(), -0.2105, -78.4883, 5)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "cercana", got[0].ID)
	assert.Equal(t, "media", got[1].ID)
	assert.Equal(t, "lejana", got[2].ID)
	assert.Less(t, got[0].DistanceM, got[1].DistanceM)
	assert.Less(t, got[1].DistanceM, got[2].DistanceM)
}

func TestNearbyStopsDefaultRadius(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	addStop(repo, "cercana", "r1", -0.2105, -78.4883, true)

	got, err := svc.NearbyStops(context.Background(), -0.2105, -78.4883, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestNearbyStopsEmptyIsNotNil(t *testing.T) {
	svc := NewService(newMockRepository())

	got, err := svc.NearbyStops(context.Background(), -0.2105, -78.4883, 1)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

var _ Repository = (*mockRepository)(nil)
