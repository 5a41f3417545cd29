package gps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vialibre/vialibre/internal/shared"
	_ "github.com/vialibre/vialibre/testing"
)

type mockRepository struct {
	positions map[string]Position
	devices   map[string]Device
	events    map[string]DeviationEvent

	lastPositionSet map[string]string
	lastListLimit   int
	devicePosErr    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		positions:       make(map[string]Position),
		devices:         make(map[string]Device),
		events:          make(map[string]DeviationEvent),
		lastPositionSet: make(map[string]string),
	}
}

func (m *mockRepository) InsertPosition(ctx context.Context, p Position) error {
	m.positions[p.ID] = p
	return nil
}

func (m *mockRepository) GetPosition(ctx context.Context, id string) (Position, error) {
	p, ok := m.positions[id]
	if !ok {
		return Position{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *mockRepository) ListPositions(ctx context.Context, routeID, userID string, limit int) ([]Position, error) {
	m.lastListLimit = limit
	var out []Position
	for _, p := range m.positions {
		if routeID != "" && (p.RouteID == nil || *p.RouteID != routeID) {
			continue
		}
		if userID != "" && (p.UserID == nil || *p.UserID != userID) {
			continue
		}
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *mockRepository) PositionsInBox(ctx context.Context, latMin, latMax, lngMin, lngMax float64, since, until *time.Time) ([]Position, error) {
	var out []Position
	for _, p := range m.positions {
		if p.Latitude < latMin || p.Latitude > latMax || p.Longitude < lngMin || p.Longitude > lngMax {
			continue
		}
		if since != nil && p.RecordedAt.Before(*since) {
			continue
		}
		if until != nil && p.RecordedAt.After(*until) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *mockRepository) ListDevices(ctx context.Context) ([]Device, error) {
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, nil
}

func (m *mockRepository) GetDevice(ctx context.Context, id string) (Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return Device{}, shared.ErrNotFound
	}
	return d, nil
}

func (m *mockRepository) CreateDevice(ctx context.Context, d Device) error {
	m.devices[d.ID] = d
	return nil
}

func (m *mockRepository) UpdateDevice(ctx context.Context, d Device) error {
	if _, ok := m.devices[d.ID]; !ok {
		return shared.ErrNotFound
	}
	m.devices[d.ID] = d
	return nil
}

func (m *mockRepository) DeleteDevice(ctx context.Context, id string) error {
	if _, ok := m.devices[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *mockRepository) SetDeviceLastPosition(ctx context.Context, deviceID, positionID string) error {
	if m.devicePosErr != nil {
		return m.devicePosErr
	}
	m.lastPositionSet[deviceID] = positionID
	return nil
}

func (m *mockRepository) ListEvents(ctx context.Context, routeID, state string) ([]DeviationEvent, error) {
	var out []DeviationEvent
	for _, e := range m.events {
		if routeID != "" && (e.RouteID == nil || *e.RouteID != routeID) {
			continue
		}
		if state != "" && e.State != state {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockRepository) GetEvent(ctx context.Context, id string) (DeviationEvent, error) {
	e, ok := m.events[id]
	if !ok {
		return DeviationEvent{}, shared.ErrNotFound
	}
	return e, nil
}

func (m *mockRepository) CreateEvent(ctx context.Context, e DeviationEvent) error {
	m.events[e.ID] = e
	return nil
}

func (m *mockRepository) UpdateEvent(ctx context.Context, e DeviationEvent) error {
	if _, ok := m.events[e.ID]; !ok {
		return shared.ErrNotFound
	}
	m.events[e.ID] = e
	return nil
}

func (m *mockRepository) DeleteEvent(ctx context.Context, id string) error {
	if _, ok := m.events[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func addFix(repo *mockRepository, id string, lat, lng float64, at time.Time) {
	repo.positions[id] = Position{ID: id, Latitude: lat, Longitude: lng, RecordedAt: at}
}

func TestRecordPositionRejectsOutOfRange(t *testing.T) {
	svc := NewService(nil, newMockRepository())

	_, err := svc.RecordPosition(context.Background(), Position{Latitude: 91, Longitude: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.RecordPosition(context.Background(), Position{Latitude: 0, Longitude: -181})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordPositionDefaultsTimestamp(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(nil, repo)
	fixed := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	p, err := svc.RecordPosition(context.Background(), Position{Latitude: -0.21, Longitude: -78.49})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.RecordedAt.Equal(fixed))
	assert.Contains(t, repo.positions, p.ID)
}

func TestRecordPositionKeepsProvidedTimestamp(t *testing.T) {
	svc := NewService(nil, newMockRepository())
	at := time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC)

	p, err := svc.RecordPosition(context.Background(), Position{Latitude: -0.21, Longitude: -78.49, RecordedAt: at})
	require.NoError(t, err)
	assert.True(t, p.RecordedAt.Equal(at))
}

func TestRecordPositionUpdatesDeviceLastFix(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(nil, repo)
	deviceID := "dev1"

	p, err := svc.RecordPosition(context.Background(), Position{
		Latitude: -0.21, Longitude: -78.49, DeviceID: &deviceID})
	require.NoError(t, err)
	assert.Equal(t, p.ID, repo.lastPositionSet["dev1"])
}

func TestRecordPositionSurvivesDeviceUpdateFailure(t *testing.T) {
	repo := newMockRepository()
	repo.devicePosErr = errors.New("device gone")
	svc := NewService(nil, repo)
	deviceID := "dev1"

	p, err := svc.RecordPosition(context.Background(), Position{
		Latitude: -0.21, Longitude: -78.49, DeviceID: &deviceID})
	require.NoError(t, err)
	assert.Contains(t, repo.positions, p.ID)
}

func TestListPositionsClampsLimit(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(nil, repo)

	_, err := svc.ListPositions(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultListLimit, repo.lastListLimit)

	_, err = svc.ListPositions(context.Background(), "", "", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, repo.lastListLimit)

	_, err = svc.ListPositions(context.Background(), "", "", defaultListLimit+1)
	require.NoError(t, err)
	assert.Equal(t, defaultListLimit, repo.lastListLimit)
}

func TestWithinRadiusDefaultsAndFilters(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(nil, repo)
	now := time.Now().UTC()

	// Fixes around a stop in Quito; "lejana" sits past the default 500 m.
	addFix(repo, "encima", -0.2105, -78.4883, now)
	addFix(repo, "cerca", -0.2120, -78.4883, now)
	addFix(repo, "lejana", -0.2180, -78.4883, now)

	got, err := svc.WithinRadius(context.Background(), RadiusQuery{Latitude: -0.2105, Longitude: -78.4883})
	require.NoError(t, err)

	require.Len(t, got, 2)
	ids := []string{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []string{"encima", "cerca"}, ids)
	for _, p := range got {
		assert.LessOrEqual(t, p.DistanceM, 500.0)
	}
}

func TestWithinRadiusHonorsLimit(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(nil, repo)
	now := time.Now().UTC()
	addFix(repo, "a", -0.2105, -78.4883, now)
	addFix(repo, "b", -0.2106, -78.4883, now)
	addFix(repo, "c", -0.2107, -78.4883, now)

	got, err := svc.WithinRadius(context.Background(), RadiusQuery{
		Latitude: -0.2105, Longitude: -78.4883, Meters: 1000, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestWithinRadiusTimeWindow(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(nil, repo)
	old := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	addFix(repo, "vieja", -0.2105, -78.4883, old)
	addFix(repo, "nueva", -0.2105, -78.4884, recent)

	since := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	got, err := svc.WithinRadius(context.Background(), RadiusQuery{
		Latitude: -0.2105, Longitude: -78.4883, Meters: 1000, Since: &since})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "nueva", got[0].ID)
}

func TestWithinRadiusEmptyIsNotNil(t *testing.T) {
	svc := NewService(nil, newMockRepository())

	got, err := svc.WithinRadius(context.Background(), RadiusQuery{Latitude: -0.2105, Longitude: -78.4883})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCreateDeviceRequiresIMEI(t *testing.T) {
	svc := NewService(nil, newMockRepository())

	_, err := svc.CreateDevice(context.Background(), "   ", "bus 7", true)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateDeviceTrims(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(nil, repo)

	d, err := svc.CreateDevice(context.Background(), " 356938035643809 ", " rastreador bus 7 ", true)
	require.NoError(t, err)
	assert.Equal(t, "356938035643809", d.IMEI)
	assert.Equal(t, "rastreador bus 7", d.Name)
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.CreatedAt.IsZero())
}

func TestCreateEventDefaults(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(nil, repo)

	e, err := svc.CreateEvent(context.Background(), DeviationEvent{Kind: "fuera_de_ruta"})
	require.NoError(t, err)
	assert.Equal(t, "abierto", e.State)
	assert.False(t, e.OccurredAt.IsZero())
	assert.NotEmpty(t, e.ID)
}

func TestCreateEventRequiresKind(t *testing.T) {
	svc := NewService(nil, newMockRepository())

	_, err := svc.CreateEvent(context.Background(), DeviationEvent{Kind: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListEventsEmptyIsNotNil(t *testing.T) {
	svc := NewService(nil, newMockRepository())

	got, err := svc.ListEvents(context.Background(), "", "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

var _ Repository = (*mockRepository)(nil)
