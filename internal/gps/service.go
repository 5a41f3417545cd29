package gps

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vialibre/vialibre/internal/geo"
)

// ErrInvalidInput flags malformed telemetry payloads.
var ErrInvalidInput = errors.New("gps: invalid input")

const (
	defaultRadiusM     = 500.0
	defaultRadiusLimit = 1000
	defaultListLimit   = 200
)

// Service handles telemetry ingestion and spatial queries.
type Service struct {
	logger *slog.Logger
	repo   Repository
	now    func() time.Time
}

// NewService builds a Service instance.
func NewService(logger *slog.Logger, repo Repository) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, now: time.Now}
}

// RecordPosition stores a fix and refreshes the device's last position. A
// failed device update is logged, not surfaced: the fix itself is already
// durable.
func (s *Service) RecordPosition(ctx context.Context, p Position) (Position, error) {
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return Position{}, errors.Join(ErrInvalidInput, errors.New("coordinates out of range"))
	}
	p.ID = uuid.NewString()
	if p.RecordedAt.IsZero() {
		p.RecordedAt = s.now().UTC()
	}
	if err := s.repo.InsertPosition(ctx, p); err != nil {
		return Position{}, err
	}
	if p.DeviceID != nil && *p.DeviceID != "" {
		if err := s.repo.SetDeviceLastPosition(ctx, *p.DeviceID, p.ID); err != nil {
			s.logger.Warn("device last position update failed",
				slog.String("device", *p.DeviceID), slog.Any("error", err))
		}
	}
	return p, nil
}

// GetPosition fetches one fix.
func (s *Service) GetPosition(ctx context.Context, id string) (Position, error) {
	return s.repo.GetPosition(ctx, id)
}

// ListPositions returns recent fixes, newest first.
func (s *Service) ListPositions(ctx context.Context, routeID, userID string, limit int) ([]Position, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	list, err := s.repo.ListPositions(ctx, routeID, userID, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Position{}
	}
	return list, nil
}

// WithinRadius returns positions inside the radius ordered by time. The
// store prefilters with a bounding box; haversine decides membership and the
// limit caps the result after the precise filter.
func (s *Service) WithinRadius(ctx context.Context, q RadiusQuery) ([]NearbyPosition, error) {
	if q.Meters <= 0 {
		q.Meters = defaultRadiusM
	}
	if q.Limit <= 0 || q.Limit > defaultRadiusLimit {
		q.Limit = defaultRadiusLimit
	}
	dLat, dLng := geo.BoundingBox(q.Latitude, q.Meters)
	candidates, err := s.repo.PositionsInBox(ctx,
		q.Latitude-dLat, q.Latitude+dLat,
		q.Longitude-dLng, q.Longitude+dLng,
		q.Since, q.Until)
	if err != nil {
		return nil, err
	}
	results := []NearbyPosition{}
	for _, p := range candidates {
		d := geo.HaversineM(q.Longitude, q.Latitude, p.Longitude, p.Latitude)
		if d <= q.Meters {
			results = append(results, NearbyPosition{Position: p, DistanceM: d})
			if len(results) >= q.Limit {
				break
			}
		}
	}
	return results, nil
}

// ListDevices returns all devices.
func (s *Service) ListDevices(ctx context.Context) ([]Device, error) {
	return s.repo.ListDevices(ctx)
}

// GetDevice fetches one device.
func (s *Service) GetDevice(ctx context.Context, id string) (Device, error) {
	return s.repo.GetDevice(ctx, id)
}

// CreateDevice registers a tracker.
func (s *Service) CreateDevice(ctx context.Context, imei, name string, active bool) (Device, error) {
	imei = strings.TrimSpace(imei)
	if imei == "" {
		return Device{}, errors.Join(ErrInvalidInput, errors.New("imei required"))
	}
	d := Device{
		ID:        uuid.NewString(),
		IMEI:      imei,
		Name:      strings.TrimSpace(name),
		Active:    active,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateDevice(ctx, d); err != nil {
		return Device{}, err
	}
	return d, nil
}

// UpdateDevice modifies a tracker.
func (s *Service) UpdateDevice(ctx context.Context, d Device) (Device, error) {
	d.IMEI = strings.TrimSpace(d.IMEI)
	if d.IMEI == "" {
		return Device{}, errors.Join(ErrInvalidInput, errors.New("imei required"))
	}
	if err := s.repo.UpdateDevice(ctx, d); err != nil {
		return Device{}, err
	}
	return s.repo.GetDevice(ctx, d.ID)
}

// DeleteDevice removes a tracker.
func (s *Service) DeleteDevice(ctx context.Context, id string) error {
	return s.repo.DeleteDevice(ctx, id)
}

// ListEvents returns deviation events, optionally filtered by route or state.
func (s *Service) ListEvents(ctx context.Context, routeID, state string) ([]DeviationEvent, error) {
	list, err := s.repo.ListEvents(ctx, routeID, state)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []DeviationEvent{}
	}
	return list, nil
}

// GetEvent fetches one event.
func (s *Service) GetEvent(ctx context.Context, id string) (DeviationEvent, error) {
	return s.repo.GetEvent(ctx, id)
}

// CreateEvent records a deviation incident. State defaults to "abierto".
func (s *Service) CreateEvent(ctx context.Context, e DeviationEvent) (DeviationEvent, error) {
	e.Kind = strings.TrimSpace(e.Kind)
	if e.Kind == "" {
		return DeviationEvent{}, errors.Join(ErrInvalidInput, errors.New("tipo_desvio required"))
	}
	e.ID = uuid.NewString()
	if e.State == "" {
		e.State = "abierto"
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now().UTC()
	}
	if err := s.repo.CreateEvent(ctx, e); err != nil {
		return DeviationEvent{}, err
	}
	return e, nil
}

// UpdateEvent modifies an event.
func (s *Service) UpdateEvent(ctx context.Context, e DeviationEvent) (DeviationEvent, error) {
	e.Kind = strings.TrimSpace(e.Kind)
	if e.Kind == "" {
		return DeviationEvent{}, errors.Join(ErrInvalidInput, errors.New("tipo_desvio required"))
	}
	if err := s.repo.UpdateEvent(ctx, e); err != nil {
		return DeviationEvent{}, err
	}
	return s.repo.GetEvent(ctx, e.ID)
}

// DeleteEvent removes an event.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	return s.repo.DeleteEvent(ctx, id)
}
