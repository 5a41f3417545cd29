package transit

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vialibre/vialibre/internal/geo"
)

// ErrInvalidInput flags malformed transit payloads.
var ErrInvalidInput = errors.New("transit: invalid input")

const defaultNearbyRadiusKM = 5.0

// Service handles transit business logic.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// ListRoutes returns all routes.
func (s *Service) ListRoutes(ctx context.Context) ([]Route, error) {
	return s.repo.ListRoutes(ctx)
}

// GetRoute fetches one route.
func (s *Service) GetRoute(ctx context.Context, id string) (Route, error) {
	return s.repo.GetRoute(ctx, id)
}

// CreateRoute inserts a route and links the given buses.
func (s *Service) CreateRoute(ctx context.Context, name string, activeCap, waitingCap *int, busIDs []string) (Route, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Route{}, errors.Join(ErrInvalidInput, errors.New("nombre_ruta required"))
	}
	rt := Route{ID: uuid.NewString(), Name: name, ActiveCapacity: activeCap, WaitingCapacity: waitingCap}
	if err := s.repo.CreateRoute(ctx, rt); err != nil {
		return Route{}, err
	}
	if len(busIDs) > 0 {
		if err := s.repo.SetRouteBuses(ctx, rt.ID, busIDs); err != nil {
			return Route{}, err
		}
	}
	return s.repo.GetRoute(ctx, rt.ID)
}

// UpdateRoute modifies a route and replaces its bus links when busIDs is
// non-nil.
func (s *Service) UpdateRoute(ctx context.Context, id, name string, activeCap, waitingCap *int, busIDs []string) (Route, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Route{}, errors.Join(ErrInvalidInput, errors.New("nombre_ruta required"))
	}
	if err := s.repo.UpdateRoute(ctx, Route{ID: id, Name: name, ActiveCapacity: activeCap, WaitingCapacity: waitingCap}); err != nil {
		return Route{}, err
	}
	if busIDs != nil {
		if err := s.repo.SetRouteBuses(ctx, id, busIDs); err != nil {
			return Route{}, err
		}
	}
	return s.repo.GetRoute(ctx, id)
}

// DeleteRoute removes a route.
func (s *Service) DeleteRoute(ctx context.Context, id string) error {
	return s.repo.DeleteRoute(ctx, id)
}

// ListBuses returns all buses.
func (s *Service) ListBuses(ctx context.Context) ([]Bus, error) {
	return s.repo.ListBuses(ctx)
}

// GetBus fetches one bus.
func (s *Service) GetBus(ctx context.Context, id string) (Bus, error) {
	return s.repo.GetBus(ctx, id)
}

// CreateBus inserts a bus. Plate uniqueness surfaces as ErrDuplicate.
func (s *Service) CreateBus(ctx context.Context, b Bus) (Bus, error) {
	b.Plate = strings.ToUpper(strings.TrimSpace(b.Plate))
	if b.Plate == "" {
		return Bus{}, errors.Join(ErrInvalidInput, errors.New("placa required"))
	}
	b.ID = uuid.NewString()
	if err := s.repo.CreateBus(ctx, b); err != nil {
		return Bus{}, err
	}
	return b, nil
}

// UpdateBus modifies a bus.
func (s *Service) UpdateBus(ctx context.Context, b Bus) (Bus, error) {
	b.Plate = strings.ToUpper(strings.TrimSpace(b.Plate))
	if b.Plate == "" {
		return Bus{}, errors.Join(ErrInvalidInput, errors.New("placa required"))
	}
	if err := s.repo.UpdateBus(ctx, b); err != nil {
		return Bus{}, err
	}
	return s.repo.GetBus(ctx, b.ID)
}

// DeleteBus removes a bus.
func (s *Service) DeleteBus(ctx context.Context, id string) error {
	return s.repo.DeleteBus(ctx, id)
}

// ListStops returns stops filtered by route and active flag.
func (s *Service) ListStops(ctx context.Context, routeID string, activeOnly bool) ([]Stop, error) {
	return s.repo.ListStops(ctx, routeID, activeOnly)
}

// GetStop fetches one stop.
func (s *Service) GetStop(ctx context.Context, id string) (Stop, error) {
	return s.repo.GetStop(ctx, id)
}

// CreateStop inserts a stop on a route.
func (s *Service) CreateStop(ctx context.Context, st Stop) (Stop, error) {
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" || st.RouteID == "" {
		return Stop{}, errors.Join(ErrInvalidInput, errors.New("nombre and ruta required"))
	}
	st.ID = uuid.NewString()
	st.CreatedAt = s.now().UTC()
	st.UpdatedAt = st.CreatedAt
	if err := s.repo.CreateStop(ctx, st); err != nil {
		return Stop{}, err
	}
	return st, nil
}

// UpdateStop modifies a stop.
func (s *Service) UpdateStop(ctx context.Context, st Stop) (Stop, error) {
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" || st.RouteID == "" {
		return Stop{}, errors.Join(ErrInvalidInput, errors.New("nombre and ruta required"))
	}
	st.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateStop(ctx, st); err != nil {
		return Stop{}, err
	}
	return s.repo.GetStop(ctx, st.ID)
}

// DeleteStop removes a stop.
func (s *Service) DeleteStop(ctx context.Context, id string) error {
	return s.repo.DeleteStop(ctx, id)
}

// ToggleStop flips the active flag and returns the updated stop.
func (s *Service) ToggleStop(ctx context.Context, id string) (Stop, error) {
	st, err := s.repo.GetStop(ctx, id)
	if err != nil {
		return Stop{}, err
	}
	st.Active = !st.Active
	st.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateStop(ctx, st); err != nil {
		return Stop{}, err
	}
	return st, nil
}

// NearbyStops finds active stops within radiusKM of the center, nearest
// first. The store narrows with a bounding box; the exact haversine distance
// decides membership.
func (s *Service) NearbyStops(ctx context.Context, lat, lng, radiusKM float64) ([]NearbyStop, error) {
	if radiusKM <= 0 {
		radiusKM = defaultNearbyRadiusKM
	}
	meters := radiusKM * 1000
	dLat, dLng := geo.BoundingBox(lat, meters)
	candidates, err := s.repo.StopsInBox(ctx, lat-dLat, lat+dLat, lng-dLng, lng+dLng)
	if err != nil {
		return nil, err
	}
	nearby := []NearbyStop{}
	for _, st := range candidates {
		d := geo.HaversineM(lng, lat, st.Longitude, st.Latitude)
		if d <= meters {
			nearby = append(nearby, NearbyStop{Stop: st, DistanceM: d})
		}
	}
	sort.Slice(nearby, func(i, j int) bool { return nearby[i].DistanceM < nearby[j].DistanceM })
	return nearby, nil
}
