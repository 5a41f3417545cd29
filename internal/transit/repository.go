package transit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vialibre/vialibre/internal/platform/db"
	"github.com/vialibre/vialibre/internal/shared"
)

// ErrDuplicate indicates a plate collision on bus writes.
var ErrDuplicate = errors.New("transit: duplicate plate")

// Repository defines persistence for routes, buses and stops.
type Repository interface {
	ListRoutes(ctx context.Context) ([]Route, error)
	GetRoute(ctx context.Context, id string) (Route, error)
	CreateRoute(ctx context.Context, r Route) error
	UpdateRoute(ctx context.Context, r Route) error
	DeleteRoute(ctx context.Context, id string) error
	SetRouteBuses(ctx context.Context, routeID string, busIDs []string) error

	ListBuses(ctx context.Context) ([]Bus, error)
	GetBus(ctx context.Context, id string) (Bus, error)
	CreateBus(ctx context.Context, b Bus) error
	UpdateBus(ctx context.Context, b Bus) error
	DeleteBus(ctx context.Context, id string) error

	ListStops(ctx context.Context, routeID string, activeOnly bool) ([]Stop, error)
	GetStop(ctx context.Context, id string) (Stop, error)
	CreateStop(ctx context.Context, s Stop) error
	UpdateStop(ctx context.Context, s Stop) error
	DeleteStop(ctx context.Context, id string) error
	StopsInBox(ctx context.Context, latMin, latMax, lngMin, lngMax float64) ([]Stop, error)
}

// PGRepository implements Repository over PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListRoutes returns all routes with their buses attached.
func (r *PGRepository) ListRoutes(ctx context.Context) ([]Route, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, nombre_ruta, capacidad_activa, capacidad_espera
		FROM rutas ORDER BY nombre_ruta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		var rt Route
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.ActiveCapacity, &rt.WaitingCapacity); err != nil {
			return nil, err
		}
		routes = append(routes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range routes {
		buses, err := r.busesForRoute(ctx, routes[i].ID)
		if err != nil {
			return nil, err
		}
		routes[i].Buses = buses
	}
	return routes, nil
}

// GetRoute fetches one route with its buses.
func (r *PGRepository) GetRoute(ctx context.Context, id string) (Route, error) {
	var rt Route
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, nombre_ruta, capacidad_activa, capacidad_espera
		FROM rutas WHERE id = $1`, id).
		Scan(&rt.ID, &rt.Name, &rt.ActiveCapacity, &rt.WaitingCapacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Route{}, shared.ErrNotFound
		}
		return Route{}, err
	}
	rt.Buses, err = r.busesForRoute(ctx, rt.ID)
	if err != nil {
		return Route{}, err
	}
	return rt, nil
}

// CreateRoute inserts a route.
func (r *PGRepository) CreateRoute(ctx context.Context, rt Route) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rutas (id, nombre_ruta, capacidad_activa, capacidad_espera)
		VALUES ($1, $2, $3, $4)`,
		rt.ID, rt.Name, rt.ActiveCapacity, rt.WaitingCapacity)
	return err
}

// UpdateRoute modifies writable fields.
func (r *PGRepository) UpdateRoute(ctx context.Context, rt Route) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE rutas SET nombre_ruta = $2, capacidad_activa = $3, capacidad_espera = $4
		WHERE id = $1`,
		rt.ID, rt.Name, rt.ActiveCapacity, rt.WaitingCapacity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteRoute removes a route; stops and links cascade.
func (r *PGRepository) DeleteRoute(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rutas WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetRouteBuses replaces the bus links of a route. Unknown bus ids are
// dropped by the INSERT...SELECT.
func (r *PGRepository) SetRouteBuses(ctx context.Context, routeID string, busIDs []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rutas WHERE id = $1)`, routeID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM ruta_buses WHERE ruta_id = $1`, routeID); err != nil {
			return err
		}
		for _, busID := range busIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO ruta_buses (ruta_id, bus_id)
				SELECT $1, b.id FROM buses b WHERE b.id = $2
				ON CONFLICT DO NOTHING`, routeID, busID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PGRepository) busesForRoute(ctx context.Context, routeID string) ([]Bus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id::text, b.placa, b.marca, b.modelo, b.capacidad, b.estado_bus
		FROM buses b
		JOIN ruta_buses rb ON rb.bus_id = b.id
		WHERE rb.ruta_id = $1
		ORDER BY b.placa`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buses := []Bus{}
	for rows.Next() {
		var b Bus
		if err := rows.Scan(&b.ID, &b.Plate, &b.Brand, &b.Model, &b.Capacity, &b.State); err != nil {
			return nil, err
		}
		buses = append(buses, b)
	}
	return buses, rows.Err()
}

// ListBuses returns all buses ordered by plate.
func (r *PGRepository) ListBuses(ctx context.Context) ([]Bus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, placa, marca, modelo, capacidad, estado_bus
		FROM buses ORDER BY placa`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buses []Bus
	for rows.Next() {
		var b Bus
		if err := rows.Scan(&b.ID, &b.Plate, &b.Brand, &b.Model, &b.Capacity, &b.State); err != nil {
			return nil, err
		}
		buses = append(buses, b)
	}
	return buses, rows.Err()
}

// GetBus fetches a bus by id.
func (r *PGRepository) GetBus(ctx context.Context, id string) (Bus, error) {
	var b Bus
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, placa, marca, modelo, capacidad, estado_bus
		FROM buses WHERE id = $1`, id).
		Scan(&b.ID, &b.Plate, &b.Brand, &b.Model, &b.Capacity, &b.State)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bus{}, shared.ErrNotFound
		}
		return Bus{}, err
	}
	return b, nil
}

// CreateBus inserts a bus.
func (r *PGRepository) CreateBus(ctx context.Context, b Bus) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO buses (id, placa, marca, modelo, capacidad, estado_bus)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.Plate, b.Brand, b.Model, b.Capacity, b.State)
	return mapWriteError(err)
}

// UpdateBus modifies writable fields.
func (r *PGRepository) UpdateBus(ctx context.Context, b Bus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE buses SET placa = $2, marca = $3, modelo = $4, capacidad = $5, estado_bus = $6
		WHERE id = $1`,
		b.ID, b.Plate, b.Brand, b.Model, b.Capacity, b.State)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteBus removes a bus.
func (r *PGRepository) DeleteBus(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM buses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const stopColumns = `
	id::text, ruta_id::text, nombre, direccion, coordenada_lat, coordenada_lng,
	orden, activa, fecha_creacion, fecha_actualizacion`

func scanStop(row pgx.Row) (Stop, error) {
	var s Stop
	err := row.Scan(&s.ID, &s.RouteID, &s.Name, &s.Address, &s.Latitude, &s.Longitude,
		&s.Order, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stop{}, shared.ErrNotFound
		}
		return Stop{}, err
	}
	return s, nil
}

// ListStops returns stops, optionally narrowed to one route or to active
// stops only, ordered by route then sequence.
func (r *PGRepository) ListStops(ctx context.Context, routeID string, activeOnly bool) ([]Stop, error) {
	query := `SELECT ` + stopColumns + ` FROM paradas WHERE 1=1`
	args := []any{}
	if routeID != "" {
		args = append(args, routeID)
		query += fmt.Sprintf(" AND ruta_id = $%d", len(args))
	}
	if activeOnly {
		query += " AND activa"
	}
	query += " ORDER BY ruta_id, orden, nombre"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stops []Stop
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// GetStop fetches a stop by id.
func (r *PGRepository) GetStop(ctx context.Context, id string) (Stop, error) {
	return scanStop(r.pool.QueryRow(ctx, `SELECT `+stopColumns+` FROM paradas WHERE id = $1`, id))
}

// CreateStop inserts a stop.
func (r *PGRepository) CreateStop(ctx context.Context, s Stop) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO paradas (
			id, ruta_id, nombre, direccion, coordenada_lat, coordenada_lng,
			orden, activa, fecha_creacion, fecha_actualizacion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		s.ID, s.RouteID, s.Name, s.Address, s.Latitude, s.Longitude,
		s.Order, s.Active, s.CreatedAt)
	return err
}

// UpdateStop modifies writable fields.
func (r *PGRepository) UpdateStop(ctx context.Context, s Stop) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE paradas SET
			ruta_id = $2, nombre = $3, direccion = $4, coordenada_lat = $5,
			coordenada_lng = $6, orden = $7, activa = $8, fecha_actualizacion = $9
		WHERE id = $1`,
		s.ID, s.RouteID, s.Name, s.Address, s.Latitude,
		s.Longitude, s.Order, s.Active, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteStop removes a stop.
func (r *PGRepository) DeleteStop(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM paradas WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// StopsInBox returns active stops inside a coordinate box. Callers refine
// with the precise distance afterwards.
func (r *PGRepository) StopsInBox(ctx context.Context, latMin, latMax, lngMin, lngMax float64) ([]Stop, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+stopColumns+` FROM paradas
		WHERE activa
		  AND coordenada_lat BETWEEN $1 AND $2
		  AND coordenada_lng BETWEEN $3 AND $4
		ORDER BY orden, nombre`, latMin, latMax, lngMin, lngMax)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stops []Stop
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
