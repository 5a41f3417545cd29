package gps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vialibre/vialibre/internal/shared"
)

// ErrDuplicate indicates an IMEI collision on device writes.
var ErrDuplicate = errors.New("gps: duplicate imei")

// Repository defines persistence for positions, devices and events.
type Repository interface {
	InsertPosition(ctx context.Context, p Position) error
	GetPosition(ctx context.Context, id string) (Position, error)
	ListPositions(ctx context.Context, routeID, userID string, limit int) ([]Position, error)
	PositionsInBox(ctx context.Context, latMin, latMax, lngMin, lngMax float64, since, until *time.Time) ([]Position, error)

	ListDevices(ctx context.Context) ([]Device, error)
	GetDevice(ctx context.Context, id string) (Device, error)
	CreateDevice(ctx context.Context, d Device) error
	UpdateDevice(ctx context.Context, d Device) error
	DeleteDevice(ctx context.Context, id string) error
	SetDeviceLastPosition(ctx context.Context, deviceID, positionID string) error

	ListEvents(ctx context.Context, routeID, state string) ([]DeviationEvent, error)
	GetEvent(ctx context.Context, id string) (DeviationEvent, error)
	CreateEvent(ctx context.Context, e DeviationEvent) error
	UpdateEvent(ctx context.Context, e DeviationEvent) error
	DeleteEvent(ctx context.Context, id string) error
}

// PGRepository implements Repository over PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const positionColumns = `
	id::text, ruta_id::text, usuario_id::text, device_id::text,
	longitud, latitud, velocidad, heading, altitude, accuracy, battery, fecha_hora`

func scanPosition(row pgx.Row) (Position, error) {
	var p Position
	err := row.Scan(&p.ID, &p.RouteID, &p.UserID, &p.DeviceID,
		&p.Longitude, &p.Latitude, &p.Speed, &p.Heading, &p.Altitude,
		&p.Accuracy, &p.Battery, &p.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{}, shared.ErrNotFound
		}
		return Position{}, err
	}
	return p, nil
}

// InsertPosition stores a fix.
func (r *PGRepository) InsertPosition(ctx context.Context, p Position) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO gps_posiciones (
			id, ruta_id, usuario_id, device_id, longitud, latitud,
			velocidad, heading, altitude, accuracy, battery, fecha_hora)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.RouteID, p.UserID, p.DeviceID, p.Longitude, p.Latitude,
		p.Speed, p.Heading, p.Altitude, p.Accuracy, p.Battery, p.RecordedAt)
	return err
}

// GetPosition fetches one fix.
func (r *PGRepository) GetPosition(ctx context.Context, id string) (Position, error) {
	return scanPosition(r.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM gps_posiciones WHERE id = $1`, id))
}

// ListPositions returns fixes newest first, optionally filtered.
func (r *PGRepository) ListPositions(ctx context.Context, routeID, userID string, limit int) ([]Position, error) {
	query := `SELECT ` + positionColumns + ` FROM gps_posiciones WHERE 1=1`
	args := []any{}
	if routeID != "" {
		args = append(args, routeID)
		query += fmt.Sprintf(" AND ruta_id = $%d", len(args))
	}
	if userID != "" {
		args = append(args, userID)
		query += fmt.Sprintf(" AND usuario_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY fecha_hora DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PositionsInBox returns fixes inside a coordinate box ordered by time,
// oldest first, ready for the precise radius filter.
func (r *PGRepository) PositionsInBox(ctx context.Context, latMin, latMax, lngMin, lngMax float64, since, until *time.Time) ([]Position, error) {
	query := `
		SELECT ` + positionColumns + ` FROM gps_posiciones
		WHERE latitud BETWEEN $1 AND $2
		  AND longitud BETWEEN $3 AND $4`
	args := []any{latMin, latMax, lngMin, lngMax}
	if since != nil {
		args = append(args, *since)
		query += fmt.Sprintf(" AND fecha_hora >= $%d", len(args))
	}
	if until != nil {
		args = append(args, *until)
		query += fmt.Sprintf(" AND fecha_hora <= $%d", len(args))
	}
	query += " ORDER BY fecha_hora"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const deviceColumns = `id::text, imei, nombre, activo, creado_en, ultima_posicion_id::text`

func scanDevice(row pgx.Row) (Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.IMEI, &d.Name, &d.Active, &d.CreatedAt, &d.LastPositionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Device{}, shared.ErrNotFound
		}
		return Device{}, err
	}
	return d, nil
}

// ListDevices returns all devices.
func (r *PGRepository) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+deviceColumns+` FROM gps_devices ORDER BY imei`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDevice fetches a device by id.
func (r *PGRepository) GetDevice(ctx context.Context, id string) (Device, error) {
	return scanDevice(r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM gps_devices WHERE id = $1`, id))
}

// CreateDevice inserts a device. IMEI uniqueness surfaces as ErrDuplicate.
func (r *PGRepository) CreateDevice(ctx context.Context, d Device) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO gps_devices (id, imei, nombre, activo, creado_en)
		VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.IMEI, d.Name, d.Active, d.CreatedAt)
	return mapWriteError(err)
}

// UpdateDevice modifies writable fields.
func (r *PGRepository) UpdateDevice(ctx context.Context, d Device) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gps_devices SET imei = $2, nombre = $3, activo = $4 WHERE id = $1`,
		d.ID, d.IMEI, d.Name, d.Active)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteDevice removes a device.
func (r *PGRepository) DeleteDevice(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM gps_devices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetDeviceLastPosition points the device at its freshest fix.
func (r *PGRepository) SetDeviceLastPosition(ctx context.Context, deviceID, positionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE gps_devices SET ultima_posicion_id = $2 WHERE id = $1`, deviceID, positionID)
	return err
}

const eventColumns = `
	id::text, posicion_id::text, ruta_id::text, fecha_hora, tipo_desvio, estado, descripcion`

func scanEvent(row pgx.Row) (DeviationEvent, error) {
	var e DeviationEvent
	err := row.Scan(&e.ID, &e.PositionID, &e.RouteID, &e.OccurredAt, &e.Kind, &e.State, &e.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeviationEvent{}, shared.ErrNotFound
		}
		return DeviationEvent{}, err
	}
	return e, nil
}

// ListEvents returns events newest first, optionally filtered.
func (r *PGRepository) ListEvents(ctx context.Context, routeID, state string) ([]DeviationEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM gps_eventos_desvio WHERE 1=1`
	args := []any{}
	if routeID != "" {
		args = append(args, routeID)
		query += fmt.Sprintf(" AND ruta_id = $%d", len(args))
	}
	if state != "" {
		args = append(args, state)
		query += fmt.Sprintf(" AND estado = $%d", len(args))
	}
	query += " ORDER BY fecha_hora DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviationEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEvent fetches one event.
func (r *PGRepository) GetEvent(ctx context.Context, id string) (DeviationEvent, error) {
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM gps_eventos_desvio WHERE id = $1`, id))
}

// CreateEvent inserts an event.
func (r *PGRepository) CreateEvent(ctx context.Context, e DeviationEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO gps_eventos_desvio (id, posicion_id, ruta_id, fecha_hora, tipo_desvio, estado, descripcion)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.PositionID, e.RouteID, e.OccurredAt, e.Kind, e.State, e.Description)
	return err
}

// UpdateEvent modifies writable fields.
func (r *PGRepository) UpdateEvent(ctx context.Context, e DeviationEvent) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gps_eventos_desvio SET tipo_desvio = $2, estado = $3, descripcion = $4
		WHERE id = $1`,
		e.ID, e.Kind, e.State, e.Description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteEvent removes an event.
func (r *PGRepository) DeleteEvent(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM gps_eventos_desvio WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
