package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vialibre/vialibre/internal/platform/db"
	"github.com/vialibre/vialibre/internal/shared"
)

// ErrDuplicate indicates the user already holds a reservation or waitlist
// slot on the route.
var ErrDuplicate = errors.New("booking: already reserved or waitlisted on this route")

// ErrCapacityFull indicates both the active seats and the waitlist are full.
var ErrCapacityFull = errors.New("booking: route capacity and waitlist are full")

// Repository defines persistence for reservations and waitlist entries.
type Repository interface {
	Reserve(ctx context.Context, userID, routeID string, now time.Time) (Outcome, error)
	Cancel(ctx context.Context, reservationID, reason string, now time.Time) (Reservation, *WaitlistEntry, error)
	Complete(ctx context.Context, reservationID string, now time.Time) (Reservation, error)
	ListReservations(ctx context.Context, userID, routeID string) ([]Reservation, error)
	GetReservation(ctx context.Context, id string) (Reservation, error)
	ListWaitlist(ctx context.Context, routeID string) ([]WaitlistEntry, error)
	LeaveWaitlist(ctx context.Context, entryID string, now time.Time) (WaitlistEntry, error)
}

// PGRepository implements Repository over PostgreSQL. The reserve and cancel
// flows run serializable: they read counters and positions before writing.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const reservationColumns = `
	id::text, usuario_id::text, ruta_id::text, fecha_reserva, updated_at,
	estado, COALESCE(motivo_cancelacion, '')`

const waitlistColumns = `
	id::text, usuario_id::text, ruta_id::text, posicion, fecha_inscripcion,
	updated_at, estado`

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	err := row.Scan(&res.ID, &res.UserID, &res.RouteID, &res.ReservedAt,
		&res.UpdatedAt, &res.State, &res.CancelReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, shared.ErrNotFound
		}
		return Reservation{}, err
	}
	return res, nil
}

func scanWaitlistEntry(row pgx.Row) (WaitlistEntry, error) {
	var entry WaitlistEntry
	err := row.Scan(&entry.ID, &entry.UserID, &entry.RouteID, &entry.Position,
		&entry.EnrolledAt, &entry.UpdatedAt, &entry.State)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WaitlistEntry{}, shared.ErrNotFound
		}
		return WaitlistEntry{}, err
	}
	return entry, nil
}

// Reserve grants a seat when capacity allows, otherwise appends the user to
// the waitlist. Runs serializable so the count-then-insert never overbooks.
func (r *PGRepository) Reserve(ctx context.Context, userID, routeID string, now time.Time) (Outcome, error) {
	var out Outcome
	err := db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		var activeCap, waitingCap *int
		err := tx.QueryRow(ctx, `SELECT capacidad_activa, capacidad_espera FROM rutas WHERE id = $1`, routeID).
			Scan(&activeCap, &waitingCap)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}

		var activeCount int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM reservas
			WHERE ruta_id = $1 AND estado = $2`, routeID, StateReserved).Scan(&activeCount); err != nil {
			return err
		}

		if activeCap == nil || activeCount < *activeCap {
			res := Reservation{
				ID:         uuid.NewString(),
				UserID:     userID,
				RouteID:    routeID,
				ReservedAt: now,
				UpdatedAt:  now,
				State:      StateReserved,
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO reservas (id, usuario_id, ruta_id, fecha_reserva, updated_at, estado)
				VALUES ($1, $2, $3, $4, $4, $5)`,
				res.ID, res.UserID, res.RouteID, res.ReservedAt, res.State); err != nil {
				return mapWriteError(err)
			}
			out.Reservation = &res
			return nil
		}

		var waitingCount int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM lista_espera
			WHERE ruta_id = $1 AND estado = $2`, routeID, WaitStateWaiting).Scan(&waitingCount); err != nil {
			return err
		}
		if waitingCap != nil && waitingCount >= *waitingCap {
			return ErrCapacityFull
		}

		var maxPos int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(posicion), 0) FROM lista_espera
			WHERE ruta_id = $1 AND estado = $2`, routeID, WaitStateWaiting).Scan(&maxPos); err != nil {
			return err
		}
		entry := WaitlistEntry{
			ID:         uuid.NewString(),
			UserID:     userID,
			RouteID:    routeID,
			Position:   maxPos + 1,
			EnrolledAt: now,
			UpdatedAt:  now,
			State:      WaitStateWaiting,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO lista_espera (id, usuario_id, ruta_id, posicion, fecha_inscripcion, updated_at, estado)
			VALUES ($1, $2, $3, $4, $5, $5, $6)`,
			entry.ID, entry.UserID, entry.RouteID, entry.Position, entry.EnrolledAt, entry.State); err != nil {
			return mapWriteError(err)
		}
		out.Waitlist = &entry
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// Cancel marks the reservation cancelled and promotes the waitlist head for
// the same route inside one transaction.
func (r *PGRepository) Cancel(ctx context.Context, reservationID, reason string, now time.Time) (Reservation, *WaitlistEntry, error) {
	var (
		cancelled Reservation
		promoted  *WaitlistEntry
	)
	err := db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		res, err := scanReservation(tx.QueryRow(ctx, `
			SELECT `+reservationColumns+` FROM reservas WHERE id = $1 FOR UPDATE`, reservationID))
		if err != nil {
			return err
		}
		if res.State != StateReserved {
			return fmt.Errorf("%w: reservation is %s", ErrNotCancellable, res.State)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE reservas SET estado = $2, motivo_cancelacion = $3, updated_at = $4
			WHERE id = $1`, res.ID, StateCancelled, reason, now); err != nil {
			return err
		}
		res.State = StateCancelled
		res.CancelReason = reason
		res.UpdatedAt = now
		cancelled = res

		head, err := scanWaitlistEntry(tx.QueryRow(ctx, `
			SELECT `+waitlistColumns+` FROM lista_espera
			WHERE ruta_id = $1 AND estado = $2
			ORDER BY posicion, fecha_inscripcion
			LIMIT 1 FOR UPDATE`, res.RouteID, WaitStateWaiting))
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil
			}
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE lista_espera SET estado = $2, updated_at = $3 WHERE id = $1`,
			head.ID, WaitStatePromoted, now); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservas (id, usuario_id, ruta_id, fecha_reserva, updated_at, estado)
			VALUES ($1, $2, $3, $4, $4, $5)`,
			uuid.NewString(), head.UserID, head.RouteID, now, StateReserved); err != nil {
			return mapWriteError(err)
		}
		head.State = WaitStatePromoted
		head.UpdatedAt = now
		promoted = &head
		return nil
	})
	if err != nil {
		return Reservation{}, nil, err
	}
	return cancelled, promoted, nil
}

// Complete marks a reservation completed.
func (r *PGRepository) Complete(ctx context.Context, reservationID string, now time.Time) (Reservation, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reservas SET estado = $2, updated_at = $3
		WHERE id = $1 AND estado = $4`,
		reservationID, StateCompleted, now, StateReserved)
	if err != nil {
		return Reservation{}, err
	}
	if tag.RowsAffected() == 0 {
		return Reservation{}, shared.ErrNotFound
	}
	return r.GetReservation(ctx, reservationID)
}

// ListReservations returns reservations, newest first, optionally filtered.
func (r *PGRepository) ListReservations(ctx context.Context, userID, routeID string) ([]Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservas WHERE 1=1`
	args := []any{}
	if userID != "" {
		args = append(args, userID)
		query += fmt.Sprintf(" AND usuario_id = $%d", len(args))
	}
	if routeID != "" {
		args = append(args, routeID)
		query += fmt.Sprintf(" AND ruta_id = $%d", len(args))
	}
	query += " ORDER BY fecha_reserva DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// GetReservation fetches a reservation by id.
func (r *PGRepository) GetReservation(ctx context.Context, id string) (Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservas WHERE id = $1`, id))
}

// ListWaitlist returns waiting entries for a route in queue order.
func (r *PGRepository) ListWaitlist(ctx context.Context, routeID string) ([]WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM lista_espera`
	args := []any{}
	if routeID != "" {
		args = append(args, routeID)
		query += " WHERE ruta_id = $1"
	}
	query += " ORDER BY posicion, fecha_inscripcion"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WaitlistEntry
	for rows.Next() {
		entry, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// LeaveWaitlist cancels a waiting entry.
func (r *PGRepository) LeaveWaitlist(ctx context.Context, entryID string, now time.Time) (WaitlistEntry, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lista_espera SET estado = $2, updated_at = $3
		WHERE id = $1 AND estado = $4`,
		entryID, WaitStateCancel, now, WaitStateWaiting)
	if err != nil {
		return WaitlistEntry{}, err
	}
	if tag.RowsAffected() == 0 {
		return WaitlistEntry{}, shared.ErrNotFound
	}
	return scanWaitlistEntry(r.pool.QueryRow(ctx, `SELECT `+waitlistColumns+` FROM lista_espera WHERE id = $1`, entryID))
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
