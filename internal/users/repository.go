package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vialibre/vialibre/internal/shared"
)

// ErrDuplicate indicates a username, email or identification collision.
var ErrDuplicate = errors.New("users: duplicate username, email or identification")

const userColumns = `
	id::text, username, email, first_name, last_name, phone, identificacion,
	avatar, is_active, is_staff, is_superuser, verified_email,
	gps_latitude, gps_longitude, is_active_gps, last_connection, date_joined`

// Repository defines persistence operations for accounts.
type Repository interface {
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, string, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, u User, passwordHash string) error
	Update(ctx context.Context, u User) error
	Delete(ctx context.Context, id string) error
	PasswordHash(ctx context.Context, id string) (string, error)
	SetPassword(ctx context.Context, id, hash string) error
	TouchLastConnection(ctx context.Context, id string) error
	RolesFor(ctx context.Context, userID string) ([]RoleRef, error)
}

// PGRepository implements Repository over PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Phone,
		&u.Identification, &u.Avatar, &u.IsActive, &u.IsStaff, &u.IsSuperuser,
		&u.VerifiedEmail, &u.GPSLatitude, &u.GPSLongitude, &u.IsActiveGPS,
		&u.LastConnection, &u.DateJoined)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// List returns all users ordered by join date.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY date_joined`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Get fetches a user by id.
func (r *PGRepository) Get(ctx context.Context, id string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByUsername fetches a user together with its password hash for login.
func (r *PGRepository) GetByUsername(ctx context.Context, username string) (User, string, error) {
	var (
		u    User
		hash string
	)
	err := r.pool.QueryRow(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Phone,
			&u.Identification, &u.Avatar, &u.IsActive, &u.IsStaff, &u.IsSuperuser,
			&u.VerifiedEmail, &u.GPSLatitude, &u.GPSLongitude, &u.IsActiveGPS,
			&u.LastConnection, &u.DateJoined, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, "", shared.ErrNotFound
		}
		return User{}, "", err
	}
	return u, hash, nil
}

// GetByEmail performs a case-insensitive email lookup.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

// Create inserts a user with its password hash.
func (r *PGRepository) Create(ctx context.Context, u User, passwordHash string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, username, email, first_name, last_name, phone, identificacion,
			avatar, is_active, is_staff, is_superuser, verified_email,
			gps_latitude, gps_longitude, is_active_gps, password_hash, date_joined)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.Phone, u.Identification,
		u.Avatar, u.IsActive, u.IsStaff, u.IsSuperuser, u.VerifiedEmail,
		u.GPSLatitude, u.GPSLongitude, u.IsActiveGPS, passwordHash, u.DateJoined)
	return mapWriteError(err)
}

// Update modifies writable profile and admin fields.
func (r *PGRepository) Update(ctx context.Context, u User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET
			username = $2, email = $3, first_name = $4, last_name = $5,
			phone = $6, identificacion = $7, avatar = $8, is_active = $9,
			is_staff = $10, verified_email = $11, gps_latitude = $12,
			gps_longitude = $13, is_active_gps = $14
		WHERE id = $1`,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName,
		u.Phone, u.Identification, u.Avatar, u.IsActive,
		u.IsStaff, u.VerifiedEmail, u.GPSLatitude,
		u.GPSLongitude, u.IsActiveGPS)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a user; role links and activity rows cascade.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// PasswordHash returns the stored hash for password checks.
func (r *PGRepository) PasswordHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return hash, nil
}

// SetPassword replaces the stored hash.
func (r *PGRepository) SetPassword(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TouchLastConnection stamps the login time.
func (r *PGRepository) TouchLastConnection(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_connection = NOW() WHERE id = $1`, id)
	return err
}

// RolesFor returns the roles assigned to a user ordered by name.
func (r *PGRepository) RolesFor(ctx context.Context, userID string) ([]RoleRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id::text, r.name, r.slug
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []RoleRef
	for rows.Next() {
		var ref RoleRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Slug); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
