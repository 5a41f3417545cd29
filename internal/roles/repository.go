package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vialibre/vialibre/internal/platform/db"
	"github.com/vialibre/vialibre/internal/shared"
)

// ErrDuplicate indicates a name or slug uniqueness violation.
var ErrDuplicate = errors.New("roles: duplicate name or slug")

// Repository defines persistence operations for roles.
type Repository interface {
	List(ctx context.Context) ([]Role, error)
	Get(ctx context.Context, id string) (Role, error)
	Create(ctx context.Context, role Role) error
	Update(ctx context.Context, role Role) error
	Delete(ctx context.Context, id string) error
	LinkUsers(ctx context.Context, roleID string, userIDs []string) ([]string, error)
	LinkResources(ctx context.Context, roleID string, resourceIDs []string) ([]string, error)
}

// PGRepository implements Repository over PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// List returns all roles ordered by name.
func (r *PGRepository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, slug, description, created_at, updated_at
		FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Get fetches a role by id.
func (r *PGRepository) Get(ctx context.Context, id string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, slug, description, created_at, updated_at
		FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// Create inserts a role.
func (r *PGRepository) Create(ctx context.Context, role Role) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO roles (id, name, slug, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		role.ID, role.Name, role.Slug, role.Description, role.CreatedAt)
	return mapWriteError(err)
}

// Update modifies writable fields.
func (r *PGRepository) Update(ctx context.Context, role Role) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles SET name = $2, slug = $3, description = $4, updated_at = $5
		WHERE id = $1`,
		role.ID, role.Name, role.Slug, role.Description, role.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a role; assignment rows cascade.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// LinkUsers attaches users to a role inside one transaction. Ids that do not
// resolve to existing users are dropped; re-linking an existing pair is a
// no-op thanks to the unique (user_id, role_id) constraint. Returns the ids
// that resolved, whether newly linked or already present.
func (r *PGRepository) LinkUsers(ctx context.Context, roleID string, userIDs []string) ([]string, error) {
	return r.linkBatch(ctx, roleID, userIDs, `
		INSERT INTO user_roles (id, user_id, role_id, assigned_at)
		SELECT gen_random_uuid(), u.id, $2, NOW() FROM users u WHERE u.id = $1
		ON CONFLICT (user_id, role_id) DO NOTHING`,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`)
}

// LinkResources attaches resources to a role with the same set semantics.
func (r *PGRepository) LinkResources(ctx context.Context, roleID string, resourceIDs []string) ([]string, error) {
	return r.linkBatch(ctx, roleID, resourceIDs, `
		INSERT INTO role_resources (id, role_id, resource_id, granted_at)
		SELECT gen_random_uuid(), $2, res.id, NOW() FROM resources res WHERE res.id = $1
		ON CONFLICT (role_id, resource_id) DO NOTHING`,
		`SELECT EXISTS (SELECT 1 FROM resources WHERE id = $1)`)
}

func (r *PGRepository) linkBatch(ctx context.Context, roleID string, ids []string, insertSQL, existsSQL string) ([]string, error) {
	var accepted []string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var roleExists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&roleExists); err != nil {
			return err
		}
		if !roleExists {
			return shared.ErrNotFound
		}
		for _, raw := range ids {
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				// Malformed ids are dropped, mirroring unknown ids.
				continue
			}
			var exists bool
			if err := tx.QueryRow(ctx, existsSQL, id.String()).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				continue
			}
			if _, err := tx.Exec(ctx, insertSQL, id.String(), roleID); err != nil {
				return err
			}
			accepted = append(accepted, id.String())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
