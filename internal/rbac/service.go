package rbac

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

// ErrInvalidPermissionCode rejects permission writes that violate the
// `<namespace>.<action>` wire contract.
var ErrInvalidPermissionCode = errors.New("rbac: permission code must be <namespace>.<view|create|update|delete>")

// ErrDuplicate indicates a uniqueness violation on name, slug or code.
var ErrDuplicate = errors.New("rbac: duplicate")

// Service owns administrative CRUD over resources and permissions.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// ResourceInput carries writable resource fields.
type ResourceInput struct {
	Name         string
	Description  string
	Icon         string
	LinkFrontend string
	LinkBackend  string
}

// PermissionInput carries writable permission fields.
type PermissionInput struct {
	Code        string
	Name        string
	Description string
}

// ListResources returns all resources ordered by name.
func (s *Service) ListResources(ctx context.Context) ([]Resource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, name, description, icon, link_frontend, link_backend
		FROM resources ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []Resource
	for rows.Next() {
		var res Resource
		if err := rows.Scan(&res.ID, &res.Name, &res.Description, &res.Icon, &res.LinkFrontend, &res.LinkBackend); err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}

// GetResource fetches a resource with its permissions.
func (s *Service) GetResource(ctx context.Context, id string) (Resource, error) {
	var res Resource
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, name, description, icon, link_frontend, link_backend
		FROM resources WHERE id = $1`, id).
		Scan(&res.ID, &res.Name, &res.Description, &res.Icon, &res.LinkFrontend, &res.LinkBackend)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resource{}, shared.ErrNotFound
		}
		return Resource{}, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.id::text, p.code, p.name, p.description
		FROM permissions p
		JOIN resource_permissions rp ON rp.permission_id = p.id
		WHERE rp.resource_id = $1 ORDER BY p.code`, id)
	if err != nil {
		return Resource{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Code, &perm.Name, &perm.Description); err != nil {
			return Resource{}, err
		}
		res.Permissions = append(res.Permissions, perm)
	}
	return res, rows.Err()
}

// CreateResource inserts a new resource.
func (s *Service) CreateResource(ctx context.Context, input ResourceInput) (Resource, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Resource{}, fmt.Errorf("%w: resource name required", ErrInvalidInput)
	}
	res := Resource{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		Icon:         strings.TrimSpace(input.Icon),
		LinkFrontend: strings.TrimSpace(input.LinkFrontend),
		LinkBackend:  strings.TrimSpace(input.LinkBackend),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resources (id, name, description, icon, link_frontend, link_backend)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		res.ID, res.Name, res.Description, res.Icon, res.LinkFrontend, res.LinkBackend)
	if err != nil {
		return Resource{}, mapWriteError(err)
	}
	return res, nil
}

// UpdateResource updates writable fields of an existing resource.
func (s *Service) UpdateResource(ctx context.Context, id string, input ResourceInput) (Resource, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE resources
		SET name = $2, description = $3, icon = $4, link_frontend = $5, link_backend = $6
		WHERE id = $1`,
		id, strings.TrimSpace(input.Name), strings.TrimSpace(input.Description),
		strings.TrimSpace(input.Icon), strings.TrimSpace(input.LinkFrontend), strings.TrimSpace(input.LinkBackend))
	if err != nil {
		return Resource{}, mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return Resource{}, shared.ErrNotFound
	}
	return s.GetResource(ctx, id)
}

// DeleteResource removes a resource; join rows cascade.
func (s *Service) DeleteResource(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPermissions returns all permissions ordered by code.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, code, name, description FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Code, &perm.Name, &perm.Description); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// CreatePermission inserts a permission after validating the code contract.
func (s *Service) CreatePermission(ctx context.Context, input PermissionInput) (Permission, error) {
	code := strings.TrimSpace(input.Code)
	if !ValidPermissionCode(code) {
		return Permission{}, ErrInvalidPermissionCode
	}
	perm := Permission{
		ID:          uuid.NewString(),
		Code:        code,
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO permissions (id, code, name, description)
		VALUES ($1, $2, $3, $4)`,
		perm.ID, perm.Code, perm.Name, perm.Description)
	if err != nil {
		return Permission{}, mapWriteError(err)
	}
	return perm, nil
}

// UpdatePermission updates a permission; the code contract still applies.
func (s *Service) UpdatePermission(ctx context.Context, id string, input PermissionInput) (Permission, error) {
	code := strings.TrimSpace(input.Code)
	if !ValidPermissionCode(code) {
		return Permission{}, ErrInvalidPermissionCode
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE permissions SET code = $2, name = $3, description = $4 WHERE id = $1`,
		id, code, strings.TrimSpace(input.Name), strings.TrimSpace(input.Description))
	if err != nil {
		return Permission{}, mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return Permission{}, shared.ErrNotFound
	}
	return Permission{ID: id, Code: code, Name: strings.TrimSpace(input.Name), Description: strings.TrimSpace(input.Description)}, nil
}

// DeletePermission removes a permission; resource links cascade.
func (s *Service) DeletePermission(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetPermissionResources replaces the resources a permission is attached to.
// The whole replacement commits atomically so concurrent authorization checks
// never observe a half-applied link set. Unknown resource ids are dropped and
// the accepted set is returned.
func (s *Service) SetPermissionResources(ctx context.Context, permissionID string, resourceIDs []string) ([]string, error) {
	var accepted []string
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE id = $1)`, permissionID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM resource_permissions WHERE permission_id = $1`, permissionID); err != nil {
			return err
		}
		for _, raw := range resourceIDs {
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				continue
			}
			tag, err := tx.Exec(ctx, `
				INSERT INTO resource_permissions (resource_id, permission_id)
				SELECT r.id, $2 FROM resources r WHERE r.id = $1
				ON CONFLICT DO NOTHING`, id.String(), permissionID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() > 0 {
				accepted = append(accepted, id.String())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// ErrInvalidInput flags malformed administrative input.
var ErrInvalidInput = errors.New("rbac: invalid input")

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
