package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store and principal resolution over PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a store backed by the provided pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ResourcesForPrincipal returns the distinct resources reachable from the
// principal through all of its roles, with permission rows preloaded. The
// result is recomputed on every call; there is no cache.
func (s *PGStore) ResourcesForPrincipal(ctx context.Context, principalID string) ([]Resource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT r.id::text, r.name, COALESCE(r.link_backend, '')
		FROM resources r
		JOIN role_resources rr ON rr.resource_id = r.id
		JOIN user_roles ur ON ur.role_id = rr.role_id
		WHERE ur.user_id = $1`, principalID)
	if err != nil {
		return nil, fmt.Errorf("%w: query resources: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var resources []Resource
	index := make(map[string]int)
	var ids []string
	for rows.Next() {
		var res Resource
		if err := rows.Scan(&res.ID, &res.Name, &res.LinkBackend); err != nil {
			return nil, fmt.Errorf("%w: scan resource: %v", ErrStoreUnavailable, err)
		}
		index[res.ID] = len(resources)
		ids = append(ids, res.ID)
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate resources: %v", ErrStoreUnavailable, err)
	}
	if len(resources) == 0 {
		return nil, nil
	}

	permRows, err := s.pool.Query(ctx, `
		SELECT rp.resource_id::text, p.id::text, p.code, p.name
		FROM permissions p
		JOIN resource_permissions rp ON rp.permission_id = p.id
		WHERE rp.resource_id::text = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: query permissions: %v", ErrStoreUnavailable, err)
	}
	defer permRows.Close()

	for permRows.Next() {
		var resourceID string
		var perm Permission
		if err := permRows.Scan(&resourceID, &perm.ID, &perm.Code, &perm.Name); err != nil {
			return nil, fmt.Errorf("%w: scan permission: %v", ErrStoreUnavailable, err)
		}
		if i, ok := index[resourceID]; ok {
			resources[i].Permissions = append(resources[i].Permissions, perm)
		}
	}
	if err := permRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate permissions: %v", ErrStoreUnavailable, err)
	}

	return resources, nil
}

// FindPrincipal resolves a user id to a Principal. A missing user yields
// (nil, nil): the session points at a deleted account and the request is
// treated as unauthenticated, not as an outage.
func (s *PGStore) FindPrincipal(ctx context.Context, id string) (*Principal, error) {
	var p Principal
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, is_active, is_superuser, is_staff
		FROM users WHERE id = $1`, id).
		Scan(&p.ID, &p.Active, &p.Superuser, &p.Staff)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: find principal: %v", ErrStoreUnavailable, err)
	}
	return &p, nil
}
