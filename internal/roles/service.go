package roles

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidInput flags malformed role payloads.
var ErrInvalidInput = errors.New("roles: invalid input")

// Service handles role business logic and the bulk-assign operations.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// Get fetches one role.
func (s *Service) Get(ctx context.Context, id string) (Role, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a new role. Name and slug uniqueness are enforced by the
// store at write time.
func (s *Service) Create(ctx context.Context, name, slug, description string) (Role, error) {
	name = strings.TrimSpace(name)
	slug = slugify(slug, name)
	if name == "" {
		return Role{}, errors.Join(ErrInvalidInput, errors.New("name required"))
	}
	role := Role{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now().UTC(),
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, role); err != nil {
		return Role{}, err
	}
	return role, nil
}

// Update modifies an existing role.
func (s *Service) Update(ctx context.Context, id, name, slug, description string) (Role, error) {
	name = strings.TrimSpace(name)
	slug = slugify(slug, name)
	if name == "" {
		return Role{}, errors.Join(ErrInvalidInput, errors.New("name required"))
	}
	role := Role{
		ID:          id,
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(description),
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.repo.Update(ctx, role); err != nil {
		return Role{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a role and, via cascade, its assignment rows.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// AssignUsers attaches the given users to the role. Unknown or malformed ids
// are silently dropped; re-assigning a linked pair is a no-op. The returned
// set contains exactly the ids that resolved to real users.
func (s *Service) AssignUsers(ctx context.Context, roleID string, userIDs []string) (Assignment, error) {
	accepted, err := s.repo.LinkUsers(ctx, roleID, userIDs)
	if err != nil {
		return Assignment{}, err
	}
	if accepted == nil {
		accepted = []string{}
	}
	return Assignment{Assigned: accepted}, nil
}

// AssignResources attaches the given resources to the role with the same
// set semantics as AssignUsers.
func (s *Service) AssignResources(ctx context.Context, roleID string, resourceIDs []string) (Assignment, error) {
	accepted, err := s.repo.LinkResources(ctx, roleID, resourceIDs)
	if err != nil {
		return Assignment{}, err
	}
	if accepted == nil {
		accepted = []string{}
	}
	return Assignment{Assigned: accepted}, nil
}

func slugify(slug, fallback string) string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = fallback
	}
	slug = strings.ToLower(slug)
	slug = strings.ReplaceAll(slug, " ", "-")
	return slug
}
