package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidInput flags malformed account payloads.
var ErrInvalidInput = errors.New("users: invalid input")

// ErrWeakPassword rejects passwords shorter than the minimum.
var ErrWeakPassword = errors.New("users: password must be at least 8 characters")

const minPasswordLength = 8

// Service handles account business logic. Passwords are hashed with bcrypt
// before they reach the repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateInput carries the fields accepted at registration and admin creation.
type CreateInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	IsActive  bool
	IsStaff   bool
}

// List returns all users with their roles attached.
func (s *Service) List(ctx context.Context) ([]User, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if err := s.attachRoles(ctx, &list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Get fetches one user with roles.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := s.attachRoles(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Create registers a new account. Email is normalised to lowercase; username,
// email and identification uniqueness surface as ErrDuplicate from the store.
func (s *Service) Create(ctx context.Context, in CreateInput) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Username == "" || in.Email == "" {
		return User{}, errors.Join(ErrInvalidInput, errors.New("username and email required"))
	}
	if len(in.Password) < minPasswordLength {
		return User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:         uuid.NewString(),
		Username:   in.Username,
		Email:      in.Email,
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		Phone:      strings.TrimSpace(in.Phone),
		IsActive:   in.IsActive,
		IsStaff:    in.IsStaff,
		DateJoined: s.now().UTC(),
		Roles:      []RoleRef{},
	}
	if err := s.repo.Create(ctx, u, string(hash)); err != nil {
		return User{}, err
	}
	return u, nil
}

// ProfileUpdate holds the partial-update fields a user can change on its own
// record. Nil means "leave unchanged".
type ProfileUpdate struct {
	FirstName    *string
	LastName     *string
	Phone        *string
	Avatar       *string
	GPSLatitude  *float64
	GPSLongitude *float64
	IsActiveGPS  *bool
}

// UpdateProfile applies a partial update to the user's own record.
func (s *Service) UpdateProfile(ctx context.Context, id string, patch ProfileUpdate) (User, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if patch.FirstName != nil {
		u.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		u.LastName = strings.TrimSpace(*patch.LastName)
	}
	if patch.Phone != nil {
		u.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.Avatar != nil {
		u.Avatar = *patch.Avatar
	}
	if patch.GPSLatitude != nil {
		u.GPSLatitude = patch.GPSLatitude
	}
	if patch.GPSLongitude != nil {
		u.GPSLongitude = patch.GPSLongitude
	}
	if patch.IsActiveGPS != nil {
		u.IsActiveGPS = *patch.IsActiveGPS
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return User{}, err
	}
	if err := s.attachRoles(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// AdminUpdate replaces the writable fields of a user record.
func (s *Service) AdminUpdate(ctx context.Context, u User) (User, error) {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Username == "" || u.Email == "" {
		return User{}, errors.Join(ErrInvalidInput, errors.New("username and email required"))
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return User{}, err
	}
	return s.Get(ctx, u.ID)
}

// Delete removes a user.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// CheckPassword verifies a plaintext password against the stored hash.
func (s *Service) CheckPassword(ctx context.Context, id, password string) error {
	hash, err := s.repo.PasswordHash(ctx, id)
	if err != nil {
		return err
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// SetPassword hashes and stores a new password.
func (s *Service) SetPassword(ctx context.Context, id, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.SetPassword(ctx, id, string(hash))
}

func (s *Service) attachRoles(ctx context.Context, u *User) error {
	refs, err := s.repo.RolesFor(ctx, u.ID)
	if err != nil {
		return err
	}
	if refs == nil {
		refs = []RoleRef{}
	}
	u.Roles = refs
	return nil
}
