// Package auth implements session login, CSRF bootstrap, profile access and
// the password reset flow.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/vialibre/vialibre/internal/shared"
	"github.com/vialibre/vialibre/internal/users"
)

// Directory is the slice of the user store the auth flow needs.
type Directory interface {
	GetByUsername(ctx context.Context, username string) (users.User, string, error)
	GetByEmail(ctx context.Context, email string) (users.User, error)
	TouchLastConnection(ctx context.Context, id string) error
}

// MailEnqueuer hands reset mail off to the background worker.
type MailEnqueuer interface {
	EnqueuePasswordReset(ctx context.Context, email, username, resetURL string) error
}

// Service authenticates credentials and drives the reset token lifecycle.
type Service struct {
	logger *slog.Logger
	dir    Directory
	users  *users.Service
	tokens *ResetTokenStore
	mail   MailEnqueuer
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, dir Directory, userSvc *users.Service, tokens *ResetTokenStore, mail MailEnqueuer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, dir: dir, users: userSvc, tokens: tokens, mail: mail}
}

// Login verifies credentials and returns the account. Unknown usernames and
// wrong passwords collapse into the same error so probes learn nothing.
func (s *Service) Login(ctx context.Context, username, password string) (users.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return users.User{}, shared.ErrInvalidCredentials
	}
	u, hash, err := s.dir.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if !u.IsActive {
		return users.User{}, shared.ErrInactiveUser
	}
	if err := s.dir.TouchLastConnection(ctx, u.ID); err != nil {
		s.logger.Warn("last connection stamp failed", slog.String("user", u.ID), slog.Any("error", err))
	}
	return u, nil
}

// ChangePassword swaps the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := s.users.CheckPassword(ctx, userID, oldPassword); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return err
		}
		return shared.ErrInvalidCredentials
	}
	return s.users.SetPassword(ctx, userID, newPassword)
}

// RequestPasswordReset issues a token and queues the recovery mail. Returns
// false when no active account matches the email.
func (s *Service) RequestPasswordReset(ctx context.Context, email, baseURL string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.dir.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !u.IsActive {
		return false, nil
	}
	token, err := s.tokens.Issue(ctx, u.ID)
	if err != nil {
		return false, err
	}
	resetURL := strings.TrimRight(baseURL, "/") + "/?uid=" + u.ID + "&token=" + token
	if err := s.mail.EnqueuePasswordReset(ctx, u.Email, u.Username, resetURL); err != nil {
		// The token stays valid; delivery is retried out of band.
		s.logger.Warn("reset mail enqueue failed", slog.String("user", u.ID), slog.Any("error", err))
	}
	return true, nil
}

// ConfirmPasswordReset redeems a token and sets the new password. The uid must
// match the token owner.
func (s *Service) ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error {
	userID, err := s.tokens.Redeem(ctx, token)
	if err != nil {
		return err
	}
	if uid != "" && uid != userID {
		return ErrResetTokenInvalid
	}
	return s.users.SetPassword(ctx, userID, newPassword)
}
