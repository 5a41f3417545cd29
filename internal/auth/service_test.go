package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vialibre/vialibre/internal/auth"
	"github.com/vialibre/vialibre/internal/shared"
	"github.com/vialibre/vialibre/internal/users"
	_ "github.com/vialibre/vialibre/testing"
)

type stubDirectory struct {
	user    users.User
	hash    string
	touched int
}

func (s *stubDirectory) GetByUsername(ctx context.Context, username string) (users.User, string, error) {
	if s.user.Username != username {
		return users.User{}, "", shared.ErrNotFound
	}
	return s.user, s.hash, nil
}

func (s *stubDirectory) GetByEmail(ctx context.Context, email string) (users.User, error) {
	if s.user.Email != email {
		return users.User{}, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubDirectory) TouchLastConnection(ctx context.Context, id string) error {
	s.touched++
	return nil
}

type stubUserRepo struct {
	hashes map[string]string
}

func (s *stubUserRepo) List(ctx context.Context) ([]users.User, error) { return nil, nil }
func (s *stubUserRepo) Get(ctx context.Context, id string) (users.User, error) {
	return users.User{ID: id}, nil
}
func (s *stubUserRepo) GetByUsername(ctx context.Context, username string) (users.User, string, error) {
	return users.User{}, "", shared.ErrNotFound
}
func (s *stubUserRepo) GetByEmail(ctx context.Context, email string) (users.User, error) {
	return users.User{}, shared.ErrNotFound
}
func (s *stubUserRepo) Create(ctx context.Context, u users.User, passwordHash string) error {
	return nil
}
func (s *stubUserRepo) Update(ctx context.Context, u users.User) error { return nil }
func (s *stubUserRepo) Delete(ctx context.Context, id string) error    { return nil }
func (s *stubUserRepo) PasswordHash(ctx context.Context, id string) (string, error) {
	hash, ok := s.hashes[id]
	if !ok {
		return "", shared.ErrNotFound
	}
	return hash, nil
}
func (s *stubUserRepo) SetPassword(ctx context.Context, id, hash string) error {
	s.hashes[id] = hash
	return nil
}
func (s *stubUserRepo) TouchLastConnection(ctx context.Context, id string) error { return nil }
func (s *stubUserRepo) RolesFor(ctx context.Context, userID string) ([]users.RoleRef, error) {
	return nil, nil
}

type stubMailer struct {
	to       string
	resetURL string
	err      error
}

func (s *stubMailer) EnqueuePasswordReset(ctx context.Context, email, username, resetURL string) error {
	s.to = email
	s.resetURL = resetURL
	return s.err
}

func newTestService(t *testing.T, dir *stubDirectory, mail *stubMailer) (*auth.Service, *auth.ResetTokenStore, *stubUserRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tokens := auth.NewResetTokenStore(client, time.Hour)
	repo := &stubUserRepo{hashes: map[string]string{}}
	svc := auth.NewService(nil, dir, users.NewService(repo), tokens, mail)
	return svc, tokens, repo
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(hash)
}

func TestLoginSuccess(t *testing.T) {
	dir := &stubDirectory{
		user: users.User{ID: "u1", Username: "elena", Email: "elena@vialibre.local", IsActive: true},
		hash: hashOf(t, "super-secreto"),
	}
	svc, _, _ := newTestService(t, dir, &stubMailer{})

	u, err := svc.Login(context.Background(), " elena ", "super-secreto")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, 1, dir.touched)
}

func TestLoginUnknownUserAndWrongPasswordLookAlike(t *testing.T) {
	dir := &stubDirectory{
		user: users.User{ID: "u1", Username: "elena", IsActive: true},
		hash: hashOf(t, "super-secreto"),
	}
	svc, _, _ := newTestService(t, dir, &stubMailer{})

	_, errUnknown := svc.Login(context.Background(), "nadie", "super-secreto")
	_, errWrong := svc.Login(context.Background(), "elena", "incorrecta")

	assert.ErrorIs(t, errUnknown, shared.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, shared.ErrInvalidCredentials)
	assert.Equal(t, errUnknown, errWrong)
}

func TestLoginInactiveUser(t *testing.T) {
	dir := &stubDirectory{
		user: users.User{ID: "u1", Username: "elena", IsActive: false},
		hash: hashOf(t, "super-secreto"),
	}
	svc, _, _ := newTestService(t, dir, &stubMailer{})

	_, err := svc.Login(context.Background(), "elena", "super-secreto")
	assert.ErrorIs(t, err, shared.ErrInactiveUser)
}

func TestRequestPasswordReset(t *testing.T) {
	dir := &stubDirectory{
		user: users.User{ID: "u1", Username: "elena", Email: "elena@vialibre.local", IsActive: true},
	}
	mail := &stubMailer{}
	svc, _, _ := newTestService(t, dir, mail)

	sent, err := svc.RequestPasswordReset(context.Background(), "  Elena@Vialibre.Local ", "https://app.vialibre.local/reset")
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "elena@vialibre.local", mail.to)
	assert.True(t, strings.HasPrefix(mail.resetURL, "https://app.vialibre.local/reset/?uid=u1&token="), mail.resetURL)
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	mail := &stubMailer{}
	svc, _, _ := newTestService(t, &stubDirectory{}, mail)

	sent, err := svc.RequestPasswordReset(context.Background(), "nadie@vialibre.local", "https://app")
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, mail.to)
}

func TestConfirmPasswordReset(t *testing.T) {
	dir := &stubDirectory{
		user: users.User{ID: "u1", Username: "elena", Email: "elena@vialibre.local", IsActive: true},
	}
	svc, tokens, repo := newTestService(t, dir, &stubMailer{})

	token, err := tokens.Issue(context.Background(), "u1")
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmPasswordReset(context.Background(), "u1", token, "nueva-clave-larga"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes["u1"]), []byte("nueva-clave-larga")))

	// Tokens are single use.
	err = svc.ConfirmPasswordReset(context.Background(), "u1", token, "otra-clave-larga")
	assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
}

func TestConfirmPasswordResetUIDMismatch(t *testing.T) {
	svc, tokens, repo := newTestService(t, &stubDirectory{}, &stubMailer{})

	token, err := tokens.Issue(context.Background(), "u1")
	require.NoError(t, err)

	err = svc.ConfirmPasswordReset(context.Background(), "u2", token, "nueva-clave-larga")
	assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	assert.Empty(t, repo.hashes)
}

func TestChangePassword(t *testing.T) {
	svc, _, repo := newTestService(t, &stubDirectory{}, &stubMailer{})
	repo.hashes["u1"] = hashOf(t, "clave-actual")

	assert.ErrorIs(t, svc.ChangePassword(context.Background(), "u1", "incorrecta", "nueva-clave-larga"), shared.ErrInvalidCredentials)
	require.NoError(t, svc.ChangePassword(context.Background(), "u1", "clave-actual", "nueva-clave-larga"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes["u1"]), []byte("nueva-clave-larga")))
}
