package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrResetTokenInvalid covers unknown, expired and already-used tokens.
var ErrResetTokenInvalid = errors.New("auth: invalid or expired reset token")

// ResetTokenStore keeps single-use password reset tokens in Redis. Redeeming
// deletes the key atomically so a token can never be replayed.
type ResetTokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResetTokenStore constructs a store with the given token lifetime.
func NewResetTokenStore(client *redis.Client, ttl time.Duration) *ResetTokenStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResetTokenStore{client: client, ttl: ttl}
}

// Issue mints a token bound to the user id.
func (s *ResetTokenStore) Issue(ctx context.Context, userID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	if err := s.client.Set(ctx, s.key(token), userID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Redeem returns the user id for a live token and burns it.
func (s *ResetTokenStore) Redeem(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrResetTokenInvalid
	}
	userID, err := s.client.GetDel(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResetTokenInvalid
		}
		return "", err
	}
	return userID, nil
}

func (s *ResetTokenStore) key(token string) string {
	return "pwdreset:" + token
}
