package devauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// tokenIssuer is the iss claim of every token.
	tokenIssuer = "authportal-devauth"

	// revokedKeyPrefix marks signed-out token ids in Redis.
	revokedKeyPrefix = "devauth:revoked:"
)

var errTokenInvalid = errors.New("token invalid")

// tokenClaims is the JWT payload: the user id in sub, a unique jti for
// revocation, and exp.
type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// tokens signs and checks HS256 tokens.
type tokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func (t *tokens) issue(user *User) (string, time.Time, error) {
	now := t.now().UTC()
	expiresAt := now.Add(t.ttl).Truncate(time.Second)

	claims := tokenClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// parse verifies signature, issuer and expiry.
func (t *tokens) parse(raw string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return t.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTokenInvalid, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", errTokenInvalid)
	}
	return claims, nil
}

// revocations remembers signed-out token ids until the token's own expiry.
type revocations struct {
	rdb *redis.Client
}

func (r *revocations) revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func (r *revocations) revoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return n > 0, nil
}
