package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth/repo"
	userrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/utilities"
)

type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// ConfigFromEnv reads JWT_SECRET, JWT_ISSUER and JWT_TTL_MINUTES.
func ConfigFromEnv() Config {
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "warbler"
	}
	ttl := 60 * time.Minute
	if v, err := strconv.Atoi(os.Getenv("JWT_TTL_MINUTES")); err == nil && v > 0 {
		ttl = time.Duration(v) * time.Minute
	}
	return Config{Secret: os.Getenv("JWT_SECRET"), Issuer: issuer, TTL: ttl}
}

// TokenService issues and verifies HS256 access tokens. A token's subject
// is the user ID; logout revokes its jti.
type TokenService struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	revoked *repo.RevokedRepo
	users   *userrepo.UserRepo
	now     func() time.Time
}

func NewTokenService(db *sqlx.DB, cfg Config) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Minute
	}
	return &TokenService{
		secret:  []byte(cfg.Secret),
		issuer:  cfg.Issuer,
		ttl:     cfg.TTL,
		revoked: repo.NewRevokedRepo(db),
		users:   userrepo.NewUserRepo(db),
		now:     time.Now,
	}, nil
}

// Issue signs a token for userID and returns it with its expiry.
func (s *TokenService) Issue(ctx context.Context, userID int64) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        utilities.NewKSUID(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer, expiry and revocation, and that the
// subject still exists, and returns the principal the token was issued to.
func (s *TokenService) Verify(ctx context.Context, token string) (Principal, error) {
	claims, err := s.parse(token)
	if err != nil {
		return Principal{}, err
	}
	revoked, err := s.revoked.Exists(ctx, claims.ID)
	if err != nil {
		return Principal{}, err
	}
	if revoked {
		return Principal{}, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return Principal{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	if !exists {
		return Principal{}, fmt.Errorf("%w: user %d no longer exists", ErrInvalidToken, userID)
	}
	return Principal{UserID: userID}, nil
}

// Revoke invalidates a still-valid token. Invalid tokens are rejected.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)
	return s.revoked.Save(ctx, claims.ID, userID, claims.ExpiresAt.Time)
}

func (s *TokenService) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	return claims, nil
}
