package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/formpilot/deviceauth/internal/config"
	"github.com/formpilot/deviceauth/internal/metrics"
	"github.com/formpilot/deviceauth/internal/models"
	"github.com/formpilot/deviceauth/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
)

var (
	ErrInvalidIdentity = errors.New("invalid or expired identity token")
)

// Claims carries the user snapshot inside issued access tokens and inside
// the identity tokens the approval surface presents.
type Claims struct {
	jwt.RegisteredClaims
	ClientID string      `json:"client_id,omitempty"`
	Scope    string      `json:"scope,omitempty"`
	User     models.User `json:"user"`
}

// TokenService mints the access tokens handed out on approval and validates
// the bearer identities required by the approval endpoints. Validated
// identities are cached briefly so a burst of approval-surface calls does
// not re-verify the same signature.
type TokenService struct {
	config  *config.Config
	metrics metrics.Recorder
	cache   *ttlcache.Cache[string, models.User]
}

// NewTokenService creates a TokenService and starts its identity cache.
func NewTokenService(cfg *config.Config, rec metrics.Recorder) *TokenService {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, models.User](cfg.IdentityCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, models.User](),
	)
	go cache.Start()

	return &TokenService{
		config:  cfg,
		metrics: rec,
		cache:   cache,
	}
}

// Mint issues a signed access token for an approved authorization. It is
// called synchronously inside the approve transition, so any poll observing
// an approved record also observes a non-empty token.
func (s *TokenService) Mint(user models.User, clientID, scope string) (string, error) {
	start := time.Now()
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.config.BaseURL,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.JWTExpiration)),
		},
		ClientID: clientID,
		Scope:    scope,
		User:     user,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	s.metrics.RecordTokenIssued(time.Since(start))
	return signed, nil
}

// ValidateIdentity verifies a bearer token from the approval surface and
// returns the user snapshot it carries. The host application signs these
// tokens with the shared secret.
func (s *TokenService) ValidateIdentity(
	ctx context.Context,
	tokenString string,
) (*models.User, error) {
	key := util.HashKey(tokenString)
	if item := s.cache.Get(key); item != nil {
		user := item.Value()
		return &user, nil
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(s.config.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil || !token.Valid {
		s.metrics.RecordIdentityValidation("invalid")
		return nil, ErrInvalidIdentity
	}

	user := claims.User
	if user.ID == "" {
		user.ID = claims.Subject
	}
	if user.ID == "" {
		s.metrics.RecordIdentityValidation("invalid")
		return nil, ErrInvalidIdentity
	}

	s.metrics.RecordIdentityValidation("success")
	s.cache.Set(key, user, ttlcache.DefaultTTL)
	return &user, nil
}

// Close stops the identity cache cleanup loop.
func (s *TokenService) Close() {
	s.cache.Stop()
}
