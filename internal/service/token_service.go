package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-livechat/internal/dto"
	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/observability"
	"github.com/noah-isme/gema-livechat/internal/repository"
)

// SyncTokenAudience is the audience claim that separates sync tokens from session tokens.
const SyncTokenAudience = "livechat-sync"

// TokenService mints and verifies the short-lived tokens used by the sync endpoints.
type TokenService interface {
	Issue(ctx context.Context, identity Identity) (dto.SyncTokenResponse, error)
	Verify(token string) (Identity, error)
}

type syncClaims struct {
	Role        string `json:"role"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type tokenService struct {
	users  repository.UserRepository
	secret []byte
	ttl    time.Duration
	issuer string
	logger zerolog.Logger
	now    func() time.Time
}

// NewTokenService constructs a TokenService signing with HS256. An empty secret is accepted
// here and reported on use.
func NewTokenService(users repository.UserRepository, secret string, ttl time.Duration, issuer string, logger zerolog.Logger) TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &tokenService{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		logger: logger.With().Str("component", "token_service").Logger(),
		now:    time.Now,
	}
}

func (s *tokenService) Issue(ctx context.Context, identity Identity) (dto.SyncTokenResponse, error) {
	if len(s.secret) == 0 {
		observability.SyncTokens().WithLabelValues("issue", "misconfigured").Inc()
		return dto.SyncTokenResponse{}, ErrSyncSecretMissing
	}
	if strings.TrimSpace(identity.UserID) == "" {
		return dto.SyncTokenResponse{}, ErrInvalidToken
	}

	role := models.ParseRole(string(identity.Role))
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := syncClaims{
		Role:        string(role),
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{SyncTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		observability.SyncTokens().WithLabelValues("issue", "error").Inc()
		return dto.SyncTokenResponse{}, fmt.Errorf("sign sync token: %w", err)
	}

	if s.users != nil {
		user := models.User{ID: identity.UserID, Username: identity.Username, DisplayName: identity.DisplayName, Role: role}
		if err := s.users.Upsert(ctx, &user); err != nil {
			s.logger.Warn().Err(err).Str("user_id", identity.UserID).Msg("failed to mirror user identity")
		}
	}

	observability.SyncTokens().WithLabelValues("issue", "ok").Inc()
	return dto.SyncTokenResponse{
		Token:     signed,
		ExpiresAt: expiresAt.UTC(),
		UserID:    identity.UserID,
		Role:      string(role),
	}, nil
}

func (s *tokenService) Verify(token string) (Identity, error) {
	if len(s.secret) == 0 {
		return Identity{}, ErrSyncSecretMissing
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := &syncClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(SyncTokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		observability.SyncTokens().WithLabelValues("verify", "rejected").Inc()
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID:      claims.Subject,
		Role:        models.ParseRole(claims.Role),
		Username:    claims.Username,
		DisplayName: claims.DisplayName,
	}, nil
}
