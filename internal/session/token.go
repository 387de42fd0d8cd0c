package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrTokenExpired covers every reason a presented token is no longer
// usable: signature/exp failure, explicit revocation, or (for refresh
// tokens) having already been consumed once.
var ErrTokenExpired = errors.New("token expired")

// ErrWrongTokenType is returned when an access token is presented where
// a refresh token is required, or vice versa.
var ErrWrongTokenType = errors.New("wrong token type")

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the payload a caller supplies to mint a token pair and
// receives back from VerifyToken.
type Claims struct {
	Subject    string   `json:"sub"`
	InstanceID string   `json:"instance_id"`
	OrgID      string   `json:"org_id,omitempty"`
	Email      string   `json:"email,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	InstanceID string   `json:"instance_id"`
	OrgID      string   `json:"org_id,omitempty"`
	Email      string   `json:"email,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	TokenType  string   `json:"token_type"`
}

// TokenPair is a minted access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenConfig configures TokenService (§6.5).
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService mints and validates HS256 JWT access/refresh pairs,
// tracking revocation and single-use refresh state in Redis so every
// replica observes the same revocation set.
type TokenService struct {
	client *redis.Client
	cfg    TokenConfig
}

// NewTokenService constructs a TokenService over client using cfg.
func NewTokenService(client *redis.Client, cfg TokenConfig) *TokenService {
	return &TokenService{client: client, cfg: cfg}
}

func revokedKey(jti string) string      { return "revoked:" + jti }
func activeRefreshKey(jti string) string { return "active_refresh:" + jti }

func (s *TokenService) longestTTL() time.Duration {
	if s.cfg.RefreshTTL > s.cfg.AccessTTL {
		return s.cfg.RefreshTTL
	}
	return s.cfg.AccessTTL
}

// GenerateTokenPair mints a new access/refresh pair for claims.
func (s *TokenService) GenerateTokenPair(ctx context.Context, claims Claims) (TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(s.cfg.AccessTTL)
	refreshExp := now.Add(s.cfg.RefreshTTL)

	accessJTI := uuid.NewString()
	access, err := s.sign(claims, tokenTypeAccess, accessJTI, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}

	refreshJTI := uuid.NewString()
	refresh, err := s.sign(claims, tokenTypeRefresh, refreshJTI, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.client.Set(ctx, activeRefreshKey(refreshJTI), claims.Subject, s.cfg.RefreshTTL).Err(); err != nil {
		return TokenPair{}, fmt.Errorf("session: record active refresh: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *TokenService) sign(claims Claims, tokenType, jti string, now, exp time.Time) (string, error) {
	tc := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
		InstanceID: claims.InstanceID,
		OrgID:      claims.OrgID,
		Email:      claims.Email,
		Roles:      claims.Roles,
		TokenType:  tokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tc)
	return token.SignedString(s.cfg.Secret)
}

func (s *TokenService) parse(tokenString string) (*tokenClaims, error) {
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &tc, func(t *jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, jwt.WithIssuer(s.cfg.Issuer), jwt.WithAudience(s.cfg.Audience))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}
	return &tc, nil
}

// VerifyToken validates tokenString's signature and expiry, checks it
// has not been revoked, and returns its claims.
func (s *TokenService) VerifyToken(ctx context.Context, tokenString string) (Claims, error) {
	tc, err := s.parse(tokenString)
	if err != nil {
		return Claims{}, err
	}
	revoked, err := s.client.Exists(ctx, revokedKey(tc.ID)).Result()
	if err != nil {
		return Claims{}, fmt.Errorf("session: check revocation: %w", err)
	}
	if revoked > 0 {
		return Claims{}, ErrTokenExpired
	}
	return Claims{
		Subject:    tc.Subject,
		InstanceID: tc.InstanceID,
		OrgID:      tc.OrgID,
		Email:      tc.Email,
		Roles:      tc.Roles,
	}, nil
}

// RefreshToken validates refreshToken is an unconsumed refresh token,
// consumes it (single-use), and mints a replacement pair.
func (s *TokenService) RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	tc, err := s.parse(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if tc.TokenType != tokenTypeRefresh {
		return TokenPair{}, ErrWrongTokenType
	}

	deleted, err := s.client.Del(ctx, activeRefreshKey(tc.ID)).Result()
	if err != nil {
		return TokenPair{}, fmt.Errorf("session: consume refresh: %w", err)
	}
	if deleted == 0 {
		return TokenPair{}, ErrTokenExpired
	}

	return s.GenerateTokenPair(ctx, Claims{
		Subject:    tc.Subject,
		InstanceID: tc.InstanceID,
		OrgID:      tc.OrgID,
		Email:      tc.Email,
		Roles:      tc.Roles,
	})
}

// RevokeToken adds tokenString's jti to the shared revocation set.
func (s *TokenService) RevokeToken(ctx context.Context, tokenString string) error {
	tc, err := s.parse(tokenString)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, revokedKey(tc.ID), "1", s.longestTTL()).Err()
}
