package service

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"ai-chat-gateway/pkg/events"
	natsbus "ai-chat-gateway/pkg/nats"
	"ai-chat-gateway/pkg/token"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRefreshReuse is returned when an already-rotated refresh token is
	// presented again. The whole family is revoked before this is returned.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	// ErrRefreshRevoked is returned when the token's family has been revoked.
	ErrRefreshRevoked = errors.New("refresh token revoked")
)

// TokenPair is what a successful mint or rotation hands back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Subject      string
	Role         string
	IsSuperuser  bool
	ExpiresAt    time.Time
}

type ITokenService interface {
	MintPair(ctx context.Context, subject, role string, isSuperuser bool) (*TokenPair, error)
	Rotate(ctx context.Context, rawRefreshToken string) (*TokenPair, error)
	Revoke(ctx context.Context, rawRefreshToken string) error
}

type tokenService struct {
	signKey        ed25519.PrivateKey
	verifier       *token.Verifier
	rdb            *redis.Client
	local          *gocache.Cache
	eventPublisher *natsbus.Publisher
	accessTTL      time.Duration
	refreshTTL     time.Duration
}

// NewTokenService builds the service from PEM-encoded Ed25519 key material.
// rdb may be nil; rotation bookkeeping then degrades to the in-process cache,
// which is fine for a single instance.
func NewTokenService(privateKeyPEM, publicKeyPEM []byte, rdb *redis.Client, eventPublisher *natsbus.Publisher, accessTTL, refreshTTL time.Duration) (ITokenService, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("no PEM block in private key material")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	signKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not Ed25519")
	}

	return &tokenService{
		signKey:        signKey,
		verifier:       token.NewVerifier(publicKeyPEM),
		rdb:            rdb,
		local:          gocache.New(refreshTTL, 10*time.Minute),
		eventPublisher: eventPublisher,
		accessTTL:      accessTTL,
		refreshTTL:     refreshTTL,
	}, nil
}

func (s *tokenService) MintPair(ctx context.Context, subject, role string, isSuperuser bool) (*TokenPair, error) {
	family := uuid.New().String()
	return s.mint(ctx, subject, role, isSuperuser, family)
}

func (s *tokenService) mint(ctx context.Context, subject, role string, isSuperuser bool, family string) (*TokenPair, error) {
	now := time.Now()
	accessExpiry := now.Add(s.accessTTL)

	accessClaims := jwt.MapClaims{
		"sub":          subject,
		"role":         role,
		"is_superuser": isSuperuser,
		"token_type":   string(token.TokenTypeAccess),
		"jti":          uuid.New().String(),
		"iat":          now.Unix(),
		"exp":          accessExpiry.Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, accessClaims).SignedString(s.signKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshClaims := jwt.MapClaims{
		"sub":          subject,
		"role":         role,
		"is_superuser": isSuperuser,
		"token_type":   string(token.TokenTypeRefresh),
		"family":       family,
		"jti":          uuid.New().String(),
		"iat":          now.Unix(),
		"exp":          now.Add(s.refreshTTL).Unix(),
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, refreshClaims).SignedString(s.signKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	// Record the live refresh token hash so rotation can tell a current
	// token from a replayed one.
	if err := s.recordLive(ctx, hashToken(refreshToken), family); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Subject:      subject,
		Role:         role,
		IsSuperuser:  isSuperuser,
		ExpiresAt:    accessExpiry,
	}, nil
}

func (s *tokenService) Rotate(ctx context.Context, rawRefreshToken string) (*TokenPair, error) {
	claims, family, err := s.verifyRefresh(rawRefreshToken)
	if err != nil {
		return nil, err
	}

	if s.familyRevoked(ctx, family) {
		return nil, ErrRefreshRevoked
	}

	hash := hashToken(rawRefreshToken)
	state, found := s.lookup(ctx, hash)
	if !found {
		// Token verified but was never recorded or has aged out; treat as
		// revoked rather than minting a fresh pair for it.
		return nil, ErrRefreshRevoked
	}
	if state == stateConsumed {
		s.revokeFamily(ctx, family)
		s.publishLifecycle(ctx, events.NewRefreshReuse(claims.Subject, family))
		return nil, ErrRefreshReuse
	}

	// Single use: consume before minting the replacement.
	s.markConsumed(ctx, hash)

	pair, err := s.mint(ctx, claims.Subject, claims.Role, claims.IsSuperuser, family)
	if err != nil {
		return nil, err
	}

	s.publishLifecycle(ctx, events.NewSessionRotated(claims.Subject, family))
	return pair, nil
}

func (s *tokenService) Revoke(ctx context.Context, rawRefreshToken string) error {
	_, family, err := s.verifyRefresh(rawRefreshToken)
	if err != nil {
		// Nothing to revoke for a token we cannot attribute.
		return nil
	}
	s.revokeFamily(ctx, family)
	return nil
}

func (s *tokenService) verifyRefresh(raw string) (*token.Claims, string, error) {
	claims, err := s.verifier.Verify(raw)
	if err != nil {
		return nil, "", err
	}
	if claims.TokenType != token.TokenTypeRefresh {
		return nil, "", token.ErrInvalidToken
	}

	// The family rides alongside the standard claims; pull it from the raw
	// payload since token.Claims keeps only the shared fields.
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, "", token.ErrInvalidToken
	}
	mapClaims := parsed.Claims.(jwt.MapClaims)
	family, _ := mapClaims["family"].(string)
	if family == "" {
		return nil, "", token.ErrInvalidToken
	}

	return claims, family, nil
}

// Rotation bookkeeping. Keys live as long as the refresh TTL.

const (
	stateLive     = "live"
	stateConsumed = "consumed"
)

func refreshKey(hash string) string { return "refresh:" + hash }

func familyKey(family string) string { return "family_revoked:" + family }

func (s *tokenService) recordLive(ctx context.Context, hash, family string) error {
	if s.rdb != nil {
		if err := s.rdb.Set(ctx, refreshKey(hash), stateLive, s.refreshTTL).Err(); err != nil {
			return fmt.Errorf("failed to record refresh token: %w", err)
		}
		return nil
	}
	s.local.Set(refreshKey(hash), stateLive, s.refreshTTL)
	return nil
}

func (s *tokenService) lookup(ctx context.Context, hash string) (string, bool) {
	if s.rdb != nil {
		val, err := s.rdb.Get(ctx, refreshKey(hash)).Result()
		if err != nil {
			return "", false
		}
		return val, true
	}
	val, found := s.local.Get(refreshKey(hash))
	if !found {
		return "", false
	}
	return val.(string), true
}

func (s *tokenService) markConsumed(ctx context.Context, hash string) {
	if s.rdb != nil {
		s.rdb.Set(ctx, refreshKey(hash), stateConsumed, s.refreshTTL)
		return
	}
	s.local.Set(refreshKey(hash), stateConsumed, s.refreshTTL)
}

func (s *tokenService) revokeFamily(ctx context.Context, family string) {
	if s.rdb != nil {
		s.rdb.Set(ctx, familyKey(family), "1", s.refreshTTL)
		return
	}
	s.local.Set(familyKey(family), "1", s.refreshTTL)
}

func (s *tokenService) familyRevoked(ctx context.Context, family string) bool {
	if s.rdb != nil {
		return s.rdb.Exists(ctx, familyKey(family)).Val() > 0
	}
	_, found := s.local.Get(familyKey(family))
	return found
}

func (s *tokenService) publishLifecycle(ctx context.Context, event events.BaseEvent) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		fmt.Printf("[WARN] Failed to publish %s event: %v\n", event.EventType(), err)
	}
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
