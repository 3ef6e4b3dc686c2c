package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"ai-chat-gateway/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPEMs(t *testing.T) (privPEM, pubPEM []byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM
}

func newTestTokenService(t *testing.T) ITokenService {
	t.Helper()
	privPEM, pubPEM := testKeyPEMs(t)
	svc, err := NewTokenService(privPEM, pubPEM, nil, nil, 30*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	return svc
}

func TestMintAndRotate(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	pair, err := svc.MintPair(ctx, "user-1", "member", false)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "user-1", pair.Subject)

	rotated, err := svc.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", rotated.Subject)
	assert.Equal(t, "member", rotated.Role)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, rotated.AccessToken)
}

func TestMintedAccessTokensAreUnique(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	// Ed25519 signing is deterministic, so two tokens minted within the same
	// second would be byte-identical without a per-token jti claim.
	first, err := svc.MintPair(ctx, "user-1", "member", false)
	require.NoError(t, err)
	second, err := svc.MintPair(ctx, "user-1", "member", false)
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestRotateReuseRevokesFamily(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	pair, err := svc.MintPair(ctx, "user-1", "member", false)
	require.NoError(t, err)

	rotated, err := svc.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// Presenting the consumed token again is reuse.
	_, err = svc.Rotate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshReuse)

	// Reuse takes the whole family down, including the latest token.
	_, err = svc.Rotate(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshRevoked)
}

func TestRotateRejectsAccessToken(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	pair, err := svc.MintPair(ctx, "user-1", "member", false)
	require.NoError(t, err)

	_, err = svc.Rotate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestRevokeBlocksRotation(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	pair, err := svc.MintPair(ctx, "user-1", "member", false)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))

	_, err = svc.Rotate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshRevoked)
}

func TestRotatedAccessTokenVerifies(t *testing.T) {
	privPEM, pubPEM := testKeyPEMs(t)
	svc, err := NewTokenService(privPEM, pubPEM, nil, nil, 30*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	pair, err := svc.MintPair(context.Background(), "admin-1", "admin", true)
	require.NoError(t, err)

	verifier := token.NewVerifier(pubPEM)
	claims, err := verifier.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.Subject)
	assert.Equal(t, token.TokenTypeAccess, claims.TokenType)
	assert.True(t, claims.IsAdmin())
}
