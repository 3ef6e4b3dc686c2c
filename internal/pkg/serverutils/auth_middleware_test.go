package serverutils

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ai-chat-gateway/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

type tokenFixture struct {
	verifier *token.Verifier
	signKey  ed25519.PrivateKey
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return &tokenFixture{
		verifier: token.NewVerifier(pubPEM),
		signKey:  priv,
	}
}

func (f *tokenFixture) sign(t *testing.T, tokenType token.TokenType) string {
	return f.signRole(t, tokenType, "member")
}

func (f *tokenFixture) signRole(t *testing.T, tokenType token.TokenType, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":        "user-1",
		"role":       role,
		"token_type": string(tokenType),
		"exp":        time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(f.signKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func newAuthApp(f *tokenFixture) *fiber.App {
	app := fiber.New()
	app.Get("/me", AuthMiddleware(f.verifier), func(ctx *fiber.Ctx) error {
		claims := ClaimsFromLocals(ctx)
		return ctx.SendString(claims.Subject)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	f := newTokenFixture(t)
	app := newAuthApp(f)
	access := f.sign(t, token.TokenTypeAccess)

	tests := []struct {
		name       string
		build      func() *http.Request
		wantStatus int
	}{
		{
			name: "cookie token accepted",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/me", nil)
				req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: access})
				return req
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "query token accepted",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/me?token="+access, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "bearer token accepted",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/me", nil)
				req.Header.Set("Authorization", "Bearer "+access)
				return req
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "missing token rejected",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/me", nil)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "refresh token rejected as request credential",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/me", nil)
				req.Header.Set("Authorization", "Bearer "+f.sign(t, token.TokenTypeRefresh))
				return req
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "garbage token rejected",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/me", nil)
				req.Header.Set("Authorization", "Bearer garbage")
				return req
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(tt.build())
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestAdminOnly(t *testing.T) {
	f := newTokenFixture(t)
	app := fiber.New()
	app.Get("/admin", AuthMiddleware(f.verifier), AdminOnly(), func(ctx *fiber.Ctx) error {
		return ctx.SendString("ok")
	})

	tests := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{"admin allowed", "admin", http.StatusOK},
		{"member forbidden", "member", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+f.signRole(t, token.TokenTypeAccess, tt.role))
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestAuthMiddlewareCookieBeatsHeader(t *testing.T) {
	f := newTokenFixture(t)
	app := newAuthApp(f)

	// A valid bearer cannot rescue a bad cookie; the cookie wins extraction.
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "stale"})
	req.Header.Set("Authorization", "Bearer "+f.sign(t, token.TokenTypeAccess))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}
