package controller

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"ai-chat-gateway/internal/dto"
	"ai-chat-gateway/internal/pkg/serverutils"
	"ai-chat-gateway/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router, authMiddleware fiber.Handler)
	Refresh(ctx *fiber.Ctx) error
	Logout(ctx *fiber.Ctx) error
	Me(ctx *fiber.Ctx) error
}

type sessionController struct {
	tokenService service.ITokenService
	accessTTL    time.Duration
	refreshTTL   time.Duration
	cookieSecure bool
}

func NewSessionController(tokenService service.ITokenService, accessTTL, refreshTTL time.Duration, cookieSecure bool) ISessionController {
	return &sessionController{
		tokenService: tokenService,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		cookieSecure: cookieSecure,
	}
}

func (c *sessionController) RegisterRoutes(r fiber.Router, authMiddleware fiber.Handler) {
	h := r.Group("/session")
	h.Post("/refresh", c.Refresh)
	h.Post("/logout", c.Logout)
	h.Get("/me", authMiddleware, c.Me)
}

type refreshRequestBody struct {
	RefreshToken string `json:"refresh_token"`
}

func (c *sessionController) Refresh(ctx *fiber.Ctx) error {
	raw := ctx.Cookies(serverutils.RefreshTokenCookie)
	if raw == "" {
		var body refreshRequestBody
		if err := ctx.BodyParser(&body); err == nil {
			raw = body.RefreshToken
		}
	}

	if raw == "" {
		c.clearSessionCookies(ctx)
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"code":    401,
			"message": "No refresh token",
		})
	}

	pair, err := c.tokenService.Rotate(ctx.Context(), raw)
	if err != nil {
		c.clearSessionCookies(ctx)
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"code":    401,
			"message": "Session expired",
		})
	}

	c.setSessionCookies(ctx, pair.AccessToken, pair.RefreshToken)

	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "Session refreshed",
		"data": dto.RefreshSessionResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresAt:    pair.ExpiresAt,
			Subject:      pair.Subject,
			Role:         pair.Role,
		},
	})
}

func (c *sessionController) Logout(ctx *fiber.Ctx) error {
	// Best-effort revoke; cookies are cleared regardless.
	if raw := ctx.Cookies(serverutils.RefreshTokenCookie); raw != "" {
		_ = c.tokenService.Revoke(ctx.Context(), raw)
	}
	c.clearSessionCookies(ctx)

	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "Logged out successfully",
		"data":    dto.LogoutResponse{LoggedOut: true},
	})
}

func (c *sessionController) Me(ctx *fiber.Ctx) error {
	claims := serverutils.ClaimsFromLocals(ctx)
	if claims == nil {
		return fiber.ErrUnauthorized
	}
	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "OK",
		"data": dto.SessionInfoResponse{
			Subject:     claims.Subject,
			Role:        claims.Role,
			IsSuperuser: claims.IsSuperuser,
			ExpiresAt:   claims.ExpiresAt,
		},
	})
}

func (c *sessionController) setSessionCookies(ctx *fiber.Ctx, accessToken, refreshToken string) {
	ctx.Cookie(&fiber.Cookie{
		Name:     serverutils.AccessTokenCookie,
		Value:    accessToken,
		MaxAge:   int(c.accessTTL.Seconds()),
		HTTPOnly: true,
		Secure:   c.cookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
	ctx.Cookie(&fiber.Cookie{
		Name:     serverutils.RefreshTokenCookie,
		Value:    refreshToken,
		MaxAge:   int(c.refreshTTL.Seconds()),
		HTTPOnly: true,
		Secure:   c.cookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
	// Readable by scripts so the client can echo it back in X-CSRF-Token.
	ctx.Cookie(&fiber.Cookie{
		Name:     serverutils.CSRFTokenCookie,
		Value:    newCSRFToken(),
		MaxAge:   int(c.accessTTL.Seconds()),
		HTTPOnly: false,
		Secure:   c.cookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}

func (c *sessionController) clearSessionCookies(ctx *fiber.Ctx) {
	// fasthttp only serializes max-age when it is positive, so deletion has
	// to ride on an Expires in the past.
	for _, name := range []string{serverutils.AccessTokenCookie, serverutils.RefreshTokenCookie, serverutils.CSRFTokenCookie} {
		ctx.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Expires:  time.Now().Add(-time.Hour),
			HTTPOnly: name != serverutils.CSRFTokenCookie,
			Secure:   c.cookieSecure,
			SameSite: fiber.CookieSameSiteLaxMode,
			Path:     "/",
		})
	}
}

func newCSRFToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
