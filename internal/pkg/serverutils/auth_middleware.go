package serverutils

import (
	"github.com/gofiber/fiber/v2"

	"ai-chat-gateway/pkg/token"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	CSRFTokenCookie    = "csrf_token"

	localsClaimsKey = "claims"
)

// ExtractAccessToken pulls the access token from the request.
// Priority: cookie (browser), "token" query param (WS handshake),
// Authorization header (tooling/non-browser).
func ExtractAccessToken(ctx *fiber.Ctx) string {
	if cookie := ctx.Cookies(AccessTokenCookie); cookie != "" {
		return cookie
	}
	if qp := ctx.Query("token"); qp != "" {
		return qp
	}
	authHeader := ctx.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return ""
}

// AuthMiddleware verifies the access token and stores the decoded claims in
// locals. Missing, invalid and expired tokens all fail closed with the same
// unauthenticated signal; no crypto detail leaks to the caller.
func AuthMiddleware(verifier *token.Verifier) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := ExtractAccessToken(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Missing token"})
		}

		claims, err := verifier.Verify(tokenStr)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid token"})
		}
		if claims.TokenType != token.TokenTypeAccess {
			// A refresh token is never a valid request credential.
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid token"})
		}

		ctx.Locals(localsClaimsKey, claims)
		return ctx.Next()
	}
}

// AdminOnly gates a route on the centralized admin predicate.
func AdminOnly() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		claims := ClaimsFromLocals(ctx)
		if claims == nil || !claims.IsAdmin() {
			return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "Admins only"})
		}
		return ctx.Next()
	}
}

// ClaimsFromLocals returns the verified claims set by AuthMiddleware, or nil.
func ClaimsFromLocals(ctx *fiber.Ctx) *token.Claims {
	claims, _ := ctx.Locals(localsClaimsKey).(*token.Claims)
	return claims
}
