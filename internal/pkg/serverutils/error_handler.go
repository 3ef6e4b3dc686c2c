package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"ai-chat-gateway/pkg/attachment"
	"ai-chat-gateway/pkg/session"
	"ai-chat-gateway/pkg/token"
)

// ErrorHandlerMiddleware maps the error taxonomy onto the JSON response
// envelope. Auth failures collapse into a single unauthenticated signal.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := fiber.StatusInternalServerError
		message := "Internal server error"

		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
			message = fiberErr.Message
		case errors.Is(err, token.ErrMissingToken),
			errors.Is(err, token.ErrInvalidToken),
			errors.Is(err, token.ErrExpired),
			errors.Is(err, token.ErrUnexpectedAlg),
			errors.Is(err, session.ErrUnauthenticated):
			code = fiber.StatusUnauthorized
			message = "Unauthenticated"
		case errors.Is(err, attachment.ErrDisallowedType),
			errors.Is(err, attachment.ErrTooLarge):
			code = fiber.StatusBadRequest
			message = err.Error()
		}

		return ctx.Status(code).JSON(fiber.Map{
			"success": false,
			"code":    code,
			"message": message,
		})
	}
}
