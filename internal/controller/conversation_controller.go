package controller

import (
	"ai-chat-gateway/internal/dto"
	"ai-chat-gateway/internal/pkg/serverutils"
	"ai-chat-gateway/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type IConversationController interface {
	RegisterRoutes(r fiber.Router)
	SendPrompt(ctx *fiber.Ctx) error
	CancelGeneration(ctx *fiber.Ctx) error
}

type conversationController struct {
	promptService      service.IPromptService
	validate           *validator.Validate
	maxAttachmentBytes int64
}

func NewConversationController(promptService service.IPromptService, maxAttachmentBytes int64) IConversationController {
	return &conversationController{
		promptService:      promptService,
		validate:           validator.New(),
		maxAttachmentBytes: maxAttachmentBytes,
	}
}

func (c *conversationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Post("/:conversationId/prompt", c.SendPrompt)
	h.Post("/:conversationId/cancel", c.CancelGeneration)
}

func (c *conversationController) SendPrompt(ctx *fiber.Ctx) error {
	conversationID := ctx.Params("conversationId")
	if conversationID == "" {
		return fiber.ErrBadRequest
	}

	claims := serverutils.ClaimsFromLocals(ctx)
	if claims == nil {
		return fiber.ErrUnauthorized
	}

	var req dto.SendPromptRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"code":    400,
			"message": "Invalid request body",
		})
	}

	if err := c.validate.Struct(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"code":    400,
			"message": err.Error(),
		})
	}

	// Aggregate cap across all attachments of one prompt. The gateway only
	// carries references, so size is checked against the declared bytes.
	if c.maxAttachmentBytes > 0 {
		var total int64
		for _, a := range req.Attachments {
			total += a.SizeBytes
		}
		if total > c.maxAttachmentBytes {
			return ctx.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"success": false,
				"code":    413,
				"message": "Attachments exceed the size limit",
			})
		}
	}

	res, err := c.promptService.Submit(ctx.Context(), conversationID, claims.Subject, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"code":    202,
		"message": "Prompt accepted",
		"data":    res,
	})
}

func (c *conversationController) CancelGeneration(ctx *fiber.Ctx) error {
	conversationID := ctx.Params("conversationId")
	if conversationID == "" {
		return fiber.ErrBadRequest
	}

	claims := serverutils.ClaimsFromLocals(ctx)
	if claims == nil {
		return fiber.ErrUnauthorized
	}

	if err := c.promptService.Cancel(ctx.Context(), conversationID, claims.Subject); err != nil {
		return err
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"code":    200,
		"message": "Cancellation requested",
		"data": dto.CancelGenerationResponse{
			ConversationID: conversationID,
			Cancelled:      true,
		},
	})
}
