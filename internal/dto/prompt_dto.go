package dto

import (
	"time"

	"github.com/google/uuid"
)

type SendPromptRequest struct {
	Prompt      string          `json:"prompt" validate:"required,min=1,max=32768"`
	Attachments []AttachmentDTO `json:"attachments,omitempty" validate:"max=10,dive"`
}

// AttachmentDTO references an already-uploaded object. The gateway never
// receives attachment bytes on the prompt path.
type AttachmentDTO struct {
	ObjectKey string `json:"object_key" validate:"required"`
	FileName  string `json:"file_name" validate:"required"`
	MimeType  string `json:"mime_type" validate:"required"`
	SizeBytes int64  `json:"size_bytes" validate:"gt=0"`
}

type SendPromptResponse struct {
	PromptID       uuid.UUID `json:"prompt_id"`
	ConversationID string    `json:"conversation_id"`
	AcceptedAt     time.Time `json:"accepted_at"`
}

type CancelGenerationResponse struct {
	ConversationID string `json:"conversation_id"`
	Cancelled      bool   `json:"cancelled"`
}

// PublishPromptMessage is the queue payload handed from the prompt endpoint
// to the upstream forwarder.
type PublishPromptMessage struct {
	PromptID       uuid.UUID       `json:"prompt_id"`
	ConversationID string          `json:"conversation_id"`
	Subject        string          `json:"subject"`
	Prompt         string          `json:"prompt"`
	Attachments    []AttachmentDTO `json:"attachments,omitempty"`
	SubmittedAt    time.Time       `json:"submitted_at"`
}
