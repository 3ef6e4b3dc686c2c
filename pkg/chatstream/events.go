// Package chatstream reconstructs a structured conversation from the ordered
// protocol events delivered over one streaming connection.
package chatstream

import (
	"encoding/json"
)

// EventType tags the protocol event union. The set is closed: dispatch is an
// exhaustive switch, so a new kind is a compile-visible addition, not a
// silently ignored string.
type EventType string

const (
	EventUserPrompt          EventType = "user_prompt"
	EventUserPromptProcessed EventType = "user_prompt_processed"
	EventModelRequestStart   EventType = "model_request_start"
	EventPartStart           EventType = "part_start"
	EventTextDelta           EventType = "text_delta"
	EventThinkingDelta       EventType = "thinking_delta"
	EventToolCallDelta       EventType = "tool_call_delta"
	EventCallToolsStart      EventType = "call_tools_start"
	EventToolCall            EventType = "tool_call"
	EventToolResult          EventType = "tool_result"
	EventFinalResultStart    EventType = "final_result_start"
	EventFinalResult         EventType = "final_result"
	EventComplete            EventType = "complete"
	EventError               EventType = "error"
	EventConversationCreated EventType = "conversation_created"
	EventConversationUpdated EventType = "conversation_updated"
	EventMessageSaved        EventType = "message_saved"
)

// Event is the wire envelope. Data is decoded lazily into the typed payload
// for the event's kind; metadata-only events carry no payload at all.
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// PartKind identifies a contiguous span of one content kind within a
// streaming message.
type PartKind string

const (
	PartText     PartKind = "text"
	PartThinking PartKind = "thinking"
	PartTool     PartKind = "tool"
)

type PartStartData struct {
	Kind PartKind `json:"kind"`
}

type TextDeltaData struct {
	Delta string `json:"delta"`
}

type ThinkingDeltaData struct {
	Delta string `json:"delta"`
}

// ToolCallData covers both tool_call and tool_call_delta: the two are
// alternate granularities of the same update, keyed by tool name with the
// call id as a fallback.
type ToolCallData struct {
	ID       string                 `json:"id,omitempty"`
	ToolName string                 `json:"tool_name"`
	Args     map[string]interface{} `json:"args,omitempty"`
}

type ToolResultData struct {
	ID       string          `json:"id,omitempty"`
	ToolName string          `json:"tool_name"`
	Result   json.RawMessage `json:"result,omitempty"`
	IsError  bool            `json:"is_error,omitempty"`
}

type FinalResultData struct {
	Output     string     `json:"output"`
	ToolEvents []ToolCall `json:"tool_events,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// MessageSavedData and friends are out-of-band metadata notifications; they
// update conversation metadata, never message content.
type MessageSavedData struct {
	MessageID string `json:"message_id"`
}

type ConversationMetaData struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Title          string `json:"title,omitempty"`
}
