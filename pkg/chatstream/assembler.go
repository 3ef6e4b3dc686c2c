package chatstream

import (
	"encoding/json"
	"time"

	"ai-chat-gateway/pkg/attachment"

	"github.com/google/uuid"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type ToolCallStatus string

const (
	ToolPending   ToolCallStatus = "pending"
	ToolRunning   ToolCallStatus = "running"
	ToolCompleted ToolCallStatus = "completed"
	ToolError     ToolCallStatus = "error"
)

// statusRank orders tool statuses; transitions only ever move up.
var statusRank = map[ToolCallStatus]int{
	ToolPending:   0,
	ToolRunning:   1,
	ToolCompleted: 2,
	ToolError:     2,
}

type ToolCall struct {
	ID     string                 `json:"id"`
	Name   string                 `json:"name"`
	Args   map[string]interface{} `json:"args,omitempty"`
	Result string                 `json:"result,omitempty"`
	Status ToolCallStatus         `json:"status"`
}

// ChatMessage is mutable only while IsStreaming is true; a terminal event
// freezes it.
type ChatMessage struct {
	ID                  string                   `json:"id"`
	Role                MessageRole              `json:"role"`
	TextContent         string                   `json:"text_content"`
	ThinkingContent     string                   `json:"thinking_content,omitempty"`
	ToolCalls           []ToolCall               `json:"tool_calls,omitempty"`
	Attachments         []*attachment.Attachment `json:"attachments,omitempty"`
	IsStreaming         bool                     `json:"is_streaming"`
	IsThinkingStreaming bool                     `json:"is_thinking_streaming"`
	Errored             bool                     `json:"errored,omitempty"`
	ErrorMessage        string                   `json:"error_message,omitempty"`
}

// Conversation is the ordered message list plus out-of-band metadata. The
// assembler only ever appends to and mutates the tail while it streams.
type Conversation struct {
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	Messages  []*ChatMessage `json:"messages"`
	Busy      bool           `json:"busy"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Assembler owns the streaming tail message of one Conversation and turns
// deltas into finished content. It is driven synchronously by the stream's
// dispatch loop, one event at a time, so it carries no locking of its own.
type Assembler struct {
	conv     *Conversation
	openPart PartKind
}

func NewAssembler(conversationID string) *Assembler {
	return &Assembler{
		conv: &Conversation{ID: conversationID},
	}
}

func (a *Assembler) Conversation() *Conversation {
	return a.conv
}

// Current returns the streaming tail message, or nil when nothing streams.
func (a *Assembler) Current() *ChatMessage {
	if len(a.conv.Messages) == 0 {
		return nil
	}
	tail := a.conv.Messages[len(a.conv.Messages)-1]
	if !tail.IsStreaming {
		return nil
	}
	return tail
}

// AppendUserMessage records the prompt the user sent; it is never streamed.
func (a *Assembler) AppendUserMessage(text string, atts []*attachment.Attachment) *ChatMessage {
	msg := &ChatMessage{
		ID:          uuid.New().String(),
		Role:        RoleUser,
		TextContent: text,
		Attachments: atts,
	}
	a.conv.Messages = append(a.conv.Messages, msg)
	return msg
}

// BeginMessage opens a new streaming assistant message. If a previous
// message somehow never saw its terminal event, it is finalized first so the
// one-streaming-message invariant holds.
func (a *Assembler) BeginMessage() *ChatMessage {
	if cur := a.Current(); cur != nil {
		a.Finalize()
	}
	msg := &ChatMessage{
		ID:          uuid.New().String(),
		Role:        RoleAssistant,
		IsStreaming: true,
	}
	a.conv.Messages = append(a.conv.Messages, msg)
	a.openPart = PartText
	return msg
}

// OpenPart starts a new content part. Deltas that follow append to the most
// recently opened part of their kind.
func (a *Assembler) OpenPart(kind PartKind) {
	a.openPart = kind
	if cur := a.Current(); cur != nil && kind != PartThinking {
		cur.IsThinkingStreaming = false
	}
}

func (a *Assembler) AppendText(delta string) {
	cur := a.Current()
	if cur == nil {
		return
	}
	cur.TextContent += delta
}

func (a *Assembler) AppendThinking(delta string) {
	cur := a.Current()
	if cur == nil {
		return
	}
	cur.ThinkingContent += delta
	cur.IsThinkingStreaming = true
}

// UpsertToolCall creates or updates a ToolCall in pending state. Matching is
// by tool name, falling back to the call id; a later terminal status is
// never regressed by a replayed creation event.
func (a *Assembler) UpsertToolCall(data ToolCallData) {
	cur := a.Current()
	if cur == nil {
		return
	}

	if tc := findToolCall(cur, data.ToolName, data.ID); tc != nil {
		if data.Args != nil {
			tc.Args = data.Args
		}
		return
	}

	id := data.ID
	if id == "" {
		id = uuid.New().String()
	}
	cur.ToolCalls = append(cur.ToolCalls, ToolCall{
		ID:     id,
		Name:   data.ToolName,
		Args:   data.Args,
		Status: ToolPending,
	})
}

// StartToolCalls advances every pending ToolCall to running.
func (a *Assembler) StartToolCalls() {
	cur := a.Current()
	if cur == nil {
		return
	}
	for i := range cur.ToolCalls {
		advanceToolCall(&cur.ToolCalls[i], ToolRunning, "")
	}
}

// ResolveToolCall attaches the result and moves the matching call to
// completed, or error when the result signals failure.
func (a *Assembler) ResolveToolCall(data ToolResultData) {
	cur := a.Current()
	if cur == nil {
		return
	}
	tc := findToolCall(cur, data.ToolName, data.ID)
	if tc == nil {
		// Result for a call we never saw announced; record it whole.
		cur.ToolCalls = append(cur.ToolCalls, ToolCall{
			ID:     uuid.New().String(),
			Name:   data.ToolName,
			Status: ToolPending,
		})
		tc = &cur.ToolCalls[len(cur.ToolCalls)-1]
	}

	target := ToolCompleted
	if data.IsError {
		target = ToolError
	}
	advanceToolCall(tc, target, decodeResult(data.Result))
}

// ApplyFinalResult freezes the textual output and reconciles tool_events
// into the message's list. Replays of already-terminal tool calls are no-ops.
func (a *Assembler) ApplyFinalResult(data FinalResultData) {
	cur := a.Current()
	if cur == nil {
		return
	}
	if data.Output != "" {
		cur.TextContent = data.Output
	}
	for _, ev := range data.ToolEvents {
		tc := findToolCall(cur, ev.Name, ev.ID)
		if tc == nil {
			cur.ToolCalls = append(cur.ToolCalls, ev)
			continue
		}
		advanceToolCall(tc, ev.Status, ev.Result)
	}
}

// Finalize closes the streaming message. Idempotent: duplicate terminal
// events under retry are no-ops, not errors.
func (a *Assembler) Finalize() {
	cur := a.Current()
	if cur == nil {
		return
	}
	cur.IsStreaming = false
	cur.IsThinkingStreaming = false
	a.conv.Busy = false
}

// MarkErrored closes the streaming message keeping whatever partial content
// was assembled. Prior finalized messages are untouched.
func (a *Assembler) MarkErrored(message string) {
	cur := a.Current()
	if cur == nil {
		return
	}
	cur.IsStreaming = false
	cur.IsThinkingStreaming = false
	cur.Errored = true
	cur.ErrorMessage = message
	a.conv.Busy = false
}

func (a *Assembler) setBusy() {
	a.conv.Busy = true
}

func (a *Assembler) updateMeta(meta ConversationMetaData) {
	if meta.ConversationID != "" {
		a.conv.ID = meta.ConversationID
	}
	if meta.Title != "" {
		a.conv.Title = meta.Title
	}
	a.conv.UpdatedAt = time.Now()
}

func findToolCall(msg *ChatMessage, name, id string) *ToolCall {
	for i := range msg.ToolCalls {
		if name != "" && msg.ToolCalls[i].Name == name {
			return &msg.ToolCalls[i]
		}
		if id != "" && msg.ToolCalls[i].ID == id {
			return &msg.ToolCalls[i]
		}
	}
	return nil
}

// advanceToolCall applies a monotonic status move; anything that would go
// backwards (or replay a terminal state) is dropped.
func advanceToolCall(tc *ToolCall, to ToolCallStatus, result string) {
	if statusRank[to] <= statusRank[tc.Status] {
		return
	}
	tc.Status = to
	if result != "" {
		tc.Result = result
	}
}

func decodeResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
