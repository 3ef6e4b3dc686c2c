package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"ai-chat-gateway/internal/config"
	"ai-chat-gateway/pkg/chatstream"
	"ai-chat-gateway/pkg/session"
	"ai-chat-gateway/pkg/token"

	"github.com/fatih/color"
)

// chatcli drives one prompt/response round trip against a running gateway:
// seed the session from env tokens, submit a prompt, then follow the
// conversation stream until the turn completes.
func main() {
	cfg := config.Load()

	baseURL := envOr("GATEWAY_URL", "http://localhost:3000")
	conversationID := envOr("CONVERSATION_ID", "demo")
	accessToken := os.Getenv("ACCESS_TOKEN")
	refreshToken := os.Getenv("REFRESH_TOKEN")

	if accessToken == "" {
		color.Red("ACCESS_TOKEN is required")
		os.Exit(1)
	}

	prompt := strings.Join(os.Args[1:], " ")
	if prompt == "" {
		prompt = "Hello, what can you do?"
	}

	claims := token.DecodeUnsafe(accessToken)
	if claims == nil {
		color.Red("Failed to decode access token")
		os.Exit(1)
	}

	store := session.NewStore()
	store.Rotate(accessToken, refreshToken, claims)
	refresher := session.NewRefresher(store, baseURL+"/api/session/refresh", baseURL+"/api/session/logout")

	color.Cyan("🚀 chatcli — conversation %s as %s\n", conversationID, claims.Subject)

	// 1. Submit the prompt
	color.Yellow("[1] Submitting prompt")
	if err := submitPrompt(baseURL, conversationID, store.AccessToken(), prompt); err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Prompt accepted")

	// 2. Follow the stream
	color.Yellow("\n[2] Following stream")
	streamURL := strings.Replace(baseURL, "http", "ws", 1) +
		"/api/chat/" + conversationID + "/stream"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	conn, err := chatstream.Dial(ctx, streamURL, store, refresher)
	if err != nil {
		color.Red("Failed to connect: %v", err)
		os.Exit(1)
	}

	asm := chatstream.NewAssembler("")
	stream := chatstream.NewStream(conn, asm, cfg.Stream.StallWindow)

	if err := stream.Run(ctx); err != nil {
		color.Red("Stream ended with error: %v", err)
	}

	// 3. Print the assembled conversation
	color.Yellow("\n[3] Assembled conversation")
	conv := asm.Conversation()
	for _, msg := range conv.Messages {
		switch msg.Role {
		case chatstream.RoleUser:
			color.Blue("you> %s", msg.TextContent)
		default:
			if msg.ThinkingContent != "" {
				color.HiBlack("thinking> %s", msg.ThinkingContent)
			}
			color.Green("assistant> %s", msg.TextContent)
			for _, tc := range msg.ToolCalls {
				color.Magenta("  tool %s [%s]: %s", tc.Name, tc.Status, truncate(tc.Result, 120))
			}
			if msg.Errored {
				color.Red("  error: %s", msg.ErrorMessage)
			}
		}
	}

	fmt.Println()
	color.Cyan("Done (state: %s)", stream.State())
}

func submitPrompt(baseURL, conversationID, accessToken, prompt string) error {
	body, _ := json.Marshal(map[string]interface{}{"prompt": prompt})
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/chat/"+conversationID+"/prompt", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := (&http.Client{Timeout: 15 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
