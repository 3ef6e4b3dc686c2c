package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fatih/color"
)

const baseURL = "http://localhost:3000/api"

// Smoke test for the gateway HTTP surface: refresh rotation, reuse
// rejection, prompt intake and logout. Seed REFRESH_TOKEN with a freshly
// minted refresh token before running.

// Pretty print JSON helper
func prettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}

// Request helper
func sendRequest(method, url, token string, body interface{}) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+url, bodyReader)
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp, respBody, err
}

func main() {
	color.Cyan("🚀 Starting Gateway API Smoke Test\n")

	refreshToken := os.Getenv("REFRESH_TOKEN")
	if refreshToken == "" {
		color.Red("REFRESH_TOKEN env var is required")
		os.Exit(1)
	}

	// 1. Refresh the session
	color.Yellow("\n[1] Refresh session")
	resp, body, err := sendRequest("POST", "/session/refresh", "", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var refreshResp map[string]interface{}
	json.Unmarshal(body, &refreshResp)
	prettyPrint(refreshResp)

	var accessToken, newRefreshToken string
	if data, ok := refreshResp["data"].(map[string]interface{}); ok {
		accessToken, _ = data["access_token"].(string)
		newRefreshToken, _ = data["refresh_token"].(string)
	}
	if accessToken == "" {
		color.Red("No access token in refresh response")
		os.Exit(1)
	}

	// 2. Replay the OLD refresh token — must be rejected as reuse
	color.Yellow("\n[2] Replay old refresh token (expect 401)")
	resp, body, err = sendRequest("POST", "/session/refresh", "", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		color.Green("Status: %s (reuse correctly rejected)", resp.Status)
	} else {
		color.Red("Status: %s — reuse was NOT rejected!", resp.Status)
	}

	// 3. Who am I
	color.Yellow("\n[3] Session info")
	resp, body, err = sendRequest("GET", "/session/me", accessToken, nil)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var meResp map[string]interface{}
	json.Unmarshal(body, &meResp)
	prettyPrint(meResp)

	// 4. Submit a prompt
	color.Yellow("\n[4] Submit prompt")
	resp, body, err = sendRequest("POST", "/chat/smoke-test/prompt", accessToken, map[string]interface{}{
		"prompt": "Say hello in one sentence.",
	})
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var promptResp map[string]interface{}
	json.Unmarshal(body, &promptResp)
	prettyPrint(promptResp)

	// 5. Cancel generation
	color.Yellow("\n[5] Cancel generation")
	resp, body, err = sendRequest("POST", "/chat/smoke-test/cancel", accessToken, nil)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)

	// 6. Logout (revokes the rotated refresh token)
	color.Yellow("\n[6] Logout")
	resp, body, err = sendRequest("POST", "/session/logout", "", map[string]string{"refresh_token": newRefreshToken})
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	color.Green("Status: %s", resp.Status)
	var logoutResp map[string]interface{}
	json.Unmarshal(body, &logoutResp)
	prettyPrint(logoutResp)

	color.Cyan("\n✅ Smoke test finished")
}
