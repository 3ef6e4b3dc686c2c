package dto

import "time"

type RefreshSessionResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Subject      string    `json:"subject"`
	Role         string    `json:"role"`
}

type SessionInfoResponse struct {
	Subject     string    `json:"subject"`
	Role        string    `json:"role"`
	IsSuperuser bool      `json:"is_superuser"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type LogoutResponse struct {
	LoggedOut bool `json:"logged_out"`
}
