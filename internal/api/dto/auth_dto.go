package dto

import "time"

// PanelLoginRequest exchanges a panel API token for a session token.
type PanelLoginRequest struct {
	UserID   string `json:"user_id"`
	APIToken string `json:"api_token"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PanelTokenResponse carries a freshly rotated panel API token.
type PanelTokenResponse struct {
	APIToken string `json:"api_token"`
}
