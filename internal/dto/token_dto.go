package dto

import "time"

// SyncTokenResponse carries a freshly minted sync token.
type SyncTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
}
