package dto

import "time"

// ClaimRequest payload.
type ClaimRequest struct {
	Force bool `json:"force"`
}

// ReasonRequest payload for unclaim, approve and deny.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// BotResponse is a bot's review record.
type BotResponse struct {
	BotID       string     `json:"bot_id"`
	Type        string     `json:"type"`
	ClaimedBy   *string    `json:"claimed_by,omitempty"`
	LastClaimed *time.Time `json:"last_claimed,omitempty"`
	Owner       *string    `json:"owner,omitempty"`
	TeamOwner   *string    `json:"team_owner,omitempty"`
	Votes       int        `json:"votes"`
	Premium     bool       `json:"premium"`
	VoteBanned  bool       `json:"vote_banned"`
	CreatedAt   time.Time  `json:"created_at"`
}
