package dto

import "time"

// VerificationCodeRequest asks for the code a guide session shows.
type VerificationCodeRequest struct {
	Session string `json:"session"`
}

// VerificationCodeResponse response body.
type VerificationCodeResponse struct {
	Code string `json:"code"`
}

// OnboardResponse is a member's onboarding record.
type OnboardResponse struct {
	UserID        string            `json:"user_id"`
	State         string            `json:"state"`
	LastStartTime *time.Time        `json:"last_start_time,omitempty"`
	Onboarded     bool              `json:"onboarded"`
	Survey        map[string]string `json:"survey,omitempty"`
}
