package domain

import (
	"errors"
	"fmt"
	"time"
)

// OnboardState enumerates the scripted staff onboarding steps.
type OnboardState string

const (
	OnboardPending                  OnboardState = "pending"
	OnboardQueueStep                OnboardState = "queue-step"
	OnboardStaffGuideViewed         OnboardState = "staff-guide-viewed"
	OnboardStaffGuideReadEncouraged OnboardState = "staff-guide-read-encouraged"
	OnboardStaffGuideViewedReminded OnboardState = "staff-guide-viewed-reminded"
	OnboardClaimedBot               OnboardState = "claimed-bot"
	OnboardTestingBot               OnboardState = "testing-bot"
	OnboardPendingManagerReview     OnboardState = "pending-manager-review"
	OnboardComplete                 OnboardState = "complete"
	OnboardDenied                   OnboardState = "denied"
)

// ErrUnknownOnboardState is returned when a stored state is outside the enum.
var ErrUnknownOnboardState = errors.New("unknown onboarding state")

var onboardStates = map[OnboardState]struct{}{
	OnboardPending:                  {},
	OnboardQueueStep:                {},
	OnboardStaffGuideViewed:         {},
	OnboardStaffGuideReadEncouraged: {},
	OnboardStaffGuideViewedReminded: {},
	OnboardClaimedBot:               {},
	OnboardTestingBot:               {},
	OnboardPendingManagerReview:     {},
	OnboardComplete:                 {},
	OnboardDenied:                   {},
}

// ParseOnboardState validates a persisted state string.
func ParseOnboardState(raw string) (OnboardState, error) {
	state := OnboardState(raw)
	if _, ok := onboardStates[state]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOnboardState, raw)
	}
	return state, nil
}

// Valid reports whether s is one of the enumerated states.
func (s OnboardState) Valid() bool {
	_, ok := onboardStates[s]
	return ok
}

// InProgress reports whether the actor is mid-script and subject to the inactivity window.
func (s OnboardState) InProgress() bool {
	switch s {
	case OnboardQueueStep,
		OnboardStaffGuideViewed,
		OnboardStaffGuideReadEncouraged,
		OnboardStaffGuideViewedReminded,
		OnboardClaimedBot,
		OnboardTestingBot:
		return true
	default:
		return false
	}
}

// StaffOnboardRecord holds the onboarding fields of a user row.
type StaffOnboardRecord struct {
	UserID        string
	State         OnboardState
	LastStartTime *time.Time
	MacroTime     *time.Time
	SessionCode   *string
	Onboarded     bool
	Survey        map[string]string
}
