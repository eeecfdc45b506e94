package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/botlist/arcadia/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventBotClaimed              EventType = "bot_claimed"
	EventBotUnclaimed            EventType = "bot_unclaimed"
	EventBotApproved             EventType = "bot_approved"
	EventBotDenied               EventType = "bot_denied"
	EventBotAutoUnclaimed        EventType = "bot_auto_unclaimed"
	EventOnboardingStateChanged  EventType = "onboarding_state_changed"
	EventRPCInvoked              EventType = "rpc_invoked"
	EventStaffResynced           EventType = "staff_resynced"
	EventStaffDisciplinaryIssued EventType = "staff_disciplinary_issued"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SubjectID string    `json:"subject_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType EventType, subjectID, actorID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// BotReviewPayload accompanies claim, unclaim, approve and deny events.
type BotReviewPayload struct {
	Reason string `json:"reason,omitempty"`
	Forced bool   `json:"forced,omitempty"`
}

// BotAutoUnclaimedPayload names the reviewer whose stale claim was released.
type BotAutoUnclaimedPayload struct {
	PreviousClaimant string    `json:"previous_claimant"`
	ClaimedAt        time.Time `json:"claimed_at"`
}

// OnboardingStateChangedPayload payload.
type OnboardingStateChangedPayload struct {
	OldState domain.OnboardState `json:"old_state"`
	NewState domain.OnboardState `json:"new_state"`
	Reason   string              `json:"reason,omitempty"`
}

// RPCInvokedPayload payload.
type RPCInvokedPayload struct {
	Method string `json:"method"`
	State  string `json:"state"`
}

// StaffResyncedPayload records one member's position change.
type StaffResyncedPayload struct {
	BeforePositions []string `json:"before_positions"`
	AfterPositions  []string `json:"after_positions"`
	BeforePerms     []string `json:"before_perms"`
	AfterPerms      []string `json:"after_perms"`
	Removed         bool     `json:"removed"`
}

// StaffDisciplinaryIssuedPayload payload.
type StaffDisciplinaryIssuedPayload struct {
	DisciplinaryID  string `json:"disciplinary_id"`
	Type            string `json:"type"`
	Reason          string `json:"reason"`
	PendingApproval bool   `json:"pending_approval"`
}
