package domain

import (
	"errors"
	"fmt"
	"time"
)

// BotType enumerates review states of a submitted bot.
type BotType string

const (
	BotTypePending   BotType = "pending"
	BotTypeClaimed   BotType = "claimed"
	BotTypeApproved  BotType = "approved"
	BotTypeDenied    BotType = "denied"
	BotTypeCertified BotType = "certified"
)

// ErrUnknownBotType is returned when a stored bot type is outside the enum.
var ErrUnknownBotType = errors.New("unknown bot type")

// ErrClaimInvariant flags a record whose claimed_by disagrees with its type.
var ErrClaimInvariant = errors.New("claimed_by must be set if and only if type is claimed")

// ParseBotType validates a persisted bot type.
func ParseBotType(raw string) (BotType, error) {
	switch t := BotType(raw); t {
	case BotTypePending, BotTypeClaimed, BotTypeApproved, BotTypeDenied, BotTypeCertified:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBotType, raw)
	}
}

// BotReviewRecord is a bot's entry in the review queue.
type BotReviewRecord struct {
	BotID               string
	Type                BotType
	ClaimedBy           *string
	LastClaimed         *time.Time
	Owner               *string
	TeamOwner           *string
	Votes               int
	Premium             bool
	StartPremiumPeriod  *time.Time
	PremiumPeriodLength time.Duration
	VoteBanned          bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Validate checks the claim invariant.
func (b *BotReviewRecord) Validate() error {
	if (b.ClaimedBy != nil) != (b.Type == BotTypeClaimed) {
		return ErrClaimInvariant
	}
	return nil
}

// Claim places the bot under the actor's exclusive hold.
func (b *BotReviewRecord) Claim(actorID string, now time.Time) {
	b.Type = BotTypeClaimed
	b.ClaimedBy = &actorID
	b.LastClaimed = &now
}

// Release moves the bot to target and clears any claim.
func (b *BotReviewRecord) Release(target BotType) {
	b.Type = target
	b.ClaimedBy = nil
}
