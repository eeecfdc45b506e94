package domain

import "time"

// Team groups users that jointly own bots.
type Team struct {
	ID        string
	Name      string
	Avatar    string
	CreatedAt time.Time
}

// TeamMember is a user's membership in a team.
type TeamMember struct {
	TeamID string
	UserID string
	Perms  []string
}
