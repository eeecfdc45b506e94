package domain

import "time"

// CorrespondingRole binds a position to a role on a companion guild.
type CorrespondingRole struct {
	GuildID string `json:"guild_id"`
	RoleID  string `json:"role_id"`
}

// StaffPosition is a ranked staff role. Lower Index is more senior.
type StaffPosition struct {
	ID                 string
	Name               string
	RoleID             string
	Index              int
	Perms              []string
	CorrespondingRoles []CorrespondingRole
	CreatedAt          time.Time
}

// StaffMember joins a user to the positions they hold.
type StaffMember struct {
	UserID         string
	PositionIDs    []string
	PermOverrides  []string
	NoAutosync     bool
	Unaccounted    bool
	MFAVerified    bool
	PanelTokenHash *string
	CreatedAt      time.Time
}

// StaffDisciplinaryType describes a class of sanction or grant.
type StaffDisciplinaryType struct {
	ID             string
	Name           string
	Description    string
	PermLimits     []string
	Additory       bool
	SelfAssignable bool
	NeedsApproval  bool
	MaxExpiry      time.Duration
	CreatedAt      time.Time
}

// StaffDisciplinary is an issued sanction or grant.
type StaffDisciplinary struct {
	ID         string
	UserID     string
	Type       string
	Reason     string
	IssuedBy   string
	ApprovedBy *string
	CreatedAt  time.Time
	Expiry     time.Duration
}

// ActiveAt reports whether the entry is inside its expiry window at now.
func (d StaffDisciplinary) ActiveAt(now time.Time) bool {
	return now.Sub(d.CreatedAt) < d.Expiry
}
