package dto

import "time"

// CorrespondingRole binds a position to a role in another guild.
type CorrespondingRole struct {
	GuildID string `json:"guild_id"`
	RoleID  string `json:"role_id"`
}

// PositionRequest payload for creating a position.
type PositionRequest struct {
	Name               string              `json:"name"`
	RoleID             string              `json:"role_id"`
	Index              int                 `json:"index"`
	Perms              []string            `json:"perms"`
	CorrespondingRoles []CorrespondingRole `json:"corresponding_roles"`
}

// PositionPatchRequest payload for editing a position; omitted fields stay unchanged.
type PositionPatchRequest struct {
	Name               *string              `json:"name"`
	RoleID             *string              `json:"role_id"`
	Perms              *[]string            `json:"perms"`
	CorrespondingRoles *[]CorrespondingRole `json:"corresponding_roles"`
}

// PositionResponse response body.
type PositionResponse struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	RoleID             string              `json:"role_id"`
	Index              int                 `json:"index"`
	Perms              []string            `json:"perms"`
	CorrespondingRoles []CorrespondingRole `json:"corresponding_roles"`
	CreatedAt          time.Time           `json:"created_at"`
}

// MemberPatchRequest payload for editing a staff member.
type MemberPatchRequest struct {
	PositionIDs   *[]string `json:"position_ids"`
	PermOverrides *[]string `json:"perm_overrides"`
	NoAutosync    *bool     `json:"no_autosync"`
}

// MemberResponse response body.
type MemberResponse struct {
	UserID        string    `json:"user_id"`
	PositionIDs   []string  `json:"position_ids"`
	PermOverrides []string  `json:"perm_overrides"`
	NoAutosync    bool      `json:"no_autosync"`
	Unaccounted   bool      `json:"unaccounted"`
	MFAVerified   bool      `json:"mfa_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// DisciplinaryTypeRequest payload for creating or replacing a disciplinary type.
type DisciplinaryTypeRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	PermLimits       []string `json:"perm_limits"`
	Additory         bool     `json:"additory"`
	SelfAssignable   bool     `json:"self_assignable"`
	NeedsApproval    bool     `json:"needs_approval"`
	MaxExpirySeconds int64    `json:"max_expiry_seconds"`
}

// DisciplinaryTypeResponse response body.
type DisciplinaryTypeResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	PermLimits       []string  `json:"perm_limits"`
	Additory         bool      `json:"additory"`
	SelfAssignable   bool      `json:"self_assignable"`
	NeedsApproval    bool      `json:"needs_approval"`
	MaxExpirySeconds int64     `json:"max_expiry_seconds"`
	CreatedAt        time.Time `json:"created_at"`
}

// IssueDisciplinaryRequest payload.
type IssueDisciplinaryRequest struct {
	UserID        string `json:"user_id"`
	TypeID        string `json:"type_id"`
	Reason        string `json:"reason"`
	ExpirySeconds int64  `json:"expiry_seconds"`
}

// DisciplinaryResponse response body.
type DisciplinaryResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Type          string    `json:"type"`
	Reason        string    `json:"reason"`
	IssuedBy      string    `json:"issued_by"`
	ApprovedBy    *string   `json:"approved_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpirySeconds int64     `json:"expiry_seconds"`
}
