package domain

import "time"

// PanelToken describes an issued panel session.
type PanelToken struct {
	UserID    string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
