package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const membersPageSize = 1000

// RoleSource lists role membership of the staff guild.
type RoleSource struct {
	session *discordgo.Session
	guildID string
}

func NewRoleSource(session *discordgo.Session, staffGuildID string) *RoleSource {
	return &RoleSource{session: session, guildID: staffGuildID}
}

// MemberRoles pages through every non-bot member of the staff guild.
func (r *RoleSource) MemberRoles(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := r.session.GuildMembers(r.guildID, after, membersPageSize)
		if err != nil {
			return nil, fmt.Errorf("list staff guild members: %w", err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			after = m.User.ID
			if !m.User.Bot {
				out[m.User.ID] = append([]string(nil), m.Roles...)
			}
		}
		if len(page) < membersPageSize {
			return out, nil
		}
	}
}
