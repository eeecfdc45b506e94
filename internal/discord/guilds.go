package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const inviteMaxAge = 3600

// GuildManager answers guild questions for onboarding and provisions sandboxes.
type GuildManager struct {
	session  *discordgo.Session
	template string
	logger   *zap.Logger
}

// NewGuildManager builds the manager. When template is set, sandboxes are
// created from that guild template code.
func NewGuildManager(session *discordgo.Session, template string, logger *zap.Logger) *GuildManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuildManager{session: session, template: template, logger: logger}
}

func (g *GuildManager) GuildName(_ context.Context, guildID string) (string, error) {
	if guild, err := g.session.State.Guild(guildID); err == nil {
		return guild.Name, nil
	}
	guild, err := g.session.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	return guild.Name, nil
}

func (g *GuildManager) IsMember(_ context.Context, guildID, userID string) (bool, error) {
	if _, err := g.session.State.Member(guildID, userID); err == nil {
		return true, nil
	}
	_, err := g.session.GuildMember(guildID, userID)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch member %s of %s: %w", userID, guildID, err)
	}
	return true, nil
}

// EnsureSandbox returns an invite to the guild named after actorID, creating
// the guild first if the bot does not own one yet.
func (g *GuildManager) EnsureSandbox(_ context.Context, actorID string) (string, error) {
	guildID := g.findSandbox(actorID)
	if guildID == "" {
		guild, err := g.createSandbox(actorID)
		if err != nil {
			return "", err
		}
		guildID = guild.ID
		g.logger.Info("created onboarding sandbox", zap.String("actor_id", actorID), zap.String("guild_id", guildID))
	}

	channels, err := g.session.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("list sandbox channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		invite, err := g.session.ChannelInviteCreate(ch.ID, discordgo.Invite{MaxAge: inviteMaxAge, MaxUses: 1, Unique: true})
		if err != nil {
			return "", fmt.Errorf("create sandbox invite: %w", err)
		}
		return "https://discord.gg/" + invite.Code, nil
	}
	return "", errors.New("sandbox guild has no text channel to invite into")
}

func (g *GuildManager) findSandbox(actorID string) string {
	g.session.State.RLock()
	defer g.session.State.RUnlock()
	if g.session.State.User == nil {
		return ""
	}
	for _, guild := range g.session.State.Guilds {
		if guild.Name == actorID && guild.OwnerID == g.session.State.User.ID {
			return guild.ID
		}
	}
	return ""
}

func (g *GuildManager) createSandbox(actorID string) (*discordgo.Guild, error) {
	var (
		guild *discordgo.Guild
		err   error
	)
	if g.template != "" {
		guild, err = g.session.GuildCreateWithTemplate(g.template, actorID, "")
	} else {
		guild, err = g.session.GuildCreate(actorID)
	}
	if err != nil {
		return nil, fmt.Errorf("create sandbox guild: %w", err)
	}
	return guild, nil
}
