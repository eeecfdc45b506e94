package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Notifier posts channel messages and direct messages.
type Notifier struct {
	session *discordgo.Session
	logger  *zap.Logger
}

func NewNotifier(session *discordgo.Session, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{session: session, logger: logger}
}

func (n *Notifier) SendChannel(_ context.Context, channelID, content string) error {
	if channelID == "" {
		return nil
	}
	if _, err := n.session.ChannelMessageSend(channelID, truncate(content)); err != nil {
		return fmt.Errorf("send to channel %s: %w", channelID, err)
	}
	return nil
}

// SendUsers direct-messages every user. A user with DMs closed does not stop
// the rest from being notified.
func (n *Notifier) SendUsers(_ context.Context, userIDs []string, content string) error {
	var errs []error
	for _, id := range userIDs {
		ch, err := n.session.UserChannelCreate(id)
		if err == nil {
			_, err = n.session.ChannelMessageSend(ch.ID, truncate(content))
		}
		if err != nil {
			n.logger.Warn("direct message failed", zap.String("user_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("dm %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
