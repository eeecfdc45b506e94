package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/botlist/arcadia/internal/commands"
	"github.com/botlist/arcadia/internal/config"
	"github.com/botlist/arcadia/internal/service"
)

const interactionTimeout = 30 * time.Second

// Bot receives Discord interactions and answers them through the dispatcher.
type Bot struct {
	session    *discordgo.Session
	dispatcher *commands.Dispatcher
	cfg        config.DiscordConfig
	logger     *zap.Logger
}

func NewBot(session *discordgo.Session, dispatcher *commands.Dispatcher, cfg config.DiscordConfig, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{session: session, dispatcher: dispatcher, cfg: cfg, logger: logger.Named("discord")}
}

// Open connects to the gateway and, when configured, overwrites the global
// slash command set with the registry.
func (b *Bot) Open() error {
	b.session.AddHandler(b.onInteraction)
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	if b.cfg.RegisterCommands {
		defs := commandDefinitions(b.dispatcher.Registry())
		if _, err := b.session.ApplicationCommandBulkOverwrite(b.cfg.ApplicationID, "", defs); err != nil {
			return fmt.Errorf("register commands: %w", err)
		}
		b.logger.Info("registered slash commands", zap.Int("count", len(defs)))
	}
	return nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	i := ic.Interaction
	var resp *discordgo.InteractionResponse
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, s, i)
		return
	case discordgo.InteractionMessageComponent:
		resp = b.handleComponent(ctx, i)
	case discordgo.InteractionModalSubmit:
		resp = b.handleModal(ctx, i)
	default:
		return
	}
	if resp == nil {
		return
	}
	if err := s.InteractionRespond(i, resp); err != nil {
		b.logger.Warn("interaction response failed", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}

// handleCommand acknowledges within Discord's three second window before
// dispatching, since onboarding may provision a sandbox guild first.
func (b *Bot) handleCommand(ctx context.Context, s *discordgo.Session, i *discordgo.Interaction) {
	deferred := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if err := s.InteractionRespond(i, deferred); err != nil {
		b.logger.Warn("interaction defer failed", zap.String("interaction_id", i.ID), zap.Error(err))
		return
	}

	inv := invocationFrom(i)
	var params *discordgo.WebhookParams
	reply, err := b.dispatcher.Dispatch(ctx, inv)
	if err != nil {
		b.logError("command failed", err, zap.String("command", inv.Command), zap.String("actor_id", inv.ActorID))
		params = errorFollowup(err)
	} else {
		params = replyFollowup(reply)
	}
	if err := b.deliver(s, i, params); err != nil {
		b.logger.Warn("interaction followup failed", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}

// deliver replaces the deferred placeholder. Ephemeral replies cannot be
// edited into a public placeholder, so it is removed and a followup sent.
func (b *Bot) deliver(s *discordgo.Session, i *discordgo.Interaction, params *discordgo.WebhookParams) error {
	if params.Flags&discordgo.MessageFlagsEphemeral == 0 {
		edit := &discordgo.WebhookEdit{Content: &params.Content}
		if len(params.Components) > 0 {
			edit.Components = &params.Components
		}
		_, err := s.InteractionResponseEdit(i, edit)
		return err
	}
	if err := s.InteractionResponseDelete(i); err != nil {
		b.logger.Debug("deferred placeholder not removed", zap.String("interaction_id", i.ID), zap.Error(err))
	}
	_, err := s.FollowupMessageCreate(i, true, params)
	return err
}

func (b *Bot) handleComponent(ctx context.Context, i *discordgo.Interaction) *discordgo.InteractionResponse {
	customID := i.MessageComponentData().CustomID
	if id, ok := strings.CutPrefix(customID, surveyOpenPrefix); ok && id != "" {
		return surveyModal(service.SurveyPrompt(id))
	}
	id, yes, ok := parseConfirm(customID)
	if !ok {
		return nil
	}
	reply, err := b.dispatcher.Resume(ctx, service.ResumeInput{InteractionID: id, ActorID: actorID(i), Confirmed: yes})
	if err != nil {
		b.logError("confirmation failed", err, zap.String("interaction_id", id))
		return errorResponse(err)
	}
	// Replace the prompt so its buttons cannot be pressed twice.
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    messageContent(reply.Messages),
			Components: []discordgo.MessageComponent{},
		},
	}
}

func (b *Bot) handleModal(ctx context.Context, i *discordgo.Interaction) *discordgo.InteractionResponse {
	data := i.ModalSubmitData()
	id, ok := strings.CutPrefix(data.CustomID, surveyPrefix)
	if !ok || id == "" {
		return nil
	}
	reply, err := b.dispatcher.Resume(ctx, service.ResumeInput{InteractionID: id, ActorID: actorID(i), Answers: surveyAnswers(data)})
	if err != nil {
		b.logError("survey failed", err, zap.String("interaction_id", id))
		return errorResponse(err)
	}
	return replyResponse(reply)
}

func (b *Bot) logError(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errorMessage(err) == internalFailure {
		b.logger.Error(msg, fields...)
		return
	}
	b.logger.Debug(msg, fields...)
}
