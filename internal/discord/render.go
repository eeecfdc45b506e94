package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/botlist/arcadia/internal/commands"
	"github.com/botlist/arcadia/internal/service"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

const (
	maxMessageLength = 2000
	confirmPrefix    = "onboard:confirm:"
	surveyPrefix     = "onboard:survey:"
	surveyOpenPrefix = "onboard:open:"
	internalFailure  = "Something went wrong while running this command. Please try again later."
)

var optionTypes = map[commands.OptionKind]discordgo.ApplicationCommandOptionType{
	commands.OptionString:  discordgo.ApplicationCommandOptionString,
	commands.OptionInteger: discordgo.ApplicationCommandOptionInteger,
	commands.OptionBool:    discordgo.ApplicationCommandOptionBoolean,
	commands.OptionUser:    discordgo.ApplicationCommandOptionUser,
}

// commandDefinitions converts the registry into slash command definitions.
func commandDefinitions(registry *commands.Registry) []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, d := range registry.All() {
		def := &discordgo.ApplicationCommand{Name: d.Name, Description: d.Description}
		for _, o := range d.Options {
			opt := &discordgo.ApplicationCommandOption{
				Type:        optionTypes[o.Kind],
				Name:        o.Name,
				Description: o.Description,
				Required:    o.Required,
			}
			for _, c := range o.Choices {
				opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c, Value: c})
			}
			def.Options = append(def.Options, opt)
		}
		defs = append(defs, def)
	}
	return defs
}

func actorID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// invocationFrom reads a slash command interaction. Every option value is
// carried as its string form.
func invocationFrom(i *discordgo.Interaction) service.Invocation {
	data := i.ApplicationCommandData()
	args := make(map[string]string, len(data.Options))
	for _, o := range data.Options {
		args[o.Name] = fmt.Sprint(o.Value)
	}
	return service.Invocation{ActorID: actorID(i), Command: data.Name, GuildID: i.GuildID, Args: args}
}

func confirmID(interactionID string, yes bool) string {
	if yes {
		return confirmPrefix + interactionID + ":yes"
	}
	return confirmPrefix + interactionID + ":no"
}

// parseConfirm splits a confirmation button custom ID.
func parseConfirm(customID string) (id string, yes bool, ok bool) {
	rest, found := strings.CutPrefix(customID, confirmPrefix)
	if !found {
		return "", false, false
	}
	id, answer, found := strings.Cut(rest, ":")
	if !found || id == "" || (answer != "yes" && answer != "no") {
		return "", false, false
	}
	return id, answer == "yes", true
}

// surveyAnswers reads the text inputs of a submitted survey modal.
func surveyAnswers(data discordgo.ModalSubmitInteractionData) map[string]string {
	answers := map[string]string{}
	var walk func(components []discordgo.MessageComponent)
	walk = func(components []discordgo.MessageComponent) {
		for _, c := range components {
			switch v := c.(type) {
			case *discordgo.ActionsRow:
				walk(v.Components)
			case discordgo.ActionsRow:
				walk(v.Components)
			case *discordgo.TextInput:
				answers[v.CustomID] = v.Value
			case discordgo.TextInput:
				answers[v.CustomID] = v.Value
			}
		}
	}
	walk(data.Components)
	return answers
}

// replyResponse renders a command reply. A survey prompt becomes a modal; a
// confirmation prompt adds yes/no buttons under the messages.
func replyResponse(reply *commands.Reply) *discordgo.InteractionResponse {
	if p := reply.Prompt; p != nil && p.Kind == service.PromptSurvey {
		return surveyModal(p)
	}
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseChannelMessageWithSource, Data: replyData(reply)}
}

// replyFollowup renders a command reply sent after a deferred response. A modal
// cannot follow a deferral, so a survey prompt becomes a button that opens it.
func replyFollowup(reply *commands.Reply) *discordgo.WebhookParams {
	if p := reply.Prompt; p != nil && p.Kind == service.PromptSurvey {
		content := "Answer the onboarding survey to continue."
		if len(reply.Messages) > 0 {
			content = truncate(messageContent(reply.Messages) + "\n\n" + content)
		}
		return &discordgo.WebhookParams{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "Open survey", Style: discordgo.PrimaryButton, CustomID: surveyOpenPrefix + p.InteractionID},
				}},
			},
		}
	}
	data := replyData(reply)
	return &discordgo.WebhookParams{Content: data.Content, Components: data.Components, Flags: data.Flags}
}

func replyData(reply *commands.Reply) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{Content: messageContent(reply.Messages)}
	if reply.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if p := reply.Prompt; p != nil && p.Kind == service.PromptConfirm {
		if data.Content != "" {
			data.Content = truncate(data.Content + "\n\n" + p.Body)
		} else {
			data.Content = truncate(p.Body)
		}
		data.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Yes", Style: discordgo.SuccessButton, CustomID: confirmID(p.InteractionID, true)},
				discordgo.Button{Label: "No", Style: discordgo.DangerButton, CustomID: confirmID(p.InteractionID, false)},
			}},
		}
	}
	return data
}

func surveyModal(p *service.Prompt) *discordgo.InteractionResponse {
	rows := make([]discordgo.MessageComponent, 0, len(p.Questions))
	for _, q := range p.Questions {
		style := discordgo.TextInputShort
		if q.Long {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{CustomID: q.ID, Label: q.Label, Style: style, Required: true, MaxLength: 1000},
		}})
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{CustomID: surveyPrefix + p.InteractionID, Title: p.Title, Components: rows},
	}
}

// errorResponse shows the error's message to the actor only. Internal
// failures get a generic message.
func errorResponse(err error) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: errorMessage(err), Flags: discordgo.MessageFlagsEphemeral},
	}
}

func errorFollowup(err error) *discordgo.WebhookParams {
	return &discordgo.WebhookParams{Content: errorMessage(err), Flags: discordgo.MessageFlagsEphemeral}
}

func errorMessage(err error) string {
	de := apperrors.ToDomainError(err)
	if de == nil || de.HTTPStatus >= 500 {
		return internalFailure
	}
	return truncate(de.Message)
}

func messageContent(messages []string) string {
	if len(messages) == 0 {
		return "Done."
	}
	return truncate(strings.Join(messages, "\n\n"))
}

func truncate(s string) string {
	if len(s) <= maxMessageLength {
		return s
	}
	cut := maxMessageLength - 3
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
