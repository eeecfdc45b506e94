// Package commands holds the closed set of staff commands and the dispatcher
// that runs them.
package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/perms"
	"github.com/botlist/arcadia/internal/service"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// OptionKind is the input type of a command option.
type OptionKind int

const (
	OptionString OptionKind = iota
	OptionInteger
	OptionBool
	OptionUser
)

// Option is one typed command input.
type Option struct {
	Name        string
	Description string
	Kind        OptionKind
	Required    bool
	Choices     []string
}

// Reply is what a command sends back to the actor.
type Reply struct {
	Messages  []string
	Prompt    *service.Prompt
	Ephemeral bool
}

func (r *Reply) add(format string, args ...any) {
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

// Handler runs a command after authorization.
type Handler func(ctx context.Context, inv service.Invocation) (*Reply, error)

// Descriptor declares a command: its inputs, the permissions the dispatcher
// checks before running it, and whether onboarding intercepts it.
type Descriptor struct {
	Name        string
	Description string
	Requires    []string
	Onboarding  bool
	Options     []Option
	Run         Handler
}

// Services are the collaborators command handlers call into.
type Services struct {
	Queue      *service.QueueService
	Onboarding *service.OnboardingService
	RPC        *service.RPCService
	PanelAuth  *service.PanelAuthService
	GuideURL   string
}

// Registry is the closed command set.
type Registry struct {
	byName map[string]Descriptor
}

// NewRegistry builds every command bound to svc.
func NewRegistry(svc Services) *Registry {
	h := handlers{svc: svc}
	botOpt := Option{Name: "bot", Description: "Bot ID", Kind: OptionString, Required: true}
	reasonOpt := Option{Name: "reason", Description: "Reason", Kind: OptionString, Required: true}
	userOpt := Option{Name: "user", Description: "Staff member", Kind: OptionUser, Required: true}

	descs := []Descriptor{
		{
			Name: service.CommandQueue, Description: "Show the review queue",
			Requires: []string{perms.BotsQueue}, Onboarding: true, Run: h.queue,
		},
		{
			Name: service.CommandStaffGuide, Description: "Open the staff guide",
			Onboarding: true, Run: h.staffGuide,
		},
		{
			Name: service.CommandClaim, Description: "Claim a bot for review",
			Requires: []string{perms.BotsClaim}, Onboarding: true, Run: h.claim,
			Options: []Option{botOpt, {Name: "force", Description: "Take over another reviewer's claim", Kind: OptionBool}},
		},
		{
			Name: service.CommandUnclaim, Description: "Release a claimed bot",
			Requires: []string{perms.BotsUnclaim}, Onboarding: true, Run: h.unclaim,
			Options: []Option{botOpt, {Name: "reason", Description: "Reason", Kind: OptionString}},
		},
		{
			Name: service.CommandApprove, Description: "Approve a claimed bot",
			Requires: []string{perms.BotsApprove}, Onboarding: true, Run: h.approve,
			Options: []Option{botOpt, reasonOpt},
		},
		{
			Name: service.CommandDeny, Description: "Deny a claimed bot",
			Requires: []string{perms.BotsDeny}, Onboarding: true, Run: h.deny,
			Options: []Option{botOpt, reasonOpt},
		},
		{
			Name: "approveonboard", Description: "Approve a staff member's onboarding",
			Requires: []string{perms.OnboardingApprove}, Onboarding: true, Run: h.approveOnboard,
			Options: []Option{userOpt},
		},
		{
			Name: "denyonboard", Description: "Deny a staff member's onboarding",
			Requires: []string{perms.OnboardingDeny}, Onboarding: true, Run: h.denyOnboard,
			Options: []Option{userOpt},
		},
		{
			Name: "resetonboard", Description: "Reset a staff member's onboarding",
			Requires: []string{perms.OnboardingReset}, Onboarding: true, Run: h.resetOnboard,
			Options: []Option{userOpt},
		},
		{
			Name: "rpc", Description: "Run a staff RPC method",
			Onboarding: true, Run: h.rpc,
			Options: []Option{
				{Name: "method", Description: "RPC method", Kind: OptionString, Required: true, Choices: rpcMethodNames()},
				{Name: "target", Description: "Bot or team ID", Kind: OptionString, Required: true},
				{Name: "reason", Description: "Reason", Kind: OptionString},
				{Name: "value", Description: "Extra value (hours, count, new owner or name)", Kind: OptionString},
			},
		},
		{
			Name: "paneltoken", Description: "Get a new staff panel API token",
			Run: h.panelToken,
		},
	}

	r := &Registry{byName: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		r.byName[d.Name] = d
	}
	return r
}

// Lookup finds a command by name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns every command sorted by name.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type handlers struct {
	svc Services
}

func (h handlers) queue(ctx context.Context, inv service.Invocation) (*Reply, error) {
	bots, err := h.svc.Queue.List(ctx, inv.ActorID)
	if err != nil {
		return nil, err
	}
	reply := &Reply{}
	if len(bots) == 0 {
		reply.add("The queue is empty.")
		return reply, nil
	}
	var b strings.Builder
	b.WriteString("Queue:")
	for i, bot := range bots {
		fmt.Fprintf(&b, "\n%d. <@%s> (%s", i+1, bot.BotID, bot.Type)
		if bot.Type == domain.BotTypeClaimed && bot.ClaimedBy != nil {
			fmt.Fprintf(&b, " by <@%s>", *bot.ClaimedBy)
		}
		b.WriteString(")")
	}
	reply.Messages = append(reply.Messages, b.String())
	return reply, nil
}

func (h handlers) staffGuide(_ context.Context, _ service.Invocation) (*Reply, error) {
	reply := &Reply{Ephemeral: true}
	reply.add("Staff guide: %s", h.svc.GuideURL)
	return reply, nil
}

func (h handlers) claim(ctx context.Context, inv service.Invocation) (*Reply, error) {
	bot, err := h.svc.Queue.Claim(ctx, inv.ActorID, inv.Arg("bot"), inv.Arg("force") == "true")
	if err != nil {
		return nil, err
	}
	reply := &Reply{}
	reply.add("<@%s> claimed <@%s>.", inv.ActorID, bot.BotID)
	return reply, nil
}

func (h handlers) unclaim(ctx context.Context, inv service.Invocation) (*Reply, error) {
	bot, err := h.svc.Queue.Unclaim(ctx, inv.ActorID, inv.Arg("bot"), inv.Arg("reason"))
	if err != nil {
		return nil, err
	}
	reply := &Reply{}
	reply.add("<@%s> is back in the queue.", bot.BotID)
	return reply, nil
}

func (h handlers) approve(ctx context.Context, inv service.Invocation) (*Reply, error) {
	bot, err := h.svc.Queue.Approve(ctx, inv.ActorID, inv.Arg("bot"), inv.Arg("reason"))
	if err != nil {
		return nil, err
	}
	reply := &Reply{}
	reply.add("Approved <@%s>.", bot.BotID)
	return reply, nil
}

func (h handlers) deny(ctx context.Context, inv service.Invocation) (*Reply, error) {
	bot, err := h.svc.Queue.Deny(ctx, inv.ActorID, inv.Arg("bot"), inv.Arg("reason"))
	if err != nil {
		return nil, err
	}
	reply := &Reply{}
	reply.add("Denied <@%s>.", bot.BotID)
	return reply, nil
}

func (h handlers) approveOnboard(ctx context.Context, inv service.Invocation) (*Reply, error) {
	rec, err := h.svc.Onboarding.ApproveOnboard(ctx, inv.ActorID, inv.Arg("user"))
	if err != nil {
		return nil, err
	}
	reply := &Reply{}
	reply.add("<@%s> has completed onboarding.", rec.UserID)
	return reply, nil
}

func (h handlers) denyOnboard(ctx context.Context, inv service.Invocation) (*Reply, error) {
	rec, err := h.svc.Onboarding.DenyOnboard(ctx, inv.ActorID, inv.Arg("user"))
	if err != nil {
		return nil, err
	}
	reply := &Reply{}
	reply.add("Onboarding for <@%s> was denied.", rec.UserID)
	return reply, nil
}

func (h handlers) resetOnboard(ctx context.Context, inv service.Invocation) (*Reply, error) {
	rec, err := h.svc.Onboarding.ResetOnboard(ctx, inv.ActorID, inv.Arg("user"))
	if err != nil {
		return nil, err
	}
	reply := &Reply{}
	reply.add("Onboarding for <@%s> was reset.", rec.UserID)
	return reply, nil
}

func (h handlers) rpc(ctx context.Context, inv service.Invocation) (*Reply, error) {
	name := inv.Arg("method")
	method, ok := service.LookupRPCMethod(name)
	if !ok {
		return nil, apperrors.NewNotFound("rpc method", map[string]any{"method": name})
	}
	raw := rpcInput(method, inv)
	res, err := h.svc.RPC.Invoke(ctx, inv.ActorID, method.Name, raw)
	if err != nil {
		return nil, err
	}
	reply := &Reply{}
	reply.add("`%s` on `%s`: %s", res.Method, inv.Arg("target"), res.State)
	return reply, nil
}

func rpcMethodNames() []string {
	methods := service.RPCMethods()
	names := make([]string, 0, len(methods))
	for _, m := range methods {
		names = append(names, m.Name)
	}
	return names
}

// rpcInput maps the generic command options onto the method's fields. The
// value option fills whichever field is neither the target nor the reason.
func rpcInput(method service.RPCMethod, inv service.Invocation) map[string]any {
	raw := map[string]any{}
	for _, f := range method.Fields {
		var v string
		switch f.ID {
		case "target_id":
			v = inv.Arg("target")
		case "reason":
			v = inv.Arg("reason")
		default:
			v = inv.Arg("value")
		}
		if v != "" {
			raw[f.ID] = v
		}
	}
	return raw
}

func (h handlers) panelToken(ctx context.Context, inv service.Invocation) (*Reply, error) {
	token, err := h.svc.PanelAuth.RotateAPIToken(ctx, inv.ActorID)
	if err != nil {
		return nil, err
	}
	reply := &Reply{Ephemeral: true}
	reply.add("Your new panel API token (shown once, any previous token stops working): ||%s||", token)
	return reply, nil
}
