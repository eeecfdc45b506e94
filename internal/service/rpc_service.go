package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/observability"
	"github.com/botlist/arcadia/internal/perms"
	"github.com/botlist/arcadia/internal/repository"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// Tier ranks RPC methods by how privileged they are.
type Tier int

const (
	TierStaff Tier = iota
	TierAdmin
	TierHead
	TierOwner
)

func (t Tier) String() string {
	switch t {
	case TierOwner:
		return "Owner"
	case TierHead:
		return "Head"
	case TierAdmin:
		return "Admin"
	default:
		return "Staff"
	}
}

// Perm is the permission key granting access to methods of this tier.
func (t Tier) Perm() string {
	switch t {
	case TierOwner:
		return perms.RPCTierOwner
	case TierHead:
		return perms.RPCTierHead
	case TierAdmin:
		return perms.RPCTierAdmin
	default:
		return perms.RPCTierStaff
	}
}

// FieldKind is the type of an RPC input field.
type FieldKind string

const (
	FieldText FieldKind = "text"
	FieldInt  FieldKind = "int"
)

// RPCField describes one typed input.
type RPCField struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	Kind  FieldKind `json:"kind"`
}

// RPCMethod is one entry of the closed method catalogue.
type RPCMethod struct {
	Name        string     `json:"method"`
	Description string     `json:"description"`
	Tier        Tier       `json:"-"`
	Fields      []RPCField `json:"fields"`
}

// Perm returns the permission key guarding the method.
func (m RPCMethod) Perm() string {
	return perms.RPC(m.Name)
}

// RPC method names.
const (
	RPCApprove           = "Approve"
	RPCDeny              = "Deny"
	RPCVoteReset         = "VoteReset"
	RPCUnverify          = "Unverify"
	RPCPremiumAdd        = "PremiumAdd"
	RPCPremiumRemove     = "PremiumRemove"
	RPCVoteBanAdd        = "VoteBanAdd"
	RPCVoteBanRemove     = "VoteBanRemove"
	RPCForceRemove       = "ForceRemove"
	RPCCertifyAdd        = "CertifyAdd"
	RPCCertifyRemove     = "CertifyRemove"
	RPCVoteCountSet      = "VoteCountSet"
	RPCTransferOwnership = "TransferOwnership"
	RPCTeamNameEdit      = "TeamNameEdit"
)

var (
	fieldBot    = RPCField{ID: "target_id", Label: "Bot ID", Kind: FieldText}
	fieldTeam   = RPCField{ID: "target_id", Label: "Team ID", Kind: FieldText}
	fieldReason = RPCField{ID: "reason", Label: "Reason", Kind: FieldText}
)

var rpcCatalogue = []RPCMethod{
	{Name: RPCApprove, Description: "Approve a claimed bot", Tier: TierStaff, Fields: []RPCField{fieldBot, fieldReason}},
	{Name: RPCDeny, Description: "Deny a claimed bot", Tier: TierStaff, Fields: []RPCField{fieldBot, fieldReason}},
	{Name: RPCVoteReset, Description: "Reset a bot's votes to zero", Tier: TierAdmin, Fields: []RPCField{fieldBot, fieldReason}},
	{Name: RPCUnverify, Description: "Return an approved bot to the queue", Tier: TierStaff, Fields: []RPCField{fieldBot, fieldReason}},
	{Name: RPCPremiumAdd, Description: "Grant premium for a number of hours", Tier: TierHead, Fields: []RPCField{
		fieldBot, fieldReason, {ID: "time_period_hours", Label: "Premium period (hours)", Kind: FieldInt},
	}},
	{Name: RPCPremiumRemove, Description: "Remove premium", Tier: TierHead, Fields: []RPCField{fieldBot, fieldReason}},
	{Name: RPCVoteBanAdd, Description: "Stop a bot from receiving votes", Tier: TierHead, Fields: []RPCField{fieldBot, fieldReason}},
	{Name: RPCVoteBanRemove, Description: "Allow a vote-banned bot to receive votes", Tier: TierHead, Fields: []RPCField{fieldBot, fieldReason}},
	{Name: RPCForceRemove, Description: "Delete a bot from the list", Tier: TierAdmin, Fields: []RPCField{fieldBot, fieldReason}},
	{Name: RPCCertifyAdd, Description: "Certify an approved bot", Tier: TierHead, Fields: []RPCField{fieldBot, fieldReason}},
	{Name: RPCCertifyRemove, Description: "Remove certification", Tier: TierHead, Fields: []RPCField{fieldBot, fieldReason}},
	{Name: RPCVoteCountSet, Description: "Set a bot's vote count", Tier: TierOwner, Fields: []RPCField{
		fieldBot, fieldReason, {ID: "count", Label: "Vote count", Kind: FieldInt},
	}},
	{Name: RPCTransferOwnership, Description: "Move a bot to a new owner", Tier: TierOwner, Fields: []RPCField{
		fieldBot, fieldReason, {ID: "new_owner", Label: "New owner user ID", Kind: FieldText},
	}},
	{Name: RPCTeamNameEdit, Description: "Rename a team", Tier: TierAdmin, Fields: []RPCField{
		fieldTeam, {ID: "new_name", Label: "New team name", Kind: FieldText},
	}},
}

// RPCMethods returns the catalogue sorted by tier then name.
func RPCMethods() []RPCMethod {
	out := append([]RPCMethod(nil), rpcCatalogue...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// LookupRPCMethod finds a catalogue entry by name.
func LookupRPCMethod(name string) (RPCMethod, bool) {
	for _, m := range rpcCatalogue {
		if m.Name == name {
			return m, true
		}
	}
	return RPCMethod{}, false
}

// RPCArgs holds validated inputs.
type RPCArgs struct {
	text map[string]string
	ints map[string]int
}

// Text returns a text field.
func (a RPCArgs) Text(id string) string { return a.text[id] }

// Int returns an integer field.
func (a RPCArgs) Int(id string) int { return a.ints[id] }

// ParseArgs validates raw input against the method's fields. Every field is required.
func (m RPCMethod) ParseArgs(raw map[string]any) (RPCArgs, error) {
	args := RPCArgs{text: map[string]string{}, ints: map[string]int{}}
	invalid := map[string]any{}
	for _, f := range m.Fields {
		v, ok := raw[f.ID]
		if !ok || v == nil {
			invalid[f.ID] = "required"
			continue
		}
		switch f.Kind {
		case FieldText:
			s, ok := v.(string)
			if !ok || strings.TrimSpace(s) == "" {
				invalid[f.ID] = "must be a non-empty string"
				continue
			}
			args.text[f.ID] = strings.TrimSpace(s)
		case FieldInt:
			n, ok := asInt(v)
			if !ok {
				invalid[f.ID] = "must be an integer"
				continue
			}
			args.ints[f.ID] = n
		}
	}
	if len(invalid) > 0 {
		return RPCArgs{}, apperrors.NewValidationError("invalid rpc input", invalid)
	}
	return args, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		return parsed, err == nil
	}
	return 0, false
}

// RateLimiter bounds invocations per actor.
type RateLimiter interface {
	Allow(actorID string) bool
}

// RPCResult reports the outcome of an invocation.
type RPCResult struct {
	LogID  string `json:"log_id"`
	Method string `json:"method"`
	State  string `json:"state"`
}

// RPCService executes catalogue methods with rate limiting and an audit trail.
type RPCService struct {
	store      repository.Store
	tx         repository.Transactor
	authz      *Authorizer
	queue      *QueueService
	limiter    RateLimiter
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// RPCDependencies bundles collaborators.
type RPCDependencies struct {
	Store      repository.Store
	Transactor repository.Transactor
	Authorizer *Authorizer
	Queue      *QueueService
	Limiter    RateLimiter
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewRPCService creates the service.
func NewRPCService(deps RPCDependencies) *RPCService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCService{
		store:      deps.Store,
		tx:         deps.Transactor,
		authz:      deps.Authorizer,
		queue:      deps.Queue,
		limiter:    deps.Limiter,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Allowed lists the methods the actor may invoke.
func (s *RPCService) Allowed(ctx context.Context, actorID string) ([]RPCMethod, error) {
	sc, err := s.authz.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	var out []RPCMethod
	for _, m := range RPCMethods() {
		if rpcPermitted(sc, m) == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// rpcPermitted requires the method's own key and a tier key at or above the
// method's tier.
func rpcPermitted(sc *StaffContext, m RPCMethod) error {
	var missing []string
	if !holdsTier(sc, m.Tier) {
		missing = append(missing, m.Tier.Perm())
	}
	if !sc.Has(m.Perm()) {
		missing = append(missing, m.Perm())
	}
	if len(missing) > 0 {
		return apperrors.NewMissingPermissions(missing)
	}
	return nil
}

func holdsTier(sc *StaffContext, tier Tier) bool {
	for t := tier; t <= TierOwner; t++ {
		if sc.Has(t.Perm()) {
			return true
		}
	}
	return false
}

// Invoke runs method for actorID. The audit row is written as pending before
// execution and settled to success or "error: <msg>" afterwards.
func (s *RPCService) Invoke(ctx context.Context, actorID, method string, raw map[string]any) (*RPCResult, error) {
	m, ok := LookupRPCMethod(method)
	if !ok {
		return nil, apperrors.NewNotFound("rpc method", map[string]any{"method": method})
	}
	if s.limiter != nil && !s.limiter.Allow(actorID) {
		s.metrics.RecordRPC(m.Name, "rate_limited")
		return nil, apperrors.NewRateLimited("you are sending RPC requests too quickly; try again shortly")
	}
	sc, err := s.authz.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := rpcPermitted(sc, m); err != nil {
		s.metrics.RecordRPC(m.Name, "forbidden")
		return nil, err
	}
	args, err := m.ParseArgs(raw)
	if err != nil {
		return nil, err
	}

	entry := &domain.RPCLogEntry{
		ID:     uuid.NewString(),
		Method: m.Name,
		UserID: actorID,
		Data:   raw,
		State:  domain.RPCStatePending,
	}
	if err := s.store.RPCLogs.Create(ctx, entry); err != nil {
		return nil, apperrors.MapError(err)
	}

	execErr := s.execute(ctx, actorID, m, args)
	state := domain.RPCStateSuccess
	if execErr != nil {
		state = "error: " + apperrors.ToDomainError(execErr).Message
	}
	if err := s.store.RPCLogs.UpdateState(ctx, entry.ID, state); err != nil {
		s.logger.Error("settle rpc log", zap.String("log_id", entry.ID), zap.Error(err))
	}

	outcome := "success"
	if execErr != nil {
		outcome = "error"
	}
	s.metrics.RecordRPC(m.Name, outcome)
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.New(events.EventRPCInvoked, args.Text("target_id"), actorID,
			events.RPCInvokedPayload{Method: m.Name, State: state}))
	}

	if execErr != nil {
		return nil, apperrors.MapError(execErr)
	}
	return &RPCResult{LogID: entry.ID, Method: m.Name, State: state}, nil
}

func (s *RPCService) execute(ctx context.Context, actorID string, m RPCMethod, args RPCArgs) error {
	target := args.Text("target_id")
	reason := args.Text("reason")

	switch m.Name {
	case RPCApprove:
		_, err := s.queue.Approve(ctx, actorID, target, reason)
		return err
	case RPCDeny:
		_, err := s.queue.Deny(ctx, actorID, target, reason)
		return err
	case RPCTeamNameEdit:
		return s.renameTeam(ctx, target, args.Text("new_name"))
	case RPCForceRemove:
		return s.tx.InTx(ctx, func(st repository.Store) error {
			if _, err := lockBot(ctx, st, target); err != nil {
				return err
			}
			return st.Bots.Delete(ctx, target)
		})
	}

	return s.tx.InTx(ctx, func(st repository.Store) error {
		bot, err := lockBot(ctx, st, target)
		if err != nil {
			return err
		}
		if err := s.mutateBot(m.Name, bot, args); err != nil {
			return err
		}
		return st.Bots.Update(ctx, bot)
	})
}

func (s *RPCService) mutateBot(method string, bot *domain.BotReviewRecord, args RPCArgs) error {
	switch method {
	case RPCVoteReset:
		bot.Votes = 0
	case RPCVoteCountSet:
		count := args.Int("count")
		if count < 0 {
			return apperrors.NewValidationError("vote count cannot be negative", map[string]any{"count": count})
		}
		bot.Votes = count
	case RPCUnverify:
		if bot.Type != domain.BotTypeApproved && bot.Type != domain.BotTypeCertified {
			return apperrors.NewPrecondition(fmt.Sprintf("this bot is %s, not approved", bot.Type), nil)
		}
		bot.Release(domain.BotTypePending)
	case RPCPremiumAdd:
		hours := args.Int("time_period_hours")
		if hours <= 0 {
			return apperrors.NewValidationError("premium period must be positive", map[string]any{"time_period_hours": hours})
		}
		now := s.now()
		bot.Premium = true
		bot.StartPremiumPeriod = &now
		bot.PremiumPeriodLength = time.Duration(hours) * time.Hour
	case RPCPremiumRemove:
		if !bot.Premium {
			return apperrors.NewPrecondition("this bot does not have premium", nil)
		}
		bot.Premium = false
		bot.StartPremiumPeriod = nil
		bot.PremiumPeriodLength = 0
	case RPCVoteBanAdd:
		bot.VoteBanned = true
	case RPCVoteBanRemove:
		bot.VoteBanned = false
	case RPCCertifyAdd:
		if bot.Type != domain.BotTypeApproved {
			return apperrors.NewPrecondition(fmt.Sprintf("only approved bots can be certified; this bot is %s", bot.Type), nil)
		}
		bot.Type = domain.BotTypeCertified
	case RPCCertifyRemove:
		if bot.Type != domain.BotTypeCertified {
			return apperrors.NewPrecondition("this bot is not certified", nil)
		}
		bot.Type = domain.BotTypeApproved
	case RPCTransferOwnership:
		owner := args.Text("new_owner")
		bot.Owner = &owner
		bot.TeamOwner = nil
	default:
		return apperrors.NewValidationError("method has no bot mutation", map[string]any{"method": method})
	}
	return nil
}

func (s *RPCService) renameTeam(ctx context.Context, teamID, name string) error {
	if len(name) > 100 {
		return apperrors.NewValidationError("team name is too long", map[string]any{"max": 100})
	}
	if err := s.store.Teams.UpdateName(ctx, teamID, name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("team", map[string]any{"team_id": teamID})
		}
		return err
	}
	return nil
}
