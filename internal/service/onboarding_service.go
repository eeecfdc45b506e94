package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/config"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/events"
	"github.com/botlist/arcadia/internal/observability"
	"github.com/botlist/arcadia/internal/perms"
	"github.com/botlist/arcadia/internal/persistence"
	"github.com/botlist/arcadia/internal/repository"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// Command names the onboarding script reacts to.
const (
	CommandQueue      = "queue"
	CommandStaffGuide = "staffguide"
	CommandClaim      = "claim"
	CommandUnclaim    = "unclaim"
	CommandApprove    = "approve"
	CommandDeny       = "deny"
)

// OnboardingStatus tells the command dispatcher what to do after interception.
type OnboardingStatus int

const (
	// OnboardingNotApplicable means the actor is not staff; run the command untouched.
	OnboardingNotApplicable OnboardingStatus = iota
	// OnboardingProceed means onboarding is complete; run the command.
	OnboardingProceed
	// OnboardingHalt means onboarding handled the invocation; do not run the command.
	OnboardingHalt
)

// PromptKind distinguishes the interactive sub-flows.
type PromptKind string

const (
	PromptConfirm PromptKind = "confirm"
	PromptSurvey  PromptKind = "survey"
)

// SurveyCodeField is the survey answer holding the verification code.
const SurveyCodeField = "code"

// SurveyQuestion is one text input of the survey modal.
type SurveyQuestion struct {
	ID    string
	Label string
	Long  bool
}

const surveyTitle = "Onboarding survey"

var surveyQuestions = []SurveyQuestion{
	{ID: SurveyCodeField, Label: "Verification code from the staff guide"},
	{ID: "reasoning", Label: "Why did you make this decision?", Long: true},
	{ID: "learned", Label: "What did you learn from the staff guide?", Long: true},
}

// SurveyPrompt rebuilds the survey form for a pending survey interaction.
func SurveyPrompt(interactionID string) *Prompt {
	return &Prompt{Kind: PromptSurvey, InteractionID: interactionID, Title: surveyTitle, Questions: surveyQuestions}
}

// Prompt asks the actor for input that resumes onboarding later.
type Prompt struct {
	Kind          PromptKind
	InteractionID string
	Title         string
	Body          string
	Questions     []SurveyQuestion
	Timeout       time.Duration
}

// OnboardingResult is the outcome of an intercepted invocation.
type OnboardingResult struct {
	Status   OnboardingStatus
	Messages []string
	Prompt   *Prompt
}

func (r *OnboardingResult) say(format string, args ...any) {
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

// Invocation is a staff command as seen by the onboarding script.
type Invocation struct {
	ActorID string
	Command string
	GuildID string
	Args    map[string]string
}

// Arg returns a trimmed argument or "".
func (inv Invocation) Arg(name string) string {
	return strings.TrimSpace(inv.Args[name])
}

// ResumeInput answers a Prompt.
type ResumeInput struct {
	InteractionID string
	ActorID       string
	Confirmed     bool
	Answers       map[string]string
}

// GuildManager provisions and inspects guilds on behalf of onboarding.
type GuildManager interface {
	GuildName(ctx context.Context, guildID string) (string, error)
	IsMember(ctx context.Context, guildID, userID string) (bool, error)
	// EnsureSandbox finds or creates the guild named after actorID and returns an invite link.
	EnsureSandbox(ctx context.Context, actorID string) (string, error)
}

// InteractionStore keeps pending prompts until they are answered or expire.
type InteractionStore interface {
	Put(ctx context.Context, id string, v any, ttl time.Duration) error
	Take(ctx context.Context, id string, v any) error
}

type pendingPrompt struct {
	Kind    PromptKind          `json:"kind"`
	ActorID string              `json:"actor_id"`
	State   domain.OnboardState `json:"state"`
	Action  string              `json:"action,omitempty"`
}

// OnboardingService drives staff through the scripted sandbox sequence.
type OnboardingService struct {
	users        repository.UserRepository
	staff        repository.StaffRepository
	authz        *Authorizer
	guilds       GuildManager
	interactions InteractionStore
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	cfg          config.OnboardingConfig
	now          func() time.Time
}

// OnboardingDependencies bundles collaborators.
type OnboardingDependencies struct {
	UserRepo     repository.UserRepository
	StaffRepo    repository.StaffRepository
	Authorizer   *Authorizer
	Guilds       GuildManager
	Interactions InteractionStore
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
}

// NewOnboardingService creates the service.
func NewOnboardingService(cfg config.OnboardingConfig, deps OnboardingDependencies) *OnboardingService {
	return &OnboardingService{
		users:        deps.UserRepo,
		staff:        deps.StaffRepo,
		authz:        deps.Authorizer,
		guilds:       deps.Guilds,
		interactions: deps.Interactions,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Handle intercepts a staff command. Every call re-reads state from the database.
func (s *OnboardingService) Handle(ctx context.Context, inv Invocation) (*OnboardingResult, error) {
	if _, err := s.staff.GetMember(ctx, inv.ActorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &OnboardingResult{Status: OnboardingNotApplicable}, nil
		}
		return nil, apperrors.MapError(err)
	}

	rec, err := s.load(ctx, inv.ActorID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	res := &OnboardingResult{Status: OnboardingHalt}

	if s.inactive(rec, now) {
		wasComplete := rec.State == domain.OnboardComplete
		if err := s.reset(ctx, rec, "inactivity"); err != nil {
			return nil, err
		}
		if wasComplete {
			res.say("You have not used staff commands in a long time, so your onboarding has been reset. Run `/%s` to start again.", CommandQueue)
		} else {
			res.say("Your last onboarding attempt timed out after %s of inactivity and has been reset.", s.cfg.InactivityWindow)
		}
	}

	switch rec.State {
	case domain.OnboardComplete:
		res.Status = OnboardingProceed
		return res, nil
	case domain.OnboardPendingManagerReview:
		res.say("Your onboarding is waiting for a manager to review it. You will be notified once it is approved.")
		return res, nil
	case domain.OnboardDenied:
		res.say("Your onboarding was denied. Ask a manager to reset it if you want to try again.")
		return res, nil
	}

	ok, err := s.inSandbox(ctx, inv)
	if err != nil {
		return nil, err
	}
	if !ok {
		invite, err := s.guilds.EnsureSandbox(ctx, inv.ActorID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		res.say("Onboarding happens in your personal sandbox server. Join it with %s and run `/%s` there.", invite, inv.Command)
		return res, nil
	}

	if rec.State == domain.OnboardStaffGuideViewed {
		if err := s.encourage(ctx, rec, res); err != nil {
			return nil, err
		}
	}

	if err := s.step(ctx, rec, inv, now, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *OnboardingService) step(ctx context.Context, rec *domain.StaffOnboardRecord, inv Invocation, now time.Time, res *OnboardingResult) error {
	sandbox := s.cfg.SandboxBotID

	switch rec.State {
	case domain.OnboardPending:
		if inv.Command != CommandQueue {
			res.say("You need to finish onboarding before using staff commands. Run `/%s` to begin.", CommandQueue)
			return nil
		}
		rec.LastStartTime = &now
		rec.MacroTime = &now
		rec.SessionCode = nil
		rec.Survey = nil
		if err := s.transition(ctx, rec, domain.OnboardQueueStep, inv.Command); err != nil {
			return err
		}
		res.say("Queue:\n1. <@%s> (pending)", sandbox)
		res.say("This is the review queue. Before claiming anything, read the staff guide with `/%s`.", CommandStaffGuide)

	case domain.OnboardQueueStep:
		switch inv.Command {
		case CommandQueue:
			res.say("Queue:\n1. <@%s> (pending)", sandbox)
		case CommandStaffGuide:
			if err := s.issueSession(rec, now, res); err != nil {
				return err
			}
			return s.transition(ctx, rec, domain.OnboardStaffGuideViewed, inv.Command)
		default:
			res.say("Read the staff guide first with `/%s`.", CommandStaffGuide)
		}

	case domain.OnboardStaffGuideReadEncouraged, domain.OnboardStaffGuideViewedReminded:
		switch {
		case inv.Command == CommandClaim && inv.Arg("bot") == sandbox:
			res.say("You claimed <@%s>. Test it in this server, then run `/%s` again.", sandbox, CommandQueue)
			return s.transition(ctx, rec, domain.OnboardClaimedBot, inv.Command)
		case inv.Command == CommandClaim:
			res.say("During onboarding you can only claim <@%s>.", sandbox)
		case inv.Command == CommandStaffGuide:
			if err := s.issueSession(rec, now, res); err != nil {
				return err
			}
			return s.users.SaveOnboard(ctx, rec)
		case inv.Command == CommandQueue:
			res.say("Queue:\n1. <@%s> (pending)", sandbox)
			res.say("Claim it with `/%s bot:%s`.", CommandClaim, sandbox)
		case rec.State == domain.OnboardStaffGuideReadEncouraged:
			res.say("Reminder: claim <@%s> with `/%s` before doing anything else.", sandbox, CommandClaim)
			return s.transition(ctx, rec, domain.OnboardStaffGuideViewedReminded, inv.Command)
		default:
			return s.prompt(ctx, rec, res, &Prompt{
				Kind:    PromptConfirm,
				Title:   "Claim the sandbox bot?",
				Body:    fmt.Sprintf("You still have not claimed <@%s>. Claim it now?", sandbox),
				Timeout: s.cfg.ConfirmationTimeout,
			}, "")
		}

	case domain.OnboardClaimedBot:
		switch {
		case inv.Command == CommandQueue:
			res.say("Queue:\n1. <@%s> (claimed by you)", sandbox)
			res.say("Now decide: approve it with `/%s` or deny it with `/%s`.", CommandApprove, CommandDeny)
			return s.transition(ctx, rec, domain.OnboardTestingBot, inv.Command)
		case inv.Command == CommandUnclaim && inv.Arg("bot") == sandbox:
			res.say("You unclaimed <@%s>. Claim it again when you are ready.", sandbox)
			return s.transition(ctx, rec, domain.OnboardStaffGuideReadEncouraged, inv.Command)
		default:
			res.say("Test <@%s>, then run `/%s` to continue.", sandbox, CommandQueue)
		}

	case domain.OnboardTestingBot:
		switch {
		case (inv.Command == CommandApprove || inv.Command == CommandDeny) && inv.Arg("bot") == sandbox:
			return s.prompt(ctx, rec, res, &Prompt{
				Kind:      PromptSurvey,
				Title:     surveyTitle,
				Questions: surveyQuestions,
				Timeout:   s.cfg.SurveyTimeout,
			}, inv.Command)
		case inv.Command == CommandStaffGuide:
			if err := s.issueSession(rec, now, res); err != nil {
				return err
			}
			return s.users.SaveOnboard(ctx, rec)
		default:
			res.say("Approve or deny <@%s> with `/%s` or `/%s`.", sandbox, CommandApprove, CommandDeny)
		}

	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownOnboardState, rec.State)
	}
	return nil
}

// Resume continues a flow paused on a Prompt. An expired or already answered
// prompt cancels without changing state.
func (s *OnboardingService) Resume(ctx context.Context, in ResumeInput) (*OnboardingResult, error) {
	res := &OnboardingResult{Status: OnboardingHalt}

	if owner, _, ok := strings.Cut(in.InteractionID, "."); ok && owner != in.ActorID {
		return nil, apperrors.NewForbidden("this prompt belongs to someone else")
	}
	var pending pendingPrompt
	if err := s.interactions.Take(ctx, in.InteractionID, &pending); err != nil {
		if errors.Is(err, persistence.ErrInteractionExpired) {
			res.say("This prompt has expired. Run the command again.")
			return res, nil
		}
		return nil, apperrors.MapError(err)
	}
	if pending.ActorID != in.ActorID {
		return nil, apperrors.NewForbidden("this prompt belongs to someone else")
	}

	rec, err := s.load(ctx, in.ActorID)
	if err != nil {
		return nil, err
	}
	if rec.State != pending.State {
		res.say("Your onboarding has moved on since this prompt was shown.")
		return res, nil
	}
	sandbox := s.cfg.SandboxBotID

	switch pending.Kind {
	case PromptConfirm:
		if !in.Confirmed {
			res.say("Okay. Claim <@%s> with `/%s` when you are ready.", sandbox, CommandClaim)
			return res, nil
		}
		res.say("You claimed <@%s>. Test it in this server, then run `/%s` again.", sandbox, CommandQueue)
		if err := s.transition(ctx, rec, domain.OnboardClaimedBot, "force-claim"); err != nil {
			return nil, err
		}
		return res, nil

	case PromptSurvey:
		if rec.SessionCode == nil {
			return nil, apperrors.NewVerificationFailed(fmt.Sprintf("You have no guide session. Run `/%s` to get one.", CommandStaffGuide))
		}
		ok, err := VerifyCode(*rec.SessionCode, in.Answers[SurveyCodeField], s.now())
		if err != nil {
			return nil, apperrors.NewVerificationFailed(fmt.Sprintf("Your guide session has expired. Run `/%s` for a new one and try again.", CommandStaffGuide))
		}
		if !ok {
			return nil, apperrors.NewVerificationFailed("That verification code is wrong. Copy it from the staff guide page and try again.")
		}

		survey := make(map[string]string, len(in.Answers)+1)
		for k, v := range in.Answers {
			if k != SurveyCodeField {
				survey[k] = v
			}
		}
		survey["action"] = pending.Action
		rec.Survey = survey
		rec.SessionCode = nil
		if err := s.transition(ctx, rec, domain.OnboardPendingManagerReview, pending.Action); err != nil {
			return nil, err
		}
		res.say("Thanks! Your onboarding is now waiting for manager review.")
		return res, nil
	}
	return nil, apperrors.NewValidationError("unknown prompt kind", map[string]any{"kind": pending.Kind})
}

// PostCommand runs after every successful staff command.
func (s *OnboardingService) PostCommand(ctx context.Context, actorID string) ([]string, error) {
	rec, err := s.users.GetOnboard(ctx, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}

	res := &OnboardingResult{}
	switch rec.State {
	case domain.OnboardStaffGuideViewed:
		if err := s.encourage(ctx, rec, res); err != nil {
			return nil, err
		}
	case domain.OnboardComplete:
		now := s.now()
		rec.LastStartTime = &now
		if err := s.users.SaveOnboard(ctx, rec); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	return res.Messages, nil
}

// IssueVerificationCode derives the code a guide page shows for session.
func (s *OnboardingService) IssueVerificationCode(ctx context.Context, session string) (string, error) {
	rec, err := s.users.FindBySessionCode(ctx, session)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewNotFound("onboarding session", nil)
		}
		return "", apperrors.MapError(err)
	}
	if !rec.State.InProgress() {
		return "", apperrors.NewVerificationFailed("this session is no longer in use")
	}
	code, err := DeriveVerificationCode(session, s.now())
	if err != nil {
		return "", apperrors.NewVerificationFailed("this session has expired; run the staff guide command again")
	}
	return code, nil
}

// ApproveOnboard completes a member's onboarding after manager review.
func (s *OnboardingService) ApproveOnboard(ctx context.Context, actorID, targetID string) (*domain.StaffOnboardRecord, error) {
	rec, err := s.managerTarget(ctx, actorID, targetID, perms.OnboardingApprove)
	if err != nil {
		return nil, err
	}
	if rec.State != domain.OnboardPendingManagerReview {
		return nil, apperrors.NewPrecondition("onboarding is not awaiting review", map[string]any{"state": rec.State})
	}
	now := s.now()
	rec.Onboarded = true
	rec.LastStartTime = &now
	if err := s.transition(ctx, rec, domain.OnboardComplete, "approveonboard"); err != nil {
		return nil, err
	}
	return rec, nil
}

// DenyOnboard rejects a member's onboarding after manager review.
func (s *OnboardingService) DenyOnboard(ctx context.Context, actorID, targetID string) (*domain.StaffOnboardRecord, error) {
	rec, err := s.managerTarget(ctx, actorID, targetID, perms.OnboardingDeny)
	if err != nil {
		return nil, err
	}
	if rec.State != domain.OnboardPendingManagerReview {
		return nil, apperrors.NewPrecondition("onboarding is not awaiting review", map[string]any{"state": rec.State})
	}
	if err := s.transition(ctx, rec, domain.OnboardDenied, "denyonboard"); err != nil {
		return nil, err
	}
	return rec, nil
}

// ResetOnboard returns a member to pending from any state.
func (s *OnboardingService) ResetOnboard(ctx context.Context, actorID, targetID string) (*domain.StaffOnboardRecord, error) {
	rec, err := s.managerTarget(ctx, actorID, targetID, perms.OnboardingReset)
	if err != nil {
		return nil, err
	}
	if err := s.reset(ctx, rec, "resetonboard"); err != nil {
		return nil, err
	}
	return rec, nil
}

// PendingReviews lists members waiting for a manager decision.
func (s *OnboardingService) PendingReviews(ctx context.Context, actorID string) ([]domain.StaffOnboardRecord, error) {
	if err := s.authz.Authorize(ctx, actorID, perms.OnboardingApprove); err != nil {
		return nil, err
	}
	recs, err := s.users.ListByOnboardState(ctx, domain.OnboardPendingManagerReview)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return recs, nil
}

func (s *OnboardingService) managerTarget(ctx context.Context, actorID, targetID, perm string) (*domain.StaffOnboardRecord, error) {
	actor, err := s.authz.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := actor.Require(perm); err != nil {
		return nil, err
	}
	target, err := s.authz.Resolve(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !target.IsStaff() {
		return nil, apperrors.NewNotFound("staff member", map[string]any{"user_id": targetID})
	}
	if err := perms.CheckHierarchy(actor.LowestIndex, target.LowestIndex, "this staff member"); err != nil {
		return nil, err
	}
	return s.load(ctx, targetID)
}

func (s *OnboardingService) load(ctx context.Context, userID string) (*domain.StaffOnboardRecord, error) {
	rec, err := s.users.GetOnboard(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := s.users.Ensure(ctx, userID); err != nil {
			return nil, apperrors.MapError(err)
		}
		rec, err = s.users.GetOnboard(ctx, userID)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rec, nil
}

func (s *OnboardingService) inactive(rec *domain.StaffOnboardRecord, now time.Time) bool {
	if rec.LastStartTime == nil {
		return false
	}
	age := now.Sub(*rec.LastStartTime)
	switch {
	case rec.State.InProgress():
		return age > s.cfg.InactivityWindow
	case rec.State == domain.OnboardComplete:
		return age > s.cfg.CompletionExpiry
	}
	return false
}

func (s *OnboardingService) inSandbox(ctx context.Context, inv Invocation) (bool, error) {
	if inv.GuildID == "" {
		return false, nil
	}
	name, err := s.guilds.GuildName(ctx, inv.GuildID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	if name != inv.ActorID {
		return false, nil
	}
	member, err := s.guilds.IsMember(ctx, inv.GuildID, inv.ActorID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	return member, nil
}

func (s *OnboardingService) encourage(ctx context.Context, rec *domain.StaffOnboardRecord, res *OnboardingResult) error {
	res.say("Once you have read the guide, claim <@%s> with `/%s bot:%s`. Keep the guide page open: you will need the verification code it shows at the end.",
		s.cfg.SandboxBotID, CommandClaim, s.cfg.SandboxBotID)
	return s.transition(ctx, rec, domain.OnboardStaffGuideReadEncouraged, "post-command")
}

func (s *OnboardingService) issueSession(rec *domain.StaffOnboardRecord, now time.Time, res *OnboardingResult) error {
	code, err := GenerateSessionCode(now)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	rec.SessionCode = &code
	res.say("Staff guide: %s?session=%s", s.cfg.GuideURL, code)
	return nil
}

func (s *OnboardingService) prompt(ctx context.Context, rec *domain.StaffOnboardRecord, res *OnboardingResult, p *Prompt, action string) error {
	// Prefixed with the owner so a foreign answer is refused without consuming the prompt.
	p.InteractionID = rec.UserID + "." + uuid.NewString()
	pending := pendingPrompt{Kind: p.Kind, ActorID: rec.UserID, State: rec.State, Action: action}
	if err := s.interactions.Put(ctx, p.InteractionID, pending, p.Timeout); err != nil {
		return apperrors.MapError(err)
	}
	res.Prompt = p
	return nil
}

func (s *OnboardingService) reset(ctx context.Context, rec *domain.StaffOnboardRecord, reason string) error {
	rec.LastStartTime = nil
	rec.MacroTime = nil
	rec.SessionCode = nil
	rec.Survey = nil
	return s.transition(ctx, rec, domain.OnboardPending, reason)
}

func (s *OnboardingService) transition(ctx context.Context, rec *domain.StaffOnboardRecord, to domain.OnboardState, reason string) error {
	from := rec.State
	rec.State = to
	if err := s.users.SaveOnboard(ctx, rec); err != nil {
		return apperrors.MapError(err)
	}
	s.metrics.RecordOnboardingTransition(string(to))
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.New(events.EventOnboardingStateChanged, rec.UserID, rec.UserID,
			events.OnboardingStateChangedPayload{OldState: from, NewState: to, Reason: reason}))
	}
	return nil
}
