package commands

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/botlist/arcadia/internal/persistence"
	"github.com/botlist/arcadia/internal/service"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// Onboarding is the interception surface of the onboarding script.
type Onboarding interface {
	Handle(ctx context.Context, inv service.Invocation) (*service.OnboardingResult, error)
	Resume(ctx context.Context, in service.ResumeInput) (*service.OnboardingResult, error)
	PostCommand(ctx context.Context, actorID string) ([]string, error)
}

// Authorizer checks that a user holds every required permission.
type Authorizer interface {
	Authorize(ctx context.Context, userID string, required ...string) error
}

// ActorLocker serializes invocations from the same actor.
type ActorLocker interface {
	Acquire(ctx context.Context, actorID string) (func(), error)
}

// Dispatcher routes invocations through onboarding, authorization and the
// command handler, in that order.
type Dispatcher struct {
	registry   *Registry
	onboarding Onboarding
	authz      Authorizer
	locker     ActorLocker
	logger     *zap.Logger
}

// DispatcherDependencies bundles collaborators.
type DispatcherDependencies struct {
	Registry   *Registry
	Onboarding Onboarding
	Authorizer Authorizer
	Locker     ActorLocker
	Logger     *zap.Logger
}

// NewDispatcher creates a dispatcher. A nil Locker disables per-actor locking.
func NewDispatcher(deps DispatcherDependencies) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry:   deps.Registry,
		onboarding: deps.Onboarding,
		authz:      deps.Authorizer,
		locker:     deps.Locker,
		logger:     logger,
	}
}

// Registry exposes the command set, for registration with Discord.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs one command invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, inv service.Invocation) (*Reply, error) {
	desc, ok := d.registry.Lookup(inv.Command)
	if !ok {
		return nil, apperrors.NewNotFound("command", map[string]any{"command": inv.Command})
	}
	start := time.Now()
	logger := d.logger.With(zap.String("command", desc.Name), zap.String("actor_id", inv.ActorID))

	if desc.Onboarding {
		release, err := d.lock(ctx, inv.ActorID)
		if err != nil {
			return nil, err
		}
		defer release()

		res, err := d.onboarding.Handle(ctx, inv)
		if err != nil {
			logger.Info("onboarding rejected command", zap.Error(err))
			return nil, err
		}
		if res.Status == service.OnboardingHalt {
			reply := &Reply{Messages: res.Messages, Prompt: res.Prompt, Ephemeral: true}
			d.postCommand(ctx, inv.ActorID, reply, logger)
			logger.Debug("command handled by onboarding", zap.Duration("latency", time.Since(start)))
			return reply, nil
		}
		reply, err := d.run(ctx, desc, inv)
		if err != nil {
			return nil, err
		}
		reply.Messages = append(res.Messages, reply.Messages...)
		d.postCommand(ctx, inv.ActorID, reply, logger)
		logger.Debug("command completed", zap.Duration("latency", time.Since(start)))
		return reply, nil
	}

	reply, err := d.run(ctx, desc, inv)
	if err != nil {
		return nil, err
	}
	logger.Debug("command completed", zap.Duration("latency", time.Since(start)))
	return reply, nil
}

// Resume answers an onboarding prompt under the actor's lock.
func (d *Dispatcher) Resume(ctx context.Context, in service.ResumeInput) (*Reply, error) {
	release, err := d.lock(ctx, in.ActorID)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := d.onboarding.Resume(ctx, in)
	if err != nil {
		return nil, err
	}
	return &Reply{Messages: res.Messages, Prompt: res.Prompt, Ephemeral: true}, nil
}

func (d *Dispatcher) run(ctx context.Context, desc Descriptor, inv service.Invocation) (*Reply, error) {
	if len(desc.Requires) > 0 {
		if err := d.authz.Authorize(ctx, inv.ActorID, desc.Requires...); err != nil {
			return nil, err
		}
	}
	reply, err := desc.Run(ctx, inv)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		reply = &Reply{}
	}
	return reply, nil
}

// postCommand advances onboarding after a successful command. Failures are
// logged and never fail the command that already ran.
func (d *Dispatcher) postCommand(ctx context.Context, actorID string, reply *Reply, logger *zap.Logger) {
	msgs, err := d.onboarding.PostCommand(ctx, actorID)
	if err != nil {
		logger.Warn("post-command onboarding hook failed", zap.Error(err))
		return
	}
	reply.Messages = append(reply.Messages, msgs...)
}

func (d *Dispatcher) lock(ctx context.Context, actorID string) (func(), error) {
	if d.locker == nil {
		return func() {}, nil
	}
	release, err := d.locker.Acquire(ctx, actorID)
	if errors.Is(err, persistence.ErrActorBusy) {
		return nil, apperrors.NewPrecondition("you already have a command running; wait for it to finish", nil)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return release, nil
}
