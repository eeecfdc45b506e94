package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/botlist/arcadia/internal/repository"
)

// TeamCleanupJob deletes teams that own no bots and have no members.
type TeamCleanupJob struct {
	teams  repository.TeamRepository
	logger *zap.Logger
}

// NewTeamCleanupJob builds the job.
func NewTeamCleanupJob(teams repository.TeamRepository, logger *zap.Logger) *TeamCleanupJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamCleanupJob{teams: teams, logger: logger.Named("team_cleanup")}
}

func (j *TeamCleanupJob) Name() string { return "team_cleanup" }

func (j *TeamCleanupJob) Run(ctx context.Context) (int, error) {
	orphaned, err := j.teams.ListOrphaned(ctx)
	if err != nil {
		return 0, fmt.Errorf("list orphaned teams: %w", err)
	}

	deleted, failed := 0, 0
	for _, team := range orphaned {
		ok, err := j.teams.DeleteIfOrphaned(ctx, team.ID)
		if err != nil {
			failed++
			j.logger.Error("delete orphaned team failed", zap.String("team_id", team.ID), zap.Error(err))
			continue
		}
		if ok {
			deleted++
			j.logger.Info("deleted orphaned team", zap.String("team_id", team.ID), zap.String("name", team.Name))
		}
	}
	if failed > 0 {
		return deleted, fmt.Errorf("%d of %d orphaned teams could not be deleted", failed, len(orphaned))
	}
	return deleted, nil
}
