package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/botlist/arcadia/internal/observability"
)

// Scheduler runs jobs on cron specs. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	metrics *observability.Metrics
	timeout time.Duration
}

// NewScheduler builds a scheduler whose runs are bounded by timeout.
func NewScheduler(logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	cl := cronLogger{logger.Named("cron").Sugar()}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:  logger,
		metrics: metrics,
		timeout: timeout,
	}
}

// Add schedules job. An empty spec leaves the job disabled.
func (s *Scheduler) Add(spec string, job Job) error {
	if spec == "" {
		s.logger.Info("job disabled", zap.String("job", job.Name()))
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background(), job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	s.logger.Info("job scheduled", zap.String("job", job.Name()), zap.String("spec", spec))
	return nil
}

// RunOnce executes job immediately and records the outcome.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	changed, err := job.Run(ctx)
	s.metrics.RecordJobRun(job.Name(), changed, err)

	fields := []zap.Field{
		zap.String("job", job.Name()),
		zap.Int("changed", changed),
		zap.Duration("latency", time.Since(start)),
	}
	if err != nil {
		s.logger.Error("job run failed", append(fields, zap.Error(err))...)
		return changed, err
	}
	s.logger.Info("job run completed", fields...)
	return changed, nil
}

// Start begins firing scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("jobs still running at shutdown")
	}
}

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
