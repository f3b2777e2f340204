package core

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs background catalog maintenance on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
}

// NewScheduler constructs a UTC scheduler. Overlapping runs of the same job
// are skipped and panics are recovered and logged.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	adapter := cronLogger{sugar: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger:  logger,
		timeout: time.Minute,
	}
}

// Add registers job under name. spec accepts standard cron expressions and
// descriptors such as "@every 30s".
func (s *Scheduler) Add(name, spec string, job func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err), zap.Duration("duration", time.Since(start)))
			return
		}
		s.logger.Debug("scheduled job completed", zap.String("job", name), zap.Duration("duration", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int { return len(s.cron.Entries()) }

// Start begins running jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
