package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/budgetblitz/budgetblitz/internal/jobs"
)

// CodePurger deletes one-time codes expired before a cutoff.
type CodePurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeCodesJob removes stale one-time codes on a schedule.
type PurgeCodesJob struct {
	Repo    CodePurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPurgeCodesJob initialises the purge handler.
func NewPurgeCodesJob(repo CodePurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *PurgeCodesJob {
	return &PurgeCodesJob{
		Repo:    repo,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the purge.
func (j *PurgeCodesJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Repo == nil {
		return errors.New("purge codes: handler not configured")
	}
	var payload PurgeCodesPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetainHours <= 0 {
		payload.RetainHours = 24
	}
	tracker := j.Metrics.Track(TaskTypePurgeCodes)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := j.now().Add(-time.Duration(payload.RetainHours) * time.Hour)
	removed, err := j.Repo.PurgeExpired(ctx, cutoff)
	if err != nil {
		j.logger().Error("purge codes failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddPurged(removed)
	j.logger().Info("purged expired codes", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	return nil
}

func (j *PurgeCodesJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *PurgeCodesJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
