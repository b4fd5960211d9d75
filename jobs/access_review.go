package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/pelita-foundation/pelita/internal/authz"
	jobmetrics "github.com/pelita-foundation/pelita/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AccessReviewJob snapshots the effective permission set of every active
// user so program auditors can certify access without touching the live
// resolver.
type AccessReviewJob struct {
	Resolver *authz.Resolver
	Pool     *pgxpool.Pool
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewAccessReviewJob wires dependencies for the access review handler.
func NewAccessReviewJob(resolver *authz.Resolver, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *AccessReviewJob {
	return &AccessReviewJob{
		Resolver: resolver,
		Pool:     pool,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes access review tasks.
func (j *AccessReviewJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Resolver == nil {
		return errors.New("access review: handler not configured")
	}
	var payload AccessReviewPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Reason == "" {
		payload.Reason = "scheduled"
	}

	tracker := j.metrics().Track(TaskAccessReview)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	logger.Info("starting access review")

	userIDs, err := j.fetchActiveUsers(ctx)
	if err != nil {
		resultErr = err
		logger.Error("load active users", slog.Any("error", err))
		return resultErr
	}
	if len(userIDs) == 0 {
		logger.Info("no active users to review")
		return resultErr
	}

	batchAt := j.now()
	var snapshotted atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, userID := range userIDs {
		userID := userID
		group.Go(func() error {
			perms, err := j.Resolver.EffectivePermissions(groupCtx, userID)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(perms))
			for key := range perms {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			if err := j.insertSnapshot(groupCtx, batchAt, userID, payload.Reason, keys); err != nil {
				return err
			}
			snapshotted.Add(1)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		resultErr = err
		logger.Error("access review aborted", slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddReviewedUsers("snapshotted", int(snapshotted.Load()))
	logger.Info("completed access review",
		slog.Int64("users", snapshotted.Load()),
		slog.Duration("duration", time.Since(batchAt)))
	return resultErr
}

func (j *AccessReviewJob) fetchActiveUsers(ctx context.Context) ([]int64, error) {
	if j.Pool == nil {
		return nil, errors.New("access review: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT id FROM users WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (j *AccessReviewJob) insertSnapshot(ctx context.Context, batchAt time.Time, userID int64, reason string, keys []string) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	_, err = j.Pool.Exec(ctx, `
INSERT INTO access_review_snapshots (batch_at, user_id, reason, permissions)
VALUES ($1, $2, $3, $4)`, batchAt, userID, reason, data)
	return err
}

func (j *AccessReviewJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAccessReview))
	}
	return slog.Default().With(slog.String("job", TaskAccessReview))
}

func (j *AccessReviewJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AccessReviewJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
