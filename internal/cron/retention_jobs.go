package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

const (
	notificationRetention = 90 * 24 * time.Hour
	outboxRetention       = 14 * 24 * time.Hour
)

type deleteBeforeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// pruneJob deletes rows older than a rolling cutoff inside one transaction.
type pruneJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	retention time.Duration
	deleteFn  deleteBeforeFunc
	now       func() time.Time
}

type RetentionJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Retention time.Duration
}

type readNotificationPruner interface {
	DeleteReadNotificationsBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type publishedOutboxPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewNotificationCleanupJob removes inbox rows read before the retention
// window. Unread notifications are kept.
func NewNotificationCleanupJob(params RetentionJobParams, repo readNotificationPruner) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newPruneJob("notification-cleanup", params, notificationRetention, repo.DeleteReadNotificationsBefore)
}

// NewOutboxRetentionJob removes outbox rows relayed before the retention
// window. Unpublished rows survive regardless of age.
func NewOutboxRetentionJob(params RetentionJobParams, repo publishedOutboxPruner) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return newPruneJob("outbox-retention", params, outboxRetention, func(_ context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
		return repo.DeletePublishedBefore(tx, cutoff)
	})
}

func newPruneJob(name string, params RetentionJobParams, fallback time.Duration, fn deleteBeforeFunc) (*pruneJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = fallback
	}
	return &pruneJob{
		name:      name,
		logg:      params.Logger,
		db:        params.DB,
		retention: retention,
		deleteFn:  fn,
		now:       time.Now,
	}, nil
}

func (j *pruneJob) Name() string { return j.name }

func (j *pruneJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		deleted, err = j.deleteFn(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention prune complete")
	return nil
}
