package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

const defaultRefundGrace = time.Hour

type refundSweeper interface {
	SweepPendingRefunds(ctx context.Context, olderThan time.Duration) (int, error)
}

// NewRefundSweepJob re-enqueues approved returns whose wallet refund never ran.
func NewRefundSweepJob(logg *logger.Logger, sweeper refundSweeper, grace time.Duration) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("returns service required")
	}
	if grace <= 0 {
		grace = defaultRefundGrace
	}
	return &refundSweepJob{logg: logg, sweeper: sweeper, grace: grace}, nil
}

type refundSweepJob struct {
	logg    *logger.Logger
	sweeper refundSweeper
	grace   time.Duration
}

func (j *refundSweepJob) Name() string { return "refund-sweep" }

func (j *refundSweepJob) Run(ctx context.Context) error {
	n, err := j.sweeper.SweepPendingRefunds(ctx, j.grace)
	if err != nil {
		return fmt.Errorf("sweep pending refunds: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "requeued", n), "pending refunds requeued")
	return nil
}
