package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type PayoutRunner interface {
	ScheduleHostPayouts(ctx context.Context) (int, error)
	DispatchDue(ctx context.Context) (int, error)
}

// PayoutJob creates host payouts for finished stays and retries payouts that
// have not gone through yet.
type PayoutJob struct {
	Payouts PayoutRunner
	Logger  *zap.Logger
	Timeout time.Duration
}

func NewPayoutJob(payouts PayoutRunner, logger *zap.Logger) *PayoutJob {
	return &PayoutJob{Payouts: payouts, Logger: logger, Timeout: 2 * time.Minute}
}

func (j *PayoutJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.Timeout)
	defer cancel()
	j.run(ctx)
}

func (j *PayoutJob) run(ctx context.Context) {
	j.Logger.Debug("running job: payouts")

	scheduled, err := j.Payouts.ScheduleHostPayouts(ctx)
	if err != nil {
		j.Logger.Error("failed to schedule host payouts", zap.Error(err))
	}

	dispatched, err := j.Payouts.DispatchDue(ctx)
	if err != nil {
		j.Logger.Error("failed to dispatch payouts", zap.Error(err))
		return
	}

	if scheduled > 0 || dispatched > 0 {
		j.Logger.Info("payout job finished",
			zap.Int("scheduled", scheduled),
			zap.Int("dispatched", dispatched),
		)
	}
}

// Register adds the job to c. Overlapping runs are skipped.
func (j *PayoutJob) Register(c *cron.Cron, schedule string) (cron.EntryID, error) {
	return c.AddJob(schedule, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(j))
}
