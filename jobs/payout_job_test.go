package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type fakeRunner struct {
	ScheduleFunc func(ctx context.Context) (int, error)
	DispatchFunc func(ctx context.Context) (int, error)
}

func (f *fakeRunner) ScheduleHostPayouts(ctx context.Context) (int, error) {
	return f.ScheduleFunc(ctx)
}

func (f *fakeRunner) DispatchDue(ctx context.Context) (int, error) {
	return f.DispatchFunc(ctx)
}

func TestPayoutJobDispatchesEvenWhenSchedulingFails(t *testing.T) {
	var calls []string
	runner := &fakeRunner{
		ScheduleFunc: func(ctx context.Context) (int, error) {
			calls = append(calls, "schedule")
			return 0, errors.New("db down")
		},
		DispatchFunc: func(ctx context.Context) (int, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("expected the run to carry a deadline")
			}
			calls = append(calls, "dispatch")
			return 2, nil
		},
	}

	NewPayoutJob(runner, zap.NewNop()).Run()

	if len(calls) != 2 || calls[0] != "schedule" || calls[1] != "dispatch" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestPayoutJobRegister(t *testing.T) {
	runner := &fakeRunner{
		ScheduleFunc: func(context.Context) (int, error) { return 0, nil },
		DispatchFunc: func(context.Context) (int, error) { return 0, nil },
	}
	job := NewPayoutJob(runner, zap.NewNop())
	c := cron.New()

	if _, err := job.Register(c, "*/5 * * * *"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("expected one cron entry, got %d", len(c.Entries()))
	}
	if _, err := job.Register(c, "not a schedule"); err == nil {
		t.Fatal("expected an invalid schedule to be rejected")
	}
}
