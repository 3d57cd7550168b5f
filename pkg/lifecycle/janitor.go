package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mso4sc/experiments/pkg/lock"
	"github.com/mso4sc/experiments/pkg/log"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const DefaultJanitorSchedule = "@every 5m"

// Abandoner settles an instance whose run stopped without finishing.
type Abandoner interface {
	Abandon(ctx context.Context, instance *models.AppInstance)
}

// Janitor periodically finds instances left in a transitional status with
// nobody holding their lock and abandons them.
type Janitor struct {
	instances persistence.InstanceRepository
	locker    lock.Locker
	abandoner Abandoner
	schedule  string
	logger    *slog.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewJanitor(instances persistence.InstanceRepository, locker lock.Locker, abandoner Abandoner, schedule string) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule '%s': %w", schedule, err)
	}

	return &Janitor{
		instances: instances,
		locker:    locker,
		abandoner: abandoner,
		schedule:  schedule,
		logger:    log.WithModule("janitor"),
	}, nil
}

func (j *Janitor) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	j.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(j.ctx); err != nil {
			j.logger.ErrorContext(j.ctx, "Janitor sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add janitor job: %w", err)
	}

	j.cron.Start()
	j.logger.InfoContext(ctx, "Janitor started", "schedule", j.schedule, "entry_id", entryID)

	return nil
}

func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}

	if j.cron != nil {
		<-j.cron.Stop().Done()
	}

	j.logger.Info("Janitor stopped")
}

// Sweep abandons every transitional instance whose lock is free and returns
// how many it abandoned.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	stale, err := j.instances.ListByStatus(ctx, models.ActiveStates...)
	if err != nil {
		return 0, fmt.Errorf("list active instances: %w", err)
	}

	abandoned := 0

	for _, instance := range stale {
		lease, err := j.locker.TryAcquire(ctx, lock.InstanceKey(instance.ID))
		if errors.Is(err, lock.ErrLocked) {
			continue
		}
		if err != nil {
			j.logger.WarnContext(ctx, "Failed to lock instance", "instance_id", instance.ID, "error", err)

			continue
		}

		if j.stillActive(ctx, instance.ID) {
			j.abandoner.Abandon(ctx, instance)
			abandoned++
		}

		if err := lease.Release(ctx); err != nil {
			j.logger.WarnContext(ctx, "Failed to release instance lock", "instance_id", instance.ID, "error", err)
		}
	}

	if abandoned > 0 {
		j.logger.InfoContext(ctx, "Abandoned interrupted instance runs", "count", abandoned)
	}

	return abandoned, nil
}

// stillActive rereads the instance under its lock, a run may have finished
// between listing and locking.
func (j *Janitor) stillActive(ctx context.Context, instanceID string) bool {
	current, err := j.instances.GetByID(ctx, instanceID)
	if err != nil {
		if !persistence.IsNotFound(err) {
			j.logger.WarnContext(ctx, "Failed to reload instance", "instance_id", instanceID, "error", err)
		}

		return false
	}

	return slices.Contains(models.ActiveStates, current.Status)
}
