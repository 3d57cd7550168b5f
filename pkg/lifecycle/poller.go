package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mso4sc/experiments/pkg/log"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/mso4sc/experiments/pkg/persistence"
)

const (
	DefaultPollInterval    = 10 * time.Second
	DefaultRetryBudget     = 5
	DefaultMaxPollDuration = 12 * time.Hour
)

type PollerConfig struct {
	// Interval is the pause between two polls.
	Interval time.Duration
	// RetryBudget is the number of consecutive failed polls tolerated.
	RetryBudget int
	PageSize    int
	// MaxDuration bounds a single Poll call. Zero disables the bound.
	MaxDuration time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:    DefaultPollInterval,
		RetryBudget: DefaultRetryBudget,
		PageSize:    orchestrator.DefaultPageSize,
		MaxDuration: DefaultMaxPollDuration,
	}
}

// PollResult is what a Poll call learned about an execution.
type PollResult struct {
	// Status is the last status observed; meaningful only when Observed.
	Status   models.InstanceStatus
	Observed bool
	// Offset is the number of remote events consumed.
	Offset int
}

// Poller follows one remote execution, copying its events into the
// instance log until it finishes.
type Poller struct {
	client  orchestrator.Client
	logs    persistence.LogRepository
	config  PollerConfig
	metrics *Metrics
	logger  *slog.Logger
}

func NewPoller(client orchestrator.Client, logs persistence.LogRepository, config PollerConfig, metrics *Metrics) *Poller {
	if config.RetryBudget <= 0 {
		config.RetryBudget = DefaultRetryBudget
	}
	if config.PageSize <= 0 {
		config.PageSize = orchestrator.DefaultPageSize
	}

	return &Poller{
		client:  client,
		logs:    logs,
		config:  config,
		metrics: metrics,
		logger:  log.WithModule("poller"),
	}
}

// Poll blocks until the execution is finished and its events are drained,
// the retry budget is spent, MaxDuration elapses or ctx is done.
func (p *Poller) Poll(ctx context.Context, instanceID, executionID string) PollResult {
	logger := p.logger.With("instance_id", instanceID, "execution_id", executionID)

	var deadline <-chan time.Time
	if p.config.MaxDuration > 0 {
		timer := time.NewTimer(p.config.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	var result PollResult
	budget := p.config.RetryBudget

	for {
		status, consumed, err := p.fetch(ctx, logger, instanceID, executionID, result.Offset)
		if err != nil {
			result.Offset += consumed
			budget--
			p.metrics.pollFailed()
			logger.WarnContext(ctx, "Failed to poll execution", "error", err, "retries_left", budget)

			if budget <= 0 {
				logger.ErrorContext(ctx, "Giving up on execution after repeated poll failures")

				return result
			}
		} else {
			budget = p.config.RetryBudget
			result.Status = status
			result.Observed = true
			result.Offset += consumed

			if models.IsExecutionFinished(status) && consumed < p.config.PageSize {
				return result
			}
		}

		wait := time.NewTimer(p.config.Interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			logger.WarnContext(ctx, "Polling cancelled", "error", ctx.Err())

			return result
		case <-deadline:
			wait.Stop()
			logger.ErrorContext(ctx, "Polling exceeded the maximum duration", "max_duration", p.config.MaxDuration)

			return result
		case <-wait.C:
		}
	}
}

// fetch reads the execution status and the next page of events, appending
// the rendered events to the instance log. It returns how many events were
// consumed, including the ones that were dropped. When a line cannot be
// stored, consumption stops before its event so the next fetch retries it.
func (p *Poller) fetch(
	ctx context.Context,
	logger *slog.Logger,
	instanceID, executionID string,
	offset int,
) (models.InstanceStatus, int, error) {
	execution, err := p.client.GetExecution(ctx, executionID)
	if err != nil {
		return "", 0, fmt.Errorf("get execution: %w", err)
	}

	page, err := p.client.ListEvents(ctx, executionID, offset, p.config.PageSize)
	if err != nil {
		return "", 0, fmt.Errorf("list events: %w", err)
	}

	for i, event := range page.Items {
		message, err := FormatEvent(event)
		if errors.Is(err, ErrMissingTimestamp) {
			logger.WarnContext(ctx, "Dropping event without reported_timestamp", "event_type", event.Kind())

			continue
		}
		if err != nil {
			logger.WarnContext(ctx, "Dropping unreadable event", "error", err)

			continue
		}
		if message == "" {
			continue
		}

		entry := &models.InstanceLog{InstanceID: instanceID, Generated: eventTime(event), Message: message}
		if err := p.logs.Append(ctx, entry); err != nil {
			return "", i, fmt.Errorf("store log line: %w", err)
		}
	}

	return normalizeStatus(execution.Status), len(page.Items), nil
}

// normalizeStatus folds remote states the portal does not track into the
// closest instance status.
func normalizeStatus(remote string) models.InstanceStatus {
	status := models.InstanceStatus(remote)
	if status.Valid() {
		return status
	}

	switch remote {
	case "queued", "scheduled":
		return models.StatusPending
	case "kill_cancelling":
		return models.StatusForceCancelling
	default:
		return models.StatusStarted
	}
}
