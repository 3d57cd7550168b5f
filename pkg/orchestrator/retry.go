package orchestrator

import (
	"context"
	"time"

	"github.com/mso4sc/experiments/pkg/log"
)

// RetryPolicy bounds CreateDeploymentWithRetry.
type RetryPolicy struct {
	// Retries is the number of attempts made after the first one.
	Retries  int
	Interval time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Retries: 3, Interval: 3 * time.Second}

// CreateDeploymentWithRetry creates a deployment, repeating the call while
// the orchestrator reports its environment as still being prepared. Any other
// error is returned at once. When retries run out the last transient error
// is returned.
func CreateDeploymentWithRetry(
	ctx context.Context,
	client Client,
	policy RetryPolicy,
	blueprintID, deploymentID string,
	inputs map[string]any,
) (*Deployment, error) {
	logger := log.WithModule("orchestrator")

	var lastErr error
	for attempt := 0; attempt <= policy.Retries; attempt++ {
		if attempt > 0 {
			logger.InfoContext(ctx, "Retrying deployment creation",
				"deployment_id", deploymentID,
				"attempt", attempt,
				"error", lastErr,
			)

			timer := time.NewTimer(policy.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		dep, err := client.CreateDeployment(ctx, blueprintID, deploymentID, inputs)
		if err == nil {
			return dep, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}
