package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mso4sc/experiments/pkg/lifecycle"
	"github.com/mso4sc/experiments/pkg/lock"
	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/mso4sc/experiments/pkg/otelhelper"
	"github.com/mso4sc/experiments/pkg/persistence"
	"github.com/mso4sc/experiments/pkg/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	DatabaseURL          string
	OrchestratorURL      string
	OrchestratorUser     string
	OrchestratorPassword string
	OrchestratorTenant   string
	RedisURL             string
	SecretKey            string
}

// Stack is everything a binary needs to serve requests or run instances.
type Stack struct {
	Persistence  persistence.Persistence
	Orchestrator orchestrator.Client
	Locker       lock.Locker
	Registry     *prometheus.Registry
	Metrics      *lifecycle.Metrics

	Applications *services.Applications
	Instances    *services.Instances
	Executions   *services.Executions
	Credentials  *services.Credentials

	redis  *redis.Client
	logger *slog.Logger
}

func NewStack(ctx context.Context, logger *slog.Logger, config Config) (*Stack, error) {
	client, err := orchestrator.NewHTTPClient(
		config.OrchestratorURL,
		orchestrator.WithBasicAuth(config.OrchestratorUser, config.OrchestratorPassword),
		orchestrator.WithTenant(config.OrchestratorTenant),
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator client: %w", err)
	}

	store, err := NewPersistence(ctx, logger, config.DatabaseURL, config.SecretKey)
	if err != nil {
		return nil, err
	}

	stack := &Stack{
		Persistence:  store,
		Orchestrator: client,
		Registry:     prometheus.NewRegistry(),
		logger:       logger,
	}

	if config.RedisURL != "" {
		stack.redis, err = lock.NewRedisClient(ctx, config.RedisURL)
		if err != nil {
			_ = store.Close(ctx)

			return nil, fmt.Errorf("redis: %w", err)
		}
		stack.Locker = lock.NewRedis(stack.redis, "experiments:lock:", lock.DefaultTTL)
	} else {
		logger.WarnContext(ctx, "No Redis configured, instance locks are local to this process and a single worker must run")
		stack.Locker = lock.NewMemory()
	}

	stack.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	stack.Metrics = lifecycle.NewMetrics(stack.Registry)

	stack.Credentials = services.NewCredentials(store)
	stack.Applications = services.NewApplications(store, client)
	stack.Executions = services.NewExecutions(store, client)
	stack.Instances = services.NewInstances(store, client, stack.Credentials, stack.Locker, orchestrator.DefaultRetryPolicy)

	return stack, nil
}

// NewController builds the lifecycle controller over the stack.
func (s *Stack) NewController(pollerConfig lifecycle.PollerConfig, opts ...lifecycle.ControllerOption) *lifecycle.Controller {
	poller := lifecycle.NewPoller(s.Orchestrator, s.Persistence.Logs(), pollerConfig, s.Metrics)

	opts = append([]lifecycle.ControllerOption{lifecycle.WithMetrics(s.Metrics)}, opts...)

	return lifecycle.NewController(s.Persistence, s.Orchestrator, s.Executions, s.Instances, poller, opts...)
}

func (s *Stack) Close(ctx context.Context) error {
	var errs []error

	if err := s.Persistence.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close persistence: %w", err))
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	return errors.Join(errs...)
}

// NewTracing installs an OTLP tracer when enabled and returns the controller
// option using it together with its shutdown function.
func NewTracing(ctx context.Context, enabled bool, serviceName string) ([]lifecycle.ControllerOption, otelhelper.Shutdown, error) {
	if !enabled {
		return nil, func(context.Context) error { return nil }, nil
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("tracer: %w", err)
	}

	return []lifecycle.ControllerOption{lifecycle.WithTracer(tracer)}, shutdown, nil
}
