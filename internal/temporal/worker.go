package temporal

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	TaskQueue string

	// Zero values fall back to 20 activities, 10 workflow tasks and 2 pollers
	// of each kind. A discovery run holds one activity slot for the whole
	// provider fan-out, so small limits are enough.
	MaxConcurrentActivityExecutionSize     int
	MaxConcurrentWorkflowTaskExecutionSize int
	MaxConcurrentActivityTaskPollers       int
	MaxConcurrentWorkflowTaskPollers       int
}

func workerOptionsFromConfig(cfg WorkerConfig) worker.Options {
	options := worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.MaxConcurrentActivityExecutionSize,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.MaxConcurrentWorkflowTaskExecutionSize,
		MaxConcurrentActivityTaskPollers:       cfg.MaxConcurrentActivityTaskPollers,
		MaxConcurrentWorkflowTaskPollers:       cfg.MaxConcurrentWorkflowTaskPollers,
	}

	if options.MaxConcurrentActivityExecutionSize == 0 {
		options.MaxConcurrentActivityExecutionSize = 20
	}
	if options.MaxConcurrentWorkflowTaskExecutionSize == 0 {
		options.MaxConcurrentWorkflowTaskExecutionSize = 10
	}
	if options.MaxConcurrentActivityTaskPollers == 0 {
		options.MaxConcurrentActivityTaskPollers = 2
	}
	if options.MaxConcurrentWorkflowTaskPollers == 0 {
		options.MaxConcurrentWorkflowTaskPollers = 2
	}

	return options
}

// WorkerManager owns the discovery worker.
type WorkerManager struct {
	worker    worker.Worker
	taskQueue string
	logger    zerolog.Logger
}

// NewWorkerManager creates a worker polling cfg.TaskQueue.
func NewWorkerManager(c client.Client, cfg WorkerConfig, logger zerolog.Logger) (*WorkerManager, error) {
	if cfg.TaskQueue == "" {
		return nil, fmt.Errorf("task queue is required")
	}

	return &WorkerManager{
		worker:    worker.New(c, cfg.TaskQueue, workerOptionsFromConfig(cfg)),
		taskQueue: cfg.TaskQueue,
		logger:    logger.With().Str("component", "temporal_worker").Str("task_queue", cfg.TaskQueue).Logger(),
	}, nil
}

// RegisterDiscoveryWorkflow registers fn under DiscoveryWorkflowName, the
// name the client starts it by.
func (m *WorkerManager) RegisterDiscoveryWorkflow(fn interface{}) {
	m.worker.RegisterWorkflowWithOptions(fn, workflow.RegisterOptions{Name: DiscoveryWorkflowName})
}

// RegisterActivity registers an activity function or a struct whose exported
// methods are activities.
func (m *WorkerManager) RegisterActivity(a interface{}) {
	m.worker.RegisterActivity(a)
}

// TaskQueue returns the configured task queue name.
func (m *WorkerManager) TaskQueue() string {
	return m.taskQueue
}

// Start runs the worker until ctx is cancelled or the worker fails.
func (m *WorkerManager) Start(ctx context.Context) error {
	m.logger.Info().Msg("starting temporal worker")
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.worker.Run(worker.InterruptCh())
	}()

	select {
	case <-ctx.Done():
		m.worker.Stop()
		m.logger.Info().Msg("temporal worker stopped")
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("temporal worker: %w", err)
		}
		return nil
	}
}

// Stop stops the worker.
func (m *WorkerManager) Stop() {
	m.worker.Stop()
}
