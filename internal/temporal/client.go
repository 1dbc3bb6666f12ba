package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"

	"github.com/northstar/funding-discovery/internal/domain"
)

// Workflow and query names. They live here rather than in the workflows
// package so the server can use them without importing workflow code.
const (
	// DiscoveryWorkflowName is the registered name of the discovery workflow.
	DiscoveryWorkflowName = "DiscoveryWorkflow"

	// QueryProgress is the query returning a DiscoveryProgress.
	QueryProgress = "progress"

	// NightlyWorkflowID is the fixed ID of the nightly cron workflow.
	NightlyWorkflowID = "discovery-nightly"
)

const (
	// DefaultWorkflowExecutionTimeout bounds a single discovery run.
	DefaultWorkflowExecutionTimeout = 30 * time.Minute

	// DefaultHealthCheckTimeout bounds a Temporal health check.
	DefaultHealthCheckTimeout = 5 * time.Second

	// DefaultNightlyCron runs the nightly discovery at 02:00.
	DefaultNightlyCron = "0 2 * * *"
)

var (
	// ErrWorkflowNotFound indicates the workflow execution was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyStarted indicates a workflow with the same ID is already running.
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")

	// ErrQueryFailed indicates the workflow query failed.
	ErrQueryFailed = errors.New("query failed")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrConnectionFailed indicates a connection failure to the Temporal server.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNamespaceNotFound indicates the namespace does not exist.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrPermissionDenied indicates insufficient permissions.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidArgument indicates an invalid argument was provided.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrResourceExhausted indicates resource limits have been reached.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrDeadlineExceeded indicates the operation deadline was exceeded.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// TemporalError wraps a Temporal error with the operation and workflow it
// concerns. errors.Is matches its Kind.
type TemporalError struct {
	Op         string
	Kind       error
	WorkflowID string
	RunID      string
	Err        error
}

func (e *TemporalError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.WorkflowID != "" {
		msg += fmt.Sprintf(" [workflowID=%s", e.WorkflowID)
		if e.RunID != "" {
			msg += fmt.Sprintf(", runID=%s", e.RunID)
		}
		msg += "]"
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *TemporalError) Unwrap() error {
	return e.Err
}

func (e *TemporalError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrapTemporalError maps SDK and service errors onto TemporalError kinds.
func wrapTemporalError(op string, err error, workflowID, runID string) error {
	if err == nil {
		return nil
	}

	te := &TemporalError{
		Op:         op,
		WorkflowID: workflowID,
		RunID:      runID,
		Err:        err,
	}

	var notFoundErr *serviceerror.NotFound
	var alreadyStartedErr *serviceerror.WorkflowExecutionAlreadyStarted
	var namespaceNotFoundErr *serviceerror.NamespaceNotFound
	var permissionDeniedErr *serviceerror.PermissionDenied
	var invalidArgumentErr *serviceerror.InvalidArgument
	var resourceExhaustedErr *serviceerror.ResourceExhausted
	var deadlineExceededErr *serviceerror.DeadlineExceeded
	var queryFailedErr *serviceerror.QueryFailed
	var unavailableErr *serviceerror.Unavailable

	switch {
	case errors.As(err, &notFoundErr):
		te.Kind = ErrWorkflowNotFound
	case errors.As(err, &alreadyStartedErr):
		te.Kind = ErrWorkflowAlreadyStarted
	case errors.As(err, &namespaceNotFoundErr):
		te.Kind = ErrNamespaceNotFound
	case errors.As(err, &permissionDeniedErr):
		te.Kind = ErrPermissionDenied
	case errors.As(err, &invalidArgumentErr):
		te.Kind = ErrInvalidArgument
	case errors.As(err, &resourceExhaustedErr):
		te.Kind = ErrResourceExhausted
	case errors.As(err, &deadlineExceededErr):
		te.Kind = ErrDeadlineExceeded
	case errors.As(err, &queryFailedErr):
		te.Kind = ErrQueryFailed
	case errors.As(err, &unavailableErr):
		te.Kind = ErrConnectionFailed
	case errors.Is(err, context.DeadlineExceeded):
		te.Kind = ErrDeadlineExceeded
	case errors.Is(err, context.Canceled):
		te.Kind = ErrClientClosed
	default:
		te.Kind = ErrConnectionFailed
	}

	return te
}

// IsWorkflowNotFound reports whether err is a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowAlreadyStarted reports whether err is a duplicate start.
func IsWorkflowAlreadyStarted(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyStarted)
}

// ClientConfig contains configuration for the Temporal client.
type ClientConfig struct {
	HostPort  string
	Namespace string
	TaskQueue string

	// HealthCheckTimeout defaults to DefaultHealthCheckTimeout.
	HealthCheckTimeout time.Duration
}

// NewClient dials Temporal. logger may be nil.
func NewClient(cfg ClientConfig, logger sdklog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create Temporal client: %w", err)
	}
	return c, nil
}

// DiscoveryInput starts one discovery session. It is defined here so the
// server and the Kafka listener can build it without the workflows package.
type DiscoveryInput struct {
	// RequestID correlates Kafka events of one request.
	RequestID uuid.UUID

	// SessionID is assigned by the workflow when zero, which is the case for
	// every run of the nightly cron.
	SessionID uuid.UUID

	SessionType  domain.SessionType
	KeywordQuery string
	AIQuery      string

	// MaxResultsPerQuery falls back to the worker's configured default when zero.
	MaxResultsPerQuery int
}

// DiscoveryProgress is the answer to QueryProgress.
type DiscoveryProgress struct {
	SessionID         uuid.UUID            `json:"sessionId"`
	Phase             string               `json:"phase"`
	Status            domain.SessionStatus `json:"status"`
	TotalResults      int                  `json:"totalResults"`
	ProviderErrors    int                  `json:"providerErrors"`
	CandidatesCreated int                  `json:"candidatesCreated"`
	HighConfidence    int                  `json:"highConfidence"`
}

// WorkflowDescription summarizes a workflow execution.
type WorkflowDescription struct {
	WorkflowID string
	RunID      string
	Status     string
	StartTime  time.Time
	CloseTime  *time.Time
}

// DiscoveryWorkflowClient starts and inspects discovery workflows.
type DiscoveryWorkflowClient struct {
	mu                 sync.RWMutex
	client             client.Client
	taskQueue          string
	healthCheckTimeout time.Duration
	closed             bool
}

// NewDiscoveryWorkflowClient wraps c for the task queue in cfg.
func NewDiscoveryWorkflowClient(c client.Client, cfg ClientConfig) *DiscoveryWorkflowClient {
	healthTimeout := cfg.HealthCheckTimeout
	if healthTimeout == 0 {
		healthTimeout = DefaultHealthCheckTimeout
	}
	return &DiscoveryWorkflowClient{
		client:             c,
		taskQueue:          cfg.TaskQueue,
		healthCheckTimeout: healthTimeout,
	}
}

// DiscoveryWorkflowID is the workflow ID of a session's run.
func DiscoveryWorkflowID(sessionID uuid.UUID) string {
	return "discovery-" + sessionID.String()
}

// Close closes the underlying Temporal client.
func (c *DiscoveryWorkflowClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && !c.closed {
		c.client.Close()
		c.closed = true
	}
}

func (c *DiscoveryWorkflowClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func closedError(op, workflowID, runID string) error {
	return &TemporalError{Op: op, Kind: ErrClientClosed, WorkflowID: workflowID, RunID: runID}
}

// Health checks the connection to the Temporal server.
func (c *DiscoveryWorkflowClient) Health(ctx context.Context) error {
	if c.isClosed() {
		return closedError("Health", "", "")
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.healthCheckTimeout)
	defer cancel()

	if _, err := c.client.CheckHealth(checkCtx, &client.CheckHealthRequest{}); err != nil {
		return wrapTemporalError("Health", err, "", "")
	}
	return nil
}

// Start starts a discovery run for input, assigning request and session IDs
// when missing. The workflow ID is derived from the session ID, so starting
// the same session twice fails with ErrWorkflowAlreadyStarted.
func (c *DiscoveryWorkflowClient) Start(ctx context.Context, input DiscoveryInput) (workflowID, runID string, err error) {
	if input.RequestID == uuid.Nil {
		input.RequestID = uuid.New()
	}
	if input.SessionID == uuid.Nil {
		input.SessionID = uuid.New()
	}
	if input.SessionType == "" {
		input.SessionType = domain.SessionTypeManual
	}

	workflowID = DiscoveryWorkflowID(input.SessionID)
	if c.isClosed() {
		return "", "", closedError("Start", workflowID, "")
	}

	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: DefaultWorkflowExecutionTimeout,
	}

	run, err := c.client.ExecuteWorkflow(ctx, options, DiscoveryWorkflowName, input)
	if err != nil {
		return "", "", wrapTemporalError("Start", err, workflowID, "")
	}
	return workflowID, run.GetRunID(), nil
}

// StartNightly registers the nightly cron workflow. It is idempotent: when the
// cron workflow already runs, the call succeeds without starting another.
func (c *DiscoveryWorkflowClient) StartNightly(ctx context.Context, cronSchedule string, input DiscoveryInput) error {
	if c.isClosed() {
		return closedError("StartNightly", NightlyWorkflowID, "")
	}
	if cronSchedule == "" {
		cronSchedule = DefaultNightlyCron
	}

	// Each cron run assigns its own session and request IDs.
	input.SessionID = uuid.Nil
	input.RequestID = uuid.Nil
	input.SessionType = domain.SessionTypeScheduled

	options := client.StartWorkflowOptions{
		ID:           NightlyWorkflowID,
		TaskQueue:    c.taskQueue,
		CronSchedule: cronSchedule,
	}

	_, err := c.client.ExecuteWorkflow(ctx, options, DiscoveryWorkflowName, input)
	if err != nil {
		wrapped := wrapTemporalError("StartNightly", err, NightlyWorkflowID, "")
		if IsWorkflowAlreadyStarted(wrapped) {
			return nil
		}
		return wrapped
	}
	return nil
}

// Describe returns the state of a workflow execution. An empty runID means
// the latest run.
func (c *DiscoveryWorkflowClient) Describe(ctx context.Context, workflowID, runID string) (*WorkflowDescription, error) {
	if c.isClosed() {
		return nil, closedError("Describe", workflowID, runID)
	}

	resp, err := c.client.DescribeWorkflowExecution(ctx, workflowID, runID)
	if err != nil {
		return nil, wrapTemporalError("Describe", err, workflowID, runID)
	}

	info := resp.GetWorkflowExecutionInfo()
	desc := &WorkflowDescription{
		WorkflowID: workflowID,
		RunID:      info.GetExecution().GetRunId(),
		Status:     info.GetStatus().String(),
		StartTime:  info.GetStartTime().AsTime(),
	}
	if info.GetCloseTime() != nil {
		closeTime := info.GetCloseTime().AsTime()
		desc.CloseTime = &closeTime
	}
	return desc, nil
}

// Cancel requests cancellation of a workflow execution.
func (c *DiscoveryWorkflowClient) Cancel(ctx context.Context, workflowID, runID string) error {
	if c.isClosed() {
		return closedError("Cancel", workflowID, runID)
	}
	if err := c.client.CancelWorkflow(ctx, workflowID, runID); err != nil {
		return wrapTemporalError("Cancel", err, workflowID, runID)
	}
	return nil
}

// QueryProgress returns the live progress of a running discovery workflow.
func (c *DiscoveryWorkflowClient) QueryProgress(ctx context.Context, workflowID string) (*DiscoveryProgress, error) {
	if c.isClosed() {
		return nil, closedError("QueryProgress", workflowID, "")
	}

	resp, err := c.client.QueryWorkflow(ctx, workflowID, "", QueryProgress)
	if err != nil {
		return nil, wrapTemporalError("QueryProgress", err, workflowID, "")
	}

	var progress DiscoveryProgress
	if err := resp.Get(&progress); err != nil {
		return nil, &TemporalError{
			Op:         "QueryProgress",
			Kind:       ErrQueryFailed,
			WorkflowID: workflowID,
			Err:        fmt.Errorf("decode query result: %w", err),
		}
	}
	return &progress, nil
}

// TaskQueue returns the configured task queue.
func (c *DiscoveryWorkflowClient) TaskQueue() string {
	return c.taskQueue
}
