package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

// cleanupScheduleID identifies the single retention cleanup schedule.
const cleanupScheduleID = "privascan-retention-cleanup"

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartAnalysis starts the background analysis workflow for a queued job and
// returns the workflow ID. The workflow ID is derived from the job ID, so
// re-submitting the same job is idempotent.
func (c *Client) StartAnalysis(ctx context.Context, jobID uuid.UUID, wallet string, email *string) (string, error) {
	workflowID := analysisWorkflowID(jobID)

	c.logger.Debug("starting analysis workflow",
		"workflow_id", workflowID,
		"wallet", wallet,
	)

	options := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: c.taskQueue,
	}

	input := AnalyzeWalletInput{
		JobID:  jobID,
		Wallet: wallet,
		Email:  email,
	}

	run, err := c.client.ExecuteWorkflow(ctx, options, AnalyzeWalletWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start analysis workflow",
			"workflow_id", workflowID,
			"wallet", wallet,
			"error", err,
		)
		return "", fmt.Errorf("failed to start analysis workflow %q: %w", workflowID, err)
	}

	c.logger.Info("analysis workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"wallet", wallet,
	)
	return run.GetID(), nil
}

// EnsureCleanupSchedule creates the retention cleanup schedule if it does not
// already exist.
func (c *Client) EnsureCleanupSchedule(ctx context.Context, every time.Duration) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, cleanupScheduleID)
	if _, err := handle.Describe(ctx); err == nil {
		c.logger.Debug("cleanup schedule already exists", "schedule_id", cleanupScheduleID)
		return nil
	}

	c.logger.Info("creating cleanup schedule",
		"schedule_id", cleanupScheduleID,
		"interval", every,
	)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: cleanupScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{
				{Every: every},
			},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        cleanupScheduleID,
			Workflow:  "CleanupWorkflow",
			TaskQueue: c.taskQueue,
		},
		Memo: map[string]interface{}{
			"created_by": "privascan",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create cleanup schedule: %w", err)
	}

	c.logger.Info("cleanup schedule created", "schedule_id", cleanupScheduleID)
	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// analysisWorkflowID generates the workflow ID for an analysis job.
func analysisWorkflowID(jobID uuid.UUID) string {
	return "analyze-wallet-" + jobID.String()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
