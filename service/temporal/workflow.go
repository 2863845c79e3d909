package temporal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// AnalyzeWalletWorkflow runs a full wallet privacy analysis in the
// background. It is started by the API server when a client queues a job.
//
// The workflow performs these steps:
// 1. Mark the job as processing
// 2. Run the analysis pipeline (RunAnalysis activity)
// 3. Persist the report to Postgres and warm the report cache
// 4. Publish the analysis event to NATS (non-fatal)
// 5. Email the report to the requester, if one was given (non-fatal)
// 6. Mark the job completed (or failed, on analysis/persistence errors)
func AnalyzeWalletWorkflow(ctx workflow.Context, input AnalyzeWalletInput) (*AnalyzeWalletResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("AnalyzeWalletWorkflow started", "wallet", input.Wallet, "job_id", input.JobID)

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 120 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	result := &AnalyzeWalletResult{
		JobID:  input.JobID,
		Wallet: input.Wallet,
	}

	// Step 1: mark the job as processing. Best effort; the analysis is worth
	// running even if the status row lags behind.
	if err := workflow.ExecuteActivity(ctx, a.MarkJobProcessing, MarkJobInput{JobID: input.JobID}).Get(ctx, nil); err != nil {
		logger.Warn("failed to mark job processing", "job_id", input.JobID, "error", err)
	}

	// Step 2: run the analysis pipeline.
	var analysisResult *RunAnalysisResult
	err := workflow.ExecuteActivity(ctx, a.RunAnalysis, RunAnalysisInput{Wallet: input.Wallet}).Get(ctx, &analysisResult)
	if err != nil {
		logger.Error("analysis failed", "wallet", input.Wallet, "error", err)
		failWallet(ctx, input.JobID, fmt.Sprintf("analysis failed: %v", err))
		return result, fmt.Errorf("analysis failed: %w", err)
	}

	result.PrivacyScore = analysisResult.Analysis.PrivacyScore
	result.Tier = string(analysisResult.Analysis.ComplianceTier)

	// Step 3: persist the report.
	saveInput := SaveReportInput{Analysis: analysisResult.Analysis}
	if err := workflow.ExecuteActivity(ctx, a.SaveReport, saveInput).Get(ctx, nil); err != nil {
		logger.Error("failed to save report", "wallet", input.Wallet, "error", err)
		failWallet(ctx, input.JobID, fmt.Sprintf("failed to save report: %v", err))
		return result, fmt.Errorf("failed to save report: %w", err)
	}

	// Step 4: publish the analysis event. Consumers are advisory; a publish
	// failure never fails the job.
	if err := workflow.ExecuteActivity(ctx, a.PublishAnalysisEvent, saveInput).Get(ctx, nil); err != nil {
		logger.Warn("failed to publish analysis event", "wallet", input.Wallet, "error", err)
	}

	// Step 5: deliver the report email when one was requested.
	if input.Email != nil && *input.Email != "" {
		emailInput := SendReportEmailInput{Email: *input.Email, Analysis: analysisResult.Analysis}
		var emailResult *SendReportEmailResult
		if err := workflow.ExecuteActivity(ctx, a.SendReportEmail, emailInput).Get(ctx, &emailResult); err != nil {
			logger.Warn("failed to send report email", "wallet", input.Wallet, "error", err)
		} else if emailResult != nil {
			result.EmailSent = emailResult.Sent
		}
	}

	// Step 6: mark the job completed.
	if err := workflow.ExecuteActivity(ctx, a.MarkJobCompleted, MarkJobInput{JobID: input.JobID}).Get(ctx, nil); err != nil {
		logger.Warn("failed to mark job completed", "job_id", input.JobID, "error", err)
	}

	logger.Info("AnalyzeWalletWorkflow completed",
		"wallet", input.Wallet,
		"privacy_score", result.PrivacyScore,
		"tier", result.Tier,
		"email_sent", result.EmailSent,
	)
	return result, nil
}

// failWallet marks the job as failed, tolerating the status write itself
// failing.
func failWallet(ctx workflow.Context, jobID uuid.UUID, msg string) {
	logger := workflow.GetLogger(ctx)
	input := MarkJobInput{JobID: jobID, Error: msg}
	if err := workflow.ExecuteActivity(ctx, a.MarkJobFailed, input).Get(ctx, nil); err != nil {
		logger.Warn("failed to mark job failed", "job_id", jobID, "error", err)
	}
}

// CleanupWorkflow removes expired reports and stale jobs. It runs on a
// Temporal schedule created at worker startup.
func CleanupWorkflow(ctx workflow.Context) (*CleanupResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("CleanupWorkflow started")

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var result *CleanupResult
	if err := workflow.ExecuteActivity(ctx, a.CleanupExpired).Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("cleanup failed: %w", err)
	}

	logger.Info("CleanupWorkflow completed",
		"reports_deleted", result.ReportsDeleted,
		"jobs_deleted", result.JobsDeleted,
		"email_limits_deleted", result.EmailLimitsDeleted,
	)
	return result, nil
}
