package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/privascan/privascan/service/analysis"
	"github.com/privascan/privascan/service/db"
	"github.com/privascan/privascan/service/metrics"
	natspkg "github.com/privascan/privascan/service/nats"
)

// AnalyzeWalletInput contains the input parameters for a background analysis.
type AnalyzeWalletInput struct {
	JobID  uuid.UUID `json:"job_id"`
	Wallet string    `json:"wallet"`
	Email  *string   `json:"email,omitempty"`
}

// AnalyzeWalletResult contains the outcome of a background analysis.
type AnalyzeWalletResult struct {
	JobID        uuid.UUID `json:"job_id"`
	Wallet       string    `json:"wallet"`
	PrivacyScore int       `json:"privacy_score"`
	Tier         string    `json:"tier"`
	EmailSent    bool      `json:"email_sent"`
}

// MarkJobInput identifies a job for a status transition.
type MarkJobInput struct {
	JobID uuid.UUID `json:"job_id"`
	Error string    `json:"error,omitempty"`
}

// RunAnalysisInput contains parameters for the RunAnalysis activity.
type RunAnalysisInput struct {
	Wallet string `json:"wallet"`
}

// RunAnalysisResult carries the completed analysis between activities.
type RunAnalysisResult struct {
	Analysis *analysis.WalletAnalysis `json:"analysis"`
}

// SaveReportInput contains parameters for the SaveReport activity.
type SaveReportInput struct {
	Analysis *analysis.WalletAnalysis `json:"analysis"`
}

// SendReportEmailInput contains parameters for the SendReportEmail activity.
type SendReportEmailInput struct {
	Email    string                   `json:"email"`
	Analysis *analysis.WalletAnalysis `json:"analysis"`
}

// SendReportEmailResult reports whether the email was actually sent.
type SendReportEmailResult struct {
	Sent bool `json:"sent"`
}

// CleanupResult reports what the retention sweep removed.
type CleanupResult struct {
	ReportsDeleted     int64 `json:"reports_deleted"`
	JobsDeleted        int64 `json:"jobs_deleted"`
	EmailLimitsDeleted int64 `json:"email_limits_deleted"`
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, jobErr *string) error
	SaveReport(ctx context.Context, wallet string, privacyScore int, analysis []byte, retention time.Duration) (*db.Report, error)
	RecordEmailSend(ctx context.Context, email string, window time.Duration) (bool, error)
	DeleteExpiredReports(ctx context.Context) (int64, error)
	DeleteJobsOlderThan(ctx context.Context, before time.Time) (int64, error)
	DeleteStaleEmailLimits(ctx context.Context, before time.Time) (int64, error)
}

// AnalyzerInterface defines the analysis operation needed by activities.
type AnalyzerInterface interface {
	Analyze(ctx context.Context, wallet string) (*analysis.WalletAnalysis, error)
}

// ReportCacheInterface defines the report cache operations needed by activities.
type ReportCacheInterface interface {
	Put(ctx context.Context, result *analysis.WalletAnalysis) error
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishAnalysis(ctx context.Context, event *natspkg.AnalysisEvent) error
}

// EmailSenderInterface defines the email delivery operation needed by activities.
type EmailSenderInterface interface {
	SendReport(ctx context.Context, to string, result *analysis.WalletAnalysis) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	store           StoreInterface
	analyzer        AnalyzerInterface
	reportCache     ReportCacheInterface
	publisher       PublisherInterface
	emailSender     EmailSenderInterface
	reportRetention time.Duration
	emailRateWindow time.Duration
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// reportCache, publisher, and emailSender may be nil to disable those steps.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	store StoreInterface,
	analyzer AnalyzerInterface,
	reportCache ReportCacheInterface,
	publisher PublisherInterface,
	emailSender EmailSenderInterface,
	reportRetention time.Duration,
	emailRateWindow time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:           store,
		analyzer:        analyzer,
		reportCache:     reportCache,
		publisher:       publisher,
		emailSender:     emailSender,
		reportRetention: reportRetention,
		emailRateWindow: emailRateWindow,
		metrics:         m,
		logger:          logger,
	}
}

// MarkJobProcessing transitions a job to processing.
func (a *Activities) MarkJobProcessing(ctx context.Context, input MarkJobInput) error {
	return a.store.UpdateJobStatus(ctx, input.JobID, db.JobStatusProcessing, nil)
}

// MarkJobCompleted transitions a job to completed.
func (a *Activities) MarkJobCompleted(ctx context.Context, input MarkJobInput) error {
	return a.store.UpdateJobStatus(ctx, input.JobID, db.JobStatusCompleted, nil)
}

// MarkJobFailed transitions a job to failed, recording the error message.
func (a *Activities) MarkJobFailed(ctx context.Context, input MarkJobInput) error {
	msg := input.Error
	return a.store.UpdateJobStatus(ctx, input.JobID, db.JobStatusFailed, &msg)
}

// RunAnalysis executes the full analysis pipeline for a wallet.
func (a *Activities) RunAnalysis(ctx context.Context, input RunAnalysisInput) (*RunAnalysisResult, error) {
	result, err := a.analyzer.Analyze(ctx, input.Wallet)
	if err != nil {
		return nil, fmt.Errorf("analysis failed for %s: %w", input.Wallet, err)
	}
	return &RunAnalysisResult{Analysis: result}, nil
}

// SaveReport persists the analysis to Postgres and warms the report cache.
// A cache write failure is logged but does not fail the activity; the durable
// copy is the database row.
func (a *Activities) SaveReport(ctx context.Context, input SaveReportInput) error {
	data, err := json.Marshal(input.Analysis)
	if err != nil {
		return fmt.Errorf("failed to serialize analysis: %w", err)
	}

	_, err = a.store.SaveReport(ctx, input.Analysis.Wallet, input.Analysis.PrivacyScore, data, a.reportRetention)
	if err != nil {
		return fmt.Errorf("failed to persist report: %w", err)
	}

	if a.reportCache != nil {
		if err := a.reportCache.Put(ctx, input.Analysis); err != nil {
			a.logger.Warn("failed to warm report cache",
				"wallet", input.Analysis.Wallet,
				"error", err,
			)
		}
	}

	a.logger.Info("report saved",
		"wallet", input.Analysis.Wallet,
		"privacy_score", input.Analysis.PrivacyScore,
	)
	return nil
}

// PublishAnalysisEvent publishes the completed analysis to NATS.
func (a *Activities) PublishAnalysisEvent(ctx context.Context, input SaveReportInput) error {
	if a.publisher == nil {
		return nil
	}
	event := natspkg.FromWalletAnalysis(input.Analysis)
	if err := a.publisher.PublishAnalysis(ctx, event); err != nil {
		return fmt.Errorf("failed to publish analysis event: %w", err)
	}
	return nil
}

// SendReportEmail delivers the report to the requester, subject to the
// per-address rate limit. Returns Sent=false when the limit suppressed the
// send or no sender is configured.
func (a *Activities) SendReportEmail(ctx context.Context, input SendReportEmailInput) (*SendReportEmailResult, error) {
	if a.emailSender == nil {
		return &SendReportEmailResult{Sent: false}, nil
	}

	allowed, err := a.store.RecordEmailSend(ctx, input.Email, a.emailRateWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to check email rate limit: %w", err)
	}
	if !allowed {
		a.logger.Info("email rate limit reached, skipping report email",
			"to", input.Email,
			"wallet", input.Analysis.Wallet,
		)
		return &SendReportEmailResult{Sent: false}, nil
	}

	if err := a.emailSender.SendReport(ctx, input.Email, input.Analysis); err != nil {
		return nil, fmt.Errorf("failed to send report email: %w", err)
	}
	return &SendReportEmailResult{Sent: true}, nil
}

// CleanupExpired removes expired reports, stale terminal jobs, and email
// rate-limit rows whose window has passed.
func (a *Activities) CleanupExpired(ctx context.Context) (*CleanupResult, error) {
	reports, err := a.store.DeleteExpiredReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired reports: %w", err)
	}

	jobs, err := a.store.DeleteJobsOlderThan(ctx, time.Now().Add(-a.reportRetention))
	if err != nil {
		return nil, fmt.Errorf("failed to delete old jobs: %w", err)
	}

	limits, err := a.store.DeleteStaleEmailLimits(ctx, time.Now().Add(-a.emailRateWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to delete stale email limits: %w", err)
	}

	a.logger.Info("retention cleanup complete",
		"reports_deleted", reports,
		"jobs_deleted", jobs,
		"email_limits_deleted", limits,
	)
	return &CleanupResult{ReportsDeleted: reports, JobsDeleted: jobs, EmailLimitsDeleted: limits}, nil
}
