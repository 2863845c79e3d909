package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/privascan/privascan/service/metrics"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Job statuses. A job moves pending -> processing -> completed | failed.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// m may be nil to disable metrics recording.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Job represents one queued analysis request.
type Job struct {
	ID        uuid.UUID
	Wallet    string
	Email     *string // nil when no report delivery was requested
	Status    string
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Report is a persisted analysis result for a wallet.
type Report struct {
	Wallet       string
	PrivacyScore int
	Analysis     []byte // serialized WalletAnalysis
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// CreateJob inserts a new pending analysis job and returns it.
func (s *Store) CreateJob(ctx context.Context, wallet string, email *string) (*Job, error) {
	start := time.Now()
	job := &Job{
		ID:     uuid.New(),
		Wallet: wallet,
		Email:  email,
		Status: JobStatusPending,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, wallet, email, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		job.ID, job.Wallet, job.Email, job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	s.record("insert", "jobs", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	start := time.Now()
	job := &Job{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, wallet, email, status, error, created_at, updated_at
		FROM jobs WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.Wallet, &job.Email, &job.Status, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	s.record("select", "jobs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetLatestJobByWallet retrieves the most recent job for a wallet.
func (s *Store) GetLatestJobByWallet(ctx context.Context, wallet string) (*Job, error) {
	start := time.Now()
	job := &Job{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, wallet, email, status, error, created_at, updated_at
		FROM jobs WHERE wallet = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		wallet,
	).Scan(&job.ID, &job.Wallet, &job.Email, &job.Status, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	s.record("select", "jobs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}
	return job, nil
}

// UpdateJobStatus transitions a job to the given status. jobErr is stored for
// failed jobs and cleared otherwise.
func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, jobErr *string) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`,
		id, status, jobErr,
	)
	s.record("update", "jobs", start, err)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveReport upserts the analysis report for a wallet. A re-analysis replaces
// the previous report and resets its expiry.
func (s *Store) SaveReport(ctx context.Context, wallet string, privacyScore int, analysis []byte, retention time.Duration) (*Report, error) {
	start := time.Now()
	report := &Report{
		Wallet:       wallet,
		PrivacyScore: privacyScore,
		Analysis:     analysis,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO reports (wallet, privacy_score, analysis, expires_at)
		VALUES ($1, $2, $3, now() + $4)
		ON CONFLICT (wallet) DO UPDATE SET
			privacy_score = EXCLUDED.privacy_score,
			analysis = EXCLUDED.analysis,
			created_at = now(),
			expires_at = EXCLUDED.expires_at
		RETURNING created_at, expires_at`,
		wallet, privacyScore, analysis, retention,
	).Scan(&report.CreatedAt, &report.ExpiresAt)
	s.record("upsert", "reports", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}
	return report, nil
}

// GetReport retrieves the unexpired report for a wallet.
func (s *Store) GetReport(ctx context.Context, wallet string) (*Report, error) {
	start := time.Now()
	report := &Report{}
	err := s.pool.QueryRow(ctx, `
		SELECT wallet, privacy_score, analysis, created_at, expires_at
		FROM reports
		WHERE wallet = $1 AND expires_at > now()`,
		wallet,
	).Scan(&report.Wallet, &report.PrivacyScore, &report.Analysis, &report.CreatedAt, &report.ExpiresAt)
	s.record("select", "reports", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// DeleteExpiredReports removes reports past their expiry and returns how many
// were deleted.
func (s *Store) DeleteExpiredReports(ctx context.Context) (int64, error) {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM reports WHERE expires_at <= now()`)
	s.record("delete", "reports", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reports: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteJobsOlderThan removes terminal jobs older than the given time and
// returns how many were deleted. Pending and processing jobs are kept.
func (s *Store) DeleteJobsOlderThan(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE updated_at < $1 AND status IN ($2, $3)`,
		before, JobStatusCompleted, JobStatusFailed,
	)
	s.record("delete", "jobs", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteStaleEmailLimits removes rate-limit rows whose window has long passed
// and returns how many were deleted.
func (s *Store) DeleteStaleEmailLimits(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM email_limits WHERE last_sent_at < $1`, before)
	s.record("delete", "email_limits", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale email limits: %w", err)
	}
	return tag.RowsAffected(), nil
}

// EmailSendAllowed reports whether the address is outside its rate window.
// Read-only; RecordEmailSend performs the authoritative check-and-record at
// delivery time.
func (s *Store) EmailSendAllowed(ctx context.Context, email string, window time.Duration) (bool, error) {
	start := time.Now()
	var lastSent time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT last_sent_at FROM email_limits WHERE email = $1`,
		email,
	).Scan(&lastSent)
	s.record("select", "email_limits", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check email rate limit: %w", err)
	}
	return time.Since(lastSent) >= window, nil
}

// RecordEmailSend records a report delivery to the address, enforcing one
// send per rate window. Returns false without recording when the address has
// already been sent a report inside the window.
func (s *Store) RecordEmailSend(ctx context.Context, email string, window time.Duration) (bool, error) {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO email_limits (email, last_sent_at)
		VALUES ($1, now())
		ON CONFLICT (email) DO UPDATE SET last_sent_at = now()
		WHERE email_limits.last_sent_at < now() - $2`,
		email, window,
	)
	s.record("upsert", "email_limits", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to record email send: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) record(operation, table string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
	}
}
