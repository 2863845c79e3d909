package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/privascan/privascan/service/analysis"
	"github.com/privascan/privascan/service/db"
	natspkg "github.com/privascan/privascan/service/nats"
)

// Mock Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, jobErr *string) error {
	args := m.Called(ctx, id, status, jobErr)
	return args.Error(0)
}

func (m *MockStore) SaveReport(ctx context.Context, wallet string, privacyScore int, analysisData []byte, retention time.Duration) (*db.Report, error) {
	args := m.Called(ctx, wallet, privacyScore, analysisData, retention)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Report), args.Error(1)
}

func (m *MockStore) RecordEmailSend(ctx context.Context, email string, window time.Duration) (bool, error) {
	args := m.Called(ctx, email, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) DeleteExpiredReports(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) DeleteJobsOlderThan(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) DeleteStaleEmailLimits(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// Mock Analyzer
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, wallet string) (*analysis.WalletAnalysis, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.WalletAnalysis), args.Error(1)
}

// Mock Report Cache
type MockReportCache struct {
	mock.Mock
}

func (m *MockReportCache) Put(ctx context.Context, result *analysis.WalletAnalysis) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

// Mock Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishAnalysis(ctx context.Context, event *natspkg.AnalysisEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// Mock Email Sender
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendReport(ctx context.Context, to string, result *analysis.WalletAnalysis) error {
	args := m.Called(ctx, to, result)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleAnalysis(wallet string) *analysis.WalletAnalysis {
	return &analysis.WalletAnalysis{
		Wallet:         wallet,
		PrivacyScore:   94,
		ComplianceTier: analysis.TierLowRisk,
		LeakageVectors: []analysis.LeakageVector{
			{Category: analysis.CategoryCEXExposure, Severity: analysis.SeverityMedium, Score: 20},
		},
		Metadata: analysis.Metadata{
			AnalyzedAt:       time.Now(),
			TransactionCount: 1,
			DataSource:       analysis.DataSourceRPC,
		},
	}
}

func TestActivities_MarkJobTransitions(t *testing.T) {
	jobID := uuid.New()

	t.Run("processing", func(t *testing.T) {
		store := &MockStore{}
		store.On("UpdateJobStatus", mock.Anything, jobID, db.JobStatusProcessing, (*string)(nil)).Return(nil)
		a := NewActivities(store, nil, nil, nil, nil, time.Hour, time.Hour, nil, testLogger())

		err := a.MarkJobProcessing(context.Background(), MarkJobInput{JobID: jobID})

		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("completed", func(t *testing.T) {
		store := &MockStore{}
		store.On("UpdateJobStatus", mock.Anything, jobID, db.JobStatusCompleted, (*string)(nil)).Return(nil)
		a := NewActivities(store, nil, nil, nil, nil, time.Hour, time.Hour, nil, testLogger())

		err := a.MarkJobCompleted(context.Background(), MarkJobInput{JobID: jobID})

		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("failed records the error message", func(t *testing.T) {
		store := &MockStore{}
		store.On("UpdateJobStatus", mock.Anything, jobID, db.JobStatusFailed, mock.MatchedBy(func(msg *string) bool {
			return msg != nil && *msg == "analysis failed: boom"
		})).Return(nil)
		a := NewActivities(store, nil, nil, nil, nil, time.Hour, time.Hour, nil, testLogger())

		err := a.MarkJobFailed(context.Background(), MarkJobInput{JobID: jobID, Error: "analysis failed: boom"})

		require.NoError(t, err)
		store.AssertExpectations(t)
	})
}

func TestActivities_RunAnalysis(t *testing.T) {
	wallet := "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

	t.Run("success", func(t *testing.T) {
		analyzer := &MockAnalyzer{}
		analyzer.On("Analyze", mock.Anything, wallet).Return(sampleAnalysis(wallet), nil)
		a := NewActivities(&MockStore{}, analyzer, nil, nil, nil, time.Hour, time.Hour, nil, testLogger())

		result, err := a.RunAnalysis(context.Background(), RunAnalysisInput{Wallet: wallet})

		require.NoError(t, err)
		assert.Equal(t, 94, result.Analysis.PrivacyScore)
		analyzer.AssertExpectations(t)
	})

	t.Run("analyzer error propagates", func(t *testing.T) {
		analyzer := &MockAnalyzer{}
		analyzer.On("Analyze", mock.Anything, wallet).Return(nil, errors.New("invalid wallet address"))
		a := NewActivities(&MockStore{}, analyzer, nil, nil, nil, time.Hour, time.Hour, nil, testLogger())

		_, err := a.RunAnalysis(context.Background(), RunAnalysisInput{Wallet: wallet})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "analysis failed")
	})
}

func TestActivities_SaveReport(t *testing.T) {
	wallet := "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	retention := 720 * time.Hour

	t.Run("persists and warms cache", func(t *testing.T) {
		store := &MockStore{}
		store.On("SaveReport", mock.Anything, wallet, 94, mock.Anything, retention).
			Return(&db.Report{Wallet: wallet, PrivacyScore: 94}, nil)
		cache := &MockReportCache{}
		cache.On("Put", mock.Anything, mock.Anything).Return(nil)
		a := NewActivities(store, nil, cache, nil, nil, retention, time.Hour, nil, testLogger())

		err := a.SaveReport(context.Background(), SaveReportInput{Analysis: sampleAnalysis(wallet)})

		require.NoError(t, err)
		store.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("cache failure is non-fatal", func(t *testing.T) {
		store := &MockStore{}
		store.On("SaveReport", mock.Anything, wallet, 94, mock.Anything, retention).
			Return(&db.Report{Wallet: wallet}, nil)
		cache := &MockReportCache{}
		cache.On("Put", mock.Anything, mock.Anything).Return(errors.New("nats unavailable"))
		a := NewActivities(store, nil, cache, nil, nil, retention, time.Hour, nil, testLogger())

		err := a.SaveReport(context.Background(), SaveReportInput{Analysis: sampleAnalysis(wallet)})

		assert.NoError(t, err)
	})

	t.Run("store failure is fatal", func(t *testing.T) {
		store := &MockStore{}
		store.On("SaveReport", mock.Anything, wallet, 94, mock.Anything, retention).
			Return(nil, errors.New("connection refused"))
		a := NewActivities(store, nil, nil, nil, nil, retention, time.Hour, nil, testLogger())

		err := a.SaveReport(context.Background(), SaveReportInput{Analysis: sampleAnalysis(wallet)})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to persist report")
	})

	t.Run("nil cache skips warming", func(t *testing.T) {
		store := &MockStore{}
		store.On("SaveReport", mock.Anything, wallet, 94, mock.Anything, retention).
			Return(&db.Report{Wallet: wallet}, nil)
		a := NewActivities(store, nil, nil, nil, nil, retention, time.Hour, nil, testLogger())

		assert.NoError(t, a.SaveReport(context.Background(), SaveReportInput{Analysis: sampleAnalysis(wallet)}))
	})
}

func TestActivities_PublishAnalysisEvent(t *testing.T) {
	wallet := "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

	t.Run("nil publisher is a no-op", func(t *testing.T) {
		a := NewActivities(&MockStore{}, nil, nil, nil, nil, time.Hour, time.Hour, nil, testLogger())

		assert.NoError(t, a.PublishAnalysisEvent(context.Background(), SaveReportInput{Analysis: sampleAnalysis(wallet)}))
	})

	t.Run("publishes the analysis summary", func(t *testing.T) {
		publisher := &MockPublisher{}
		publisher.On("PublishAnalysis", mock.Anything, mock.MatchedBy(func(event *natspkg.AnalysisEvent) bool {
			return event.Wallet == wallet &&
				event.PrivacyScore == 94 &&
				event.ComplianceTier == analysis.TierLowRisk &&
				event.VectorCount == 1
		})).Return(nil)
		a := NewActivities(&MockStore{}, nil, nil, publisher, nil, time.Hour, time.Hour, nil, testLogger())

		err := a.PublishAnalysisEvent(context.Background(), SaveReportInput{Analysis: sampleAnalysis(wallet)})

		require.NoError(t, err)
		publisher.AssertExpectations(t)
	})

	t.Run("publish failure propagates", func(t *testing.T) {
		publisher := &MockPublisher{}
		publisher.On("PublishAnalysis", mock.Anything, mock.Anything).Return(errors.New("stream not found"))
		a := NewActivities(&MockStore{}, nil, nil, publisher, nil, time.Hour, time.Hour, nil, testLogger())

		err := a.PublishAnalysisEvent(context.Background(), SaveReportInput{Analysis: sampleAnalysis(wallet)})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to publish analysis event")
	})
}

func TestActivities_SendReportEmail(t *testing.T) {
	wallet := "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	email := "user@example.com"
	window := 24 * time.Hour

	t.Run("nil sender reports not sent", func(t *testing.T) {
		a := NewActivities(&MockStore{}, nil, nil, nil, nil, time.Hour, window, nil, testLogger())

		result, err := a.SendReportEmail(context.Background(), SendReportEmailInput{Email: email, Analysis: sampleAnalysis(wallet)})

		require.NoError(t, err)
		assert.False(t, result.Sent)
	})

	t.Run("sends when the rate limit allows", func(t *testing.T) {
		store := &MockStore{}
		store.On("RecordEmailSend", mock.Anything, email, window).Return(true, nil)
		sender := &MockEmailSender{}
		sender.On("SendReport", mock.Anything, email, mock.Anything).Return(nil)
		a := NewActivities(store, nil, nil, nil, sender, time.Hour, window, nil, testLogger())

		result, err := a.SendReportEmail(context.Background(), SendReportEmailInput{Email: email, Analysis: sampleAnalysis(wallet)})

		require.NoError(t, err)
		assert.True(t, result.Sent)
		store.AssertExpectations(t)
		sender.AssertExpectations(t)
	})

	t.Run("suppressed by the rate limit", func(t *testing.T) {
		store := &MockStore{}
		store.On("RecordEmailSend", mock.Anything, email, window).Return(false, nil)
		sender := &MockEmailSender{}
		a := NewActivities(store, nil, nil, nil, sender, time.Hour, window, nil, testLogger())

		result, err := a.SendReportEmail(context.Background(), SendReportEmailInput{Email: email, Analysis: sampleAnalysis(wallet)})

		require.NoError(t, err)
		assert.False(t, result.Sent)
		sender.AssertNotCalled(t, "SendReport", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rate limit check failure propagates", func(t *testing.T) {
		store := &MockStore{}
		store.On("RecordEmailSend", mock.Anything, email, window).Return(false, errors.New("connection refused"))
		sender := &MockEmailSender{}
		a := NewActivities(store, nil, nil, nil, sender, time.Hour, window, nil, testLogger())

		_, err := a.SendReportEmail(context.Background(), SendReportEmailInput{Email: email, Analysis: sampleAnalysis(wallet)})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to check email rate limit")
	})

	t.Run("delivery failure propagates", func(t *testing.T) {
		store := &MockStore{}
		store.On("RecordEmailSend", mock.Anything, email, window).Return(true, nil)
		sender := &MockEmailSender{}
		sender.On("SendReport", mock.Anything, email, mock.Anything).Return(errors.New("resend returned 500"))
		a := NewActivities(store, nil, nil, nil, sender, time.Hour, window, nil, testLogger())

		_, err := a.SendReportEmail(context.Background(), SendReportEmailInput{Email: email, Analysis: sampleAnalysis(wallet)})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send report email")
	})
}

func TestActivities_CleanupExpired(t *testing.T) {
	retention := 720 * time.Hour

	t.Run("success", func(t *testing.T) {
		store := &MockStore{}
		store.On("DeleteExpiredReports", mock.Anything).Return(int64(3), nil)
		store.On("DeleteJobsOlderThan", mock.Anything, mock.MatchedBy(func(before time.Time) bool {
			// Cutoff is retention in the past, give or take scheduling slack.
			want := time.Now().Add(-retention)
			return before.Sub(want).Abs() < time.Minute
		})).Return(int64(7), nil)
		store.On("DeleteStaleEmailLimits", mock.Anything, mock.Anything).Return(int64(2), nil)
		a := NewActivities(store, nil, nil, nil, nil, retention, time.Hour, nil, testLogger())

		result, err := a.CleanupExpired(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(3), result.ReportsDeleted)
		assert.Equal(t, int64(7), result.JobsDeleted)
		assert.Equal(t, int64(2), result.EmailLimitsDeleted)
		store.AssertExpectations(t)
	})

	t.Run("report sweep failure propagates", func(t *testing.T) {
		store := &MockStore{}
		store.On("DeleteExpiredReports", mock.Anything).Return(int64(0), errors.New("connection refused"))
		a := NewActivities(store, nil, nil, nil, nil, retention, time.Hour, nil, testLogger())

		_, err := a.CleanupExpired(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to delete expired reports")
	})

	t.Run("job sweep failure propagates", func(t *testing.T) {
		store := &MockStore{}
		store.On("DeleteExpiredReports", mock.Anything).Return(int64(1), nil)
		store.On("DeleteJobsOlderThan", mock.Anything, mock.Anything).Return(int64(0), errors.New("connection refused"))
		a := NewActivities(store, nil, nil, nil, nil, retention, time.Hour, nil, testLogger())

		_, err := a.CleanupExpired(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to delete old jobs")
	})

	t.Run("email limit sweep failure propagates", func(t *testing.T) {
		store := &MockStore{}
		store.On("DeleteExpiredReports", mock.Anything).Return(int64(1), nil)
		store.On("DeleteJobsOlderThan", mock.Anything, mock.Anything).Return(int64(1), nil)
		store.On("DeleteStaleEmailLimits", mock.Anything, mock.Anything).Return(int64(0), errors.New("connection refused"))
		a := NewActivities(store, nil, nil, nil, nil, retention, time.Hour, nil, testLogger())

		_, err := a.CleanupExpired(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to delete stale email limits")
	})
}
