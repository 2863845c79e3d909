package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privascan/privascan/service/analysis"
	"github.com/privascan/privascan/service/db"
	"github.com/privascan/privascan/service/kv"
	"github.com/privascan/privascan/service/resilience"
	"github.com/privascan/privascan/service/temporal"
)

const testWallet = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAnalyzer backs the resilient analyzer in score handler tests.
type stubAnalyzer struct {
	result *analysis.WalletAnalysis
	err    error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, wallet string) (*analysis.WalletAnalysis, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// newCreateMux mounts the create handler under its route pattern.
func newCreateMux(store *db.Store, scheduler temporal.Scheduler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/analyses", handleCreateAnalysis(store, scheduler, testLogger()))
	return mux
}

// newGetMux mounts the report handler under its route pattern.
func newGetMux(store *db.Store, cache kv.ReportCache) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/analyses/{wallet}", handleGetAnalysis(store, cache, analysis.DefaultKnownAddresses(), testLogger()))
	return mux
}

func postAnalysis(t *testing.T, mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateAnalysisValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", "{not json", "invalid request body"},
		{"missing wallet", `{}`, "address is empty"},
		{"bad wallet characters", `{"wallet": "0xDEADBEEF"}`, "non-base58"},
		{"bad email", fmt.Sprintf(`{"wallet": %q, "email": "not-an-email"}`, testWallet), "invalid email address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newCreateMux(nil, temporal.NewMockScheduler())

			rec := postAnalysis(t, mux, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeBody(t, rec)["error"], tt.want)
		})
	}
}

func TestCreateAnalysisQueuesJob(t *testing.T) {
	db.SkipIfNoTestDB(t)
	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	scheduler := temporal.NewMockScheduler()
	mux := newCreateMux(store.Store, scheduler)

	rec := postAnalysis(t, mux, fmt.Sprintf(`{"wallet": %q, "email": "user@example.com"}`, testWallet))

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, testWallet, body["wallet"])
	assert.Equal(t, db.JobStatusPending, body["status"])
	assert.NotEmpty(t, body["job_id"])
	assert.NotEmpty(t, body["workflow_id"])

	require.Equal(t, 1, scheduler.StartedCount())
	started := scheduler.StartedWorkflows()[0]
	assert.Equal(t, testWallet, started.Wallet)
	require.NotNil(t, started.Email)
	assert.Equal(t, "user@example.com", *started.Email)
}

func TestCreateAnalysisSchedulerFailure(t *testing.T) {
	db.SkipIfNoTestDB(t)
	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	scheduler := temporal.NewMockScheduler()
	scheduler.SetStartError(errors.New("temporal unreachable"))
	mux := newCreateMux(store.Store, scheduler)

	rec := postAnalysis(t, mux, fmt.Sprintf(`{"wallet": %q}`, testWallet))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// The queued job must be marked failed, not left dangling in pending.
	job, err := store.GetLatestJobByWallet(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, db.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "temporal unreachable")
}

func TestCreateAnalysisEmailRateLimited(t *testing.T) {
	db.SkipIfNoTestDB(t)
	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	// Simulate a report sent moments ago.
	recorded, err := store.RecordEmailSend(context.Background(), "user@example.com", emailRateWindow)
	require.NoError(t, err)
	require.True(t, recorded)

	scheduler := temporal.NewMockScheduler()
	mux := newCreateMux(store.Store, scheduler)

	rec := postAnalysis(t, mux, fmt.Sprintf(`{"wallet": %q, "email": "user@example.com"}`, testWallet))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, scheduler.StartedCount())
}

func TestGetAnalysisInvalidWallet(t *testing.T) {
	mux := newGetMux(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/0xDEADBEEF", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAnalysisFromCache(t *testing.T) {
	cache := kv.NewMockReportCache()
	result := &analysis.WalletAnalysis{
		Wallet:         testWallet,
		PrivacyScore:   94,
		ComplianceTier: analysis.TierLowRisk,
		Metadata: analysis.Metadata{
			Transactions: []analysis.TransactionNode{
				{Signature: "sig1", Counterparties: []string{"PeerA"}},
			},
		},
	}
	require.NoError(t, cache.Put(context.Background(), result))

	mux := newGetMux(nil, cache)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+testWallet, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	stored := body["analysis"].(map[string]interface{})
	assert.Equal(t, testWallet, stored["wallet"])
	assert.Equal(t, float64(94), stored["privacyScore"])

	graph := body["graph"].(map[string]interface{})
	nodes := graph["nodes"].([]interface{})
	assert.Len(t, nodes, 2, "central node plus one counterparty")
}

func TestGetAnalysisFromDatabaseBackfillsCache(t *testing.T) {
	db.SkipIfNoTestDB(t)
	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	result := &analysis.WalletAnalysis{
		Wallet:         testWallet,
		PrivacyScore:   70,
		ComplianceTier: analysis.TierMediumRisk,
	}
	data, err := json.Marshal(result)
	require.NoError(t, err)
	_, err = store.SaveReport(context.Background(), testWallet, 70, data, time.Hour)
	require.NoError(t, err)

	cache := kv.NewMockReportCache()
	mux := newGetMux(store.Store, cache)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+testWallet, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	stored := body["analysis"].(map[string]interface{})
	assert.Equal(t, float64(70), stored["privacyScore"])

	// The cache serves the next read.
	cached, err := cache.Get(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, 70, cached.PrivacyScore)
}

func TestGetAnalysisFallsBackToJobStatus(t *testing.T) {
	db.SkipIfNoTestDB(t)
	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	_, err := store.CreateJob(context.Background(), testWallet, nil)
	require.NoError(t, err)

	mux := newGetMux(store.Store, kv.NewMockReportCache())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+testWallet, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, testWallet, body["wallet"])
	assert.Equal(t, db.JobStatusPending, body["status"])
}

func TestGetAnalysisNotFound(t *testing.T) {
	db.SkipIfNoTestDB(t)
	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	mux := newGetMux(store.Store, kv.NewMockReportCache())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+testWallet, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func newScoreMux(inner resilience.Analyzer) (*http.ServeMux, *resilience.ResilientAnalyzer) {
	analyzer := resilience.NewResilientAnalyzer(inner, time.Hour, nil, testLogger())
	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/score/{wallet}", handleGetScore(analyzer, testLogger()))
	return mux, analyzer
}

func TestGetScore(t *testing.T) {
	analyzedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inner := &stubAnalyzer{
		result: &analysis.WalletAnalysis{
			Wallet:         testWallet,
			PrivacyScore:   88,
			ComplianceTier: analysis.TierLowRisk,
			Metadata: analysis.Metadata{
				AnalyzedAt: analyzedAt,
				DataSource: analysis.DataSourceRPC,
			},
		},
	}
	mux, analyzer := newScoreMux(inner)
	defer analyzer.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/score/"+testWallet, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, testWallet, body["wallet"])
	assert.Equal(t, float64(88), body["privacyScore"])
	assert.Equal(t, string(analysis.TierLowRisk), body["complianceTier"])
	assert.Equal(t, analysis.DataSourceRPC, body["dataSource"])
}

func TestGetScoreInvalidWallet(t *testing.T) {
	inner := &stubAnalyzer{
		err: fmt.Errorf("%w: address contains non-base58 characters", analysis.ErrInvalidAddress),
	}
	mux, analyzer := newScoreMux(inner)
	defer analyzer.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/score/0xDEADBEEF", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetScoreInternalError(t *testing.T) {
	inner := &stubAnalyzer{err: errors.New("engine exploded")}
	mux, analyzer := newScoreMux(inner)
	defer analyzer.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/score/"+testWallet, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "internal server error", body["error"])
}
