package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/privascan/privascan/service/analysis"
	"github.com/privascan/privascan/service/db"
	"github.com/privascan/privascan/service/kv"
	"github.com/privascan/privascan/service/resilience"
	"github.com/privascan/privascan/service/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB, plenty for an analysis request

	// emailRateWindow is the minimum spacing between report emails per address.
	emailRateWindow = 24 * time.Hour
)

// handleCreateAnalysis returns a handler that queues a background analysis.
// POST /api/v1/analyses
func handleCreateAnalysis(store *db.Store, scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Wallet string `json:"wallet"`
			Email  string `json:"email,omitempty"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode analysis request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := analysis.ValidateAddress(req.Wallet); err != nil {
			logger.Debug("invalid wallet address", "wallet", req.Wallet, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var email *string
		if req.Email != "" {
			if _, err := mail.ParseAddress(req.Email); err != nil {
				writeError(w, "invalid email address", http.StatusBadRequest)
				return
			}

			allowed, err := store.EmailSendAllowed(r.Context(), req.Email, emailRateWindow)
			if err != nil {
				logger.Error("failed to check email rate limit", "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				writeError(w, "email report already requested in the last 24 hours", http.StatusTooManyRequests)
				return
			}
			email = &req.Email
		}

		job, err := store.CreateJob(r.Context(), req.Wallet, email)
		if err != nil {
			logger.Error("failed to create analysis job", "wallet", req.Wallet, "error", err)
			writeError(w, "failed to queue analysis", http.StatusInternalServerError)
			return
		}

		workflowID, err := scheduler.StartAnalysis(r.Context(), job.ID, job.Wallet, job.Email)
		if err != nil {
			logger.Error("failed to start analysis workflow", "job_id", job.ID, "error", err)
			msg := fmt.Sprintf("failed to start analysis workflow: %v", err)
			if updateErr := store.UpdateJobStatus(r.Context(), job.ID, db.JobStatusFailed, &msg); updateErr != nil {
				logger.Error("failed to mark job failed", "job_id", job.ID, "error", updateErr)
			}
			writeError(w, "failed to start analysis", http.StatusInternalServerError)
			return
		}

		logger.Info("analysis job queued",
			"job_id", job.ID,
			"wallet", job.Wallet,
			"workflow_id", workflowID,
		)

		writeJSON(w, map[string]interface{}{
			"job_id":      job.ID,
			"wallet":      job.Wallet,
			"status":      job.Status,
			"workflow_id": workflowID,
		}, http.StatusAccepted)
	})
}

// handleGetAnalysis returns a handler that serves the latest report for a
// wallet. Resolution order: report cache, then the reports table (backfilling
// the cache), then the latest job status, then 404.
// GET /api/v1/analyses/{wallet}
func handleGetAnalysis(store *db.Store, reportCache kv.ReportCache, known *analysis.KnownAddresses, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.PathValue("wallet")

		if err := analysis.ValidateAddress(wallet); err != nil {
			logger.Debug("invalid wallet address", "wallet", wallet, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if reportCache != nil {
			cached, err := reportCache.Get(r.Context(), wallet)
			if err == nil {
				logger.Debug("report served from cache", "wallet", wallet)
				writeJSON(w, reportResponse(cached, known), http.StatusOK)
				return
			}
			if !errors.Is(err, kv.ErrNotFound) {
				logger.Warn("report cache read failed", "wallet", wallet, "error", err)
			}
		}

		report, err := store.GetReport(r.Context(), wallet)
		if err == nil {
			var result analysis.WalletAnalysis
			if err := json.Unmarshal(report.Analysis, &result); err != nil {
				logger.Error("failed to decode stored report", "wallet", wallet, "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if reportCache != nil {
				if err := reportCache.Put(r.Context(), &result); err != nil {
					logger.Warn("failed to backfill report cache", "wallet", wallet, "error", err)
				}
			}
			writeJSON(w, reportResponse(&result, known), http.StatusOK)
			return
		}
		if !errors.Is(err, db.ErrNotFound) {
			logger.Error("failed to load report", "wallet", wallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		// No report yet; surface the job status if one exists.
		job, err := store.GetLatestJobByWallet(r.Context(), wallet)
		if err == nil {
			resp := map[string]interface{}{
				"wallet": wallet,
				"status": job.Status,
			}
			if job.Error != nil {
				resp["error"] = *job.Error
			}
			writeJSON(w, resp, http.StatusOK)
			return
		}
		if !errors.Is(err, db.ErrNotFound) {
			logger.Error("failed to load job", "wallet", wallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeError(w, "no analysis found for wallet", http.StatusNotFound)
	})
}

// handleGetScore returns a handler serving the lightweight synchronous score.
// The resilient analyzer absorbs caching and request deduplication.
// GET /api/v1/score/{wallet}
func handleGetScore(analyzer *resilience.ResilientAnalyzer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.PathValue("wallet")

		result, err := analyzer.Analyze(r.Context(), wallet)
		if err != nil {
			if errors.Is(err, analysis.ErrInvalidAddress) {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.Error("score analysis failed", "wallet", wallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"wallet":         result.Wallet,
			"privacyScore":   result.PrivacyScore,
			"complianceTier": result.ComplianceTier,
			"lastAnalyzed":   result.Metadata.AnalyzedAt,
			"dataSource":     result.Metadata.DataSource,
		}, http.StatusOK)
	})
}

// reportResponse attaches the counterparty graph to a stored analysis.
func reportResponse(result *analysis.WalletAnalysis, known *analysis.KnownAddresses) map[string]interface{} {
	return map[string]interface{}{
		"analysis": result,
		"graph":    analysis.BuildGraph(result.Wallet, result.Metadata.Transactions, known),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
