package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privascan/privascan/service/analysis"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleResult() *analysis.WalletAnalysis {
	return &analysis.WalletAnalysis{
		Wallet:         "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
		PrivacyScore:   72,
		ComplianceTier: analysis.TierMediumRisk,
		LeakageVectors: []analysis.LeakageVector{
			{
				Category:    analysis.CategoryCEXExposure,
				Severity:    analysis.SeverityMedium,
				Description: "Detected 1 direct interactions with known exchange addresses.",
			},
		},
		Insights: []analysis.Insight{
			{
				Type:          "financial",
				Label:         "High Activity Profile",
				Description:   "A window of 9 recent transactions gives observers a dense behavioral sample of this wallet.",
				PrivacyImpact: "MEDIUM",
			},
		},
		Recommendations: []analysis.Recommendation{
			{Priority: analysis.PriorityHigh, Title: "Hide your exchange links", Description: "Use a cleaning wallet."},
		},
	}
}

func TestResendSenderSendReport(t *testing.T) {
	var got resendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewResendSender("test-key", "reports@privascan.io", testLogger())
	sender.endpoint = srv.URL

	err := sender.SendReport(context.Background(), "user@example.com", sampleResult())

	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "reports@privascan.io", got.From)
	assert.Equal(t, []string{"user@example.com"}, got.To)
	assert.Contains(t, got.Subject, "7xKXtg")
	assert.Contains(t, got.HTML, "72 / 100")
	assert.Contains(t, got.HTML, "MEDIUM_RISK")
	assert.Contains(t, got.HTML, "High Activity Profile")
	assert.Contains(t, got.HTML, "Hide your exchange links")
}

func TestResendSenderProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid from address"}`))
	}))
	defer srv.Close()

	sender := NewResendSender("test-key", "bad-from", testLogger())
	sender.endpoint = srv.URL

	err := sender.SendReport(context.Background(), "user@example.com", sampleResult())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "invalid from address")
}

func TestRenderReportHTML(t *testing.T) {
	html := renderReportHTML(sampleResult())

	assert.Contains(t, html, "<h2>Wallet Privacy Report</h2>")
	assert.Contains(t, html, "Surveillance insights")
	assert.Contains(t, html, "High Activity Profile")
	assert.Contains(t, html, "Detected leakage")
	assert.Contains(t, html, "CEX_EXPOSURE")
	assert.Contains(t, html, "Recommendations")

	// Sections are omitted when empty.
	minimal := renderReportHTML(&analysis.WalletAnalysis{Wallet: "w", PrivacyScore: 100})
	assert.NotContains(t, minimal, "Surveillance insights")
	assert.NotContains(t, minimal, "Detected leakage")
	assert.NotContains(t, minimal, "Recommendations")
}

func TestShortWallet(t *testing.T) {
	assert.Equal(t, "7xKXtg...gAsU", shortWallet("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"))
	assert.Equal(t, "shortwallet", shortWallet("shortwallet"))
}

func TestNoopSender(t *testing.T) {
	sender := NewNoopSender(testLogger())

	assert.NoError(t, sender.SendReport(context.Background(), "user@example.com", sampleResult()))
}
