package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/privascan/privascan/service/analysis"
)

// resendEndpoint is the Resend transactional email API.
const resendEndpoint = "https://api.resend.com/emails"

// EmailSender delivers a completed privacy report to an email address.
type EmailSender interface {
	SendReport(ctx context.Context, to string, result *analysis.WalletAnalysis) error
}

// ResendSender sends report emails through the Resend HTTP API.
type ResendSender struct {
	apiKey   string
	from     string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewResendSender creates a sender using the given API key and from address.
func NewResendSender(apiKey, from string, logger *slog.Logger) *ResendSender {
	return &ResendSender{
		apiKey:   apiKey,
		from:     from,
		endpoint: resendEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendReport delivers a summary of the analysis to the address.
func (s *ResendSender) SendReport(ctx context.Context, to string, result *analysis.WalletAnalysis) error {
	payload := resendRequest{
		From:    s.from,
		To:      []string{to},
		Subject: fmt.Sprintf("Privacy report for %s", shortWallet(result.Wallet)),
		HTML:    renderReportHTML(result),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("email provider returned %d: %s", resp.StatusCode, string(msg))
	}

	s.logger.Info("report email sent", "to", to, "wallet", result.Wallet)
	return nil
}

// renderReportHTML produces the email body. Intentionally plain markup so it
// renders everywhere.
func renderReportHTML(result *analysis.WalletAnalysis) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<h2>Wallet Privacy Report</h2>")
	fmt.Fprintf(&buf, "<p><strong>Wallet:</strong> %s</p>", result.Wallet)
	fmt.Fprintf(&buf, "<p><strong>Privacy score:</strong> %d / 100</p>", result.PrivacyScore)
	fmt.Fprintf(&buf, "<p><strong>Compliance tier:</strong> %s</p>", result.ComplianceTier)

	if len(result.Insights) > 0 {
		fmt.Fprintf(&buf, "<h3>Surveillance insights</h3><ul>")
		for _, in := range result.Insights {
			fmt.Fprintf(&buf, "<li>[%s] %s: %s</li>", in.PrivacyImpact, in.Label, in.Description)
		}
		fmt.Fprintf(&buf, "</ul>")
	}

	if len(result.LeakageVectors) > 0 {
		fmt.Fprintf(&buf, "<h3>Detected leakage</h3><ul>")
		for _, v := range result.LeakageVectors {
			fmt.Fprintf(&buf, "<li>[%s] %s: %s</li>", v.Severity, v.Category, v.Description)
		}
		fmt.Fprintf(&buf, "</ul>")
	}

	if len(result.Recommendations) > 0 {
		fmt.Fprintf(&buf, "<h3>Recommendations</h3><ul>")
		for _, r := range result.Recommendations {
			fmt.Fprintf(&buf, "<li>[%s] %s: %s</li>", r.Priority, r.Title, r.Description)
		}
		fmt.Fprintf(&buf, "</ul>")
	}

	return buf.String()
}

func shortWallet(wallet string) string {
	if len(wallet) <= 12 {
		return wallet
	}
	return wallet[:6] + "..." + wallet[len(wallet)-4:]
}

// NoopSender discards report emails. Used when no email provider is
// configured.
type NoopSender struct {
	logger *slog.Logger
}

// NewNoopSender creates a sender that logs and drops every email.
func NewNoopSender(logger *slog.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

func (s *NoopSender) SendReport(ctx context.Context, to string, result *analysis.WalletAnalysis) error {
	s.logger.Info("email delivery disabled, dropping report email",
		"to", to,
		"wallet", result.Wallet,
	)
	return nil
}
