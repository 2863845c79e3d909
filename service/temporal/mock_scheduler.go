package temporal

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu       sync.Mutex
	started  []AnalyzeWalletInput
	startErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// StartAnalysis records that a workflow was started.
func (m *MockScheduler) StartAnalysis(ctx context.Context, jobID uuid.UUID, wallet string, email *string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return "", m.startErr
	}

	m.started = append(m.started, AnalyzeWalletInput{JobID: jobID, Wallet: wallet, Email: email})
	return analysisWorkflowID(jobID), nil
}

// SetStartError makes StartAnalysis return an error.
func (m *MockScheduler) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// StartedWorkflows returns the recorded workflow starts.
func (m *MockScheduler) StartedWorkflows() []AnalyzeWalletInput {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AnalyzeWalletInput, len(m.started))
	copy(out, m.started)
	return out
}

// StartedCount returns the number of started workflows.
func (m *MockScheduler) StartedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

// Reset clears recorded starts and errors.
func (m *MockScheduler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = nil
	m.startErr = nil
}
