package kv

import (
	"context"
	"sync"

	"github.com/privascan/privascan/service/analysis"
)

// MockReportCache is an in-memory ReportCache for testing.
type MockReportCache struct {
	mu      sync.RWMutex
	reports map[string]*analysis.WalletAnalysis
	getErr  error
	putErr  error
}

// NewMockReportCache creates a new mock report cache.
func NewMockReportCache() *MockReportCache {
	return &MockReportCache{
		reports: make(map[string]*analysis.WalletAnalysis),
	}
}

func (m *MockReportCache) Get(ctx context.Context, wallet string) (*analysis.WalletAnalysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	result, ok := m.reports[wallet]
	if !ok {
		return nil, ErrNotFound
	}
	return result, nil
}

func (m *MockReportCache) Put(ctx context.Context, result *analysis.WalletAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.reports[result.Wallet] = result
	return nil
}

func (m *MockReportCache) Delete(ctx context.Context, wallet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reports, wallet)
	return nil
}

func (m *MockReportCache) Close() error { return nil }

// SetGetError configures Get to fail.
func (m *MockReportCache) SetGetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// SetPutError configures Put to fail.
func (m *MockReportCache) SetPutError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}
