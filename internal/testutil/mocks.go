package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// MockMetricsRecorder counts recorded metrics by label.
type MockMetricsRecorder struct {
	mu          sync.Mutex
	Validations map[string]int
	Diagnostics map[string]int // keyed "severity/code"
	Submissions map[string]int
}

var _ outbound.MetricsRecorder = (*MockMetricsRecorder)(nil)

func NewMockMetricsRecorder() *MockMetricsRecorder {
	return &MockMetricsRecorder{
		Validations: make(map[string]int),
		Diagnostics: make(map[string]int),
		Submissions: make(map[string]int),
	}
}

func (m *MockMetricsRecorder) RecordValidation(ctx context.Context, outcome string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Validations[outcome]++
}

func (m *MockMetricsRecorder) RecordDiagnostic(ctx context.Context, severity, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Diagnostics[severity+"/"+code]++
}

func (m *MockMetricsRecorder) RecordSubmission(ctx context.Context, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Submissions[status]++
}

// Count returns a snapshot value under the lock.
func (m *MockMetricsRecorder) Count(kind, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case "validation":
		return m.Validations[key]
	case "diagnostic":
		return m.Diagnostics[key]
	case "submission":
		return m.Submissions[key]
	}
	return 0
}

// MockFeedProber returns canned feed statuses and counts probes per feed.
type MockFeedProber struct {
	mu       sync.Mutex
	Statuses map[common.Address]*outbound.FeedStatus
	Errors   map[common.Address]error
	calls    map[common.Address]int
}

var _ outbound.FeedProber = (*MockFeedProber)(nil)

func NewMockFeedProber() *MockFeedProber {
	return &MockFeedProber{
		Statuses: make(map[common.Address]*outbound.FeedStatus),
		Errors:   make(map[common.Address]error),
		calls:    make(map[common.Address]int),
	}
}

func (m *MockFeedProber) Probe(ctx context.Context, feed common.Address) (*outbound.FeedStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[feed]++
	if err, ok := m.Errors[feed]; ok {
		return nil, err
	}
	status, ok := m.Statuses[feed]
	if !ok {
		return nil, fmt.Errorf("no status for feed %s", feed.Hex())
	}
	copied := *status
	return &copied, nil
}

// Calls returns how many times feed was probed.
func (m *MockFeedProber) Calls(feed common.Address) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[feed]
}
