// Package testutil provides hand-rolled mocks for the pipeline
// collaborators and helpers for creating trace fixtures.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/InfraSecConsult/nfconvert-go/internal/orchestrate"
	"github.com/InfraSecConsult/nfconvert-go/lib/model"
)

// MockSession records Stop calls.
type MockSession struct {
	mu          sync.Mutex
	StopCalls   int
	StopErr     error
	ScratchPath string
}

func (s *MockSession) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	return s.StopErr
}

// Stopped reports whether Stop was called at least once.
func (s *MockSession) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StopCalls > 0
}

// MockLauncher hands out MockSessions, creating the scratch directory
// like the real launcher does.
type MockLauncher struct {
	StartCalls int
	StartErr   error
	Sessions   []*MockSession
}

func (l *MockLauncher) Start(ctx context.Context, endpoint, scratchDir string) (orchestrate.Session, error) {
	l.StartCalls++
	if l.StartErr != nil {
		return nil, l.StartErr
	}
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, err
	}
	s := &MockSession{ScratchPath: scratchDir}
	l.Sessions = append(l.Sessions, s)
	return s, nil
}

// AllStopped reports whether every started session was stopped.
func (l *MockLauncher) AllStopped() bool {
	for _, s := range l.Sessions {
		if !s.Stopped() {
			return false
		}
	}
	return true
}

// MockTransmitter records transmitted traces and can fail on a chosen
// trace path.
type MockTransmitter struct {
	Transmitted []string
	FailOn      string
	Err         error
}

func (t *MockTransmitter) Transmit(ctx context.Context, tracePath, endpoint string) error {
	t.Transmitted = append(t.Transmitted, tracePath)
	if t.FailOn != "" && tracePath == t.FailOn && t.Err != nil {
		return t.Err
	}
	return nil
}

// MockNormalizer writes a marker flow file so output naming can be
// asserted, and records the scratch directories it read.
type MockNormalizer struct {
	Calls    []string
	Outputs  []string
	Err      error
	Contents string
}

func (n *MockNormalizer) Normalize(ctx context.Context, scratchDir, outPath string) error {
	n.Calls = append(n.Calls, scratchDir)
	if n.Err != nil {
		return n.Err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	contents := n.Contents
	if contents == "" {
		contents = "0 record\n"
	}
	if err := os.WriteFile(outPath, []byte(contents), 0o644); err != nil {
		return err
	}
	n.Outputs = append(n.Outputs, outPath)
	return nil
}

// MockRepository is a testify mock of the history repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) BeginBatch(batch *model.BatchRecord) (int64, error) {
	args := m.Called(batch)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) FinishBatch(id int64, status, failure string) error {
	return m.Called(id, status, failure).Error(0)
}

func (m *MockRepository) ListBatches() ([]*model.BatchRecord, error) {
	args := m.Called()
	return args.Get(0).([]*model.BatchRecord), args.Error(1)
}

func (m *MockRepository) AddUnit(unit *model.UnitRecord) error {
	return m.Called(unit).Error(0)
}

func (m *MockRepository) ListUnits(batchID int64) ([]*model.UnitRecord, error) {
	args := m.Called(batchID)
	return args.Get(0).([]*model.UnitRecord), args.Error(1)
}

func (m *MockRepository) Close() error {
	return m.Called().Error(0)
}
