package provider

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/models"
)

// Mock is an in-memory Driver used by unit tests for the session manager
// and session monitor, so they can be exercised without a live Docker
// daemon or Kubernetes cluster.
type Mock struct {
	name models.ProviderKind

	mu       sync.Mutex
	sessions map[string]*models.SessionInfo

	// FailCreate, when set, makes Create return this error instead of
	// succeeding — used to exercise the "propagate provider failures
	// without Store writes" rollback path.
	FailCreate error
}

func NewMock(name models.ProviderKind) *Mock {
	return &Mock{name: name, sessions: make(map[string]*models.SessionInfo)}
}

func (m *Mock) Name() models.ProviderKind { return m.name }

func (m *Mock) Create(ctx context.Context, req *models.CreateSessionRequest, sessionID string) (*models.SessionInfo, error) {
	if m.FailCreate != nil {
		return nil, m.FailCreate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	info := &models.SessionInfo{
		ID:          sessionID,
		WorkspaceID: req.WorkspaceID,
		Namespace:   req.Namespace,
		User:        req.User,
		Provider:    m.name,
		Status:      models.StatusRunning,
		CreatedAt:   time.Now(),
	}
	m.sessions[sessionID] = info
	return info, nil
}

func (m *Mock) Get(ctx context.Context, sessionID string) (*models.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID], nil
}

func (m *Mock) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *Mock) Execute(ctx context.Context, sessionID, command string, timeout time.Duration, async bool) (*models.ExecResult, error) {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, sferrors.ProviderUnavailable("provider.Mock.Execute", "session not found", nil)
	}
	if async {
		return &models.ExecResult{Success: true, Status: "submitted", JobID: uuid.New().String(), JobName: "mock-job"}, nil
	}
	return &models.ExecResult{Success: true, ReturnCode: 0, Stdout: "ok", Status: "completed"}, nil
}

func (m *Mock) GetJobStatus(ctx context.Context, sessionID, jobID, jobName string) (*models.ExecResult, error) {
	return &models.ExecResult{Success: true, ReturnCode: 0, Status: "completed", JobID: jobID, JobName: jobName}, nil
}

func (m *Mock) OpenShell(ctx context.Context, sessionID string) (ShellStream, error) {
	return &loopbackStream{buf: &bytes.Buffer{}}, nil
}

// loopbackStream echoes writes back on Read, enough to exercise shell
// bridging logic without a real PTY.
type loopbackStream struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (l *loopbackStream) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Read(p)
}

func (l *loopbackStream) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *loopbackStream) Close() error { return nil }
