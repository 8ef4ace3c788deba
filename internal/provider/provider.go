// Package provider defines the ProviderDriver abstraction and its backends.
// Every backend (jobs, pods, and the mock used in tests) implements the
// same interface; the session manager and session monitor never branch on
// backend identity beyond selecting which implementation to call.
package provider

import (
	"context"
	"time"

	"github.com/sessionforge/sessionforge/internal/models"
)

// Driver is the common interface every provider backend implements
// (spec.md §4.2).
type Driver interface {
	// Name identifies the backend ("jobs" or "pods") for logging and for
	// SessionInfo.Provider when a session is created through it.
	Name() models.ProviderKind

	// Create provisions a new session and returns its initial info. Pods
	// backends block until the workload is ready (bounded by a deadline)
	// before returning status=running; jobs backends return immediately
	// since the backend scales to zero between executions.
	Create(ctx context.Context, req *models.CreateSessionRequest, sessionID string) (*models.SessionInfo, error)

	// Get refreshes a session's live status from the backend. Returns nil,
	// nil (not an error) if the backend has no record of the session.
	Get(ctx context.Context, sessionID string) (*models.SessionInfo, error)

	// Delete tears the session down. Idempotent: deleting an
	// already-deleted or nonexistent session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// Execute runs command in the session, honoring timeout. A command
	// still running when timeout elapses returns ReturnCode=124 without
	// deleting the session or guaranteeing backend-side cancellation. When
	// async is true, the call returns immediately with Status="submitted"
	// and a JobID/JobName that GetJobStatus can later poll.
	Execute(ctx context.Context, sessionID, command string, timeout time.Duration, async bool) (*models.ExecResult, error)

	// GetJobStatus polls the outcome of a prior async Execute call.
	GetJobStatus(ctx context.Context, sessionID, jobID, jobName string) (*models.ExecResult, error)

	// OpenShell returns a bidirectional byte stream bridged to an
	// interactive shell in the session, for internal/shell to relay over a
	// WebSocket connection.
	OpenShell(ctx context.Context, sessionID string) (ShellStream, error)
}

// ShellStream is a bidirectional byte pipe into a session's shell.
type ShellStream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Select implements the provider selection priority order (spec §4.2.3):
// needs_shell -> pods; long_lived -> pods; expected_duration_minutes > 60 ->
// pods; else jobs. An explicit non-auto provider is honored as-is by the
// caller; Select is only consulted when req.Provider == ProviderAuto.
func Select(req *models.CreateSessionRequest) models.ProviderKind {
	if req.NeedsShell {
		return models.ProviderPods
	}
	if req.LongLived {
		return models.ProviderPods
	}
	if req.ExpectedDurationMinutes > 60 {
		return models.ProviderPods
	}
	return models.ProviderJobs
}
