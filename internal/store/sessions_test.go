package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/models"
)

func TestCreateSession_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	sess := &models.Session{ID: "sess-1", WorkspaceID: "ws-1", UserID: "user-1", Provider: models.ProviderJobs, Status: models.StatusRunning}

	mock.ExpectExec("INSERT INTO sessions").WillReturnError(&pq.Error{Code: "23505"})

	err = s.CreateSession(context.Background(), sess)
	require.Error(t, err)
	assert.Equal(t, sferrors.ConflictKind, sferrors.KindOf(err))
}

func TestGetSession_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err = s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, sferrors.NotFoundKind, sferrors.KindOf(err))
}

func TestDeleteSession_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	mock.ExpectExec("DELETE FROM sessions WHERE id = \\$1").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.DeleteSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, sferrors.NotFoundKind, sferrors.KindOf(err))
}

func TestListActiveSessionsForMonitor_FiltersToCreatingAndRunning(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	rows := sqlmock.NewRows([]string{
		"id", "workspace_id", "user_id", "namespace", "provider", "status", "template_id",
		"tier", "cpu_cores", "memory_gb", "gpu_count", "image_spec", "env", "ttl_minutes",
		"needs_shell", "long_lived", "expected_duration_minutes", "url", "websocket_url",
		"created_at", "updated_at",
	}).AddRow(
		"sess-1", "ws-1", "user-1", "ns", "jobs", "running", nil,
		"small", 1.0, 2.0, 0, "python:3.11", []byte("{}"), 60,
		false, false, 0, nil, nil,
		"2026-01-01T00:00:00Z", "2026-01-01T00:00:00Z",
	)
	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE status IN").
		WithArgs(models.StatusCreating, models.StatusRunning).
		WillReturnRows(rows)

	out, err := s.ListActiveSessionsForMonitor(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "sess-1", out[0].ID)
}
