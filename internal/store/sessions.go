package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/models"
)

func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.Session) error {
	now := time.Now()
	sess.CreatedAt, sess.UpdatedAt = now, now

	envJSON, err := json.Marshal(sess.Env)
	if err != nil {
		return sferrors.InvalidInput("store.CreateSession", "env is not JSON-serializable")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, workspace_id, user_id, namespace, provider, status, template_id,
			tier, cpu_cores, memory_gb, gpu_count, image_spec, env, ttl_minutes,
			needs_shell, long_lived, expected_duration_minutes, url, websocket_url,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, sess.ID, sess.WorkspaceID, sess.UserID, sess.Namespace, sess.Provider, sess.Status,
		nullable(sess.TemplateID), sess.ResourceSpec.Tier, sess.ResourceSpec.CPUCores,
		sess.ResourceSpec.MemoryGB, sess.ResourceSpec.GPUCount, sess.ResourceSpec.ImageSpec,
		envJSON, sess.TTLMinutes, sess.NeedsShell, sess.LongLived, sess.ExpectedDuration,
		nullable(sess.URL), nullable(sess.WebsocketURL), sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sferrors.Conflict("store.CreateSession", fmt.Sprintf("session %s already exists", sess.ID))
		}
		return sferrors.Wrap("store.CreateSession", "insert failed", err)
	}
	return nil
}

func (s *PostgresStore) scanSession(row interface {
	Scan(dest ...interface{}) error
}) (*models.Session, error) {
	sess := &models.Session{}
	var templateID, url, wsURL sql.NullString
	var envJSON []byte
	err := row.Scan(
		&sess.ID, &sess.WorkspaceID, &sess.UserID, &sess.Namespace, &sess.Provider, &sess.Status,
		&templateID, &sess.ResourceSpec.Tier, &sess.ResourceSpec.CPUCores, &sess.ResourceSpec.MemoryGB,
		&sess.ResourceSpec.GPUCount, &sess.ResourceSpec.ImageSpec, &envJSON, &sess.TTLMinutes,
		&sess.NeedsShell, &sess.LongLived, &sess.ExpectedDuration, &url, &wsURL,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.TemplateID = templateID.String
	sess.URL = url.String
	sess.WebsocketURL = wsURL.String
	if len(envJSON) > 0 {
		_ = json.Unmarshal(envJSON, &sess.Env)
	}
	return sess, nil
}

const sessionColumns = `
	id, workspace_id, user_id, namespace, provider, status, template_id,
	tier, cpu_cores, memory_gb, gpu_count, image_spec, env, ttl_minutes,
	needs_shell, long_lived, expected_duration_minutes, url, websocket_url,
	created_at, updated_at`

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)
	sess, err := s.scanSession(row)
	if err == sql.ErrNoRows {
		return nil, sferrors.NotFound("store.GetSession", fmt.Sprintf("session %s not found", sessionID))
	}
	if err != nil {
		return nil, sferrors.Wrap("store.GetSession", "query failed", err)
	}
	return sess, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *models.Session) error {
	sess.UpdatedAt = time.Now()
	envJSON, err := json.Marshal(sess.Env)
	if err != nil {
		return sferrors.InvalidInput("store.UpdateSession", "env is not JSON-serializable")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = $1, url = $2, websocket_url = $3, env = $4, updated_at = $5
		WHERE id = $6
	`, sess.Status, nullable(sess.URL), nullable(sess.WebsocketURL), envJSON, sess.UpdatedAt, sess.ID)
	if err != nil {
		return sferrors.Wrap("store.UpdateSession", "update failed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sferrors.NotFound("store.UpdateSession", fmt.Sprintf("session %s not found", sess.ID))
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return sferrors.Wrap("store.DeleteSession", "delete failed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sferrors.NotFound("store.DeleteSession", fmt.Sprintf("session %s not found", sessionID))
	}
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, workspaceID string) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE workspace_id = $1 ORDER BY created_at ASC`, workspaceID)
	if err != nil {
		return nil, sferrors.Wrap("store.ListSessions", "query failed", err)
	}
	defer rows.Close()
	return s.collectSessions(rows)
}

// ListActiveSessionsForMonitor returns every session not yet in a terminal
// state, the feed the session monitor sweeps each interval.
func (s *PostgresStore) ListActiveSessionsForMonitor(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE status IN ($1, $2) ORDER BY created_at ASC`,
		models.StatusCreating, models.StatusRunning)
	if err != nil {
		return nil, sferrors.Wrap("store.ListActiveSessionsForMonitor", "query failed", err)
	}
	defer rows.Close()
	return s.collectSessions(rows)
}

func (s *PostgresStore) collectSessions(rows *sql.Rows) ([]*models.Session, error) {
	var out []*models.Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, sferrors.Wrap("store.collectSessions", "scan failed", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, sferrors.Wrap("store.collectSessions", "row iteration failed", err)
	}
	return out, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation matches Postgres error code 23505 (unique_violation).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
