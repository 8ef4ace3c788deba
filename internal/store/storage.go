package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/tags"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/logger"
	"github.com/sessionforge/sessionforge/internal/models"
)

// bucketName derives the backing object-storage bucket for a workspace's
// storage resource. Bucket names must be DNS-safe, which workspace uuids
// already satisfy.
func (s *PostgresStore) bucketName(workspaceID string) string {
	return s.minioBucketPrefix + workspaceID
}

// provisionBucket creates (idempotently) the object-storage bucket backing
// a bucket-type storage resource and tags it with its requested size, so
// storage_type=bucket resources have a real backend rather than just a
// Postgres row. A nil minio client (no endpoint configured) is a no-op.
func (s *PostgresStore) provisionBucket(ctx context.Context, r *models.StorageResource) error {
	if s.minio == nil {
		return nil
	}
	bucket := s.bucketName(r.WorkspaceID)

	exists, err := s.minio.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket existence check failed: %w", err)
	}
	if !exists {
		if err := s.minio.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.minioRegion}); err != nil {
			return fmt.Errorf("bucket creation failed: %w", err)
		}
	}

	sizeTags, err := tags.NewTags(map[string]string{"size_gb": fmt.Sprintf("%.0f", r.SizeGB)}, false)
	if err != nil {
		return fmt.Errorf("invalid bucket size tag: %w", err)
	}
	if err := s.minio.SetBucketTagging(ctx, bucket, sizeTags); err != nil {
		return fmt.Errorf("bucket tagging failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateStorageResource(ctx context.Context, r *models.StorageResource) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.CreatedAt = time.Now()

	if r.Type == models.StorageBucket {
		if err := s.provisionBucket(ctx, r); err != nil {
			logger.Store().Warn().Err(err).Str("workspace_id", r.WorkspaceID).Msg("bucket provisioning failed, recording resource without a backing bucket")
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO storage_resources (id, workspace_id, type, size_gb, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.WorkspaceID, r.Type, r.SizeGB, r.IsDefault, r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sferrors.Conflict("store.CreateStorageResource",
				fmt.Sprintf("workspace %s already has a default %s resource", r.WorkspaceID, r.Type))
		}
		return sferrors.Wrap("store.CreateStorageResource", "insert failed", err)
	}
	return nil
}

func (s *PostgresStore) GetDefaultStorageResource(ctx context.Context, workspaceID string, t models.StorageType) (*models.StorageResource, error) {
	r := &models.StorageResource{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, type, size_gb, is_default, created_at
		FROM storage_resources WHERE workspace_id = $1 AND type = $2 AND is_default = TRUE
	`, workspaceID, t).Scan(&r.ID, &r.WorkspaceID, &r.Type, &r.SizeGB, &r.IsDefault, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sferrors.NotFound("store.GetDefaultStorageResource",
			fmt.Sprintf("no default %s resource for workspace %s", t, workspaceID))
	}
	if err != nil {
		return nil, sferrors.Wrap("store.GetDefaultStorageResource", "query failed", err)
	}
	return r, nil
}

func (s *PostgresStore) AttachStorage(ctx context.Context, a *models.SessionAttachment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AccessMode == "" {
		a.AccessMode = models.AccessRW
	}
	a.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_attachments (id, session_id, storage_id, mount_path, access_mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.SessionID, a.StorageID, a.MountPath, a.AccessMode, a.CreatedAt)
	if err != nil {
		return sferrors.Wrap("store.AttachStorage", "insert failed", err)
	}
	return nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, sessionID string) ([]*models.SessionAttachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, storage_id, mount_path, access_mode, created_at
		FROM session_attachments WHERE session_id = $1 ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, sferrors.Wrap("store.ListAttachments", "query failed", err)
	}
	defer rows.Close()

	var out []*models.SessionAttachment
	for rows.Next() {
		a := &models.SessionAttachment{}
		if err := rows.Scan(&a.ID, &a.SessionID, &a.StorageID, &a.MountPath, &a.AccessMode, &a.CreatedAt); err != nil {
			return nil, sferrors.Wrap("store.ListAttachments", "scan failed", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, sferrors.Wrap("store.ListAttachments", "row iteration failed", err)
	}
	return out, nil
}
