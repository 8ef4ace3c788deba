package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/models"
)

func (s *PostgresStore) GetTemplate(ctx context.Context, templateID string) (*models.Template, error) {
	t := &models.Template{ID: templateID}
	var envJSON []byte
	var storageType sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT name, tier, image_spec, storage_type, storage_size_gb, env_vars,
		       default_ttl_minutes, usage_count, created_at
		FROM templates WHERE id = $1
	`, templateID).Scan(&t.Name, &t.ResourceTier, &t.ImageSpec, &storageType, &t.StorageSizeGB,
		&envJSON, &t.DefaultTTLMinutes, &t.UsageCount, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sferrors.NotFound("store.GetTemplate", fmt.Sprintf("template %s not found", templateID))
	}
	if err != nil {
		return nil, sferrors.Wrap("store.GetTemplate", "query failed", err)
	}
	t.StorageType = models.StorageType(storageType.String)
	if len(envJSON) > 0 {
		_ = json.Unmarshal(envJSON, &t.EnvVars)
	}
	return t, nil
}

func (s *PostgresStore) IncrementTemplateUsage(ctx context.Context, templateID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET usage_count = usage_count + 1 WHERE id = $1`, templateID)
	if err != nil {
		return sferrors.Wrap("store.IncrementTemplateUsage", "update failed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sferrors.NotFound("store.IncrementTemplateUsage", fmt.Sprintf("template %s not found", templateID))
	}
	return nil
}
