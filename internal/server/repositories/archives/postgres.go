// Package archives stores pointers to completed-activity zip archives.
package archives

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, activityID int64) (*models.ActivityArchive, error)
	Save(ctx context.Context, a *models.ActivityArchive) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, activityID int64) (*models.ActivityArchive, error) {
	query := `SELECT activity_id, storage_key, digest, size, file_count, created_at FROM activity_archives WHERE activity_id = $1`
	var a models.ActivityArchive
	err := r.db.QueryRowContext(ctx, query, activityID).
		Scan(&a.ActivityID, &a.StorageKey, &a.Digest, &a.Size, &a.FileCount, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &a, nil
}

// Save records the archive of an activity, replacing a previous one.
func (r *PostgresRepository) Save(ctx context.Context, a *models.ActivityArchive) error {
	query := `
		INSERT INTO activity_archives (activity_id, storage_key, digest, size, file_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (activity_id)
		DO UPDATE SET storage_key = EXCLUDED.storage_key, digest = EXCLUDED.digest,
			size = EXCLUDED.size, file_count = EXCLUDED.file_count, created_at = now()
		RETURNING created_at
	`
	if err := r.db.QueryRowContext(ctx, query, a.ActivityID, a.StorageKey, a.Digest, a.Size, a.FileCount).
		Scan(&a.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
