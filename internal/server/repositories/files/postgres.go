// Package files persists uploaded activity files and their versions.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/server/models"
)

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// NextVersion reserves the next version number for a logical filename in an
// activity. The counter lives in its own table, so a number is never handed
// out twice even after the file row carrying it was deleted.
func (r *PostgresRepository) NextVersion(ctx context.Context, activityID int64, originalName string) (int, error) {
	query := `
		INSERT INTO activity_file_versions (activity_id, original_name, last_version)
		VALUES ($1, $2, 1)
		ON CONFLICT (activity_id, original_name)
		DO UPDATE SET last_version = activity_file_versions.last_version + 1
		RETURNING last_version
	`
	var v int
	if err := r.db.QueryRowContext(ctx, query, activityID, originalName).Scan(&v); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// Create inserts a file row. A clash on (activity, name, version) is
// reported as common.ErrVersionConflict.
func (r *PostgresRepository) Create(ctx context.Context, file *models.UploadedFile) (*models.UploadedFile, error) {
	query := `
		INSERT INTO activity_files (activity_id, original_name, storage_key, size, status, version, reupload_of, uploaded_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, uploaded_at
	`
	err := r.db.QueryRowContext(ctx, query,
		file.ActivityID, file.OriginalName, file.StorageKey, file.Size, file.Status,
		file.Version, file.ReuploadOf, file.UploadedBy, file.ExpiresAt,
	).Scan(&file.ID, &file.UploadedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "activity_files_name_version_uq") {
			return nil, common.ErrVersionConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return file, nil
}

const selectFile = `
	SELECT id, activity_id, original_name, storage_key, size, status, failure_reason, version,
	       reupload_of, uploaded_by, uploaded_at, validated_at, expires_at
	FROM activity_files`

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.UploadedFile, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx, selectFile+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// ListByActivity returns every file of the activity in upload order.
func (r *PostgresRepository) ListByActivity(ctx context.Context, activityID int64) ([]models.UploadedFile, error) {
	rows, err := r.db.QueryContext(ctx, selectFile+` WHERE activity_id = $1 ORDER BY id`, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []models.UploadedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStatus applies a forward status move. The row must still be in
// from; otherwise common.ErrInvalidTransition is returned.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, from, to models.FileStatus, reason string, validatedAt *time.Time) error {
	if !models.CanTransition(from, to) {
		return common.ErrInvalidTransition
	}
	query := `
		UPDATE activity_files SET status = $1, failure_reason = $2, validated_at = COALESCE($3, validated_at)
		WHERE id = $4 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query, to, reason, validatedAt, id, from)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	switch ra {
	case 1:
		return nil
	case 0:
		return common.ErrInvalidTransition
	default:
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM activity_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrorNotFound
	}
	return nil
}

// Counters derives the activity summary from its file rows.
func (r *PostgresRepository) Counters(ctx context.Context, activityID int64) (models.ActivityCounters, error) {
	query := `
		SELECT count(*),
		       count(*) FILTER (WHERE status IN ('VALID_FAILED', 'UPLOAD_FAILED')),
		       count(*) FILTER (WHERE version > 1)
		FROM activity_files
		WHERE activity_id = $1
	`
	var c models.ActivityCounters
	if err := r.db.QueryRowContext(ctx, query, activityID).Scan(&c.TotalFiles, &c.FailedFiles, &c.ReuploadedFiles); err != nil {
		return c, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.UploadedFile, error) {
	var (
		f           models.UploadedFile
		reuploadOf  sql.NullInt64
		validatedAt sql.NullTime
		expiresAt   sql.NullTime
	)
	if err := s.Scan(&f.ID, &f.ActivityID, &f.OriginalName, &f.StorageKey, &f.Size, &f.Status, &f.FailureReason,
		&f.Version, &reuploadOf, &f.UploadedBy, &f.UploadedAt, &validatedAt, &expiresAt); err != nil {
		return nil, err
	}
	if reuploadOf.Valid {
		f.ReuploadOf = &reuploadOf.Int64
	}
	if validatedAt.Valid {
		f.ValidatedAt = &validatedAt.Time
	}
	if expiresAt.Valid {
		f.ExpiresAt = &expiresAt.Time
	}
	return &f, nil
}
