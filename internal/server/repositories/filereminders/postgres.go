// Package filereminders tracks the ten-step expiry cadence of activity files.
package filereminders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/reminders"
)

type Repository interface {
	ListExpiring(ctx context.Context, expiringBefore time.Time, evaluatorID int64) ([]models.ExpiringFile, error)
	Advance(ctx context.Context, fileID int64, step int, sentAt time.Time) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListExpiring returns validated files with an expiry date before the given
// instant whose cadence is not finished, with their reminder progress. A
// non-zero evaluatorID keeps the files of that tenant only.
func (r *PostgresRepository) ListExpiring(ctx context.Context, expiringBefore time.Time, evaluatorID int64) ([]models.ExpiringFile, error) {
	query := `
		SELECT f.id, f.activity_id, a.evaluator_id, a.supplier_id, f.original_name, f.expires_at,
		       COALESCE(fr.last_step_sent, 0), fr.last_sent_at
		FROM activity_files f
		JOIN activities a ON a.id = f.activity_id
		LEFT JOIN file_reminders fr ON fr.file_id = f.id
		WHERE f.expires_at IS NOT NULL
		  AND f.expires_at < $1
		  AND f.status = 'VALID_OK'
		  AND COALESCE(fr.last_step_sent, 0) < $2
		  AND ($3::bigint = 0 OR a.evaluator_id = $3::bigint)
		ORDER BY f.id
	`
	rows, err := r.db.QueryContext(ctx, query, expiringBefore, reminders.MaxFileStep, evaluatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to select expiring files: %w", err)
	}
	defer rows.Close()

	var result []models.ExpiringFile
	for rows.Next() {
		var (
			f        models.ExpiringFile
			lastSent sql.NullTime
		)
		if err := rows.Scan(&f.FileID, &f.ActivityID, &f.EvaluatorID, &f.SupplierID, &f.OriginalName,
			&f.ExpiresAt, &f.LastStepSent, &lastSent); err != nil {
			return nil, err
		}
		if lastSent.Valid {
			f.LastSentAt = &lastSent.Time
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Advance records that step was sent. The stored step only moves forward;
// a step at or below the stored one yields common.ErrInvalidTransition.
func (r *PostgresRepository) Advance(ctx context.Context, fileID int64, step int, sentAt time.Time) error {
	query := `
		INSERT INTO file_reminders (file_id, last_step_sent, last_sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (file_id)
		DO UPDATE SET last_step_sent = EXCLUDED.last_step_sent, last_sent_at = EXCLUDED.last_sent_at
		WHERE file_reminders.last_step_sent < EXCLUDED.last_step_sent
	`
	res, err := r.db.ExecContext(ctx, query, fileID, step, sentAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrInvalidTransition
	}
	return nil
}
