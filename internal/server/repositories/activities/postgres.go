// Package activities persists activity rows and their status transitions.
package activities

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Activity) (*models.Activity, error) {
	query := `
		INSERT INTO activities (evaluator_id, supplier_id, status, started_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, started_at
	`
	if err := r.db.QueryRowContext(ctx, query, a.EvaluatorID, a.SupplierID, a.Status, a.StartedBy).
		Scan(&a.ID, &a.StartedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

const selectActivity = `
	SELECT id, evaluator_id, supplier_id, status, started_by, started_at, ended_by, ended_at,
	       total_files, failed_files, reuploaded_files
	FROM activities
	WHERE id = $1`

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Activity, error) {
	return r.get(ctx, selectActivity, id)
}

// GetForUpdate reads the activity and locks its row until the surrounding
// transaction ends. Only meaningful when the repository is bound to a Tx.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id int64) (*models.Activity, error) {
	return r.get(ctx, selectActivity+` FOR UPDATE`, id)
}

func (r *PostgresRepository) get(ctx context.Context, query string, id int64) (*models.Activity, error) {
	var (
		a       models.Activity
		endedBy sql.NullInt64
		endedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.EvaluatorID, &a.SupplierID, &a.Status,
		&a.StartedBy, &a.StartedAt, &endedBy, &endedAt, &a.TotalFiles, &a.FailedFiles, &a.ReuploadedFiles)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if endedBy.Valid {
		a.EndedBy = &endedBy.Int64
	}
	if endedAt.Valid {
		a.EndedAt = &endedAt.Time
	}
	return &a, nil
}

// Transition moves the activity from one status to another. If the row is
// no longer in from, nothing changes and common.ErrInvalidTransition is
// returned.
func (r *PostgresRepository) Transition(ctx context.Context, id int64, from, to models.ActivityStatus, endedBy *int64, endedAt *time.Time) error {
	query := `
		UPDATE activities SET status = $1, ended_by = $2, ended_at = $3
		WHERE id = $4 AND status = $5
	`
	res, err := r.db.ExecContext(ctx, query, to, endedBy, endedAt, id, from)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrInvalidTransition
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) SetCounters(ctx context.Context, id int64, c models.ActivityCounters) error {
	query := `UPDATE activities SET total_files = $1, failed_files = $2, reuploaded_files = $3 WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, c.TotalFiles, c.FailedFiles, c.ReuploadedFiles, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}
