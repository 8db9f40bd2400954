// Package documents reads compliance documents for the expiry scheduler.
package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/server/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func selectDocuments() sq.SelectBuilder {
	return psql.
		Select("id", "evaluator_id", "supplier_id", "title", "expires_at", "last_expiry_notified_at", "is_active").
		From("documents")
}

// ListDue returns active documents with an expiry date inside the filter's
// horizon, ordered by id. Whether a reminder actually fires is decided by
// the caller.
func (r *PostgresRepository) ListDue(ctx context.Context, f DueFilter) ([]models.Document, error) {
	qb := selectDocuments().
		Where(sq.Eq{"is_active": true}).
		Where(sq.NotEq{"expires_at": nil}).
		Where(sq.Lt{"expires_at": f.ExpiringBefore}).
		OrderBy("id")
	if f.EvaluatorID != 0 {
		qb = qb.Where(sq.Eq{"evaluator_id": f.EvaluatorID})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}
	defer rows.Close()

	var result []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	query, args, err := selectDocuments().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	d, err := scanDocument(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

// MarkNotified records the instant of the last successful reminder.
func (r *PostgresRepository) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	query, args, err := psql.Update("documents").
		Set("last_expiry_notified_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*models.Document, error) {
	var (
		d          models.Document
		supplierID sql.NullInt64
		expiresAt  sql.NullTime
		notifiedAt sql.NullTime
	)
	if err := s.Scan(&d.ID, &d.EvaluatorID, &supplierID, &d.Title, &expiresAt, &notifiedAt, &d.IsActive); err != nil {
		return nil, err
	}
	if supplierID.Valid {
		d.SupplierID = &supplierID.Int64
	}
	if expiresAt.Valid {
		d.ExpiresAt = &expiresAt.Time
	}
	if notifiedAt.Valid {
		d.LastExpiryNotifiedAt = &notifiedAt.Time
	}
	return &d, nil
}
