// Package audit appends audit-log rows.
package audit

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, e *models.AuditEvent) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (actor_id, verb, action, target_type, target_id, evaluator_id, supplier_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query, e.ActorID, e.Verb, e.Action, e.TargetType, e.TargetID,
		e.EvaluatorID, e.SupplierID, dbx.JSONMap(e.Metadata)).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
