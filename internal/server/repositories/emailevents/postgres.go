// Package emailevents records every attempted notification e-mail.
package emailevents

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, e *models.EmailEvent) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.EmailEvent) error {
	query := `
		INSERT INTO email_events (recipient, subject, category, status, error, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query, e.Recipient, e.Subject, e.Category, e.Status, e.Error,
		dbx.JSONMap(e.Meta)).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
