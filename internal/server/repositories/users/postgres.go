// Package users reads tenant user accounts. Accounts are managed elsewhere;
// this service only needs them as actors and notification recipients.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query :=
		`SELECT id, email, role, evaluator_id, supplier_id, is_active FROM users
		 WHERE id = $1
		 `

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// ListRecipients returns active users with an e-mail address who should
// hear about the given evaluator/supplier pair: evaluator admins and staff,
// plus users of the supplier when supplierID is set.
func (r *PostgresRepository) ListRecipients(ctx context.Context, evaluatorID int64, supplierID *int64) ([]models.User, error) {
	query :=
		`SELECT id, email, role, evaluator_id, supplier_id, is_active FROM users
		 WHERE is_active AND email <> ''
		   AND ((evaluator_id = $1 AND role IN ('EAD', 'EVS'))
		     OR (supplier_id = $2 AND role = 'SUS'))
		 ORDER BY id
		 `

	rows, err := r.db.QueryContext(ctx, query, evaluatorID, supplierID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*models.User, error) {
	var (
		u           models.User
		evaluatorID sql.NullInt64
		supplierID  sql.NullInt64
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Role, &evaluatorID, &supplierID, &u.IsActive); err != nil {
		return nil, err
	}
	if evaluatorID.Valid {
		u.EvaluatorID = &evaluatorID.Int64
	}
	if supplierID.Valid {
		u.SupplierID = &supplierID.Int64
	}
	return &u, nil
}
