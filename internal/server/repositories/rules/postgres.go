// Package rules persists per-supplier validation rules.
package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/server/models"
)

const uniqueNameConstraint = "validation_rules_supplier_name_uq"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a normalised rule. A second rule with the same expected
// name (case-insensitive) for the supplier yields common.ErrRuleExists.
func (r *PostgresRepository) Create(ctx context.Context, rule *models.ValidationRule) (*models.ValidationRule, error) {
	query := `
		INSERT INTO validation_rules (evaluator_id, supplier_id, expected_name, allowed_extensions, required_keywords, is_required, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		rule.EvaluatorID, rule.SupplierID, rule.ExpectedName,
		dbx.StringList(rule.AllowedExtensions), dbx.StringList(rule.RequiredKeywords),
		rule.IsRequired, rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, uniqueNameConstraint) {
			return nil, common.ErrRuleExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rule, nil
}

func (r *PostgresRepository) Update(ctx context.Context, rule *models.ValidationRule) error {
	query := `
		UPDATE validation_rules
		SET expected_name = $1, allowed_extensions = $2, required_keywords = $3, is_required = $4, is_active = $5
		WHERE id = $6 AND supplier_id = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		rule.ExpectedName, dbx.StringList(rule.AllowedExtensions), dbx.StringList(rule.RequiredKeywords),
		rule.IsRequired, rule.IsActive, rule.ID, rule.SupplierID)
	if err != nil {
		if dbx.IsUniqueViolation(err, uniqueNameConstraint) {
			return common.ErrRuleExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, supplierID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM validation_rules WHERE id = $1 AND supplier_id = $2`, id, supplierID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

// DeleteBySupplier removes every rule the evaluator holds for the supplier
// and returns how many rows went away.
func (r *PostgresRepository) DeleteBySupplier(ctx context.Context, evaluatorID, supplierID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM validation_rules WHERE evaluator_id = $1 AND supplier_id = $2`, evaluatorID, supplierID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// OwnedByOther reports whether the supplier already has rules written by a
// different evaluator.
func (r *PostgresRepository) OwnedByOther(ctx context.Context, evaluatorID, supplierID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM validation_rules WHERE supplier_id = $1 AND evaluator_id <> $2)`
	if err := r.db.QueryRowContext(ctx, query, supplierID, evaluatorID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

const selectColumns = `SELECT id, evaluator_id, supplier_id, expected_name, allowed_extensions, required_keywords, is_required, is_active, created_at FROM validation_rules`

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.ValidationRule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rule, nil
}

// ListBySupplier returns the evaluator's rules for the supplier, active or
// not, in insertion order. The matcher relies on this order.
func (r *PostgresRepository) ListBySupplier(ctx context.Context, evaluatorID, supplierID int64) ([]models.ValidationRule, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE evaluator_id = $1 AND supplier_id = $2 ORDER BY id`, evaluatorID, supplierID)
	if err != nil {
		return nil, fmt.Errorf("failed to select rules: %w", err)
	}
	defer rows.Close()

	var result []models.ValidationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*models.ValidationRule, error) {
	var (
		rule     models.ValidationRule
		exts     dbx.StringList
		keywords dbx.StringList
	)
	if err := s.Scan(&rule.ID, &rule.EvaluatorID, &rule.SupplierID, &rule.ExpectedName,
		&exts, &keywords, &rule.IsRequired, &rule.IsActive, &rule.CreatedAt); err != nil {
		return nil, err
	}
	rule.AllowedExtensions = exts
	rule.RequiredKeywords = keywords
	return &rule, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
