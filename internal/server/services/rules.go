package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/lfras/internal/server/validation"
)

// RuleService manages a supplier's expected-file rules. Only evaluator
// users may change rules; supplier users may read their own.
type RuleService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewRuleService(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger) *RuleService {
	return &RuleService{
		db:          db,
		repomanager: rm,
		logger:      logger.With("module", "rule_service"),
	}
}

func canManageRules(actor models.Actor) error {
	if actor.SupplierID != nil || actor.Role == models.RoleSupplierUser {
		return common.ErrorForbidden
	}
	return nil
}

// claimSupplier fails with common.ErrorForbidden when another evaluator
// already keeps rules for the supplier.
func (s *RuleService) claimSupplier(ctx context.Context, tx dbx.DBTX, evaluatorID, supplierID int64) error {
	other, err := s.repomanager.Rules(tx).OwnedByOther(ctx, evaluatorID, supplierID)
	if err != nil {
		return fmt.Errorf("error checking supplier owner: %w", err)
	}
	if other {
		return common.ErrorForbidden
	}
	return nil
}

func (s *RuleService) Create(ctx context.Context, actor models.Actor, rule models.ValidationRule) (*models.ValidationRule, error) {
	if err := canManageRules(actor); err != nil {
		return nil, err
	}
	rule.EvaluatorID = actor.EvaluatorID
	if err := validation.NormalizeRule(&rule); err != nil {
		return nil, err
	}

	var created *models.ValidationRule
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.claimSupplier(ctx, tx, rule.EvaluatorID, rule.SupplierID); err != nil {
			return err
		}
		var err error
		created, err = s.repomanager.Rules(tx).Create(ctx, &rule)
		if err != nil {
			return err
		}
		return appendAudit(ctx, s.repomanager, tx, actor, auditEntry{
			verb: "create", action: "rule_created", targetType: "validation_rule", targetID: created.ID,
			evaluatorID: created.EvaluatorID, supplierID: created.SupplierID,
			meta: map[string]any{"expected_name": created.ExpectedName},
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update replaces the editable fields of an existing rule. The supplier of
// a rule never changes.
func (s *RuleService) Update(ctx context.Context, actor models.Actor, rule models.ValidationRule) (*models.ValidationRule, error) {
	if err := canManageRules(actor); err != nil {
		return nil, err
	}

	existing, err := s.repomanager.Rules(s.db).GetByID(ctx, rule.ID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, existing.EvaluatorID, existing.SupplierID); err != nil {
		return nil, err
	}

	rule.EvaluatorID = existing.EvaluatorID
	rule.SupplierID = existing.SupplierID
	rule.CreatedAt = existing.CreatedAt
	if err := validation.NormalizeRule(&rule); err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Rules(tx).Update(ctx, &rule); err != nil {
			return err
		}
		return appendAudit(ctx, s.repomanager, tx, actor, auditEntry{
			verb: "update", action: "rule_updated", targetType: "validation_rule", targetID: rule.ID,
			evaluatorID: rule.EvaluatorID, supplierID: rule.SupplierID,
			meta: map[string]any{"expected_name": rule.ExpectedName},
		})
	})
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *RuleService) Delete(ctx context.Context, actor models.Actor, ruleID int64) error {
	if err := canManageRules(actor); err != nil {
		return err
	}

	existing, err := s.repomanager.Rules(s.db).GetByID(ctx, ruleID)
	if err != nil {
		return err
	}
	if err := authorize(actor, existing.EvaluatorID, existing.SupplierID); err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Rules(tx).Delete(ctx, existing.SupplierID, existing.ID); err != nil {
			return err
		}
		return appendAudit(ctx, s.repomanager, tx, actor, auditEntry{
			verb: "delete", action: "rule_deleted", targetType: "validation_rule", targetID: existing.ID,
			evaluatorID: existing.EvaluatorID, supplierID: existing.SupplierID,
			meta: map[string]any{"expected_name": existing.ExpectedName},
		})
	})
}

// List returns the supplier's rules in evaluation order.
func (s *RuleService) List(ctx context.Context, actor models.Actor, supplierID int64) ([]models.ValidationRule, error) {
	if err := authorize(actor, actor.EvaluatorID, supplierID); err != nil {
		return nil, err
	}
	rules, err := s.repomanager.Rules(s.db).ListBySupplier(ctx, actor.EvaluatorID, supplierID)
	if err != nil {
		return nil, fmt.Errorf("error listing rules: %w", err)
	}
	return rules, nil
}

// ImportCSV replaces the caller's rules for the supplier with the rules in
// r. The sheet is parsed completely before anything is written, and the
// swap happens in one transaction.
func (s *RuleService) ImportCSV(ctx context.Context, actor models.Actor, supplierID int64, r io.Reader) ([]models.ValidationRule, error) {
	if err := canManageRules(actor); err != nil {
		return nil, err
	}

	parsed, err := validation.ParseRulesCSV(r, actor.EvaluatorID, supplierID)
	if err != nil {
		return nil, err
	}

	created := make([]models.ValidationRule, 0, len(parsed))
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.claimSupplier(ctx, tx, actor.EvaluatorID, supplierID); err != nil {
			return err
		}
		repo := s.repomanager.Rules(tx)
		removed, err := repo.DeleteBySupplier(ctx, actor.EvaluatorID, supplierID)
		if err != nil {
			return fmt.Errorf("error removing rules: %w", err)
		}
		for i := range parsed {
			rule, err := repo.Create(ctx, &parsed[i])
			if err != nil {
				return fmt.Errorf("rule %q: %w", parsed[i].ExpectedName, err)
			}
			created = append(created, *rule)
		}
		return appendAudit(ctx, s.repomanager, tx, actor, auditEntry{
			verb: "update", action: "rules_imported", targetType: "supplier", targetID: supplierID,
			evaluatorID: actor.EvaluatorID, supplierID: supplierID,
			meta: map[string]any{"imported": len(created), "removed": removed},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "rules imported", "supplier_id", supplierID, "count", len(created))
	return created, nil
}
