// Package services holds the application services behind the gRPC
// handlers and the scheduled jobs. Services own transactions; repositories
// are obtained per call from the RepositoryManager, bound either to the
// pool or to the current transaction.
package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/repomanager"
)

// authorize checks that actor belongs to the tenant and, for supplier
// users, to the supplier that owns the resource.
func authorize(actor models.Actor, evaluatorID, supplierID int64) error {
	if actor.Role == models.System.Role {
		return nil
	}
	if actor.EvaluatorID != evaluatorID {
		return common.ErrorForbidden
	}
	if actor.SupplierID != nil && *actor.SupplierID != supplierID {
		return common.ErrorForbidden
	}
	return nil
}

func actorID(actor models.Actor) *int64 {
	if actor.UserID == 0 {
		return nil
	}
	id := actor.UserID
	return &id
}

type auditEntry struct {
	verb        string
	action      string
	targetType  string
	targetID    int64
	evaluatorID int64
	supplierID  int64
	meta        map[string]any
}

func appendAudit(ctx context.Context, rm repomanager.RepositoryManager, db dbx.DBTX, actor models.Actor, e auditEntry) error {
	supplierID := e.supplierID
	ev := &models.AuditEvent{
		ActorID:     actorID(actor),
		Verb:        e.verb,
		Action:      e.action,
		TargetType:  e.targetType,
		TargetID:    e.targetID,
		EvaluatorID: e.evaluatorID,
		Metadata:    e.meta,
	}
	if supplierID != 0 {
		ev.SupplierID = &supplierID
	}
	if err := rm.Audit(db).Append(ctx, ev); err != nil {
		return fmt.Errorf("error appending audit event: %w", err)
	}
	return nil
}
