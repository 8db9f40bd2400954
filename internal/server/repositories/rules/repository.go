package rules

import (
	"context"

	"github.com/dmitrijs2005/lfras/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, rule *models.ValidationRule) (*models.ValidationRule, error)
	Update(ctx context.Context, rule *models.ValidationRule) error
	Delete(ctx context.Context, supplierID, id int64) error
	DeleteBySupplier(ctx context.Context, evaluatorID, supplierID int64) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ValidationRule, error)
	ListBySupplier(ctx context.Context, evaluatorID, supplierID int64) ([]models.ValidationRule, error)
	OwnedByOther(ctx context.Context, evaluatorID, supplierID int64) (bool, error)
}
