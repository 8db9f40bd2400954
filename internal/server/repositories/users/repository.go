package users

import (
	"context"

	"github.com/dmitrijs2005/lfras/internal/server/models"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ListRecipients(ctx context.Context, evaluatorID int64, supplierID *int64) ([]models.User, error)
}
