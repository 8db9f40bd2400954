package activities

import (
	"context"
	"time"

	"github.com/dmitrijs2005/lfras/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, a *models.Activity) (*models.Activity, error)
	GetByID(ctx context.Context, id int64) (*models.Activity, error)
	GetForUpdate(ctx context.Context, id int64) (*models.Activity, error)
	Transition(ctx context.Context, id int64, from, to models.ActivityStatus, endedBy *int64, endedAt *time.Time) error
	SetCounters(ctx context.Context, id int64, c models.ActivityCounters) error
}
