package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/lfras/internal/server/models"
)

type Repository interface {
	NextVersion(ctx context.Context, activityID int64, originalName string) (int, error)
	Create(ctx context.Context, file *models.UploadedFile) (*models.UploadedFile, error)
	GetByID(ctx context.Context, id int64) (*models.UploadedFile, error)
	ListByActivity(ctx context.Context, activityID int64) ([]models.UploadedFile, error)
	UpdateStatus(ctx context.Context, id int64, from, to models.FileStatus, reason string, validatedAt *time.Time) error
	Delete(ctx context.Context, id int64) error
	Counters(ctx context.Context, activityID int64) (models.ActivityCounters, error)
}
