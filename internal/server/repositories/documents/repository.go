package documents

import (
	"context"
	"time"

	"github.com/dmitrijs2005/lfras/internal/server/models"
)

// DueFilter narrows the documents considered by a reminder run.
type DueFilter struct {
	// ExpiringBefore excludes documents expiring at or after this instant.
	ExpiringBefore time.Time
	// EvaluatorID limits the run to one tenant when non-zero.
	EvaluatorID int64
}

type Repository interface {
	ListDue(ctx context.Context, f DueFilter) ([]models.Document, error)
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	MarkNotified(ctx context.Context, id int64, at time.Time) error
}
